package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// EnginePathEnv overrides engine discovery entirely.
const EnginePathEnv = "CREATORAI_AI_ENGINE_CLI_PATH"

func findEngineInDir(dir string) string {
	names := []string{"ai-engine"}
	if runtime.GOOS == "windows" {
		names = []string{"ai-engine.exe", "ai-engine"}
	}
	for _, name := range names {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	// Packaged builds may rename the sidecar with a target-triple suffix;
	// best-effort prefix scan.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "ai-engine") && !e.IsDir() {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

func findBundledEngine() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	exeDir := filepath.Dir(exe)
	for _, dir := range []string{
		exeDir,
		filepath.Join(exeDir, "..", "Resources"),
		filepath.Join(exeDir, "..", "Resources", "bin"),
		filepath.Join(exeDir, "..", "bin"),
	} {
		if found := findEngineInDir(dir); found != "" {
			return found
		}
	}
	return ""
}

// EnginePath resolves the ai-engine CLI: the environment override first,
// then a binary bundled next to the executable, then the in-repo TypeScript
// entry point for development runs.
func EnginePath() (string, error) {
	var overrideErr string
	if raw := strings.TrimSpace(os.Getenv(EnginePathEnv)); raw != "" {
		candidate := raw
		if !filepath.IsAbs(candidate) {
			if wd, err := os.Getwd(); err == nil {
				candidate = filepath.Join(wd, candidate)
			}
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		overrideErr = fmt.Sprintf("ai-engine CLI override not found: %s", candidate)
	}

	if found := findBundledEngine(); found != "" {
		return found, nil
	}

	if wd, err := os.Getwd(); err == nil {
		dev := filepath.Join(wd, "packages", "ai-engine", "src", "cli.ts")
		if _, err := os.Stat(dev); err == nil {
			return dev, nil
		}
	}

	msg := "ai-engine CLI not found. If you're running a packaged build, reinstall/update the app. " +
		"If you're running from source, ensure `packages/ai-engine/src/cli.ts` exists, " +
		"or set `" + EnginePathEnv + "`."
	if overrideErr != "" {
		msg = overrideErr + "\n\n" + msg
	}
	return "", fmt.Errorf("%s", msg)
}

func isScriptPath(path string) bool {
	switch filepath.Ext(path) {
	case ".ts", ".js":
		return true
	}
	return false
}

// commandFor builds the exec.Cmd for an engine path. TypeScript/JavaScript
// entry points run under bun.
func commandFor(path string) *exec.Cmd {
	if isScriptPath(path) {
		cmd := exec.Command("bun", "run", path)
		cmd.Dir = filepath.Dir(path)
		return cmd
	}
	return exec.Command(path)
}
