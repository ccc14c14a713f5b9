// Package knowledge manages the project's reference library under
// knowledge/ and the semantic index built over it. Documents are plain
// .txt/.md files; the index lives in .creatorai/rag and is rebuilt
// whenever the enabled document set drifts from what was indexed.
package knowledge

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JinchengGao-Infty/Creator-Studio/fileops"
	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

const (
	// KnowledgeDir is the project-relative root of the reference library.
	KnowledgeDir = "knowledge"

	ragDir        = ".creatorai/rag"
	ragConfigPath = ".creatorai/rag/config.json"

	schemaVersion = 1
)

// Config selects which documents participate in the index. An empty
// EnabledPaths means every supported document is enabled.
type Config struct {
	SchemaVersion int      `json:"schemaVersion"`
	EnabledPaths  []string `json:"enabledPaths"`
}

// Doc describes one file in the knowledge library.
type Doc struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Bytes      int64  `json:"bytes"`
	ModifiedAt int64  `json:"modifiedAt"`
	Enabled    bool   `json:"enabled"`
}

func ensureKnowledgeDir(projectRoot string) error {
	abs, err := security.ValidatePath(projectRoot, KnowledgeDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return fmt.Errorf("failed to create knowledge dir: %v", err)
	}
	return nil
}

func ensureRagDir(projectRoot string) error {
	abs, err := security.ValidatePath(projectRoot, ragDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return fmt.Errorf("failed to create rag dir: %v", err)
	}
	return nil
}

// LoadConfig reads the enablement config, returning the default when the
// file does not exist yet.
func LoadConfig(projectRoot string) (Config, error) {
	if err := ensureRagDir(projectRoot); err != nil {
		return Config{}, err
	}
	abs, err := security.ValidatePath(projectRoot, ragConfigPath)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{SchemaVersion: schemaVersion}, nil
		}
		return Config{}, fmt.Errorf("Failed to read rag config: %v", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("Failed to parse rag config: %v", err)
	}
	return cfg, nil
}

// SaveConfig persists the enablement config through the backup layer.
func SaveConfig(projectRoot string, cfg Config) error {
	if err := ensureRagDir(projectRoot); err != nil {
		return err
	}
	abs, err := security.ValidatePath(projectRoot, ragConfigPath)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("Serialize rag config failed: %v", err)
	}
	_, err = fileops.WriteWithBackup(projectRoot, abs, append(data, '\n'))
	return err
}

func normalizeDocPath(relative string) (string, error) {
	trimmed := strings.TrimSpace(relative)
	if trimmed == "" {
		return "", fmt.Errorf("docPath is empty")
	}
	if !strings.HasPrefix(trimmed, KnowledgeDir+"/") {
		return "", fmt.Errorf("docPath must be under knowledge/")
	}
	return trimmed, nil
}

func isSupportedDocPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func fileModifiedUnix(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().Unix()
}

// ListDocs enumerates every supported document in the knowledge library,
// annotated with its enablement state.
func ListDocs(projectRoot string) ([]Doc, error) {
	if err := ensureKnowledgeDir(projectRoot); err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(projectRoot)
	if err != nil {
		return nil, err
	}
	enabled := make(map[string]bool, len(cfg.EnabledPaths))
	for _, p := range cfg.EnabledPaths {
		enabled[p] = true
	}

	root, err := security.ValidatePath(projectRoot, KnowledgeDir)
	if err != nil {
		return nil, err
	}

	docs := []Doc{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSupportedDocPath(path) {
			return nil
		}
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return fmt.Errorf("Failed to compute relative path")
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("Failed to stat file: %v", err)
		}
		docs = append(docs, Doc{
			Path:       rel,
			Name:       d.Name(),
			Bytes:      info.Size(),
			ModifiedAt: info.ModTime().Unix(),
			Enabled:    len(enabled) == 0 || enabled[rel],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// SetDocEnabled toggles one document's participation in the index.
func SetDocEnabled(projectRoot, docPath string, enabled bool) error {
	if err := ensureKnowledgeDir(projectRoot); err != nil {
		return err
	}
	docPath, err := normalizeDocPath(docPath)
	if err != nil {
		return err
	}
	if _, err := security.ValidatePath(projectRoot, docPath); err != nil {
		return err
	}

	cfg, err := LoadConfig(projectRoot)
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(cfg.EnabledPaths))
	for _, p := range cfg.EnabledPaths {
		set[p] = true
	}
	if enabled {
		set[docPath] = true
	} else {
		delete(set, docPath)
	}
	cfg.SchemaVersion = schemaVersion
	cfg.EnabledPaths = cfg.EnabledPaths[:0]
	for p := range set {
		cfg.EnabledPaths = append(cfg.EnabledPaths, p)
	}
	sort.Strings(cfg.EnabledPaths)
	return SaveConfig(projectRoot, cfg)
}

// ReadDoc returns a document's full content.
func ReadDoc(projectRoot, docPath string) (string, error) {
	if err := ensureKnowledgeDir(projectRoot); err != nil {
		return "", err
	}
	docPath, err := normalizeDocPath(docPath)
	if err != nil {
		return "", err
	}
	abs, err := security.ValidatePath(projectRoot, docPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("Doc not found")
		}
		return "", fmt.Errorf("Failed to read doc: %v", err)
	}
	return string(data), nil
}

// WriteDoc replaces a document's content, backing up any prior version.
func WriteDoc(projectRoot, docPath, content string) error {
	if err := ensureKnowledgeDir(projectRoot); err != nil {
		return err
	}
	docPath, err := normalizeDocPath(docPath)
	if err != nil {
		return err
	}
	abs, err := security.ValidatePath(projectRoot, docPath)
	if err != nil {
		return err
	}
	if !isSupportedDocPath(abs) {
		return fmt.Errorf("Only .txt/.md files are supported")
	}
	_, err = fileops.WriteWithBackup(projectRoot, abs, []byte(content))
	return err
}

// AppendDoc appends a block to a document, keeping it newline-terminated.
func AppendDoc(projectRoot, docPath, content string) error {
	if err := ensureKnowledgeDir(projectRoot); err != nil {
		return err
	}
	docPath, err := normalizeDocPath(docPath)
	if err != nil {
		return err
	}
	abs, err := security.ValidatePath(projectRoot, docPath)
	if err != nil {
		return err
	}
	if !isSupportedDocPath(abs) {
		return fmt.Errorf("Only .txt/.md files are supported")
	}

	existing := ""
	if data, err := os.ReadFile(abs); err == nil {
		existing = string(data)
	}
	next := existing
	if next != "" && !strings.HasSuffix(next, "\n") {
		next += "\n"
	}
	next += content
	if !strings.HasSuffix(next, "\n") {
		next += "\n"
	}
	_, err = fileops.WriteWithBackup(projectRoot, abs, []byte(next))
	return err
}
