package fileops

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

const maxListEntries = 100

// Directories that are never worth surfacing to the engine.
var noiseDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"dist":         true,
}

// Entry describes one immediate child of a listed directory.
type Entry struct {
	Name     string `json:"name"`
	IsDir    bool   `json:"is_dir"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"`
}

// List returns the immediate children of relPath (the project root when
// empty), skipping hidden entries, symlinks and noise directories, capped at
// 100 entries. Directories report size 0.
func List(projectRoot, relPath string) ([]Entry, error) {
	abs, err := security.ValidatePath(projectRoot, relPath)
	if err != nil {
		return nil, err
	}

	display := relPath
	if display == "" {
		display = "."
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("Failed to stat '%s': %v", display, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("'%s' is not a directory", display)
	}

	children, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("Failed to read directory '%s': %v", display, err)
	}

	entries := make([]Entry, 0, len(children))
	for _, de := range children {
		if len(entries) >= maxListEntries {
			break
		}
		name := de.Name()
		if strings.HasPrefix(name, ".") || noiseDirs[name] {
			continue
		}
		if de.Type()&fs.ModeSymlink != 0 {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("Failed to read metadata for '%s': %v", name, err)
		}
		size := fi.Size()
		if fi.IsDir() {
			size = 0
		}
		entries = append(entries, Entry{
			Name:     name,
			IsDir:    fi.IsDir(),
			Size:     size,
			Modified: fi.ModTime().Unix(),
		})
	}
	return entries, nil
}
