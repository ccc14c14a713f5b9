// Package security contains the path containment layer every tool operation
// goes through before touching the project directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath = errors.New("Invalid path")
	ErrPathEscape  = errors.New("Path escapes project directory")
)

// ValidatePath resolves relativePath against projectRoot and returns an
// absolute path guaranteed to stay inside the canonical root.
//
// Absolute inputs and any ".." component are rejected outright, with no
// normalization that could cancel a ".." out; "." segments are ignored.
// Because the final segment may not exist yet (a file about to be created),
// containment is checked on the deepest existing ancestor after resolving
// its symlinks, and the non-existing suffix is re-attached afterwards. This
// defeats symlinks inside the project that point outside of it.
func ValidatePath(projectRoot, relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) ||
		strings.HasPrefix(relativePath, "/") ||
		strings.HasPrefix(relativePath, "\\") {
		return "", ErrInvalidPath
	}

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}

	parts := strings.FieldsFunc(relativePath, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	candidate := canonRoot
	for _, p := range parts {
		switch p {
		case ".":
			continue
		case "..":
			return "", ErrInvalidPath
		}
		candidate = filepath.Join(candidate, p)
	}

	// Walk up to the deepest existing ancestor so brand-new files still get
	// their parent chain checked.
	ancestor := candidate
	var suffix []string
	for {
		if _, err := os.Lstat(ancestor); err == nil {
			break
		}
		suffix = append([]string{filepath.Base(ancestor)}, suffix...)
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}

	resolved, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved != canonRoot && !strings.HasPrefix(resolved, canonRoot+string(filepath.Separator)) {
		return "", ErrPathEscape
	}

	return filepath.Join(append([]string{resolved}, suffix...)...), nil
}
