package fileops

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

const maxSearchMatches = 50

// Match is one substring hit inside a searched file.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// Search walks the tree under relPath (the project root when empty) and
// returns up to 50 substring matches in traversal order. Hidden entries,
// noise directories and binary-looking files are skipped.
func Search(projectRoot, query, relPath string) ([]Match, error) {
	start, err := security.ValidatePath(projectRoot, relPath)
	if err != nil {
		return nil, err
	}
	root, err := security.ValidatePath(projectRoot, "")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(start)
	if err != nil {
		return nil, fmt.Errorf("Failed to stat path: %v", err)
	}

	matches := make([]Match, 0, 16)
	if !info.IsDir() {
		if err := searchFile(root, start, query, &matches); err != nil {
			return nil, err
		}
		return matches, nil
	}
	if err := searchDir(root, start, query, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func searchDir(root, dir, query string, matches *[]Match) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("Failed to read dir: %v", err)
	}

	for _, de := range entries {
		if len(*matches) >= maxSearchMatches {
			return nil
		}
		name := de.Name()
		if strings.HasPrefix(name, ".") || noiseDirs[name] {
			continue
		}
		if de.Type()&fs.ModeSymlink != 0 {
			continue
		}
		full := filepath.Join(dir, name)
		if de.IsDir() {
			if err := searchDir(root, full, query, matches); err != nil {
				return err
			}
			continue
		}
		if err := searchFile(root, full, query, matches); err != nil {
			return err
		}
	}
	return nil
}

func searchFile(root, path, query string, matches *[]Match) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("Failed to open file: %v", err)
	}
	defer f.Close()

	probe := make([]byte, binaryProbeSize)
	n, err := io.ReadFull(f, probe)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("Failed to read file: %v", err)
	}
	if looksBinary(probe[:n], n == binaryProbeSize) {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("Failed to seek file: %v", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.Contains(line, query) {
			*matches = append(*matches, Match{File: rel, Line: lineNo, Content: line})
			if len(*matches) >= maxSearchMatches {
				return nil
			}
		}
	}
	// Scanner errors here mean undecodable content; treat like binary.
	return nil
}
