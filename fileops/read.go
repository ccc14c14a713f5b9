package fileops

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

const (
	defaultReadLimit = 2000
	maxLineChars     = 2000
	maxReadBytes     = 50 * 1024
)

// ReadResult is the serialized payload handed back to the engine.
type ReadResult struct {
	Content    string `json:"content"`
	TotalLines int    `json:"total_lines"`
	Truncated  bool   `json:"truncated"`
}

// Read returns a numbered window of a text file. offset selects the first
// emitted line, 0-based; a negative offset counts lines from the end of the
// file (offset -1 emits only the last line) and math.MinInt64 reads from the
// start. limit caps the number of emitted lines and is itself capped at the
// 2000-line default. Lines over 2000 characters are cut with an ellipsis and
// total output is capped at 50 KiB; either cut sets the Truncated flag.
func Read(projectRoot, relPath string, offset int64, limit int) (ReadResult, error) {
	abs, err := security.ValidatePath(projectRoot, relPath)
	if err != nil {
		return ReadResult{}, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return ReadResult{}, fmt.Errorf("Failed to open file '%s': %v", relPath, err)
	}
	defer f.Close()

	probe := make([]byte, binaryProbeSize)
	n, err := io.ReadFull(f, probe)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return ReadResult{}, fmt.Errorf("Failed to read file '%s': %v", relPath, err)
	}
	if looksBinary(probe[:n], n == binaryProbeSize) {
		return ReadResult{}, ErrBinaryFile
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ReadResult{}, fmt.Errorf("Failed to seek file '%s': %v", relPath, err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ReadResult{}, ErrBinaryFile
	}

	total := len(lines)
	start := 0
	switch {
	case offset == math.MinInt64:
		start = 0
	case offset < 0:
		if s := int64(total) + offset; s > 0 {
			start = int(s)
		}
	case offset > int64(total):
		start = total
	default:
		start = int(offset)
	}

	if limit <= 0 || limit > defaultReadLimit {
		limit = defaultReadLimit
	}

	var b strings.Builder
	truncated := false
	included := 0
	outBytes := 0
	for i := start; i < total; i++ {
		if included >= limit {
			truncated = true
			break
		}
		line := lines[i]
		if utf8.RuneCountInString(line) > maxLineChars {
			runes := []rune(line)
			line = string(runes[:maxLineChars]) + "..."
			truncated = true
		}
		formatted := fmt.Sprintf("%05d| %s\n", i+1, line)
		if outBytes+len(formatted) > maxReadBytes {
			truncated = true
			break
		}
		outBytes += len(formatted)
		b.WriteString(formatted)
		included++
	}

	return ReadResult{Content: b.String(), TotalLines: total, Truncated: truncated}, nil
}
