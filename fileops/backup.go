// Package fileops implements the tool library: windowed reads, protected
// writes and appends, directory listing and substring search, all confined
// to a validated project root.
package fileops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// relForDisplay turns an absolute in-project path back into the relative
// form used in error messages, so errors never leak paths outside the root.
func relForDisplay(projectRoot, absPath string) string {
	rel, err := filepath.Rel(projectRoot, absPath)
	if err != nil {
		return filepath.Base(absPath)
	}
	return filepath.ToSlash(rel)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// BackupExisting copies the current content of absPath to
// .backup/<unix-millis>/<relative-path> so a failed mutation can be rolled
// back. Returns "" when the target does not exist yet (nothing to restore).
func BackupExisting(projectRoot, absPath string) (string, error) {
	rel := relForDisplay(projectRoot, absPath)

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("Failed to stat '%s': %v", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("'%s' is a directory", rel)
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	backupPath := filepath.Join(projectRoot, ".backup", ts, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return "", fmt.Errorf("Failed to create backup directory: %v", err)
	}
	if err := copyFile(absPath, backupPath); err != nil {
		return "", fmt.Errorf("Failed to backup '%s': %v", rel, err)
	}
	return backupPath, nil
}

func restoreBackup(absPath, backupPath string) error {
	return copyFile(backupPath, absPath)
}

// WriteWithBackup replaces absPath atomically: a pre-existing target is
// backed up, content goes to a sibling temp file, and the temp file is
// renamed over the target. On failure the backup is restored (or a partial
// temp file removed) so the visible file is never half-written. Returns the
// backup path, or "" if the target was new.
func WriteWithBackup(projectRoot, absPath string, data []byte) (string, error) {
	rel := relForDisplay(projectRoot, absPath)

	backup, err := BackupExisting(projectRoot, absPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("Failed to create directory for '%s': %v", rel, err)
	}

	tmp := filepath.Join(
		filepath.Dir(absPath),
		fmt.Sprintf("%s.tmp.%d", filepath.Base(absPath), time.Now().UnixMilli()),
	)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("Failed to write temp file for '%s': %v", rel, err)
	}

	if err := os.Rename(tmp, absPath); err == nil {
		return backup, nil
	} else if _, statErr := os.Stat(absPath); statErr != nil {
		_ = os.Remove(tmp)
		if backup != "" {
			_ = restoreBackup(absPath, backup)
		}
		return "", fmt.Errorf("Failed to move file into place '%s': %v", rel, err)
	}

	// Rename over an existing file can fail on some platforms. Clear the
	// target and retry once before rolling back.
	if err := os.Remove(absPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("Failed to replace '%s': %v", rel, err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		if backup != "" {
			_ = restoreBackup(absPath, backup)
		}
		return "", fmt.Errorf("Failed to replace '%s': %v", rel, err)
	}
	return backup, nil
}

// AppendWithBackup appends data to absPath, creating it if missing. An
// existing file is backed up first and a newline is inserted when its last
// byte is not one, so appended content always starts on its own line. On
// failure the backup is restored, or a newly created file is removed.
func AppendWithBackup(projectRoot, absPath string, data []byte) error {
	rel := relForDisplay(projectRoot, absPath)

	info, err := os.Stat(absPath)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("Failed to stat '%s': %v", rel, err)
	}
	if existed && info.IsDir() {
		return fmt.Errorf("'%s' is a directory", rel)
	}

	var backup string
	needsNewline := false
	if existed {
		backup, err = BackupExisting(projectRoot, absPath)
		if err != nil {
			return err
		}
		if info.Size() > 0 {
			last, err := lastByte(absPath, info.Size())
			if err != nil {
				return fmt.Errorf("Failed to read '%s': %v", rel, err)
			}
			needsNewline = last != '\n'
		}
	} else if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("Failed to create directory for '%s': %v", rel, err)
	}

	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("Failed to open '%s': %v", rel, err)
	}

	payload := data
	if needsNewline {
		payload = append([]byte{'\n'}, data...)
	}

	rollback := func() {
		if existed {
			_ = restoreBackup(absPath, backup)
		} else {
			_ = os.Remove(absPath)
		}
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		rollback()
		return fmt.Errorf("Failed to append to '%s': %v", rel, err)
	}
	if err := f.Close(); err != nil {
		rollback()
		return fmt.Errorf("Failed to append to '%s': %v", rel, err)
	}
	return nil
}

func lastByte(path string, size int64) (byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, size-1); err != nil {
		return 0, err
	}
	return buf[0], nil
}
