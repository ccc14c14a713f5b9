package fileops

import (
	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

// Write replaces the file at relPath with content, creating parent
// directories as needed. Existing files are backed up and the replace is
// atomic.
func Write(projectRoot, relPath, content string) error {
	abs, err := security.ValidatePath(projectRoot, relPath)
	if err != nil {
		return err
	}
	_, err = WriteWithBackup(projectRoot, abs, []byte(content))
	return err
}

// Append adds content to the end of the file at relPath, creating it if
// missing. An existing file is backed up first.
func Append(projectRoot, relPath, content string) error {
	abs, err := security.ValidatePath(projectRoot, relPath)
	if err != nil {
		return err
	}
	return AppendWithBackup(projectRoot, abs, []byte(content))
}
