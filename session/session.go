// Package session persists chat sessions under the project's sessions/
// directory: a lightweight index.json for listing plus one JSON file per
// session holding its full message log. All operations serialize through a
// package-level lock so concurrent UI actions never interleave the
// index-and-file write pair.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JinchengGao-Infty/Creator-Studio/engine"
	"github.com/JinchengGao-Infty/Creator-Studio/project"
	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
	RoleSystem    Role = "System"
)

type Session struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Mode      engine.Mode `json:"mode"`
	ChapterID *string     `json:"chapter_id"`
	CreatedAt int64       `json:"created_at"`
	UpdatedAt int64       `json:"updated_at"`
}

// Metadata carries optional per-message annotations, most importantly the
// tool-call transcript attached to assistant turns.
type Metadata struct {
	Summary   *string           `json:"summary"`
	WordCount *int              `json:"word_count"`
	Applied   *bool             `json:"applied"`
	ToolCalls []engine.ToolCall `json:"tool_calls"`
}

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp"`
	Metadata  *Metadata `json:"metadata"`
}

type index struct {
	Sessions []Session `json:"sessions"`
}

type sessionFile struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}

var fsLock sync.Mutex

func normalizeID(sessionID string) (string, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return "", fmt.Errorf("Invalid session_id (expected UUID)")
	}
	return id.String(), nil
}

func indexPath(projectRoot string) (string, error) {
	return security.ValidatePath(projectRoot, "sessions/index.json")
}

func filePath(projectRoot, sessionID string) (string, error) {
	id, err := normalizeID(sessionID)
	if err != nil {
		return "", err
	}
	return security.ValidatePath(projectRoot, fmt.Sprintf("sessions/%s.json", id))
}

func marshalPretty(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Serialize JSON failed: %v", err)
	}
	return append(data, '\n'), nil
}

func readIndex(projectRoot string) (index, error) {
	path, err := indexPath(projectRoot)
	if err != nil {
		return index{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return index{Sessions: []Session{}}, nil
		}
		return index{}, fmt.Errorf("Failed to read sessions/index.json: %v", err)
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return index{}, fmt.Errorf("Failed to parse sessions/index.json: %v", err)
	}
	if idx.Sessions == nil {
		idx.Sessions = []Session{}
	}
	return idx, nil
}

func writeIndex(projectRoot string, idx index) error {
	path, err := indexPath(projectRoot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("Failed to create directory: %v", err)
	}
	data, err := marshalPretty(idx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("Failed to write sessions/index.json: %v", err)
	}
	return nil
}

func readFile(projectRoot, sessionID string) (sessionFile, error) {
	path, err := filePath(projectRoot, sessionID)
	if err != nil {
		return sessionFile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sessionFile{}, fmt.Errorf("Session not found")
		}
		return sessionFile{}, fmt.Errorf("Failed to read session file: %v", err)
	}
	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return sessionFile{}, fmt.Errorf("Failed to parse session file: %v", err)
	}
	return file, nil
}

func writeFile(projectRoot, sessionID string, file sessionFile) error {
	path, err := filePath(projectRoot, sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("Failed to create directory: %v", err)
	}
	data, err := marshalPretty(file)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("Failed to write session file: %v", err)
	}
	return nil
}

func createFileNew(projectRoot, sessionID string, file sessionFile) error {
	path, err := filePath(projectRoot, sessionID)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("Session file already exists")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("Failed to create directory: %v", err)
	}
	data, err := marshalPretty(file)
	if err != nil {
		return err
	}
	handle, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("Failed to create session file: %v", err)
	}
	defer handle.Close()
	if _, err := handle.Write(data); err != nil {
		return fmt.Errorf("Failed to write session file: %v", err)
	}
	return nil
}

// List returns every session, most recently updated first.
func List(projectRoot string) ([]Session, error) {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(projectRoot); err != nil {
		return nil, err
	}
	idx, err := readIndex(projectRoot)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(idx.Sessions, func(i, j int) bool {
		return idx.Sessions[i].UpdatedAt > idx.Sessions[j].UpdatedAt
	})
	return idx.Sessions, nil
}

// Create allocates a session with an empty message log. The session file is
// created first with O_EXCL; if the index write then fails the file is
// removed so the two never disagree.
func Create(projectRoot, name string, mode engine.Mode, chapterID *string) (Session, error) {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(projectRoot); err != nil {
		return Session{}, err
	}
	idx, err := readIndex(projectRoot)
	if err != nil {
		return Session{}, err
	}

	now := time.Now().Unix()
	id := uuid.New().String()
	for _, s := range idx.Sessions {
		if s.ID == id {
			return Session{}, fmt.Errorf("Session id collision (unexpected)")
		}
	}

	sess := Session{
		ID:        id,
		Name:      name,
		Mode:      mode,
		ChapterID: chapterID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := createFileNew(projectRoot, id, sessionFile{Session: sess, Messages: []Message{}}); err != nil {
		return Session{}, err
	}

	idx.Sessions = append(idx.Sessions, sess)
	if err := writeIndex(projectRoot, idx); err != nil {
		if path, perr := filePath(projectRoot, id); perr == nil {
			os.Remove(path)
		}
		return Session{}, err
	}
	return sess, nil
}

// Rename updates the session's name in both the index and its file,
// restoring the previous contents of both if the second write fails.
func Rename(projectRoot, sessionID, newName string) error {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(projectRoot); err != nil {
		return err
	}
	id, err := normalizeID(sessionID)
	if err != nil {
		return err
	}
	idx, err := readIndex(projectRoot)
	if err != nil {
		return err
	}
	oldIndex, err := marshalPretty(idx)
	if err != nil {
		return err
	}

	pos := -1
	for i, s := range idx.Sessions {
		if s.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("Session not found")
	}

	file, err := readFile(projectRoot, id)
	if err != nil {
		return err
	}
	oldFile, err := marshalPretty(file)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	idx.Sessions[pos].Name = newName
	idx.Sessions[pos].UpdatedAt = now
	file.Session.Name = newName
	file.Session.UpdatedAt = now

	if err := writeFile(projectRoot, id, file); err != nil {
		return err
	}
	if err := writeIndex(projectRoot, idx); err != nil {
		if sessPath, perr := filePath(projectRoot, id); perr == nil {
			os.WriteFile(sessPath, oldFile, 0600)
		}
		if idxPath, perr := indexPath(projectRoot); perr == nil {
			os.WriteFile(idxPath, oldIndex, 0600)
		}
		return err
	}
	return nil
}

// Delete removes the session from the index and deletes its file, undoing
// the removal if the index write fails.
func Delete(projectRoot, sessionID string) error {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(projectRoot); err != nil {
		return err
	}
	id, err := normalizeID(sessionID)
	if err != nil {
		return err
	}
	idx, err := readIndex(projectRoot)
	if err != nil {
		return err
	}

	kept := idx.Sessions[:0]
	for _, s := range idx.Sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(idx.Sessions) {
		return fmt.Errorf("Session not found")
	}
	idx.Sessions = kept

	idxPath, err := indexPath(projectRoot)
	if err != nil {
		return err
	}
	var oldIndex []byte
	if data, err := os.ReadFile(idxPath); err == nil {
		oldIndex = data
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("Failed to read sessions/index.json: %v", err)
	}

	sessPath, err := filePath(projectRoot, id)
	if err != nil {
		return err
	}
	var oldSession []byte
	if data, err := os.ReadFile(sessPath); err == nil {
		oldSession = data
		if err := os.Remove(sessPath); err != nil {
			return fmt.Errorf("Failed to delete session file: %v", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("Failed to read session file: %v", err)
	}

	if err := writeIndex(projectRoot, idx); err != nil {
		if oldSession != nil {
			os.WriteFile(sessPath, oldSession, 0600)
		}
		if oldIndex != nil {
			os.WriteFile(idxPath, oldIndex, 0600)
		} else {
			os.Remove(idxPath)
		}
		return err
	}
	return nil
}

// Messages returns the session's full message log.
func Messages(projectRoot, sessionID string) ([]Message, error) {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(projectRoot); err != nil {
		return nil, err
	}
	id, err := normalizeID(sessionID)
	if err != nil {
		return nil, err
	}
	file, err := readFile(projectRoot, id)
	if err != nil {
		return nil, err
	}
	return file.Messages, nil
}

// AddMessage appends a message and bumps the session's updated_at in both
// the index and the session file.
func AddMessage(projectRoot, sessionID string, role Role, content string, metadata *Metadata) (Message, error) {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(projectRoot); err != nil {
		return Message{}, err
	}
	id, err := normalizeID(sessionID)
	if err != nil {
		return Message{}, err
	}
	idx, err := readIndex(projectRoot)
	if err != nil {
		return Message{}, err
	}
	oldIndex, err := marshalPretty(idx)
	if err != nil {
		return Message{}, err
	}

	pos := -1
	for i, s := range idx.Sessions {
		if s.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return Message{}, fmt.Errorf("Session not found")
	}

	file, err := readFile(projectRoot, id)
	if err != nil {
		return Message{}, err
	}
	oldFile, err := marshalPretty(file)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().Unix()
	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	}
	file.Messages = append(file.Messages, msg)
	file.Session.UpdatedAt = now
	idx.Sessions[pos].UpdatedAt = now

	if err := writeFile(projectRoot, id, file); err != nil {
		return Message{}, err
	}
	if err := writeIndex(projectRoot, idx); err != nil {
		if idxPath, perr := indexPath(projectRoot); perr == nil {
			os.WriteFile(idxPath, oldIndex, 0600)
		}
		if sessPath, perr := filePath(projectRoot, id); perr == nil {
			os.WriteFile(sessPath, oldFile, 0600)
		}
		return Message{}, err
	}
	return msg, nil
}
