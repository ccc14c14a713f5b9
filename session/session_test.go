package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinchengGao-Infty/Creator-Studio/engine"
	"github.com/JinchengGao-Infty/Creator-Studio/project"
)

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	_, err := project.Create(root, "test-novel")
	require.NoError(t, err)
	return root
}

func TestCreateAndList(t *testing.T) {
	root := newProject(t)

	chapter := "chapter_001"
	first, err := Create(root, "outline talk", engine.ModeDiscussion, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, engine.ModeDiscussion, first.Mode)
	assert.Nil(t, first.ChapterID)

	time.Sleep(1100 * time.Millisecond)
	second, err := Create(root, "write chapter one", engine.ModeContinue, &chapter)
	require.NoError(t, err)
	require.NotNil(t, second.ChapterID)
	assert.Equal(t, chapter, *second.ChapterID)

	sessions, err := List(root)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	// Newest first.
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)

	// Per-session file exists alongside the index.
	_, err = os.Stat(filepath.Join(root, "sessions", second.ID+".json"))
	require.NoError(t, err)
}

func TestCreateRequiresValidProject(t *testing.T) {
	root := t.TempDir()
	_, err := Create(root, "x", engine.ModeDiscussion, nil)
	assert.EqualError(t, err, "Not a valid project: missing .creatorai/config.json")
}

func TestInvalidSessionID(t *testing.T) {
	root := newProject(t)

	_, err := Messages(root, "not-a-uuid")
	assert.EqualError(t, err, "Invalid session_id (expected UUID)")

	err = Rename(root, "../../etc/passwd", "evil")
	assert.EqualError(t, err, "Invalid session_id (expected UUID)")
}

func TestRename(t *testing.T) {
	root := newProject(t)
	sess, err := Create(root, "old name", engine.ModeDiscussion, nil)
	require.NoError(t, err)

	require.NoError(t, Rename(root, sess.ID, "new name"))

	sessions, err := List(root)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "new name", sessions[0].Name)
	assert.GreaterOrEqual(t, sessions[0].UpdatedAt, sess.UpdatedAt)

	assert.EqualError(t, Rename(root, "00000000-0000-0000-0000-000000000000", "x"), "Session not found")
}

func TestDelete(t *testing.T) {
	root := newProject(t)
	sess, err := Create(root, "doomed", engine.ModeDiscussion, nil)
	require.NoError(t, err)

	require.NoError(t, Delete(root, sess.ID))

	sessions, err := List(root)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = os.Stat(filepath.Join(root, "sessions", sess.ID+".json"))
	assert.True(t, os.IsNotExist(err))

	assert.EqualError(t, Delete(root, sess.ID), "Session not found")
}

func TestAddMessageAndMetadata(t *testing.T) {
	root := newProject(t)
	sess, err := Create(root, "chat", engine.ModeContinue, nil)
	require.NoError(t, err)

	_, err = AddMessage(root, sess.ID, RoleUser, "continue the story", nil)
	require.NoError(t, err)

	result := "File written successfully"
	duration := int64(12)
	meta := &Metadata{
		ToolCalls: []engine.ToolCall{{
			ID:       "call_1",
			Name:     "write",
			Args:     map[string]any{"path": "chapters/chapter_001.txt"},
			Status:   engine.StatusSuccess,
			Result:   &result,
			Duration: &duration,
		}},
	}
	msg, err := AddMessage(root, sess.ID, RoleAssistant, "done", meta)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	messages, err := Messages(root, sess.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	require.NotNil(t, messages[1].Metadata)
	require.Len(t, messages[1].Metadata.ToolCalls, 1)
	call := messages[1].Metadata.ToolCalls[0]
	assert.Equal(t, "write", call.Name)
	assert.Equal(t, engine.StatusSuccess, call.Status)
	require.NotNil(t, call.Result)
	assert.Equal(t, "File written successfully", *call.Result)

	_, err = AddMessage(root, "00000000-0000-0000-0000-000000000000", RoleUser, "x", nil)
	assert.EqualError(t, err, "Session not found")
}

func TestSearchAllByNameAndContent(t *testing.T) {
	root := newProject(t)

	a, err := Create(root, "dragon arc planning", engine.ModeDiscussion, nil)
	require.NoError(t, err)
	b, err := Create(root, "misc notes", engine.ModeDiscussion, nil)
	require.NoError(t, err)
	_, err = AddMessage(root, b.ID, RoleUser, "remember the silver key under the floorboards", nil)
	require.NoError(t, err)

	// Name match via fuzzy ranking.
	matches, err := SearchAll(root, "dragon")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, a.ID, matches[0].Session.ID)

	// Content match falls back to a substring snippet.
	matches, err = SearchAll(root, "silver key")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, b.ID, matches[0].Session.ID)
	assert.Contains(t, matches[0].Snippet, "silver key")

	// Empty query lists everything.
	matches, err = SearchAll(root, "   ")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
