package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinchengGao-Infty/Creator-Studio/knowledge"
	"github.com/JinchengGao-Infty/Creator-Studio/project"
)

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	_, err := project.Create(root, "dispatch-test")
	require.NoError(t, err)
	return root
}

func discussionDispatcher(root string) *Dispatcher {
	return &Dispatcher{ProjectDir: root, Mode: ModeDiscussion}
}

func TestDiscussionModeBlocksWrites(t *testing.T) {
	root := newProject(t)
	d := discussionDispatcher(root)

	for _, tool := range []string{"write", "append", "save_summary"} {
		_, err := d.Execute(tool, map[string]any{"path": "notes.txt", "content": "x"})
		assert.EqualError(t, err, "Tool not allowed in Discussion mode", tool)
	}

	// The gate fires before any file is touched.
	_, err := os.Stat(filepath.Join(root, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestContinueModeRequiresConfirmation(t *testing.T) {
	root := newProject(t)
	d := &Dispatcher{ProjectDir: root, Mode: ModeContinue, AllowWrite: false}

	_, err := d.Execute("write", map[string]any{"path": "notes.txt", "content": "x"})
	assert.EqualError(t, err, "Tool not allowed before user confirmation")

	// Read tools pass regardless of confirmation.
	_, err = d.Execute("list", map[string]any{})
	assert.NoError(t, err)
}

func TestUnknownToolAndMissingArgs(t *testing.T) {
	root := newProject(t)
	d := &Dispatcher{ProjectDir: root, Mode: ModeContinue, AllowWrite: true}

	_, err := d.Execute("format_disk", map[string]any{})
	assert.EqualError(t, err, "Unknown tool: format_disk")

	_, err = d.Execute("read", map[string]any{})
	assert.EqualError(t, err, "Missing path")

	_, err = d.Execute("write", map[string]any{"path": "a.txt"})
	assert.EqualError(t, err, "Missing content")

	_, err = d.Execute("search", map[string]any{})
	assert.EqualError(t, err, "Missing query")

	_, err = d.Execute("save_summary", map[string]any{"summary": "x"})
	assert.EqualError(t, err, "Missing chapterId")

	_, err = d.Execute("save_summary", map[string]any{"chapterId": "chapter_001"})
	assert.EqualError(t, err, "Missing summary")

	_, err = d.Execute("rag_search", map[string]any{})
	assert.EqualError(t, err, "Missing query")
}

func TestWriteThenRead(t *testing.T) {
	root := newProject(t)
	d := &Dispatcher{ProjectDir: root, Mode: ModeContinue, AllowWrite: true}

	out, err := d.Execute("write", map[string]any{"path": "notes.txt", "content": "line one\nline two\n"})
	require.NoError(t, err)
	assert.Equal(t, "File written successfully", out)

	out, err = d.Execute("read", map[string]any{"path": "notes.txt"})
	require.NoError(t, err)

	var res struct {
		Content    string `json:"content"`
		TotalLines int    `json:"total_lines"`
		Truncated  bool   `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.TotalLines)
	assert.Contains(t, res.Content, "00001| line one")
	assert.False(t, res.Truncated)
}

func TestAppendSyncsChapterIndex(t *testing.T) {
	root := newProject(t)
	ch, err := project.CreateChapter(root, "第一章")
	require.NoError(t, err)
	require.Equal(t, 0, ch.WordCount)

	d := &Dispatcher{ProjectDir: root, Mode: ModeContinue, AllowWrite: true}
	out, err := d.Execute("append", map[string]any{
		"path":    "chapters/" + ch.ID + ".txt",
		"content": "他推开门，风雪灌了进来。",
	})
	require.NoError(t, err)
	assert.Equal(t, "Content appended successfully", out)

	chapters, err := project.ListChapters(root)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Greater(t, chapters[0].WordCount, 0)
}

func TestGetChapterInfo(t *testing.T) {
	root := newProject(t)
	ch, err := project.CreateChapterWithContent(root, "第一章", "风雪夜归人。")
	require.NoError(t, err)

	d := &Dispatcher{ProjectDir: root, Mode: ModeDiscussion}
	_, err = d.Execute("get_chapter_info", map[string]any{})
	assert.EqualError(t, err, "No chapter selected")

	d.ChapterID = ch.ID
	out, err := d.Execute("get_chapter_info", map[string]any{})
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, ch.ID, info["chapterId"])
}

func TestSaveSummaryAcceptsBothArgSpellings(t *testing.T) {
	root := newProject(t)
	ch, err := project.CreateChapter(root, "第一章")
	require.NoError(t, err)

	d := &Dispatcher{ProjectDir: root, Mode: ModeContinue, AllowWrite: true}

	_, err = d.Execute("save_summary", map[string]any{"chapterId": ch.ID, "summary": "主角入城"})
	require.NoError(t, err)
	_, err = d.Execute("save_summary", map[string]any{"chapter_id": ch.ID, "summary": "主角遇袭"})
	require.NoError(t, err)

	entries, err := project.LoadSummaries(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	latest, err := project.LatestSummary(root, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "主角遇袭", latest.Summary)
}

type stubSearcher struct {
	gotQuery string
	gotTopK  int
}

func (s *stubSearcher) Search(_ context.Context, query string, topK int) ([]knowledge.Hit, error) {
	s.gotQuery = query
	s.gotTopK = topK
	return []knowledge.Hit{{Path: "knowledge/world.md", Score: 0.9, Text: "hit"}}, nil
}

func TestRagSearch(t *testing.T) {
	root := newProject(t)

	d := &Dispatcher{ProjectDir: root, Mode: ModeDiscussion}
	_, err := d.Execute("rag_search", map[string]any{"query": "dragon"})
	assert.EqualError(t, err, "Knowledge index not available")

	stub := &stubSearcher{}
	d.Knowledge = stub

	out, err := d.Execute("rag_search", map[string]any{"query": "dragon"})
	require.NoError(t, err)
	assert.Equal(t, "dragon", stub.gotQuery)
	assert.Equal(t, 5, stub.gotTopK)
	assert.Contains(t, out, `"path":"knowledge/world.md"`)

	// Both spellings of the top-k argument land.
	_, err = d.Execute("rag_search", map[string]any{"query": "x", "topK": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, stub.gotTopK)

	_, err = d.Execute("rag_search", map[string]any{"query": "x", "top_k": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, stub.gotTopK)
}

func TestArgInt64Forms(t *testing.T) {
	cases := map[string]struct {
		in   any
		want int64
		ok   bool
	}{
		"float":  {float64(9), 9, true},
		"int":    {7, 7, true},
		"int64":  {int64(-2), -2, true},
		"number": {json.Number("12"), 12, true},
		"string": {"12", 0, false},
		"nil":    {nil, 0, false},
	}
	for name, tc := range cases {
		got, ok := argInt64(tc.in)
		assert.Equal(t, tc.ok, ok, name)
		assert.Equal(t, tc.want, got, name)
	}
}
