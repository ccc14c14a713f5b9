package engine

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinchengGao-Infty/Creator-Studio/project"
)

// The test binary doubles as a scripted ai-engine stand-in: when the
// scenario variable is set, TestMain speaks the NDJSON protocol on
// stdin/stdout instead of running the test suite.
const fakeEngineEnv = "FAKE_AI_ENGINE_SCENARIO"

func TestMain(m *testing.M) {
	if scenario := os.Getenv(fakeEngineEnv); scenario != "" {
		runFakeEngine(scenario)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runFakeEngine(scenario string) {
	in := bufio.NewScanner(os.Stdin)
	readLine := func() string {
		if !in.Scan() {
			os.Exit(1)
		}
		return in.Text()
	}

	switch scenario {
	case "done":
		readLine()
		fmt.Println(`{"type":"done","content":"hello from engine"}`)

	case "error":
		readLine()
		fmt.Println(`{"type":"error","message":"provider exploded"}`)

	case "error-empty":
		readLine()
		fmt.Println(`{"type":"error"}`)

	case "tool-rounds":
		readLine()
		fmt.Println(`{"type":"tool_call","calls":[{"id":"c1","name":"read","args":{"path":"chapters/chapter_001.txt"}}]}`)
		if !strings.Contains(readLine(), `"tool_result"`) {
			os.Exit(1)
		}
		fmt.Println(`{"type":"tool_call","calls":[{"id":"c2","name":"list","args":{}},{"id":"c3","name":"read","args":{}}]}`)
		if !strings.Contains(readLine(), `"tool_result"`) {
			os.Exit(1)
		}
		fmt.Println(`{"type":"done","content":"story continues"}`)

	case "single-round":
		readLine()
		fmt.Println(`{"type":"tool_call","calls":[{"id":"s1","name":"read","args":{"path":"chapters/chapter_001.txt"}}]}`)
		// The orchestrator terminates the exchange here; block until killed.
		time.Sleep(30 * time.Second)

	case "null-calls":
		readLine()
		fmt.Println(`{"type":"tool_call"}`)

	case "bogus":
		readLine()
		fmt.Println(`{"type":"surprise","content":"??"}`)

	case "garbage":
		readLine()
		fmt.Println(`this is not json`)

	case "eof":
		readLine()
		// Exit without a terminal line.

	case "hang":
		readLine()
		time.Sleep(30 * time.Second)

	case "models":
		readLine()
		fmt.Println(`{"type":"models","models":["qwen3:32b","deepseek-r1"]}`)

	case "compact":
		readLine()
		fmt.Println(`{"type":"compact_summary","content":"earlier: hero reached the city"}`)
	}
}

func fakeEngine(t *testing.T, scenario string) *Engine {
	t.Helper()
	t.Setenv(fakeEngineEnv, scenario)
	return &Engine{Path: os.Args[0]}
}

func chatProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	_, err := project.Create(root, "engine-test")
	require.NoError(t, err)
	_, err = project.CreateChapterWithContent(root, "第一章", "夜色深沉。")
	require.NoError(t, err)
	return root
}

func chatRequest(root string) ChatRequest {
	return ChatRequest{
		Provider:   map[string]any{"providerType": "openai-compatible"},
		Parameters: map[string]any{"temperature": 0.7},
		Messages:   []any{map[string]any{"role": "user", "content": "继续写"}},
		ProjectDir: root,
		Mode:       ModeContinue,
		AllowWrite: true,
	}
}

func TestRunChatDone(t *testing.T) {
	e := fakeEngine(t, "done")
	resp, err := e.RunChat(chatRequest(chatProject(t)), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello from engine", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestRunChatError(t *testing.T) {
	e := fakeEngine(t, "error")
	_, err := e.RunChat(chatRequest(chatProject(t)), nil)
	assert.EqualError(t, err, "provider exploded")
}

func TestRunChatErrorWithoutMessage(t *testing.T) {
	e := fakeEngine(t, "error-empty")
	_, err := e.RunChat(chatRequest(chatProject(t)), nil)
	assert.EqualError(t, err, "Unknown error")
}

func TestRunChatToolRounds(t *testing.T) {
	root := chatProject(t)
	e := fakeEngine(t, "tool-rounds")

	var started, ended []string
	e.Events = &EventHandler{
		OnToolCallStart: func(ev ToolCallStartEvent) { started = append(started, ev.ID) },
		OnToolCallEnd:   func(ev ToolCallEndEvent) { ended = append(ended, ev.ID) },
	}

	resp, err := e.RunChat(chatRequest(root), nil)
	require.NoError(t, err)
	assert.Equal(t, "story continues", resp.Content)
	require.Len(t, resp.ToolCalls, 3)

	assert.Equal(t, []string{"c1", "c2", "c3"}, started)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ended)

	// c1 read an existing chapter.
	assert.Equal(t, StatusSuccess, resp.ToolCalls[0].Status)
	require.NotNil(t, resp.ToolCalls[0].Result)
	assert.Contains(t, *resp.ToolCalls[0].Result, "夜色深沉")
	require.NotNil(t, resp.ToolCalls[0].Duration)

	// c3 was a read with no path; the failure is reported, not fatal.
	assert.Equal(t, StatusError, resp.ToolCalls[2].Status)
	require.NotNil(t, resp.ToolCalls[2].Error)
	assert.Equal(t, "Missing path", *resp.ToolCalls[2].Error)
}

func TestRunChatSingleRoundTools(t *testing.T) {
	root := chatProject(t)
	e := fakeEngine(t, "single-round")

	req := chatRequest(root)
	req.SingleRoundTools = true

	resp, err := e.RunChat(req, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(resp.Content, "[tool] read\nid: s1\n"), resp.Content)
	assert.Contains(t, resp.Content, "args: {\"path\":\"chapters/chapter_001.txt\"}")
	assert.Contains(t, resp.Content, "result: ")
	assert.False(t, strings.HasSuffix(resp.Content, "\n"))
}

func TestRunChatInvalidToolCall(t *testing.T) {
	e := fakeEngine(t, "null-calls")
	_, err := e.RunChat(chatRequest(chatProject(t)), nil)
	assert.EqualError(t, err, "Invalid tool_call format")
}

func TestRunChatUnknownResponseType(t *testing.T) {
	e := fakeEngine(t, "bogus")
	_, err := e.RunChat(chatRequest(chatProject(t)), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown response type: ")
	assert.Contains(t, err.Error(), `"surprise"`)
}

func TestRunChatParseFailure(t *testing.T) {
	e := fakeEngine(t, "garbage")
	_, err := e.RunChat(chatRequest(chatProject(t)), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to parse response:")
	assert.Contains(t, err.Error(), `line="this is not json`)
}

func TestRunChatEngineExit(t *testing.T) {
	e := fakeEngine(t, "eof")
	_, err := e.RunChat(chatRequest(chatProject(t)), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai-engine exited unexpectedly:")
}

func TestRunChatCancellation(t *testing.T) {
	e := fakeEngine(t, "hang")
	cancel := NewCancelFlag()
	time.AfterFunc(150*time.Millisecond, cancel.Cancel)

	start := time.Now()
	_, err := e.RunChat(chatRequest(chatProject(t)), cancel)
	assert.EqualError(t, err, "已停止生成")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunChatTimeout(t *testing.T) {
	t.Setenv("CREATORAI_AI_CHAT_TIMEOUT_MS", "300")
	e := fakeEngine(t, "hang")

	start := time.Now()
	_, err := e.RunChat(chatRequest(chatProject(t)), nil)
	assert.EqualError(t, err, "AI 请求超时（请重试或更换模型/Provider）")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunCompleteDone(t *testing.T) {
	e := fakeEngine(t, "done")
	content, err := e.RunComplete(nil, nil, "system", []any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello from engine", content)
}

func TestRunCompleteTimeout(t *testing.T) {
	t.Setenv("CREATORAI_AI_COMPLETE_TIMEOUT_MS", "300")
	e := fakeEngine(t, "hang")

	_, err := e.RunComplete(nil, nil, "", []any{}, nil)
	assert.EqualError(t, err, "补全请求超时（请重试或更换模型/Provider）")
}

func TestFetchModels(t *testing.T) {
	e := fakeEngine(t, "models")
	models, err := e.FetchModels("openai-compatible", "http://localhost:8080/v1", "sk-x")
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen3:32b", "deepseek-r1"}, models)
}

func TestCompactHistory(t *testing.T) {
	e := fakeEngine(t, "compact")
	summary, err := e.CompactHistory(nil, nil, []any{})
	require.NoError(t, err)
	assert.Equal(t, "earlier: hero reached the city", summary)
}

func TestFormatToolRuns(t *testing.T) {
	ok := "done it"
	boom := "Missing path"
	runs := []ToolCall{
		{ID: "a", Name: "write", Args: map[string]any{"path": "x.txt"}, Status: StatusSuccess, Result: &ok},
		{ID: "b", Name: "read", Args: map[string]any{}, Status: StatusError, Error: &boom},
	}

	got := formatToolRuns(runs)
	want := "[tool] write\nid: a\nargs: {\"path\":\"x.txt\"}\nresult: done it\n\n" +
		"[tool] read\nid: b\nargs: {}\nerror: Missing path"
	assert.Equal(t, want, got)
}

func TestEnvTimeoutFallbacks(t *testing.T) {
	t.Setenv("CREATORAI_AI_CHAT_TIMEOUT_MS", "")
	assert.Equal(t, defaultChatTimeout, chatTimeout())

	t.Setenv("CREATORAI_AI_CHAT_TIMEOUT_MS", "oops")
	assert.Equal(t, defaultChatTimeout, chatTimeout())

	t.Setenv("CREATORAI_AI_CHAT_TIMEOUT_MS", "-5")
	assert.Equal(t, defaultChatTimeout, chatTimeout())

	t.Setenv("CREATORAI_AI_CHAT_TIMEOUT_MS", "2500")
	assert.Equal(t, 2500*time.Millisecond, chatTimeout())
}
