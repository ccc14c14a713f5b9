package engine

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/JinchengGao-Infty/Creator-Studio/logging"
)

const (
	defaultChatTimeout     = 10 * time.Minute
	defaultCompleteTimeout = 30 * time.Second
	chatPollInterval       = 100 * time.Millisecond
	completePollInterval   = 50 * time.Millisecond
)

// User-facing terminal states. Cancellation and timeout are states, not
// exceptions, and the child is always reaped before they are returned.
const (
	msgCancelled       = "已停止生成"
	msgChatTimeout     = "AI 请求超时（请重试或更换模型/Provider）"
	msgCompleteTimeout = "补全请求超时（请重试或更换模型/Provider）"
)

func envTimeout(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func chatTimeout() time.Duration {
	return envTimeout("CREATORAI_AI_CHAT_TIMEOUT_MS", defaultChatTimeout)
}

func completeTimeout() time.Duration {
	return envTimeout("CREATORAI_AI_COMPLETE_TIMEOUT_MS", defaultCompleteTimeout)
}

// Engine spawns and talks to the external ai-engine process. The zero value
// is usable; Path overrides discovery and Knowledge backs the rag_search
// tool.
type Engine struct {
	Path      string
	Events    *EventHandler
	Knowledge RAGSearcher
}

type child struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan lineEvent
	done  chan struct{}
}

type lineEvent struct {
	line string
	err  error
}

func (e *Engine) spawn(cancel *CancelFlag) (*child, error) {
	path := e.Path
	if path == "" {
		var err error
		path, err = EnginePath()
		if err != nil {
			return nil, err
		}
	}

	cmd := commandFor(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("Failed to get stdin: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("Failed to get stdout: %v", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		if isScriptPath(path) && errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf(
				"Failed to spawn ai-engine: %v. `bun` is required to run `%s`. Install Bun or use a bundled sidecar build.",
				err, path)
		}
		return nil, fmt.Errorf("Failed to spawn ai-engine: %v", err)
	}

	c := &child{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan lineEvent, 16),
		done:  make(chan struct{}),
	}
	go c.readLoop(stdout, cancel)
	return c, nil
}

// readLoop owns the child's stdout. It forwards each complete line, or a
// sentinel error on end-of-stream, and exits promptly once the request is
// cancelled or finished.
func (c *child) readLoop(stdout io.Reader, cancel *CancelFlag) {
	br := bufio.NewReader(stdout)
	for {
		if cancel.Cancelled() {
			return
		}
		line, err := br.ReadString('\n')
		if err == nil {
			select {
			case c.lines <- lineEvent{line: line}:
			case <-c.done:
				return
			}
			continue
		}
		ev := lineEvent{err: fmt.Errorf("Failed to read from stdout: %v", err)}
		if errors.Is(err, io.EOF) {
			ev = lineEvent{err: errors.New("EOF")}
		}
		select {
		case c.lines <- ev:
		case <-c.done:
		}
		return
	}
}

func (c *child) finish() {
	close(c.done)
}

// killWait tears the child down on every abnormal exit path. Failures are
// logged but never mask the primary error.
func (c *child) killWait() {
	c.stdin.Close()
	if err := c.cmd.Process.Kill(); err != nil {
		logging.L().Debugw("failed to kill ai-engine", "err", err)
	}
	if err := c.cmd.Wait(); err != nil {
		logging.L().Debugw("ai-engine wait after kill", "err", err)
	}
}

// waitStatus closes stdin and reaps the child, reporting its exit status.
func (c *child) waitStatus() string {
	c.stdin.Close()
	if err := c.cmd.Wait(); err != nil {
		return err.Error()
	}
	return c.cmd.ProcessState.String()
}

func (c *child) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.stdin.Write(append(data, '\n'))
	return err
}

func orUnknown(message string) string {
	if message == "" {
		return "Unknown error"
	}
	return message
}

// RunChat drives one conversational exchange, arbitrating as many tool-call
// rounds as the engine requests. cancel may be nil.
func (e *Engine) RunChat(req ChatRequest, cancel *CancelFlag) (*ChatResponse, error) {
	if cancel == nil {
		cancel = NewCancelFlag()
	}

	c, err := e.spawn(cancel)
	if err != nil {
		return nil, err
	}
	defer c.finish()

	init := map[string]any{
		"type":         "chat",
		"provider":     req.Provider,
		"parameters":   req.Parameters,
		"systemPrompt": req.SystemPrompt,
		"messages":     req.Messages,
	}
	if err := c.writeLine(init); err != nil {
		c.killWait()
		return nil, fmt.Errorf("Failed to write to stdin: %v", err)
	}

	dispatcher := &Dispatcher{
		ProjectDir: req.ProjectDir,
		Mode:       req.Mode,
		AllowWrite: req.AllowWrite,
		ChapterID:  req.ChapterID,
		Knowledge:  e.Knowledge,
	}

	var toolCalls []ToolCall
	timeout := chatTimeout()
	lastProgress := time.Now()

	for {
		if cancel.Cancelled() {
			c.killWait()
			return nil, errors.New(msgCancelled)
		}
		if time.Since(lastProgress) > timeout {
			c.killWait()
			return nil, errors.New(msgChatTimeout)
		}

		var ev lineEvent
		select {
		case ev = <-c.lines:
		case <-time.After(chatPollInterval):
			continue
		}
		if ev.err != nil {
			return nil, fmt.Errorf("ai-engine exited unexpectedly: %s. %v", c.waitStatus(), ev.err)
		}
		lastProgress = time.Now()

		var resp engineLine
		if err := json.Unmarshal([]byte(ev.line), &resp); err != nil {
			c.killWait()
			return nil, fmt.Errorf("Failed to parse response: %v. line=%q", err, ev.line)
		}

		switch resp.Type {
		case "done":
			c.stdin.Close()
			_ = c.cmd.Wait()
			return &ChatResponse{Content: resp.Content, ToolCalls: toolCalls}, nil

		case "error":
			c.stdin.Close()
			_ = c.cmd.Wait()
			return nil, errors.New(orUnknown(resp.Message))

		case "tool_call":
			if resp.Calls == nil {
				c.killWait()
				return nil, errors.New("Invalid tool_call format")
			}
			results := make([]map[string]any, 0, len(resp.Calls))
			for _, call := range resp.Calls {
				if cancel.Cancelled() {
					c.killWait()
					return nil, errors.New(msgCancelled)
				}

				args := call.Args
				if args == nil {
					args = map[string]any{}
				}
				if e.Events != nil && e.Events.OnToolCallStart != nil {
					e.Events.OnToolCallStart(ToolCallStartEvent{ID: call.ID, Name: call.Name, Args: args})
				}

				started := time.Now()
				value, execErr := dispatcher.Execute(call.Name, args)
				duration := time.Since(started).Milliseconds()

				tc := ToolCall{
					ID:       call.ID,
					Name:     call.Name,
					Args:     args,
					Duration: &duration,
				}
				if execErr != nil {
					msg := execErr.Error()
					tc.Status = StatusError
					tc.Error = &msg
					results = append(results, map[string]any{"id": call.ID, "result": "", "error": msg})
				} else {
					v := value
					tc.Status = StatusSuccess
					tc.Result = &v
					results = append(results, map[string]any{"id": call.ID, "result": v})
				}

				if e.Events != nil && e.Events.OnToolCallEnd != nil {
					e.Events.OnToolCallEnd(ToolCallEndEvent{ID: call.ID, Result: tc.Result, Error: tc.Error})
				}
				toolCalls = append(toolCalls, tc)
			}

			if req.SingleRoundTools {
				content := formatToolRuns(toolCalls)
				c.killWait()
				return &ChatResponse{Content: content, ToolCalls: toolCalls}, nil
			}

			toolResult := map[string]any{"type": "tool_result", "results": results}
			if err := c.writeLine(toolResult); err != nil {
				c.killWait()
				return nil, fmt.Errorf("Failed to write tool result: %v", err)
			}

		default:
			c.killWait()
			return nil, fmt.Errorf("Unknown response type: %s", strings.TrimSpace(ev.line))
		}
	}
}

// RunComplete drives one single-shot completion with the shorter deadline.
func (e *Engine) RunComplete(provider, parameters map[string]any, systemPrompt string, messages []any, cancel *CancelFlag) (string, error) {
	if cancel == nil {
		cancel = NewCancelFlag()
	}

	c, err := e.spawn(cancel)
	if err != nil {
		return "", err
	}
	defer c.finish()

	init := map[string]any{
		"type":         "complete",
		"provider":     provider,
		"parameters":   parameters,
		"systemPrompt": systemPrompt,
		"messages":     messages,
	}
	if err := c.writeLine(init); err != nil {
		c.killWait()
		return "", fmt.Errorf("Failed to write to stdin: %v", err)
	}

	timeout := completeTimeout()
	started := time.Now()

	for {
		if cancel.Cancelled() {
			c.killWait()
			return "", errors.New(msgCancelled)
		}
		if time.Since(started) > timeout {
			c.killWait()
			return "", errors.New(msgCompleteTimeout)
		}

		var ev lineEvent
		select {
		case ev = <-c.lines:
		case <-time.After(completePollInterval):
			continue
		}
		if ev.err != nil {
			return "", fmt.Errorf("ai-engine exited unexpectedly: %s. %v", c.waitStatus(), ev.err)
		}

		var resp engineLine
		if err := json.Unmarshal([]byte(ev.line), &resp); err != nil {
			c.killWait()
			return "", fmt.Errorf("Failed to parse response: %v. line=%q", err, ev.line)
		}

		switch resp.Type {
		case "done":
			c.stdin.Close()
			_ = c.cmd.Wait()
			return resp.Content, nil
		case "error":
			c.stdin.Close()
			_ = c.cmd.Wait()
			return "", errors.New(orUnknown(resp.Message))
		default:
			c.killWait()
			return "", fmt.Errorf("Unknown response type: %s", strings.TrimSpace(ev.line))
		}
	}
}

// FetchModels asks the engine which models a provider endpoint exposes.
func (e *Engine) FetchModels(providerType, baseURL, apiKey string) ([]string, error) {
	c, err := e.spawn(NewCancelFlag())
	if err != nil {
		return nil, err
	}
	defer c.finish()

	req := map[string]any{
		"type":         "fetch_models",
		"providerType": providerType,
		"baseURL":      baseURL,
		"apiKey":       apiKey,
	}
	if err := c.writeLine(req); err != nil {
		c.killWait()
		return nil, fmt.Errorf("Failed to write to stdin: %v", err)
	}
	c.stdin.Close()

	ev := <-c.lines
	if ev.err != nil {
		return nil, fmt.Errorf("ai-engine exited unexpectedly: %s. %v", c.waitStatus(), ev.err)
	}

	var resp engineLine
	if err := json.Unmarshal([]byte(ev.line), &resp); err != nil {
		c.killWait()
		return nil, fmt.Errorf("Failed to parse response: %v. line=%q", err, ev.line)
	}

	switch resp.Type {
	case "models":
		_ = c.cmd.Wait()
		return resp.Models, nil
	case "error":
		_ = c.cmd.Wait()
		return nil, errors.New(orUnknown(resp.Message))
	default:
		c.killWait()
		return nil, fmt.Errorf("Unknown response: %s", strings.TrimSpace(ev.line))
	}
}

// CompactHistory asks the engine to condense a message history into a
// summary suitable for carrying context across a trimmed transcript.
func (e *Engine) CompactHistory(provider, parameters map[string]any, messages []any) (string, error) {
	c, err := e.spawn(NewCancelFlag())
	if err != nil {
		return "", err
	}
	defer c.finish()

	req := map[string]any{
		"type":       "compact",
		"provider":   provider,
		"parameters": parameters,
		"messages":   messages,
	}
	if err := c.writeLine(req); err != nil {
		c.killWait()
		return "", fmt.Errorf("Failed to write to stdin: %v", err)
	}
	c.stdin.Close()

	ev := <-c.lines
	if ev.err != nil {
		return "", fmt.Errorf("ai-engine exited unexpectedly: %s. %v", c.waitStatus(), ev.err)
	}

	var resp engineLine
	if err := json.Unmarshal([]byte(ev.line), &resp); err != nil {
		c.killWait()
		return "", fmt.Errorf("Failed to parse response: %v. line=%q", err, ev.line)
	}

	switch resp.Type {
	case "compact_summary":
		_ = c.cmd.Wait()
		return resp.Content, nil
	case "error":
		_ = c.cmd.Wait()
		return "", errors.New(orUnknown(resp.Message))
	default:
		c.killWait()
		return "", fmt.Errorf("Unknown response: %s", strings.TrimSpace(ev.line))
	}
}

// formatToolRuns renders executed tool calls as the final answer for
// single-round providers.
func formatToolRuns(runs []ToolCall) string {
	var b strings.Builder
	for _, run := range runs {
		argsJSON := "{}"
		if data, err := json.Marshal(run.Args); err == nil {
			argsJSON = string(data)
		}
		fmt.Fprintf(&b, "[tool] %s\n", run.Name)
		fmt.Fprintf(&b, "id: %s\n", run.ID)
		fmt.Fprintf(&b, "args: %s\n", argsJSON)
		if run.Result != nil {
			fmt.Fprintf(&b, "result: %s\n\n", *run.Result)
		} else if run.Error != nil {
			fmt.Fprintf(&b, "error: %s\n\n", *run.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
