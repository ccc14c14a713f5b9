// Package engine owns the bridge to the external ai-engine process: the
// newline-delimited JSON protocol, the tool dispatcher and its permission
// gates, and per-request cancellation.
package engine

import "sync/atomic"

// Mode mirrors the session mode the UI runs a request under. Discussion
// never mutates project files; Continue may, once the user has confirmed.
type Mode string

const (
	ModeDiscussion Mode = "Discussion"
	ModeContinue   Mode = "Continue"
)

type ToolCallStatus string

const (
	StatusCalling ToolCallStatus = "calling"
	StatusSuccess ToolCallStatus = "success"
	StatusError   ToolCallStatus = "error"
)

// ToolCall records one engine-requested call, finalized exactly once after
// execution.
type ToolCall struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
	Status   ToolCallStatus `json:"status"`
	Result   *string        `json:"result"`
	Error    *string        `json:"error"`
	Duration *int64         `json:"duration"`
}

// ChatRequest is immutable for the duration of one exchange.
type ChatRequest struct {
	Provider     map[string]any
	Parameters   map[string]any
	SystemPrompt string
	Messages     []any
	ProjectDir   string
	Mode         Mode
	ChapterID    string
	AllowWrite   bool

	// SingleRoundTools marks providers that cannot accept a tool_result
	// round; after executing one round of calls the exchange is terminated
	// and a formatted transcript returned instead.
	SingleRoundTools bool
}

type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

type ToolCallStartEvent struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolCallEndEvent struct {
	ID     string
	Result *string
	Error  *string
}

// EventHandler receives tool-call notifications, invoked synchronously from
// the protocol loop. Either hook may be nil.
type EventHandler struct {
	OnToolCallStart func(ToolCallStartEvent)
	OnToolCallEnd   func(ToolCallEndEvent)
}

// CancelFlag is the shared cancellation signal for one in-flight request.
// Setting it is idempotent and safe from any goroutine.
type CancelFlag struct {
	set atomic.Bool
}

func NewCancelFlag() *CancelFlag { return &CancelFlag{} }

func (c *CancelFlag) Cancel() { c.set.Store(true) }

func (c *CancelFlag) Cancelled() bool { return c.set.Load() }

// Wire shapes for the NDJSON protocol.

type engineLine struct {
	Type    string     `json:"type"`
	Content string     `json:"content"`
	Message string     `json:"message"`
	Calls   []wireCall `json:"calls"`
	Models  []string   `json:"models"`
}

type wireCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}
