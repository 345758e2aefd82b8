package session

import "time"

// Event is the typed union delivered to the host application. Events carry
// everything the UI layer needs; the controller never renders anything
// itself.
type Event interface {
	eventKind() string
}

// StartedEvent fires when the server confirms a session. Resumed is true when
// the session came back through the reconnect path.
type StartedEvent struct {
	SessionID string
	Message   string
	Resumed   bool
	NewTopic  bool
}

func (StartedEvent) eventKind() string { return "started" }

// EndedEvent fires when the session is over, locally or by server confirm.
// Summary is present only when the server sent one.
type EndedEvent struct {
	SessionID string
	Summary   map[string]any
}

func (EndedEvent) eventKind() string { return "ended" }

// TextEvent carries one assistant text response.
type TextEvent struct {
	Text string
}

func (TextEvent) eventKind() string { return "text" }

// ToolCallEvent reports a server-side tool invocation.
type ToolCallEvent struct {
	Function  string
	Arguments map[string]any
	Severity  int
	Critical  bool
}

func (ToolCallEvent) eventKind() string { return "tool_call" }

// TurnCompleteEvent marks the end of one model turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) eventKind() string { return "turn_complete" }

// StatusEvent carries an informational server status line.
type StatusEvent struct {
	Message string
}

func (StatusEvent) eventKind() string { return "status" }

// ErrorEvent surfaces a user-facing error. Transient connectivity errors are
// routed into reconnection instead and never arrive here.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) eventKind() string { return "error" }

// ReconnectingEvent fires once per resumption attempt. NewTopic marks the
// deliberate-reset path, where the UI shows "starting new topic" instead of
// "connection lost".
type ReconnectingEvent struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	NewTopic    bool
}

func (ReconnectingEvent) eventKind() string { return "reconnecting" }

// ReconnectFailedEvent is the single terminal notice after attempts are
// exhausted. The session has already been ended locally.
type ReconnectFailedEvent struct {
	Attempts int
}

func (ReconnectFailedEvent) eventKind() string { return "reconnect_failed" }

// ForcedReloadEvent fires when the reset watchdog expires: the client state
// machine gave up on an in-flight reset and the host must reload.
type ForcedReloadEvent struct{}

func (ForcedReloadEvent) eventKind() string { return "forced_reload" }
