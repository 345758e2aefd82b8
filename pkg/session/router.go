package session

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldvision-ai/fieldvision-go/pkg/wire"
)

// transientMarkers identify server error text that signals a recoverable
// connectivity failure. Matching errors ride the reconnect path instead of
// surfacing to the user.
var transientMarkers = []string{
	"keepalive",
	"timeout",
	"deadline expired",
	"1011",
	"unavailable",
}

func isTransientError(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// handleMessage is the inbound router: one decoded frame, one handler.
// Unrecognized kinds are logged and dropped, never fatal.
func (c *Controller) handleMessage(data []byte) {
	msg, err := wire.ParseServerMessage(data)
	if err != nil {
		c.logger.Warn("message_decode_failed", "error", err)
		return
	}

	switch m := msg.(type) {
	case wire.SessionStarted:
		c.handleSessionStarted(m)
	case wire.SessionEnded:
		c.handleSessionEnded(m)
	case wire.AudioResponse:
		pcm, err := m.PCM()
		if err != nil {
			c.logger.Warn("audio_response_decode_failed", "error", err)
			return
		}
		c.mu.Lock()
		held := c.mediaHeld
		c.mu.Unlock()
		if held {
			c.media.PlayAudio(pcm)
		}
	case wire.TextResponse:
		c.emit(TextEvent{Text: m.Text})
	case wire.ToolCall:
		c.handleToolCall(m)
	case wire.TurnComplete:
		c.mu.Lock()
		c.stats.Turns++
		c.mu.Unlock()
		c.emit(TurnCompleteEvent{})
	case wire.ServerError:
		c.handleServerError(m.Error)
	case wire.Status:
		c.emit(StatusEvent{Message: m.Message})
	case wire.Unknown:
		c.logger.Warn("unknown_message_kind", "kind", m.Kind)
	}
}

func (c *Controller) handleSessionStarted(m wire.SessionStarted) {
	c.mu.Lock()
	if c.state != StateStarting && c.state != StateResetting {
		// Late confirmation for a session that was already torn down.
		c.mu.Unlock()
		c.logger.Debug("session_started_ignored", "session_id", m.SessionID, "state", c.state.String())
		return
	}
	resumed := c.resuming
	newTopic := c.newTopic
	c.resuming = false
	c.newTopic = false
	c.wantSession = true
	c.sess = Session{ID: m.SessionID, StartedAt: time.Now()}
	if !resumed || newTopic {
		c.stats = Stats{}
	}
	c.state = StateActive
	c.activeFlag.Store(true)
	c.reconn.connected()
	c.stopWatchdogLocked()
	c.mu.Unlock()

	c.logger.Info("session_started", "session_id", m.SessionID, "resumed", resumed, "new_topic", newTopic)
	c.emit(StartedEvent{
		SessionID: m.SessionID,
		Message:   m.Message,
		Resumed:   resumed && !newTopic,
		NewTopic:  newTopic,
	})
}

func (c *Controller) handleSessionEnded(m wire.SessionEnded) {
	c.mu.Lock()
	if m.ResumeHandle != "" {
		c.resumeHandle = m.ResumeHandle
	}
	id := m.SessionID
	if id == "" {
		id = c.sess.ID
	}
	if c.state != StateIdle {
		// Server-initiated end; local End has its own cleanup already done.
		c.cleanupLocked(wire.CloseNormal, "session ended by server")
	}
	c.mu.Unlock()

	c.logger.Info("session_ended", "session_id", id)
	c.emit(EndedEvent{SessionID: id, Summary: m.Summary})
}

func (c *Controller) handleToolCall(m wire.ToolCall) {
	severity := 0
	if v, ok := m.Arguments["severity"]; ok {
		if f, ok := v.(float64); ok {
			severity = int(f)
		}
	}
	critical := m.Function == "log_safety_event" && severity >= 5

	if m.Function == "log_safety_event" {
		c.mu.Lock()
		c.stats.SafetyEvents++
		if critical {
			c.stats.CriticalEvents++
		}
		c.mu.Unlock()
	}

	c.logger.Info("tool_call", "function", m.Function, "severity", severity, "critical", critical)
	c.emit(ToolCallEvent{
		Function:  m.Function,
		Arguments: m.Arguments,
		Severity:  severity,
		Critical:  critical,
	})
}

// handleServerError routes transient connectivity errors into the reconnect
// path by closing the channel; everything else surfaces to the user.
func (c *Controller) handleServerError(text string) {
	if !isTransientError(text) {
		c.logger.Warn("server_error", "error", text)
		c.emit(ErrorEvent{Message: text})
		return
	}

	c.logger.Warn("transient_server_error", "error", text)
	if c.transport.Connected() {
		c.transport.Close(websocket.CloseInternalServerErr, "transient server error")
		return
	}
	c.mu.Lock()
	c.handleCloseLocked(websocket.CloseInternalServerErr, false)
	c.mu.Unlock()
}
