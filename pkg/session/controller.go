package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldvision-ai/fieldvision-go/pkg/wire"
)

// State is the authoritative state of the logical conversation, distinct
// from the transport's open/closed state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateEnding
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Session identifies the server-tracked conversation instance. The transport
// connection underneath it may be recreated several times within its life.
type Session struct {
	ID        string
	StartedAt time.Time
}

// Stats are the per-session counters, cleared on each fresh session start.
type Stats struct {
	Turns          int
	SafetyEvents   int
	CriticalEvents int
}

const (
	defaultResetWatchdog = 5 * time.Second
	defaultEventBuffer   = 64
)

// Config parameterizes a Controller.
type Config struct {
	ServerURL string
	Token     string

	SystemInstruction string
	ManualContext     string

	DialTimeout   time.Duration
	Policy        ReconnectPolicy
	ResetWatchdog time.Duration
	EventBuffer   int
	Logger        *slog.Logger
}

// Controller binds the transport channel, the reconnect controller, and the
// media pipelines into one logical conversation session. All session and
// connection bookkeeping is guarded by a single mutex; the pipelines observe
// liveness through an atomic flag so they never take the lock on a capture
// callback.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	transport *Transport
	media     MediaPipelines
	reconn    *reconnector
	events    chan Event

	activeFlag atomic.Bool
	muted      atomic.Bool
	videoOn    atomic.Bool

	mu           sync.Mutex
	state        State
	sess         Session
	stats        Stats
	resumeHandle string
	wantSession  bool
	resuming     bool
	newTopic     bool
	mediaHeld    bool
	watchdog     *time.Timer
}

// New builds a Controller for the given endpoint and media layer. Pass
// NopMedia for a text-only session.
func New(cfg Config, media MediaPipelines) (*Controller, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ResetWatchdog <= 0 {
		cfg.ResetWatchdog = defaultResetWatchdog
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if media == nil {
		media = NopMedia{}
	}

	c := &Controller{
		cfg:    cfg,
		logger: cfg.Logger,
		media:  media,
		reconn: newReconnector(cfg.Policy),
		events: make(chan Event, cfg.EventBuffer),
	}
	c.videoOn.Store(true)

	transport, err := NewTransport(cfg.ServerURL, cfg.Token, cfg.DialTimeout, TransportHandlers{
		OnMessage: c.handleMessage,
		OnError: func(err error) {
			c.logger.Warn("transport_error", "error", err)
		},
		OnClose: c.handleClose,
	}, cfg.Logger)
	if err != nil {
		return nil, err
	}
	c.transport = transport
	return c, nil
}

// Events is the stream of UI-facing events. The channel is buffered; if the
// host stops draining it, further events are dropped with a warning rather
// than blocking the session core.
func (c *Controller) Events() <-chan Event { return c.events }

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a confirmed session is live right now.
func (c *Controller) Active() bool { return c.activeFlag.Load() }

// SessionID returns the current server session identifier, if any.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.ID
}

// Stats returns a copy of the per-session counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ConnState returns the reconnect controller's view of the transport.
func (c *Controller) ConnState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconn.state
}

// Start opens the transport, acquires media devices, and requests a fresh
// session. Any sub-step failure releases whatever was acquired and returns
// the controller to idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start session while %s", state)
	}
	c.state = StateStarting
	c.resumeHandle = ""
	c.stats = Stats{}
	c.reconn.arm()
	c.mu.Unlock()

	if err := c.transport.Open(ctx); err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.reconn.disable()
		c.mu.Unlock()
		return err
	}
	if err := c.media.Acquire(ctx, c.mediaDeps()); err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.reconn.disable()
		c.mu.Unlock()
		c.transport.Close(wire.CloseNormal, "media unavailable")
		return fmt.Errorf("acquire media: %w", err)
	}
	c.mu.Lock()
	if c.state != StateStarting {
		// The channel dropped while devices were being acquired.
		c.mu.Unlock()
		c.media.Release()
		return fmt.Errorf("connection closed during startup")
	}
	c.mediaHeld = true
	c.mu.Unlock()

	c.sendStartSession("")
	return nil
}

// End requests a graceful shutdown. The server is notified best-effort and
// local cleanup runs immediately, never waiting on the network.
func (c *Controller) End() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateEnding
	c.mu.Unlock()

	if msg, err := wire.NewMessage(wire.KindEndSession, wire.EndSession{}); err == nil {
		c.transport.Send(msg)
	}

	c.mu.Lock()
	c.cleanupLocked(wire.CloseNormal, "session ended")
	c.mu.Unlock()
}

// Reset discards the server-side conversation context ("new topic") by
// forcing a channel close with the reserved reset code and riding the
// reconnect path back to a fresh session. A watchdog forces a full reload if
// the reset does not complete in time.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateResetting
	c.activeFlag.Store(false)
	c.newTopic = true
	c.resumeHandle = ""
	c.reconn.markReset()
	c.media.FlushPlayback()
	c.startWatchdogLocked()
	c.mu.Unlock()

	c.logger.Info("context_reset_requested", "session_id", c.SessionID())
	c.transport.Close(wire.CloseContextReset, "context reset")
}

// SendText sends one user text turn. It fails if no session is active.
func (c *Controller) SendText(text string) error {
	if !c.activeFlag.Load() {
		return fmt.Errorf("no active session")
	}
	msg, err := wire.NewMessage(wire.KindTextMessage, wire.TextMessage{Text: text})
	if err != nil {
		return err
	}
	c.transport.Send(msg)
	return nil
}

// SetMuted suppresses outbound audio transmission. Capture keeps running so
// unmuting is instantaneous.
func (c *Controller) SetMuted(muted bool) {
	c.muted.Store(muted)
	c.media.SetMuted(muted)
}

// Muted reports the current mute flag.
func (c *Controller) Muted() bool { return c.muted.Load() }

// SetVideoEnabled toggles outbound video frames.
func (c *Controller) SetVideoEnabled(enabled bool) {
	c.videoOn.Store(enabled)
	c.media.SetVideoEnabled(enabled)
}

// VideoEnabled reports the current video flag.
func (c *Controller) VideoEnabled() bool { return c.videoOn.Load() }

func (c *Controller) mediaDeps() MediaDeps {
	return MediaDeps{
		Active: c.activeFlag.Load,
		SendAudio: func(pcm []byte) {
			msg, err := wire.NewAudioData(pcm)
			if err != nil {
				return
			}
			c.transport.Send(msg)
		},
		SendFrame: func(jpeg []byte) {
			msg, err := wire.NewVideoFrame(jpeg)
			if err != nil {
				return
			}
			c.transport.Send(msg)
		},
		Logger: c.logger,
	}
}

func (c *Controller) sendStartSession(resumeHandle string) {
	msg, err := wire.NewMessage(wire.KindStartSession, wire.StartSession{
		SystemInstruction: c.cfg.SystemInstruction,
		ManualContext:     c.cfg.ManualContext,
		ResumeHandle:      resumeHandle,
	})
	if err != nil {
		c.logger.Error("start_session_encode_failed", "error", err)
		return
	}
	c.transport.Send(msg)
}

// handleClose is the reconnect controller's entry point: every real socket
// closure lands here, as do synthetic closures from failed resume dials.
func (c *Controller) handleClose(code int, wasClean bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleCloseLocked(code, wasClean)
}

func (c *Controller) handleCloseLocked(code int, wasClean bool) {
	if c.state == StateIdle || c.state == StateEnding {
		return
	}

	sessionLive := c.wantSession || c.state == StateResetting
	decision, delay := c.reconn.classify(code, sessionLive)
	switch decision {
	case decideStop:
		c.logger.Info("channel_closed", "code", code, "clean", wasClean)
		startFailed := c.state == StateStarting && !c.resuming
		c.cleanupLocked(wire.CloseNormal, "channel closed")
		if startFailed {
			c.emit(ErrorEvent{Message: "connection closed before the session started"})
		}

	case decideRetry:
		newTopic := c.newTopic
		attempt := c.reconn.attempts
		c.activeFlag.Store(false)
		if c.state != StateResetting {
			c.state = StateStarting
		}
		c.resuming = true
		if newTopic {
			c.logger.Info("context_reset_reconnecting", "attempt", attempt, "delay", delay)
		} else {
			c.logger.Warn("channel_lost_reconnecting",
				"code", code, "attempt", attempt, "max_attempts", c.reconn.policy.MaxAttempts, "delay", delay)
		}
		c.emit(ReconnectingEvent{
			Attempt:     attempt,
			MaxAttempts: c.reconn.policy.MaxAttempts,
			Delay:       delay,
			NewTopic:    newTopic,
		})
		time.AfterFunc(delay, c.attemptResume)

	case decideFail:
		attempts := c.reconn.attempts
		c.logger.Error("reconnect_exhausted", "attempts", attempts)
		c.cleanupLocked(wire.CloseNormal, "reconnect exhausted")
		c.reconn.state = ConnFailed
		c.emit(ReconnectFailedEvent{Attempts: attempts})
	}
}

// attemptResume runs after one backoff delay: reopen the channel, then
// re-issue the session handshake. A dial failure is fed back through the
// close path so it consumes one more attempt.
func (c *Controller) attemptResume() {
	c.mu.Lock()
	if !c.resuming || (c.state != StateStarting && c.state != StateResetting) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.transport.dialTimeout)
	err := c.transport.Open(ctx)
	cancel()
	if err != nil {
		c.logger.Warn("reconnect_dial_failed", "error", err)
		c.mu.Lock()
		c.handleCloseLocked(websocket.CloseAbnormalClosure, false)
		c.mu.Unlock()
		return
	}

	// End or the watchdog may have canceled resumption while the dial was in
	// flight; the fresh socket must not start a session nobody owns.
	c.mu.Lock()
	if !c.resuming || (c.state != StateStarting && c.state != StateResetting) {
		c.mu.Unlock()
		c.transport.Close(wire.CloseNormal, "resume canceled")
		return
	}
	handle := c.resumeHandle
	if c.newTopic {
		handle = ""
	}
	c.mu.Unlock()

	c.sendStartSession(handle)
}

// cleanupLocked tears the session down: media devices are released before
// the connection so no orphaned capture callback outlives the channel.
func (c *Controller) cleanupLocked(code int, reason string) {
	c.reconn.disable()
	c.reconn.state = ConnDisconnected
	c.wantSession = false
	c.resuming = false
	c.newTopic = false
	c.activeFlag.Store(false)
	c.stopWatchdogLocked()
	if c.mediaHeld {
		c.media.Release()
		c.mediaHeld = false
	}
	c.transport.Close(code, reason)
	c.sess = Session{}
	c.state = StateIdle
}

func (c *Controller) startWatchdogLocked() {
	c.stopWatchdogLocked()
	c.watchdog = time.AfterFunc(c.cfg.ResetWatchdog, c.watchdogExpired)
}

func (c *Controller) stopWatchdogLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// watchdogExpired fires when a deliberate reset has not produced a confirmed
// session by the deadline. It forces the client back to a clean idle state
// and emits a single forced-reload notice.
func (c *Controller) watchdogExpired() {
	c.mu.Lock()
	if c.activeFlag.Load() || (c.state != StateResetting && c.state != StateStarting) {
		c.mu.Unlock()
		return
	}
	c.logger.Error("context_reset_watchdog_expired", "state", c.state.String())
	c.cleanupLocked(wire.CloseNormal, "reset watchdog expired")
	c.mu.Unlock()
	c.emit(ForcedReloadEvent{})
}

// emit delivers one event without ever blocking the session core.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event_dropped", "kind", ev.eventKind())
	}
}
