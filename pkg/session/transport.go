// Package session implements the FieldVision client core: the websocket
// transport channel, the reconnect controller, the session state machine, and
// the inbound message router that binds them to the media pipelines.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldvision-ai/fieldvision-go/pkg/wire"
)

const defaultDialTimeout = 15 * time.Second

// TransportError wraps a websocket dial failure with its target.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TransportHandlers receive socket lifecycle events. OnClose is invoked at
// most once per underlying socket, with the close code and whether the
// closure was clean.
type TransportHandlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, wasClean bool)
}

// Transport owns the single bidirectional socket. Open always creates a fresh
// underlying socket; opening a new one abandons the previous socket entirely,
// including its pending close notification.
type Transport struct {
	urlStr      string
	dialTimeout time.Duration
	handlers    TransportHandlers
	logger      *slog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	gen          int
	pendingClose int

	writeMu sync.Mutex
}

// NewTransport prepares a channel for the given ws(s):// URL. The bearer
// credential rides as a token query parameter on the connection URL.
func NewTransport(serverURL, token string, dialTimeout time.Duration, handlers TransportHandlers, logger *slog.Logger) (*Transport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("server URL must use ws(s) or http(s), got %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		urlStr:      u.String(),
		dialTimeout: dialTimeout,
		handlers:    handlers,
		logger:      logger,
	}, nil
}

// Open dials a fresh socket, replacing any previous one. It returns once the
// handshake completes or fails.
func (t *Transport) Open(ctx context.Context) error {
	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, t.dialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, t.urlStr, nil)
	if err != nil {
		return &TransportError{URL: t.urlStr, Err: err}
	}

	t.mu.Lock()
	if t.conn != nil {
		// The previous socket is considered dead; drop it without a close event.
		_ = t.conn.Close()
	}
	t.conn = conn
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	go t.readLoop(conn, gen)

	if t.handlers.OnOpen != nil {
		t.handlers.OnOpen()
	}
	return nil
}

// Send writes one message. If the channel is not open the message is silently
// dropped: callers gate sends on session state, not on transport state.
func (t *Transport) Send(msg wire.Message) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}
	t.writeMu.Lock()
	err := conn.WriteJSON(msg)
	t.writeMu.Unlock()
	if err != nil {
		t.logger.Debug("transport_send_dropped", "kind", msg.Type, "error", err)
	}
}

// Connected reports whether a socket is currently open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Close sends a close frame with the given code and tears the socket down.
// The read loop reports the closure through OnClose with this code.
func (t *Transport) Close(code int, reason string) {
	t.mu.Lock()
	conn := t.conn
	if conn != nil {
		t.pendingClose = code
	}
	t.mu.Unlock()
	if conn == nil {
		return
	}
	t.writeMu.Lock()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	t.writeMu.Unlock()
	_ = conn.Close()
}

func (t *Transport) readLoop(conn *websocket.Conn, gen int) {
	closeCode := 0
	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				closeCode = closeErr.Code
			} else {
				readErr = err
			}
			break
		}
		if t.stale(conn, gen) {
			return
		}
		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(data)
		}
	}

	t.mu.Lock()
	current := t.conn == conn && t.gen == gen
	localCode := 0
	if current {
		t.conn = nil
		localCode = t.pendingClose
		t.pendingClose = 0
	}
	t.mu.Unlock()
	if !current {
		// A newer socket superseded this one; its closure is not an event.
		return
	}
	if closeCode == 0 {
		// No close frame was read. A locally initiated Close keeps its code;
		// anything else is an abnormal drop.
		if localCode != 0 {
			closeCode = localCode
		} else {
			closeCode = websocket.CloseAbnormalClosure
			if readErr != nil && t.handlers.OnError != nil {
				t.handlers.OnError(readErr)
			}
		}
	}
	wasClean := closeCode == websocket.CloseNormalClosure
	if t.handlers.OnClose != nil {
		t.handlers.OnClose(closeCode, wasClean)
	}
}

func (t *Transport) stale(conn *websocket.Conn, gen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != conn || t.gen != gen
}
