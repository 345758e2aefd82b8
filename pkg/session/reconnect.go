package session

import (
	"math"
	"time"

	"github.com/fieldvision-ai/fieldvision-go/pkg/wire"
)

// ConnState is the reconnect controller's view of the transport.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
	ConnFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	case ConnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReconnectPolicy controls automatic resumption after a channel closure.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Growth      float64
	MaxDelay    time.Duration
	// ResetDelay is the short fixed delay used for a deliberate context
	// reset, where perceived latency matters more than politeness.
	ResetDelay time.Duration
}

// DefaultReconnectPolicy returns the stock policy: five attempts with
// 1s * 1.5^n backoff capped at 5s, and a 100ms deliberate-reset delay.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Growth:      1.5,
		MaxDelay:    5 * time.Second,
		ResetDelay:  100 * time.Millisecond,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	d := DefaultReconnectPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Growth <= 1 {
		p.Growth = d.Growth
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.ResetDelay <= 0 {
		p.ResetDelay = d.ResetDelay
	}
	return p
}

// Delay computes the backoff before the given zero-based attempt.
func (p ReconnectPolicy) Delay(attempts int, deliberateReset bool) time.Duration {
	if deliberateReset {
		return p.ResetDelay
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Growth, float64(attempts)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// reconnDecision is the outcome of classifying one channel closure.
type reconnDecision int

const (
	decideStop  reconnDecision = iota // terminal disconnect, no retry
	decideRetry                       // schedule a resumption attempt
	decideFail                        // attempts exhausted
)

// reconnector tracks attempt counts, whether resumption is wanted at all,
// and whether the next closure is a deliberate reset. Only the session
// controller invokes it, always under the controller's lock.
type reconnector struct {
	policy ReconnectPolicy

	state            ConnState
	attempts         int
	shouldReconnect  bool
	intentionalReset bool
}

func newReconnector(policy ReconnectPolicy) *reconnector {
	return &reconnector{policy: policy.withDefaults(), shouldReconnect: true}
}

// disable marks the connection as deliberately finished: the user ended the
// session, so no closure after this point triggers resumption.
func (r *reconnector) disable() {
	r.shouldReconnect = false
	r.intentionalReset = false
}

// arm re-enables reconnection for a fresh session.
func (r *reconnector) arm() {
	r.state = ConnConnecting
	r.attempts = 0
	r.shouldReconnect = true
	r.intentionalReset = false
}

// markReset flags the next closure as a deliberate context reset.
func (r *reconnector) markReset() {
	r.intentionalReset = true
}

// connected records a successful (re)connection handshake.
func (r *reconnector) connected() {
	r.state = ConnConnected
	r.attempts = 0
	r.intentionalReset = false
}

// classify decides what a closure means given the close code and whether a
// session was active when the channel dropped. A normal close with no active
// session is terminal; everything else retries until attempts run out.
func (r *reconnector) classify(code int, sessionActive bool) (reconnDecision, time.Duration) {
	if !r.shouldReconnect {
		r.state = ConnDisconnected
		return decideStop, 0
	}
	isReset := code == wire.CloseContextReset || r.intentionalReset
	if !sessionActive && !isReset {
		// Nothing to resume, regardless of how the channel closed.
		r.state = ConnDisconnected
		return decideStop, 0
	}
	if r.attempts >= r.policy.MaxAttempts {
		r.state = ConnFailed
		return decideFail, 0
	}
	delay := r.policy.Delay(r.attempts, isReset)
	r.attempts++
	r.state = ConnReconnecting
	return decideRetry, delay
}
