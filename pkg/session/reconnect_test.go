package session

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldvision-ai/fieldvision-go/pkg/wire"
)

func TestReconnectPolicy_BackoffSequence(t *testing.T) {
	t.Parallel()

	p := DefaultReconnectPolicy()
	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5000 * time.Millisecond, // 5062ms capped
	}
	for attempt, expected := range want {
		if got := p.Delay(attempt, false); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestReconnectPolicy_DeliberateResetDelay(t *testing.T) {
	t.Parallel()

	p := DefaultReconnectPolicy()
	for _, attempt := range []int{0, 3} {
		if got := p.Delay(attempt, true); got != 100*time.Millisecond {
			t.Errorf("Delay(%d, reset) = %v, want 100ms", attempt, got)
		}
	}
}

func TestReconnector_NormalCloseWithoutSessionIsTerminal(t *testing.T) {
	t.Parallel()

	r := newReconnector(DefaultReconnectPolicy())
	decision, _ := r.classify(wire.CloseNormal, false)
	if decision != decideStop {
		t.Fatalf("decision = %v, want stop", decision)
	}
	if r.state != ConnDisconnected {
		t.Fatalf("state = %v, want disconnected", r.state)
	}
}

func TestReconnector_CleanCloseWithActiveSessionRetries(t *testing.T) {
	t.Parallel()

	r := newReconnector(DefaultReconnectPolicy())
	decision, delay := r.classify(wire.CloseNormal, true)
	if decision != decideRetry {
		t.Fatalf("decision = %v, want retry", decision)
	}
	if delay != time.Second {
		t.Fatalf("delay = %v, want 1s", delay)
	}
	if r.state != ConnReconnecting {
		t.Fatalf("state = %v, want reconnecting", r.state)
	}
}

func TestReconnector_DisabledNeverRetries(t *testing.T) {
	t.Parallel()

	r := newReconnector(DefaultReconnectPolicy())
	r.disable()
	decision, _ := r.classify(websocket.CloseAbnormalClosure, true)
	if decision != decideStop {
		t.Fatalf("decision = %v, want stop after disable", decision)
	}
}

func TestReconnector_ResetCodeRetriesWithResetDelay(t *testing.T) {
	t.Parallel()

	r := newReconnector(DefaultReconnectPolicy())
	// The session flag is already false during a reset; the reserved code
	// alone must keep the retry path alive.
	decision, delay := r.classify(wire.CloseContextReset, false)
	if decision != decideRetry {
		t.Fatalf("decision = %v, want retry", decision)
	}
	if delay != 100*time.Millisecond {
		t.Fatalf("delay = %v, want 100ms", delay)
	}
}

func TestReconnector_MarkResetAppliesWithoutResetCode(t *testing.T) {
	t.Parallel()

	r := newReconnector(DefaultReconnectPolicy())
	r.markReset()
	decision, delay := r.classify(websocket.CloseAbnormalClosure, false)
	if decision != decideRetry {
		t.Fatalf("decision = %v, want retry", decision)
	}
	if delay != 100*time.Millisecond {
		t.Fatalf("delay = %v, want reset delay", delay)
	}
}

func TestReconnector_ExhaustionFailsAndStops(t *testing.T) {
	t.Parallel()

	r := newReconnector(DefaultReconnectPolicy())
	for i := 0; i < 5; i++ {
		decision, _ := r.classify(websocket.CloseAbnormalClosure, true)
		if decision != decideRetry {
			t.Fatalf("attempt %d: decision = %v, want retry", i, decision)
		}
	}
	decision, _ := r.classify(websocket.CloseAbnormalClosure, true)
	if decision != decideFail {
		t.Fatalf("decision after 5 attempts = %v, want fail", decision)
	}
	if r.state != ConnFailed {
		t.Fatalf("state = %v, want failed", r.state)
	}
}

func TestReconnector_ConnectedResetsAttempts(t *testing.T) {
	t.Parallel()

	r := newReconnector(DefaultReconnectPolicy())
	r.classify(websocket.CloseAbnormalClosure, true)
	r.classify(websocket.CloseAbnormalClosure, true)
	r.connected()
	if r.attempts != 0 {
		t.Fatalf("attempts = %d after connected, want 0", r.attempts)
	}
	_, delay := r.classify(websocket.CloseAbnormalClosure, true)
	if delay != time.Second {
		t.Fatalf("delay = %v after reset, want base 1s", delay)
	}
}
