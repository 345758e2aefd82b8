package wire

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseServerMessage_SessionStarted(t *testing.T) {
	t.Parallel()

	msg, err := ParseServerMessage([]byte(`{"type":"session_started","payload":{"session_id":"s1","message":"Connected"}}`))
	if err != nil {
		t.Fatalf("ParseServerMessage error: %v", err)
	}
	started, ok := msg.(SessionStarted)
	if !ok {
		t.Fatalf("expected SessionStarted, got %T", msg)
	}
	if started.SessionID != "s1" || started.Message != "Connected" {
		t.Fatalf("payload=%+v", started)
	}
}

func TestParseServerMessage_ToolCall(t *testing.T) {
	t.Parallel()

	msg, err := ParseServerMessage([]byte(`{"type":"tool_call","payload":{"function":"log_safety_event","arguments":{"severity":5,"event_type":"missing_ppe"}}}`))
	if err != nil {
		t.Fatalf("ParseServerMessage error: %v", err)
	}
	call, ok := msg.(ToolCall)
	if !ok {
		t.Fatalf("expected ToolCall, got %T", msg)
	}
	if call.Function != "log_safety_event" {
		t.Fatalf("function=%q", call.Function)
	}
	if sev, ok := call.Arguments["severity"].(float64); !ok || sev != 5 {
		t.Fatalf("arguments=%+v", call.Arguments)
	}
}

func TestParseServerMessage_UnknownKindIsNotAnError(t *testing.T) {
	t.Parallel()

	msg, err := ParseServerMessage([]byte(`{"type":"telemetry_v2","payload":{"x":1}}`))
	if err != nil {
		t.Fatalf("unknown kind should not error, got %v", err)
	}
	unknown, ok := msg.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", msg)
	}
	if unknown.Kind != "telemetry_v2" {
		t.Fatalf("kind=%q", unknown.Kind)
	}
}

func TestParseServerMessage_MissingType(t *testing.T) {
	t.Parallel()

	if _, err := ParseServerMessage([]byte(`{"payload":{}}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestParseServerMessage_MalformedKnownPayload(t *testing.T) {
	t.Parallel()

	_, err := ParseServerMessage([]byte(`{"type":"text_response","payload":{"text":42}}`))
	if err == nil {
		t.Fatalf("expected decode error for malformed payload")
	}
	if !strings.Contains(err.Error(), "text_response") {
		t.Fatalf("error=%q, expected kind in message", err.Error())
	}
}

func TestParseServerMessage_EmptyPayloadDefaults(t *testing.T) {
	t.Parallel()

	msg, err := ParseServerMessage([]byte(`{"type":"turn_complete"}`))
	if err != nil {
		t.Fatalf("ParseServerMessage error: %v", err)
	}
	if _, ok := msg.(TurnComplete); !ok {
		t.Fatalf("expected TurnComplete, got %T", msg)
	}
}

func TestNewAudioData_RoundTrip(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x7f, 0x80}
	msg, err := NewAudioData(pcm)
	if err != nil {
		t.Fatalf("NewAudioData error: %v", err)
	}
	if msg.Type != KindAudioData {
		t.Fatalf("type=%q", msg.Type)
	}

	var payload AudioData
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.MimeType != MimeAudioPCM16k {
		t.Fatalf("mime_type=%q", payload.MimeType)
	}
	raw, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if string(raw) != string(pcm) {
		t.Fatalf("data round trip mismatch: %v", raw)
	}
}

func TestAudioResponse_PCM(t *testing.T) {
	t.Parallel()

	resp := AudioResponse{Data: base64.StdEncoding.EncodeToString([]byte{0x10, 0x20})}
	raw, err := resp.PCM()
	if err != nil {
		t.Fatalf("PCM error: %v", err)
	}
	if len(raw) != 2 || raw[0] != 0x10 {
		t.Fatalf("raw=%v", raw)
	}

	bad := AudioResponse{Data: "!not-base64!"}
	if _, err := bad.PCM(); err == nil {
		t.Fatalf("expected base64 decode error")
	}
}
