// Package wire defines the FieldVision websocket message envelope and the
// typed payloads exchanged between the client and the session endpoint.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Message kinds carried in the envelope type field.
const (
	// Client -> server.
	KindStartSession = "start_session"
	KindEndSession   = "end_session"
	KindAudioData    = "audio_data"
	KindVideoFrame   = "video_frame"
	KindTextMessage  = "text_message"

	// Server -> client.
	KindSessionStarted = "session_started"
	KindSessionEnded   = "session_ended"
	KindAudioResponse  = "audio_response"
	KindTextResponse   = "text_response"
	KindToolCall       = "tool_call"
	KindTurnComplete   = "turn_complete"
	KindError          = "error"
	KindStatus         = "status"
)

// Close codes with protocol meaning. CloseContextReset is the reserved
// application code a client uses to force a deliberate "new topic" reset;
// every code other than these two is treated as abnormal.
const (
	CloseNormal       = 1000
	CloseContextReset = 4001
)

// MIME types declared on outbound media payloads.
const (
	MimeAudioPCM16k = "audio/pcm;rate=16000"
	MimeAudioPCM24k = "audio/pcm;rate=24000"
	MimeImageJPEG   = "image/jpeg"
)

// Message is the protocol envelope in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope around the given payload.
func NewMessage(kind string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Message{Type: kind, Payload: raw}, nil
}

// StartSession asks the server to open a conversation session. ResumeHandle
// restores server-side context after a reconnect or deliberate reset.
type StartSession struct {
	SystemInstruction string `json:"system_instruction,omitempty"`
	ManualContext     string `json:"manual_context,omitempty"`
	ResumeHandle      string `json:"resume_handle,omitempty"`
}

// EndSession requests a graceful session shutdown.
type EndSession struct{}

// AudioData carries one outbound microphone chunk (base64 PCM16 @16kHz).
type AudioData struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type,omitempty"`
}

// VideoFrame carries one outbound camera frame (base64 JPEG).
type VideoFrame struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type,omitempty"`
}

// TextMessage carries one user text turn.
type TextMessage struct {
	Text string `json:"text"`
}

// NewAudioData wraps raw PCM16 bytes for transmission.
func NewAudioData(pcm []byte) (Message, error) {
	return NewMessage(KindAudioData, AudioData{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MimeType: MimeAudioPCM16k,
	})
}

// NewVideoFrame wraps an encoded JPEG frame for transmission.
func NewVideoFrame(jpeg []byte) (Message, error) {
	return NewMessage(KindVideoFrame, VideoFrame{
		Data:     base64.StdEncoding.EncodeToString(jpeg),
		MimeType: MimeImageJPEG,
	})
}

// ServerMessage is the decoded union of server-to-client payloads.
type ServerMessage interface {
	messageKind() string
}

// SessionStarted confirms a session is live and carries its identifier.
type SessionStarted struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

func (SessionStarted) messageKind() string { return KindSessionStarted }

// SessionEnded confirms a session has ended. Summary is free-form and
// ResumeHandle, when present, lets a later start restore context.
type SessionEnded struct {
	SessionID    string         `json:"session_id,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
	ResumeHandle string         `json:"resume_handle,omitempty"`
}

func (SessionEnded) messageKind() string { return KindSessionEnded }

// AudioResponse carries one inbound playback chunk (base64 PCM16 @24kHz).
type AudioResponse struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type,omitempty"`
}

func (AudioResponse) messageKind() string { return KindAudioResponse }

// PCM decodes the base64 audio payload to raw PCM16 bytes.
func (a AudioResponse) PCM() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode audio_response data: %w", err)
	}
	return raw, nil
}

// TextResponse carries one assistant text turn.
type TextResponse struct {
	Text string `json:"text"`
}

func (TextResponse) messageKind() string { return KindTextResponse }

// ToolCall reports a server-side tool invocation, such as log_safety_event.
type ToolCall struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (ToolCall) messageKind() string { return KindToolCall }

// TurnComplete marks the end of one model turn.
type TurnComplete struct{}

func (TurnComplete) messageKind() string { return KindTurnComplete }

// ServerError carries an error string from the server.
type ServerError struct {
	Error string `json:"error"`
}

func (ServerError) messageKind() string { return KindError }

// Status carries an informational server status line.
type Status struct {
	Message string `json:"message"`
}

func (Status) messageKind() string { return KindStatus }

// Unknown preserves a frame whose kind this client does not recognize.
// Unknown kinds are never a decode error.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (u Unknown) messageKind() string { return u.Kind }

// ParseServerMessage decodes one inbound frame into its typed payload. A known
// kind with a malformed payload is an error; an unrecognized kind decodes to
// Unknown.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var envelope Message
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}
	kind := strings.TrimSpace(envelope.Type)
	if kind == "" {
		return nil, fmt.Errorf("message missing type")
	}
	payload := envelope.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	decode := func(v any) error {
		if err := json.Unmarshal(payload, v); err != nil {
			return fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return nil
	}

	switch kind {
	case KindSessionStarted:
		var m SessionStarted
		if err := decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case KindSessionEnded:
		var m SessionEnded
		if err := decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case KindAudioResponse:
		var m AudioResponse
		if err := decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case KindTextResponse:
		var m TextResponse
		if err := decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case KindToolCall:
		var m ToolCall
		if err := decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case KindTurnComplete:
		return TurnComplete{}, nil
	case KindError:
		var m ServerError
		if err := decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case KindStatus:
		var m Status
		if err := decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return Unknown{Kind: kind, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
