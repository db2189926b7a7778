// Package ipc is the control socket between a running emojid daemon and the
// CLI.
//
// Frames are a 16-byte big-endian header followed by a JSON payload. The
// protocol carries status queries, the enable toggle and a stream of
// expansion events. It never carries typed text.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x454d4a43 // "EMJC"
)

// MessageType identifies the type of a frame.
type MessageType uint16

const (
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0005

	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	MsgSetEnabled     MessageType = 0x0200
	MsgSetEnabledResp MessageType = 0x0201

	MsgSubscribe     MessageType = 0x0500
	MsgSubscribeResp MessageType = 0x0501
	MsgEvent         MessageType = 0x0504
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgError:
		return "error"
	case MsgStatusRequest:
		return "status"
	case MsgStatusResponse:
		return "status_response"
	case MsgSetEnabled:
		return "set_enabled"
	case MsgSetEnabledResp:
		return "set_enabled_response"
	case MsgSubscribe:
		return "subscribe"
	case MsgSubscribeResp:
		return "subscribe_response"
	case MsgEvent:
		return "event"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 16

// MaxPayload bounds a single frame.
const MaxPayload = 1 << 20

// Header is the fixed-size frame header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and checks a header.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the header and payload as one frame.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete frame.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ErrorResponse is sent when a request fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrNotRunning       = 7
)

// StatusResponse describes the daemon.
type StatusResponse struct {
	Version       string            `json:"version"`
	PID           int               `json:"pid"`
	StartedAt     time.Time         `json:"started_at"`
	Uptime        time.Duration     `json:"uptime"`
	Running       bool              `json:"running"`
	Enabled       bool              `json:"enabled"`
	SessionActive bool              `json:"session_active"`
	Candidates    int               `json:"candidates,omitempty"`
	Shortcuts     int               `json:"shortcuts"`
	Health        string            `json:"health,omitempty"`
	Problems      []string          `json:"problems,omitempty"`
	Metrics       map[string]any    `json:"metrics,omitempty"`
	Bindings      map[string]string `json:"bindings,omitempty"`
}

// SetEnabledRequest turns expansion on or off. A nil Enabled toggles.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// SetEnabledResponse reports the resulting state.
type SetEnabledResponse struct {
	Enabled bool `json:"enabled"`
}

// SubscribeRequest starts the event stream. Empty Events means all.
type SubscribeRequest struct {
	Events []string `json:"events,omitempty"`
}

// SubscribeResponse acknowledges a subscription.
type SubscribeResponse struct {
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed engine notification. Type uses the engine's event
// names ("matched", "cancelled", ...).
type Event struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Shortcut    string    `json:"shortcut,omitempty"`
	Replacement string    `json:"replacement,omitempty"`
	Source      string    `json:"source,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Candidates  int       `json:"candidates,omitempty"`
	Enabled     *bool     `json:"enabled,omitempty"`
}

// Encode encodes a payload to JSON. A nil payload encodes to nothing.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Decode decodes a JSON payload.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error frame.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response frame.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
