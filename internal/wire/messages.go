// Package wire defines the WebSocket protocol of the chat console.
package wire

import "encoding/json"

// Message types.
const (
	TypeCommand  = "command"
	TypeText     = "text"
	TypeCallback = "callback"
	TypePing     = "ping"

	TypeSession = "session"
	TypeReply   = "reply"
	TypeError   = "error"
	TypePong    = "pong"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "command", "text", "callback", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// TextData is the payload for "text" messages: one typed line.
type TextData struct {
	Line string `json:"line"`
}

// CallbackData is the payload for "callback" messages: a button payload.
type CallbackData struct {
	Payload string `json:"payload"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "reply", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// ErrorData carries a protocol error. Command failures travel inside a
// reply instead.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionData is sent once after the upgrade.
type SessionData struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
}
