package websocket

import (
	"encoding/json"
	"fmt"

	"chat-server/internal/models"
)

type EnvelopeType string

// Client -> server command kinds.
const (
	TypeJoinRoom       EnvelopeType = "join_room"
	TypeLeaveRoom      EnvelopeType = "leave_room"
	TypeSendMessage    EnvelopeType = "send_message"
	TypeGetMessages    EnvelopeType = "get_messages"
	TypeGetOnlineUsers EnvelopeType = "get_online_users"
)

// Server -> client event kinds.
const (
	TypeNewMessage       EnvelopeType = "new_message"
	TypeUserJoined       EnvelopeType = "user_joined"
	TypeUserLeft         EnvelopeType = "user_left"
	TypeOnlineUsersList  EnvelopeType = "online_users_list"
	TypeMessagesResponse EnvelopeType = "messages_response"
	TypeError            EnvelopeType = "error"
	TypeSuccess          EnvelopeType = "success"
)

// Envelope is the wire message exchanged over a connection, one frame per
// logical command or event. The Type discriminant decides which fields are
// meaningful; everything else is omitted from the JSON.
type Envelope struct {
	Type EnvelopeType `json:"type"`

	RoomID      string `json:"room_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Before      int64  `json:"before,omitempty"` // unix seconds, optional history cursor

	Message  *models.Message   `json:"message,omitempty"`
	Messages []*models.Message `json:"messages,omitempty"`
	Users    []UserPresence    `json:"users,omitempty"`

	// Human-readable text for error and success envelopes.
	Text string `json:"text,omitempty"`
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("malformed envelope: missing type")
	}
	return &env, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func errorEnvelope(format string, v ...interface{}) *Envelope {
	return &Envelope{Type: TypeError, Text: fmt.Sprintf(format, v...)}
}

func successEnvelope(format string, v ...interface{}) *Envelope {
	return &Envelope{Type: TypeSuccess, Text: fmt.Sprintf(format, v...)}
}
