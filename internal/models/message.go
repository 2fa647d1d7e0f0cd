package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// ParseMessageType maps client-supplied type strings onto the known set,
// defaulting anything unrecognized to text.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return MessageType(s)
	default:
		return MessageTypeText
	}
}

type Message struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Username    string      `json:"username"`
	Content     string      `json:"content"`
	RoomID      string      `json:"room_id"`
	MessageType MessageType `json:"message_type"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewMessage mints a message record with a fresh id and timestamp.
func NewMessage(userID, username, content, roomID string, messageType MessageType) *Message {
	return &Message{
		ID:          uuid.NewString(),
		UserID:      userID,
		Username:    username,
		Content:     content,
		RoomID:      roomID,
		MessageType: messageType,
		CreatedAt:   time.Now().UTC(),
	}
}
