// Package protocol implements the relay's wire codec: a JSON envelope
// {"type": ..., "payload": ...} carried one per websocket frame.
package protocol

import (
	"encoding/json"
	"time"
)

// Inbound type tags.
const (
	TypeAuth        = "auth"
	TypeSendMessage = "send_message"
	TypeTyping      = "typing"
	TypeMessageRead = "message_read"
)

// Outbound type tags.
const (
	TypeAuthSuccess          = "auth_success"
	TypeNewMessage           = "new_message"
	TypeUserTyping           = "user_typing"
	TypeUserStatus           = "user_status"
	TypeMessageStatusUpdated = "message_status_updated"
	TypeError                = "error"
)

// Envelope is the unit exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request is a decoded inbound payload.
type Request interface {
	Type() string
}

// Auth binds the connection to a user id.
type Auth struct {
	UserID string `json:"userId" validate:"required"`
}

// SendMessage asks the relay to persist and fan out a chat message.
type SendMessage struct {
	ChatID      string `json:"chatId" validate:"required"`
	SenderID    string `json:"senderId" validate:"required"`
	Content     string `json:"content" validate:"required"`
	MessageType string `json:"messageType,omitempty" validate:"omitempty,oneof=text image file"`
}

// Typing is a transient typing indicator.
type Typing struct {
	ChatID   string `json:"chatId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

// MessageRead marks a message as read by the recipient.
type MessageRead struct {
	MessageID string `json:"messageId" validate:"required"`
}

func (*Auth) Type() string        { return TypeAuth }
func (*SendMessage) Type() string { return TypeSendMessage }
func (*Typing) Type() string      { return TypeTyping }
func (*MessageRead) Type() string { return TypeMessageRead }

// AuthSuccess acknowledges an auth request.
type AuthSuccess struct {
	UserID string `json:"userId"`
}

// Sender is the display info attached to delivered messages.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// NewMessage delivers a persisted message to chat participants.
type NewMessage struct {
	MessageID   string    `json:"messageId"`
	ChatID      string    `json:"chatId"`
	Sender      Sender    `json:"sender"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserTyping forwards a typing indicator to the other participants.
type UserTyping struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// UserStatus announces a presence change.
type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// MessageStatusUpdated tells a sender that one of its messages changed status.
type MessageStatusUpdated struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// ErrorPayload reports a failed frame back to its connection.
type ErrorPayload struct {
	Message string `json:"message"`
}
