package store

// Presence values stored on users.status.
const (
	UserOnline  = "online"
	UserOffline = "offline"
)

// Message delivery states. Only sent -> read is driven by the relay.
const (
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
)

// Message content kinds.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeFile  = "file"
)

// User is an account directory entry.
type User struct {
	ID        string
	Username  string
	Email     string
	Status    string
	LastSeen  int64
	CreatedAt int64
}

// Chat is a direct or group conversation. Participants keep insertion order.
type Chat struct {
	ID            string
	IsGroup       bool
	GroupName     string
	Participants  []string
	LastMessageID string
	UpdatedAt     int64
	CreatedAt     int64
}

// Message is a persisted chat message. SenderName is resolved from users and
// is empty when the sender has no account entry.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	SenderName  string
	Content     string
	MessageType string
	Status      string
	CreatedAt   int64
}
