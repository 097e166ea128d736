package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `
	m.id, m.chat_id, m.sender_id, COALESCE(u.username, ''), m.content,
	m.message_type, m.status, m.created_at`

// CreateMessage persists a new message in state "sent" and returns it with
// the sender's username resolved. An empty messageType means text.
func (db *DB) CreateMessage(chatID, senderID, content, messageType string) (*Message, error) {
	if messageType == "" {
		messageType = TypeText
	}
	id := uuid.NewString()
	if _, err := db.Exec(`
		INSERT INTO messages (id, chat_id, sender_id, content, message_type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, chatID, senderID, content, messageType, MessageSent, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	m, err := db.GetMessage(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("message %q vanished after insert", id)
	}
	return m, nil
}

// GetMessage returns a message by id, or nil when unknown.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`SELECT `+messageColumns+`
		FROM messages m LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?`, id).
		Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Content, &m.MessageType, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetMessageStatus updates a message's delivery status and returns the
// updated row, or nil when the id is unknown.
func (db *DB) SetMessageStatus(id, status string) (*Message, error) {
	res, err := db.Exec(`UPDATE messages SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return nil, fmt.Errorf("update message status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return db.GetMessage(id)
}

// ListMessages returns a chat's most recent messages, newest first.
func (db *DB) ListMessages(chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+messageColumns+`
		FROM messages m LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Content, &m.MessageType, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
