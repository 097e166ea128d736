package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoParticipants is returned when a chat would have nobody in it.
var ErrNoParticipants = errors.New("chat needs at least one participant")

// CreateChat inserts a chat with the given participants. Duplicate ids are
// collapsed, first occurrence wins.
func (db *DB) CreateChat(participants []string, isGroup bool, groupName string) (*Chat, error) {
	members := dedupe(participants)
	if len(members) == 0 {
		return nil, ErrNoParticipants
	}
	now := time.Now().UnixMilli()
	c := &Chat{
		ID:           uuid.NewString(),
		IsGroup:      isGroup,
		GroupName:    groupName,
		Participants: members,
		UpdatedAt:    now,
		CreatedAt:    now,
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO chats (id, is_group, group_name, last_message_id, updated_at, created_at)
		VALUES (?, ?, ?, '', ?, ?)`,
		c.ID, c.IsGroup, c.GroupName, c.UpdatedAt, c.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	for i, userID := range members {
		if _, err := tx.Exec(`INSERT INTO chat_participants (chat_id, user_id, position) VALUES (?, ?, ?)`,
			c.ID, userID, i); err != nil {
			return nil, fmt.Errorf("insert participant %q: %w", userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// GetChat returns a chat with its participants, or nil when unknown.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, is_group, group_name, last_message_id, updated_at, created_at
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.IsGroup, &c.GroupName, &c.LastMessageID, &c.UpdatedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Participants, err = db.participants(c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListUserChats returns the chats userID takes part in, most recently updated first.
func (db *DB) ListUserChats(userID string) ([]Chat, error) {
	rows, err := db.Query(`
		SELECT c.id, c.is_group, c.group_name, c.last_message_id, c.updated_at, c.created_at
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.updated_at DESC, c.rowid DESC`, userID)
	if err != nil {
		return nil, err
	}

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.IsGroup, &c.GroupName, &c.LastMessageID, &c.UpdatedAt, &c.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range chats {
		if chats[i].Participants, err = db.participants(chats[i].ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// FindOrCreateDirectChat returns the non-group chat shared by a and b,
// creating it when none exists.
func (db *DB) FindOrCreateDirectChat(a, b string) (*Chat, error) {
	var id string
	err := db.QueryRow(`
		SELECT c.id FROM chats c
		WHERE c.is_group = 0
			AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = ?)
			AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = ?)
		ORDER BY c.created_at
		LIMIT 1`, a, b).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		return db.CreateChat([]string{a, b}, false, "")
	case err != nil:
		return nil, err
	}
	return db.GetChat(id)
}

// SetLastMessage points the chat at messageID and bumps updated_at.
// No ordering check is made against the previous pointer.
func (db *DB) SetLastMessage(chatID, messageID string) error {
	res, err := db.Exec(`UPDATE chats SET last_message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, time.Now().UnixMilli(), chatID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("chat %q not found", chatID)
	}
	return nil
}

// DeleteChat removes a chat together with its participants and messages.
func (db *DB) DeleteChat(id string) error {
	_, err := db.Exec(`DELETE FROM chats WHERE id = ?`, id)
	return err
}

func (db *DB) participants(chatID string) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY position`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
