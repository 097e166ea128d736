package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateUser adds an account with a server-assigned id. Usernames are unique.
func (db *DB) CreateUser(username, email string) (*User, error) {
	u := &User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Status:    UserOffline,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err := db.Exec(`
		INSERT INTO users (id, username, email, status, last_seen, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		u.ID, u.Username, u.Email, u.Status, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user %q: %w", username, err)
	}
	return u, nil
}

// GetUser returns a user by id, or nil when unknown.
func (db *DB) GetUser(id string) (*User, error) {
	return db.scanUser(db.QueryRow(`
		SELECT id, username, email, status, last_seen, created_at
		FROM users WHERE id = ?`, id))
}

// GetUserByUsername returns a user by username, or nil when unknown.
func (db *DB) GetUserByUsername(username string) (*User, error) {
	return db.scanUser(db.QueryRow(`
		SELECT id, username, email, status, last_seen, created_at
		FROM users WHERE username = ?`, username))
}

// ListUsers returns every account, newest first.
func (db *DB) ListUsers() ([]User, error) {
	rows, err := db.Query(`
		SELECT id, username, email, status, last_seen, created_at
		FROM users ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Status, &u.LastSeen, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserStatus records presence and stamps last_seen. Unknown ids are ignored.
func (db *DB) SetUserStatus(id, status string) error {
	_, err := db.Exec(`UPDATE users SET status = ?, last_seen = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id)
	return err
}

// ResetPresence marks every online user offline and returns how many changed.
// Run at startup, when no connection can be registered yet.
func (db *DB) ResetPresence() (int64, error) {
	res, err := db.Exec(`UPDATE users SET status = ?, last_seen = ? WHERE status = ?`,
		UserOffline, time.Now().UnixMilli(), UserOnline)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Status, &u.LastSeen, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
