package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 || dirty {
		t.Errorf("SchemaVersion() = %d dirty=%v, want 1 clean", version, dirty)
	}
}

func TestSchemaVersionUnmigrated(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	version, _, err := db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0", version)
	}
}

func TestUsers(t *testing.T) {
	db := testDB(t)

	alice, err := db.CreateUser("alice", "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if alice.Status != UserOffline {
		t.Errorf("new user status = %q, want offline", alice.Status)
	}
	if _, err := db.CreateUser("alice", ""); err == nil {
		t.Error("duplicate username should fail")
	}

	got, err := db.GetUserByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != alice.ID {
		t.Fatalf("GetUserByUsername = %v, want %s", got, alice.ID)
	}

	missing, err := db.GetUser("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown user, got %v", missing)
	}

	time.Sleep(2 * time.Millisecond)
	if _, err := db.CreateUser("bob", ""); err != nil {
		t.Fatal(err)
	}
	users, err := db.ListUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Username != "bob" {
		t.Errorf("ListUsers = %+v, want bob first", users)
	}
}

func TestSetUserStatus(t *testing.T) {
	db := testDB(t)

	u, err := db.CreateUser("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := db.SetUserStatus(u.ID, UserOnline); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.GetUser(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != UserOnline {
		t.Errorf("status = %q, want online", got.Status)
	}
	if got.LastSeen == 0 {
		t.Error("last_seen not stamped")
	}

	if err := db.SetUserStatus("ghost", UserOnline); err != nil {
		t.Errorf("unknown user should be a no-op, got %v", err)
	}
}

func TestResetPresence(t *testing.T) {
	db := testDB(t)

	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := db.CreateUser(name, "")
		if err != nil {
			t.Fatal(err)
		}
		if name != "carol" {
			if err := db.SetUserStatus(u.ID, UserOnline); err != nil {
				t.Fatal(err)
			}
		}
	}

	n, err := db.ResetPresence()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ResetPresence() = %d, want 2", n)
	}
	users, err := db.ListUsers()
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range users {
		if u.Status != UserOffline {
			t.Errorf("%s status = %q, want offline", u.Username, u.Status)
		}
	}
}

func TestCreateAndGetChat(t *testing.T) {
	db := testDB(t)

	c, err := db.CreateChat([]string{"u2", "u1", "u2", ""}, true, "team")
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.GetChat(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("GetChat returned nil")
	}
	if len(got.Participants) != 2 || got.Participants[0] != "u2" || got.Participants[1] != "u1" {
		t.Errorf("participants = %v, want [u2 u1]", got.Participants)
	}
	if !got.IsGroup || got.GroupName != "team" {
		t.Errorf("group fields = %v %q", got.IsGroup, got.GroupName)
	}

	if _, err := db.CreateChat(nil, false, ""); !errors.Is(err, ErrNoParticipants) {
		t.Errorf("CreateChat(nil) error = %v, want ErrNoParticipants", err)
	}

	missing, err := db.GetChat("missing")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing chat")
	}
}

func TestFindOrCreateDirectChat(t *testing.T) {
	db := testDB(t)

	first, err := db.FindOrCreateDirectChat("a", "b")
	if err != nil {
		t.Fatal(err)
	}
	again, err := db.FindOrCreateDirectChat("b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("second lookup created %s, want existing %s", again.ID, first.ID)
	}

	if _, err := db.CreateChat([]string{"a", "b", "c"}, true, "g"); err != nil {
		t.Fatal(err)
	}
	other, err := db.FindOrCreateDirectChat("a", "c")
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID || other.IsGroup {
		t.Errorf("a/c direct chat = %+v, want a new direct chat", other)
	}
}

func TestMessagesAndLastMessage(t *testing.T) {
	db := testDB(t)

	alice, err := db.CreateUser("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	c, err := db.CreateChat([]string{alice.ID, "bob"}, false, "")
	if err != nil {
		t.Fatal(err)
	}

	m, err := db.CreateMessage(c.ID, alice.ID, "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != MessageSent || m.MessageType != TypeText {
		t.Errorf("new message = %+v, want sent/text", m)
	}
	if m.SenderName != "alice" {
		t.Errorf("sender name = %q, want alice", m.SenderName)
	}
	if m.CreatedAt == 0 || m.ID == "" {
		t.Error("server fields not assigned")
	}

	if err := db.SetLastMessage(c.ID, m.ID); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetChat(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageID != m.ID {
		t.Errorf("last message = %q, want %q", got.LastMessageID, m.ID)
	}
	if err := db.SetLastMessage("missing", m.ID); err == nil {
		t.Error("SetLastMessage on unknown chat should fail")
	}

	unknownSender, err := db.CreateMessage(c.ID, "bob", "yo", TypeImage)
	if err != nil {
		t.Fatal(err)
	}
	if unknownSender.SenderName != "" {
		t.Errorf("sender name = %q, want empty for unknown account", unknownSender.SenderName)
	}

	msgs, err := db.ListMessages(c.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != unknownSender.ID {
		t.Errorf("ListMessages = %+v, want newest first", msgs)
	}
}

func TestCreateMessageRejectsUnknownChat(t *testing.T) {
	db := testDB(t)

	if _, err := db.CreateMessage("missing", "u1", "hi", TypeText); err == nil {
		t.Error("CreateMessage on unknown chat should fail")
	}
}

func TestCreateMessageRejectsUnknownType(t *testing.T) {
	db := testDB(t)

	c, err := db.CreateChat([]string{"u1"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateMessage(c.ID, "u1", "hi", "video"); err == nil {
		t.Error("CreateMessage with unknown type should fail")
	}
}

func TestSetMessageStatus(t *testing.T) {
	db := testDB(t)

	c, err := db.CreateChat([]string{"u1", "u2"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	m, err := db.CreateMessage(c.ID, "u1", "hi", TypeText)
	if err != nil {
		t.Fatal(err)
	}

	updated, err := db.SetMessageStatus(m.ID, MessageRead)
	if err != nil {
		t.Fatal(err)
	}
	if updated == nil || updated.Status != MessageRead || updated.SenderID != "u1" {
		t.Errorf("updated = %+v, want read from u1", updated)
	}

	missing, err := db.SetMessageStatus("missing", MessageRead)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown message, got %+v", missing)
	}
}

func TestDeleteChatCascades(t *testing.T) {
	db := testDB(t)

	c, err := db.CreateChat([]string{"u1", "u2"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	m, err := db.CreateMessage(c.ID, "u1", "hi", TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteChat(c.ID); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetMessage(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("message survived chat deletion")
	}
	chats, err := db.ListUserChats("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 0 {
		t.Errorf("ListUserChats = %d chats, want 0", len(chats))
	}
}

func TestListUserChatsOrder(t *testing.T) {
	db := testDB(t)

	older, err := db.CreateChat([]string{"u1", "u2"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	newer, err := db.CreateChat([]string{"u1", "u3"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)

	// A new last message moves the older chat to the top.
	m, err := db.CreateMessage(older.ID, "u2", "ping", TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetLastMessage(older.ID, m.ID); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListUserChats("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].ID != older.ID || chats[1].ID != newer.ID {
		t.Errorf("order = [%s %s], want [%s %s]", chats[0].ID, chats[1].ID, older.ID, newer.ID)
	}
	if len(chats[0].Participants) != 2 {
		t.Errorf("participants not loaded: %v", chats[0].Participants)
	}
}
