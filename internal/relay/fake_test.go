package relay

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/matheus3301/chatrelay/internal/bus"
	"github.com/matheus3301/chatrelay/internal/protocol"
	"github.com/matheus3301/chatrelay/internal/store"
	"go.uber.org/zap"
)

var errFakeClosed = errors.New("fake connection closed")

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errFakeClosed
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func (c *fakeConn) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("conn %s received malformed frame %s: %v", c.id, f, err)
		}
		out = append(out, env)
	}
	return out
}

// ofType returns the payloads of every received envelope tagged typ.
func (c *fakeConn) ofType(t *testing.T, typ string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range c.envelopes(t) {
		if env.Type == typ {
			out = append(out, env.Payload)
		}
	}
	return out
}

func decodePayload[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode payload %s: %v", raw, err)
	}
	return v
}

type testRelay struct {
	db       *store.DB
	bus      *bus.Bus
	registry *Registry
	router   *Router
}

func newTestRelay(t *testing.T, opts Options) *testRelay {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	reg := NewRegistry()
	fan := NewFanout(reg, logger)
	pres := NewPresence(db, fan, b, logger)
	return &testRelay{
		db:       db,
		bus:      b,
		registry: reg,
		router:   NewRouter(reg, pres, fan, db, db, b, logger, opts),
	}
}

func (tr *testRelay) user(t *testing.T, name string) string {
	t.Helper()
	u, err := tr.db.CreateUser(name, name+"@example.com")
	if err != nil {
		t.Fatal(err)
	}
	return u.ID
}

func (tr *testRelay) chat(t *testing.T, participants ...string) string {
	t.Helper()
	c, err := tr.db.CreateChat(participants, len(participants) > 2, "")
	if err != nil {
		t.Fatal(err)
	}
	return c.ID
}

func (tr *testRelay) send(t *testing.T, c Conn, req protocol.Request) {
	t.Helper()
	frame, err := protocol.EncodeRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	tr.router.Handle(c, frame)
}

func (tr *testRelay) auth(t *testing.T, c Conn, userID string) {
	t.Helper()
	tr.send(t, c, &protocol.Auth{UserID: userID})
}

func (tr *testRelay) status(t *testing.T, userID string) string {
	t.Helper()
	u, err := tr.db.GetUser(userID)
	if err != nil {
		t.Fatal(err)
	}
	if u == nil {
		t.Fatalf("user %s not found", userID)
	}
	return u.Status
}
