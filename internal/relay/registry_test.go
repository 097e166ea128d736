package relay

import (
	"fmt"
	"slices"
	"sync"
	"testing"
)

func TestRegistryLatestAuthWins(t *testing.T) {
	r := NewRegistry()
	conns := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	for _, c := range conns {
		if displaced := r.Register("u1", c); displaced != "" {
			t.Errorf("Register(%s) displaced %q, want none", c.id, displaced)
		}
	}

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	got, ok := r.Lookup("u1")
	if !ok || got != conns[2] {
		t.Errorf("Lookup(u1) = %v, %v; want conn c", got, ok)
	}
	for _, stale := range conns[:2] {
		if !stale.Open() {
			t.Errorf("superseded conn %s was closed", stale.id)
		}
		if _, ok := r.UserOf(stale); ok {
			t.Errorf("superseded conn %s still mapped", stale.id)
		}
	}
}

func TestRegistryUnregisterSupersededIsNoop(t *testing.T) {
	r := NewRegistry()
	old, fresh := newFakeConn("old"), newFakeConn("new")
	r.Register("u1", old)
	r.Register("u1", fresh)

	if _, ok := r.Unregister(old); ok {
		t.Error("Unregister(superseded) reported a removal")
	}
	if got, ok := r.Lookup("u1"); !ok || got != fresh {
		t.Errorf("Lookup(u1) = %v, %v; want fresh conn", got, ok)
	}

	userID, ok := r.Unregister(fresh)
	if !ok || userID != "u1" {
		t.Errorf("Unregister(fresh) = %q, %v; want u1, true", userID, ok)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if _, ok := r.Unregister(fresh); ok {
		t.Error("second Unregister reported a removal")
	}
}

func TestRegistryReauthMovesEntry(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c")
	r.Register("u1", c)

	if displaced := r.Register("u2", c); displaced != "u1" {
		t.Errorf("displaced = %q, want u1", displaced)
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Error("u1 still registered after re-auth")
	}
	if got, _ := r.UserOf(c); got != "u2" {
		t.Errorf("UserOf = %q, want u2", got)
	}
	if displaced := r.Register("u2", c); displaced != "" {
		t.Errorf("repeat auth displaced %q", displaced)
	}
}

func TestRegistrySnapshots(t *testing.T) {
	r := NewRegistry()
	r.Register("u2", newFakeConn("2"))
	r.Register("u1", newFakeConn("1"))

	if got := r.Users(); !slices.Equal(got, []string{"u1", "u2"}) {
		t.Errorf("Users() = %v", got)
	}
	if got := len(r.Connections()); got != 2 {
		t.Errorf("len(Connections()) = %d, want 2", got)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newFakeConn(fmt.Sprint(i))
			userID := fmt.Sprintf("u%d", i%10)
			r.Register(userID, c)
			r.Lookup(userID)
			r.Connections()
			if i%2 == 0 {
				r.Unregister(c)
			}
		}()
	}
	wg.Wait()

	for _, c := range r.Connections() {
		userID, ok := r.UserOf(c)
		if !ok {
			t.Fatalf("conn %s registered without reverse entry", c.ID())
		}
		if got, _ := r.Lookup(userID); got != c {
			t.Errorf("maps disagree for %s", userID)
		}
	}
}
