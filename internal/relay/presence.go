package relay

import (
	"github.com/matheus3301/chatrelay/internal/bus"
	"github.com/matheus3301/chatrelay/internal/protocol"
	"github.com/matheus3301/chatrelay/internal/store"
	"go.uber.org/zap"
)

// AccountDirectory persists the presence flag of a user.
type AccountDirectory interface {
	SetUserStatus(userID, status string) error
}

// Presence records online/offline in the account directory and announces
// changes to connected clients.
type Presence struct {
	accounts AccountDirectory
	fanout   *Fanout
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewPresence creates a presence manager.
func NewPresence(accounts AccountDirectory, fanout *Fanout, b *bus.Bus, logger *zap.Logger) *Presence {
	return &Presence{accounts: accounts, fanout: fanout, bus: b, logger: logger}
}

// SetOnline marks userID online. Repeating it is harmless.
func (p *Presence) SetOnline(userID string) error {
	if err := p.accounts.SetUserStatus(userID, store.UserOnline); err != nil {
		return &CollaboratorError{Op: "set user online", Err: err}
	}
	p.bus.Emit(bus.KindPresenceOnline, userID)
	return nil
}

// SetOffline marks userID offline. Repeating it is harmless.
func (p *Presence) SetOffline(userID string) error {
	if err := p.accounts.SetUserStatus(userID, store.UserOffline); err != nil {
		return &CollaboratorError{Op: "set user offline", Err: err}
	}
	p.bus.Emit(bus.KindPresenceOff, userID)
	return nil
}

// Announce broadcasts a user_status envelope to every registered connection.
func (p *Presence) Announce(userID, status string) int {
	frame, err := protocol.Encode(protocol.TypeUserStatus, protocol.UserStatus{UserID: userID, Status: status})
	if err != nil {
		p.logger.Error("encode user_status", zap.Error(err))
		return 0
	}
	return p.fanout.Broadcast(frame)
}
