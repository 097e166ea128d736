package relay

import "go.uber.org/zap"

// Fanout delivers encoded frames to whichever target users are online.
// Delivery is fire-and-forget: absent or unwritable connections are skipped.
type Fanout struct {
	registry *Registry
	logger   *zap.Logger
}

// NewFanout creates a fan-out engine over the registry.
func NewFanout(registry *Registry, logger *zap.Logger) *Fanout {
	return &Fanout{registry: registry, logger: logger}
}

// Deliver sends frame to each user id with a registered, open connection and
// returns how many connections accepted it.
func (f *Fanout) Deliver(userIDs []string, frame []byte) int {
	delivered := 0
	for _, userID := range userIDs {
		c, ok := f.registry.Lookup(userID)
		if !ok {
			f.logger.Debug("recipient offline, skipping", zap.String("user_id", userID))
			continue
		}
		if f.send(c, userID, frame) {
			delivered++
		}
	}
	return delivered
}

// Broadcast sends frame to every registered connection.
func (f *Fanout) Broadcast(frame []byte) int {
	delivered := 0
	for _, c := range f.registry.Connections() {
		if f.send(c, "", frame) {
			delivered++
		}
	}
	return delivered
}

func (f *Fanout) send(c Conn, userID string, frame []byte) bool {
	if !c.Open() {
		f.logger.Debug("connection not writable, skipping", zap.String("conn_id", c.ID()), zap.String("user_id", userID))
		return false
	}
	if err := c.Send(frame); err != nil {
		f.logger.Debug("send failed, skipping", zap.String("conn_id", c.ID()), zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return true
}
