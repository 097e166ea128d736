package bus

import "time"

// Event kinds published by the relay. Subscribers filter on prefixes such as
// "presence." or "relay.".
const (
	KindStatusChanged  = "relay.status_changed"
	KindPresenceOnline = "presence.online"
	KindPresenceOff    = "presence.offline"
	KindMessageCreated = "message.created"
	KindMessageRead    = "message.read"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
