// Package relay is the real-time delivery core: it keeps the user to
// connection registry, interprets inbound envelopes, and fans events out to
// live connections.
package relay

// Conn is a live duplex connection owned by the transport. The relay only
// references connections; it never closes them.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Send queues one outbound frame without blocking.
	Send(frame []byte) error
	// Open reports whether the connection still accepts writes.
	Open() bool
}
