package realtime

// Conn is one live client connection as seen by the core.
type Conn interface {
	// ID is unique per connection, not per user.
	ID() string
	// Send enqueues an event without blocking; false means it was dropped.
	Send(evt Outbound) bool
	// Close asks the transport to shut the connection. Safe to call twice.
	Close()
}

func sameConn(a, b Conn) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}
