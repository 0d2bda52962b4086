package pool

import (
	"bufio"
	"net"
	"time"
)

// Conn is one pooled connection. It embeds the established net.Conn (TLS
// wrapped for https keys) and carries the buffered reader responses are
// parsed from. A Conn is owned by the pool except while checked out to
// exactly one caller.
type Conn struct {
	net.Conn

	key        Key
	br         *bufio.Reader
	createdAt  time.Time
	lastIdleAt time.Time
}

// Key returns the pool bucket this connection belongs to.
func (c *Conn) Key() Key {
	return c.key
}

// Reader returns the buffered reader wrapping the connection.
func (c *Conn) Reader() *bufio.Reader {
	return c.br
}

// Age returns the time since the connection was established.
func (c *Conn) Age() time.Duration {
	return time.Since(c.createdAt)
}

// expired reports whether the connection has sat idle past timeout.
// Fresh connections have a zero lastIdleAt and never expire.
func (c *Conn) expired(timeout time.Duration) bool {
	return timeout > 0 && !c.lastIdleAt.IsZero() && time.Since(c.lastIdleAt) >= timeout
}
