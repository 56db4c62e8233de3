package server

import (
	"net"
	"sync"

	"yachat/pkg/protocol"
)

// SafeConn wraps a connection with a write mutex so a pushed NOTIFY frame
// can never interleave bytes with an in-flight response frame on the same
// socket.
type SafeConn struct {
	conn    net.Conn
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewSafeConn wraps a net.Conn for synchronized frame writes.
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteFrame serializes v and writes it as one frame, holding the write
// lock for the duration of the write.
func (c *SafeConn) WriteFrame(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return net.ErrClosed
	}
	c.closeMu.Unlock()

	return protocol.WriteFrame(c.conn, v)
}

// Close closes the underlying connection. Safe to call more than once.
func (c *SafeConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// RemoteAddr returns the remote address of the underlying connection.
func (c *SafeConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
