package server

import (
	"net"
	"sync"
)

// ConnRegistry tracks every live connection by an opaque id. Ids are unique
// for the lifetime of the process and never reused.
type ConnRegistry struct {
	mu     sync.RWMutex
	conns  map[uint64]*SafeConn
	nextID uint64
}

// NewConnRegistry creates an empty connection registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		conns:  make(map[uint64]*SafeConn),
		nextID: 1,
	}
}

// Register wraps the connection and adds it to the registry, returning its
// id and the wrapped handle.
func (r *ConnRegistry) Register(conn net.Conn) (uint64, *SafeConn) {
	sc := NewSafeConn(conn)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.conns[id] = sc

	return id, sc
}

// Unregister removes the connection from the registry and closes the
// handle. The registry entry is deleted before the handle is released, so a
// concurrent Lookup can never return a connection that is already gone from
// the table. Idempotent.
func (r *ConnRegistry) Unregister(connID uint64) {
	r.mu.Lock()
	sc, ok := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()

	if ok {
		sc.Close()
	}
}

// Lookup returns the live connection for an id, if it is still registered.
func (r *ConnRegistry) Lookup(connID uint64) (*SafeConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok := r.conns[connID]
	return sc, ok
}

// Count returns the number of live connections.
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// CloseAll closes every registered connection and empties the registry.
func (r *ConnRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sc := range r.conns {
		sc.Close()
	}
	r.conns = make(map[uint64]*SafeConn)
}
