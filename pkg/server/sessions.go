package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyLoggedIn indicates the username already has an active session.
	ErrAlreadyLoggedIn = errors.New("user already logged in")
	// ErrConnectionInUse indicates the connection already carries a session.
	ErrConnectionInUse = errors.New("connection already has a session")
	// ErrNotLoggedIn indicates the username has no active session.
	ErrNotLoggedIn = errors.New("user not logged in")
)

// sessionTokenBytes is the entropy of a session token. Tokens are 64 hex
// characters on the wire.
const sessionTokenBytes = 32

type session struct {
	token  string
	connID uint64
}

// SessionStore enforces at most one active session per username. The
// forward map (username to session) and the reverse map (connection id to
// username) are mutated together under one mutex, so they can never
// disagree.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
	byConn   map[uint64]string
	metrics  *Metrics
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]session),
		byConn:   make(map[uint64]string),
	}
}

// SetMetrics attaches metrics to the session store.
func (ss *SessionStore) SetMetrics(metrics *Metrics) {
	ss.metrics = metrics
}

// Add creates a session binding the username to a connection and returns
// the fresh session token. Fails with ErrAlreadyLoggedIn if the username
// already has a session and ErrConnectionInUse if the connection already
// carries one; both checks happen under the same critical section, so a
// rejected add can never disturb either map. Concurrent adds for the same
// username are serialized so exactly one wins.
func (ss *SessionStore) Add(username string, connID uint64) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	if _, exists := ss.sessions[username]; exists {
		return "", ErrAlreadyLoggedIn
	}
	// A second login on the same connection would overwrite the reverse
	// entry and orphan the first user's session on disconnect.
	if _, exists := ss.byConn[connID]; exists {
		return "", ErrConnectionInUse
	}

	ss.sessions[username] = session{token: token, connID: connID}
	ss.byConn[connID] = username

	if ss.metrics != nil {
		ss.metrics.RecordActiveSessions(len(ss.sessions))
	}

	return token, nil
}

// Get returns the session token for a username.
func (ss *SessionStore) Get(username string) (string, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sess, ok := ss.sessions[username]
	if !ok {
		return "", ErrNotLoggedIn
	}
	return sess.token, nil
}

// ConnectionOf returns the connection id the username's session is bound to.
func (ss *SessionStore) ConnectionOf(username string) (uint64, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sess, ok := ss.sessions[username]
	if !ok {
		return 0, ErrNotLoggedIn
	}
	return sess.connID, nil
}

// Remove tears down the username's session, removing both mappings. Returns
// false if no session existed.
func (ss *SessionStore) Remove(username string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sess, ok := ss.sessions[username]
	if !ok {
		return false
	}

	delete(ss.sessions, username)
	delete(ss.byConn, sess.connID)

	if ss.metrics != nil {
		ss.metrics.RecordActiveSessions(len(ss.sessions))
	}

	return true
}

// ForceRemove tears down whatever session is bound to the connection, used
// when the connection drops. A connection with no session is a no-op, and
// calling it twice is harmless.
func (ss *SessionStore) ForceRemove(connID uint64) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	username, ok := ss.byConn[connID]
	if !ok {
		return
	}

	delete(ss.byConn, connID)
	delete(ss.sessions, username)

	if ss.metrics != nil {
		ss.metrics.RecordActiveSessions(len(ss.sessions))
	}
}

// IsAuthorized reports whether a session exists for the username and its
// token matches exactly. The caller cannot tell a missing session from a
// wrong token.
func (ss *SessionStore) IsAuthorized(token, username string) bool {
	ss.mu.Lock()
	sess, ok := ss.sessions[username]
	ss.mu.Unlock()

	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sess.token), []byte(token)) == 1
}

// Count returns the number of active sessions.
func (ss *SessionStore) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return len(ss.sessions)
}

// newSessionToken draws a fresh unguessable token from the system CSPRNG.
func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
