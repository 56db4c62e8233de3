package server

import (
	"testing"

	"pgregory.net/rapid"
)

// Model check: under any interleaving of Add, Remove and ForceRemove the
// store keeps at most one session per user, at most one per connection, and
// the forward and reverse maps stay mirror images of each other.
func TestSessionStoreModel(t *testing.T) {
	usernames := []string{"alice", "bob", "carol", "dave"}

	rapid.Check(t, func(t *rapid.T) {
		ss := NewSessionStore()
		active := map[string]uint64{} // model: username -> bound connection
		nextConn := uint64(1)

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			username := rapid.SampledFrom(usernames).Draw(t, "username")

			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0: // Add, on a fresh or a colliding connection id
				connID := rapid.Uint64Range(1, nextConn).Draw(t, "connID")
				if connID == nextConn {
					nextConn++
				}
				_, err := ss.Add(username, connID)

				_, userLoggedIn := active[username]
				connBusy := false
				for _, c := range active {
					if c == connID {
						connBusy = true
					}
				}
				switch {
				case userLoggedIn:
					if err != ErrAlreadyLoggedIn {
						t.Fatalf("Add for logged-in %q: expected ErrAlreadyLoggedIn, got %v", username, err)
					}
				case connBusy:
					if err != ErrConnectionInUse {
						t.Fatalf("Add for %q on busy connection %d: expected ErrConnectionInUse, got %v", username, connID, err)
					}
				default:
					if err != nil {
						t.Fatalf("Add for %q failed: %v", username, err)
					}
					active[username] = connID
				}

			case 1: // Remove by username
				_, loggedIn := active[username]
				if removed := ss.Remove(username); removed != loggedIn {
					t.Fatalf("Remove(%q) = %v, model says %v", username, removed, loggedIn)
				}
				delete(active, username)

			case 2: // ForceRemove by connection id, possibly stale
				connID := rapid.Uint64Range(1, nextConn).Draw(t, "connID")
				ss.ForceRemove(connID)
				for u, c := range active {
					if c == connID {
						delete(active, u)
					}
				}
			}

			checkSessionStoreAgainstModel(t, ss, active)
		}
	})
}

func checkSessionStoreAgainstModel(t *rapid.T, ss *SessionStore, active map[string]uint64) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if len(ss.sessions) != len(active) {
		t.Fatalf("Expected %d sessions, store has %d", len(active), len(ss.sessions))
	}
	if len(ss.byConn) != len(ss.sessions) {
		t.Fatalf("Map sizes diverged: %d sessions vs %d reverse entries", len(ss.sessions), len(ss.byConn))
	}
	for username, connID := range active {
		sess, ok := ss.sessions[username]
		if !ok {
			t.Fatalf("Model has a session for %q, store does not", username)
		}
		if sess.connID != connID {
			t.Fatalf("Session for %q bound to connection %d, model says %d", username, sess.connID, connID)
		}
		if ss.byConn[connID] != username {
			t.Fatalf("Reverse map for connection %d holds %q, expected %q", connID, ss.byConn[connID], username)
		}
	}
}
