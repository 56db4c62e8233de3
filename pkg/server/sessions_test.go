package server

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestSessionAddAndAuthorize(t *testing.T) {
	ss := NewSessionStore()

	token, err := ss.Add("alice", 1)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("Expected 64-char token, got %d chars", len(token))
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Errorf("Expected hex token, got %q", token)
	}

	if !ss.IsAuthorized(token, "alice") {
		t.Error("Expected fresh token to authorize alice")
	}
	if ss.IsAuthorized(token, "bob") {
		t.Error("Expected token to not authorize a different user")
	}
	if ss.IsAuthorized("wrong", "alice") {
		t.Error("Expected wrong token to not authorize")
	}

	got, err := ss.Get("alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != token {
		t.Error("Get returned a different token than Add")
	}

	connID, err := ss.ConnectionOf("alice")
	if err != nil {
		t.Fatalf("ConnectionOf failed: %v", err)
	}
	if connID != 1 {
		t.Errorf("Expected connection 1, got %d", connID)
	}
}

func TestSessionSinglePerUser(t *testing.T) {
	ss := NewSessionStore()

	token, err := ss.Add("alice", 1)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	_, err = ss.Add("alice", 2)
	if !errors.Is(err, ErrAlreadyLoggedIn) {
		t.Fatalf("Expected ErrAlreadyLoggedIn, got %v", err)
	}

	// the existing session is untouched by the rejected add
	if !ss.IsAuthorized(token, "alice") {
		t.Error("Expected original session to stay valid")
	}
	connID, err := ss.ConnectionOf("alice")
	if err != nil {
		t.Fatalf("ConnectionOf failed: %v", err)
	}
	if connID != 1 {
		t.Errorf("Expected session bound to connection 1, got %d", connID)
	}
	if ss.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", ss.Count())
	}
}

func TestSessionSinglePerConnection(t *testing.T) {
	ss := NewSessionStore()

	aliceToken, err := ss.Add("alice", 1)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// a second user on the same connection must not overwrite the
	// connection's reverse entry
	if _, err := ss.Add("bob", 1); !errors.Is(err, ErrConnectionInUse) {
		t.Fatalf("Expected ErrConnectionInUse, got %v", err)
	}

	if !ss.IsAuthorized(aliceToken, "alice") {
		t.Error("Expected alice's session to survive the rejected add")
	}
	if connID, err := ss.ConnectionOf("alice"); err != nil || connID != 1 {
		t.Errorf("Expected alice bound to connection 1, got %d (%v)", connID, err)
	}

	// the connection drop tears down the one session it carries
	ss.ForceRemove(1)
	if ss.Count() != 0 {
		t.Fatalf("Expected 0 sessions after ForceRemove, got %d", ss.Count())
	}
	if ss.IsAuthorized(aliceToken, "alice") {
		t.Error("Expected alice's token to expire with her connection")
	}
	if _, err := ss.Add("alice", 2); err != nil {
		t.Errorf("Expected alice to log in again after the drop, got %v", err)
	}
}

func TestSessionRemove(t *testing.T) {
	ss := NewSessionStore()

	token, err := ss.Add("alice", 1)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if !ss.Remove("alice") {
		t.Error("Expected Remove to report an existing session")
	}
	if ss.Remove("alice") {
		t.Error("Expected second Remove to report nothing to remove")
	}

	if ss.IsAuthorized(token, "alice") {
		t.Error("Expected token to be invalid after removal")
	}
	if _, err := ss.Get("alice"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := ss.ConnectionOf("alice"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Expected ErrNotLoggedIn, got %v", err)
	}

	// the connection id is free for a new session
	if _, err := ss.Add("alice", 2); err != nil {
		t.Fatalf("Expected re-login after removal to succeed, got %v", err)
	}
}

func TestSessionForceRemove(t *testing.T) {
	ss := NewSessionStore()

	token, err := ss.Add("alice", 7)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ss.ForceRemove(7)
	if ss.IsAuthorized(token, "alice") {
		t.Error("Expected session gone after ForceRemove")
	}
	if ss.Count() != 0 {
		t.Errorf("Expected 0 sessions, got %d", ss.Count())
	}

	// idempotent, and a connection that never had a session is a no-op
	ss.ForceRemove(7)
	ss.ForceRemove(99)
}

func TestSessionTokensUnique(t *testing.T) {
	ss := NewSessionStore()

	t1, err := ss.Add("alice", 1)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	t2, err := ss.Add("bob", 2)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if t1 == t2 {
		t.Error("Expected distinct tokens for distinct sessions")
	}
}
