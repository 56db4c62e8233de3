package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestCreateUser(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateUser("alice", "secret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	exists, err := s.UserExists("alice")
	if err != nil {
		t.Fatalf("UserExists failed: %v", err)
	}
	if !exists {
		t.Error("Expected alice to exist after registration")
	}

	exists, err = s.UserExists("bob")
	if err != nil {
		t.Fatalf("UserExists failed: %v", err)
	}
	if exists {
		t.Error("Expected bob to not exist")
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateUser("alice", "secret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	err := s.CreateUser("alice", "other")
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
}

func TestCheckPassword(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateUser("alice", "secret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	ok, err := s.CheckPassword("alice", "secret")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if !ok {
		t.Error("Expected correct password to match")
	}

	ok, err = s.CheckPassword("alice", "wrong")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if ok {
		t.Error("Expected wrong password to mismatch")
	}

	// unknown user is a mismatch, not an error
	ok, err = s.CheckPassword("bob", "secret")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if ok {
		t.Error("Expected unknown user to mismatch")
	}
}

func TestPasswordIsHashed(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateUser("alice", "secret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	var stored string
	err := s.conn.QueryRow("SELECT password_hash FROM users WHERE username = ?", "alice").Scan(&stored)
	if err != nil {
		t.Fatalf("Failed to read stored hash: %v", err)
	}
	if stored == "secret" {
		t.Error("Password stored in the clear")
	}
}

func TestUserID(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateUser("alice", "secret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	id, err := s.UserID("alice")
	if err != nil {
		t.Fatalf("UserID failed: %v", err)
	}
	if id == 0 {
		t.Error("Expected non-zero user id")
	}

	_, err = s.UserID("bob")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestMessagesBetween(t *testing.T) {
	s := newTestStore(t)

	aliceID := mustCreateUser(t, s, "alice")
	bobID := mustCreateUser(t, s, "bob")
	carolID := mustCreateUser(t, s, "carol")

	mustCreateMessage(t, s, aliceID, bobID, "hi bob")
	mustCreateMessage(t, s, bobID, aliceID, "hi alice")
	mustCreateMessage(t, s, aliceID, bobID, "how are you")
	mustCreateMessage(t, s, aliceID, carolID, "hi carol")

	msgs, err := s.MessagesBetween(aliceID, bobID)
	if err != nil {
		t.Fatalf("MessagesBetween failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}

	// insertion order, both directions
	want := []Message{
		{SenderID: aliceID, RecipientID: bobID, Text: "hi bob"},
		{SenderID: bobID, RecipientID: aliceID, Text: "hi alice"},
		{SenderID: aliceID, RecipientID: bobID, Text: "how are you"},
	}
	for i, m := range msgs {
		if m != want[i] {
			t.Errorf("Message %d: got %+v, want %+v", i, m, want[i])
		}
	}

	// same conversation regardless of argument order
	reversed, err := s.MessagesBetween(bobID, aliceID)
	if err != nil {
		t.Fatalf("MessagesBetween failed: %v", err)
	}
	if len(reversed) != 3 {
		t.Errorf("Expected 3 messages from bob's side, got %d", len(reversed))
	}
}

func TestMessagesBetweenEmpty(t *testing.T) {
	s := newTestStore(t)

	aliceID := mustCreateUser(t, s, "alice")
	bobID := mustCreateUser(t, s, "bob")

	_, err := s.MessagesBetween(aliceID, bobID)
	if !errors.Is(err, ErrNoMessages) {
		t.Errorf("Expected ErrNoMessages, got %v", err)
	}
}

func TestAllMessages(t *testing.T) {
	s := newTestStore(t)

	aliceID := mustCreateUser(t, s, "alice")
	bobID := mustCreateUser(t, s, "bob")
	carolID := mustCreateUser(t, s, "carol")

	mustCreateMessage(t, s, aliceID, carolID, "hi carol")
	mustCreateMessage(t, s, aliceID, bobID, "hi bob")
	mustCreateMessage(t, s, bobID, aliceID, "hi alice")
	mustCreateMessage(t, s, bobID, carolID, "unrelated")

	msgs, err := s.AllMessages(aliceID)
	if err != nil {
		t.Fatalf("AllMessages failed: %v", err)
	}

	// ordered by peer name, then insertion; bob<->carol traffic excluded
	want := []ConversationMessage{
		{Peer: "bob", SenderID: aliceID, Text: "hi bob"},
		{Peer: "bob", SenderID: bobID, Text: "hi alice"},
		{Peer: "carol", SenderID: aliceID, Text: "hi carol"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("Expected %d messages, got %d: %+v", len(want), len(msgs), msgs)
	}
	for i, m := range msgs {
		if m != want[i] {
			t.Errorf("Message %d: got %+v, want %+v", i, m, want[i])
		}
	}
}

func TestAllMessagesEmpty(t *testing.T) {
	s := newTestStore(t)

	aliceID := mustCreateUser(t, s, "alice")

	_, err := s.AllMessages(aliceID)
	if !errors.Is(err, ErrNoMessages) {
		t.Errorf("Expected ErrNoMessages, got %v", err)
	}
}

func mustCreateUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	if err := s.CreateUser(username, "password"); err != nil {
		t.Fatalf("CreateUser(%q) failed: %v", username, err)
	}
	id, err := s.UserID(username)
	if err != nil {
		t.Fatalf("UserID(%q) failed: %v", username, err)
	}
	return id
}

func mustCreateMessage(t *testing.T, s *Store, fromID, toID int64, text string) {
	t.Helper()
	if err := s.CreateMessage(fromID, toID, text); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
}
