package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates the username has no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists indicates the username is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrNoMessages indicates the queried conversation holds no messages.
	ErrNoMessages = errors.New("no messages found")
)

// Store wraps the SQLite database holding users and messages.
type Store struct {
	conn *sql.DB
}

// Message is one persisted direct message.
type Message struct {
	SenderID    int64
	RecipientID int64
	Text        string
}

// ConversationMessage is one message of a user's history, annotated with the
// counterpart's username so callers can group by conversation.
type ConversationMessage struct {
	Peer     string
	SenderID int64
	Text     string
}

// Open opens the SQLite database at the given path and initializes the
// schema if needed.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows concurrent readers alongside the single writer
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait and retry instead of failing immediately with SQLITE_BUSY
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// SQLite ships with foreign keys disabled
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_user_id INTEGER NOT NULL,
	to_user_id INTEGER NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (from_user_id) REFERENCES users(id),
	FOREIGN KEY (to_user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_user_id, id);
CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_user_id, id);
`
	_, err := s.conn.Exec(schema)
	return err
}

// UserExists reports whether the username has an account.
func (s *Store) UserExists(username string) (bool, error) {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUser registers a new account. The password is stored as a bcrypt
// hash, never in the clear.
func (s *Store) CreateUser(username, password string) error {
	exists, err := s.UserExists(username)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, string(hash), time.Now().UnixMilli(),
	)
	return err
}

// CheckPassword reports whether the password matches the stored hash.
// An unknown username is a mismatch, not an error.
func (s *Store) CheckPassword(username, password string) (bool, error) {
	var hash string
	err := s.conn.QueryRow("SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// UserID resolves a username to its numeric id.
func (s *Store) UserID(username string) (int64, error) {
	var id int64
	err := s.conn.QueryRow("SELECT id FROM users WHERE username = ?", username).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateMessage persists a direct message between two user ids.
func (s *Store) CreateMessage(fromID, toID int64, text string) error {
	_, err := s.conn.Exec(
		"INSERT INTO messages (from_user_id, to_user_id, text, created_at) VALUES (?, ?, ?, ?)",
		fromID, toID, text, time.Now().UnixMilli(),
	)
	return err
}

// MessagesBetween returns every message exchanged between the two users, in
// insertion order. An empty conversation is ErrNoMessages.
func (s *Store) MessagesBetween(userID, peerID int64) ([]Message, error) {
	rows, err := s.conn.Query(`
		SELECT from_user_id, to_user_id, text
		FROM messages
		WHERE (from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)
		ORDER BY id ASC`,
		userID, peerID, peerID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.SenderID, &m.RecipientID, &m.Text); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	return messages, nil
}

// AllMessages returns every message the user sent or received, annotated
// with the counterpart's username and ordered by counterpart then insertion.
// A user with no messages at all is ErrNoMessages.
func (s *Store) AllMessages(userID int64) ([]ConversationMessage, error) {
	rows, err := s.conn.Query(`
		SELECT m.from_user_id, m.text,
		       CASE WHEN m.from_user_id = ? THEN ut.username ELSE uf.username END AS peer
		FROM messages m
		JOIN users uf ON uf.id = m.from_user_id
		JOIN users ut ON ut.id = m.to_user_id
		WHERE m.from_user_id = ? OR m.to_user_id = ?
		ORDER BY peer ASC, m.id ASC`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.SenderID, &m.Text, &m.Peer); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	return messages, nil
}
