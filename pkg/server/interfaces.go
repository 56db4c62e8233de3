package server

import "yachat/pkg/store"

// MessageStore defines the persistent-store operations the server uses.
// This abstraction allows for easier testing and potential future storage
// backends.
type MessageStore interface {
	// User operations
	UserExists(username string) (bool, error)
	CreateUser(username, password string) error
	CheckPassword(username, password string) (bool, error)
	UserID(username string) (int64, error)

	// Message operations
	CreateMessage(fromID, toID int64, text string) error
	MessagesBetween(userID, peerID int64) ([]store.Message, error)
	AllMessages(userID int64) ([]store.ConversationMessage, error)

	// Close the store
	Close() error
}
