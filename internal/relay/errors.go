package relay

import "errors"

var (
	// ErrChatNotFound is returned when the chat directory has no such chat.
	ErrChatNotFound = errors.New("chat not found")
	// ErrMessageNotFound is returned when the message store has no such message.
	ErrMessageNotFound = errors.New("message not found")
)

// CollaboratorError wraps a failure reported by the account directory, the
// chat directory or the message store.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *CollaboratorError) Unwrap() error { return e.Err }
