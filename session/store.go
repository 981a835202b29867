package session

import "context"

// Store persists sessions keyed by session id, with a secondary index
// from message id to the latest active session.
//
// Append is read-then-append: implementations load the stored session,
// add the entries, and write it back. Concurrent investigations of the
// same message may race on the active index; the last writer wins and
// a stray duplicate session is tolerated.
type Store interface {
	// Put writes the session and, while it is active, the active
	// index for its message.
	Put(ctx context.Context, s *Session) error

	// Get loads a session by id. Returns a not_found error wrapping
	// ErrSessionNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*Session, error)

	// Append adds entries to the end of a stored session's transcript.
	Append(ctx context.Context, id string, entries ...Entry) error

	// LatestActive returns the active session for a message, or a
	// not_found error when none exists.
	LatestActive(ctx context.Context, messageID string) (*Session, error)

	// Complete marks a session completed and clears the active index.
	Complete(ctx context.Context, id string) error

	// Close releases the backend connection.
	Close() error
}
