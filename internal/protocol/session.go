package protocol

import "github.com/google/uuid"

// SessionID correlates a protocol session across logs, the debug server's
// telemetry stream, and request/response tracing, independent of the wire
// sequence_id (which only has to be unique within one session).
type SessionID string

// NewSessionID mints a fresh random session identifier. The handler does
// not call it: accepting a Handshake does not assign a session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}
