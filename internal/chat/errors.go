package chat

import "errors"

// Failure taxonomy surfaced to clients. Membership absence for room
// operations is not in this list; those calls succeed without effect.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrNotFound           = errors.New("not found")
	ErrPersistence        = errors.New("persistence failure")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrInvalidOperation   = errors.New("invalid operation")
)

// Error codes as they appear on the wire.
const (
	CodeNotAuthenticated   = "not_authenticated"
	CodeUnknownParticipant = "unknown_participant"
	CodeNotFound           = "not_found"
	CodePersistence        = "persistence_failure"
	CodeInvalidMessage     = "invalid_message"
	CodeInvalidOperation   = "invalid_operation"
	CodeInternal           = "internal"
)

// Code maps err onto its stable wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return CodeNotAuthenticated
	case errors.Is(err, ErrUnknownParticipant):
		return CodeUnknownParticipant
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	case errors.Is(err, ErrInvalidMessage):
		return CodeInvalidMessage
	case errors.Is(err, ErrInvalidOperation):
		return CodeInvalidOperation
	default:
		return CodeInternal
	}
}
