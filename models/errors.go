package models

import "errors"

// ErrorKind classifies game errors for the gateway.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindAuthorization
	KindPhaseViolation
	KindCapacity
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindPhaseViolation:
		return "phase_violation"
	case KindCapacity:
		return "capacity"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Error is a user-facing game error. Message is shown to the client as is.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrRoomNotFound     = newError(KindNotFound, "Room not found.")
	ErrPlayerNotFound   = newError(KindNotFound, "Player is not in this room.")
	ErrRoomFull         = newError(KindCapacity, "Room is full.")
	ErrServerFull       = newError(KindCapacity, "Too many rooms are open, try again later.")
	ErrRateLimited      = newError(KindCapacity, "Too many messages, slow down.")
	ErrNotHost          = newError(KindAuthorization, "Only the host can do that.")
	ErrNotJoined        = newError(KindAuthorization, "Join the room first.")
	ErrInvalidSession   = newError(KindAuthorization, "Your session is no longer valid, join again.")
	ErrWrongPhase       = newError(KindPhaseViolation, "That action is not allowed right now.")
	ErrInputClosed      = newError(KindPhaseViolation, "Input is not open.")
	ErrGameInProgress   = newError(KindPhaseViolation, "A game is already in progress.")
	ErrAlreadySubmitted = newError(KindPhaseViolation, "You already submitted this round.")
	ErrPlayerEliminated = newError(KindPhaseViolation, "You have been eliminated.")
	ErrRoomClosed       = newError(KindNotFound, "Room has closed.")
	ErrInvalidColor     = newError(KindInvalid, "Unknown color.")
	ErrInvalidName      = newError(KindInvalid, "Display name must be 1-12 characters.")
	ErrInvalidRequest   = newError(KindInvalid, "Malformed request.")
)

// KindOf returns the kind of a game error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Kind
	}
	return KindInternal
}

// UserMessage is the text sent to the client in an error event.
func UserMessage(err error) string {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Message
	}
	return "Something went wrong."
}
