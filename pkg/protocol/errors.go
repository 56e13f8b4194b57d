package protocol

import "errors"

// ErrorCode is a stable, client-visible error identifier.
type ErrorCode string

const (
	CodeRoomFull         ErrorCode = "ROOM_FULL"
	CodeRoomNotFound     ErrorCode = "ROOM_NOT_FOUND"
	CodeInvalidRoomCode  ErrorCode = "INVALID_ROOM_CODE"
	CodeRoomClosed       ErrorCode = "ROOM_CLOSED"
	CodeInvalidRoomState ErrorCode = "INVALID_ROOM_STATE"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeBadRequest       ErrorCode = "BAD_REQUEST"
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeTimeout          ErrorCode = "TIMEOUT"
)

// Category groups codes by how callers should react to them.
type Category string

const (
	// CategoryCapacity: never retried, alternatives may be attached.
	CategoryCapacity Category = "capacity"
	// CategoryLookup: the target does not exist; never retried.
	CategoryLookup Category = "lookup"
	// CategoryState: the target exists but refuses the operation right now.
	CategoryState Category = "state"
	// CategoryPermission: caller lacks the authority; never retried.
	CategoryPermission Category = "permission"
	// CategoryTransient: worth retrying with backoff.
	CategoryTransient Category = "transient"
)

func (c ErrorCode) Category() Category {
	switch c {
	case CodeRoomFull:
		return CategoryCapacity
	case CodeRoomNotFound, CodeInvalidRoomCode:
		return CategoryLookup
	case CodePermissionDenied:
		return CategoryPermission
	case CodeConnectionFailed, CodeTimeout:
		return CategoryTransient
	default:
		return CategoryState
	}
}

// Retryable reports whether a caller should retry the failed operation.
func (c ErrorCode) Retryable() bool {
	return c.Category() == CategoryTransient
}

// Error is both the wire payload of MsgError and the error value server
// packages return across command boundaries.
type Error struct {
	Code         ErrorCode  `json:"code"`
	Message      string     `json:"message"`
	Alternatives []RoomInfo `json:"alternatives,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WithAlternatives attaches best-effort fallback rooms (ROOM_FULL only).
func (e *Error) WithAlternatives(alts []RoomInfo) *Error {
	e.Alternatives = alts
	return e
}

// AsError unwraps err into a protocol error, if it is one.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the error's code, or CodeConnectionFailed for plain
// transport-level failures so retry policies treat them as transient.
func CodeOf(err error) ErrorCode {
	if pe, ok := AsError(err); ok {
		return pe.Code
	}
	return CodeConnectionFailed
}
