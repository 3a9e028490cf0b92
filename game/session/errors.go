package session

import "fmt"

// Error codes logged as err_code.
const (
	CodeAlreadyActive   = "ALREADY_ACTIVE"
	CodeNoActiveSession = "NO_ACTIVE_SESSION"
	CodeWrongOwner      = "WRONG_OWNER"
	CodeExpired         = "EXPIRED"
	CodeEngineFailure   = "ENGINE_FAILURE"
	CodeGuessPending    = "GUESS_PENDING"
	CodeBusy            = "BUSY"
)

// Error is a lifecycle failure with a stable code. Errors with the same
// code match under errors.Is.
type Error struct {
	code string
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return "session: " + e.msg + ": " + e.err.Error()
	}
	return "session: " + e.msg
}

// Code returns the stable error code.
func (e *Error) Code() string { return e.code }

func (e *Error) Unwrap() error { return e.err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

var (
	ErrAlreadyActive   = &Error{code: CodeAlreadyActive, msg: "a game is already running in this chat"}
	ErrNoActiveSession = &Error{code: CodeNoActiveSession, msg: "no game is running in this chat"}
	ErrWrongOwner      = &Error{code: CodeWrongOwner, msg: "the game belongs to another user"}
	ErrExpired         = &Error{code: CodeExpired, msg: "the game expired"}
	ErrEngineFailure   = &Error{code: CodeEngineFailure, msg: "engine call failed"}
	ErrGuessPending    = &Error{code: CodeGuessPending, msg: "a guess is waiting for a verdict"}
	ErrBusy            = &Error{code: CodeBusy, msg: "the previous answer is still being processed"}
)

// ActiveError is returned by Create when the chat already has a game.
// It matches ErrAlreadyActive.
type ActiveError struct {
	OwnerID int64
}

func (e *ActiveError) Error() string {
	return fmt.Sprintf("%s (owner %d)", ErrAlreadyActive.Error(), e.OwnerID)
}

// Code returns CodeAlreadyActive.
func (e *ActiveError) Code() string { return CodeAlreadyActive }

// Is matches ErrAlreadyActive.
func (e *ActiveError) Is(target error) bool { return target == ErrAlreadyActive }

func engineFailure(op string, err error) error {
	return &Error{code: CodeEngineFailure, msg: "engine " + op + " failed", err: err}
}
