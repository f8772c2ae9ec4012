package rpc

import "fmt"

// ErrorCode identifies an RPC failure
type ErrorCode int

const (
	ErrSuccess ErrorCode = iota
	ErrInvalidParams
	ErrInvalidTransaction
	ErrNotSupported
	ErrInternalSubmit
	ErrInternalJSON
	ErrAlreadyActive
	ErrNotActive
	ErrNoPermission
	ErrBadSecret
	ErrSrcActNotFound
	ErrUnknownCommand
	ErrNotReady
)

var errorInfo = map[ErrorCode][2]string{
	ErrInvalidParams:      {"invalidParams", "Invalid parameters."},
	ErrInvalidTransaction: {"invalidTransaction", "Invalid transaction."},
	ErrNotSupported:       {"notSupported", "Operation not supported."},
	ErrInternalSubmit:     {"internalSubmit", "Internal error submitting transaction."},
	ErrInternalJSON:       {"internalJson", "Internal error rendering result."},
	ErrAlreadyActive:      {"alreadyActive", "An attack session is already active."},
	ErrNotActive:          {"notActive", "No attack session is active."},
	ErrNoPermission:       {"noPermission", "You don't have permission for this command."},
	ErrBadSecret:          {"badSecret", "Secret does not match account."},
	ErrSrcActNotFound:     {"srcActNotFound", "Source account not found."},
	ErrUnknownCommand:     {"unknownCmd", "Unknown method."},
	ErrNotReady:           {"notReady", "Not ready to handle this request."},
}

// Error is a failed RPC result
type Error struct {
	Code      ErrorCode
	Message   string
	Exception string
}

// Token returns the short name of the error
func (e *Error) Token() string {
	if info, ok := errorInfo[e.Code]; ok {
		return info[0]
	}
	return "unknown"
}

func (e *Error) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("%s: %s", e.Token(), e.Exception)
	}
	return fmt.Sprintf("%s: %s", e.Token(), e.Message)
}

// JSON renders the error as a result object
func (e *Error) JSON() map[string]any {
	out := map[string]any{
		"status":        "error",
		"error":         e.Token(),
		"error_code":    int(e.Code),
		"error_message": e.Message,
	}
	if e.Exception != "" {
		out["error_exception"] = e.Exception
	}
	return out
}

// MakeError returns an error with the default message of code
func MakeError(code ErrorCode) *Error {
	return &Error{Code: code, Message: errorInfo[code][1]}
}

// MakeErrorMessage returns an error with a custom message
func MakeErrorMessage(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// MakeException returns an error carrying the message of the failure that
// caused it
func MakeException(code ErrorCode, exception string) *Error {
	return &Error{Code: code, Message: errorInfo[code][1], Exception: exception}
}
