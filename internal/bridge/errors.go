package bridge

import (
	"errors"
)

// Error codes understood by the host.
const (
	CodeUnavailable      = "UNAVAILABLE"
	CodeDisabled         = "DISABLED"
	CodeError            = "ERROR"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotImplemented   = "NOT_IMPLEMENTED"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeShutdown         = "SHUTDOWN"
)

var (
	ErrMethodNotFound = errors.New("method not implemented")
	ErrClosed         = errors.New("bridge: channel closed")
)

// ChannelError is an error answer to a method call.
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewChannelError creates a ChannelError.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}

// NewChannelErrorWithDetails creates a ChannelError carrying details.
func NewChannelErrorWithDetails(code, message string, details any) *ChannelError {
	return &ChannelError{Code: code, Message: message, Details: details}
}

// AsChannelError converts any error to a ChannelError. Errors that are not
// already channel errors become CodeError.
func AsChannelError(err error) *ChannelError {
	if err == nil {
		return nil
	}
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, ErrMethodNotFound) {
		return NewChannelError(CodeNotImplemented, err.Error())
	}
	if errors.Is(err, ErrClosed) {
		return NewChannelError(CodeShutdown, err.Error())
	}
	return NewChannelError(CodeError, err.Error())
}
