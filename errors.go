package speechstream

import (
	"errors"
	"fmt"
)

// FormatError reports a malformed or unsupported audio container header.
// It is fatal to the parse or session start step and never retried.
type FormatError struct {
	Op      string
	Message string
	Cause   error
}

func (e *FormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("speechstream: format error: %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("speechstream: format error: %s: %s", e.Op, e.Message)
}

func (e *FormatError) Unwrap() error {
	return e.Cause
}

// ConfigError reports a configuration rejected by the backend (or by the
// client-side sanity check). Message holds the backend's text verbatim.
type ConfigError struct {
	Message string
	Code    *int
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("speechstream: config error (code=%d): %s", *e.Code, e.Message)
	}
	return fmt.Sprintf("speechstream: config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TransportError reports a channel level failure: connect timeout,
// mid-stream disconnect or a backend failure unrelated to configuration.
type TransportError struct {
	Op      string
	Message string
	Code    *int
	Cause   error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("speechstream: transport error: %s: %s", e.Op, e.Message)
	if e.Code != nil {
		msg = fmt.Sprintf("speechstream: transport error (code=%d): %s: %s", *e.Code, e.Op, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ParseError reports a recoverable parse failure of a best-effort field,
// such as the custom configuration passthrough. Nothing aborts on it.
type ParseError struct {
	Field   string
	Input   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("speechstream: parse error: %s: %s (input %q)", e.Field, e.Message, e.Input)
}

// StateError reports an operation issued in a state that does not allow it.
type StateError struct {
	Message string
}

func (e *StateError) Error() string {
	return "speechstream: " + e.Message
}

var (
	ErrSessionAlreadyStarted = &StateError{Message: "session already started"}
	ErrSessionClosed         = &StateError{Message: "session is closed"}
	ErrNotStarted            = &StateError{Message: "session not started"}
)

func newFormatError(op, message string) *FormatError {
	return &FormatError{Op: op, Message: message}
}

func newTransportError(op, message string, cause error) *TransportError {
	return &TransportError{Op: op, Message: message, Cause: cause}
}

// IsRecoverable reports whether err is a report-and-continue failure.
func IsRecoverable(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// IsFatal reports whether err aborts a parse step or a session.
func IsFatal(err error) bool {
	var (
		formatErr    *FormatError
		configErr    *ConfigError
		transportErr *TransportError
	)
	return errors.As(err, &formatErr) || errors.As(err, &configErr) || errors.As(err, &transportErr)
}

// mapServerError maps an error frame sent by the backend to a typed error.
// Invalid-argument codes mean the submitted configuration was rejected.
func mapServerError(message string, code int) error {
	switch code {
	case 400, 422:
		return &ConfigError{Message: message, Code: &code}
	default:
		return &TransportError{Op: "recognize", Message: message, Code: &code}
	}
}
