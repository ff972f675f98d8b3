package core

import "errors"

// Severity grades a lifecycle error for presentation purposes.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SessionError is a precondition violation raised synchronously before any
// state mutation. Operation failures past the precondition never surface as
// SessionError; they are routed to the error hook instead.
type SessionError struct {
	Severity Severity
	Message  string
}

func (e *SessionError) Error() string { return e.Message }

// NewSessionError builds a severity-tagged precondition error.
func NewSessionError(severity Severity, message string) *SessionError {
	return &SessionError{Severity: severity, Message: message}
}

// ErrPendingSameProfile is raised when a start would race another pending
// session writing the same named profile.
var ErrPendingSameProfile = NewSessionError(SeverityInfo, "pending session with same named profile")

// IsSessionError reports whether err is (or wraps) a SessionError.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}
