package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Business error codes returned by the server envelope.
const (
	CodeNotFound = 1
	CodeAdd      = 2
	CodeUpdate   = 4
)

// Storage errors
var (
	// ErrNotFound is returned by a store backend when no blob exists under
	// the requested key.
	ErrNotFound = errors.New("key not found")
)

// FieldError is one entry of the envelope's errors list.
type FieldError struct {
	Path []string `json:"path"`
	Msg  string   `json:"msg"`
}

func (e FieldError) String() string {
	if len(e.Path) == 0 {
		return e.Msg
	}
	return strings.Join(e.Path, ".") + ":" + e.Msg
}

// TransportError is a non-2xx HTTP response or a network failure. It
// carries the status and the raw response body.
type TransportError struct {
	Status int
	Body   []byte
	msg    string
}

// NewTransportError wraps an HTTP failure.
func NewTransportError(status int, statusText string, body []byte) *TransportError {
	if statusText == "" {
		statusText = "HTTP Error"
	}
	return &TransportError{
		Status: status,
		Body:   body,
		msg:    fmt.Sprintf("%s (%d)", statusText, status),
	}
}

func (e *TransportError) Error() string { return e.msg }

// BusinessError is a success=false envelope. It carries the server code,
// message and any field errors.
type BusinessError struct {
	Code   int
	Msg    string
	Errors []FieldError
}

func (e *BusinessError) Error() string {
	msg := e.Msg
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	for _, fe := range e.Errors {
		msg += "\n" + fe.String()
	}
	return msg
}

// IsAuthFailure reports whether err is a transport failure the server uses
// to signal a dead token (401/403). These are intercepted and converted
// into a silent re-authentication attempt.
func IsAuthFailure(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.Status == http.StatusUnauthorized || te.Status == http.StatusForbidden
}

// IsBusinessCode reports whether err is a business failure with the given
// server code.
func IsBusinessCode(err error, code int) bool {
	var be *BusinessError
	return errors.As(err, &be) && be.Code == code
}

// ErrorMessage renders any SDK error for a listener, flattening business
// field errors onto separate lines.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
