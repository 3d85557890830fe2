package payapi

import "fmt"

// Error is the uniform failure shape of the gateway. Transport faults,
// non-2xx statuses, and malformed bodies all collapse into it so callers
// branch on one type only.
type Error struct {
	// Status carries the HTTP status code when the upstream answered at all.
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api: %s (http %d)", e.Message, e.Status)
	}
	return "api: " + e.Message
}

// Code reports a stable error code for log classification.
func (e *Error) Code() string { return "UPSTREAM_API" }

func transportErr(err error) *Error {
	return &Error{Message: err.Error()}
}
