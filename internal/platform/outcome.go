package platform

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that completed but matched nothing.
var ErrNotFound = errors.New("not found")

// OutcomeKind classifies the result of one HTTP call.
type OutcomeKind int

const (
	// Success is any 2xx response.
	Success OutcomeKind = iota
	// Failure is a response with a non-2xx status.
	Failure
	// NoResponse means the request never produced a response (DNS, refused, timeout).
	NoResponse
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case NoResponse:
		return "no-response"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the result of Client.Request. HTTP-level failures are values,
// not errors, so callers can branch on status codes.
type Outcome struct {
	Kind    OutcomeKind
	Method  string
	Path    string
	Status  int
	Body    []byte
	Message string
	cause   error
}

// OK reports whether the call returned a 2xx status.
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Is reports whether the call completed with one of the given statuses.
func (o Outcome) Is(statuses ...int) bool {
	if o.Kind == NoResponse {
		return false
	}
	for _, s := range statuses {
		if o.Status == s {
			return true
		}
	}
	return false
}

// Err converts a non-success outcome into an error.
func (o Outcome) Err() error {
	switch o.Kind {
	case Success:
		return nil
	case NoResponse:
		return fmt.Errorf("%s %s: no response: %w", o.Method, o.Path, o.cause)
	default:
		return &StatusError{Method: o.Method, Path: o.Path, Status: o.Status, Body: o.Message}
	}
}

// Decode unmarshals a successful response body into v.
func (o Outcome) Decode(v any) error {
	if err := o.Err(); err != nil {
		return err
	}
	if len(o.Body) == 0 {
		return fmt.Errorf("%s %s: empty response body", o.Method, o.Path)
	}
	if err := json.Unmarshal(o.Body, v); err != nil {
		return fmt.Errorf("%s %s: parsing response: %w", o.Method, o.Path, err)
	}
	return nil
}

// StatusError is a completed request with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
