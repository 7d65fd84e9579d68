package invoker

import (
	"errors"
	"fmt"
	"net/url"
)

// TransportError is returned when the HTTP exchange itself fails: connection
// refused, timeouts, or an interrupted response body.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	return fmt.Sprintf("%s %s: transport error: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Timeout reports whether the failure was a connect or read timeout.
func (e *TransportError) Timeout() bool {
	if e == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(e.Err, &urlErr) {
		return urlErr.Timeout()
	}
	var timeout interface{ Timeout() bool }
	return errors.As(e.Err, &timeout) && timeout.Timeout()
}

// DecodeError is returned when the response body does not match the expected
// shape. Body holds the raw response.
type DecodeError struct {
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "decode error"
	}
	return fmt.Sprintf("decode response from %s (status %d): %v", e.URL, e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusError is returned when the endpoint answers with a non-2xx status and
// the decoded body carries no error descriptor of its own.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if e == nil {
		return "unexpected status"
	}
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}
