package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// NetworkError is a transport-level failure: DNS, connect, TLS, reset or timeout.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline being hit.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Status, e.URL)
}

// DecodeError is returned when a body could not be decoded as the requested format.
type DecodeError struct {
	URL         string
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s (%s): %v", e.URL, e.ContentType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BodyTooLargeError is returned when a response body exceeds the read limit.
type BodyTooLargeError struct {
	URL   string
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("response from %s exceeds %d bytes", e.URL, e.Limit)
}

// IsTimeout reports whether err is, or wraps, a timed-out request.
func IsTimeout(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsNetwork reports whether err is, or wraps, a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsStatus reports whether err is a non-2xx response with the given status.
// A status of 0 matches any status error.
func IsStatus(err error, status int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return status == 0 || se.Status == status
}
