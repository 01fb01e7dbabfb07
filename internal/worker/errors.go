package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a backend failure.
type ErrorKind int

const (
	Unavailable ErrorKind = iota
	Timeout
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Malformed:
		return "malformed response"
	default:
		return "backend unavailable"
	}
}

// BackendError wraps a failed invocation of a named worker.
type BackendError struct {
	Worker string
	Kind   ErrorKind
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("worker %s: %s", e.Worker, e.Kind)
	}
	return fmt.Sprintf("worker %s: %s: %v", e.Worker, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a worker timeout.
func IsTimeout(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == Timeout
}

// Classify wraps err as a BackendError for worker. Errors that already carry
// a classification are returned unchanged.
func Classify(worker string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	kind := Unavailable
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = Timeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = Timeout
	}
	return &BackendError{Worker: worker, Kind: kind, Err: err}
}
