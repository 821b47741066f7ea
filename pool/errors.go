package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for an unknown connection kind or an unparsable connection string
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCacheClosed is returned by Acquire after Close
	ErrCacheClosed = errors.New("connection cache closed")
)

// TransportError wraps a failure while establishing a new connection.
// Stage is one of "connect", "install_callback" or "bootstrap".
type TransportError struct {
	Stage      string
	ConnString string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.ConnString, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
