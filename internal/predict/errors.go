package predict

import (
	"errors"
	"fmt"
)

// ErrRemoteDisabled is returned by attempt when no endpoint is configured.
var ErrRemoteDisabled = errors.New("predict: remote scoring not configured")

// TransportError means the remote endpoint could not be reached or did not
// answer with a 2xx status. The client falls back to local scoring.
type TransportError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote scoring: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote scoring: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError means the remote endpoint answered but refused or mangled
// the request. It is surfaced to the caller without fallback.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string { return e.Message }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsApplication reports whether err is an ApplicationError.
func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}
