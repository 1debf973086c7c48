package relay

import (
	"errors"
	"fmt"
)

var ErrDestinationRejected = errors.New("destination rejected upload")

// TransportError wraps a network or HTTP-level failure while streaming the upload.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DestinationRejectedError reports a non-success status from the destination API.
type DestinationRejectedError struct {
	StatusCode int
	Body       string
}

func (e *DestinationRejectedError) Error() string {
	msg := fmt.Sprintf("%v: status %d", ErrDestinationRejected, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *DestinationRejectedError) Unwrap() error {
	return ErrDestinationRejected
}
