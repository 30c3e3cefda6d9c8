package worker

import (
	"errors"
	"fmt"
)

// ErrHandshakeTimeout is returned when the worker does not complete the
// session handshake within the configured timeout.
var ErrHandshakeTimeout = errors.New("timed out waiting for worker session")

// HandshakeError reports a session that could not be established
type HandshakeError struct {
	// Exited is set when the worker exited before the handshake.
	Exited   bool
	ExitCode int
	Err      error
}

func (e *HandshakeError) Error() string {
	if e.Exited {
		return fmt.Sprintf("worker exited with code %d before the session was established", e.ExitCode)
	}
	return fmt.Sprintf("worker session not established: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
