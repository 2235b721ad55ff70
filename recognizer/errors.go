package recognizer

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("recognizer: session closed")

// ConnectionError is returned by Open when the server cannot be reached or
// rejects the initial configuration message.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
