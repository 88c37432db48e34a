package comm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is generated when the transport has no connection
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrBusClosed is wrapped in a LinkError when Execute is called after Close
	ErrBusClosed = errors.New("bus closed")
)

// TimeoutError is generated when no complete frame arrives within the timeout.
// Partial holds whatever was received.
type TimeoutError struct {
	Wait    time.Duration
	Partial []byte
}

func (e *TimeoutError) Error() string {
	if len(e.Partial) == 0 {
		return fmt.Sprintf("no response within %v", e.Wait)
	}
	return fmt.Sprintf("incomplete frame within %v, got %q", e.Wait, e.Partial)
}

// Timeout satisfies the net.Error style timeout check
func (e *TimeoutError) Timeout() bool { return true }

// LinkError is generated when the underlying device is closed or unavailable
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// CommunicationError is generated by the Bus when every attempt of an
// exchange timed out
type CommunicationError struct {
	Tag      string
	Attempts int
	Err      error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: no valid response after %d attempts: %v", e.Tag, e.Attempts, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// IsTimeout returns true if err is a TimeoutError (and not something that
// merely wraps one, like a CommunicationError)
func IsTimeout(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}

// IsLinkFailure returns true if err means the line can no longer be trusted:
// retries were exhausted or the link itself is down
func IsLinkFailure(err error) bool {
	var (
		ce *CommunicationError
		le *LinkError
	)
	return errors.As(err, &ce) || errors.As(err, &le)
}
