package omnik

import "fmt"

// ErrKind classifies a failed fetch cycle.
type ErrKind int

const (
	// ErrUnexpected covers anything outside the taxonomy below, including
	// recovered panics during the cycle.
	ErrUnexpected ErrKind = iota
	// ErrTimeout means the connect or the response read exceeded the deadline.
	ErrTimeout
	// ErrRefused means the OS rejected the connection (refused, unreachable).
	ErrRefused
	// ErrEmpty means the connection succeeded but zero bytes came back.
	ErrEmpty
)

func (k ErrKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrRefused:
		return "connection refused or unreachable"
	case ErrEmpty:
		return "empty response"
	default:
		return "unexpected error"
	}
}

// ConnectionError is the only error this package returns from a fetch cycle,
// so callers get one kind to handle. Kind tells them why without string
// matching.
type ConnectionError struct {
	Kind ErrKind
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("omnik %s: %s", e.Addr, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the cycle failed on a deadline, matching the
// convention of net.Error.
func (e *ConnectionError) Timeout() bool {
	return e.Kind == ErrTimeout
}
