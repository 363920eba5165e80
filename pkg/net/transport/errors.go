package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"syscall"
)

var (
	// ErrTimeout is returned when an exchange does not finish before its
	// deadline. It is distinct from transport and framing failures so callers
	// may retry the whole operation.
	ErrTimeout = errors.New("exchange timed out")

	// ErrWouldBlock is returned by a non-blocking Socket read or write that
	// has no progress to report yet.
	ErrWouldBlock = errors.New("operation would block")
)

// ErrorClass drives the connect retry policy.
type ErrorClass int

const (
	// ClassOther is any error the policy has no specific handling for.
	ClassOther ErrorClass = iota
	// ClassHardReset means the socket is unusable and must be replaced.
	ClassHardReset
	// ClassTransient means the connect is still under way; poll again later
	// on the same socket.
	ClassTransient
	// ClassConnected means the socket is connected.
	ClassConnected
)

func (c ErrorClass) String() string {
	switch c {
	case ClassHardReset:
		return "hard-reset"
	case ClassTransient:
		return "transient"
	case ClassConnected:
		return "connected"
	}
	return "other"
}

// Classify maps the result of a connect attempt to its retry class. A nil
// error is ClassConnected.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassConnected
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ClassOther
	}

	switch errno {
	case syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOTCONN, syscall.EBADF:
		return ClassHardReset
	case syscall.EINPROGRESS, syscall.EALREADY, syscall.ETIMEDOUT, syscall.EAGAIN:
		return ClassTransient
	case syscall.EISCONN:
		return ClassConnected
	}

	return ClassOther
}

// FramingError reports a response that could not be framed or parsed.
type FramingError struct {
	Msg string
	Err error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Msg, e.Err)
	}
	return "malformed response: " + e.Msg
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// ConnectError is returned once the connect policy gives up.
type ConnectError struct {
	Addr     netip.AddrPort
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("unable to connect to %s after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
