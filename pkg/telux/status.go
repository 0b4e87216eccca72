package telux

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Status is the synchronous answer to a request: the SDK either accepted it for
// processing or rejected it immediately.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusNoConnection
	StatusInvalidParam
	StatusInvalidState
	StatusNotReady
	StatusNotAllowed
	StatusNotImplemented
	StatusConnectionLost
	StatusExpired
	StatusAlready
	StatusNoSuch
	StatusNotSupported
	StatusNoMemory
)

var statusNames = map[Status]string{
	StatusSuccess:        "success",
	StatusFailed:         "failed",
	StatusNoConnection:   "no_connection",
	StatusInvalidParam:   "invalid_param",
	StatusInvalidState:   "invalid_state",
	StatusNotReady:       "not_ready",
	StatusNotAllowed:     "not_allowed",
	StatusNotImplemented: "not_implemented",
	StatusConnectionLost: "connection_lost",
	StatusExpired:        "expired",
	StatusAlready:        "already",
	StatusNoSuch:         "no_such",
	StatusNotSupported:   "not_supported",
	StatusNoMemory:       "no_memory",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrorCode is the asynchronous outcome of an accepted request, delivered to a callback.
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = iota
	ErrorCodeGenericFailure
	ErrorCodeInvalidArguments
	ErrorCodeInvalidState
	ErrorCodeNoMemory
	ErrorCodeNotSupported
	ErrorCodeInternalError
	ErrorCodeOperationTimeout
	ErrorCodeCancelled
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeSuccess:          "success",
	ErrorCodeGenericFailure:   "generic_failure",
	ErrorCodeInvalidArguments: "invalid_arguments",
	ErrorCodeInvalidState:     "invalid_state",
	ErrorCodeNoMemory:         "no_memory",
	ErrorCodeNotSupported:     "not_supported",
	ErrorCodeInternalError:    "internal_error",
	ErrorCodeOperationTimeout: "operation_timeout",
	ErrorCodeCancelled:        "cancelled",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error_code(%d)", int(c))
}

// ServiceStatus reports whether a subsystem can be used.
type ServiceStatus int

const (
	ServiceUnavailable ServiceStatus = iota
	ServiceAvailable
	ServiceFailed
)

func (s ServiceStatus) String() string {
	switch s {
	case ServiceUnavailable:
		return "unavailable"
	case ServiceAvailable:
		return "available"
	case ServiceFailed:
		return "failed"
	default:
		return fmt.Sprintf("service_status(%d)", int(s))
	}
}

// Sentinels matched by errors.Is against StatusError and CodeError.
var (
	// ErrRejected matches any StatusError: the SDK refused the request synchronously.
	ErrRejected = errors.New("request rejected")
	// ErrFailed matches any CodeError: the SDK accepted the request but it failed.
	ErrFailed = errors.New("request failed")
)

// StatusError reports a request that was rejected before it was processed.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("can't request %s: %s", e.Op, e.Status)
}

// Is matches ErrRejected and other StatusErrors carrying the same Status.
func (e *StatusError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrRejected {
		return true
	}
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Status == e.Status && (t.Op == "" || t.Op == e.Op)
}

// CodeError reports an accepted request whose asynchronous result was not Success.
type CodeError struct {
	Op   string
	Code ErrorCode
}

func (e *CodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Code)
}

// Is matches ErrFailed and other CodeErrors carrying the same ErrorCode.
func (e *CodeError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrFailed {
		return true
	}
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Op == "" || t.Op == e.Op)
}

// CheckStatus turns a non-Success Status into a StatusError.
func CheckStatus(op string, s Status) error {
	if s == StatusSuccess {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}

// CheckCode turns a non-Success ErrorCode into a CodeError.
func CheckCode(op string, c ErrorCode) error {
	if c == ErrorCodeSuccess {
		return nil
	}
	return &CodeError{Op: op, Code: c}
}

// AsErrno maps a failure onto the errno family the samples exit with.
// Errors that already carry an errno keep it; everything else is EIO.
func AsErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if errors.Is(err, ErrInvalidConfig) {
		return unix.EINVAL
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case StatusInvalidParam:
			return unix.EINVAL
		case StatusNoMemory:
			return unix.ENOMEM
		case StatusNotSupported, StatusNotImplemented:
			return unix.EOPNOTSUPP
		}
		return unix.EIO
	}

	var ce *CodeError
	if errors.As(err, &ce) {
		switch ce.Code {
		case ErrorCodeInvalidArguments:
			return unix.EINVAL
		case ErrorCodeNoMemory:
			return unix.ENOMEM
		case ErrorCodeOperationTimeout:
			return unix.ETIME
		}
		return unix.EIO
	}

	return unix.EIO
}
