package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/tsamp/internal/backend"
	"github.com/srg/tsamp/internal/bufpool"
	"github.com/srg/tsamp/internal/future"
	"github.com/srg/tsamp/internal/session"
	"github.com/srg/tsamp/internal/streaming"
	"github.com/srg/tsamp/pkg/telux"
	"golang.org/x/sys/unix"
)

// ErrUsage marks invalid command arguments.
var ErrUsage = errors.New("invalid argument")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

func isTimeout(err error) bool {
	return errors.Is(err, future.ErrTimeout) ||
		errors.Is(err, bufpool.ErrTimeout) ||
		errors.Is(err, streaming.ErrNotReady)
}

// FormatUserError turns an error chain into one line for the console.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var hint string
	var se *telux.StatusError
	var ce *telux.CodeError
	switch {
	case errors.Is(err, session.ErrServiceUnavailable):
		hint = "is the audio service running? the sim backend reads --sim-scenario"
	case errors.Is(err, backend.ErrUnknownBackend):
		hint = "available backends: " + strings.Join(backend.Names(), ", ")
	case errors.As(err, &se):
		hint = fmt.Sprintf("the audio service refused %s (%s)", se.Op, se.Status)
	case errors.As(err, &ce):
		hint = fmt.Sprintf("%s completed with %s", ce.Op, ce.Code)
	case isTimeout(err):
		hint = "the audio service did not answer in time; see --wait-timeout and the config timeouts"
	}

	msg := err.Error()
	if hint == "" {
		return msg
	}
	return msg + "\n       " + hint
}

// exitCode maps err onto the errno family the process exits with.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case isTimeout(err):
		return int(unix.ETIME)
	case errors.Is(err, ErrUsage), errors.Is(err, backend.ErrUnknownBackend):
		return int(unix.EINVAL)
	case errors.Is(err, session.ErrServiceUnavailable):
		return int(unix.ENODEV)
	}
	// AsErrno prefers a wrapped syscall.Errno and falls back to EIO.
	return int(telux.AsErrno(err))
}
