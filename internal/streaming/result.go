package streaming

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/tsamp/internal/bufpool"
	"github.com/srg/tsamp/internal/groutine"
	"github.com/srg/tsamp/pkg/telux"
)

// Outcome tells why a streaming loop stopped issuing requests.
type Outcome int

const (
	OutcomeEOF       Outcome = iota // source fully read
	OutcomeDuration                 // capture duration elapsed
	OutcomeTimeout                  // no buffer or readiness within WaitTimeout
	OutcomeError                    // a request was rejected or completed with an error
	OutcomeCancelled                // context cancelled
)

var outcomeNames = map[Outcome]string{
	OutcomeEOF:       "eof",
	OutcomeDuration:  "duration",
	OutcomeTimeout:   "timeout",
	OutcomeError:     "error",
	OutcomeCancelled: "cancelled",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

var (
	// ErrNoBuffer is returned when the stream hands out fewer buffers than the pool needs.
	ErrNoBuffer = errors.New("failed to get stream buffer")
	// ErrNotReady is returned when the stream does not signal readiness in time.
	ErrNotReady = errors.New("stream not ready for write")
)

// Result summarises one streaming run.
type Result struct {
	Outcome        Outcome
	BuffersIssued  int           // requests accepted by the stream
	Bytes          int64         // bytes written to the stream or captured from it
	ShortTransfers int           // completions that moved less than requested
	RewoundBytes   int64         // bytes re-read from the source after short writes
	MaxInFlight    int           // most requests outstanding at once
	Elapsed        time.Duration // first request to end of drain
	Err            error
}

// Observer receives per-request events. Methods are called from the producer goroutine
// (OnIssue, OnTimeout) and from completion callbacks (OnComplete, OnShortTransfer), so
// implementations must be safe for concurrent use.
type Observer interface {
	OnIssue(stream string, bytes int)
	OnComplete(stream string, bytes int, code telux.ErrorCode)
	OnShortTransfer(stream string, shortfall int)
	OnTimeout(stream string)
}

type nopObserver struct{}

func (nopObserver) OnIssue(string, int) {}
func (nopObserver) OnComplete(string, int, telux.ErrorCode) {}
func (nopObserver) OnShortTransfer(string, int) {}
func (nopObserver) OnTimeout(string) {}

// waitOutcome maps a failed wait for a buffer or for readiness onto an Outcome.
func waitOutcome(opts Options, log *logrus.Entry, err error) (Outcome, error) {
	switch {
	case errors.Is(err, bufpool.ErrTimeout), errors.Is(err, ErrNotReady):
		opts.Observer.OnTimeout(opts.Name)
		log.WithError(err).Warn("Timed out waiting for stream")
		return OutcomeTimeout, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled, err
	default:
		return OutcomeError, err
	}
}

// acquire takes a free item without arming a timer, falling back to a bounded wait.
func acquire[T any](ctx context.Context, pool *bufpool.Pool[T], timeout time.Duration) (T, error) {
	if item, ok := pool.TryGet(); ok {
		return item, nil
	}
	return pool.Get(ctx, timeout)
}

// runLogger labels a run's log lines with its stream and, when set, its goroutine name.
func runLogger(ctx context.Context, opts Options) *logrus.Entry {
	fields := logrus.Fields{"stream": opts.Name, "pool_size": opts.PoolSize}
	if name := groutine.GetName(ctx); name != "" {
		fields["goroutine"] = name
	}
	return opts.Logger.WithFields(fields)
}
