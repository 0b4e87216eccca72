package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/tsamp/internal/bufpool"
	"github.com/srg/tsamp/pkg/telux"
)

// Recorder streams a telux.CaptureStream into a Sink.
type Recorder struct {
	stream telux.CaptureStream
	opts   Options
}

// NewRecorder creates a Recorder for stream.
func NewRecorder(stream telux.CaptureStream, opts Options) *Recorder {
	return &Recorder{stream: stream, opts: opts.withDefaults()}
}

// captureSlot pairs a stream buffer with the byte count its last read completion
// captured and the producer has not persisted yet.
type captureSlot struct {
	buf      telux.StreamBuffer
	captured int
}

type recordRun struct {
	opts  Options
	log   *logrus.Entry
	pool  *bufpool.Pool[*captureSlot]
	chunk int

	shortTransfers atomic.Int64
}

// Record issues reads for Options.Duration, persisting captured data to sink in
// completion order. It then waits for every issued read to complete, persists what they
// captured and closes sink. The returned error is Result.Err.
func (r *Recorder) Record(ctx context.Context, sink Sink) (Result, error) {
	opts := r.opts
	log := runLogger(ctx, opts)

	slots := make([]*captureSlot, 0, opts.PoolSize)
	for range opts.PoolSize {
		buf := r.stream.GetStreamBuffer()
		if buf == nil {
			_ = sink.Close()
			log.Error("Failed to get stream buffer")
			return Result{Outcome: OutcomeError, Err: ErrNoBuffer}, ErrNoBuffer
		}
		slots = append(slots, &captureSlot{buf: buf})
	}
	pool, err := bufpool.New(slots)
	if err != nil {
		_ = sink.Close()
		return Result{Outcome: OutcomeError, Err: err}, err
	}

	run := &recordRun{opts: opts, pool: pool, chunk: telux.ChunkSize(slots[0].buf)}
	run.log = log.WithField("chunk", run.chunk)

	start := time.Now()
	res := run.produce(ctx, r.stream, sink)

	drainErr := pool.WaitFull(context.Background(), opts.DrainTimeout)
	if drainErr != nil {
		// Buffers still in flight may be written by the stream; do not persist them.
		run.log.WithError(drainErr).WithField("outstanding", pool.Outstanding()).
			Error("Read requests still pending, closing sink anyway")
	} else {
		for _, slot := range pool.Snapshot() {
			if err := run.persist(slot, sink, &res); err != nil && res.Err == nil {
				res.Outcome, res.Err = OutcomeError, err
			}
		}
	}
	if err := sink.Close(); err != nil && res.Err == nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("failed to close sink: %w", err)
	}

	res.Elapsed = time.Since(start)
	res.ShortTransfers = int(run.shortTransfers.Load())
	res.MaxInFlight = pool.Stats().HighWater
	if asyncErr := pool.Err(); asyncErr != nil && res.Err == nil {
		res.Outcome, res.Err = OutcomeError, asyncErr
	}
	if drainErr != nil {
		res.Err = errors.Join(res.Err, fmt.Errorf("drain: %w", drainErr))
	}

	run.log.WithFields(logrus.Fields{
		"outcome": res.Outcome,
		"issued":  res.BuffersIssued,
		"bytes":   res.Bytes,
		"elapsed": res.Elapsed,
	}).Info("Capture finished")
	return res, res.Err
}

func (run *recordRun) produce(ctx context.Context, stream telux.CaptureStream, sink Sink) Result {
	var res Result
	name := run.opts.Name
	deadline := time.Now().Add(run.opts.Duration)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			res.Outcome, res.Err = OutcomeCancelled, err
			return res
		}

		slot, err := acquire(ctx, run.pool, run.opts.WaitTimeout)
		if err != nil {
			res.Outcome, res.Err = waitOutcome(run.opts, run.log, err)
			return res
		}

		if err := run.persist(slot, sink, &res); err != nil {
			run.release(slot)
			res.Outcome, res.Err = OutcomeError, err
			return res
		}

		slot.buf.Reset()
		run.opts.Observer.OnIssue(name, run.chunk)
		status := stream.Read(slot.buf, run.chunk, func(buf telux.StreamBuffer, code telux.ErrorCode) {
			run.onRead(slot, code)
		})
		if err := telux.CheckStatus("read", status); err != nil {
			run.opts.Observer.OnComplete(name, 0, telux.ErrorCodeGenericFailure)
			run.release(slot)
			run.log.WithError(err).Error("Read request rejected")
			res.Outcome, res.Err = OutcomeError, err
			return res
		}
		res.BuffersIssued++
	}

	res.Outcome = OutcomeDuration
	return res
}

// onRead runs on an SDK goroutine.
func (run *recordRun) onRead(slot *captureSlot, code telux.ErrorCode) {
	name := run.opts.Name
	n := min(max(slot.buf.DataSize(), 0), run.chunk)
	run.opts.Observer.OnComplete(name, n, code)

	if err := telux.CheckCode("read", code); err != nil {
		run.log.WithError(err).Error("Read completed with error")
		run.pool.Abort(err)
	} else {
		slot.captured = n
		if short := run.chunk - n; short > 0 {
			run.shortTransfers.Add(1)
			run.opts.Observer.OnShortTransfer(name, short)
		}
	}
	run.release(slot)
}

// persist writes the data slot captured in its previous round; producer goroutine only.
func (run *recordRun) persist(slot *captureSlot, sink Sink, res *Result) error {
	if slot.captured == 0 {
		return nil
	}
	n := slot.captured
	slot.captured = 0
	if _, err := sink.Write(slot.buf.RawBuffer()[:n]); err != nil {
		return fmt.Errorf("failed to write captured data: %w", err)
	}
	res.Bytes += int64(n)
	return nil
}

func (run *recordRun) release(slot *captureSlot) {
	if err := run.pool.Put(slot); err != nil {
		run.log.WithError(err).Error("Failed to return stream buffer")
	}
}
