package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/tsamp/internal/bufpool"
	"github.com/srg/tsamp/internal/future"
	"github.com/srg/tsamp/pkg/telux"
)

// Player streams a Source into a telux.PlayStream.
type Player struct {
	stream telux.PlayStream
	opts   Options
}

// NewPlayer creates a Player for stream.
func NewPlayer(stream telux.PlayStream, opts Options) *Player {
	return &Player{stream: stream, opts: opts.withDefaults()}
}

type playListener struct {
	gate    *readyGate
	stopped *future.Future[struct{}]
}

func (l *playListener) OnReadyForWrite() { l.gate.signal() }
func (l *playListener) OnPlayStopped()   { l.stopped.Resolve(struct{}{}) }

// playRun is the state shared between the producer and the write completions.
type playRun struct {
	opts  Options
	log   *logrus.Entry
	pool  *bufpool.Pool[telux.StreamBuffer]
	gate  *readyGate
	chunk int

	pendingRewind  atomic.Int64
	bytes          atomic.Int64
	shortTransfers atomic.Int64
}

// Play writes src to the stream until EOF, a timeout, an error or ctx cancellation,
// waits for every issued write to complete and closes src. The returned error is
// Result.Err.
func (p *Player) Play(ctx context.Context, src Source) (Result, error) {
	opts := p.opts
	log := runLogger(ctx, opts)

	buffers := make([]telux.StreamBuffer, 0, opts.PoolSize)
	for range opts.PoolSize {
		buf := p.stream.GetStreamBuffer()
		if buf == nil {
			_ = src.Close()
			log.Error("Failed to get stream buffer")
			return Result{Outcome: OutcomeError, Err: ErrNoBuffer}, ErrNoBuffer
		}
		buffers = append(buffers, buf)
	}
	pool, err := bufpool.New(buffers)
	if err != nil {
		_ = src.Close()
		return Result{Outcome: OutcomeError, Err: err}, err
	}

	run := &playRun{
		opts:  opts,
		pool:  pool,
		gate:  newReadyGate(),
		chunk: telux.ChunkSize(buffers[0]),
	}
	run.log = log.WithField("chunk", run.chunk)

	listener := &playListener{gate: run.gate, stopped: future.New[struct{}]()}
	if opts.GateOnReady || opts.StopAfterPlay {
		// Without the listener neither readiness nor the stop event would ever arrive.
		if err := telux.CheckStatus("registerListener", p.stream.RegisterListener(listener)); err != nil {
			_ = src.Close()
			run.log.WithError(err).Error("Failed to register play listener")
			return Result{Outcome: OutcomeError, Err: err}, err
		}
		defer p.stream.DeregisterListener(listener)
	}

	start := time.Now()
	res := run.produce(ctx, p.stream, src)

	drainErr := pool.WaitFull(context.Background(), opts.DrainTimeout)
	if drainErr != nil {
		run.log.WithError(drainErr).WithField("outstanding", pool.Outstanding()).
			Error("Write requests still pending, closing source anyway")
	}
	if err := src.Close(); err != nil {
		run.log.WithError(err).Warn("Failed to close source")
	}

	res.Elapsed = time.Since(start)
	res.Bytes = run.bytes.Load()
	res.ShortTransfers = int(run.shortTransfers.Load())
	res.MaxInFlight = pool.Stats().HighWater
	if asyncErr := pool.Err(); asyncErr != nil && res.Err == nil {
		res.Outcome = OutcomeError
		res.Err = asyncErr
	}
	if drainErr != nil {
		res.Err = errors.Join(res.Err, fmt.Errorf("drain: %w", drainErr))
	}

	if opts.StopAfterPlay && res.Err == nil && res.Outcome == OutcomeEOF {
		if err := p.stopAfterPlay(ctx, listener); err != nil {
			res.Outcome = OutcomeError
			res.Err = err
		}
	}

	run.log.WithFields(logrus.Fields{
		"outcome": res.Outcome,
		"issued":  res.BuffersIssued,
		"bytes":   res.Bytes,
		"elapsed": res.Elapsed,
	}).Info("Playback finished")
	return res, res.Err
}

func (run *playRun) produce(ctx context.Context, stream telux.PlayStream, src Source) Result {
	var res Result
	name := run.opts.Name

	for {
		if err := ctx.Err(); err != nil {
			res.Outcome, res.Err = OutcomeCancelled, err
			return res
		}

		buf, err := acquire(ctx, run.pool, run.opts.WaitTimeout)
		if err != nil {
			res.Outcome, res.Err = waitOutcome(run.opts, run.log, err)
			return res
		}

		if run.opts.GateOnReady {
			if err := run.gate.wait(ctx, run.opts.WaitTimeout); err != nil {
				run.release(buf)
				res.Outcome, res.Err = waitOutcome(run.opts, run.log, err)
				return res
			}
		}

		if n := run.pendingRewind.Swap(0); n > 0 {
			if _, err := src.Seek(-n, io.SeekCurrent); err != nil {
				run.release(buf)
				res.Outcome, res.Err = OutcomeError, fmt.Errorf("failed to rewind source by %d bytes: %w", n, err)
				return res
			}
			res.RewoundBytes += n
			run.log.WithField("bytes", n).Debug("Rewound source after short write")
		}

		n, err := io.ReadFull(src, buf.RawBuffer()[:run.chunk])
		switch {
		case errors.Is(err, io.EOF):
			run.release(buf)
			// A short write that completes after the last read still owes its tail.
			if run.pool.WaitFull(ctx, run.opts.DrainTimeout) == nil && run.pendingRewind.Load() > 0 {
				continue
			}
			res.Outcome = OutcomeEOF
			run.log.Debug("End of source reached")
			return res
		case err != nil && !errors.Is(err, io.ErrUnexpectedEOF):
			run.release(buf)
			res.Outcome, res.Err = OutcomeError, fmt.Errorf("failed to read source: %w", err)
			return res
		}

		if err := buf.SetDataSize(n); err != nil {
			run.release(buf)
			res.Outcome, res.Err = OutcomeError, err
			return res
		}

		run.opts.Observer.OnIssue(name, n)
		status := stream.Write(buf, run.onWritten)
		if err := telux.CheckStatus("write", status); err != nil {
			run.opts.Observer.OnComplete(name, 0, telux.ErrorCodeGenericFailure)
			run.release(buf)
			run.log.WithError(err).Error("Write request rejected")
			res.Outcome, res.Err = OutcomeError, err
			return res
		}
		res.BuffersIssued++
	}
}

// onWritten runs on an SDK goroutine.
func (run *playRun) onWritten(buf telux.StreamBuffer, written int, code telux.ErrorCode) {
	name := run.opts.Name
	run.opts.Observer.OnComplete(name, written, code)

	if err := telux.CheckCode("write", code); err != nil {
		run.log.WithError(err).Error("Write completed with error")
		run.pool.Abort(err)
	} else {
		written = min(max(written, 0), buf.DataSize())
		run.bytes.Add(int64(written))
		if short := buf.DataSize() - written; short > 0 {
			run.shortTransfers.Add(1)
			run.pendingRewind.Add(int64(short))
			run.opts.Observer.OnShortTransfer(name, short)
			if run.opts.GateOnReady {
				run.gate.close()
			}
		}
	}
	run.release(buf)
}

func (run *playRun) release(buf telux.StreamBuffer) {
	if err := run.pool.Put(buf); err != nil {
		run.log.WithError(err).Error("Failed to return stream buffer")
	}
}

func (p *Player) stopAfterPlay(ctx context.Context, l *playListener) error {
	timeout := p.opts.StopTimeout
	err := future.CallCode(ctx, timeout, "stopAudio", func(cb telux.ResponseCallback) telux.Status {
		return p.stream.StopAudio(telux.StopAfterPlay, cb)
	})
	if err != nil {
		return err
	}
	if _, err := l.stopped.WaitTimeout(timeout); err != nil {
		return fmt.Errorf("waiting for play stop: %w", err)
	}
	return nil
}
