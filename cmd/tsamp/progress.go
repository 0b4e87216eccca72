package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/tsamp/internal/groutine"
	"github.com/srg/tsamp/internal/streaming"
	"github.com/srg/tsamp/pkg/telux"
	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a single status line with elapsed (or remaining) time and the
// bytes transferred so far. It observes the stream it reports on.
//
//	p := newProgress(cmd.OutOrStdout(), "Playing song.wav", 0)
//	p.Start(ctx)
//	defer p.Stop()
//
// newProgress returns nil when out is not a terminal; every method is a no-op on nil.
type ProgressPrinter struct {
	out       io.Writer
	prefix    string
	countdown time.Duration

	bytes   atomic.Int64
	buffers atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ streaming.Observer = (*ProgressPrinter)(nil)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newProgress counts up, or down from countdown when it is positive.
func newProgress(out io.Writer, prefix string, countdown time.Duration) *ProgressPrinter {
	if !isTerminal(out) {
		return nil
	}
	return newProgressPrinter(out, prefix, countdown)
}

func newProgressPrinter(out io.Writer, prefix string, countdown time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		out:       out,
		prefix:    prefix,
		countdown: countdown,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins redrawing the line on a named goroutine that runs until Stop or until
// ctx is done.
func (p *ProgressPrinter) Start(ctx context.Context) {
	if p == nil {
		return
	}
	p.startOnce.Do(func() {
		start := time.Now()
		groutine.Go(ctx, "progress", func(ctx context.Context) {
			defer close(p.done)
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()
			for {
				select {
				case <-p.stop:
					return
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.print(time.Since(start))
				}
			}
		})
	})
}

func (p *ProgressPrinter) print(elapsed time.Duration) {
	label := "elapsed"
	shown := elapsed
	if p.countdown > 0 {
		label = "remaining"
		shown = max(p.countdown-elapsed, 0)
	}
	fmt.Fprintf(p.out, "\r%s (%s %.1fs, %d buffers, %d bytes)   ",
		p.prefix, label, shown.Seconds(), p.buffers.Load(), p.bytes.Load())
}

// Stop ends the redraw loop and clears the line. It is safe to call more than once.
func (p *ProgressPrinter) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stop)
		// Never started: nothing to wait for.
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}

func (p *ProgressPrinter) OnIssue(string, int) {
	if p != nil {
		p.buffers.Add(1)
	}
}

func (p *ProgressPrinter) OnComplete(_ string, bytes int, _ telux.ErrorCode) {
	if p != nil {
		p.bytes.Add(int64(bytes))
	}
}

func (p *ProgressPrinter) OnShortTransfer(string, int) {}

func (p *ProgressPrinter) OnTimeout(string) {}
