package streaming_test

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/srg/tsamp/pkg/telux"
)

// writeOutcome scripts the completion of the i-th write (0-based).
type writeOutcome struct {
	written int // -1 = all of DataSize
	code    telux.ErrorCode
	ready   bool // send OnReadyForWrite after this completion
}

type fakeEvent struct {
	kind string // "write", "complete", "ready", "stop"
	n    int
}

// fakePlayStream completes writes in order on a single worker goroutine and records the
// bytes it consumed.
type fakePlayStream struct {
	minSize, maxSize int
	buffers          int // buffers handed out before returning nil; -1 = unlimited
	delay            time.Duration
	script           func(i int) writeOutcome
	writeStatus      func(i int) telux.Status
	registerStatus   telux.Status
	hold             chan struct{} // when set, completions wait for it to close

	mu        sync.Mutex
	writes    int
	pending   int // accepted writes whose callback has not started
	rendered  bytes.Buffer
	events    []fakeEvent
	listener  telux.PlayListener
	stopTypes []telux.StopType

	queue chan func()
	done  chan struct{}
}

func newFakePlayStream(minSize, maxSize int) *fakePlayStream {
	f := &fakePlayStream{
		minSize: minSize,
		maxSize: maxSize,
		buffers: -1,
		delay:   time.Millisecond,
		queue:   make(chan func(), 64),
		done:    make(chan struct{}),
	}
	go f.worker()
	return f
}

func (f *fakePlayStream) worker() {
	defer close(f.done)
	for job := range f.queue {
		job()
	}
}

// Close stops the worker; call after the run returned.
func (f *fakePlayStream) Close() {
	close(f.queue)
	<-f.done
}

func (f *fakePlayStream) ID() string                 { return "fake-play" }
func (f *fakePlayStream) Type() telux.StreamType     { return telux.StreamPlay }
func (f *fakePlayStream) Config() telux.StreamConfig { return telux.StreamConfig{Type: telux.StreamPlay} }

func (f *fakePlayStream) GetStreamBuffer() telux.StreamBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buffers == 0 {
		return nil
	}
	if f.buffers > 0 {
		f.buffers--
	}
	return telux.NewBuffer(f.minSize, f.maxSize)
}

func (f *fakePlayStream) Write(buf telux.StreamBuffer, cb telux.WriteCallback) telux.Status {
	f.mu.Lock()
	i := f.writes
	f.writes++
	f.events = append(f.events, fakeEvent{kind: "write", n: buf.DataSize()})
	f.mu.Unlock()

	if f.writeStatus != nil {
		if status := f.writeStatus(i); status != telux.StatusSuccess {
			return status
		}
	}

	f.mu.Lock()
	f.pending++
	f.mu.Unlock()
	out := writeOutcome{written: -1}
	if f.script != nil {
		out = f.script(i)
	}
	f.queue <- func() {
		if f.hold != nil {
			<-f.hold
		}
		time.Sleep(f.delay)
		written := out.written
		if written < 0 {
			written = buf.DataSize()
		}
		f.mu.Lock()
		if out.code == telux.ErrorCodeSuccess {
			f.rendered.Write(buf.RawBuffer()[:written])
		}
		f.events = append(f.events, fakeEvent{kind: "complete", n: written})
		f.pending--
		listener := f.listener
		f.mu.Unlock()

		cb(buf, written, out.code)

		if out.ready && listener != nil {
			time.Sleep(f.delay)
			f.mu.Lock()
			f.events = append(f.events, fakeEvent{kind: "ready"})
			f.mu.Unlock()
			listener.OnReadyForWrite()
		}
	}
	return telux.StatusSuccess
}

func (f *fakePlayStream) StopAudio(stopType telux.StopType, cb telux.ResponseCallback) telux.Status {
	f.mu.Lock()
	f.stopTypes = append(f.stopTypes, stopType)
	listener := f.listener
	f.mu.Unlock()

	f.queue <- func() {
		cb(telux.ErrorCodeSuccess)
		if stopType == telux.StopAfterPlay && listener != nil {
			f.mu.Lock()
			f.events = append(f.events, fakeEvent{kind: "stop"})
			f.mu.Unlock()
			listener.OnPlayStopped()
		}
	}
	return telux.StatusSuccess
}

func (f *fakePlayStream) RegisterListener(l telux.PlayListener) telux.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerStatus != telux.StatusSuccess {
		return f.registerStatus
	}
	f.listener = l
	return telux.StatusSuccess
}

func (f *fakePlayStream) DeregisterListener(telux.PlayListener) telux.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = nil
	return telux.StatusSuccess
}

func (f *fakePlayStream) Rendered() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.rendered.Bytes()...)
}

func (f *fakePlayStream) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakePlayStream) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakePlayStream) Events() []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeEvent(nil), f.events...)
}

// fakeCaptureStream fills buffers with a running byte counter, completing reads in order.
type fakeCaptureStream struct {
	minSize, maxSize int
	delay            time.Duration
	script           func(i int) (n int, code telux.ErrorCode) // n = -1 fills bytesToRead
	readStatus       func(i int) telux.Status

	mu      sync.Mutex
	reads   int
	counter byte
	sent    bytes.Buffer

	queue chan func()
	done  chan struct{}
}

func newFakeCaptureStream(minSize, maxSize int) *fakeCaptureStream {
	f := &fakeCaptureStream{
		minSize: minSize,
		maxSize: maxSize,
		delay:   time.Millisecond,
		queue:   make(chan func(), 64),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(f.done)
		for job := range f.queue {
			job()
		}
	}()
	return f
}

func (f *fakeCaptureStream) Close() {
	close(f.queue)
	<-f.done
}

func (f *fakeCaptureStream) ID() string             { return "fake-capture" }
func (f *fakeCaptureStream) Type() telux.StreamType { return telux.StreamCapture }
func (f *fakeCaptureStream) Config() telux.StreamConfig {
	return telux.StreamConfig{Type: telux.StreamCapture}
}

func (f *fakeCaptureStream) GetStreamBuffer() telux.StreamBuffer {
	return telux.NewBuffer(f.minSize, f.maxSize)
}

func (f *fakeCaptureStream) Read(buf telux.StreamBuffer, bytesToRead int, cb telux.ReadCallback) telux.Status {
	f.mu.Lock()
	i := f.reads
	f.reads++
	f.mu.Unlock()

	if f.readStatus != nil {
		if status := f.readStatus(i); status != telux.StatusSuccess {
			return status
		}
	}

	n, code := -1, telux.ErrorCodeSuccess
	if f.script != nil {
		n, code = f.script(i)
	}
	if n < 0 {
		n = bytesToRead
	}
	f.queue <- func() {
		time.Sleep(f.delay)
		if code == telux.ErrorCodeSuccess {
			f.mu.Lock()
			raw := buf.RawBuffer()
			for j := 0; j < n; j++ {
				raw[j] = f.counter
				f.counter++
			}
			f.sent.Write(raw[:n])
			f.mu.Unlock()
			_ = buf.SetDataSize(n)
		}
		cb(buf, code)
	}
	return telux.StatusSuccess
}

func (f *fakeCaptureStream) Sent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.sent.Bytes()...)
}

// memSource is an in-memory Source recording seeks and closes. When pending is set,
// Close records what it reported at that moment.
type memSource struct {
	*bytes.Reader
	pending func() int

	mu             sync.Mutex
	seeks          []int64
	closed         bool
	pendingAtClose int
}

func newMemSource(data []byte) *memSource {
	return &memSource{Reader: bytes.NewReader(data)}
}

func (s *memSource) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	if whence == io.SeekCurrent {
		s.seeks = append(s.seeks, offset)
	}
	s.mu.Unlock()
	return s.Reader.Seek(offset, whence)
}

func (s *memSource) Close() error {
	pending := 0
	if s.pending != nil {
		pending = s.pending()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pendingAtClose = pending
	return nil
}

func (s *memSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *memSource) PendingAtClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAtClose
}

// memSink collects captured bytes.
type memSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (s *memSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
