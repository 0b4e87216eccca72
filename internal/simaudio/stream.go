package simaudio

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/tsamp/pkg/telux"
)

// job is a queued request; cancelled is set when the stream was closed before the job ran.
type job func(ctx context.Context, cancelled bool)

// stream is the part shared by every simulated stream: identity, a FIFO of requests run
// by one worker goroutine, and per-op counters for fault matching.
type stream struct {
	m   *Manager
	id  string
	cfg telux.StreamConfig
	log *logrus.Entry

	mu     sync.Mutex
	jobs   chan job
	closed bool
	ops    map[string]int
	ctx    context.Context
	cancel context.CancelFunc
}

func newStream(m *Manager, id string, cfg telux.StreamConfig) *stream {
	ctx, cancel := context.WithCancel(m.ctx)
	return &stream{
		m:      m,
		id:     id,
		cfg:    cfg,
		log:    m.logger.WithFields(logrus.Fields{"stream_id": id, "type": cfg.Type}),
		jobs:   make(chan job, 64),
		ops:    make(map[string]int),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *stream) ID() string                 { return s.id }
func (s *stream) Type() telux.StreamType     { return s.cfg.Type }
func (s *stream) Config() telux.StreamConfig { return s.cfg }
func (s *stream) base() *stream              { return s }

// start runs the worker; callers hold the manager lock.
func (s *stream) start() {
	s.m.group.Go(s.ctx, "sim-stream", func(ctx context.Context) {
		for j := range s.jobs {
			j(ctx, ctx.Err() != nil)
		}
	})
}

// close rejects new requests; queued ones complete as cancelled.
func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	close(s.jobs)
}

// next counts one op and returns its 0-based index and matching fault.
func (s *stream) next(op string) (int, *Fault) {
	s.mu.Lock()
	index := s.ops[op]
	s.ops[op]++
	s.mu.Unlock()
	return index, s.m.scenario.fault(op, index)
}

// submit queues j unless the stream is closed.
func (s *stream) submit(j job) telux.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return telux.StatusInvalidState
	}
	s.jobs <- j
	return telux.StatusSuccess
}

// request runs the common path of a request: fault lookup, synchronous rejection, stall,
// then run on the worker after the transfer delay with the resulting code.
func (s *stream) request(op string, run func(code telux.ErrorCode, fault *Fault)) telux.Status {
	_, fault := s.next(op)
	if fault != nil && fault.status != telux.StatusSuccess {
		return s.m.reject(s.id, op, fault.status)
	}
	if fault != nil && fault.Stall {
		s.m.trace.add(TraceRecord{StreamID: s.id, Op: op, Stalled: true})
		s.log.WithField("op", op).Debug("Stalling request")
		return telux.StatusSuccess
	}

	return s.submit(func(ctx context.Context, cancelled bool) {
		code := telux.ErrorCodeSuccess
		if fault != nil {
			code = fault.code
		}
		if cancelled || !s.m.sleep(ctx, s.m.scenario.TransferDelay) {
			code = telux.ErrorCodeCancelled
		}
		run(code, fault)
	})
}

func (s *stream) shortBy(fault *Fault) int {
	if fault == nil {
		return 0
	}
	return fault.Short
}

// bufferSizes derives stream buffer sizes: 20 ms of PCM as the preferred transfer size
// and four times that as capacity; compressed streams state no preference.
func (s *stream) bufferSizes() (minSize, maxSize int) {
	sc := s.m.scenario
	minSize, maxSize = sc.BufferMinSize, sc.BufferMaxSize
	if minSize == 0 && !s.cfg.Format.Compressed() {
		channels := max(s.cfg.ChannelTypeMask.Count(), 1)
		minSize = int(s.cfg.SampleRate) * channels * 2 / 50
	}
	if maxSize == 0 {
		maxSize = max(4*minSize, 4096)
	}
	return min(minSize, maxSize), maxSize
}

type playStream struct {
	*stream
	listenerMu sync.Mutex
	listener   telux.PlayListener
}

var _ telux.PlayStream = (*playStream)(nil)

func newPlayStream(m *Manager, id string, cfg telux.StreamConfig) *playStream {
	return &playStream{stream: newStream(m, id, cfg)}
}

func (p *playStream) GetStreamBuffer() telux.StreamBuffer {
	return telux.NewBuffer(p.bufferSizes())
}

func (p *playStream) Write(buf telux.StreamBuffer, cb telux.WriteCallback) telux.Status {
	if buf == nil || cb == nil {
		return telux.StatusInvalidParam
	}
	return p.request(OpWrite, func(code telux.ErrorCode, fault *Fault) {
		written, short := 0, false
		if code == telux.ErrorCodeSuccess {
			size := buf.DataSize()
			written = max(size-p.shortBy(fault), 0)
			short = written < size
			if _, err := p.m.loopback.Write(buf.RawBuffer()[:written]); err != nil && !loopbackOverflow(err) {
				p.log.WithError(err).Warn("Loopback write failed")
			}
		}
		p.m.trace.add(TraceRecord{StreamID: p.id, Op: OpWrite, Bytes: written, Code: code})
		// buf belongs to the caller again once cb returns.
		cb(buf, written, code)

		if short && p.cfg.Format.Compressed() {
			if p.m.sleep(p.ctx, p.m.scenario.ReadyDelay) {
				if l := p.currentListener(); l != nil {
					l.OnReadyForWrite()
				}
			}
		}
	})
}

// loopbackOverflow reports the ring errors that only mean the capture side fell behind.
func loopbackOverflow(err error) bool {
	return errors.Is(err, ringbuffer.ErrIsFull) || errors.Is(err, ringbuffer.ErrTooMuchDataToWrite)
}

func (p *playStream) StopAudio(stopType telux.StopType, cb telux.ResponseCallback) telux.Status {
	if cb == nil {
		return telux.StatusInvalidParam
	}
	return p.request(OpStop, func(code telux.ErrorCode, _ *Fault) {
		p.m.trace.add(TraceRecord{StreamID: p.id, Op: OpStop, Code: code})
		cb(code)
		if code == telux.ErrorCodeSuccess && stopType == telux.StopAfterPlay {
			if l := p.currentListener(); l != nil {
				l.OnPlayStopped()
			}
		}
	})
}

func (p *playStream) RegisterListener(l telux.PlayListener) telux.Status {
	if l == nil {
		return telux.StatusInvalidParam
	}
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	p.listener = l
	return telux.StatusSuccess
}

func (p *playStream) DeregisterListener(l telux.PlayListener) telux.Status {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	if p.listener != l {
		return telux.StatusNoSuch
	}
	p.listener = nil
	return telux.StatusSuccess
}

func (p *playStream) currentListener() telux.PlayListener {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	return p.listener
}

type captureStream struct {
	*stream
}

var _ telux.CaptureStream = (*captureStream)(nil)

func newCaptureStream(m *Manager, id string, cfg telux.StreamConfig) *captureStream {
	return &captureStream{stream: newStream(m, id, cfg)}
}

func (c *captureStream) GetStreamBuffer() telux.StreamBuffer {
	return telux.NewBuffer(c.bufferSizes())
}

// Read fills buf from the loopback ring, padding with silence when it runs dry.
func (c *captureStream) Read(buf telux.StreamBuffer, bytesToRead int, cb telux.ReadCallback) telux.Status {
	if buf == nil || cb == nil || bytesToRead <= 0 || bytesToRead > buf.MaxSize() {
		return telux.StatusInvalidParam
	}
	return c.request(OpRead, func(code telux.ErrorCode, fault *Fault) {
		n := 0
		if code == telux.ErrorCodeSuccess {
			n = max(bytesToRead-c.shortBy(fault), 0)
			raw := buf.RawBuffer()[:n]
			got, err := c.m.loopback.TryRead(raw)
			if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
				c.log.WithError(err).Warn("Loopback read failed")
			}
			clear(raw[got:])
		}
		_ = buf.SetDataSize(n)
		c.m.trace.add(TraceRecord{StreamID: c.id, Op: OpRead, Bytes: n, Code: code})
		cb(buf, code)
	})
}

type voiceStream struct {
	*stream
	stateMu sync.Mutex
	started bool
}

var _ telux.VoiceStream = (*voiceStream)(nil)

func newVoiceStream(m *Manager, id string, cfg telux.StreamConfig) *voiceStream {
	return &voiceStream{stream: newStream(m, id, cfg)}
}

// transition runs a voice request that needs the stream started (or stopped) and moves
// it to the next state on success.
func (v *voiceStream) transition(op string, wantStarted, nextStarted bool, cb telux.ResponseCallback) telux.Status {
	if cb == nil {
		return telux.StatusInvalidParam
	}
	return v.request(op, func(code telux.ErrorCode, _ *Fault) {
		if code == telux.ErrorCodeSuccess {
			v.stateMu.Lock()
			if v.started != wantStarted {
				code = telux.ErrorCodeInvalidState
			} else {
				v.started = nextStarted
			}
			v.stateMu.Unlock()
		}
		v.m.trace.add(TraceRecord{StreamID: v.id, Op: op, Code: code})
		cb(code)
	})
}

func (v *voiceStream) isStarted() bool {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return v.started
}

func (v *voiceStream) StartAudio(cb telux.ResponseCallback) telux.Status {
	return v.transition(OpStart, false, true, cb)
}

func (v *voiceStream) StopAudio(cb telux.ResponseCallback) telux.Status {
	return v.transition(OpStop, true, false, cb)
}

func (v *voiceStream) PlayDtmfTone(tone telux.DtmfTone, durationMs uint16, gain uint16, cb telux.ResponseCallback) telux.Status {
	if !tone.LowFreq.Valid() || !tone.HighFreq.Valid() || tone.Direction != telux.DirectionRX && tone.Direction != telux.DirectionTX {
		return v.m.reject(v.id, OpDtmf, telux.StatusInvalidParam)
	}
	v.log.WithFields(logrus.Fields{
		"low_hz":      int(tone.LowFreq),
		"high_hz":     int(tone.HighFreq),
		"duration_ms": durationMs,
		"gain":        gain,
	}).Debug("DTMF tone requested")
	return v.transition(OpDtmf, true, true, cb)
}

func (v *voiceStream) StopDtmfTone(direction telux.StreamDirection, cb telux.ResponseCallback) telux.Status {
	if direction != telux.DirectionRX && direction != telux.DirectionTX {
		return v.m.reject(v.id, OpDtmf, telux.StatusInvalidParam)
	}
	return v.transition(OpDtmf, true, true, cb)
}
