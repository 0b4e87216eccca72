// Package simaudio is an in-process telux.AudioManager. Playback streams feed a loopback
// ring that capture streams read from, requests complete asynchronously on per-stream
// worker goroutines, and a Scenario injects delays and faults.
package simaudio

import (
	"context"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/tsamp/internal/groutine"
	"github.com/srg/tsamp/pkg/telux"
)

// DefaultTraceSize is the number of trace records kept.
const DefaultTraceSize = 256

// Options configure a Manager.
type Options struct {
	Scenario  *Scenario
	TraceSize uint32
	Logger    *logrus.Logger
}

// Manager implements telux.AudioManager.
type Manager struct {
	scenario *Scenario
	logger   *logrus.Logger
	trace    *trace
	loopback *ringbuffer.RingBuffer
	streams  *hashmap.Map[string, simStream]

	ctx    context.Context
	cancel context.CancelFunc
	group  groutine.Group

	mu        sync.Mutex
	status    telux.ServiceStatus
	listeners []telux.ServiceStatusCallback
	creates   int
	deletes   int
	closed    bool
}

var _ telux.AudioManager = (*Manager)(nil)

// simStream is what the manager tracks per created stream.
type simStream interface {
	telux.AudioStream
	base() *stream
}

// New starts a simulated audio service. The service reports the scenario status once
// its ServiceDelay has passed.
func New(opts Options) *Manager {
	sc := opts.Scenario
	if sc == nil {
		sc = DefaultScenario()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	traceSize := opts.TraceSize
	if traceSize == 0 {
		traceSize = DefaultTraceSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		scenario: sc,
		logger:   logger,
		trace:    newTrace(traceSize),
		loopback: ringbuffer.New(sc.LoopbackBytes),
		streams:  hashmap.New[string, simStream](),
		ctx:      ctx,
		cancel:   cancel,
		status:   telux.ServiceUnavailable,
	}

	if sc.ServiceDelay <= 0 {
		m.setStatus(sc.serviceStatus)
	} else {
		m.group.Go(ctx, "sim-service", func(ctx context.Context) {
			if m.sleep(ctx, sc.ServiceDelay) {
				m.setStatus(sc.serviceStatus)
			}
		})
	}
	return m
}

func (m *Manager) setStatus(status telux.ServiceStatus) {
	m.mu.Lock()
	m.status = status
	listeners := append([]telux.ServiceStatusCallback(nil), m.listeners...)
	m.mu.Unlock()

	m.trace.add(TraceRecord{Op: OpService})
	m.logger.WithField("status", status).Debug("Simulated audio service status changed")
	for _, cb := range listeners {
		cb(status)
	}
}

// sleep waits for d; it reports false when ctx ended first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) ServiceStatus() telux.ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) OnServiceStatus(cb telux.ServiceStatusCallback) {
	m.mu.Lock()
	m.listeners = append(m.listeners, cb)
	status := m.status
	m.mu.Unlock()
	cb(status)
}

func (m *Manager) CreateStream(cfg telux.StreamConfig, cb telux.CreateStreamCallback) telux.Status {
	m.mu.Lock()
	if m.closed || m.status != telux.ServiceAvailable {
		m.mu.Unlock()
		return telux.StatusNotReady
	}
	index := m.creates
	m.creates++
	m.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		m.logger.WithError(err).Debug("Rejecting stream config")
		return m.reject("", OpCreate, telux.StatusInvalidParam)
	}

	fault := m.scenario.fault(OpCreate, index)
	if fault != nil && fault.status != telux.StatusSuccess {
		return m.reject("", OpCreate, fault.status)
	}

	var s simStream
	id := uuid.NewString()
	switch cfg.Type {
	case telux.StreamPlay:
		s = newPlayStream(m, id, cfg)
	case telux.StreamCapture:
		s = newCaptureStream(m, id, cfg)
	case telux.StreamVoiceCall:
		s = newVoiceStream(m, id, cfg)
	default:
		return m.reject("", OpCreate, telux.StatusNotSupported)
	}

	code := telux.ErrorCodeSuccess
	if fault != nil {
		code = fault.code
	}
	if !m.spawn("sim-create", func(ctx context.Context) {
		if !m.sleep(ctx, m.scenario.TransferDelay) {
			code = telux.ErrorCodeCancelled
		}
		if code == telux.ErrorCodeSuccess && cfg.InCall() && !m.callActive() {
			m.logger.WithField("type", cfg.Type).Debug("No voice call started for in-call stream")
			code = telux.ErrorCodeInvalidState
		}
		if code == telux.ErrorCodeSuccess && !m.register(id, s) {
			code = telux.ErrorCodeCancelled
		}
		m.trace.add(TraceRecord{StreamID: id, Op: OpCreate, Code: code})
		if code != telux.ErrorCodeSuccess {
			cb(nil, code)
			return
		}
		m.logger.WithFields(logrus.Fields{"stream_id": id, "type": cfg.Type}).Debug("Simulated stream created")
		cb(s, code)
	}) {
		return telux.StatusNotReady
	}
	return telux.StatusSuccess
}

// callActive reports whether some voice stream has started audio.
func (m *Manager) callActive() bool {
	active := false
	m.streams.Range(func(_ string, s simStream) bool {
		if v, ok := s.(*voiceStream); ok && v.isStarted() {
			active = true
		}
		return !active
	})
	return active
}

// register makes s visible and starts its worker unless the manager is closing.
func (m *Manager) register(id string, s simStream) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.streams.Set(id, s)
	s.base().start()
	return true
}

// spawn runs fn on a tracked goroutine unless the manager is closing.
func (m *Manager) spawn(name string, fn func(ctx context.Context)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.group.Go(m.ctx, name, fn)
	return true
}

func (m *Manager) DeleteStream(st telux.AudioStream, cb telux.ResponseCallback) telux.Status {
	if st == nil {
		return telux.StatusInvalidParam
	}
	s, ok := m.streams.Get(st.ID())
	if !ok {
		return m.reject(st.ID(), OpDelete, telux.StatusInvalidParam)
	}

	m.mu.Lock()
	index := m.deletes
	m.deletes++
	m.mu.Unlock()

	fault := m.scenario.fault(OpDelete, index)
	if fault != nil && fault.status != telux.StatusSuccess {
		return m.reject(st.ID(), OpDelete, fault.status)
	}

	code := telux.ErrorCodeSuccess
	if fault != nil {
		code = fault.code
	}
	if !m.spawn("sim-delete", func(ctx context.Context) {
		if !m.sleep(ctx, m.scenario.TransferDelay) {
			code = telux.ErrorCodeCancelled
		}
		if code == telux.ErrorCodeSuccess {
			m.streams.Del(st.ID())
			s.base().close()
		}
		m.trace.add(TraceRecord{StreamID: st.ID(), Op: OpDelete, Code: code})
		cb(code)
	}) {
		return telux.StatusNotReady
	}
	return telux.StatusSuccess
}

func (m *Manager) reject(streamID, op string, status telux.Status) telux.Status {
	m.trace.add(TraceRecord{StreamID: streamID, Op: op, Status: status})
	return status
}

// Streams returns the number of live streams.
func (m *Manager) Streams() int {
	return m.streams.Len()
}

// Trace removes and returns the recorded operations, oldest first.
func (m *Manager) Trace() []TraceRecord {
	return m.trace.drain()
}

// Close stops the service. Requests still queued complete with ErrorCodeCancelled
// before Close returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.streams.Range(func(id string, s simStream) bool {
		s.base().close()
		return true
	})
	m.group.Wait()
	return nil
}
