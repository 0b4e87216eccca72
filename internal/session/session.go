// Package session wraps a telux.AudioManager with blocking, timeout-bounded calls and
// owns at most one data stream plus one voice call stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/tsamp/internal/future"
	"github.com/srg/tsamp/pkg/telux"
	"golang.org/x/sys/unix"
)

var (
	ErrServiceUnavailable = errors.New("audio service unavailable")
	ErrStreamExists       = errors.New("stream already exists")
	ErrNoStream           = errors.New("no stream exists")
	ErrWrongStreamType    = errors.New("stream does not support this operation")
)

// Options configure a Session.
type Options struct {
	// ServiceTimeout bounds the wait for the audio service to become available.
	ServiceTimeout time.Duration
	// ResponseTimeout bounds every request/callback round trip; 0 waits for ctx only.
	ResponseTimeout time.Duration
	Logger          *logrus.Logger
}

// Session is an audio session. It holds at most one data stream (play, capture and
// the like) and one voice call stream, so a data stream can run on the voice paths of
// the session's own call.
type Session struct {
	mgr     telux.AudioManager
	timeout time.Duration
	logger  *logrus.Logger

	mu          sync.Mutex
	stream      telux.AudioStream
	call        telux.AudioStream
	callStarted bool
}

// slot returns the field holding the voice stream or the data stream. Callers hold mu.
func (s *Session) slot(voice bool) *telux.AudioStream {
	if voice {
		return &s.call
	}
	return &s.stream
}

// Open waits until mgr reports the audio service as available.
func Open(ctx context.Context, mgr telux.AudioManager, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	available := future.New[telux.ServiceStatus]()
	mgr.OnServiceStatus(func(status telux.ServiceStatus) {
		logger.WithField("status", status).Debug("Audio service status")
		if status != telux.ServiceUnavailable {
			available.Resolve(status)
		}
	})

	waitCtx := ctx
	if opts.ServiceTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.ServiceTimeout)
		defer cancel()
	}

	status, err := available.Wait(waitCtx)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		return nil, fmt.Errorf("%w: still %s after %v: %w", ErrServiceUnavailable, mgr.ServiceStatus(), opts.ServiceTimeout, future.ErrTimeout)
	case status != telux.ServiceAvailable:
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, status)
	}

	logger.Info("Audio service available")
	return &Session{mgr: mgr, timeout: opts.ResponseTimeout, logger: logger}, nil
}

// Stream returns the data stream, or the voice stream when there is no data stream, or
// nil.
func (s *Session) Stream() telux.AudioStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return s.stream
	}
	return s.call
}

// CreateStream creates a session stream. A session holds one voice stream and one
// stream of any other type; creating a second one of either returns ErrStreamExists.
func (s *Session) CreateStream(ctx context.Context, cfg telux.StreamConfig) (telux.AudioStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slot(cfg.Type == telux.StreamVoiceCall)
	if *slot != nil {
		return nil, ErrStreamExists
	}

	type created struct {
		stream telux.AudioStream
		code   telux.ErrorCode
	}
	res, err := future.Call(ctx, s.timeout, "createStream", func(resolve func(created)) telux.Status {
		return s.mgr.CreateStream(cfg, func(stream telux.AudioStream, code telux.ErrorCode) {
			resolve(created{stream: stream, code: code})
		})
	})
	if err != nil {
		return nil, err
	}
	if err := telux.CheckCode("createStream", res.code); err != nil {
		return nil, err
	}
	if res.stream == nil {
		return nil, fmt.Errorf("createStream returned no stream")
	}

	*slot = res.stream
	s.logger.WithFields(logrus.Fields{
		"stream_id": res.stream.ID(),
		"type":      cfg.Type,
		"format":    cfg.Format,
		"in_call":   cfg.InCall(),
	}).Info("Stream created")
	return res.stream, nil
}

// CreatePlayStream creates a stream and checks it accepts writes.
func (s *Session) CreatePlayStream(ctx context.Context, cfg telux.StreamConfig) (telux.PlayStream, error) {
	return createTyped[telux.PlayStream](ctx, s, cfg)
}

// CreateCaptureStream creates a stream and checks it accepts reads.
func (s *Session) CreateCaptureStream(ctx context.Context, cfg telux.StreamConfig) (telux.CaptureStream, error) {
	return createTyped[telux.CaptureStream](ctx, s, cfg)
}

// CreateVoiceStream creates a voice call stream.
func (s *Session) CreateVoiceStream(ctx context.Context, cfg telux.StreamConfig) (telux.VoiceStream, error) {
	return createTyped[telux.VoiceStream](ctx, s, cfg)
}

func createTyped[T telux.AudioStream](ctx context.Context, s *Session, cfg telux.StreamConfig) (T, error) {
	var zero T
	stream, err := s.CreateStream(ctx, cfg)
	if err != nil {
		return zero, err
	}
	typed, ok := stream.(T)
	if !ok {
		if delErr := s.deleteSlot(ctx, cfg.Type == telux.StreamVoiceCall); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to delete mistyped stream")
		}
		return zero, fmt.Errorf("%w: %s stream", ErrWrongStreamType, cfg.Type)
	}
	return typed, nil
}

// DeleteStream deletes the data stream, or the voice stream when it is the only one.
func (s *Session) DeleteStream(ctx context.Context) error {
	s.mu.Lock()
	voice := s.stream == nil
	s.mu.Unlock()
	return s.deleteSlot(ctx, voice)
}

// DeleteVoiceStream deletes the voice stream.
func (s *Session) DeleteVoiceStream(ctx context.Context) error {
	return s.deleteSlot(ctx, true)
}

func (s *Session) deleteSlot(ctx context.Context, voice bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slot(voice)
	stream := *slot
	if stream == nil {
		return ErrNoStream
	}

	err := future.CallCode(ctx, s.timeout, "deleteStream", func(cb telux.ResponseCallback) telux.Status {
		return s.mgr.DeleteStream(stream, cb)
	})
	if err != nil {
		return err
	}
	*slot = nil
	if voice {
		s.callStarted = false
	}
	s.logger.WithField("stream_id", stream.ID()).Info("Stream deleted")
	return nil
}

// Close tears the session down in call order: the data stream goes first, then a
// started call is stopped and its stream deleted.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.deleteSlot(ctx, false); err != nil && !errors.Is(err, ErrNoStream) {
		errs = append(errs, err)
	}
	s.mu.Lock()
	started := s.callStarted
	s.mu.Unlock()
	if started {
		if err := s.StopAudio(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.DeleteVoiceStream(ctx); err != nil && !errors.Is(err, ErrNoStream) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) voice() (telux.VoiceStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call == nil {
		if s.stream != nil {
			return nil, fmt.Errorf("%w: %s stream has no voice controls", ErrWrongStreamType, s.stream.Type())
		}
		return nil, ErrNoStream
	}
	v, ok := s.call.(telux.VoiceStream)
	if !ok {
		return nil, fmt.Errorf("%w: %s stream has no voice controls", ErrWrongStreamType, s.call.Type())
	}
	return v, nil
}

// CallStarted reports whether the voice stream has started audio.
func (s *Session) CallStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callStarted
}

// StartAudio starts the voice stream.
func (s *Session) StartAudio(ctx context.Context) error {
	v, err := s.voice()
	if err != nil {
		return err
	}
	if err := future.CallCode(ctx, s.timeout, "startAudio", v.StartAudio); err != nil {
		return err
	}
	s.setCallStarted(true)
	return nil
}

// StopAudio stops the voice stream.
func (s *Session) StopAudio(ctx context.Context) error {
	v, err := s.voice()
	if err != nil {
		return err
	}
	if err := future.CallCode(ctx, s.timeout, "stopAudio", v.StopAudio); err != nil {
		return err
	}
	s.setCallStarted(false)
	return nil
}

func (s *Session) setCallStarted(started bool) {
	s.mu.Lock()
	s.callStarted = started
	s.mu.Unlock()
}

// PlayDtmfTone plays tone on the voice stream for durationMs at gain.
func (s *Session) PlayDtmfTone(ctx context.Context, tone telux.DtmfTone, durationMs, gain uint16) error {
	if !tone.LowFreq.Valid() || !tone.HighFreq.Valid() {
		return fmt.Errorf("invalid DTMF tone %d/%d Hz: %w", tone.LowFreq, tone.HighFreq, unix.EINVAL)
	}
	v, err := s.voice()
	if err != nil {
		return err
	}
	return future.CallCode(ctx, s.timeout, "playDtmfTone", func(cb telux.ResponseCallback) telux.Status {
		return v.PlayDtmfTone(tone, durationMs, gain, cb)
	})
}

// StopDtmfTone stops a tone started with an infinite duration.
func (s *Session) StopDtmfTone(ctx context.Context, direction telux.StreamDirection) error {
	v, err := s.voice()
	if err != nil {
		return err
	}
	return future.CallCode(ctx, s.timeout, "stopDtmfTone", func(cb telux.ResponseCallback) telux.Status {
		return v.StopDtmfTone(direction, cb)
	})
}
