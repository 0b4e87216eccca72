package streaming

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Source is what a Player reads from. Seek is only used with io.SeekCurrent to re-read
// bytes a short write did not consume.
type Source interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Sink is what a Recorder persists captured bytes to. Close flushes.
type Sink interface {
	io.Writer
	io.Closer
}

// WAVInfo describes the PCM payload of a WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	DataBytes  int64
}

// OpenRaw opens a headerless PCM or AMR file.
func OpenRaw(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

type wavSource struct {
	*io.SectionReader
	f *os.File
}

func (s *wavSource) Close() error { return s.f.Close() }

// OpenWAV opens a WAV file and returns a Source limited to its PCM data chunk, so the
// header is never streamed.
func OpenWAV(path string) (Source, WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WAVInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, WAVInfo{}, fmt.Errorf("%s is not a valid WAV file", path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		_ = f.Close()
		return nil, WAVInfo{}, fmt.Errorf("failed to locate PCM data in %s: %w", path, err)
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		_ = f.Close()
		return nil, WAVInfo{}, fmt.Errorf("failed to locate PCM data in %s: %w", path, err)
	}

	info := WAVInfo{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		DataBytes:  decoder.PCMLen(),
	}
	return &wavSource{SectionReader: io.NewSectionReader(f, offset, info.DataBytes), f: f}, info, nil
}

// CreateRaw creates (or truncates) a headerless capture file.
func CreateRaw(path string) (Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

type wavSink struct {
	f       *os.File
	encoder *wav.Encoder
	format  *audio.Format
	carry   []byte // trailing odd byte of the previous Write
}

// CreateWAV creates a 16-bit little endian PCM WAV file. The header sizes are written on
// Close.
func CreateWAV(path string, sampleRate, channels int) (Sink, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz, %d channel(s)", sampleRate, channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &wavSink{
		f:       f,
		encoder: wav.NewEncoder(f, sampleRate, 16, channels, 1),
		format:  &audio.Format{SampleRate: sampleRate, NumChannels: channels},
	}, nil
}

func (s *wavSink) Write(p []byte) (int, error) {
	data := p
	if len(s.carry) > 0 {
		data = append(s.carry, p...)
		s.carry = nil
	}
	if len(data)%2 == 1 {
		s.carry = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return len(p), nil
	}

	samples := make([]int, len(data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	buf := &audio.IntBuffer{Format: s.format, Data: samples, SourceBitDepth: 16}
	if err := s.encoder.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to encode samples: %w", err)
	}
	return len(p), nil
}

func (s *wavSink) Close() error {
	var errs []error
	if len(s.carry) > 0 {
		errs = append(errs, fmt.Errorf("dropped %d trailing byte(s) of a partial sample", len(s.carry)))
	}
	if err := s.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to finalize WAV header: %w", err))
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
