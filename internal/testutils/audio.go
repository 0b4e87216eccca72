package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"github.com/srg/tsamp/internal/simaudio"
	"github.com/stretchr/testify/require"
)

// QuietLogger returns a logger that drops everything below panic.
func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// PCM returns n bytes of a repeating, position-dependent pattern.
func PCM(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

// WriteFile writes data to name inside a per-test directory and returns its path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// WriteWAV writes 16-bit samples as a WAV file and returns its path.
func WriteWAV(t *testing.T, name string, sampleRate, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

// ReadWAV decodes a WAV file into its format and samples.
func ReadWAV(t *testing.T, path string) (*audio.Format, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile(), "%s MUST be a valid WAV file", path)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return buf.Format, buf.Data
}

// Scenario parses a YAML simaudio scenario or fails the test.
func Scenario(t *testing.T, yaml string) *simaudio.Scenario {
	t.Helper()
	sc, err := simaudio.ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return sc
}
