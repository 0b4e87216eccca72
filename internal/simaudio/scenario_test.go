package simaudio_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/srg/tsamp/internal/simaudio"
	"github.com/srg/tsamp/pkg/telux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	sc, err := simaudio.ParseScenario([]byte(`
service_delay: 50ms
transfer_delay: 5ms
buffer_min_size: 640
faults:
  - {op: write, index: 2, short: 10}
  - {op: read, index: -1, code: generic_failure}
  - {op: create, index: 0, status: not_ready}
`))
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, sc.ServiceDelay)
	assert.Equal(t, 5*time.Millisecond, sc.TransferDelay)
	assert.Equal(t, 640, sc.BufferMinSize)
	assert.Equal(t, 64*1024, sc.LoopbackBytes, "loopback size MUST default")
	require.Len(t, sc.Faults, 3)
	assert.Equal(t, 10, sc.Faults[0].Short)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"service status", "service_status: sleepy\n", "unknown service status"},
		{"op", "faults: [{op: fly}]\n", "unknown op"},
		{"status", "faults: [{op: write, status: grumpy}]\n", "unknown status"},
		{"code", "faults: [{op: write, code: grumpy}]\n", "unknown error code"},
		{"index", "faults: [{op: write, index: -2}]\n", "index"},
		{"sizes", "buffer_min_size: 10\nbuffer_max_size: 5\n", "exceeds"},
		{"yaml", "faults: {\n", "failed to parse scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := simaudio.ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service_status: failed\n"), 0o644))

	sc, err := simaudio.LoadScenario(path)
	require.NoError(t, err)

	mgr := simaudio.New(simaudio.Options{Scenario: sc})
	defer mgr.Close()
	assert.Equal(t, telux.ServiceFailed, mgr.ServiceStatus())

	_, err = simaudio.LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFaults(t *testing.T) {
	sc, err := simaudio.ParseScenario([]byte(`
transfer_delay: 1ms
faults:
  - {op: write, index: 0, short: 10}
  - {op: write, index: 1, code: generic_failure}
  - {op: write, index: 2, status: not_ready}
  - {op: write, index: 3, stall: true}
  - {op: read, index: 0, short: 20}
`))
	require.NoError(t, err)
	mgr := simaudio.New(simaudio.Options{Scenario: sc})
	defer mgr.Close()

	streams := make(chan telux.AudioStream, 2)
	onCreate := func(st telux.AudioStream, code telux.ErrorCode) {
		assert.Equal(t, telux.ErrorCodeSuccess, code)
		streams <- st
	}
	require.Equal(t, telux.StatusSuccess, mgr.CreateStream(playConfig(), onCreate))
	play := await(t, streams).(telux.PlayStream)
	require.Equal(t, telux.StatusSuccess, mgr.CreateStream(captureConfig(), onCreate))
	capture := await(t, streams).(telux.CaptureStream)

	type written struct {
		n    int
		code telux.ErrorCode
	}
	results := make(chan written, 4)
	write := func() telux.Status {
		buf := play.GetStreamBuffer()
		require.NoError(t, buf.SetDataSize(100))
		return play.Write(buf, func(_ telux.StreamBuffer, n int, code telux.ErrorCode) {
			results <- written{n, code}
		})
	}

	require.Equal(t, telux.StatusSuccess, write())
	assert.Equal(t, written{90, telux.ErrorCodeSuccess}, await(t, results), "short fault MUST consume fewer bytes")

	require.Equal(t, telux.StatusSuccess, write())
	assert.Equal(t, written{0, telux.ErrorCodeGenericFailure}, await(t, results))

	assert.Equal(t, telux.StatusNotReady, write(), "status fault MUST reject synchronously")

	require.Equal(t, telux.StatusSuccess, write(), "stalled request MUST be accepted")
	select {
	case r := <-results:
		t.Fatalf("stalled write completed: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	reads := make(chan int, 1)
	buf := capture.GetStreamBuffer()
	require.Equal(t, telux.StatusSuccess, capture.Read(buf, 100, func(b telux.StreamBuffer, _ telux.ErrorCode) {
		reads <- b.DataSize()
	}))
	assert.Equal(t, 80, await(t, reads))

	var stalled int
	for _, rec := range mgr.Trace() {
		if rec.Stalled {
			stalled++
		}
	}
	assert.Equal(t, 1, stalled)
}

type readyListener struct {
	ready, stopped chan struct{}
}

func (l *readyListener) OnReadyForWrite() { l.ready <- struct{}{} }
func (l *readyListener) OnPlayStopped()   { l.stopped <- struct{}{} }

func TestCompressedShortWriteSignalsReady(t *testing.T) {
	sc, err := simaudio.ParseScenario([]byte(`
ready_delay: 5ms
faults:
  - {op: write, index: 0, short: 50}
`))
	require.NoError(t, err)
	mgr := simaudio.New(simaudio.Options{Scenario: sc})
	defer mgr.Close()

	cfg := playConfig()
	cfg.SampleRate = 16000
	cfg.Format = telux.FormatAMRWBPlus
	cfg.Amrwbp = &telux.AmrwbpParams{FrameFormat: telux.AmrwbpFileStorage}

	streams := make(chan telux.AudioStream, 1)
	require.Equal(t, telux.StatusSuccess, mgr.CreateStream(cfg, func(st telux.AudioStream, _ telux.ErrorCode) { streams <- st }))
	play := await(t, streams).(telux.PlayStream)

	l := &readyListener{ready: make(chan struct{}, 1), stopped: make(chan struct{}, 1)}
	require.Equal(t, telux.StatusSuccess, play.RegisterListener(l))

	buf := play.GetStreamBuffer()
	assert.Equal(t, 0, buf.MinSize(), "compressed streams MUST state no preferred size")
	require.NoError(t, buf.SetDataSize(100))
	require.Equal(t, telux.StatusSuccess, play.Write(buf, func(telux.StreamBuffer, int, telux.ErrorCode) {}))
	await(t, l.ready)

	codes := make(chan telux.ErrorCode, 1)
	require.Equal(t, telux.StatusSuccess, play.StopAudio(telux.StopAfterPlay, func(code telux.ErrorCode) { codes <- code }))
	assert.Equal(t, telux.ErrorCodeSuccess, await(t, codes))
	await(t, l.stopped)

	assert.Equal(t, telux.StatusSuccess, play.DeregisterListener(l))
	assert.Equal(t, telux.StatusNoSuch, play.DeregisterListener(l))
}
