package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/srg/tsamp/internal/streaming"
	"github.com/srg/tsamp/internal/testutils"
	"github.com/stretchr/testify/require"
)

func sampleReport() *report {
	return newReport("playback").
		set("file", "voice.raw").
		addResult(streaming.Result{
			Outcome:        streaming.OutcomeEOF,
			BuffersIssued:  11,
			Bytes:          3200,
			ShortTransfers: 1,
			RewoundBytes:   20,
			MaxInFlight:    4,
			Elapsed:        42 * time.Millisecond,
		})
}

func TestReport_Text(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, sampleReport().print(&out, false))

	testutils.NewTextAsserter(t).Assert(out.String(), `
OK playback
  file: voice.raw
  outcome: eof
  buffers: 11
  bytes: 3200
  short_transfers: 1
  rewound_bytes: 20
  max_in_flight: 4
  elapsed_ms: 42
`)
}

func TestReport_TextFailedIsColored(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = saved }()

	var out bytes.Buffer
	require.NoError(t, sampleReport().fail(errors.New("boom")).print(&out, false))

	require.Contains(t, out.String(), "\x1b[", "terminal output MUST be colored")
	testutils.NewTextAsserter(t).Assert(out.String(), `
FAILED playback
  file: voice.raw
  outcome: eof
  buffers: 11
  bytes: 3200
  short_transfers: 1
  rewound_bytes: 20
  max_in_flight: 4
  elapsed_ms: 42
`)
}

func TestReport_JSONKeepsOrder(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, sampleReport().fail(errors.New("boom")).print(&out, true))

	testutils.NewTextAsserter(t).Assert(out.String(), `{
  "command": "playback",
  "status": "failed",
  "error": "boom",
  "file": "voice.raw",
  "outcome": "eof",
  "buffers": 11,
  "bytes": 3200,
  "short_transfers": 1,
  "rewound_bytes": 20,
  "max_in_flight": 4,
  "elapsed_ms": 42
}`)
}

func TestFinish(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd
	cmd.SetOut(&out)
	defer cmd.SetOut(nil)

	err := errors.New("boom")
	require.Same(t, err, finish(cmd, true, newReport("dtmf"), err), "finish MUST return the command error")
	testutils.NewJSONAsserter(t).Assert(out.String(), `{"command": "dtmf", "status": "failed", "error": "boom"}`)
}
