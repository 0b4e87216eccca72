package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tsamp/internal/groutine"
	"github.com/srg/tsamp/internal/session"
	"github.com/srg/tsamp/internal/streaming"
	"github.com/srg/tsamp/pkg/telux"
	"golang.org/x/sys/unix"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <seconds> <file>",
	Short: "Capture microphone audio to a file",
	Long: `Records signed 16-bit PCM from the microphone for the given number of seconds.

Examples:
  # Capture 5 seconds of 48 kHz stereo to a raw file
  tsamp capture 5 mic.raw

  # Capture 10 seconds of 16 kHz mono to a WAV file
  tsamp capture 10 mic.wav --rate 16000 --channels 1 --wav

  # Start a voice call and record 5 seconds of its downlink
  tsamp capture 5 downlink.raw --in-call`,
	Args: exactArgs(2),
	RunE: runCapture,
}

var (
	captureRate        uint32
	captureChannels    int
	captureWAV         bool
	capturePoolSize    int
	captureWaitTimeout time.Duration
	captureInCall      bool
	captureSlot        int
)

func init() {
	captureCmd.Flags().Uint32Var(&captureRate, "rate", 48000, "Sample rate in Hz")
	captureCmd.Flags().IntVar(&captureChannels, "channels", 2, "Channels (1 or 2)")
	captureCmd.Flags().BoolVar(&captureWAV, "wav", false, "Write a WAV file instead of raw PCM")
	captureCmd.Flags().IntVar(&capturePoolSize, "pool-size", 0, "Stream buffers in flight (default from config)")
	captureCmd.Flags().DurationVar(&captureWaitTimeout, "wait-timeout", 0, "Wait for a free buffer (default from config)")
	captureCmd.Flags().BoolVar(&captureInCall, "in-call", false, "Start a voice call and record its downlink instead of the microphone")
	captureCmd.Flags().IntVar(&captureSlot, "slot", session.DefaultSlotID, "SIM slot of the voice call")
}

// parseSeconds accepts a positive whole number of seconds.
func parseSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("capture duration must be a positive number of seconds, got %q: %w", s, unix.ERANGE)
	}
	return time.Duration(n) * time.Second, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	duration, err := parseSeconds(args[0])
	if err != nil {
		return err
	}
	path := args[1]
	mask, err := channelMask(captureChannels)
	if err != nil {
		return err
	}
	if captureRate == 0 {
		return usageError("rate must be positive")
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	var sink streaming.Sink
	if captureWAV {
		sink, err = streaming.CreateWAV(path, int(captureRate), captureChannels)
	} else {
		sink, err = streaming.CreateRaw(path)
	}
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cmd)
	if err != nil {
		_ = sink.Close()
		return err
	}

	rep := newReport("capture").set("file", path).set("seconds", int(duration.Seconds()))
	cfg := session.CaptureConfig(captureRate, mask)
	if captureInCall {
		rep.set("in_call", true)
		cfg = session.InCallCaptureConfig(captureRate, mask)
		var voice telux.VoiceStream
		if voice, err = startCall(ctx, a, session.VoiceConfig(captureSlot)); voice != nil {
			rep.set("voice_stream_id", voice.ID())
		}
	}
	var res *streaming.Result
	if err != nil {
		_ = sink.Close()
	} else {
		res, err = record(ctx, a, cmd, rep, cfg, sink, duration)
	}
	if res != nil {
		rep.addResult(*res)
	}
	err = errors.Join(err, a.close(ctx))
	return finish(cmd, asJSON, rep, err)
}

func record(ctx context.Context, a *app, cmd *cobra.Command, rep *report, cfg telux.StreamConfig, sink streaming.Sink, duration time.Duration) (*streaming.Result, error) {
	stream, err := a.sess.CreateCaptureStream(ctx, cfg)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	rep.set("stream_id", stream.ID())

	path, _ := rep.fields.Get("file")
	progress := newProgress(cmd.OutOrStdout(), fmt.Sprintf("Capturing %s", filepath.Base(fmt.Sprint(path))), duration)
	opts := a.streamOptions("capture", capturePoolSize, captureWaitTimeout, progress)
	opts.Duration = duration

	progress.Start(ctx)
	res, err := groutine.Run(ctx, "capture", func(ctx context.Context) (streaming.Result, error) {
		return streaming.NewRecorder(stream, opts).Record(ctx, sink)
	})
	progress.Stop()
	return &res, err
}
