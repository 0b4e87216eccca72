package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tsamp/internal/groutine"
	"github.com/srg/tsamp/internal/session"
	"github.com/srg/tsamp/internal/streaming"
	"github.com/srg/tsamp/pkg/telux"
)

// playbackCmd represents the playback command
var playbackCmd = &cobra.Command{
	Use:   "playback <file>",
	Short: "Play a PCM, WAV or AMR-WB+ file to the speaker",
	Long: `Streams a file to a playback stream on the speaker.

Formats:
  pcm         headerless signed 16-bit little-endian PCM (--rate, --channels)
  wav         16-bit PCM WAV; rate and channels come from the header
  amrwb-plus  AMR-WB+ file storage format bitstream, 16 kHz; writes wait for the
              stream to report readiness after a short write, and playback ends
              with a stop-after-play

Examples:
  # Play 16 kHz mono PCM
  tsamp playback voice.raw --rate 16000

  # Play a WAV file with 4 buffers in flight
  tsamp playback song.wav --format wav --pool-size 4

  # Play AMR-WB+ and print the result as JSON
  tsamp playback clip.awb --format amrwb-plus --json

  # Start a voice call and play 48 kHz stereo PCM into its uplink
  tsamp playback prompt.raw --rate 48000 --channels 2 --in-call

  # Feed 8 kHz mono PCM to the far end through the proxy microphone
  tsamp playback prompt.raw --rate 8000 --proxy-mic`,
	Args: exactArgs(1),
	RunE: runPlayback,
}

var (
	playRate          uint32
	playChannels      int
	playFormat        string
	playStopAfterPlay bool
	playPoolSize      int
	playWaitTimeout   time.Duration
	playInCall        bool
	playProxyMic      bool
	playSlot          int
)

func init() {
	playbackCmd.Flags().Uint32Var(&playRate, "rate", 16000, "Sample rate of pcm input in Hz")
	playbackCmd.Flags().IntVar(&playChannels, "channels", 1, "Channels of pcm input (1 or 2)")
	playbackCmd.Flags().StringVar(&playFormat, "format", "pcm", "Input format: pcm, wav or amrwb-plus")
	playbackCmd.Flags().BoolVar(&playStopAfterPlay, "stop-after-play", false, "Stop the stream after the last buffer has been rendered")
	playbackCmd.Flags().IntVar(&playPoolSize, "pool-size", 0, "Stream buffers in flight (default from config)")
	playbackCmd.Flags().DurationVar(&playWaitTimeout, "wait-timeout", 0, "Wait for a free buffer (default from config)")
	playbackCmd.Flags().BoolVar(&playInCall, "in-call", false, "Start a voice call and play into its uplink")
	playbackCmd.Flags().BoolVar(&playProxyMic, "proxy-mic", false, "Start a proxy mic voice call and play to the proxy speaker (implies --in-call)")
	playbackCmd.Flags().IntVar(&playSlot, "slot", session.DefaultSlotID, "SIM slot of the voice call")
}

func channelMask(n int) (telux.ChannelType, error) {
	switch n {
	case 1:
		return telux.ChannelLeft, nil
	case 2:
		return telux.ChannelLeft | telux.ChannelRight, nil
	}
	return 0, usageError("channels must be 1 or 2, got %d", n)
}

func runPlayback(cmd *cobra.Command, args []string) error {
	path := args[0]

	var (
		src  streaming.Source
		cfg  telux.StreamConfig
		gate bool
		stop = playStopAfterPlay
		rep  = newReport("playback").set("file", path).set("format", playFormat)
	)
	switch playFormat {
	case "pcm":
		mask, err := channelMask(playChannels)
		if err != nil {
			return err
		}
		if playRate == 0 {
			return usageError("rate must be positive")
		}
		cfg = session.PlaybackConfig(playRate, mask)
		if src, err = streaming.OpenRaw(path); err != nil {
			return err
		}
	case "wav":
		var info streaming.WAVInfo
		var err error
		if src, info, err = streaming.OpenWAV(path); err != nil {
			return err
		}
		mask, err := channelMask(info.Channels)
		if err == nil && info.BitDepth != 16 {
			err = usageError("only 16-bit WAV files are supported, got %d-bit", info.BitDepth)
		}
		if err != nil {
			_ = src.Close()
			return err
		}
		cfg = session.PlaybackConfig(uint32(info.SampleRate), mask)
		rep.set("rate", info.SampleRate).set("channels", info.Channels)
	case "amrwb-plus":
		var err error
		if src, err = streaming.OpenRaw(path); err != nil {
			return err
		}
		cfg = session.AMRWBPlusConfig()
		gate, stop = true, true
	default:
		return usageError("unknown format %q (must be pcm, wav or amrwb-plus)", playFormat)
	}

	var call *telux.StreamConfig
	if playInCall || playProxyMic {
		callCfg, playCfg, err := inCallPlayback(cfg, playSlot, playProxyMic)
		if err != nil {
			_ = src.Close()
			return err
		}
		call, cfg = &callCfg, playCfg
		rep.set("in_call", true)
	}

	return runPlay(cmd, rep, cfg, call, src, func(opts *streaming.Options) {
		opts.GateOnReady = gate
		opts.StopAfterPlay = stop
	}, playPoolSize, playWaitTimeout)
}

// runPlay plays src on a new stream created from cfg and prints the result. A non-nil
// call is started first and outlives the playback stream.
func runPlay(cmd *cobra.Command, rep *report, cfg telux.StreamConfig, call *telux.StreamConfig, src streaming.Source, tune func(*streaming.Options), poolSize int, waitTimeout time.Duration) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cmd)
	if err != nil {
		_ = src.Close()
		return err
	}

	var res *streaming.Result
	if call != nil {
		var voice telux.VoiceStream
		if voice, err = startCall(ctx, a, *call); voice != nil {
			rep.set("voice_stream_id", voice.ID())
		}
	}
	if err != nil {
		_ = src.Close()
	} else {
		res, err = play(ctx, a, cmd, rep, cfg, src, tune, poolSize, waitTimeout)
	}
	if res != nil {
		rep.addResult(*res)
	}
	err = errors.Join(err, a.close(ctx))
	return finish(cmd, asJSON, rep, err)
}

func play(ctx context.Context, a *app, cmd *cobra.Command, rep *report, cfg telux.StreamConfig, src streaming.Source, tune func(*streaming.Options), poolSize int, waitTimeout time.Duration) (*streaming.Result, error) {
	stream, err := a.sess.CreatePlayStream(ctx, cfg)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	rep.set("stream_id", stream.ID())

	name, _ := rep.fields.Get("file")
	progress := newProgress(cmd.OutOrStdout(), fmt.Sprintf("Playing %s", filepath.Base(fmt.Sprint(name))), 0)
	opts := a.streamOptions(rep.command, poolSize, waitTimeout, progress)
	if tune != nil {
		tune(&opts)
	}

	progress.Start(ctx)
	res, err := groutine.Run(ctx, "playback", func(ctx context.Context) (streaming.Result, error) {
		return streaming.NewPlayer(stream, opts).Play(ctx, src)
	})
	progress.Stop()
	return &res, err
}
