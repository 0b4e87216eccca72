package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tsamp/internal/session"
	"github.com/srg/tsamp/pkg/telux"
	"golang.org/x/sys/unix"
)

// infiniteTone plays a DTMF tone until it is stopped explicitly.
const infiniteTone = 0xFFFF

// dtmfCmd represents the dtmf command
var dtmfCmd = &cobra.Command{
	Use:   "dtmf",
	Short: "Start a voice stream and play a DTMF tone",
	Long: `Creates a voice call stream, starts it, plays one DTMF tone and stops the stream.

The tone is a low and a high frequency from the DTMF grid:
  low:  697 770 852 941
  high: 1209 1336 1477 1633

Examples:
  # Digit 1 for half a second towards the local user
  tsamp dtmf --low 697 --high 1209 --duration 500ms

  # Digit # towards the network until --hold ends
  tsamp dtmf --low 941 --high 1477 --duration 0 --hold 3s --direction tx`,
	Args: exactArgs(0),
	RunE: runDtmf,
}

var (
	dtmfLow       uint16
	dtmfHigh      uint16
	dtmfDuration  time.Duration
	dtmfGain      uint16
	dtmfHold      time.Duration
	dtmfDirection string
	dtmfSlot      int
)

func init() {
	dtmfCmd.Flags().Uint16Var(&dtmfLow, "low", uint16(telux.DtmfLow697), "Low tone frequency in Hz")
	dtmfCmd.Flags().Uint16Var(&dtmfHigh, "high", uint16(telux.DtmfHigh1209), "High tone frequency in Hz")
	dtmfCmd.Flags().DurationVar(&dtmfDuration, "duration", 500*time.Millisecond, "Tone duration; 0 plays until --hold ends")
	dtmfCmd.Flags().Uint16Var(&dtmfGain, "gain", 5000, "Tone gain")
	dtmfCmd.Flags().DurationVar(&dtmfHold, "hold", time.Second, "How long to keep the voice stream running after the tone started")
	dtmfCmd.Flags().StringVar(&dtmfDirection, "direction", "rx", "Tone direction: rx (local user) or tx (network)")
	dtmfCmd.Flags().IntVar(&dtmfSlot, "slot", session.DefaultSlotID, "SIM slot of the voice call")
}

func parseTone() (telux.DtmfTone, uint16, error) {
	tone := telux.DtmfTone{LowFreq: telux.DtmfLowFreq(dtmfLow), HighFreq: telux.DtmfHighFreq(dtmfHigh)}
	if !tone.LowFreq.Valid() {
		return tone, 0, usageError("%d Hz is not a DTMF low frequency", dtmfLow)
	}
	if !tone.HighFreq.Valid() {
		return tone, 0, usageError("%d Hz is not a DTMF high frequency", dtmfHigh)
	}
	switch dtmfDirection {
	case "rx":
		tone.Direction = telux.DirectionRX
	case "tx":
		tone.Direction = telux.DirectionTX
	default:
		return tone, 0, usageError("direction must be rx or tx, got %q", dtmfDirection)
	}

	ms := dtmfDuration.Milliseconds()
	switch {
	case dtmfDuration == 0:
		return tone, infiniteTone, nil
	case ms <= 0 || ms >= infiniteTone:
		return tone, 0, fmt.Errorf("tone duration must be between 1ms and %dms, got %s: %w", infiniteTone-1, dtmfDuration, unix.ERANGE)
	}
	return tone, uint16(ms), nil
}

func runDtmf(cmd *cobra.Command, _ []string) error {
	tone, durationMs, err := parseTone()
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}

	rep := newReport("dtmf").
		set("low_hz", dtmfLow).
		set("high_hz", dtmfHigh).
		set("direction", dtmfDirection).
		set("duration_ms", durationMs)
	err = playTone(ctx, a, rep, tone, durationMs)
	err = errors.Join(err, a.close(ctx))
	return finish(cmd, asJSON, rep, err)
}

func playTone(ctx context.Context, a *app, rep *report, tone telux.DtmfTone, durationMs uint16) error {
	voice, err := startCall(ctx, a, session.VoiceConfig(dtmfSlot))
	if voice != nil {
		rep.set("stream_id", voice.ID())
	}
	if err != nil {
		return err
	}
	err = a.sess.PlayDtmfTone(ctx, tone, durationMs, dtmfGain)
	if err == nil {
		a.logger.WithField("hold", dtmfHold).Info("DTMF tone playing")
		err = hold(ctx, dtmfHold)
		if durationMs == infiniteTone {
			err = errors.Join(err, a.sess.StopDtmfTone(context.WithoutCancel(ctx), tone.Direction))
		}
	}
	return errors.Join(err, a.sess.StopAudio(context.WithoutCancel(ctx)))
}

func hold(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
