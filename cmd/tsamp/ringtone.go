package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/tsamp/internal/session"
	"github.com/srg/tsamp/internal/streaming"
)

// ringtoneCmd represents the ringtone command
var ringtoneCmd = &cobra.Command{
	Use:   "ringtone <file>",
	Short: "Play an in-band ringtone to a Bluetooth hands-free unit",
	Long: `Plays headerless 8 kHz mono 16-bit PCM on the Bluetooth SCO speaker, the way a
hands-free gateway sends an in-band ringtone.

Examples:
  # Play a ringtone
  tsamp ringtone ring_8k.raw

  # Against a scenario that drops the first write short
  tsamp ringtone ring_8k.raw --sim-scenario short-write.yaml --log-level debug`,
	Args: exactArgs(1),
	RunE: runRingtone,
}

var (
	ringPoolSize    int
	ringWaitTimeout time.Duration
)

func init() {
	ringtoneCmd.Flags().IntVar(&ringPoolSize, "pool-size", 0, "Stream buffers in flight (default from config)")
	ringtoneCmd.Flags().DurationVar(&ringWaitTimeout, "wait-timeout", 0, "Wait for a free buffer (default from config)")
}

func runRingtone(cmd *cobra.Command, args []string) error {
	path := args[0]
	src, err := streaming.OpenRaw(path)
	if err != nil {
		return err
	}
	rep := newReport("ringtone").set("file", path)
	return runPlay(cmd, rep, session.RingtoneConfig(), nil, src, nil, ringPoolSize, ringWaitTimeout)
}
