package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tsamp",
	Short: "Telematics audio sample runner",
	Long: `Runs the telematics audio samples against an audio backend:

- Play raw PCM, WAV or AMR-WB+ files to the speaker
- Play an in-band ringtone to a Bluetooth hands-free unit
- Capture microphone audio to raw PCM or WAV
- Start a voice stream and play DTMF tones

Streaming keeps a fixed pool of stream buffers in flight and recovers from short
writes by rewinding the source. The built-in "sim" backend loops playback into capture
and can inject faults from a YAML scenario (--sim-scenario).`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(exitCode(err))
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(playbackCmd)
	rootCmd.AddCommand(ringtoneCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(dtmfCmd)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("verbose", false, "Debug logging, same as --log-level debug")
	flags.String("config", "", "Config file (yaml, json or toml); TSAMP_* environment variables override it")
	flags.String("backend", "", "Audio backend (default from config: sim)")
	flags.String("sim-scenario", "", "YAML fault scenario for the sim backend")
	flags.Bool("json", false, "Print the result as JSON")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9100")
}
