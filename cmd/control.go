package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/tgplay/internal/transport/mpris"
)

// These commands talk to a running 'tgplay play' over its MPRIS interface.

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running player",
	Args:  cobra.NoArgs,
	RunE: withRemote("pause", func(ctx context.Context, r *mpris.Remote) error {
		return r.Pause(ctx)
	}),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the running player",
	Args:  cobra.NoArgs,
	RunE: withRemote("resume", func(ctx context.Context, r *mpris.Remote) error {
		return r.Play(ctx)
	}),
}

var playpauseCmd = &cobra.Command{
	Use:   "playpause",
	Short: "Toggle play/pause in the running player",
	Args:  cobra.NoArgs,
	RunE: withRemote("playpause", func(ctx context.Context, r *mpris.Remote) error {
		return r.PlayPause(ctx)
	}),
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track in the queue",
	Args:  cobra.NoArgs,
	RunE: withRemote("skip to next track", func(ctx context.Context, r *mpris.Remote) error {
		return r.Next(ctx)
	}),
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to the previous track in the queue",
	Args:  cobra.NoArgs,
	RunE: withRemote("go to previous track", func(ctx context.Context, r *mpris.Remote) error {
		return r.Previous(ctx)
	}),
}

var seekCmd = &cobra.Command{
	Use:   "seek <[+|-]seconds>",
	Short: "Seek relative to the current position",
	Long: `Seek relative to the current position of the running player.

Examples:
  tgplay seek 30     jump 30 seconds ahead
  tgplay seek -10    jump 10 seconds back`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := parseSeekOffset(args[0])
		if err != nil {
			return err
		}
		return withRemote("seek", func(ctx context.Context, r *mpris.Remote) error {
			return r.Seek(ctx, offset)
		})(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(playpauseCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(seekCmd)
}

func withRemote(what string, fn func(context.Context, *mpris.Remote) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		remote, err := mpris.Dial(mprisName)
		if err != nil {
			return fmt.Errorf("failed to reach player: %w", err)
		}
		defer func() { _ = remote.Close() }()

		if err := fn(ctx, remote); err != nil {
			return fmt.Errorf("failed to %s: %w", what, err)
		}
		return nil
	}
}

func parseSeekOffset(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seek offset: %s (must be a number of seconds)", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
