package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/tgplay/internal/playlist"
	"github.com/jfmyers9/tgplay/internal/store"
	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Show or edit your playlist",
	Long: `Show your playlist. With a subcommand, add or remove tracks.

The playlist is mirrored in the local library, so it can still be listed
when the backend is unreachable.`,
	Args: cobra.NoArgs,
	RunE: withPlaylist(func(ctx context.Context, pl *playlist.Store, _ *store.Store, _ []string) error {
		tracks, err := pl.List(ctx)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			fmt.Println("Playlist is empty")
			return nil
		}
		printTracks(os.Stdout, tracks)
		return nil
	}),
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <track-id>",
	Short: "Add a track to your playlist",
	Args:  cobra.ExactArgs(1),
	RunE: withPlaylist(func(ctx context.Context, pl *playlist.Store, lib *store.Store, args []string) error {
		t, err := lookupTrack(ctx, lib, args[0])
		if err != nil {
			return err
		}
		status, err := pl.Add(ctx, t)
		if err != nil {
			return err
		}
		switch status {
		case tgapi.StatusSaved:
			fmt.Printf("✓ Saved %s\n", describeTrack(t))
		case tgapi.StatusAlreadyExists:
			fmt.Printf("%s is already in your playlist\n", describeTrack(t))
		default:
			return fmt.Errorf("failed to save %s", describeTrack(t))
		}
		return nil
	}),
}

var playlistRemoveCmd = &cobra.Command{
	Use:     "remove <track-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a track from your playlist",
	Args:    cobra.ExactArgs(1),
	RunE: withPlaylist(func(ctx context.Context, pl *playlist.Store, _ *store.Store, args []string) error {
		ok, err := pl.Remove(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("failed to remove %s", args[0])
		}
		fmt.Printf("✓ Removed %s\n", args[0])
		return nil
	}),
}

var sendCmd = &cobra.Command{
	Use:   "send <track-id>",
	Short: "Save a track and send it to the chat",
	Long: `Save a track to your playlist and ask the bot to send the audio file
to your chat. Both happen at once; the result of each is reported.`,
	Args: cobra.ExactArgs(1),
	RunE: withPlaylist(func(ctx context.Context, pl *playlist.Store, lib *store.Store, args []string) error {
		t, err := lookupTrack(ctx, lib, args[0])
		if err != nil {
			return err
		}
		out, err := pl.AddAndSend(ctx, t)
		if err != nil {
			return err
		}
		fmt.Println(out.Message())
		if !out.Saved() && !out.Sent {
			os.Exit(1)
		}
		return nil
	}),
}

func init() {
	playlistCmd.AddCommand(playlistAddCmd)
	playlistCmd.AddCommand(playlistRemoveCmd)
	rootCmd.AddCommand(playlistCmd)
	rootCmd.AddCommand(sendCmd)
}

type playlistFunc func(ctx context.Context, pl *playlist.Store, lib *store.Store, args []string) error

// withPlaylist wires the backend and the library mirror for a playlist
// command.
func withPlaylist(fn playlistFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		// Sending waits for the bot to upload the file.
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(logFile, logLevel)

		client, err := newAPIClient(cfg, logger)
		if err != nil {
			return err
		}
		lib, err := openLibrary(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()

		pl := playlist.New(client.Playlist(), client.Bot(), lib, logger)
		return explainAuth(fn(ctx, pl, lib, args))
	}
}

func explainAuth(err error) error {
	if errors.Is(err, tgapi.ErrAuthRequired) {
		return fmt.Errorf("not signed in: run 'tgplay auth' first")
	}
	return err
}

// lookupTrack returns the library's metadata for id, or a bare track when
// it was never seen.
func lookupTrack(ctx context.Context, lib *store.Store, id string) (tgapi.Track, error) {
	t, ok, err := lib.Track(ctx, id)
	if err != nil {
		return tgapi.Track{}, fmt.Errorf("failed to read library: %w", err)
	}
	if !ok {
		return tgapi.Track{ID: id, Title: "Unknown title", Artist: "Unknown artist"}, nil
	}
	return t, nil
}

func describeTrack(t tgapi.Track) string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}
