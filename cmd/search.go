package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/tgplay/internal/store"
	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

const (
	titleColumn  = 40
	artistColumn = 24
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog",
	Long: `Search the music catalog and print the matching tracks.

Results are remembered in the local library so that 'tgplay playlist add'
and 'tgplay send' can use their titles and artwork later.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
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

	tracks, err := client.Music().Search(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(tracks) == 0 {
		fmt.Println("No results")
		return nil
	}

	rememberTracks(ctx, cfg.DatabasePath(), tracks, logger)
	printTracks(os.Stdout, tracks)
	return nil
}

// rememberTracks stores tracks in the library; failures only cost metadata
// later, so they are logged and ignored.
func rememberTracks(ctx context.Context, path string, tracks []tgapi.Track, logger zerolog.Logger) {
	lib, err := store.Open(path)
	if err != nil {
		logger.Debug().Err(err).Msg("Library unavailable")
		return
	}
	defer func() { _ = lib.Close() }()
	if err := lib.SaveTracks(ctx, tracks); err != nil {
		logger.Debug().Err(err).Msg("Failed to save tracks")
	}
}

// printTracks writes one aligned row per track.
func printTracks(w io.Writer, tracks []tgapi.Track) {
	for i, t := range tracks {
		_, _ = fmt.Fprintln(w, formatTrackRow(i+1, t))
	}
}

func formatTrackRow(n int, t tgapi.Track) string {
	dur := "--:--"
	if t.Duration > 0 {
		dur = formatClock(t.Duration)
	}
	return fmt.Sprintf("%3d  %s  %s  %5s  %s",
		n,
		padToWidth(t.Title, titleColumn),
		padToWidth(t.Artist, artistColumn),
		dur,
		t.ID,
	)
}

// formatClock formats d as M:SS, or H:MM:SS past an hour.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Seconds())
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
