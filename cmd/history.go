package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently played tracks",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()

	entries, err := lib.History(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("Nothing played yet")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s  %s  %s\n",
			e.PlayedAt.Local().Format("2006-01-02 15:04"),
			padToWidth(e.Track.Title, titleColumn),
			e.Track.Artist,
		)
	}
	return nil
}
