package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	logLevel string
	logFile  string
	dataDir  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tgplay",
	Short: "Terminal music player for the tgplay backend",
	Long: `tgplay searches the music backend, streams tracks and keeps a
personal playlist that can be forwarded to the chat bot.

Run 'tgplay play' for the interactive player. The other commands query
the backend directly or control a running player over MPRIS.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr, or the data dir for the player)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory for the library and player state (default: ~/.local/share/tgplay)")
}
