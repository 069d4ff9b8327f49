package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jfmyers9/tgplay/internal/config"
	"github.com/jfmyers9/tgplay/internal/media"
	"github.com/jfmyers9/tgplay/internal/player"
	"github.com/jfmyers9/tgplay/internal/playlist"
	"github.com/jfmyers9/tgplay/internal/resolver"
	"github.com/jfmyers9/tgplay/internal/transport"
	"github.com/jfmyers9/tgplay/internal/transport/discord"
	"github.com/jfmyers9/tgplay/internal/transport/mpris"
	"github.com/jfmyers9/tgplay/internal/tui"
)

const (
	mprisName = "tgplay"

	// History older than this is pruned when the player starts.
	historyRetention = 180 * 24 * time.Hour
)

var playHeadless bool

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play [query]",
	Short: "Run the interactive player",
	Long: `Run the interactive player.

The player shows your playlist, lets you search the catalog and streams the
selected track. While it runs it is published on MPRIS (media keys, shell
widgets, 'tgplay next' and friends) and, when an application id is
configured, as Discord rich presence.

With --headless no terminal UI is shown: the query, if given, is searched
and its first result played, and the player runs until interrupted. Logs go
to stderr in that mode and to the data directory otherwise.`,
	Args: cobra.ArbitraryArgs,
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().BoolVar(&playHeadless, "headless", false, "Run without the terminal UI")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; log to a file unless told otherwise.
	logPath := logFile
	if logPath == "" && !playHeadless {
		logPath = cfg.LogPath()
	}
	logger := setupLogger(logPath, logLevel)

	logger.Info().
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Bool("audio", media.AudioAvailable).
		Msg("Starting tgplay")

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := lib.Cleanup(ctx, historyRetention); err != nil {
		logger.Warn().Err(err).Msg("Failed to prune history")
	} else if n > 0 {
		logger.Debug().Int64("removed", n).Msg("Pruned history")
	}

	res := resolver.New(client.Music(), resolver.Config{
		TTL:                cfg.Resolver.TTL,
		MaxEntries:         cfg.Resolver.MaxEntries,
		PreloadConcurrency: cfg.Resolver.PreloadConcurrency,
		Timeout:            cfg.Resolver.Timeout,
		Retries:            cfg.Resolver.Retries,
	}, logger)
	defer res.Wait()

	el := media.New(nil, logger)
	defer el.Close()

	p := player.New(player.Config{
		StateFile:  cfg.StatePath(),
		SeekUnlock: cfg.Playback.SeekUnlock,
	}, player.Deps{
		Catalog:  client.Music(),
		Resolver: res,
		Element:  el,
		Playlist: playlist.New(client.Playlist(), client.Bot(), lib, logger),
		Library:  lib,
	}, logger)

	surfaces, presence, closeSurfaces := openSurfaces(cfg, logger)
	defer closeSurfaces()

	bridge := transport.NewBridge(transport.NewMulti(surfaces...), p, cfg.ArtworkPlaceholder, logger)
	bridge.Attach()
	defer bridge.Detach()
	unsubscribe := p.Session().Subscribe(bridge)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	if presence != nil {
		g.Go(func() error {
			presence.Run(gctx)
			return nil
		})
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if playHeadless {
		if err := playHeadlessQuery(gctx, p, query, logger); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		<-gctx.Done()
		logger.Info().Msg("Received shutdown signal")
	} else {
		app := tui.New(p, tui.DefaultConfig())
		if query != "" {
			go func() {
				if _, err := p.Search(gctx, query); err != nil {
					logger.Warn().Err(err).Msg("Initial search failed")
				}
			}()
		}
		if err := app.Run(gctx); err != nil {
			logger.Error().Err(err).Msg("TUI error")
		}
		cancel()
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("player error: %w", err)
	}
	logger.Info().Msg("tgplay stopped")
	return nil
}

func playHeadlessQuery(ctx context.Context, p *player.Player, query string, logger zerolog.Logger) error {
	if query == "" {
		logger.Info().Msg("No query given, waiting for MPRIS commands")
		return nil
	}
	tracks, err := p.Search(ctx, query)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("no results for %q", query)
	}
	return p.PlayIndex(0)
}

// openSurfaces connects the configured media control surfaces. A surface
// that cannot be reached is logged and left out.
func openSurfaces(cfg *config.Config, logger zerolog.Logger) ([]transport.Surface, *discord.Presence, func()) {
	var (
		surfaces []transport.Surface
		closers  []func()
		presence *discord.Presence
	)

	if cfg.Transport.MPRIS {
		s, err := mpris.New(mprisName, "tgplay", logger)
		if err != nil {
			logger.Warn().Err(err).Msg("MPRIS unavailable")
		} else {
			surfaces = append(surfaces, s)
			closers = append(closers, func() { _ = s.Close() })
		}
	}

	if cfg.Transport.DiscordAppID != "" {
		presence = discord.New(cfg.Transport.DiscordAppID, logger)
		surfaces = append(surfaces, presence)
	}

	return surfaces, presence, func() {
		for _, c := range closers {
			c()
		}
	}
}
