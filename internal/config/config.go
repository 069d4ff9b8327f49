package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Backend base URL
	APIBase string

	// Opaque identity blob from the host container, sent as the
	// Authorization token on playlist, bot and auth calls
	InitData string

	// Artwork published to media controls when a track has none
	ArtworkPlaceholder string

	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string

	// Fixed display width for the now command (0 = no padding/truncation)
	OutputWidth int

	Marquee   MarqueeConfig
	Resolver  ResolverConfig
	Playback  PlaybackConfig
	Transport TransportConfig

	// Where the library database, player state and logs live
	DataDir string
}

// MarqueeConfig controls scrolling of long now-playing text
type MarqueeConfig struct {
	Enabled   bool
	Speed     int // characters per second
	Separator string
}

// ResolverConfig tunes stream URL resolution
type ResolverConfig struct {
	TTL                time.Duration
	MaxEntries         int
	PreloadConcurrency int
	Timeout            time.Duration
	Retries            int
}

type PlaybackConfig struct {
	SeekUnlock time.Duration
}

// TransportConfig selects the media control surfaces
type TransportConfig struct {
	MPRIS        bool
	DiscordAppID string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	setDefaults(v)

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// TGPLAY_API_BASE, TGPLAY_RESOLVER_TTL, ...
	v.SetEnvPrefix("TGPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base", "http://localhost:8000")
	v.SetDefault("init_data", "")
	v.SetDefault("artwork_placeholder", "")
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee.enabled", false)
	v.SetDefault("marquee.speed", 2)
	v.SetDefault("marquee.separator", " • ")
	v.SetDefault("resolver.ttl", 20*time.Minute)
	v.SetDefault("resolver.max_entries", 256)
	v.SetDefault("resolver.preload_concurrency", 4)
	v.SetDefault("resolver.timeout", 15*time.Second)
	v.SetDefault("resolver.retries", 2)
	v.SetDefault("playback.seek_unlock", 500*time.Millisecond)
	v.SetDefault("transport.mpris", true)
	v.SetDefault("transport.discord_app_id", "")
	v.SetDefault("data_dir", defaultDataDir())
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		APIBase:            v.GetString("api_base"),
		InitData:           v.GetString("init_data"),
		ArtworkPlaceholder: v.GetString("artwork_placeholder"),
		OutputFormat:       v.GetString("output_format"),
		OutputWidth:        v.GetInt("output_width"),
		Marquee: MarqueeConfig{
			Enabled:   v.GetBool("marquee.enabled"),
			Speed:     v.GetInt("marquee.speed"),
			Separator: v.GetString("marquee.separator"),
		},
		Resolver: ResolverConfig{
			TTL:                v.GetDuration("resolver.ttl"),
			MaxEntries:         v.GetInt("resolver.max_entries"),
			PreloadConcurrency: v.GetInt("resolver.preload_concurrency"),
			Timeout:            v.GetDuration("resolver.timeout"),
			Retries:            v.GetInt("resolver.retries"),
		},
		Playback: PlaybackConfig{
			SeekUnlock: v.GetDuration("playback.seek_unlock"),
		},
		Transport: TransportConfig{
			MPRIS:        v.GetBool("transport.mpris"),
			DiscordAppID: v.GetString("transport.discord_app_id"),
		},
		DataDir: expandHome(v.GetString("data_dir")),
	}
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "tgplay")
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "tgplay")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// DatabasePath is the local library database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "library.db")
}

// StatePath is the player snapshot read by the now command.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.json")
}

// LogPath is where the interactive player logs.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "tgplay.log")
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configFile := filepath.Join(getConfigDir(), "config.yaml")

	v.Set("api_base", c.APIBase)
	v.Set("init_data", c.InitData)
	v.Set("artwork_placeholder", c.ArtworkPlaceholder)
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee.enabled", c.Marquee.Enabled)
	v.Set("marquee.speed", c.Marquee.Speed)
	v.Set("marquee.separator", c.Marquee.Separator)
	v.Set("resolver.ttl", c.Resolver.TTL.String())
	v.Set("resolver.max_entries", c.Resolver.MaxEntries)
	v.Set("resolver.preload_concurrency", c.Resolver.PreloadConcurrency)
	v.Set("resolver.timeout", c.Resolver.Timeout.String())
	v.Set("resolver.retries", c.Resolver.Retries)
	v.Set("playback.seek_unlock", c.Playback.SeekUnlock.String())
	v.Set("transport.mpris", c.Transport.MPRIS)
	v.Set("transport.discord_app_id", c.Transport.DiscordAppID)
	v.Set("data_dir", c.DataDir)

	return v.WriteConfigAs(configFile)
}
