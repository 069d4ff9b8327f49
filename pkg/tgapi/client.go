// Package tgapi provides a client for the tgplay backend HTTP API.
//
// The backend owns search, URL resolution, proxy streaming, playlists and
// the hand-off of tracks to the companion bot. This package only speaks the
// HTTP contract; it holds no playback state.
//
// Example usage:
//
//	import "github.com/jfmyers9/tgplay/pkg/tgapi"
//
//	client, err := tgapi.NewClient(tgapi.Config{
//	    BaseURL:  "http://localhost:8000",
//	    InitData: os.Getenv("TGPLAY_INIT_DATA"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tracks, err := client.Music().Search(ctx, "max korzh")
package tgapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL    string       // Required: backend base URL, e.g. http://localhost:8000
	InitData   string       // Optional: opaque identity blob from the host container
	HTTPClient *http.Client // Optional: HTTP client (defaults to http.DefaultClient)
	UserAgent  string       // Optional: User-Agent header (defaults to tgplay/1.0)
	Logger     Logger       // Optional: Logger interface for debug logging
}

// Logger is an optional interface for logging.
type Logger interface {
	// Debugf logs a debug message with format and arguments.
	Debugf(format string, args ...interface{})
}

// Client is the main entry point for backend operations.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     Logger

	mu       sync.RWMutex
	initData string

	retryBackoff time.Duration // zero means defaultBackoff

	music    *MusicService
	playlist *PlaylistService
	bot      *BotService
	auth     *AuthService
}

const defaultUserAgent = "tgplay/1.0"

// NewClient creates a new backend client.
//
// Returns an error if BaseURL is missing.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("tgapi: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		initData:   cfg.InitData,
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}

	c.music = &MusicService{client: c}
	c.playlist = &PlaylistService{client: c}
	c.bot = &BotService{client: c}
	c.auth = &AuthService{client: c}

	return c, nil
}

// Music returns the catalog service (search, resolve, proxy stream).
func (c *Client) Music() *MusicService {
	return c.music
}

// Playlist returns the personal playlist service.
func (c *Client) Playlist() *PlaylistService {
	return c.playlist
}

// Bot returns the companion bot service.
func (c *Client) Bot() *BotService {
	return c.bot
}

// Auth returns the authentication service.
func (c *Client) Auth() *AuthService {
	return c.auth
}

// LoggedIn reports whether the client carries an identity token.
// Without one, playlist and bot operations fail with ErrAuthRequired.
func (c *Client) LoggedIn() bool {
	return c.token() != ""
}

// SetInitData replaces the identity token.
func (c *Client) SetInitData(initData string) {
	c.mu.Lock()
	c.initData = initData
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initData
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// logDebugf logs a debug message if a logger is configured.
func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}
