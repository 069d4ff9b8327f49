// Package resolver turns track ids into playable URLs and keeps recent
// answers in a bounded, time-limited cache.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Backend is the subset of the catalog API the resolver needs.
// *tgapi.MusicService satisfies it.
type Backend interface {
	ResolveWith(ctx context.Context, id string, timeout time.Duration, retries int) (tgapi.Resolved, error)
	DownloadURL(id string) string
}

// Config controls cache and request behaviour.
type Config struct {
	TTL                time.Duration // Entries older than this are treated as absent
	MaxEntries         int           // Oldest entry is evicted once full
	PreloadConcurrency int           // Parallel resolves for PreloadBatch
	Timeout            time.Duration // Per-attempt resolve timeout
	Retries            int           // Additional attempts after the first
}

// DefaultConfig returns the stock resolver settings.
func DefaultConfig() Config {
	return Config{
		TTL:                20 * time.Minute,
		MaxEntries:         256,
		PreloadConcurrency: 4,
		Timeout:            15 * time.Second,
		Retries:            2,
	}
}

// ResolutionError means the backend could not produce a playable URL.
// Callers are expected to fall back to FallbackURL.
type ResolutionError struct {
	TrackID string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.TrackID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type entry struct {
	url        string
	resolvedAt time.Time
}

// Resolver resolves and caches playable URLs. It is safe for concurrent use.
type Resolver struct {
	api    Backend
	cfg    Config
	logger zerolog.Logger

	cache  *lru.Cache[string, entry]
	flight singleflight.Group

	// now is swapped in tests
	now func() time.Time

	pending sync.WaitGroup
}

// New creates a resolver. Zero config fields fall back to DefaultConfig.
func New(api Backend, cfg Config, logger zerolog.Logger) *Resolver {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.PreloadConcurrency <= 0 {
		cfg.PreloadConcurrency = def.PreloadConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	// Only errors on a non-positive size, which is ruled out above.
	cache, _ := lru.New[string, entry](cfg.MaxEntries)

	return &Resolver{
		api:    api,
		cfg:    cfg,
		logger: logger.With().Str("component", "resolver").Logger(),
		cache:  cache,
		now:    time.Now,
	}
}

// Cached returns a fresh cached URL for id without any network I/O.
func (r *Resolver) Cached(id string) (string, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return "", false
	}
	return e.url, true
}

// lookup uses Peek so that reads do not refresh recency; eviction order is
// insertion order.
func (r *Resolver) lookup(id string) (entry, bool) {
	e, ok := r.cache.Peek(id)
	if !ok {
		return entry{}, false
	}
	if r.now().Sub(e.resolvedAt) >= r.cfg.TTL {
		r.cache.Remove(id)
		return entry{}, false
	}
	return e, true
}

// Resolve returns a playable URL for id, from cache when fresh. Concurrent
// calls for the same id share one backend request.
//
// Failures are reported as *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	if url, ok := r.Cached(id); ok {
		return url, nil
	}

	// The shared request must not die with whichever caller started it.
	ch := r.flight.DoChan(id, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), id)
	})

	select {
	case <-ctx.Done():
		return "", &ResolutionError{TrackID: id, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r *Resolver) fetch(ctx context.Context, id string) (string, error) {
	res, err := r.api.ResolveWith(ctx, id, r.cfg.Timeout, r.cfg.Retries)
	if err != nil {
		return "", &ResolutionError{TrackID: id, Err: err}
	}

	// The element only decodes MP3. The download endpoint transcodes HLS
	// playlists, so that is what gets cached for them.
	url := res.URL
	if res.HLS {
		url = r.api.DownloadURL(id)
	}

	r.cache.Add(id, entry{url: url, resolvedAt: r.now()})
	r.logger.Debug().
		Str("track_id", id).
		Bool("hls", res.HLS).
		Int("cached", r.cache.Len()).
		Msg("Resolved stream url")

	return url, nil
}

// Preload resolves id in the background. Errors are logged and dropped.
func (r *Resolver) Preload(id string) {
	if id == "" {
		return
	}
	if _, ok := r.lookup(id); ok {
		return
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.preloadOne(context.Background(), id)
	}()
}

// PreloadBatch resolves ids in the background with bounded parallelism.
func (r *Resolver) PreloadBatch(ids []string) {
	ids = lo.Filter(lo.Uniq(ids), func(id string, _ int) bool {
		if id == "" {
			return false
		}
		_, ok := r.lookup(id)
		return !ok
	})
	if len(ids) == 0 {
		return
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(r.cfg.PreloadConcurrency)
		for _, id := range ids {
			g.Go(func() error {
				r.preloadOne(ctx, id)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (r *Resolver) preloadOne(ctx context.Context, id string) {
	if _, err := r.Resolve(ctx, id); err != nil {
		r.logger.Debug().Err(err).Str("track_id", id).Msg("Preload failed")
	}
}

// Wait blocks until all background preloads have finished.
func (r *Resolver) Wait() {
	r.pending.Wait()
}

// FallbackURL returns the backend proxy stream URL for id.
func (r *Resolver) FallbackURL(id string) string {
	return r.api.DownloadURL(id)
}

// Len reports the number of cached entries, including expired ones not yet
// looked up.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
