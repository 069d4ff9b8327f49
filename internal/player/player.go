// Package player coordinates the playback session, the play queue, the
// playlist and the local library into one interactive music player.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/jfmyers9/tgplay/internal/playback"
	"github.com/jfmyers9/tgplay/internal/playlist"
	"github.com/jfmyers9/tgplay/internal/queue"
	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Catalog searches the backend. *tgapi.MusicService satisfies it.
type Catalog interface {
	Search(ctx context.Context, q string) ([]tgapi.Track, error)
}

// Resolver is the URL resolver as the player uses it. *resolver.Resolver
// satisfies it.
type Resolver interface {
	playback.Resolver
	queue.Preloader
	PreloadBatch(ids []string)
}

// Element is a media element that reports its events on a channel.
type Element interface {
	playback.Element
	Events() <-chan playback.Event
}

// Library records what was seen and played. *store.Store satisfies it.
type Library interface {
	SaveTracks(ctx context.Context, tracks []tgapi.Track) error
	RecordPlay(ctx context.Context, t tgapi.Track, at time.Time) (int64, error)
}

// Config holds player configuration
type Config struct {
	StateFile  string        // Path to snapshot file for the now command
	SeekUnlock time.Duration // See playback.Options
}

// Deps are the collaborators a Player drives. Playlist and Library may be nil.
type Deps struct {
	Catalog  Catalog
	Resolver Resolver
	Element  Element
	Playlist *playlist.Store
	Library  Library
}

// searchPreload is how many leading search results get their stream URL
// resolved ahead of time.
const searchPreload = 5

var ErrIndexOutOfRange = errors.New("player: index out of range")

// Player implements transport.Controls.
type Player struct {
	catalog  Catalog
	resolver Resolver
	el       Element
	playlist *playlist.Store
	library  Library

	session *playback.Session
	nav     *queue.Navigator
	state   *StateFile
	logger  zerolog.Logger

	// Track and Failed notices, handled outside the session lock.
	notices chan playback.Notice
	poke    chan struct{}

	// Only the latest Ended notice matters, so it is kept aside rather
	// than queued where a backlog could drop it.
	endMu    sync.Mutex
	endedAt  *playback.Notice
	endReady chan struct{}

	mu          sync.Mutex
	lastResults []tgapi.Track
}

// New creates a Player. Run must be called to process element events.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Player {
	p := &Player{
		catalog:  deps.Catalog,
		resolver: deps.Resolver,
		el:       deps.Element,
		playlist: deps.Playlist,
		library:  deps.Library,
		state:    NewStateFile(cfg.StateFile),
		logger:   logger.With().Str("component", "player").Logger(),
		notices:  make(chan playback.Notice, 32),
		poke:     make(chan struct{}, 1),
		endReady: make(chan struct{}, 1),
	}
	p.session = playback.NewSession(deps.Element, deps.Resolver, playback.Options{SeekUnlock: cfg.SeekUnlock}, logger)
	p.nav = queue.NewNavigator(deps.Resolver, logger)
	p.session.Subscribe(p)
	return p
}

// Session exposes the playback session so views can subscribe to it.
func (p *Player) Session() *playback.Session {
	return p.session
}

// State returns the current playback state.
func (p *Player) State() playback.State {
	return p.session.State()
}

// Queue returns the active play queue.
func (p *Player) Queue() ([]tgapi.Track, queue.Source) {
	return p.nav.Queue()
}

// Snapshot returns the latest persisted-style view of playback.
func (p *Player) Snapshot() Snapshot {
	return p.state.Get()
}

// OnPlayback runs under the session lock; it only records and forwards.
func (p *Player) OnPlayback(n playback.Notice) {
	p.state.Update(n.Kind, n.State)

	switch n.Kind {
	case playback.NoticeEnded:
		p.endMu.Lock()
		p.endedAt = &n
		p.endMu.Unlock()
		select {
		case p.endReady <- struct{}{}:
		default:
		}
	case playback.NoticeTrack, playback.NoticeFailed:
		select {
		case p.notices <- n:
		default:
			p.logger.Warn().Stringer("kind", n.Kind).Msg("Notice backlog full, dropping")
		}
	case playback.NoticePosition:
		return
	}

	select {
	case p.poke <- struct{}{}:
	default:
	}
}

// Run pumps element events into the session and reacts to track changes
// until ctx is done, then closes the session.
func (p *Player) Run(ctx context.Context) error {
	p.logger.Info().Msg("Starting player")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.pumpEvents(ctx)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.session.Close()
			p.session.Wait()
			wg.Wait()
			// Leave an idle snapshot behind even if nothing ever played.
			p.state.Update(playback.NoticeClosed, p.session.State())
			p.flush(true)
			p.logger.Info().Msg("Player stopped")
			return nil
		case n := <-p.notices:
			p.handleNotice(ctx, n)
		case <-p.endReady:
			if n, ok := p.takeEnded(); ok {
				p.handleNotice(ctx, n)
			}
		case <-p.poke:
			p.flush(false)
		case <-ticker.C:
			p.flush(false)
		}
	}
}

func (p *Player) takeEnded() (playback.Notice, bool) {
	p.endMu.Lock()
	defer p.endMu.Unlock()
	if p.endedAt == nil {
		return playback.Notice{}, false
	}
	n := *p.endedAt
	p.endedAt = nil
	return n, true
}

func (p *Player) pumpEvents(ctx context.Context) {
	events := p.el.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.session.HandleEvent(ev)
		}
	}
}

func (p *Player) flush(force bool) {
	if err := p.state.Flush(force); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to persist player state")
	}
}

func (p *Player) handleNotice(ctx context.Context, n playback.Notice) {
	switch n.Kind {
	case playback.NoticeTrack:
		t := n.State.Track
		if t == nil {
			return
		}
		p.nav.Locate(t.ID)
		if p.library != nil {
			if _, err := p.library.RecordPlay(ctx, *t, time.Now()); err != nil {
				p.logger.Warn().Err(err).Str("track_id", t.ID).Msg("Failed to record play")
			}
		}

	case playback.NoticeEnded:
		// A newer load already replaced the finished track.
		if p.session.State().Cycle != n.State.Cycle {
			return
		}
		next, ok := p.nav.Next()
		if !ok {
			p.logger.Debug().Msg("Queue exhausted")
			_ = p.session.Pause()
			return
		}
		p.logger.Info().Str("track_id", next.ID).Msg("Advancing to next track")
		p.session.LoadAndPlay(next)

	case playback.NoticeFailed:
		p.logger.Warn().Err(n.Err).Msg("Track failed")
	}
}

// Search queries the catalog, makes the results the active queue and warms
// the stream URLs of the first few.
func (p *Player) Search(ctx context.Context, q string) ([]tgapi.Track, error) {
	tracks, err := p.catalog.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	p.mu.Lock()
	p.lastResults = tracks
	p.mu.Unlock()

	p.nav.SetSearchResults(tracks)
	p.resolver.PreloadBatch(lo.Map(lo.Slice(tracks, 0, searchPreload), func(t tgapi.Track, _ int) string {
		return t.ID
	}))

	if p.library != nil {
		if err := p.library.SaveTracks(ctx, tracks); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to save search results")
		}
	}

	p.logger.Info().Str("query", q).Int("results", len(tracks)).Msg("Search complete")
	return tracks, nil
}

// ClearSearch hands the queue back to the playlist.
func (p *Player) ClearSearch() {
	p.mu.Lock()
	p.lastResults = nil
	p.mu.Unlock()
	p.nav.SetSearchResults(nil)
}

// SearchResults returns the results of the last search.
func (p *Player) SearchResults() []tgapi.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastResults
}

// LoadPlaylist fetches the playlist and feeds it to the queue.
func (p *Player) LoadPlaylist(ctx context.Context) ([]tgapi.Track, error) {
	if p.playlist == nil {
		return nil, nil
	}
	tracks, err := p.playlist.List(ctx)
	if err != nil {
		return nil, err
	}
	p.nav.SetPlaylist(tracks)
	return tracks, nil
}

// AddAndSend saves t and sends it to the bot, refreshing the queue's
// playlist when it changed.
func (p *Player) AddAndSend(ctx context.Context, t tgapi.Track) (playlist.Outcome, error) {
	if p.playlist == nil {
		return playlist.Outcome{}, tgapi.ErrAuthRequired
	}
	out, err := p.playlist.AddAndSend(ctx, t)
	if err != nil {
		return out, err
	}
	if out.Saved() {
		p.nav.SetPlaylist(out.Playlist)
	}
	return out, nil
}

// RemoveFromPlaylist deletes id and refreshes the queue.
func (p *Player) RemoveFromPlaylist(ctx context.Context, id string) (bool, error) {
	if p.playlist == nil {
		return false, tgapi.ErrAuthRequired
	}
	ok, err := p.playlist.Remove(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	if _, err := p.LoadPlaylist(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// PlayTrack starts t and makes it the queue position.
func (p *Player) PlayTrack(t tgapi.Track) {
	p.nav.Locate(t.ID)
	p.session.LoadAndPlay(t)
}

// PlayIndex starts the i-th track of the active queue.
func (p *Player) PlayIndex(i int) error {
	t, ok := p.nav.At(i)
	if !ok {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	p.PlayTrack(t)
	return nil
}

// Toggle flips between playing and paused.
func (p *Player) Toggle() error {
	return p.session.TogglePlayPause()
}

func (p *Player) Play() error {
	return p.session.Play()
}

func (p *Player) Pause() error {
	return p.session.Pause()
}

// Next plays the following queue track. It does nothing when the current
// track is not in the queue.
func (p *Player) Next() error {
	if t, ok := p.nav.Next(); ok {
		p.session.LoadAndPlay(t)
	}
	return nil
}

// Previous plays the preceding queue track.
func (p *Player) Previous() error {
	if t, ok := p.nav.Previous(); ok {
		p.session.LoadAndPlay(t)
	}
	return nil
}

func (p *Player) Seek(d time.Duration) error {
	p.session.Seek(d)
	return nil
}

// Close stops playback and hides the player.
func (p *Player) Close() {
	p.session.Close()
}
