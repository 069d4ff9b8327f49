package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Resolver supplies playable URLs. *resolver.Resolver satisfies it.
type Resolver interface {
	Cached(id string) (string, bool)
	Resolve(ctx context.Context, id string) (string, error)
	FallbackURL(id string) string
}

// Options tunes a Session.
type Options struct {
	// SeekUnlock bounds how long position updates stay suppressed after a
	// seek when the element never confirms it.
	SeekUnlock time.Duration
}

const (
	defaultSeekUnlock = 500 * time.Millisecond

	// A first duration report must exceed this to be trusted.
	durationFloor = 10 * time.Second
	// Later reports must stay within this relative distance of the estimate.
	durationTolerance = 0.3
)

// Session is the only writer of playback State and the only user of the
// media element. All mutations are serialized by one mutex; each load gets
// a new cycle and work belonging to an older cycle is discarded.
type Session struct {
	el     Element
	res    Resolver
	logger zerolog.Logger

	seekUnlock time.Duration

	mu         sync.Mutex
	state      State
	userPaused bool
	seeking    bool
	seekSeq    uint64
	seekTimer  *time.Timer
	cancelLoad context.CancelFunc

	listeners []listenerEntry
	nextID    int

	pending sync.WaitGroup
}

type listenerEntry struct {
	id int
	l  Listener
}

// NewSession creates an idle session around el.
func NewSession(el Element, res Resolver, opts Options, logger zerolog.Logger) *Session {
	if opts.SeekUnlock <= 0 {
		opts.SeekUnlock = defaultSeekUnlock
	}
	return &Session{
		el:         el,
		res:        res,
		seekUnlock: opts.SeekUnlock,
		logger:     logger.With().Str("component", "playback").Logger(),
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, l: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LoadAndPlay starts a new load cycle for t. Playing intent is published
// before any audio data exists. The source comes from the resolver cache
// when possible, otherwise from an asynchronous resolve, and from the proxy
// URL if resolving fails.
func (s *Session) LoadAndPlay(t tgapi.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(t)
}

func (s *Session) loadLocked(t tgapi.Track) {
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.stopSeekLocked()

	hadSource := s.state.SourceURL != ""
	cycle := s.state.Cycle + 1
	track := t

	var duration time.Duration
	if t.Duration > 0 {
		duration = t.Duration
	}

	s.userPaused = false
	s.state = State{
		Status:          Loading,
		Track:           &track,
		IntendedPlaying: true,
		Buffering:       true,
		Duration:        duration,
		PanelOpen:       true,
		Cycle:           cycle,
	}

	s.logger.Info().
		Str("track_id", t.ID).
		Str("artist", t.Artist).
		Str("title", t.Title).
		Uint64("cycle", cycle).
		Msg("Loading track")

	s.emitLocked(NoticeTrack, nil)
	s.emitLocked(NoticeIntent, nil)
	s.emitLocked(NoticeStatus, nil)

	if url, ok := s.res.Cached(t.ID); ok {
		s.logger.Debug().Str("track_id", t.ID).Msg("Using cached stream url")
		s.assignLocked(cycle, url)
		return
	}

	// Stop the previous track while the new one resolves.
	if hadSource {
		s.el.Unload()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelLoad = cancel

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		url, err := s.res.Resolve(ctx, t.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			url = s.res.FallbackURL(t.ID)
			s.logger.Warn().
				Err(err).
				Str("track_id", t.ID).
				Str("fallback", url).
				Msg("Resolve failed, streaming through backend proxy")
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state.Cycle != cycle {
			s.logger.Debug().Str("track_id", t.ID).Msg("Dropping stale resolve result")
			return
		}
		s.assignLocked(cycle, url)
	}()
}

// assignLocked hands url to the element and requests playback if the user
// still wants it. A rejected play here is retried once the element can play.
func (s *Session) assignLocked(cycle uint64, url string) {
	s.state.SourceURL = url
	s.el.Load(cycle, url)

	if !s.state.IntendedPlaying {
		return
	}
	if err := s.el.Play(); err != nil {
		s.logger.Debug().Err(err).Msg("Play deferred until element can play")
	}
}

// TogglePlayPause flips the user's intent. Resuming that the element
// rejects reverts the intent and returns the error.
func (s *Session) TogglePlayPause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Track == nil {
		return ErrNoTrack
	}
	if s.state.IntendedPlaying {
		s.pauseLocked()
		return nil
	}
	return s.resumeLocked()
}

// Play resumes if the user has paused. It is a no-op while already playing.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Track == nil {
		return ErrNoTrack
	}
	if s.state.IntendedPlaying {
		return nil
	}
	return s.resumeLocked()
}

// Pause pauses if playing. It is a no-op while already paused.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Track == nil {
		return ErrNoTrack
	}
	if s.state.IntendedPlaying {
		s.pauseLocked()
	}
	return nil
}

func (s *Session) pauseLocked() {
	s.userPaused = true
	s.state.IntendedPlaying = false
	s.el.Pause()
	s.emitLocked(NoticeIntent, nil)
	s.setStatusLocked(Paused)
}

func (s *Session) resumeLocked() error {
	// A failed track only recovers through a fresh load.
	if s.state.Status == Error {
		s.loadLocked(*s.state.Track)
		return nil
	}

	s.userPaused = false
	s.state.IntendedPlaying = true
	s.emitLocked(NoticeIntent, nil)

	if s.state.SourceURL == "" {
		// Still resolving; assignLocked will start playback.
		return nil
	}

	if err := s.el.Play(); err != nil {
		s.state.IntendedPlaying = false
		s.emitLocked(NoticeIntent, nil)
		return fmt.Errorf("resume playback: %w", err)
	}

	if s.state.Buffering {
		s.setStatusLocked(Buffering)
	} else {
		s.setStatusLocked(Playing)
	}
	return nil
}

// Seek jumps to d. Position updates from the element are ignored until it
// confirms the seek or the unlock timeout fires.
func (s *Session) Seek(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Track == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	if s.state.Duration > 0 && d > s.state.Duration {
		d = s.state.Duration
	}

	s.stopSeekLocked()
	s.seeking = true
	s.seekSeq++
	seq := s.seekSeq

	s.state.Position = d
	s.emitLocked(NoticePosition, nil)
	s.el.Seek(d)

	s.seekTimer = time.AfterFunc(s.seekUnlock, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.seekSeq == seq {
			s.seeking = false
		}
	})
}

func (s *Session) stopSeekLocked() {
	if s.seekTimer != nil {
		s.seekTimer.Stop()
		s.seekTimer = nil
	}
	s.seeking = false
}

// Close tears everything down and returns to Idle. Safe from any state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.stopSeekLocked()

	s.el.Pause()
	s.el.Unload()

	s.userPaused = false
	s.state = State{Status: Idle, Cycle: s.state.Cycle + 1}

	s.logger.Debug().Msg("Session closed")
	s.emitLocked(NoticeClosed, nil)
}

// SetPanelOpen shows or hides the full player. It has no effect on playback.
func (s *Session) SetPanelOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PanelOpen = open && s.state.Track != nil
}

// HandleEvent applies a media element event. Events from an older cycle
// are dropped.
func (s *Session) HandleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Cycle != s.state.Cycle || s.state.Track == nil {
		return
	}

	switch ev.Kind {
	case EventWaiting:
		s.state.Buffering = true
		if s.state.Status == Playing {
			s.state.Status = Buffering
		}
		s.emitLocked(NoticeStatus, nil)

	case EventCanPlay:
		s.onCanPlayLocked()

	case EventPlaying:
		s.state.Buffering = false
		// Queued from before a user pause; the element is told again.
		if s.userPaused {
			s.el.Pause()
			s.emitLocked(NoticeStatus, nil)
			return
		}
		if !s.state.IntendedPlaying {
			s.state.IntendedPlaying = true
			s.emitLocked(NoticeIntent, nil)
		}
		s.setStatusLocked(Playing)

	case EventPause:
		// Source swaps and seeks pause the element too; only an explicit
		// user pause may flip the indicator.
		if s.state.Buffering || !s.userPaused {
			return
		}
		if s.state.IntendedPlaying {
			s.state.IntendedPlaying = false
			s.emitLocked(NoticeIntent, nil)
		}
		s.setStatusLocked(Paused)

	case EventTimeUpdate:
		if s.state.Buffering || s.seeking {
			return
		}
		if ev.Position != s.state.Position {
			s.state.Position = ev.Position
			s.emitLocked(NoticePosition, nil)
		}

	case EventDurationChange:
		if d, ok := reconcileDuration(s.state.Duration, ev.Duration); ok && d != s.state.Duration {
			s.state.Duration = d
			s.emitLocked(NoticePosition, nil)
		}

	case EventSeeked:
		s.stopSeekLocked()

	case EventEnded:
		s.state.Position = s.state.Duration
		s.emitLocked(NoticeEnded, nil)

	case EventError:
		s.onErrorLocked(ev)
	}
}

func (s *Session) onCanPlayLocked() {
	if s.userPaused {
		return
	}

	s.state.Buffering = false
	if !s.state.IntendedPlaying {
		s.emitLocked(NoticeStatus, nil)
		return
	}

	if err := s.el.Play(); err != nil {
		s.logger.Warn().Err(err).Msg("Element refused to play")
		s.state.IntendedPlaying = false
		s.emitLocked(NoticeIntent, nil)
		s.setStatusLocked(Paused)
		return
	}
	s.setStatusLocked(Playing)
}

func (s *Session) onErrorLocked(ev Event) {
	mediaErr := &MediaError{Code: ev.Code, Err: ev.Err}

	// Replacing the source mid-load aborts the old one.
	if errors.Is(mediaErr, ErrAborted) && (s.state.Buffering || s.state.Status == Loading) {
		s.logger.Debug().Msg("Ignoring aborted load")
		return
	}

	trackID := s.state.Track.ID
	s.logger.Error().Err(mediaErr).Str("track_id", trackID).Msg("Playback failed")

	s.state.Buffering = false
	if s.state.IntendedPlaying {
		s.state.IntendedPlaying = false
		s.emitLocked(NoticeIntent, nil)
	}
	s.setStatusLocked(Error)
	s.emitLocked(NoticeFailed, &PlaybackError{TrackID: trackID, Err: mediaErr})
}

func (s *Session) setStatusLocked(st Status) {
	if s.state.Status == st {
		return
	}
	s.state.Status = st
	s.emitLocked(NoticeStatus, nil)
}

// reconcileDuration decides whether a reported duration replaces the
// current estimate.
func reconcileDuration(current, reported time.Duration) (time.Duration, bool) {
	if reported <= 0 || reported == time.Duration(math.MaxInt64) {
		return current, false
	}
	if current <= 0 {
		if reported > durationFloor {
			return reported, true
		}
		return current, false
	}

	diff := math.Abs(float64(reported-current)) / float64(current)
	if diff < durationTolerance {
		return reported, true
	}
	return current, false
}

func (s *Session) snapshotLocked() State {
	st := s.state
	if st.Track != nil {
		t := *st.Track
		st.Track = &t
	}
	return st
}

func (s *Session) emitLocked(kind NoticeKind, err error) {
	if len(s.listeners) == 0 {
		return
	}
	n := Notice{Kind: kind, State: s.snapshotLocked(), Err: err}
	for _, e := range s.listeners {
		e.l.OnPlayback(n)
	}
}

// Wait blocks until in-flight resolves have finished.
func (s *Session) Wait() {
	s.pending.Wait()
}
