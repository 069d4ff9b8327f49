package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/internal/playback"
)

// Controls is what inbound commands drive.
type Controls interface {
	Play() error
	Pause() error
	Next() error
	Previous() error
	Seek(d time.Duration) error
}

// Bridge publishes session notices to a Surface and forwards the
// surface's commands to Controls.
type Bridge struct {
	surface     Surface
	controls    Controls
	placeholder string
	logger      zerolog.Logger

	mu       sync.Mutex
	attached bool
	length   time.Duration // Length in the last published metadata
}

// NewBridge creates a detached bridge. placeholder is the artwork used for
// tracks without a cover.
func NewBridge(surface Surface, controls Controls, placeholder string, logger zerolog.Logger) *Bridge {
	return &Bridge{
		surface:     surface,
		controls:    controls,
		placeholder: placeholder,
		logger:      logger.With().Str("component", "transport").Logger(),
	}
}

// Attach registers inbound handlers. Calling it again is a no-op; hosts
// without the surface are skipped silently.
func (b *Bridge) Attach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return
	}
	if !b.surface.Available() {
		b.logger.Debug().Msg("Transport surface unavailable")
		return
	}

	for _, a := range Actions {
		if err := b.surface.SetHandler(a, b.handle); err != nil {
			b.logSetHandler(a, err)
		}
	}
	b.attached = true
}

// Detach unregisters handlers and clears the surface.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return
	}
	for _, a := range Actions {
		if err := b.surface.SetHandler(a, nil); err != nil {
			b.logSetHandler(a, err)
		}
	}
	if err := b.surface.Clear(); err != nil {
		b.logger.Debug().Err(err).Msg("Failed to clear surface")
	}
	b.attached = false
}

func (b *Bridge) logSetHandler(a Action, err error) {
	if errors.Is(err, ErrUnsupported) {
		b.logger.Debug().Stringer("action", a).Msg("Action not supported by host")
		return
	}
	b.logger.Warn().Err(err).Stringer("action", a).Msg("Failed to set action handler")
}

func (b *Bridge) handle(cmd Command) error {
	switch cmd.Action {
	case ActionPlay:
		return b.controls.Play()
	case ActionPause:
		return b.controls.Pause()
	case ActionNext:
		return b.controls.Next()
	case ActionPrevious:
		return b.controls.Previous()
	case ActionSeekTo:
		return b.controls.Seek(cmd.Position)
	default:
		return ErrUnsupported
	}
}

// OnPlayback implements playback.Listener.
func (b *Bridge) OnPlayback(n playback.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return
	}

	var err error
	switch n.Kind {
	case playback.NoticeTrack:
		if n.State.Track == nil {
			return
		}
		b.length = n.State.Duration
		err = b.surface.SetMetadata(b.metadata(n.State))

	case playback.NoticeIntent:
		// Intent, not buffering, drives the play/pause icon.
		err = b.surface.SetPlaybackState(n.State.IntendedPlaying)

	case playback.NoticePosition:
		if n.State.Duration <= 0 {
			return
		}
		// The element settled on a length the metadata does not carry yet.
		if n.State.Duration != b.length && n.State.Track != nil {
			b.length = n.State.Duration
			if err := b.surface.SetMetadata(b.metadata(n.State)); err != nil {
				b.logger.Debug().Err(err).Msg("Failed to republish metadata")
			}
		}
		pos := n.State.Position
		if pos > n.State.Duration {
			pos = n.State.Duration
		}
		err = b.surface.SetPosition(Position{Position: pos, Duration: n.State.Duration, Rate: 1})

	case playback.NoticeClosed:
		b.length = 0
		err = b.surface.Clear()
	}

	if err != nil {
		b.logger.Debug().Err(err).Stringer("notice", n.Kind).Msg("Surface update failed")
	}
}

func (b *Bridge) metadata(st playback.State) Metadata {
	t := st.Track
	art := t.ArtworkURL
	if art == "" {
		art = b.placeholder
	}
	return Metadata{
		TrackID:    t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		ArtworkURL: art,
		Length:     st.Duration,
	}
}
