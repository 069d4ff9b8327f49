// Package playlist manages the user's saved playlist and the hand-off of
// tracks to the companion bot. Backend failures become plain outcomes; the
// only error callers see is tgapi.ErrAuthRequired.
package playlist

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// API is the remote playlist. *tgapi.PlaylistService satisfies it.
type API interface {
	List(ctx context.Context) ([]tgapi.Track, error)
	Add(ctx context.Context, t tgapi.Track) (tgapi.AddStatus, error)
	Remove(ctx context.Context, id string) error
}

// Bot delivers tracks to the user's chat. *tgapi.BotService satisfies it.
type Bot interface {
	Send(ctx context.Context, id string) error
}

// Mirror is a local copy of the playlist served when the backend is
// unreachable. *store.Store satisfies it.
type Mirror interface {
	Playlist(ctx context.Context) ([]tgapi.Track, error)
	ReplacePlaylist(ctx context.Context, tracks []tgapi.Track) error
	AddToPlaylist(ctx context.Context, t tgapi.Track) error
	RemoveFromPlaylist(ctx context.Context, id string) error
}

// Failed is the add status reported when the backend did not save.
const Failed tgapi.AddStatus = "failed"

// Store is the playlist as the player sees it.
type Store struct {
	api    API
	bot    Bot
	mirror Mirror
	logger zerolog.Logger
}

// New creates a Store. mirror may be nil.
func New(api API, bot Bot, mirror Mirror, logger zerolog.Logger) *Store {
	return &Store{
		api:    api,
		bot:    bot,
		mirror: mirror,
		logger: logger.With().Str("component", "playlist").Logger(),
	}
}

// List returns the saved playlist, falling back to the local mirror when
// the backend cannot be reached.
func (s *Store) List(ctx context.Context) ([]tgapi.Track, error) {
	tracks, err := s.api.List(ctx)
	if errors.Is(err, tgapi.ErrAuthRequired) {
		return nil, err
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to fetch playlist, using local copy")
		return s.local(ctx), nil
	}

	if s.mirror != nil {
		if err := s.mirror.ReplacePlaylist(ctx, tracks); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to update local playlist")
		}
	}
	return tracks, nil
}

func (s *Store) local(ctx context.Context) []tgapi.Track {
	if s.mirror == nil {
		return nil
	}
	tracks, err := s.mirror.Playlist(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read local playlist")
		return nil
	}
	return tracks
}

// Add saves t. A backend failure is reported as Failed, not an error.
func (s *Store) Add(ctx context.Context, t tgapi.Track) (tgapi.AddStatus, error) {
	status, err := s.api.Add(ctx, t)
	if errors.Is(err, tgapi.ErrAuthRequired) {
		return "", err
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("track_id", t.ID).Msg("Failed to add to playlist")
		return Failed, nil
	}

	s.logger.Info().Str("track_id", t.ID).Str("status", string(status)).Msg("Added to playlist")
	if s.mirror != nil {
		if err := s.mirror.AddToPlaylist(ctx, t); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to update local playlist")
		}
	}
	return status, nil
}

// Remove deletes id and reports whether the backend accepted it.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	err := s.api.Remove(ctx, id)
	if errors.Is(err, tgapi.ErrAuthRequired) {
		return false, err
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("track_id", id).Msg("Failed to remove from playlist")
		return false, nil
	}

	if s.mirror != nil {
		if err := s.mirror.RemoveFromPlaylist(ctx, id); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to update local playlist")
		}
	}
	return true, nil
}

// Send asks the bot to deliver id and reports whether it accepted.
func (s *Store) Send(ctx context.Context, id string) (bool, error) {
	err := s.bot.Send(ctx, id)
	if errors.Is(err, tgapi.ErrAuthRequired) {
		return false, err
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("track_id", id).Msg("Failed to send to bot")
		return false, nil
	}
	s.logger.Info().Str("track_id", id).Msg("Sent to bot")
	return true, nil
}

// Outcome is the combined result of AddAndSend.
type Outcome struct {
	Added tgapi.AddStatus
	Sent  bool
	// Playlist is the refreshed playlist after a successful save.
	Playlist []tgapi.Track
}

// Saved reports whether the track is in the playlist afterwards.
func (o Outcome) Saved() bool {
	return o.Added == tgapi.StatusSaved || o.Added == tgapi.StatusAlreadyExists
}

// Message is a one-line summary for the user.
func (o Outcome) Message() string {
	switch {
	case o.Added == tgapi.StatusAlreadyExists && o.Sent:
		return "Already in playlist, sent to chat"
	case o.Added == tgapi.StatusAlreadyExists:
		return "Already in playlist, sending failed"
	case o.Added == tgapi.StatusSaved && o.Sent:
		return "Saved to playlist and sent to chat"
	case o.Added == tgapi.StatusSaved:
		return "Saved to playlist, sending failed"
	case o.Sent:
		return "Sent to chat, saving failed"
	default:
		return "Could not save or send"
	}
}

// AddAndSend saves t and sends it to the bot concurrently, then refreshes
// the playlist if the save went through.
func (s *Store) AddAndSend(ctx context.Context, t tgapi.Track) (Outcome, error) {
	var out Outcome
	var g errgroup.Group

	g.Go(func() error {
		status, err := s.Add(ctx, t)
		out.Added = status
		return err
	})
	g.Go(func() error {
		sent, err := s.Send(ctx, t.ID)
		out.Sent = sent
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	if out.Saved() {
		tracks, err := s.List(ctx)
		if err != nil {
			return out, err
		}
		out.Playlist = tracks
	}
	return out, nil
}
