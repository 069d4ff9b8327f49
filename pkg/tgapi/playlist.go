package tgapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

const playlistTimeout = 8 * time.Second

// PlaylistService manages the user's saved playlist. Every call requires an
// identity token.
type PlaylistService struct {
	client *Client
}

// List returns the saved playlist.
func (s *PlaylistService) List(ctx context.Context) ([]Track, error) {
	var body json.RawMessage
	err := s.client.call(ctx, request{
		op:      "playlist.list",
		method:  http.MethodGet,
		path:    "/api/playlist",
		auth:    true,
		timeout: playlistTimeout,
	}, &body)
	if err != nil {
		return nil, err
	}

	return decodeTrackList(body)
}

// Add saves t to the playlist. Adding a track that is already saved is not
// an error; the returned status says which case occurred.
func (s *PlaylistService) Add(ctx context.Context, t Track) (AddStatus, error) {
	entry := playlistEntry{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist,
		Duration: int(t.Duration / time.Second),
	}
	if t.ArtworkURL != "" {
		cover := t.ArtworkURL
		entry.CoverURL = &cover
	}

	var resp statusResponse
	err := s.client.call(ctx, request{
		op:      "playlist.add",
		method:  http.MethodPost,
		path:    "/api/playlist",
		body:    entry,
		auth:    true,
		timeout: playlistTimeout,
	}, &resp)
	if err != nil {
		return "", err
	}

	if AddStatus(resp.Status) == StatusAlreadyExists {
		return StatusAlreadyExists, nil
	}
	return StatusSaved, nil
}

// Remove deletes id from the playlist.
func (s *PlaylistService) Remove(ctx context.Context, id string) error {
	return s.client.call(ctx, request{
		op:      "playlist.remove",
		method:  http.MethodDelete,
		path:    "/api/playlist/" + url.PathEscape(id),
		auth:    true,
		timeout: playlistTimeout,
	}, nil)
}
