package queue

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Preloader warms the URL cache for a track.
type Preloader interface {
	Preload(id string)
}

// Navigator holds the two candidate lists and the current track, and
// prefetches the neighbours whenever the current position moves.
type Navigator struct {
	mu        sync.Mutex
	search    []tgapi.Track
	playlist  []tgapi.Track
	currentID string

	// last position prefetched for, so unchanged positions are not re-warmed
	lastSource Source
	lastIndex  int

	preloader Preloader
	logger    zerolog.Logger
}

// NewNavigator creates a navigator. preloader may be nil.
func NewNavigator(preloader Preloader, logger zerolog.Logger) *Navigator {
	return &Navigator{
		preloader: preloader,
		lastIndex: -1,
		logger:    logger.With().Str("component", "queue").Logger(),
	}
}

// SetSearchResults replaces the search list. An empty list hands the queue
// back to the playlist.
func (n *Navigator) SetSearchResults(tracks []tgapi.Track) {
	n.mu.Lock()
	n.search = clone(tracks)
	ids := n.repositionLocked()
	n.mu.Unlock()

	n.preload(ids)
}

// SetPlaylist replaces the playlist list.
func (n *Navigator) SetPlaylist(tracks []tgapi.Track) {
	n.mu.Lock()
	n.playlist = clone(tracks)
	ids := n.repositionLocked()
	n.mu.Unlock()

	n.preload(ids)
}

// Queue returns the active queue and its source.
func (n *Navigator) Queue() ([]tgapi.Track, Source) {
	n.mu.Lock()
	defer n.mu.Unlock()

	q, src := Derive(n.search, n.playlist)
	return clone(q), src
}

// Current returns the id of the current track.
func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentID
}

// Locate marks id as the current track and returns its index in the active
// queue, or -1 if it is not part of it.
func (n *Navigator) Locate(id string) int {
	n.mu.Lock()
	n.currentID = id
	q, _ := Derive(n.search, n.playlist)
	idx := CurrentIndex(q, id)
	ids := n.repositionLocked()
	n.mu.Unlock()

	n.preload(ids)
	return idx
}

// At returns the track at index i of the active queue.
func (n *Navigator) At(i int) (tgapi.Track, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	q, _ := Derive(n.search, n.playlist)
	if i < 0 || i >= len(q) {
		return tgapi.Track{}, false
	}
	return q[i], true
}

// Next advances to the following track. ok is false when the queue is empty
// or the current track is not in it; the position is then left unchanged.
func (n *Navigator) Next() (tgapi.Track, bool) {
	return n.move(Next)
}

// Previous moves to the preceding track.
func (n *Navigator) Previous() (tgapi.Track, bool) {
	return n.move(Previous)
}

func (n *Navigator) move(step func([]tgapi.Track, string) (tgapi.Track, int, bool)) (tgapi.Track, bool) {
	n.mu.Lock()
	q, _ := Derive(n.search, n.playlist)
	t, _, ok := step(q, n.currentID)
	if !ok {
		n.mu.Unlock()
		return tgapi.Track{}, false
	}
	n.currentID = t.ID
	ids := n.repositionLocked()
	n.mu.Unlock()

	n.preload(ids)
	return t, true
}

// repositionLocked records the current position and returns the neighbour
// ids to prefetch if it moved.
func (n *Navigator) repositionLocked() []string {
	q, src := Derive(n.search, n.playlist)
	idx := CurrentIndex(q, n.currentID)
	if src == n.lastSource && idx == n.lastIndex {
		return nil
	}
	n.lastSource, n.lastIndex = src, idx
	if idx < 0 {
		return nil
	}

	next := q[NextIndex(len(q), idx)].ID
	prev := q[PrevIndex(len(q), idx)].ID

	var ids []string
	if next != n.currentID {
		ids = append(ids, next)
	}
	// In a two-track queue next and previous are the same track.
	if prev != next && prev != n.currentID {
		ids = append(ids, prev)
	}
	return ids
}

func (n *Navigator) preload(ids []string) {
	if n.preloader == nil || len(ids) == 0 {
		return
	}
	n.logger.Debug().Strs("track_ids", ids).Msg("Prefetching neighbours")
	for _, id := range ids {
		n.preloader.Preload(id)
	}
}

func clone(tracks []tgapi.Track) []tgapi.Track {
	if tracks == nil {
		return nil
	}
	out := make([]tgapi.Track, len(tracks))
	copy(out, tracks)
	return out
}
