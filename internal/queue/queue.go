// Package queue derives the play queue from the active track list and
// computes circular next/previous positions within it.
package queue

import (
	"github.com/samber/lo"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Source says which list currently drives the queue.
type Source int

const (
	SourceNone Source = iota
	SourceSearch
	SourcePlaylist
)

func (s Source) String() string {
	switch s {
	case SourceSearch:
		return "search"
	case SourcePlaylist:
		return "playlist"
	default:
		return "none"
	}
}

// Derive picks the queue: search results when there are any, the playlist
// otherwise. The two lists are never merged.
func Derive(search, playlist []tgapi.Track) ([]tgapi.Track, Source) {
	switch {
	case len(search) > 0:
		return search, SourceSearch
	case len(playlist) > 0:
		return playlist, SourcePlaylist
	default:
		return nil, SourceNone
	}
}

// CurrentIndex returns the position of the track with id in q, or -1.
func CurrentIndex(q []tgapi.Track, id string) int {
	if id == "" {
		return -1
	}
	_, idx, ok := lo.FindIndexOf(q, func(t tgapi.Track) bool {
		return t.ID == id
	})
	if !ok {
		return -1
	}
	return idx
}

// NextIndex is (i+1) mod n. It returns -1 for an empty queue or an
// out-of-range index.
func NextIndex(n, i int) int {
	if n <= 0 || i < 0 || i >= n {
		return -1
	}
	return (i + 1) % n
}

// PrevIndex is (i-1+n) mod n. It returns -1 for an empty queue or an
// out-of-range index.
func PrevIndex(n, i int) int {
	if n <= 0 || i < 0 || i >= n {
		return -1
	}
	return (i - 1 + n) % n
}

// Next returns the track after id, wrapping at the end. ok is false when q
// is empty or id is not in it.
func Next(q []tgapi.Track, id string) (t tgapi.Track, idx int, ok bool) {
	return step(q, id, NextIndex)
}

// Previous returns the track before id, wrapping at the start.
func Previous(q []tgapi.Track, id string) (t tgapi.Track, idx int, ok bool) {
	return step(q, id, PrevIndex)
}

func step(q []tgapi.Track, id string, move func(n, i int) int) (tgapi.Track, int, bool) {
	idx := move(len(q), CurrentIndex(q, id))
	if idx < 0 {
		return tgapi.Track{}, -1, false
	}
	return q[idx], idx, true
}
