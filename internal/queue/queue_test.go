package queue

import (
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

func tracks(ids ...string) []tgapi.Track {
	out := make([]tgapi.Track, len(ids))
	for i, id := range ids {
		out[i] = tgapi.Track{ID: id, Title: "T" + id}
	}
	return out
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		search   []tgapi.Track
		playlist []tgapi.Track
		wantIDs  []string
		wantSrc  Source
	}{
		{name: "search wins", search: tracks("s1"), playlist: tracks("p1", "p2"), wantIDs: []string{"s1"}, wantSrc: SourceSearch},
		{name: "playlist when no search", playlist: tracks("p1"), wantIDs: []string{"p1"}, wantSrc: SourcePlaylist},
		{name: "empty", wantSrc: SourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, src := Derive(tt.search, tt.playlist)
			if src != tt.wantSrc {
				t.Errorf("source = %v, want %v", src, tt.wantSrc)
			}
			var ids []string
			for _, tr := range q {
				ids = append(ids, tr.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestWraparound(t *testing.T) {
	for n := 1; n <= 5; n++ {
		for i := 0; i < n; i++ {
			if got, want := NextIndex(n, i), (i+1)%n; got != want {
				t.Errorf("NextIndex(%d, %d) = %d, want %d", n, i, got, want)
			}
			if got, want := PrevIndex(n, i), (i-1+n)%n; got != want {
				t.Errorf("PrevIndex(%d, %d) = %d, want %d", n, i, got, want)
			}
		}
	}

	if NextIndex(1, 0) != PrevIndex(1, 0) {
		t.Error("single-element queue: next and previous must coincide")
	}
	if NextIndex(0, 0) != -1 || PrevIndex(3, -1) != -1 {
		t.Error("expected -1 for empty queue or missing index")
	}
}

func TestNextPrevious(t *testing.T) {
	q := tracks("a", "b", "c")

	tests := []struct {
		name     string
		queue    []tgapi.Track
		current  string
		wantNext string
		wantPrev string
		wantOK   bool
	}{
		{name: "middle", queue: q, current: "b", wantNext: "c", wantPrev: "a", wantOK: true},
		{name: "wrap end", queue: q, current: "c", wantNext: "a", wantPrev: "b", wantOK: true},
		{name: "wrap start", queue: q, current: "a", wantNext: "b", wantPrev: "c", wantOK: true},
		{name: "not found", queue: q, current: "zz"},
		{name: "empty queue", current: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _, ok := Next(tt.queue, tt.current)
			if ok != tt.wantOK || next.ID != tt.wantNext {
				t.Errorf("Next() = %q, %v; want %q, %v", next.ID, ok, tt.wantNext, tt.wantOK)
			}
			prev, _, ok := Previous(tt.queue, tt.current)
			if ok != tt.wantOK || prev.ID != tt.wantPrev {
				t.Errorf("Previous() = %q, %v; want %q, %v", prev.ID, ok, tt.wantPrev, tt.wantOK)
			}
		})
	}
}

type recordingPreloader struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingPreloader) Preload(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingPreloader) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.ids
	r.ids = nil
	return ids
}

func TestNavigator_PrefetchesNeighbours(t *testing.T) {
	pre := &recordingPreloader{}
	nav := NewNavigator(pre, zerolog.Nop())
	nav.SetSearchResults(tracks("a", "b", "c", "d"))
	pre.take()

	if idx := nav.Locate("b"); idx != 1 {
		t.Fatalf("Locate() = %d, want 1", idx)
	}
	if got := pre.take(); !reflect.DeepEqual(got, []string{"c", "a"}) {
		t.Errorf("prefetched %v, want [c a]", got)
	}

	// Same position again: nothing to do.
	nav.Locate("b")
	if got := pre.take(); len(got) != 0 {
		t.Errorf("unexpected prefetch %v", got)
	}

	next, ok := nav.Next()
	if !ok || next.ID != "c" {
		t.Fatalf("Next() = %q, %v", next.ID, ok)
	}
	if got := pre.take(); !reflect.DeepEqual(got, []string{"d", "b"}) {
		t.Errorf("prefetched %v, want [d b]", got)
	}
}

func TestNavigator_TwoTrackQueueSkipsDuplicate(t *testing.T) {
	pre := &recordingPreloader{}
	nav := NewNavigator(pre, zerolog.Nop())
	nav.SetPlaylist(tracks("a", "b"))
	nav.Locate("a")

	if got := pre.take(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("prefetched %v, want [b]", got)
	}
}

func TestNavigator_NoOpWhenNotFound(t *testing.T) {
	nav := NewNavigator(nil, zerolog.Nop())
	nav.SetSearchResults(tracks("a", "b"))

	if idx := nav.Locate("x"); idx != -1 {
		t.Errorf("Locate() = %d, want -1", idx)
	}
	if _, ok := nav.Next(); ok {
		t.Error("Next() should be a no-op when current track is absent")
	}
	if nav.Current() != "x" {
		t.Errorf("Current() = %q, want unchanged", nav.Current())
	}
}

func TestNavigator_SearchOverridesPlaylist(t *testing.T) {
	nav := NewNavigator(nil, zerolog.Nop())
	nav.SetPlaylist(tracks("p1", "p2"))
	nav.Locate("p1")

	nav.SetSearchResults(tracks("s1", "s2"))
	if _, src := nav.Queue(); src != SourceSearch {
		t.Errorf("source = %v, want search", src)
	}
	// The playing playlist track is not in the search queue.
	if _, ok := nav.Next(); ok {
		t.Error("Next() should not cross into a different list")
	}

	nav.SetSearchResults(nil)
	next, ok := nav.Next()
	if !ok || next.ID != "p2" {
		t.Errorf("Next() = %q, %v; want p2", next.ID, ok)
	}
}
