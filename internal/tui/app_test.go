package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/jfmyers9/tgplay/internal/playback"
	"github.com/jfmyers9/tgplay/internal/playlist"
	"github.com/jfmyers9/tgplay/internal/queue"
	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

type fakeController struct {
	queue  []tgapi.Track
	source queue.Source
	state  playback.State
	calls  []string
}

func (f *fakeController) Search(context.Context, string) ([]tgapi.Track, error) {
	return f.queue, nil
}
func (f *fakeController) ClearSearch() { f.calls = append(f.calls, "clear") }
func (f *fakeController) LoadPlaylist(context.Context) ([]tgapi.Track, error) {
	return f.queue, nil
}
func (f *fakeController) Queue() ([]tgapi.Track, queue.Source) { return f.queue, f.source }
func (f *fakeController) State() playback.State                { return f.state }
func (f *fakeController) PlayIndex(i int) error {
	f.calls = append(f.calls, fmt.Sprintf("play %d", i))
	return nil
}
func (f *fakeController) Toggle() error   { f.calls = append(f.calls, "toggle"); return nil }
func (f *fakeController) Next() error     { f.calls = append(f.calls, "next"); return nil }
func (f *fakeController) Previous() error { f.calls = append(f.calls, "prev"); return nil }
func (f *fakeController) Seek(d time.Duration) error {
	f.calls = append(f.calls, "seek "+d.String())
	return nil
}
func (f *fakeController) Close() { f.calls = append(f.calls, "close") }
func (f *fakeController) AddAndSend(context.Context, tgapi.Track) (playlist.Outcome, error) {
	return playlist.Outcome{}, nil
}
func (f *fakeController) RemoveFromPlaylist(context.Context, string) (bool, error) {
	return true, nil
}

func tracks(ids ...string) []tgapi.Track {
	out := make([]tgapi.Track, len(ids))
	for i, id := range ids {
		out[i] = tgapi.Track{ID: id, Title: "Title " + id, Artist: "Artist", Duration: time.Minute}
	}
	return out
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestKeysRouteToController(t *testing.T) {
	cur := tracks("a")[0]
	ctrl := &fakeController{
		queue: tracks("a", "b"),
		state: playback.State{Track: &cur, Position: 30 * time.Second},
	}
	a := New(ctrl, DefaultConfig())

	for _, ev := range []*tcell.EventKey{
		key(' '),
		key('n'),
		key('p'),
		tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone),
		tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone),
		key('x'),
	} {
		if got := a.handleKeyEvent(ev); got != nil {
			t.Errorf("key %v was not consumed", ev.Name())
		}
	}

	want := []string{"toggle", "next", "prev", "seek 40s", "seek 20s", "close"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", ctrl.calls, want)
	}

	// Unbound keys fall through to the focused widget.
	if got := a.handleKeyEvent(key('z')); got == nil {
		t.Error("unbound key was swallowed")
	}
}

func TestSearchBoxReceivesRunes(t *testing.T) {
	ctrl := &fakeController{}
	a := New(ctrl, DefaultConfig())

	if got := a.handleKeyEvent(key('/')); got != nil {
		t.Fatal("'/' should be consumed")
	}
	if got := a.handleKeyEvent(key(' ')); got == nil {
		t.Error("space should reach the search box")
	}
	if len(ctrl.calls) != 0 {
		t.Errorf("controller called while typing: %v", ctrl.calls)
	}
}

func TestSeekWithoutTrackIsIgnored(t *testing.T) {
	ctrl := &fakeController{}
	a := New(ctrl, DefaultConfig())

	a.handleKeyEvent(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	if len(ctrl.calls) != 0 {
		t.Errorf("calls = %v, want none", ctrl.calls)
	}
}

func TestUpdateQueue(t *testing.T) {
	ctrl := &fakeController{}
	a := New(ctrl, DefaultConfig())

	cur := tracks("b")[0]
	a.updateQueue(tracks("a", "b", "c"), queue.SourceSearch, playback.State{Track: &cur})

	if n := a.list.GetItemCount(); n != 3 {
		t.Fatalf("items = %d, want 3", n)
	}
	if title := a.list.GetTitle(); title != " Search results " {
		t.Errorf("title = %q", title)
	}
	main, _ := a.list.GetItemText(1)
	if !strings.Contains(main, "▶") {
		t.Errorf("current track not marked: %q", main)
	}

	a.list.SetCurrentItem(2)
	a.updateQueue(tracks("a", "b", "c"), queue.SourceSearch, playback.State{})
	if got := a.list.GetCurrentItem(); got != 2 {
		t.Errorf("selection = %d after redraw, want 2", got)
	}

	a.updateQueue(tracks("x"), queue.SourcePlaylist, playback.State{})
	if title := a.list.GetTitle(); title != " Playlist " {
		t.Errorf("title = %q", title)
	}
	if n := a.list.GetItemCount(); n != 1 {
		t.Errorf("items = %d, want 1", n)
	}
}

func TestFormatRow(t *testing.T) {
	tr := tgapi.Track{ID: "1", Title: "A very long title that will not fit", Artist: "Artist", Duration: 95 * time.Second}

	row := formatRow(tr, false, 30)
	if w := runewidth.StringWidth(row); w != 30 {
		t.Errorf("row width = %d, want 30: %q", w, row)
	}
	if !strings.HasSuffix(row, " 01:35") {
		t.Errorf("row = %q, want duration suffix", row)
	}
	if !strings.Contains(row, "…") {
		t.Errorf("row = %q, want truncation", row)
	}

	row = formatRow(tgapi.Track{ID: "2", Title: "[red]", Artist: "x"}, true, 30)
	if !strings.HasPrefix(row, "[green]▶ ") {
		t.Errorf("current row = %q", row)
	}
	if !strings.Contains(row, "[red[]") {
		t.Errorf("style tags in titles must be escaped: %q", row)
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		name  string
		state playback.State
		want  string
	}{
		{"playing", playback.State{IntendedPlaying: true, Status: playback.Playing}, "▶"},
		{"buffering keeps intent", playback.State{IntendedPlaying: true, Buffering: true}, "buffering"},
		{"paused", playback.State{Status: playback.Paused}, "⏸"},
		{"error", playback.State{Status: playback.Error}, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusIcon(tt.state); !strings.Contains(got, tt.want) {
				t.Errorf("statusIcon() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestDescribeError(t *testing.T) {
	if got := describeError(fmt.Errorf("list: %w", tgapi.ErrAuthRequired)); !strings.Contains(got, "init_data") {
		t.Errorf("auth error = %q", got)
	}
	if got := describeError(errors.New("boom")); got != "boom" {
		t.Errorf("plain error = %q", got)
	}
}

func TestBuildProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		position time.Duration
		duration time.Duration
		filled   int
	}{
		{"start", 0, time.Minute, 0},
		{"half", 30 * time.Second, time.Minute, 5},
		{"past end is clamped", 2 * time.Minute, time.Minute, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := buildProgressBar(tt.position, tt.duration, 10)
			if got := strings.Count(bar, "█"); got != tt.filled {
				t.Errorf("filled = %d, want %d", got, tt.filled)
			}
			if got := strings.Count(bar, "░"); got != 10-tt.filled {
				t.Errorf("empty = %d, want %d", got, 10-tt.filled)
			}
		})
	}

	if bar := buildProgressBar(time.Second, 0, 4); bar != "----" {
		t.Errorf("unknown duration bar = %q", bar)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{65 * time.Second, "01:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
