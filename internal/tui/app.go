package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"

	"github.com/jfmyers9/tgplay/internal/playback"
	"github.com/jfmyers9/tgplay/internal/playlist"
	"github.com/jfmyers9/tgplay/internal/queue"
	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to refresh the display
	SeekStep    time.Duration // Arrow-key seek distance
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 250 * time.Millisecond,
		SeekStep:    10 * time.Second,
	}
}

// Controller is the player as seen from the UI. *player.Player satisfies it.
type Controller interface {
	Search(ctx context.Context, q string) ([]tgapi.Track, error)
	ClearSearch()
	LoadPlaylist(ctx context.Context) ([]tgapi.Track, error)
	Queue() ([]tgapi.Track, queue.Source)
	State() playback.State
	PlayIndex(i int) error
	Toggle() error
	Next() error
	Previous() error
	Seek(d time.Duration) error
	Close()
	AddAndSend(ctx context.Context, t tgapi.Track) (playlist.Outcome, error)
	RemoveFromPlaylist(ctx context.Context, id string) (bool, error)
}

const (
	searchTimeout   = 15 * time.Second
	playlistTimeout = 10 * time.Second
	sendTimeout     = 70 * time.Second
)

// App is the interactive player UI
type App struct {
	app        *tview.Application
	search     *tview.InputField
	list       *tview.List
	nowPlaying *tview.TextView
	progress   *tview.TextView
	status     *tview.TextView

	config Config
	ctrl   Controller

	// Guards everything below; the refresh ticker and background actions
	// both touch it.
	mu sync.Mutex

	message   string
	messageAt time.Time

	// Last-rendered content for change detection
	lastQueue      []string
	lastNowPlaying string
	lastProgress   string
	lastStatus     string

	// Cached progress bar width to stabilize change detection.
	// Updated only when GetInnerRect returns a positive value.
	lastBarWidth int

	cancelFunc context.CancelFunc
}

// New creates a new TUI application driving ctrl
func New(ctrl Controller, cfg Config) *App {
	a := &App{
		app:    tview.NewApplication(),
		config: cfg,
		ctrl:   ctrl,
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.search = tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	a.search.SetDoneFunc(a.handleSearchDone)

	a.list = tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)
	a.list.SetBorder(true).
		SetTitle(" Queue ").
		SetTitleAlign(tview.AlignLeft)
	a.list.SetSelectedFunc(func(i int, _, _ string, _ rune) {
		if err := a.ctrl.PlayIndex(i); err != nil {
			a.setMessage(err.Error())
		}
	})

	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	// Top: search box
	// Middle: queue | now playing
	// Then progress bar and the status line
	middle := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.list, 0, 3, true).
		AddItem(a.nowPlaying, 0, 2, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.search, 1, 0, false).
		AddItem(middle, 0, 1, true).
		AddItem(a.progress, 3, 0, false).
		AddItem(a.status, 1, 0, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true).SetFocus(a.list)
}

const helpText = "[gray]/:search  enter:play  space:play/pause  n/p:next/prev  ←/→:seek  a:save+send  d:remove  l:playlist  x:close  q:quit[-]"

func (a *App) handleSearchDone(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		q := strings.TrimSpace(a.search.GetText())
		a.app.SetFocus(a.list)
		if q == "" {
			a.ctrl.ClearSearch()
			a.setMessage("Showing playlist")
			return
		}
		a.setMessage("Searching…")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
			defer cancel()
			tracks, err := a.ctrl.Search(ctx, q)
			if err != nil {
				a.setMessage(describeError(err))
				return
			}
			a.setMessage(fmt.Sprintf("%d results", len(tracks)))
			a.app.QueueUpdateDraw(func() { a.list.SetCurrentItem(0) })
		}()
	case tcell.KeyEscape:
		a.app.SetFocus(a.list)
	}
}

// handleKeyEvent processes keyboard input. Keys go to the search box
// untouched while it has focus.
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	if a.app.GetFocus() == a.search {
		return event
	}

	switch event.Key() {
	case tcell.KeyLeft:
		a.seekBy(-a.config.SeekStep)
		return nil
	case tcell.KeyRight:
		a.seekBy(a.config.SeekStep)
		return nil
	}

	switch event.Rune() {
	case 'q', 'Q':
		a.app.Stop()
		return nil
	case '/':
		a.app.SetFocus(a.search)
		return nil
	case ' ':
		if err := a.ctrl.Toggle(); err != nil {
			a.setMessage(describeError(err))
		}
		return nil
	case 'n', 'N':
		_ = a.ctrl.Next()
		return nil
	case 'p', 'P':
		_ = a.ctrl.Previous()
		return nil
	case 'x', 'X':
		a.ctrl.Close()
		return nil
	case 'l', 'L':
		a.search.SetText("")
		a.ctrl.ClearSearch()
		a.refreshPlaylist()
		return nil
	case 'a', 'A':
		if t, ok := a.selected(); ok {
			a.addAndSend(t)
		}
		return nil
	case 'd', 'D':
		if t, ok := a.selected(); ok {
			a.remove(t)
		}
		return nil
	}
	return event
}

func (a *App) seekBy(d time.Duration) {
	st := a.ctrl.State()
	if st.Track == nil {
		return
	}
	_ = a.ctrl.Seek(st.Position + d)
}

func (a *App) selected() (tgapi.Track, bool) {
	q, _ := a.ctrl.Queue()
	i := a.list.GetCurrentItem()
	if i < 0 || i >= len(q) {
		return tgapi.Track{}, false
	}
	return q[i], true
}

func (a *App) refreshPlaylist() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), playlistTimeout)
		defer cancel()
		tracks, err := a.ctrl.LoadPlaylist(ctx)
		if err != nil {
			a.setMessage(describeError(err))
			return
		}
		a.setMessage(fmt.Sprintf("Playlist: %d tracks", len(tracks)))
	}()
}

func (a *App) addAndSend(t tgapi.Track) {
	a.setMessage("Saving and sending " + t.Title + "…")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		out, err := a.ctrl.AddAndSend(ctx, t)
		if err != nil {
			a.setMessage(describeError(err))
			return
		}
		a.setMessage(out.Message())
	}()
}

func (a *App) remove(t tgapi.Track) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), playlistTimeout)
		defer cancel()
		ok, err := a.ctrl.RemoveFromPlaylist(ctx, t.ID)
		switch {
		case err != nil:
			a.setMessage(describeError(err))
		case ok:
			a.setMessage("Removed " + t.Title)
		default:
			a.setMessage("Could not remove " + t.Title)
		}
	}()
}

func describeError(err error) string {
	switch {
	case errors.Is(err, tgapi.ErrAuthRequired):
		return "Sign-in required: set init_data in the config"
	case errors.Is(err, playback.ErrNoTrack):
		return "Nothing is playing"
	case errors.Is(err, tgapi.ErrTimeout):
		return "The server took too long to answer"
	default:
		return err.Error()
	}
}

func (a *App) setMessage(msg string) {
	a.mu.Lock()
	a.message = msg
	a.messageAt = time.Now()
	a.mu.Unlock()
}

// Run starts the UI and blocks until the user quits or ctx is done
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancelFunc = context.WithCancel(ctx)

	a.refreshPlaylist()
	go a.handleUpdates(ctx)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	a.cancelFunc()
	return nil
}

// handleUpdates drives all redraws from a single ticker so redraws never
// queue up behind each other.
func (a *App) handleUpdates(ctx context.Context) {
	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = DefaultConfig().RefreshRate
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// refresh updates all UI components
func (a *App) refresh() {
	st := a.ctrl.State()
	q, src := a.ctrl.Queue()

	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		a.updateQueue(q, src, st)
		a.updateNowPlaying(st)
		a.updateProgress(st)
		a.updateStatus()
	})
}

func (a *App) updateQueue(q []tgapi.Track, src queue.Source, st playback.State) {
	var currentID string
	if st.Track != nil {
		currentID = st.Track.ID
	}

	_, _, width, _ := a.list.GetInnerRect()
	if width <= 0 {
		width = 60
	}

	rows := make([]string, len(q))
	for i, t := range q {
		rows[i] = formatRow(t, t.ID == currentID, width)
	}
	if equalRows(rows, a.lastQueue) {
		return
	}
	a.lastQueue = rows

	switch src {
	case queue.SourceSearch:
		a.list.SetTitle(" Search results ")
	case queue.SourcePlaylist:
		a.list.SetTitle(" Playlist ")
	default:
		a.list.SetTitle(" Queue ")
	}

	cur := a.list.GetCurrentItem()
	a.list.Clear()
	for _, r := range rows {
		a.list.AddItem(r, "", 0, nil)
	}
	if cur >= 0 && cur < len(rows) {
		a.list.SetCurrentItem(cur)
	}
}

func equalRows(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// formatRow renders one queue line: marker, title and artist fitted to
// width, then the duration.
func formatRow(t tgapi.Track, current bool, width int) string {
	marker := "  "
	if current {
		marker = "▶ "
	}
	dur := ""
	if t.Duration > 0 {
		dur = " " + formatDuration(t.Duration)
	}

	avail := width - runewidth.StringWidth(marker) - runewidth.StringWidth(dur)
	if avail < 4 {
		avail = 4
	}
	text := runewidth.FillRight(runewidth.Truncate(t.Title+" · "+t.Artist, avail, "…"), avail)

	line := tview.Escape(marker + text + dur)
	if current {
		return "[green]" + line + "[-]"
	}
	return line
}

// updateNowPlaying updates the now playing panel
func (a *App) updateNowPlaying(st playback.State) {
	var text string

	if st.Track == nil {
		text = "\n\n[gray]No track playing[-]"
	} else {
		var sb strings.Builder
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(st.Track.Title)))
		sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(st.Track.Artist)))
		sb.WriteString(fmt.Sprintf("\n\n%s", statusIcon(st)))
		text = sb.String()
	}

	if text != a.lastNowPlaying {
		a.lastNowPlaying = text
		a.nowPlaying.SetText(text)
	}
}

// statusIcon follows the user's intent; buffering is shown next to it,
// never instead of it.
func statusIcon(st playback.State) string {
	switch {
	case st.Status == playback.Error:
		return "[red]✗ playback failed[-]"
	case st.IntendedPlaying && st.Buffering:
		return "[green]▶[-] [gray]buffering…[-]"
	case st.IntendedPlaying:
		return "[green]▶[-]"
	default:
		return "[yellow]⏸[-]"
	}
}

// updateProgress updates the progress bar
func (a *App) updateProgress(st playback.State) {
	var text string

	if st.Track != nil {
		_, _, width, _ := a.progress.GetInnerRect()
		barWidth := width - 14 // Account for time display
		// Only update cached width when GetInnerRect returns a positive value,
		// avoiding flicker from transient zero-width during layout.
		if barWidth > 0 {
			a.lastBarWidth = barWidth
		}
		if a.lastBarWidth < 10 {
			a.lastBarWidth = 10
		}

		bar := buildProgressBar(st.Position, st.Duration, a.lastBarWidth)
		text = fmt.Sprintf("%s %s %s", formatDuration(st.Position), bar, formatDuration(st.Duration))
	}

	if text != a.lastProgress {
		a.lastProgress = text
		a.progress.SetText(text)
	}
}

const messageTTL = 5 * time.Second

func (a *App) updateStatus() {
	text := helpText
	if a.message != "" && time.Since(a.messageAt) < messageTTL {
		text = "[white]" + tview.Escape(a.message) + "[-]"
	}
	if text != a.lastStatus {
		a.lastStatus = text
		a.status.SetText(text)
	}
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", width)
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	return "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
