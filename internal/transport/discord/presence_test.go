package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/internal/transport"
)

type fakeRPC struct {
	activities []*Activity
	closed     bool
	failNext   error
	sent       chan struct{} // optional, signalled after each SetActivity
}

func (f *fakeRPC) SetActivity(a *Activity) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.activities = append(f.activities, a)
	if f.sent != nil {
		select {
		case f.sent <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeRPC) Close() error {
	f.closed = true
	return nil
}

func newTestPresence() (*Presence, *fakeRPC) {
	fake := &fakeRPC{}
	clock := time.Unix(1_700_000_000, 0)
	p := &Presence{
		appID:  "test",
		logger: zerolog.Nop(),
		connect: func(string) (rpcClient, error) {
			return fake, nil
		},
		now:  func() time.Time { return clock },
		wake: make(chan struct{}, 1),
	}
	return p, fake
}

func playing(id, title, artist string) presenceState {
	return presenceState{
		meta:     transport.Metadata{TrackID: id, Title: title, Artist: artist, ArtworkURL: "https://img/" + id},
		playing:  true,
		position: 30 * time.Second,
		duration: 3 * time.Minute,
	}
}

func TestDedup_SkipsDuplicateUpdates(t *testing.T) {
	p, fake := newTestPresence()
	s := playing("1", "Song", "Artist")

	p.handle(s)
	p.handle(s)
	p.handle(s)

	if len(fake.activities) != 1 {
		t.Fatalf("expected 1 SetActivity call, got %d", len(fake.activities))
	}
}

func TestDedup_SendsOnSeek(t *testing.T) {
	p, fake := newTestPresence()
	s := playing("1", "Song", "Artist")
	p.handle(s)

	s.position = 2 * time.Minute
	p.handle(s)

	if len(fake.activities) != 2 {
		t.Fatalf("expected seek to refresh timestamps, got %d calls", len(fake.activities))
	}
}

func TestDedup_SendsOnTrackChange(t *testing.T) {
	p, fake := newTestPresence()

	p.handle(playing("1", "Song A", "Artist"))
	p.handle(playing("2", "Song B", "Artist"))

	if len(fake.activities) != 2 {
		t.Fatalf("expected 2 SetActivity calls, got %d", len(fake.activities))
	}
	if fake.activities[1].Details != "Song B" {
		t.Errorf("second activity details = %q, want %q", fake.activities[1].Details, "Song B")
	}
}

func TestClearsOnPause(t *testing.T) {
	p, fake := newTestPresence()

	s := playing("1", "Song", "Artist")
	p.handle(s)
	s.playing = false
	p.handle(s)

	if len(fake.activities) != 2 {
		t.Fatalf("expected 2 SetActivity calls, got %d", len(fake.activities))
	}
	if fake.activities[1] != nil {
		t.Errorf("clear should send a nil activity, got %+v", fake.activities[1])
	}
}

func TestNoClearWhenAlreadyStopped(t *testing.T) {
	p, fake := newTestPresence()

	p.handle(presenceState{})
	p.handle(presenceState{meta: transport.Metadata{TrackID: "1"}})

	if len(fake.activities) != 0 {
		t.Fatalf("expected 0 SetActivity calls, got %d", len(fake.activities))
	}
}

func TestReconnectsAfterError(t *testing.T) {
	connectCount := 0
	fake := &fakeRPC{}
	p, _ := newTestPresence()
	p.connect = func(string) (rpcClient, error) {
		connectCount++
		fake = &fakeRPC{}
		return fake, nil
	}

	s := playing("1", "Song", "Artist")
	p.handle(s)
	if connectCount != 1 {
		t.Fatalf("expected 1 connect, got %d", connectCount)
	}

	fake.failNext = errors.New("broken pipe")
	p.last = lastActivity{}
	p.handle(s)
	if !fake.closed {
		t.Error("failed client should be closed")
	}

	p.handle(s)
	if connectCount != 2 {
		t.Fatalf("expected 2 connects after error, got %d", connectCount)
	}
}

func TestSurfaceCoalescesIntoRun(t *testing.T) {
	p, fake := newTestPresence()
	fake.sent = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	_ = p.SetMetadata(transport.Metadata{TrackID: "1", Title: "Song", Artist: "Artist", Length: time.Minute})
	_ = p.SetPlaybackState(true)

	select {
	case <-fake.sent:
	case <-time.After(time.Second):
		t.Fatal("activity never sent")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancel")
	}

	if len(fake.activities) < 2 || fake.activities[0] == nil {
		t.Fatalf("activities = %v, want set then clear", fake.activities)
	}
	if last := fake.activities[len(fake.activities)-1]; last != nil {
		t.Error("expected presence cleared on shutdown")
	}
	if !fake.closed {
		t.Error("expected client to be closed on context cancel")
	}
}

func TestSetHandlerUnsupported(t *testing.T) {
	p, _ := newTestPresence()
	if err := p.SetHandler(transport.ActionPlay, nil); !errors.Is(err, transport.ErrUnsupported) {
		t.Errorf("SetHandler() = %v, want ErrUnsupported", err)
	}
}

func TestActivityFields(t *testing.T) {
	p, fake := newTestPresence()

	p.handle(playing("1", "Bohemian Rhapsody", "Queen"))

	if len(fake.activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(fake.activities))
	}
	a := fake.activities[0]
	if a.Type != activityListening {
		t.Errorf("type = %d, want %d (Listening)", a.Type, activityListening)
	}
	if a.Details != "Bohemian Rhapsody" {
		t.Errorf("details = %q", a.Details)
	}
	if a.State != "by Queen" {
		t.Errorf("state = %q", a.State)
	}
	if a.Assets == nil || a.Assets.LargeImage != "https://img/1" {
		t.Errorf("assets = %+v", a.Assets)
	}
	if a.Timestamps == nil || a.Timestamps.Start == nil || a.Timestamps.End == nil {
		t.Fatal("expected timestamps with start and end")
	}
	if got := *a.Timestamps.End - *a.Timestamps.Start; got != 180 {
		t.Errorf("end-start = %d, want 180", got)
	}
	if *a.Timestamps.Start != 1_700_000_000-30 {
		t.Errorf("start = %d", *a.Timestamps.Start)
	}
}
