package media

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/internal/playback"
)

func TestEventQueuePreservesOrder(t *testing.T) {
	q := newEventQueue()
	defer q.close()

	for i := 0; i < 100; i++ {
		q.push(playback.Event{Cycle: uint64(i)})
	}
	for i := 0; i < 100; i++ {
		select {
		case ev := <-q.out:
			if ev.Cycle != uint64(i) {
				t.Fatalf("event %d has cycle %d", i, ev.Cycle)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestEventQueueCloseEndsStream(t *testing.T) {
	q := newEventQueue()
	q.close()
	q.close()

	select {
	case _, ok := <-q.out:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}

func next(t *testing.T, e *Element) playback.Event {
	t.Helper()
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for element event")
		return playback.Event{}
	}
}

func TestLoadFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte("definitely not an mp3 stream"))
		}
	}))
	defer srv.Close()

	tests := []struct {
		name string
		src  string
		want playback.MediaErrorCode
	}{
		{"not found", srv.URL + "/missing", playback.CodeSrcNotSupported},
		{"server error", srv.URL + "/broken", playback.CodeNetwork},
		{"unreachable", "http://127.0.0.1:1/track", playback.CodeNetwork},
		{"garbage", srv.URL + "/garbage", playback.CodeDecode},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(srv.Client(), zerolog.Nop())
			defer e.Close()

			cycle := uint64(i + 1)
			e.Load(cycle, tt.src)

			if ev := next(t, e); ev.Kind != playback.EventWaiting || ev.Cycle != cycle {
				t.Fatalf("first event = %v/%d, want waiting/%d", ev.Kind, ev.Cycle, cycle)
			}
			ev := next(t, e)
			if ev.Kind != playback.EventError {
				t.Fatalf("event = %v, want error", ev.Kind)
			}
			if ev.Code != tt.want {
				t.Errorf("code = %v, want %v", ev.Code, tt.want)
			}
			if ev.Err == nil {
				t.Error("error event without cause")
			}
		})
	}
}

func TestReloadAbandonsPendingDownload(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	defer close(release)

	e := New(srv.Client(), zerolog.Nop())
	defer e.Close()

	e.Load(1, srv.URL+"/slow")
	e.Load(2, srv.URL+"/missing")

	var got []playback.Event
	for len(got) < 3 {
		got = append(got, next(t, e))
	}

	if got[0].Cycle != 1 || got[0].Kind != playback.EventWaiting {
		t.Errorf("event 0 = %+v", got[0])
	}
	for _, ev := range got[1:] {
		if ev.Cycle != 2 {
			t.Errorf("event from abandoned load: %+v", ev)
		}
	}
	if got[2].Kind != playback.EventError {
		t.Errorf("final event = %v, want error for the new source", got[2].Kind)
	}
}

func TestControlsBeforeSourceReady(t *testing.T) {
	e := New(nil, zerolog.Nop())
	defer e.Close()

	if err := e.Play(); err != nil {
		t.Fatalf("Play() without source = %v", err)
	}
	e.Seek(time.Minute)
	e.Pause()
	e.Unload()

	select {
	case ev := <-e.Events():
		t.Errorf("unexpected event %+v without a source", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
