package tgapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, initData string) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:  server.URL + "/",
		InitData: initData,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	client.retryBackoff = time.Millisecond
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "  "}); err == nil {
		t.Fatal("expected error for empty BaseURL")
	}
}

func TestMusicService_Search(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantIDs   []string
		wantTitle string
	}{
		{
			name:      "items wrapper",
			response:  `{"items":[{"id":"1","title":"A","artist":"X"}]}`,
			wantIDs:   []string{"1"},
			wantTitle: "A",
		},
		{
			name:      "bare array",
			response:  `[{"id":"1","title":"A","artist":"X"},{"id":"2","name":"B"}]`,
			wantIDs:   []string{"1", "2"},
			wantTitle: "A",
		},
		{
			name:      "tracks wrapper drops records without id",
			response:  `{"tracks":[{"title":"no id"},{"trackId":"7","name":"Seven"}]}`,
			wantIDs:   []string{"7"},
			wantTitle: "Seven",
		},
		{
			name:     "results wrapper empty",
			response: `{"results":[]}`,
			wantIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET, got %s", r.Method)
				}
				if r.URL.Path != "/api/music/search" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if q := r.URL.Query().Get("q"); q != "test" {
					t.Errorf("expected q=test, got %q", q)
				}
				if r.Header.Get("Authorization") != "" {
					t.Error("search must not send Authorization")
				}
				_, _ = w.Write([]byte(tt.response))
			}, "token")

			tracks, err := client.Music().Search(context.Background(), "  test ")
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(tracks) != len(tt.wantIDs) {
				t.Fatalf("got %d tracks, want %d", len(tracks), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if tracks[i].ID != id {
					t.Errorf("track %d id = %q, want %q", i, tracks[i].ID, id)
				}
			}
			if len(tracks) > 0 && tracks[0].Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", tracks[0].Title, tt.wantTitle)
			}
		})
	}
}

func TestMusicService_Search_BlankQuery(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, "")

	tracks, err := client.Music().Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if tracks != nil {
		t.Errorf("expected nil tracks, got %v", tracks)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("blank query must not hit the network")
	}
}

func TestMusicService_Resolve(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/music/resolve/1%2F2" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("expected X-Request-Id header")
		}
		_, _ = w.Write([]byte(`{"url":"https://cdn/a.mp3","hls":true}`))
	}, "")

	got, err := client.Music().Resolve(context.Background(), "1/2")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URL != "https://cdn/a.mp3" || !got.HLS {
		t.Errorf("Resolve() = %+v", got)
	}
}

func TestMusicService_Resolve_EmptyURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":""}`))
	}, "")

	_, err := client.Music().Resolve(context.Background(), "1")
	if !errors.Is(err, ErrNoStream) {
		t.Errorf("expected ErrNoStream, got %v", err)
	}
}

func TestMusicService_Resolve_Retry(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"url":"https://cdn/ok.mp3"}`))
	}, "")

	got, err := client.Music().Resolve(context.Background(), "1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URL != "https://cdn/ok.mp3" {
		t.Errorf("URL = %q", got.URL)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestMusicService_Resolve_RetriesExhausted(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, "")

	_, err := client.Music().ResolveWith(context.Background(), "1", time.Second, 2)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected the last 502, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestMusicService_Resolve_NotFoundIsNotRetried(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Track not found"}`))
	}, "")

	_, err := client.Music().Resolve(context.Background(), "1")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Track not found" {
		t.Errorf("unexpected error detail: %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("expected 1 attempt, got %d", n)
	}
}

func TestMusicService_Resolve_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, "")

	_, err := client.Music().ResolveWith(context.Background(), "1", 20*time.Millisecond, 0)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestMusicService_Resolve_ContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, "")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Music().Resolve(ctx, "1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMusicService_DownloadURL(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://host:8000/"})
	if err != nil {
		t.Fatal(err)
	}
	got := client.Music().DownloadURL("a b")
	want := "http://host:8000/api/music/download/a%20b"
	if got != want {
		t.Errorf("DownloadURL() = %q, want %q", got, want)
	}
}
