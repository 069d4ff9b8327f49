package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

type fakeBackend struct {
	mu      sync.Mutex
	calls   map[string]int
	urls    map[string]string
	hls     map[string]bool
	err     error
	release chan struct{} // when non-nil, ResolveWith blocks until closed
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: map[string]int{}, urls: map[string]string{}, hls: map[string]bool{}}
}

func (f *fakeBackend) ResolveWith(ctx context.Context, id string, timeout time.Duration, retries int) (tgapi.Resolved, error) {
	f.mu.Lock()
	f.calls[id]++
	release := f.release
	err := f.err
	url, ok := f.urls[id]
	hls := f.hls[id]
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return tgapi.Resolved{}, err
	}
	if !ok {
		url = "https://cdn/" + id + ".mp3"
	}
	return tgapi.Resolved{URL: url, HLS: hls}, nil
}

func (f *fakeBackend) DownloadURL(id string) string {
	return "http://backend/api/music/download/" + id
}

func (f *fakeBackend) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestResolver_CacheTTL(t *testing.T) {
	api := newFakeBackend()
	api.urls["1"] = "https://cdn/a.mp3"
	r := New(api, Config{TTL: 20 * time.Minute}, zerolog.Nop())

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	ctx := context.Background()
	first, err := r.Resolve(ctx, "1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	clock = clock.Add(19 * time.Minute)
	second, err := r.Resolve(ctx, "1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first != second || first != "https://cdn/a.mp3" {
		t.Errorf("got %q then %q", first, second)
	}
	if n := api.count("1"); n != 1 {
		t.Fatalf("expected 1 backend call within TTL, got %d", n)
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := r.Cached("1"); ok {
		t.Error("expired entry must not be returned by Cached")
	}
	if _, err := r.Resolve(ctx, "1"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if n := api.count("1"); n != 2 {
		t.Errorf("expected fresh backend call after TTL, got %d calls", n)
	}
}

func TestResolver_CachedNeverHitsNetwork(t *testing.T) {
	api := newFakeBackend()
	r := New(api, Config{}, zerolog.Nop())

	if _, ok := r.Cached("x"); ok {
		t.Error("expected miss")
	}
	if n := api.count("x"); n != 0 {
		t.Errorf("Cached made %d backend calls", n)
	}
}

func TestResolver_EvictsOldestFirst(t *testing.T) {
	api := newFakeBackend()
	r := New(api, Config{MaxEntries: 2}, zerolog.Nop())
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := r.Resolve(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	// Reading "a" must not protect it from eviction.
	if _, ok := r.Cached("a"); !ok {
		t.Fatal("expected a cached")
	}
	if _, err := r.Resolve(ctx, "c"); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Cached("a"); ok {
		t.Error("oldest entry a should have been evicted")
	}
	for _, id := range []string{"b", "c"} {
		if _, ok := r.Cached(id); !ok {
			t.Errorf("expected %s cached", id)
		}
	}
}

func TestResolver_ErrorIsResolutionError(t *testing.T) {
	api := newFakeBackend()
	api.err = &tgapi.Error{Op: "resolve", StatusCode: 502}
	r := New(api, Config{}, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "1")
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %T", err)
	}
	if resErr.TrackID != "1" {
		t.Errorf("TrackID = %q", resErr.TrackID)
	}
	if _, ok := r.Cached("1"); ok {
		t.Error("failures must not be cached")
	}
	if got := r.FallbackURL("1"); got != "http://backend/api/music/download/1" {
		t.Errorf("FallbackURL() = %q", got)
	}
}

func TestResolver_ConcurrentResolveSharesRequest(t *testing.T) {
	api := newFakeBackend()
	api.release = make(chan struct{})
	r := New(api, Config{}, zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, err := r.Resolve(context.Background(), "1")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
			results[i] = url
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(api.release)
	wg.Wait()

	if n := api.count("1"); n != 1 {
		t.Errorf("expected 1 backend call, got %d", n)
	}
	for i, url := range results {
		if url != "https://cdn/1.mp3" {
			t.Errorf("result %d = %q", i, url)
		}
	}
}

func TestResolver_CallerCancelDoesNotAbortSharedRequest(t *testing.T) {
	api := newFakeBackend()
	api.release = make(chan struct{})
	r := New(api, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, "1")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(api.release)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Cached("1"); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("shared request should still populate the cache")
}

func TestResolver_PreloadBatch(t *testing.T) {
	api := newFakeBackend()
	r := New(api, Config{PreloadConcurrency: 2}, zerolog.Nop())

	if _, err := r.Resolve(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	r.PreloadBatch([]string{"a", "b", "c", "b", ""})
	r.Wait()

	for _, id := range []string{"a", "b", "c"} {
		if _, ok := r.Cached(id); !ok {
			t.Errorf("expected %s cached", id)
		}
		if n := api.count(id); n != 1 {
			t.Errorf("%s resolved %d times, want 1", id, n)
		}
	}
}

func TestResolver_PreloadSwallowsErrors(t *testing.T) {
	api := newFakeBackend()
	api.err = errors.New("boom")
	r := New(api, Config{}, zerolog.Nop())

	r.Preload("1")
	r.Wait()

	if _, ok := r.Cached("1"); ok {
		t.Error("failed preload must not populate cache")
	}
	if n := api.count("1"); n != 1 {
		t.Errorf("expected 1 attempt, got %d", n)
	}
}

func TestResolver_HLSUsesDownloadProxy(t *testing.T) {
	api := newFakeBackend()
	api.urls["1"] = "https://cdn/1/index.m3u8"
	api.hls["1"] = true
	r := New(api, Config{}, zerolog.Nop())

	got, err := r.Resolve(context.Background(), "1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := "http://backend/api/music/download/1"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
	if cached, ok := r.Cached("1"); !ok || cached != want {
		t.Errorf("Cached() = %q, %v, want %q", cached, ok, want)
	}
}
