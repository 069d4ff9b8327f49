//go:build integration

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

const testBinary = "./tgplay_test"

func buildBinary(tb testing.TB) {
	tb.Helper()
	buildCmd := exec.Command("go", "build", "-o", testBinary, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		tb.Fatalf("Failed to build binary: %v\n%s", err, out)
	}
	tb.Cleanup(func() { _ = os.Remove(testBinary) })
}

// testEnv isolates config and data from the developer's home.
func testEnv(t *testing.T, apiBase string) (dataDir string, env []string) {
	t.Helper()
	home := t.TempDir()
	dataDir = filepath.Join(home, "data")
	env = append(os.Environ(),
		"HOME="+home,
		"TGPLAY_API_BASE="+apiBase,
		"TGPLAY_TRANSPORT_MPRIS=false",
	)
	return dataDir, env
}

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/music/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 101, "title": "Integration Song", "artist": "Test Band", "duration": 185},
			{"id": "102", "title": "Second Song", "artist": "Test Band"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestSearchCommand runs a search against a fake backend
func TestSearchCommand(t *testing.T) {
	buildBinary(t)
	srv := fakeBackend(t)
	dataDir, env := testEnv(t, srv.URL)

	cmd := exec.Command(testBinary, "search", "integration", "--data-dir", dataDir)
	cmd.Env = env
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("search failed: %v\n%s", err, output)
	}

	out := string(output)
	for _, want := range []string{"Integration Song", "Test Band", "3:05", "101", "102"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := os.Stat(filepath.Join(dataDir, "library.db")); err != nil {
		t.Errorf("library database not created: %v", err)
	}
}

// TestNowCommand reads a snapshot left by a running player
func TestNowCommand(t *testing.T) {
	buildBinary(t)
	dataDir, env := testEnv(t, "http://127.0.0.1:1")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}

	snapshot := map[string]interface{}{
		"track":      map[string]interface{}{"ID": "7", "Title": "Song", "Artist": "Band"},
		"status":     "playing",
		"playing":    true,
		"position":   int64(10 * time.Second),
		"duration":   int64(3 * time.Minute),
		"updated_at": time.Now(),
	}
	data, _ := json.Marshal(snapshot)
	if err := os.WriteFile(filepath.Join(dataDir, "state.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(testBinary, "now", "--data-dir", dataDir)
	cmd.Env = env
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("now failed: %v\n%s", err, output)
	}
	if got := strings.TrimSpace(string(output)); got != "Band - Song" {
		t.Errorf("now output = %q, want %q", got, "Band - Song")
	}
}

// TestNowCommandIdle exits 1 when no player has written state
func TestNowCommandIdle(t *testing.T) {
	buildBinary(t)
	dataDir, env := testEnv(t, "http://127.0.0.1:1")

	cmd := exec.Command(testBinary, "now", "--data-dir", dataDir)
	cmd.Env = env
	err := cmd.Run()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Errorf("now without state: err = %v, want exit code 1", err)
	}
}

// TestHeadlessLifecycle starts the headless player and stops it with SIGINT
func TestHeadlessLifecycle(t *testing.T) {
	buildBinary(t)
	srv := fakeBackend(t)
	dataDir, env := testEnv(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, testBinary, "play", "--headless",
		"--data-dir", dataDir,
		"--log-level", "debug")
	cmd.Env = env
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start player: %v", err)
	}

	// Give it time to start
	time.Sleep(1 * time.Second)

	if _, err := os.Stat(filepath.Join(dataDir, "library.db")); err != nil {
		t.Errorf("library database not created: %v", err)
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("Failed to signal player: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("player exited with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Player did not stop within 5 seconds")
	}

	if _, err := os.Stat(filepath.Join(dataDir, "state.json")); err != nil {
		t.Errorf("state file not written on shutdown: %v", err)
	}
}

// BenchmarkNowCommand benchmarks the performance of the "now" command
func BenchmarkNowCommand(b *testing.B) {
	buildBinary(b)
	dataDir := b.TempDir()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cmd := exec.Command(testBinary, "now", "--data-dir", dataDir)
		// Exits 1 without a running player
		_ = cmd.Run()
	}
}
