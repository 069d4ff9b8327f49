package player

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/tgplay/internal/playback"
	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Snapshot is what other processes can learn about the running player.
type Snapshot struct {
	Track     *tgapi.Track  `json:"track,omitempty"`
	Status    string        `json:"status"`
	Playing   bool          `json:"playing"`
	Position  time.Duration `json:"position"`
	Duration  time.Duration `json:"duration"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Elapsed estimates the position at now, advancing it while playing.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	pos := s.Position
	if s.Playing && !s.UpdatedAt.IsZero() {
		pos += now.Sub(s.UpdatedAt)
	}
	if s.Duration > 0 && pos > s.Duration {
		pos = s.Duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// StateFile keeps the latest snapshot and writes it to disk. Position-only
// changes are written at most once per persistInterval.
type StateFile struct {
	mu              sync.Mutex
	current         Snapshot
	filePath        string
	dirty           bool
	urgent          bool
	lastPersist     time.Time
	persistInterval time.Duration
	now             func() time.Time
}

const defaultPersistInterval = 5 * time.Second

// NewStateFile creates a StateFile at filePath. An empty path keeps the
// snapshot in memory only.
func NewStateFile(filePath string) *StateFile {
	return &StateFile{
		filePath:        filePath,
		persistInterval: defaultPersistInterval,
		now:             time.Now,
	}
}

// Update records st. It only touches memory; Flush writes.
func (s *StateFile) Update(kind playback.NoticeKind, st playback.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = Snapshot{
		Track:     st.Track,
		Status:    st.Status.String(),
		Playing:   st.IntendedPlaying,
		Position:  st.Position,
		Duration:  st.Duration,
		UpdatedAt: s.now(),
	}
	s.dirty = true
	if kind != playback.NoticePosition {
		s.urgent = true
	}
}

// Get returns the current snapshot.
func (s *StateFile) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Flush writes the snapshot if it changed. Unless force is set, a pure
// position change waits for the persist interval.
func (s *StateFile) Flush(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if !force && !s.urgent && s.now().Sub(s.lastPersist) < s.persistInterval {
		return nil
	}
	return s.persist()
}

// persist saves the current snapshot to disk
// Must be called with lock held
func (s *StateFile) persist() error {
	if s.filePath == "" {
		s.dirty, s.urgent = false, false
		return nil
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return err
	}

	s.dirty, s.urgent = false, false
	s.lastPersist = s.now()
	return nil
}

// ReadSnapshot loads the snapshot written by a running player.
func ReadSnapshot(filePath string) (Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
