// Package store keeps a local SQLite library: every track the player has
// seen, a mirror of the remote playlist, and play history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Store is the local library database.
type Store struct {
	db *sql.DB
}

// HistoryEntry is one started playback.
type HistoryEntry struct {
	ID       int64
	Track    tgapi.Track
	PlayedAt time.Time
}

const schema = `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		artwork_url TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 0,
		in_playlist BOOLEAN NOT NULL DEFAULT 0,
		playlist_pos INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_playlist ON tracks(in_playlist, playlist_pos);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0,
		played_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_played_at ON history(played_at);
`

// Open opens (creating if needed) the library at path. ":memory:" works
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps an in-memory database consistent across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const upsertTrack = `
	INSERT INTO tracks (id, title, artist, artwork_url, duration, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		artist = excluded.artist,
		artwork_url = excluded.artwork_url,
		duration = CASE WHEN excluded.duration > 0 THEN excluded.duration ELSE tracks.duration END,
		updated_at = excluded.updated_at
`

// SaveTracks records tracks the user has come across. Playlist membership
// is left untouched.
func (s *Store) SaveTracks(ctx context.Context, tracks []tgapi.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertTrack)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().Unix()
	for _, t := range tracks {
		if _, err := stmt.ExecContext(ctx, t.ID, t.Title, t.Artist, t.ArtworkURL, seconds(t.Duration), now); err != nil {
			return fmt.Errorf("failed to save track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReplacePlaylist makes tracks, in order, the mirrored playlist.
func (s *Store) ReplacePlaylist(ctx context.Context, tracks []tgapi.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE tracks SET in_playlist = 0, playlist_pos = 0"); err != nil {
		return fmt.Errorf("failed to reset playlist: %w", err)
	}

	upsert, err := tx.PrepareContext(ctx, upsertTrack)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = upsert.Close() }()

	mark, err := tx.PrepareContext(ctx, "UPDATE tracks SET in_playlist = 1, playlist_pos = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = mark.Close() }()

	now := time.Now().Unix()
	for i, t := range tracks {
		if _, err := upsert.ExecContext(ctx, t.ID, t.Title, t.Artist, t.ArtworkURL, seconds(t.Duration), now); err != nil {
			return fmt.Errorf("failed to save track %s: %w", t.ID, err)
		}
		if _, err := mark.ExecContext(ctx, i, t.ID); err != nil {
			return fmt.Errorf("failed to mark track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddToPlaylist appends t to the mirrored playlist if it isn't there yet.
func (s *Store) AddToPlaylist(ctx context.Context, t tgapi.Track) error {
	if err := s.SaveTracks(ctx, []tgapi.Track{t}); err != nil {
		return err
	}
	query := `
		UPDATE tracks
		SET in_playlist = 1,
			playlist_pos = (SELECT COALESCE(MAX(playlist_pos), -1) + 1 FROM tracks WHERE in_playlist = 1)
		WHERE id = ? AND in_playlist = 0
	`
	if _, err := s.db.ExecContext(ctx, query, t.ID); err != nil {
		return fmt.Errorf("failed to add to playlist: %w", err)
	}
	return nil
}

func (s *Store) RemoveFromPlaylist(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE tracks SET in_playlist = 0 WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove from playlist: %w", err)
	}
	return nil
}

// Playlist returns the mirrored playlist in remote order.
func (s *Store) Playlist(ctx context.Context) ([]tgapi.Track, error) {
	query := `
		SELECT id, title, artist, artwork_url, duration
		FROM tracks
		WHERE in_playlist = 1
		ORDER BY playlist_pos ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tracks []tgapi.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlist: %w", err)
	}
	return tracks, nil
}

// Track looks up a single track by id.
func (s *Store) Track(ctx context.Context, id string) (tgapi.Track, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, artist, artwork_url, duration FROM tracks WHERE id = ?", id)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return tgapi.Track{}, false, nil
	}
	if err != nil {
		return tgapi.Track{}, false, err
	}
	return t, true, nil
}

// RecordPlay appends t to the history.
func (s *Store) RecordPlay(ctx context.Context, t tgapi.Track, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO history (track_id, title, artist, duration, played_at) VALUES (?, ?, ?, ?, ?)",
		t.ID, t.Title, t.Artist, seconds(t.Duration), at.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// History returns the most recent plays first. limit <= 0 means all.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT h.id, h.track_id, h.title, h.artist, h.duration, COALESCE(t.artwork_url, ''), h.played_at
		FROM history h
		LEFT JOIN tracks t ON t.id = h.track_id
		ORDER BY h.played_at DESC, h.id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var durationSecs, playedAt int64
		if err := rows.Scan(&e.ID, &e.Track.ID, &e.Track.Title, &e.Track.Artist,
			&durationSecs, &e.Track.ArtworkURL, &playedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Track.Duration = time.Duration(durationSecs) * time.Second
		e.PlayedAt = time.Unix(playedAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}

// Cleanup drops history older than maxAge.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	result, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE played_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup history: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (tgapi.Track, error) {
	var t tgapi.Track
	var durationSecs int64
	if err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.ArtworkURL, &durationSecs); err != nil {
		if err == sql.ErrNoRows {
			return t, err
		}
		return t, fmt.Errorf("failed to scan track: %w", err)
	}
	t.Duration = time.Duration(durationSecs) * time.Second
	return t, nil
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
