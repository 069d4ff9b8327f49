package tgapi

import (
	"time"
)

// Track is a catalog entry as returned by search and playlist endpoints,
// after normalization.
type Track struct {
	ID         string        // Stable catalog key, never empty
	Title      string        // Defaults to "Unknown title"
	Artist     string        // Defaults to "Unknown artist"
	ArtworkURL string        // Optional cover image URL
	Duration   time.Duration // Declared duration, zero when unknown
}

// Resolved is the answer of the resolve endpoint.
type Resolved struct {
	URL string // Directly playable media URL
	HLS bool   // True when URL points at an HLS playlist
}

// AddStatus is the outcome of adding a track to the playlist.
type AddStatus string

const (
	StatusSaved         AddStatus = "saved"
	StatusAlreadyExists AddStatus = "already_exists"
)

// User is the profile returned by login.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// playlistEntry is the POST /api/playlist body.
type playlistEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Duration int     `json:"duration"`
	CoverURL *string `json:"cover_url"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type resolveResponse struct {
	URL string `json:"url"`
	HLS bool   `json:"hls"`
}

type loginRequest struct {
	InitData string `json:"initData"`
}

type loginResponse struct {
	Status string `json:"status"`
	User   *User  `json:"user"`
}
