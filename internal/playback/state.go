// Package playback owns the single media element and the playback state
// machine that reconciles it with URL resolution and user intent.
package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// Status is the coarse playback state.
type Status int

const (
	Idle Status = iota
	Loading
	Playing
	Paused
	Buffering
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Buffering:
		return "buffering"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is a snapshot of the session. IntendedPlaying is the user's last
// play/pause decision and is independent of Buffering.
type State struct {
	Status          Status
	Track           *tgapi.Track
	SourceURL       string
	IntendedPlaying bool
	Buffering       bool
	Position        time.Duration
	Duration        time.Duration
	PanelOpen       bool

	// Cycle identifies the current load; it increases on every load and close.
	Cycle uint64
}

// NoticeKind classifies a state change delivered to listeners.
type NoticeKind int

const (
	NoticeTrack    NoticeKind = iota // current track changed
	NoticeIntent                     // IntendedPlaying changed
	NoticePosition                   // position or duration changed
	NoticeStatus                     // Status or Buffering changed
	NoticeFailed                     // playback failed, Err is a *PlaybackError
	NoticeEnded                      // the track played to the end
	NoticeClosed                     // session was torn down
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeTrack:
		return "track"
	case NoticeIntent:
		return "intent"
	case NoticePosition:
		return "position"
	case NoticeStatus:
		return "status"
	case NoticeFailed:
		return "failed"
	case NoticeEnded:
		return "ended"
	case NoticeClosed:
		return "closed"
	default:
		return fmt.Sprintf("notice(%d)", int(k))
	}
}

// Notice is one state change together with the state after it.
type Notice struct {
	Kind  NoticeKind
	State State
	Err   error
}

// Listener receives notices synchronously, in mutation order, while the
// session lock is held. Implementations must not call back into the
// session from OnPlayback.
type Listener interface {
	OnPlayback(n Notice)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notice)

func (f ListenerFunc) OnPlayback(n Notice) { f(n) }

// ErrNoTrack is returned by transport operations when nothing is loaded.
var ErrNoTrack = errors.New("playback: no track loaded")

// ErrAborted matches a MediaError with CodeAborted.
var ErrAborted = errors.New("playback: load aborted")

// MediaErrorCode mirrors the classic media element error codes.
type MediaErrorCode int

const (
	CodeNone MediaErrorCode = iota
	CodeAborted
	CodeNetwork
	CodeDecode
	CodeSrcNotSupported
)

// MediaError is an error reported by the media element.
type MediaError struct {
	Code MediaErrorCode
	Err  error // underlying cause, if the element has one
}

func (e *MediaError) Error() string {
	var what string
	switch e.Code {
	case CodeAborted:
		what = "load aborted"
	case CodeNetwork:
		what = "network error"
	case CodeDecode:
		what = "decode error"
	case CodeSrcNotSupported:
		what = "source not supported"
	default:
		what = "unknown error"
	}
	if e.Err != nil {
		return fmt.Sprintf("media: %s: %v", what, e.Err)
	}
	return "media: " + what
}

func (e *MediaError) Is(target error) bool {
	return target == ErrAborted && e.Code == CodeAborted
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// PlaybackError is a terminal failure for one track.
type PlaybackError struct {
	TrackID string
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s: %v", e.TrackID, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
