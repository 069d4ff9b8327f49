package playback

import (
	"fmt"
	"time"
)

// Element is the single streaming media element. Methods are called with
// the session lock held and must not deliver events synchronously; events
// are fed back through Session.HandleEvent from another goroutine.
type Element interface {
	// Load replaces the source. Events produced for this source must carry
	// cycle so stale ones can be dropped.
	Load(cycle uint64, src string)
	// Play requests playback; an error means the request was rejected.
	Play() error
	Pause()
	Seek(d time.Duration)
	// Unload stops playback and detaches the source.
	Unload()
}

// EventKind is a media element signal.
type EventKind int

const (
	EventWaiting        EventKind = iota // not enough data to continue
	EventCanPlay                         // enough data to start or resume
	EventPlaying                         // audio is actually being produced
	EventPause                           // element paused, for any reason
	EventTimeUpdate                      // Position advanced
	EventDurationChange                  // Duration reported
	EventSeeked                          // a seek completed
	EventEnded                           // reached end of stream
	EventError                           // Code describes the failure
)

func (k EventKind) String() string {
	switch k {
	case EventWaiting:
		return "waiting"
	case EventCanPlay:
		return "canplay"
	case EventPlaying:
		return "playing"
	case EventPause:
		return "pause"
	case EventTimeUpdate:
		return "timeupdate"
	case EventDurationChange:
		return "durationchange"
	case EventSeeked:
		return "seeked"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by an Element.
type Event struct {
	Cycle    uint64
	Kind     EventKind
	Position time.Duration
	Duration time.Duration
	Code     MediaErrorCode
	Err      error
}
