// Package transport mirrors playback state to OS-level media controls and
// routes their commands back into the player.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// Metadata describes the current track on a surface.
type Metadata struct {
	TrackID    string
	Title      string
	Artist     string
	ArtworkURL string
	Length     time.Duration
}

// Position is the scrubber state of a surface.
type Position struct {
	Position time.Duration
	Duration time.Duration
	Rate     float64
}

// Action is an inbound transport command.
type Action int

const (
	ActionPlay Action = iota
	ActionPause
	ActionNext
	ActionPrevious
	ActionSeekTo
)

// Actions lists every action a bridge registers.
var Actions = []Action{ActionPlay, ActionPause, ActionNext, ActionPrevious, ActionSeekTo}

func (a Action) String() string {
	switch a {
	case ActionPlay:
		return "play"
	case ActionPause:
		return "pause"
	case ActionNext:
		return "next"
	case ActionPrevious:
		return "previous"
	case ActionSeekTo:
		return "seekto"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Command is delivered to a Handler. Position is set for ActionSeekTo.
type Command struct {
	Action   Action
	Position time.Duration
}

// Handler reacts to an inbound command.
type Handler func(Command) error

// ErrUnsupported is returned by SetHandler when a surface cannot deliver
// an action. Bridges treat it as a soft failure.
var ErrUnsupported = errors.New("transport: action not supported by surface")

// Surface is one host media-control integration.
//
// Publishing methods are called while the playback session is locked and
// must return quickly.
type Surface interface {
	// Available reports whether the host offers this surface at all.
	Available() bool
	SetMetadata(Metadata) error
	SetPlaybackState(playing bool) error
	SetPosition(Position) error
	// SetHandler registers h for a; a nil h unregisters.
	SetHandler(a Action, h Handler) error
	// Clear removes everything the surface shows.
	Clear() error
}
