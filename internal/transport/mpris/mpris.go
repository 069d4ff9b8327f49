// Package mpris exposes the player on the D-Bus session bus using the
// MPRIS2 interfaces, so desktop media keys and shell widgets can see and
// control it.
package mpris

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/internal/transport"
)

const (
	objectPath  = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootIface   = "org.mpris.MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"
	busPrefix   = "org.mpris.MediaPlayer2."

	noTrack = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")

	// A published position further than this from where playback should
	// be is reported to clients as a seek.
	seekThreshold = 3 * time.Second
)

// Surface is an MPRIS2 media player on the session bus.
type Surface struct {
	conn   *dbus.Conn
	props  *prop.Properties
	logger zerolog.Logger

	mu        sync.Mutex
	handlers  map[transport.Action]transport.Handler
	playing   bool
	position  time.Duration
	updatedAt time.Time
	track     dbus.ObjectPath

	now func() time.Time
}

// New connects to the session bus and claims org.mpris.MediaPlayer2.<name>.
func New(name, identity string, logger zerolog.Logger) (*Surface, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	s := &Surface{
		conn:     conn,
		logger:   logger.With().Str("component", "mpris").Logger(),
		handlers: make(map[transport.Action]transport.Handler),
		track:    noTrack,
		now:      time.Now,
	}

	if err := s.export(identity); err != nil {
		_ = conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(busPrefix+name, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", busPrefix+name)
	}

	s.logger.Info().Str("bus_name", busPrefix+name).Msg("MPRIS surface registered")
	return s, nil
}

func (s *Surface) export(identity string) error {
	root := &rootObject{}
	player := &playerObject{s: s}

	if err := s.conn.Export(root, objectPath, rootIface); err != nil {
		return fmt.Errorf("export root: %w", err)
	}
	if err := s.conn.Export(player, objectPath, playerIface); err != nil {
		return fmt.Errorf("export player: %w", err)
	}

	props, err := prop.Export(s.conn, objectPath, prop.Map{
		rootIface: {
			"CanQuit":             ro(false),
			"CanRaise":            ro(false),
			"HasTrackList":        ro(false),
			"Identity":            ro(identity),
			"SupportedUriSchemes": ro([]string{}),
			"SupportedMimeTypes":  ro([]string{}),
		},
		playerIface: {
			"PlaybackStatus": emitting("Stopped"),
			"LoopStatus":     ro("None"),
			"Rate":           ro(1.0),
			"Shuffle":        ro(false),
			"Metadata":       emitting(emptyMetadata()),
			"Volume":         ro(1.0),
			"Position":       {Value: int64(0), Writable: false, Emit: prop.EmitFalse},
			"MinimumRate":    ro(1.0),
			"MaximumRate":    ro(1.0),
			"CanGoNext":      emitting(false),
			"CanGoPrevious":  emitting(false),
			"CanPlay":        emitting(false),
			"CanPause":       emitting(false),
			"CanSeek":        emitting(false),
			"CanControl":     ro(true),
		},
	})
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	s.props = props

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: rootIface, Methods: introspect.Methods(root), Properties: props.Introspection(rootIface)},
			{
				Name:       playerIface,
				Methods:    introspect.Methods(player),
				Properties: props.Introspection(playerIface),
				Signals: []introspect.Signal{{
					Name: "Seeked",
					Args: []introspect.Arg{{Name: "Position", Type: "x"}},
				}},
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

func ro(v interface{}) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitConst}
}

func emitting(v interface{}) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
}

func emptyMetadata() map[string]dbus.Variant {
	return map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(noTrack)}
}

// Available reports whether the bus connection is up.
func (s *Surface) Available() bool {
	return s != nil && s.conn != nil && s.conn.Connected()
}

func (s *Surface) SetMetadata(m transport.Metadata) error {
	path := trackPath(m.TrackID)
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(path),
		"xesam:title":   dbus.MakeVariant(m.Title),
		"xesam:artist":  dbus.MakeVariant([]string{m.Artist}),
	}
	if m.Length > 0 {
		md["mpris:length"] = dbus.MakeVariant(m.Length.Microseconds())
	}
	if m.ArtworkURL != "" {
		md["mpris:artUrl"] = dbus.MakeVariant(m.ArtworkURL)
	}

	s.mu.Lock()
	s.track = path
	s.position = 0
	s.updatedAt = s.now()
	canSeek := s.handlers[transport.ActionSeekTo] != nil
	s.mu.Unlock()

	s.props.SetMust(playerIface, "Metadata", md)
	s.props.SetMust(playerIface, "Position", int64(0))
	s.props.SetMust(playerIface, "CanSeek", canSeek)
	return nil
}

func (s *Surface) SetPlaybackState(playing bool) error {
	s.mu.Lock()
	s.playing = playing
	s.mu.Unlock()

	status := "Paused"
	if playing {
		status = "Playing"
	}
	s.props.SetMust(playerIface, "PlaybackStatus", status)
	return nil
}

func (s *Surface) SetPosition(p transport.Position) error {
	s.mu.Lock()
	expected := s.position
	if s.playing {
		expected += s.now().Sub(s.updatedAt)
	}
	s.position = p.Position
	s.updatedAt = s.now()
	s.mu.Unlock()

	us := p.Position.Microseconds()
	s.props.SetMust(playerIface, "Position", us)

	drift := p.Position - expected
	if drift < 0 {
		drift = -drift
	}
	if drift > seekThreshold {
		if err := s.conn.Emit(objectPath, playerIface+".Seeked", us); err != nil {
			return fmt.Errorf("emit seeked: %w", err)
		}
	}
	return nil
}

func (s *Surface) SetHandler(a transport.Action, h transport.Handler) error {
	s.mu.Lock()
	if h == nil {
		delete(s.handlers, a)
	} else {
		s.handlers[a] = h
	}
	s.mu.Unlock()

	enabled := h != nil
	switch a {
	case transport.ActionPlay:
		s.props.SetMust(playerIface, "CanPlay", enabled)
	case transport.ActionPause:
		s.props.SetMust(playerIface, "CanPause", enabled)
	case transport.ActionNext:
		s.props.SetMust(playerIface, "CanGoNext", enabled)
	case transport.ActionPrevious:
		s.props.SetMust(playerIface, "CanGoPrevious", enabled)
	case transport.ActionSeekTo:
		s.props.SetMust(playerIface, "CanSeek", enabled)
	default:
		return transport.ErrUnsupported
	}
	return nil
}

func (s *Surface) Clear() error {
	s.mu.Lock()
	s.track = noTrack
	s.playing = false
	s.position = 0
	s.mu.Unlock()

	s.props.SetMust(playerIface, "PlaybackStatus", "Stopped")
	s.props.SetMust(playerIface, "Metadata", emptyMetadata())
	s.props.SetMust(playerIface, "Position", int64(0))
	return nil
}

// Close releases the bus connection.
func (s *Surface) Close() error {
	return s.conn.Close()
}

func (s *Surface) dispatch(cmd transport.Command) *dbus.Error {
	s.mu.Lock()
	h := s.handlers[cmd.Action]
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h(cmd); err != nil {
		s.logger.Debug().Err(err).Stringer("action", cmd.Action).Msg("Command failed")
		return dbus.MakeFailedError(err)
	}
	return nil
}

// trackPath maps a catalog id onto a valid object path element.
func trackPath(id string) dbus.ObjectPath {
	if id == "" {
		return noTrack
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return dbus.ObjectPath("/org/tgplay/track/t" + b.String())
}

type rootObject struct{}

func (rootObject) Raise() *dbus.Error { return nil }
func (rootObject) Quit() *dbus.Error  { return nil }

type playerObject struct {
	s *Surface
}

func (p *playerObject) Next() *dbus.Error {
	return p.s.dispatch(transport.Command{Action: transport.ActionNext})
}

func (p *playerObject) Previous() *dbus.Error {
	return p.s.dispatch(transport.Command{Action: transport.ActionPrevious})
}

func (p *playerObject) Play() *dbus.Error {
	return p.s.dispatch(transport.Command{Action: transport.ActionPlay})
}

func (p *playerObject) Pause() *dbus.Error {
	return p.s.dispatch(transport.Command{Action: transport.ActionPause})
}

// Stop is mapped to pause; the session has no stopped state short of close.
func (p *playerObject) Stop() *dbus.Error {
	return p.s.dispatch(transport.Command{Action: transport.ActionPause})
}

func (p *playerObject) PlayPause() *dbus.Error {
	p.s.mu.Lock()
	playing := p.s.playing
	p.s.mu.Unlock()

	if playing {
		return p.Pause()
	}
	return p.Play()
}

// Seek moves relative to the current position, in microseconds.
func (p *playerObject) Seek(offset int64) *dbus.Error {
	p.s.mu.Lock()
	pos := p.s.position
	if p.s.playing {
		pos += p.s.now().Sub(p.s.updatedAt)
	}
	p.s.mu.Unlock()

	target := pos + time.Duration(offset)*time.Microsecond
	if target < 0 {
		target = 0
	}
	return p.s.dispatch(transport.Command{Action: transport.ActionSeekTo, Position: target})
}

// SetPosition is ignored unless trackID names the current track.
func (p *playerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	p.s.mu.Lock()
	current := p.s.track
	p.s.mu.Unlock()

	if trackID != current || position < 0 {
		return nil
	}
	return p.s.dispatch(transport.Command{
		Action:   transport.ActionSeekTo,
		Position: time.Duration(position) * time.Microsecond,
	})
}

func (p *playerObject) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(transport.ErrUnsupported)
}
