package mpris

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

// Remote drives a running player through its MPRIS2 interface.
type Remote struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the session bus and targets org.mpris.MediaPlayer2.<name>.
func Dial(name string) (*Remote, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	var owned bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, busPrefix+name).Store(&owned); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("query bus name: %w", err)
	}
	if !owned {
		_ = conn.Close()
		return nil, fmt.Errorf("no player running on %s", busPrefix+name)
	}

	return &Remote{
		conn: conn,
		obj:  conn.Object(busPrefix+name, objectPath),
	}, nil
}

func (r *Remote) Close() error {
	return r.conn.Close()
}

func (r *Remote) Play(ctx context.Context) error      { return r.call(ctx, "Play") }
func (r *Remote) Pause(ctx context.Context) error     { return r.call(ctx, "Pause") }
func (r *Remote) PlayPause(ctx context.Context) error { return r.call(ctx, "PlayPause") }
func (r *Remote) Next(ctx context.Context) error      { return r.call(ctx, "Next") }
func (r *Remote) Previous(ctx context.Context) error  { return r.call(ctx, "Previous") }

// Seek moves playback by offset relative to the current position.
func (r *Remote) Seek(ctx context.Context, offset time.Duration) error {
	return r.call(ctx, "Seek", offset.Microseconds())
}

func (r *Remote) call(ctx context.Context, method string, args ...interface{}) error {
	if err := r.obj.CallWithContext(ctx, playerIface+"."+method, 0, args...).Err; err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}
