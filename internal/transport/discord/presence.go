// Package discord shows the current track as Discord Rich Presence.
// It is a publish-only transport surface.
package discord

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/internal/transport"
)

type rpcClient interface {
	SetActivity(*Activity) error
	Close() error
}

// Presence is a transport.Surface backed by the Discord IPC socket.
// Publishing only records the latest state; Run pushes it to Discord.
type Presence struct {
	appID   string
	logger  zerolog.Logger
	client  rpcClient
	connect func(string) (rpcClient, error)
	last    lastActivity
	now     func() time.Time

	mu   sync.Mutex
	cur  presenceState
	wake chan struct{}
}

type presenceState struct {
	meta     transport.Metadata
	playing  bool
	position time.Duration
	duration time.Duration
}

type lastActivity struct {
	trackID string
	playing bool
	start   int64
}

// Start times closer than this are treated as the same activity.
const startJitter = 2

func New(appID string, logger zerolog.Logger) *Presence {
	return &Presence{
		appID:  appID,
		logger: logger.With().Str("component", "discord").Logger(),
		connect: func(appID string) (rpcClient, error) {
			return ipcConnect(appID)
		},
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
}

// Available is true when an application id is configured. The socket
// itself is connected lazily.
func (p *Presence) Available() bool {
	return p.appID != ""
}

func (p *Presence) SetMetadata(m transport.Metadata) error {
	p.update(func(s *presenceState) {
		s.meta = m
		s.position = 0
		s.duration = m.Length
	})
	return nil
}

func (p *Presence) SetPlaybackState(playing bool) error {
	p.update(func(s *presenceState) { s.playing = playing })
	return nil
}

func (p *Presence) SetPosition(pos transport.Position) error {
	p.update(func(s *presenceState) {
		s.position = pos.Position
		s.duration = pos.Duration
	})
	return nil
}

// SetHandler always fails: Discord cannot send commands back.
func (p *Presence) SetHandler(transport.Action, transport.Handler) error {
	return transport.ErrUnsupported
}

func (p *Presence) Clear() error {
	p.update(func(s *presenceState) { *s = presenceState{} })
	return nil
}

func (p *Presence) update(fn func(*presenceState)) {
	p.mu.Lock()
	fn(&p.cur)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Presence) snapshot() presenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Run pushes state changes to Discord until ctx is done. If Discord isn't
// running it logs and retries on the next change.
func (p *Presence) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.clearActivity()
			p.close()
			return
		case <-p.wake:
			p.handle(p.snapshot())
		}
	}
}

func (p *Presence) handle(s presenceState) {
	if !s.playing || s.meta.TrackID == "" {
		if p.last.playing {
			p.clearActivity()
			p.last = lastActivity{}
		}
		return
	}

	start := p.now().Add(-s.position).Unix()
	cur := lastActivity{trackID: s.meta.TrackID, playing: true, start: start}
	if cur.trackID == p.last.trackID && p.last.playing && abs(cur.start-p.last.start) <= startJitter {
		return
	}

	if err := p.ensureConnected(); err != nil {
		p.logger.Warn().Err(err).Msg("Discord not available")
		return
	}

	a := listeningActivity(s.meta, start, s.duration)
	if err := p.client.SetActivity(a); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to set activity")
		p.close()
		return
	}
	p.last = cur
}

func (p *Presence) ensureConnected() error {
	if p.client != nil {
		return nil
	}
	client, err := p.connect(p.appID)
	if err != nil {
		return err
	}
	p.logger.Info().Msg("Connected to Discord")
	p.client = client
	return nil
}

func (p *Presence) clearActivity() {
	if p.client == nil {
		return
	}
	if err := p.client.SetActivity(nil); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to clear activity")
		p.close()
	}
}

func (p *Presence) close() {
	if p.client == nil {
		return
	}
	_ = p.client.Close()
	p.client = nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
