// Package media is the streaming media element behind a playback session.
// A source is downloaded into memory, decoded as MP3 and played through
// the sound device; progress is reported as playback events.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/internal/playback"
)

const (
	sampleRate     = beep.SampleRate(44100)
	progressTick   = 250 * time.Millisecond
	maxSourceBytes = 64 << 20
)

var errTooLarge = errors.New("source exceeds size limit")

// output is where decoded audio goes.
type output interface {
	init(sr beep.SampleRate) error
	play(s beep.Streamer)
	lock()
	unlock()
	clear()
}

// Element implements playback.Element.
type Element struct {
	client *http.Client
	out    output
	logger zerolog.Logger
	events *eventQueue

	mu       sync.Mutex
	cycle    uint64
	cancel   context.CancelFunc
	wantPlay bool
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	stopTick chan struct{}
}

// New creates an element that fetches sources with client.
func New(client *http.Client, logger zerolog.Logger) *Element {
	if client == nil {
		client = http.DefaultClient
	}
	return &Element{
		client: client,
		out:    newOutput(),
		logger: logger.With().Str("component", "media").Logger(),
		events: newEventQueue(),
	}
}

// Events delivers element events in order. It is closed by Close.
func (e *Element) Events() <-chan playback.Event {
	return e.events.out
}

func (e *Element) Load(cycle uint64, src string) {
	e.mu.Lock()
	e.stopLocked()
	e.cycle = cycle
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.out.clear()
	e.events.push(playback.Event{Cycle: cycle, Kind: playback.EventWaiting})
	go e.fetch(ctx, cycle, src)
}

func (e *Element) fetch(ctx context.Context, cycle uint64, src string) {
	data, err := e.download(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		code := playback.CodeNetwork
		var se *statusError
		if errors.As(err, &se) && se.unsupported() {
			code = playback.CodeSrcNotSupported
		}
		e.fail(cycle, code, err)
		return
	}

	streamer, format, err := mp3.Decode(seekCloser{bytes.NewReader(data)})
	if err != nil {
		e.fail(cycle, playback.CodeDecode, fmt.Errorf("decode: %w", err))
		return
	}

	if err := e.out.init(sampleRate); err != nil {
		_ = streamer.Close()
		e.fail(cycle, playback.CodeSrcNotSupported, fmt.Errorf("audio output: %w", err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cycle != cycle || ctx.Err() != nil {
		_ = streamer.Close()
		return
	}

	e.streamer = streamer
	e.format = format
	e.ctrl = &beep.Ctrl{
		Streamer: beep.Resample(4, format.SampleRate, sampleRate, streamer),
		Paused:   !e.wantPlay,
	}
	e.out.play(beep.Seq(e.ctrl, beep.Callback(func() {
		// Runs on the output goroutine with its lock held.
		go e.finish(cycle)
	})))

	duration := format.SampleRate.D(streamer.Len())
	e.logger.Debug().
		Uint64("cycle", cycle).
		Int("bytes", len(data)).
		Dur("duration", duration).
		Msg("Source ready")

	e.events.push(playback.Event{Cycle: cycle, Kind: playback.EventDurationChange, Duration: duration})
	e.events.push(playback.Event{Cycle: cycle, Kind: playback.EventCanPlay})
	if e.wantPlay {
		e.startLocked()
	}
}

func (e *Element) download(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxSourceBytes {
		return nil, errTooLarge
	}
	return data, nil
}

func (e *Element) fail(cycle uint64, code playback.MediaErrorCode, err error) {
	e.logger.Debug().Err(err).Uint64("cycle", cycle).Msg("Source failed")
	e.events.push(playback.Event{Cycle: cycle, Kind: playback.EventError, Code: code, Err: err})
}

func (e *Element) finish(cycle uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cycle != cycle || e.streamer == nil {
		return
	}
	e.stopTickLocked()
	pos := e.positionLocked()
	e.events.push(playback.Event{Cycle: cycle, Kind: playback.EventTimeUpdate, Position: pos})
	e.events.push(playback.Event{Cycle: cycle, Kind: playback.EventEnded, Position: pos})
}

// Play never fails once a source is loading; an unavailable sound device
// is reported as an error event instead.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wantPlay = true
	if e.ctrl == nil {
		return nil
	}
	e.out.lock()
	e.ctrl.Paused = false
	e.out.unlock()
	e.startLocked()
	return nil
}

func (e *Element) startLocked() {
	e.events.push(playback.Event{Cycle: e.cycle, Kind: playback.EventPlaying})
	if e.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	e.stopTick = stop
	go e.tick(e.cycle, stop)
}

func (e *Element) tick(cycle uint64, stop chan struct{}) {
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.cycle == cycle && e.streamer != nil {
				e.events.push(playback.Event{Cycle: cycle, Kind: playback.EventTimeUpdate, Position: e.positionLocked()})
			}
			e.mu.Unlock()
		}
	}
}

func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wantPlay = false
	e.stopTickLocked()
	if e.ctrl == nil {
		return
	}
	e.out.lock()
	e.ctrl.Paused = true
	e.out.unlock()
	e.events.push(playback.Event{Cycle: e.cycle, Kind: playback.EventPause, Position: e.positionLocked()})
}

// Seek is ignored until the source is decoded.
func (e *Element) Seek(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return
	}

	n := e.format.SampleRate.N(d)
	if n < 0 {
		n = 0
	}
	if last := e.streamer.Len() - 1; n > last && last >= 0 {
		n = last
	}

	e.out.lock()
	err := e.streamer.Seek(n)
	e.out.unlock()
	if err != nil {
		e.logger.Debug().Err(err).Dur("target", d).Msg("Seek failed")
		return
	}
	e.events.push(playback.Event{Cycle: e.cycle, Kind: playback.EventSeeked, Position: e.positionLocked()})
}

func (e *Element) Unload() {
	e.mu.Lock()
	e.stopLocked()
	e.mu.Unlock()
	e.out.clear()
}

// Close unloads and ends the Events stream.
func (e *Element) Close() {
	e.Unload()
	e.events.close()
}

// stopLocked cancels any download and releases the decoded stream. The
// caller clears the output afterwards, outside the element lock.
func (e *Element) stopLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.stopTickLocked()
	if e.ctrl != nil {
		e.out.lock()
		e.ctrl.Paused = true
		e.out.unlock()
		e.ctrl = nil
	}
	if e.streamer != nil {
		_ = e.streamer.Close()
		e.streamer = nil
	}
	e.wantPlay = false
}

func (e *Element) stopTickLocked() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
}

func (e *Element) positionLocked() time.Duration {
	if e.streamer == nil {
		return 0
	}
	e.out.lock()
	pos := e.streamer.Position()
	e.out.unlock()
	return e.format.SampleRate.D(pos)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("source returned status %d", e.code)
}

func (e *statusError) unsupported() bool {
	return e.code == http.StatusUnsupportedMediaType || e.code == http.StatusNotFound
}

// seekCloser keeps the reader seekable; the decoder needs that for Seek
// and Len.
type seekCloser struct {
	*bytes.Reader
}

func (seekCloser) Close() error { return nil }
