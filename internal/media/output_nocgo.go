//go:build !((linux && cgo) || windows || darwin)

package media

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// AudioAvailable reports whether this build can produce sound. Without cgo
// there is no sound device; streams are still decoded and consumed in real
// time so position, duration and end-of-track behave as usual.
const AudioAvailable = false

const clockTick = 100 * time.Millisecond

// clockOutput drains streams at playback speed and discards the samples.
type clockOutput struct {
	mu    sync.Mutex
	mixer beep.Mixer
	once  sync.Once
	sr    beep.SampleRate
}

func newOutput() output {
	return &clockOutput{}
}

func (o *clockOutput) init(sr beep.SampleRate) error {
	o.once.Do(func() {
		o.sr = sr
		go o.run()
	})
	return nil
}

func (o *clockOutput) run() {
	buf := make([][2]float64, o.sr.N(clockTick))
	ticker := time.NewTicker(clockTick)
	defer ticker.Stop()
	for range ticker.C {
		o.mu.Lock()
		if o.mixer.Len() > 0 {
			o.mixer.Stream(buf)
		}
		o.mu.Unlock()
	}
}

func (o *clockOutput) play(s beep.Streamer) {
	o.mu.Lock()
	o.mixer.Add(s)
	o.mu.Unlock()
}

func (o *clockOutput) lock()   { o.mu.Lock() }
func (o *clockOutput) unlock() { o.mu.Unlock() }

func (o *clockOutput) clear() {
	o.mu.Lock()
	o.mixer.Clear()
	o.mu.Unlock()
}
