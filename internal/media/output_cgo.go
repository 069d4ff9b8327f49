//go:build (linux && cgo) || windows || darwin

package media

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// AudioAvailable reports whether this build can produce sound.
const AudioAvailable = true

// speakerOutput plays through the system sound device.
type speakerOutput struct {
	once sync.Once
	err  error
}

func newOutput() output {
	return &speakerOutput{}
}

func (o *speakerOutput) init(sr beep.SampleRate) error {
	o.once.Do(func() {
		o.err = speaker.Init(sr, sr.N(time.Second/10))
	})
	return o.err
}

func (o *speakerOutput) play(s beep.Streamer) { speaker.Play(s) }
func (o *speakerOutput) lock()                { speaker.Lock() }
func (o *speakerOutput) unlock()              { speaker.Unlock() }
func (o *speakerOutput) clear()               { speaker.Clear() }
