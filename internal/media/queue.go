package media

import (
	"sync"

	"github.com/jfmyers9/tgplay/internal/playback"
)

// eventQueue is an unbounded FIFO in front of the Events channel. Push
// never blocks, so element methods called under the session lock can
// report events without waiting on the consumer.
type eventQueue struct {
	mu      sync.Mutex
	pending []playback.Event
	signal  chan struct{}
	out     chan playback.Event
	done    chan struct{}
	once    sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan playback.Event),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(ev playback.Event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			select {
			case q.out <- ev:
			case <-q.done:
				return
			}
		}

		select {
		case <-q.signal:
		case <-q.done:
			return
		}
	}
}

func (q *eventQueue) close() {
	q.once.Do(func() { close(q.done) })
}
