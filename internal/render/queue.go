// Package render hands committed frames from the tick goroutine to the GPU
// goroutine.
package render

import (
	"sync"
	"time"

	"github.com/cacaoengine/cacao/internal/snapshot"
	"go.uber.org/zap"
)

// Frame is one render request. Ownership passes to the consumer on dequeue.
type Frame struct {
	Seq        uint64
	EnqueuedAt time.Time
	Snapshot   *snapshot.WorldSnapshot
}

// Queue is a bounded FIFO of frames. It never blocks the producer: once it
// holds more than maxLag+1 frames the oldest are dropped.
type Queue struct {
	log    *zap.Logger
	maxLag int

	mu           sync.Mutex
	frames       []*Frame
	nextSeq      uint64
	dropped      uint64
	discarded    uint64
	shuttingDown bool

	ready chan struct{} // buffered(1); signalled on enqueue
}

func NewQueue(maxLag int, log *zap.Logger) *Queue {
	if maxLag < 0 {
		maxLag = 0
	}
	return &Queue{
		log:    log,
		maxLag: maxLag,
		frames: make([]*Frame, 0, maxLag+2),
		ready:  make(chan struct{}, 1),
	}
}

// MaxLag returns the configured lag bound.
func (q *Queue) MaxLag() int { return q.maxLag }

// EnqueueFrame wraps snap in a Frame and appends it. While shutting down the
// snapshot is discarded and nil is returned.
func (q *Queue) EnqueueFrame(snap *snapshot.WorldSnapshot) *Frame {
	q.mu.Lock()
	if q.shuttingDown {
		q.discarded++
		q.mu.Unlock()
		q.log.Debug("frame discarded during shutdown")
		return nil
	}
	q.nextSeq++
	f := &Frame{Seq: q.nextSeq, EnqueuedAt: time.Now(), Snapshot: snap}
	q.frames = append(q.frames, f)
	evicted := 0
	if over := len(q.frames) - (q.maxLag + 1); over > 0 {
		clear(q.frames[:over])
		q.frames = append(q.frames[:0], q.frames[over:]...)
		q.dropped += uint64(over)
		evicted = over
	}
	q.mu.Unlock()

	if evicted > 0 {
		q.log.Debug("frames dropped", zap.Int("count", evicted), zap.Uint64("seq", f.Seq))
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return f
}

// Next returns the frame the GPU goroutine should draw, or nil when the
// queue is empty. If the consumer has fallen more than maxLag frames behind
// it skips to the newest frame and drops the rest.
func (q *Queue) Next() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	if n == 0 {
		return nil
	}
	if n > q.maxLag {
		f := q.frames[n-1]
		q.dropped += uint64(n - 1)
		clear(q.frames)
		q.frames = q.frames[:0]
		return f
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f
}

// ClearRenderQueue drops every queued frame. Used on mode changes, backend
// resets, and at shutdown.
func (q *Queue) ClearRenderQueue() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	clear(q.frames)
	q.frames = q.frames[:0]
	return n
}

// SetShuttingDown makes every later EnqueueFrame a silent discard.
func (q *Queue) SetShuttingDown() {
	q.mu.Lock()
	q.shuttingDown = true
	q.mu.Unlock()
}

// Ready is signalled after an enqueue. It coalesces, so a receiver must
// drain with Next until it returns nil.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped counts frames evicted by the lag policy.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Discarded counts frames refused during shutdown.
func (q *Queue) Discarded() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discarded
}

// Seqs returns the sequence numbers currently queued, oldest first.
func (q *Queue) Seqs() []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uint64, len(q.frames))
	for i, f := range q.frames {
		out[i] = f.Seq
	}
	return out
}
