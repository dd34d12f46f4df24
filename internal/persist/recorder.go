package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SampleWriter persists a batch of samples.
type SampleWriter interface {
	InsertBatch(ctx context.Context, samples []TickSample) error
}

// Recorder batches samples on the tick goroutine and writes them on its own
// goroutine. Record never blocks: when the writer falls behind by more than
// the buffer, whole batches are dropped.
type Recorder struct {
	writer  SampleWriter
	log     *zap.Logger
	size    int
	timeout time.Duration

	batch []TickSample // tick goroutine only
	ch    chan []TickSample

	closeOnce sync.Once
	done      chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder flushes every batchSize samples and keeps up to buffer
// batches in flight.
func NewRecorder(w SampleWriter, batchSize, buffer int, timeout time.Duration, log *zap.Logger) *Recorder {
	batchSize = max(batchSize, 1)
	buffer = max(buffer, 1)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{
		writer:  w,
		log:     log,
		size:    batchSize,
		timeout: timeout,
		batch:   make([]TickSample, 0, batchSize),
		ch:      make(chan []TickSample, buffer),
		done:    make(chan struct{}),
	}
}

// Record appends a sample; a full batch is handed to the writer.
func (r *Recorder) Record(s TickSample) {
	r.batch = append(r.batch, s)
	if len(r.batch) >= r.size {
		r.handoff()
	}
}

func (r *Recorder) handoff() {
	if len(r.batch) == 0 {
		return
	}
	batch := r.batch
	r.batch = make([]TickSample, 0, r.size)
	select {
	case r.ch <- batch:
	default:
		r.dropped.Add(uint64(len(batch)))
		r.log.Debug("telemetry batch dropped", zap.Int("samples", len(batch)))
	}
}

// Run writes batches until Close; it returns after the last batch is written.
func (r *Recorder) Run() {
	defer close(r.done)
	for batch := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.writer.InsertBatch(ctx, batch)
		cancel()
		if err != nil {
			r.failed.Add(uint64(len(batch)))
			r.log.Error("telemetry write failed", zap.Int("samples", len(batch)), zap.Error(err))
			continue
		}
		r.written.Add(uint64(len(batch)))
	}
}

// Close hands off the partial batch and waits for the writer to finish.
// Must be called from the goroutine that calls Record, after the last
// Record, and only once Run has been started.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.handoff()
		close(r.ch)
	})
	<-r.done
}

// Stats returns samples written, dropped, and failed.
func (r *Recorder) Stats() (written, dropped, failed uint64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}
