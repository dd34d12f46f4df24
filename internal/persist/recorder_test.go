package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type memWriter struct {
	mu      sync.Mutex
	batches [][]TickSample
	block   chan struct{}
	err     error
}

func (w *memWriter) InsertBatch(ctx context.Context, samples []TickSample) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, samples)
	return nil
}

func TestRecorder_BatchesAndFlushesOnClose(t *testing.T) {
	w := &memWriter{}
	r := NewRecorder(w, 4, 8, time.Second, zaptest.NewLogger(t))
	go r.Run()

	for i := range 10 {
		r.Record(TickSample{Tick: uint64(i + 1)})
	}
	r.Close()

	written, dropped, failed := r.Stats()
	if written != 10 || dropped != 0 || failed != 0 {
		t.Errorf("stats = %d/%d/%d, want 10/0/0", written, dropped, failed)
	}
	var sizes []int
	for _, b := range w.batches {
		sizes = append(sizes, len(b))
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("batch sizes = %v, want [4 4 2]", sizes)
	}
	if w.batches[2][1].Tick != 10 {
		t.Errorf("last sample tick = %d, want 10", w.batches[2][1].Tick)
	}
}

func TestRecorder_DropsWhenWriterStalls(t *testing.T) {
	w := &memWriter{block: make(chan struct{})}
	r := NewRecorder(w, 1, 1, time.Second, zaptest.NewLogger(t))
	go r.Run()

	start := time.Now()
	for i := range 50 {
		r.Record(TickSample{Tick: uint64(i)})
	}
	if time.Since(start) > time.Second {
		t.Fatal("Record blocked on a stalled writer")
	}
	close(w.block)
	r.Close()

	written, dropped, _ := r.Stats()
	if written+dropped != 50 || dropped == 0 {
		t.Errorf("written = %d, dropped = %d; want some dropped, 50 total", written, dropped)
	}
}

func TestRecorder_CountsFailures(t *testing.T) {
	w := &memWriter{err: errors.New("db down")}
	r := NewRecorder(w, 2, 4, time.Second, zaptest.NewLogger(t))
	go r.Run()
	for range 4 {
		r.Record(TickSample{})
	}
	r.Close()
	if _, _, failed := r.Stats(); failed != 4 {
		t.Errorf("failed = %d, want 4", failed)
	}
}
