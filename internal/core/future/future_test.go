package future

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFuture_ResolveOnce(t *testing.T) {
	f := New[int]()

	if _, _, ok := f.Poll(); ok {
		t.Fatal("Poll on fresh future reported ready")
	}
	if !f.Resolve(7, nil) {
		t.Error("first Resolve returned false")
	}
	if f.Resolve(9, errors.New("late")) {
		t.Error("second Resolve returned true")
	}

	v, err, ok := f.Poll()
	if !ok || v != 7 || err != nil {
		t.Errorf("Poll = (%d, %v, %v), want (7, nil, true)", v, err, ok)
	}
}

func TestFuture_WaitBlocksUntilResolved(t *testing.T) {
	f := New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve("ok", nil)
	}()

	v, err := f.Wait(context.Background())
	if err != nil || v != "ok" {
		t.Errorf("Wait = (%q, %v), want (\"ok\", nil)", v, err)
	}
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestResolved(t *testing.T) {
	want := errors.New("fail")
	f := Resolved(0, want)

	select {
	case <-f.Done():
	default:
		t.Fatal("Resolved future not done")
	}
	if _, err := f.Wait(context.Background()); err != want {
		t.Errorf("err = %v, want %v", err, want)
	}
}
