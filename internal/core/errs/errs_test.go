package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := New(BadInitState, "scheduler.Stop", "not running")

	if !errors.Is(err, ErrBadInitState) {
		t.Error("errors.Is(err, ErrBadInitState) = false, want true")
	}
	if errors.Is(err, ErrBadState) {
		t.Error("errors.Is(err, ErrBadState) = true, want false")
	}
}

func TestError_IsThroughWrapping(t *testing.T) {
	inner := New(ResourceNotReady, "asset.Bind", "mesh %q not compiled", "cube")
	outer := fmt.Errorf("draw frame: %w", inner)

	if !errors.Is(outer, ErrResourceNotReady) {
		t.Error("wrapped error lost its kind")
	}
	if got := KindOf(outer); got != ResourceNotReady {
		t.Errorf("KindOf = %v, want %v", got, ResourceNotReady)
	}
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{New(BadState, "asset.Bind", "already bound"), "asset.Bind: already bound"},
		{&Error{Kind: ThreadAffinityViolation}, "thread affinity violation"},
		{Wrap(BadState, "snapshot.Commit", errors.New("boom")), "snapshot.Commit: bad state: boom"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestKindOf_Foreign(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindUnknown)
	}
}
