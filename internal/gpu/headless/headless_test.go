package headless

import (
	"context"
	"testing"
	"time"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/cacaoengine/cacao/internal/core/event"
	"go.uber.org/zap/zaptest"
)

type recorder struct{ events []any }

func (r *recorder) Publish(ev any) { r.events = append(r.events, ev) }

func TestBackend_ResourceBookkeeping(t *testing.T) {
	b := NewBackend(0, zaptest.NewLogger(t))
	if _, err := b.CompileResource(asset.KindMesh, "m", asset.Cube()); err == nil {
		t.Error("compile before Init succeeded")
	}
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	h, err := b.CompileResource(asset.KindMesh, "m", asset.Cube())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.CompileResource(asset.KindTexture, "bad", asset.TextureData{Width: 2, Height: 2, Channels: 4}); err == nil {
		t.Error("texture with missing pixels compiled")
	}
	if err := b.BindResource(h); err != nil {
		t.Fatal(err)
	}
	if st := b.Stats(); st.Live != 1 || st.Bound != 1 {
		t.Errorf("stats = %+v, want 1 live 1 bound", st)
	}
	if err := b.Shutdown(); err == nil {
		t.Error("Shutdown with live resources succeeded")
	}
}

func TestBackend_WaitIdleHonorsContext(t *testing.T) {
	b := NewBackend(time.Hour, zaptest.NewLogger(t))
	_ = b.Init()
	_ = b.Present()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.WaitIdle(ctx); err == nil {
		t.Error("WaitIdle returned nil with an hour of work in flight")
	}

	fast := NewBackend(time.Millisecond, zaptest.NewLogger(t))
	_ = fast.Init()
	_ = fast.Present()
	if err := fast.WaitIdle(context.Background()); err != nil {
		t.Errorf("WaitIdle: %v", err)
	}
}

func TestWindow_PublishesInjectedEvents(t *testing.T) {
	w := NewWindow(800, 600)
	w.Inject(event.KeyDown{Key: 32})
	w.Inject(event.WindowResized{Width: 1024, Height: 768})
	w.Close()

	var r recorder
	w.PollEvents(&r)
	if len(r.events) != 4 {
		t.Fatalf("events = %v, want initial resize + 3", r.events)
	}
	if _, ok := r.events[3].(event.WindowClosed); !ok {
		t.Errorf("last event = %T, want WindowClosed", r.events[3])
	}
	if wd, ht := w.Size(); wd != 1024 || ht != 768 {
		t.Errorf("Size = %dx%d, want 1024x768", wd, ht)
	}

	r.events = nil
	w.PollEvents(&r)
	if len(r.events) != 0 || w.Polls() != 2 {
		t.Errorf("second poll events = %d, polls = %d", len(r.events), w.Polls())
	}
}
