package asset

import (
	"errors"
	"testing"

	"github.com/cacaoengine/cacao/internal/core/errs"
	"github.com/cacaoengine/cacao/internal/core/future"
	"go.uber.org/zap/zaptest"
)

// fakeGPU runs marshaled jobs inline and reports affinity from a flag.
type fakeGPU struct {
	onThread bool
	jobs     int
}

func (g *fakeGPU) CheckAffinity(op string) error {
	if !g.onThread {
		return errs.New(errs.ThreadAffinityViolation, op, "called off the GPU goroutine")
	}
	return nil
}

func (g *fakeGPU) RunOnGPUThread(fn func() error) *future.Future[struct{}] {
	g.jobs++
	prev := g.onThread
	g.onThread = true
	err := fn()
	g.onThread = prev
	return future.Resolved(struct{}{}, err)
}

type fakeBackend struct {
	next     Handle
	compiled map[Handle]string
	bound    map[Handle]bool
	failNext error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{compiled: map[Handle]string{}, bound: map[Handle]bool{}}
}

func (b *fakeBackend) CompileResource(kind Kind, name string, payload any) (Handle, error) {
	if err := b.failNext; err != nil {
		b.failNext = nil
		return 0, err
	}
	b.next++
	b.compiled[b.next] = name
	return b.next, nil
}

func (b *fakeBackend) ReleaseResource(h Handle) error {
	delete(b.compiled, h)
	return nil
}

func (b *fakeBackend) BindResource(h Handle) error {
	b.bound[h] = true
	return nil
}

func (b *fakeBackend) UnbindResource(h Handle) error {
	delete(b.bound, h)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeGPU, *fakeBackend) {
	t.Helper()
	gpu := &fakeGPU{onThread: true}
	backend := newFakeBackend()
	return NewRegistry(gpu, backend, zaptest.NewLogger(t)), gpu, backend
}

func wantKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	if got := errs.KindOf(err); got != kind {
		t.Fatalf("error kind = %v (%v), want %v", got, err, kind)
	}
}

func TestResource_Lifecycle(t *testing.T) {
	reg, _, backend := newTestRegistry(t)
	mesh, err := reg.Mesh("cube", Cube())
	if err != nil {
		t.Fatal(err)
	}
	if mesh.State() != StatePending || mesh.Ready() {
		t.Fatalf("new mesh state = %v, ready = %v", mesh.State(), mesh.Ready())
	}

	if err := mesh.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !mesh.Ready() || mesh.Handle() == 0 {
		t.Fatalf("compiled mesh not ready: state %v handle %d", mesh.State(), mesh.Handle())
	}
	if err := mesh.Bind(); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !backend.bound[mesh.Handle()] {
		t.Error("backend did not see bind")
	}
	if err := mesh.Unbind(); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if err := mesh.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mesh.State() != StateReleased || len(backend.compiled) != 0 {
		t.Errorf("after release: state %v, backend holds %d", mesh.State(), len(backend.compiled))
	}
}

func TestResource_StateErrors(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	tex, _ := reg.Texture("white", TextureData{Width: 1, Height: 1, Channels: 4, Pixels: []byte{255, 255, 255, 255}})

	wantKind(t, tex.Bind(), errs.ResourceNotReady)
	wantKind(t, tex.Release(), errs.BadState)
	wantKind(t, tex.Unbind(), errs.BadState)

	if err := tex.Compile(); err != nil {
		t.Fatal(err)
	}
	wantKind(t, tex.Compile(), errs.BadState)

	if err := tex.Bind(); err != nil {
		t.Fatal(err)
	}
	wantKind(t, tex.Bind(), errs.BadState)
	wantKind(t, tex.Release(), errs.BadState)

	if err := tex.Unbind(); err != nil {
		t.Fatal(err)
	}
	if err := tex.Release(); err != nil {
		t.Fatal(err)
	}
	wantKind(t, tex.Compile(), errs.BadState)
	wantKind(t, tex.Bind(), errs.ResourceNotReady)
}

func TestResource_OffThreadCallIsAffinityViolation(t *testing.T) {
	reg, gpu, backend := newTestRegistry(t)
	sh, _ := reg.Shader("basic", ShaderSource{Vertex: "v", Fragment: "f"})

	gpu.onThread = false
	err := sh.Compile()
	wantKind(t, err, errs.ThreadAffinityViolation)
	if !errors.Is(err, errs.ErrThreadAffinity) {
		t.Errorf("errors.Is(%v, ErrThreadAffinity) = false", err)
	}
	if len(backend.compiled) != 0 {
		t.Error("backend ran despite affinity violation")
	}

	if _, err, _ := sh.CompileAsync().Poll(); err != nil {
		t.Fatalf("CompileAsync: %v", err)
	}
	if gpu.jobs != 1 || !sh.Ready() {
		t.Errorf("jobs = %d, ready = %v; want marshaled compile", gpu.jobs, sh.Ready())
	}
}

func TestResource_CompileFailureStaysPending(t *testing.T) {
	reg, _, backend := newTestRegistry(t)
	q, _ := reg.Mesh("quad", Quad())
	backend.failNext = errors.New("out of memory")

	if err := q.Compile(); err == nil {
		t.Fatal("Compile succeeded with failing backend")
	}
	if q.State() != StatePending {
		t.Errorf("state = %v, want pending", q.State())
	}
	if err := q.Compile(); err != nil {
		t.Errorf("retry Compile: %v", err)
	}
}

func TestRegistry_DeduplicatesByContent(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	a, _ := reg.Mesh("crate", Cube())
	b, _ := reg.Mesh("box", Cube())
	if a != b {
		t.Error("identical mesh data produced two resources")
	}
	if got := len(reg.Resources()); got != 1 {
		t.Errorf("Resources() = %d, want 1", got)
	}
	if res, ok := reg.Lookup("box"); !ok || res != a {
		t.Error("Lookup(box) did not return the shared resource")
	}
	if _, err := reg.Mesh("crate", Quad()); err == nil {
		t.Error("re-registering a name with different content succeeded")
	}
}

func TestRegistry_ReleaseAll(t *testing.T) {
	reg, _, backend := newTestRegistry(t)
	cube, _ := reg.Mesh("cube", Cube())
	quad, _ := reg.Mesh("quad", Quad())
	_, _ = reg.Shader("never-compiled", ShaderSource{Vertex: "v"})

	for _, r := range []*Resource{cube, quad} {
		if err := r.Compile(); err != nil {
			t.Fatal(err)
		}
	}
	if err := cube.Bind(); err != nil {
		t.Fatal(err)
	}

	if err := reg.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll: %v", err)
	}
	if cube.State() != StateReleased || quad.State() != StateReleased {
		t.Errorf("states = %v/%v, want released", cube.State(), quad.State())
	}
	if len(backend.compiled) != 0 || len(backend.bound) != 0 {
		t.Errorf("backend still holds %d compiled, %d bound", len(backend.compiled), len(backend.bound))
	}
}
