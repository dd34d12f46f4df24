package scene

import (
	"strings"
	"testing"
	"time"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/cacaoengine/cacao/internal/core/ecs"
	"github.com/cacaoengine/cacao/internal/core/event"
	"github.com/cacaoengine/cacao/internal/core/future"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap/zaptest"
)

type inlineGPU struct{}

func (inlineGPU) CheckAffinity(string) error { return nil }
func (inlineGPU) RunOnGPUThread(fn func() error) *future.Future[struct{}] {
	return future.Resolved(struct{}{}, fn())
}

type nopBackend struct{ next asset.Handle }

func (b *nopBackend) CompileResource(asset.Kind, string, any) (asset.Handle, error) {
	b.next++
	return b.next, nil
}
func (b *nopBackend) ReleaseResource(asset.Handle) error { return nil }
func (b *nopBackend) BindResource(asset.Handle) error    { return nil }
func (b *nopBackend) UnbindResource(asset.Handle) error  { return nil }

type stubScript struct {
	path string
	id   ecs.EntityID
}

func (s *stubScript) Kind() Kind                      { return KindScript }
func (s *stubScript) Enabled() bool                   { return true }
func (s *stubScript) OnStart() error                  { return nil }
func (s *stubScript) OnTick(time.Duration) error      { return nil }
func (s *stubScript) OnFixedTick(time.Duration) error { return nil }

type stubFactory struct{ made []string }

func (f *stubFactory) NewScript(w *World, id ecs.EntityID, path string) (ScriptComponent, error) {
	f.made = append(f.made, w.Path(id)+":"+path)
	return &stubScript{path: path, id: id}, nil
}

const demoWorld = `
name: demo
camera:
  position: [0, 2, 8]
  fov: 70
skybox:
  texture: sky
meshes:
  cube: {primitive: cube}
  tri:
    positions: [[0, 0, 0], [1, 0, 0], [0, 1, 0]]
textures:
  sky: {width: 2, height: 2, color: [0.2, 0.3, 0.8, 1]}
materials:
  red: {color: [1, 0, 0, 1]}
entities:
  - name: E1
    position: [1, 0, 0]
    components:
      - script: spin.lua
      - mesh: cube
        material: red
    children:
      - name: child
        position: [0, 1, 0]
        components:
          - mesh: tri
  - name: E2
    components:
      - script: spin.lua
  - name: E3
    active: false
    components:
      - script: spin.lua
`

func newTestRegistry(t *testing.T) *asset.Registry {
	t.Helper()
	return asset.NewRegistry(inlineGPU{}, &nopBackend{}, zaptest.NewLogger(t))
}

func TestBuild_DemoWorld(t *testing.T) {
	f, err := Parse([]byte(demoWorld))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	scripts := &stubFactory{}
	w, err := Build(f, newTestRegistry(t), scripts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	roots := w.Entities().Roots()
	if len(roots) != 3 {
		t.Fatalf("roots = %d, want 3", len(roots))
	}
	if got := len(scripts.made); got != 3 {
		t.Errorf("scripts made = %d, want 3", got)
	}
	if w.Entities().Active(roots[2]) {
		t.Error("E3 should be inactive")
	}
	if w.Skybox() == nil || w.Skybox().Texture == nil {
		t.Error("skybox not built")
	}
	if w.Camera().FOV != 70 || w.Camera().Yaw != -90 {
		t.Errorf("camera fov/yaw = %v/%v, want 70/-90", w.Camera().FOV, w.Camera().Yaw)
	}

	child := w.Entities().Children(roots[0])[0]
	if got := w.Path(child); got != "E1/child" {
		t.Errorf("Path = %q, want E1/child", got)
	}
	pos := w.WorldMatrix(child).Col(3)
	if !pos.ApproxEqual(mgl32.Vec4{1, 1, 0, 1}) {
		t.Errorf("child world position = %v, want (1,1,0)", pos)
	}

	meshes := 0
	for _, mc := range w.Meshes() {
		meshes++
		if mc.Mesh == nil {
			t.Error("mesh component without resource")
		}
	}
	if meshes != 2 {
		t.Errorf("mesh components = %d, want 2", meshes)
	}
}

func TestParse_ReportsEntityPath(t *testing.T) {
	_, err := Parse([]byte(`
name: broken
entities:
  - name: parent
    children:
      - name: kid
        components:
          - mesh: missing
`))
	if err == nil {
		t.Fatal("Parse accepted unknown mesh")
	}
	if !strings.Contains(err.Error(), `parent/kid: unknown mesh "missing"`) {
		t.Errorf("error %q does not name the entity path", err)
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("name: x\nentites: []\n")); err == nil {
		t.Error("Parse accepted a misspelled key")
	}
}

func TestParse_CollectsEveryProblem(t *testing.T) {
	_, err := Parse([]byte(`
meshes:
  bad: {positions: [[0,0,0]], indices: [0, 1, 2]}
entities:
  - name: a
    components:
      - {script: a.lua, mesh: bad}
`))
	if err == nil {
		t.Fatal("Parse accepted invalid file")
	}
	for _, want := range []string{"world name is required", "mesh bad", "sets both script and mesh"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestFile_Stats(t *testing.T) {
	f, err := Parse([]byte(demoWorld))
	if err != nil {
		t.Fatal(err)
	}
	s := f.Stats()
	want := Stats{Entities: 4, MaxDepth: 2, Scripts: 3, Meshes: 2, Inactive: 1, Resources: 3}
	if s != want {
		t.Errorf("Stats = %+v, want %+v", s, want)
	}
}

func TestWorld_EffectivelyActive(t *testing.T) {
	w := NewWorld("t")
	parent, _ := w.NewEntity("p", ecs.None)
	child, _ := w.NewEntity("c", parent)
	w.Entities().SetActive(parent, false)

	if w.EffectivelyActive(child) {
		t.Error("child of inactive parent reported active")
	}
	w.Entities().SetActive(parent, true)
	if !w.EffectivelyActive(child) {
		t.Error("child of active parent reported inactive")
	}
}

func TestWorld_DestroyDropsComponents(t *testing.T) {
	w := NewWorld("t")
	id, _ := w.NewEntity("e", ecs.None)
	w.AddComponent(id, &MeshComponent{})
	w.Entities().MarkForDestruction(id)
	w.Entities().FlushDestroyQueue()

	if len(w.Components(id)) != 0 {
		t.Error("destroyed entity still has components")
	}
	if w.AddComponent(id, &MeshComponent{}) {
		t.Error("AddComponent succeeded on a destroyed entity")
	}
}

func TestManager_ViewportFollowsResize(t *testing.T) {
	bus := event.NewBus()
	m := NewManager(Viewport{Width: 800, Height: 600}, zaptest.NewLogger(t))
	m.Subscribe(bus)

	event.Emit(bus, event.WindowResized{Width: 1920, Height: 1080})
	bus.Flush()

	if got := m.Viewport(); got != (Viewport{Width: 1920, Height: 1080}) {
		t.Errorf("Viewport = %+v, want 1920x1080", got)
	}
	if a := m.Viewport().Aspect(); a < 1.77 || a > 1.78 {
		t.Errorf("Aspect = %v, want 16:9", a)
	}
}

func TestManager_ActiveWorld(t *testing.T) {
	m := NewManager(Viewport{Width: 1, Height: 1}, zaptest.NewLogger(t))
	if m.Active() != nil {
		t.Fatal("new manager has an active world")
	}
	w := NewWorld("one")
	m.SetActive(w)
	if m.Active() != w {
		t.Error("Active did not return the set world")
	}
	m.SetActive(nil)
	if m.Active() != nil {
		t.Error("SetActive(nil) did not clear")
	}
}

func TestCamera_LooksDownNegativeZ(t *testing.T) {
	c := NewCamera()
	if f := c.Front(); !f.ApproxEqualThreshold(mgl32.Vec3{0, 0, -1}, 1e-5) {
		t.Errorf("Front = %v, want (0,0,-1)", f)
	}
	p := mgl32.Vec4{0, 0, -5, 1}
	if got := c.View().Mul4x1(p); !got.ApproxEqualThreshold(p, 1e-5) {
		t.Errorf("view of origin camera moved %v to %v", p, got)
	}
}
