// Package snapshot produces the immutable per-tick copy of render state the
// GPU goroutine draws from.
package snapshot

import (
	"iter"
	"sync/atomic"

	"github.com/cacaoengine/cacao/internal/asset"
	"github.com/cacaoengine/cacao/internal/core/errs"
	"github.com/cacaoengine/cacao/internal/scene"
	"github.com/cacaoengine/cacao/internal/traversal"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// RenderCommand draws one mesh.
type RenderCommand struct {
	Transform mgl32.Mat4
	Mesh      *asset.Resource
	Material  scene.Material
}

// Skybox is the snapshot's copy of the world's skybox.
type Skybox struct {
	Texture *asset.Resource
	Shader  *asset.Resource
}

// WorldSnapshot is the render state of one tick. It is never mutated after
// Commit returns it, so readers need no locking. Resource pointers refer to
// shared handles whose state only the GPU goroutine changes.
type WorldSnapshot struct {
	world      string
	tick       uint64
	viewport   scene.Viewport
	projection mgl32.Mat4
	view       mgl32.Mat4
	skybox     *Skybox
	commands   []RenderCommand
}

func (s *WorldSnapshot) World() string            { return s.world }
func (s *WorldSnapshot) Tick() uint64             { return s.tick }
func (s *WorldSnapshot) Viewport() scene.Viewport { return s.viewport }
func (s *WorldSnapshot) Projection() mgl32.Mat4   { return s.projection }
func (s *WorldSnapshot) View() mgl32.Mat4         { return s.view }

// Skybox returns the skybox copy, or nil.
func (s *WorldSnapshot) Skybox() *Skybox {
	if s.skybox == nil {
		return nil
	}
	sb := *s.skybox
	return &sb
}

func (s *WorldSnapshot) Len() int { return len(s.commands) }

// Commands iterates the render commands in commit order.
func (s *WorldSnapshot) Commands() iter.Seq2[int, RenderCommand] {
	return func(yield func(int, RenderCommand) bool) {
		for i, c := range s.commands {
			if !yield(i, c) {
				return
			}
		}
	}
}

// Committer builds snapshots from the active world. Commit is single-writer;
// an overlapping call fails instead of racing.
type Committer struct {
	worlds *scene.Manager
	log    *zap.Logger

	committing atomic.Bool
	commits    atomic.Uint64
}

func NewCommitter(worlds *scene.Manager, log *zap.Logger) *Committer {
	return &Committer{worlds: worlds, log: log}
}

// Commit copies the active camera, skybox and the mesh refs collected this
// tick into a new snapshot. It fails with BadState when no world is active
// or when another Commit is in progress.
func (c *Committer) Commit(refs []traversal.ComponentRef) (*WorldSnapshot, error) {
	const op = "snapshot.Commit"
	if !c.committing.CompareAndSwap(false, true) {
		c.log.Warn("overlapping snapshot commit rejected", zap.Uint64("commits", c.commits.Load()))
		return nil, errs.New(errs.BadState, op, "commit already in progress")
	}
	defer c.committing.Store(false)

	w := c.worlds.Active()
	if w == nil {
		c.log.Debug("snapshot commit skipped, no active world")
		return nil, errs.New(errs.BadState, op, "no active world")
	}

	vp := c.worlds.Viewport()
	cam := w.Camera()
	snap := &WorldSnapshot{
		world:      w.Name,
		tick:       c.commits.Add(1),
		viewport:   vp,
		projection: cam.Projection(vp.Aspect()),
		view:       cam.View(),
		commands:   make([]RenderCommand, 0, len(refs)),
	}
	if sb := w.Skybox(); sb != nil && sb.Texture != nil {
		snap.skybox = &Skybox{Texture: sb.Texture, Shader: sb.Shader}
	}
	for _, ref := range refs {
		mc, ok := ref.Component.(*scene.MeshComponent)
		if !ok || mc.Mesh == nil {
			continue
		}
		snap.commands = append(snap.commands, RenderCommand{
			Transform: ref.World,
			Mesh:      mc.Mesh,
			Material:  mc.Material,
		})
	}
	return snap, nil
}

// Commits returns how many snapshots have been produced.
func (c *Committer) Commits() uint64 { return c.commits.Load() }
