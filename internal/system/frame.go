package system

import (
	"time"

	coresys "github.com/cacaoengine/cacao/internal/core/system"
	"github.com/cacaoengine/cacao/internal/render"
	"github.com/cacaoengine/cacao/internal/scene"
	"github.com/cacaoengine/cacao/internal/snapshot"
	"github.com/cacaoengine/cacao/internal/traversal"
	"go.uber.org/zap"
)

// FrameCommitSystem collects renderables, commits a snapshot and enqueues
// the frame built from it. Phase 3 (Render).
type FrameCommitSystem struct {
	worlds    *scene.Manager
	pool      traversal.Pool
	committer *snapshot.Committer
	frames    *render.Queue
	log       *zap.Logger

	lastCommands int
	failures     int // consecutive
}

func NewFrameCommitSystem(worlds *scene.Manager, pool traversal.Pool, committer *snapshot.Committer, frames *render.Queue, log *zap.Logger) *FrameCommitSystem {
	return &FrameCommitSystem{
		worlds:    worlds,
		pool:      pool,
		committer: committer,
		frames:    frames,
		log:       log,
	}
}

func (s *FrameCommitSystem) Phase() coresys.Phase { return coresys.PhaseRender }

func (s *FrameCommitSystem) Update(_ time.Duration) {
	var refs []traversal.ComponentRef
	if w := s.worlds.Active(); w != nil {
		var err error
		refs, err = traversal.Collect(w, s.pool, traversal.ByKind(scene.KindMesh))
		if err != nil {
			s.log.Error("mesh traversal failed", zap.Error(err))
			return
		}
	}

	snap, err := s.committer.Commit(refs)
	if err != nil {
		s.failures++
		if s.failures == 1 {
			s.log.Error("commit failed", zap.Error(err))
		}
		return
	}
	if s.failures > 0 {
		s.log.Info("commit recovered", zap.Int("failed_ticks", s.failures))
		s.failures = 0
	}
	s.lastCommands = snap.Len()
	s.frames.EnqueueFrame(snap)
}

// LastCommands returns the render command count of the latest snapshot.
func (s *FrameCommitSystem) LastCommands() int { return s.lastCommands }
