package system

import (
	"time"

	coresys "github.com/cacaoengine/cacao/internal/core/system"
	"github.com/cacaoengine/cacao/internal/scene"
	"go.uber.org/zap"
)

// CleanupSystem flushes the active world's deferred destruction queue at
// tick end. Phase 5 (Cleanup).
type CleanupSystem struct {
	worlds    *scene.Manager
	log       *zap.Logger
	destroyed uint64
}

func NewCleanupSystem(worlds *scene.Manager, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{worlds: worlds, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	w := s.worlds.Active()
	if w == nil {
		return
	}
	if n := w.Entities().FlushDestroyQueue(); n > 0 {
		s.destroyed += uint64(n)
		s.log.Debug("entities destroyed", zap.Int("count", n))
	}
}

// Destroyed returns the total number of entities destroyed.
func (s *CleanupSystem) Destroyed() uint64 { return s.destroyed }
