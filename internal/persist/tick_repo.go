package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TickSample is one tick's timing and pipeline counters.
type TickSample struct {
	Tick       uint64
	At         time.Time
	Timestep   time.Duration
	Work       time.Duration
	FixedSteps int
	QueueLen   int
	Dropped    uint64
	Commands   int
	Overrun    bool
}

var tickSampleColumns = []string{
	"run_id", "tick", "sampled_at", "timestep_us", "work_us",
	"fixed_steps", "queue_len", "dropped", "commands", "overrun",
}

type TickSampleRepo struct {
	db    *DB
	runID string
}

// NewTickSampleRepo writes samples tagged with runID, which distinguishes
// engine runs sharing one table.
func NewTickSampleRepo(db *DB, runID string) *TickSampleRepo {
	return &TickSampleRepo{db: db, runID: runID}
}

// InsertBatch copies samples into tick_samples in one round trip.
func (r *TickSampleRepo) InsertBatch(ctx context.Context, samples []TickSample) error {
	if len(samples) == 0 {
		return nil
	}
	n, err := r.db.Pool.CopyFrom(ctx,
		pgx.Identifier{"tick_samples"},
		tickSampleColumns,
		pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
			s := samples[i]
			return []any{
				r.runID, int64(s.Tick), s.At, s.Timestep.Microseconds(), s.Work.Microseconds(),
				s.FixedSteps, s.QueueLen, int64(s.Dropped), s.Commands, s.Overrun,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy tick samples: %w", err)
	}
	if int(n) != len(samples) {
		return fmt.Errorf("copy tick samples: wrote %d of %d", n, len(samples))
	}
	return nil
}
