package deploy

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/tugboat-ci/tugboat/pkg/runtime"
)

// Rollback restores the last-known-good configuration snapshot and
// re-deploys it. Its contract is exactly three steps: restore, apply,
// verify. It is never invoked concurrently with a forward deployment
// for the same service group (the controller lock guarantees this).
type Rollback struct {
	Runtime runtime.Runtime
	Health  HealthWaiter
	Logger  log.Logger

	// Observe, when set, is told about phase transitions inside the
	// rollback so the controller's state stays accurate.
	Observe func(Phase)
}

func (r *Rollback) observe(p Phase) {
	if r.Observe != nil {
		r.Observe(p)
	}
}

// Run consumes the snapshot: once it returns nil the snapshot has
// been discarded. On error the snapshot is left intact for the
// operator, and the error says which step failed.
func (r *Rollback) Run(ctx context.Context, snap *Snapshot, composePath string, instances []string, timeout, interval time.Duration) error {
	logger := r.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	logger.Log("msg", "restoring configuration snapshot", "taken_at", snap.TakenAt.Format(time.RFC3339), "tag", snap.RunningTag)
	if err := snap.Restore(composePath); err != nil {
		return &RollbackError{Stage: "restore", Err: err}
	}

	// Instances wedged on the failed version must not survive the
	// restore, so the group is taken down before re-applying.
	if err := r.Runtime.Down(ctx, composePath); err != nil {
		return &RollbackError{Stage: "apply", Err: err}
	}
	if err := r.Runtime.Up(ctx, composePath); err != nil {
		return &RollbackError{Stage: "apply", Err: err}
	}
	r.observe(PhaseRollbackApplied)

	reports, ok := r.Health.Wait(ctx, instances, timeout, interval)
	if !ok {
		return &RollbackError{Stage: "verify", Err: &HealthTimeoutError{Reports: reports}}
	}

	if err := snap.Discard(); err != nil {
		logger.Log("msg", "rolled back but could not discard snapshot", "err", err)
	}
	return nil
}
