// Package deploy drives rollouts: compare the newest verified tag in
// the mirror against what is running, and if they differ, snapshot
// the current configuration, apply the new one, gate it on health
// verification, and either commit or roll back. Every cycle resolves
// to one of three outcomes: committed (or nothing to do), rolled
// back, or manual intervention required.
package deploy

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/compose"
	"github.com/tugboat-ci/tugboat/pkg/health"
	"github.com/tugboat-ci/tugboat/pkg/image"
	tugmetrics "github.com/tugboat-ci/tugboat/pkg/metrics"
	"github.com/tugboat-ci/tugboat/pkg/runtime"
)

const (
	DefaultHealthTimeout  = 90 * time.Second
	DefaultHealthInterval = 5 * time.Second
)

// HealthWaiter is the verification gate. Implemented by
// health.Verifier; narrowed to an interface so cycles can be tested
// without real containers.
type HealthWaiter interface {
	Wait(ctx context.Context, ids []string, timeout, interval time.Duration) ([]health.Report, bool)
}

// Controller runs deployment cycles for one service group, defined by
// a compose file and the mirror repository its services run from.
type Controller struct {
	// ComposePath is the applied configuration; SnapshotPath and
	// LockPath live next to it and carry cycle state across restarts.
	ComposePath  string
	SnapshotPath string
	LockPath     string

	// Instances are the container names whose health gates a rollout.
	Instances []string

	// MirrorRepo is the repository services are pinned to; only
	// services using it are rewritten.
	MirrorRepo image.Name

	// Latest resolves the newest verified candidate in the mirror,
	// e.g. (*mirror.Engine).LatestTag. Digest and LastFetched are
	// carried into the cycle state when the resolver provides them.
	Latest func(ctx context.Context) (image.Info, error)

	Runtime runtime.Runtime
	Health  HealthWaiter

	HealthTimeout  time.Duration
	HealthInterval time.Duration

	Logger log.Logger

	mu    sync.RWMutex
	state State
}

func (c *Controller) logger() log.Logger {
	if c.Logger == nil {
		return log.NewNopLogger()
	}
	return c.Logger
}

func (c *Controller) healthTimeout() time.Duration {
	if c.HealthTimeout <= 0 {
		return DefaultHealthTimeout
	}
	return c.HealthTimeout
}

func (c *Controller) healthInterval() time.Duration {
	if c.HealthInterval <= 0 {
		return DefaultHealthInterval
	}
	return c.HealthInterval
}

// State returns a copy of the current cycle state, for the status API.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.state.Phase = p
	c.mu.Unlock()
	phaseTransitions.With(tugmetrics.LabelPhase, string(p)).Add(1)
	c.logger().Log("phase", p)
}

func (c *Controller) update(f func(*State)) {
	c.mu.Lock()
	f(&c.state)
	c.mu.Unlock()
}

// Run executes one cycle. The returned Outcome is always meaningful,
// even when err is non-nil: 0 means the system is on the new (or
// unchanged) configuration, 1 means it was restored to the previous
// one, 2 means it is in an unknown state and needs an operator. A
// cycle that cannot start (lock held, snapshot pending, discovery
// failed) changes nothing and reports the error with outcome 0,
// except a pending snapshot, which is itself a manual intervention
// marker and reported as such.
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	release, err := NewLock(c.LockPath).TryLock()
	if err != nil {
		return OutcomeOK, err
	}
	defer release()

	begin := time.Now()
	outcome, err := c.run(ctx)
	cycleDuration.With(tugmetrics.LabelOutcome, strconv.Itoa(int(outcome))).Observe(time.Since(begin).Seconds())
	return outcome, err
}

func (c *Controller) run(ctx context.Context) (Outcome, error) {
	logger := c.logger()
	c.setPhase(PhaseChecking)

	cfg, err := compose.Load(c.ComposePath)
	if err != nil {
		c.setPhase(PhaseIdle)
		return OutcomeOK, err
	}
	services := cfg.ServicesUsing(c.MirrorRepo)
	if len(services) == 0 {
		c.setPhase(PhaseIdle)
		return OutcomeOK, fmt.Errorf("no service in %s uses %s", c.ComposePath, c.MirrorRepo)
	}
	running, err := cfg.ServiceImage(services[0])
	if err != nil {
		c.setPhase(PhaseIdle)
		return OutcomeOK, err
	}

	candidate, err := c.Latest(ctx)
	if err != nil {
		c.setPhase(PhaseIdle)
		return OutcomeOK, errors.Wrap(err, "resolving deployment candidate")
	}
	desired := candidate.ID
	c.update(func(s *State) {
		s.RunningTag = running.Tag
		s.DesiredTag = desired.Tag
		s.DesiredDigest = candidate.Digest
	})

	if desired.Tag == running.Tag {
		logger.Log("msg", "no update", "tag", running.Tag)
		c.setPhase(PhaseNoUpdate)
		c.setPhase(PhaseIdle)
		return OutcomeOK, nil
	}

	logger.Log("msg", "update available", "running", running.Tag, "desired", desired.Tag,
		"digest", candidate.Digest, "synced", candidate.LastFetched.Format(time.RFC3339))
	c.setPhase(PhaseUpdating)
	c.update(func(s *State) {
		s.AttemptStartedAt = time.Now().UTC()
		s.FailureReason = ""
	})

	snap, err := TakeSnapshot(c.ComposePath, c.SnapshotPath, running.Tag)
	if err != nil {
		if errors.Cause(err) == ErrSnapshotPending {
			c.fail(err)
			return OutcomeManualIntervention, err
		}
		c.setPhase(PhaseIdle)
		return OutcomeOK, err
	}
	c.setPhase(PhaseBackedUp)

	if err := c.Runtime.Pull(ctx, desired); err != nil {
		return c.rollback(ctx, snap, &ApplyError{Stage: "pull", Err: err})
	}

	for _, svc := range services {
		if err := cfg.SetServiceImage(svc, desired); err != nil {
			return c.rollback(ctx, snap, &ApplyError{Stage: "rewrite", Err: err})
		}
	}
	if err := cfg.Save(c.ComposePath); err != nil {
		return c.rollback(ctx, snap, &ApplyError{Stage: "rewrite", Err: err})
	}

	if err := c.Runtime.Up(ctx, c.ComposePath); err != nil {
		return c.rollback(ctx, snap, &ApplyError{Stage: "apply", Err: err})
	}
	c.setPhase(PhaseDeployed)

	c.setPhase(PhaseVerifying)
	reports, ok := c.Health.Wait(ctx, c.Instances, c.healthTimeout(), c.healthInterval())
	if !ok {
		return c.rollback(ctx, snap, &HealthTimeoutError{Reports: reports})
	}

	if err := snap.Discard(); err != nil {
		logger.Log("msg", "committed but could not discard snapshot", "err", err)
	}
	c.update(func(s *State) { s.RunningTag = desired.Tag })
	logger.Log("msg", "deployment committed", "tag", desired.Tag)
	c.setPhase(PhaseCommitted)
	c.setPhase(PhaseIdle)
	return OutcomeOK, nil
}

// rollback resolves a failed attempt: restore the snapshot, re-apply,
// re-verify. cause is what sent us here and is what the cycle reports
// when the rollback itself succeeds.
func (c *Controller) rollback(ctx context.Context, snap *Snapshot, cause error) (Outcome, error) {
	c.logger().Log("msg", "deployment failed, rolling back", "err", cause)
	c.setPhase(PhaseRollingBack)

	rb := &Rollback{
		Runtime: c.Runtime,
		Health:  c.Health,
		Logger:  c.Logger,
		Observe: c.setPhase,
	}
	if err := rb.Run(ctx, snap, c.ComposePath, c.Instances, c.healthTimeout(), c.healthInterval()); err != nil {
		c.fail(err)
		return OutcomeManualIntervention, err
	}

	c.update(func(s *State) { s.FailureReason = cause.Error() })
	c.setPhase(PhaseRolledBack)
	c.setPhase(PhaseIdle)
	return OutcomeRolledBack, cause
}

func (c *Controller) fail(err error) {
	c.logger().Log("msg", "manual intervention required", "err", err)
	c.update(func(s *State) { s.FailureReason = err.Error() })
	c.setPhase(PhaseManualIntervention)
}
