package deploy

import (
	"fmt"
	"time"

	"github.com/tugboat-ci/tugboat/pkg/health"
	"github.com/tugboat-ci/tugboat/pkg/runtime"
)

// Phase is where a controller cycle currently is. Exactly one state
// exists per managed service group; it is re-derived from the running
// containers and the compose file on restart, not persisted.
type Phase string

const (
	PhaseIdle            Phase = "Idle"
	PhaseChecking        Phase = "Checking"
	PhaseNoUpdate        Phase = "NoUpdate"
	PhaseUpdating        Phase = "Updating"
	PhaseBackedUp        Phase = "BackedUp"
	PhaseDeployed        Phase = "Deployed"
	PhaseVerifying       Phase = "Verifying"
	PhaseCommitted       Phase = "Committed"
	PhaseRollingBack     Phase = "RollingBack"
	PhaseRollbackApplied Phase = "RollbackApplied"
	PhaseRolledBack      Phase = "RolledBack"
	// PhaseManualIntervention is terminal for a cycle: no further
	// automated action; state, snapshot and diagnostics are left for
	// the operator.
	PhaseManualIntervention Phase = "ManualInterventionRequired"
)

// State describes the service group between and during cycles.
type State struct {
	DesiredTag string `json:"desired_tag,omitempty"`
	// DesiredDigest is the mirror's digest for DesiredTag, when the
	// candidate resolver knows it.
	DesiredDigest    string    `json:"desired_digest,omitempty"`
	RunningTag       string    `json:"running_tag,omitempty"`
	Phase            Phase     `json:"phase"`
	AttemptStartedAt time.Time `json:"attempt_started_at,omitempty"`
	FailureReason    string    `json:"failure_reason,omitempty"`
}

// Outcome is the report code for one controller cycle.
type Outcome int

const (
	// OutcomeOK: no update available, or the deploy committed.
	OutcomeOK Outcome = 0
	// OutcomeRolledBack: the deploy failed and the previous
	// configuration was restored and verified.
	OutcomeRolledBack Outcome = 1
	// OutcomeManualIntervention: the deploy failed and so did the
	// rollback. Unmistakably distinct from transient failures.
	OutcomeManualIntervention Outcome = 2
)

// ApplyError means the new configuration failed at pull or apply,
// before any verification; it triggers an immediate rollback.
type ApplyError struct {
	Stage string // "pull", "rewrite" or "apply"
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("applying new configuration (%s): %v", e.Stage, e.Err)
}

func (e *ApplyError) Cause() error {
	return e.Err
}

// HealthTimeoutError means the new instances never all reached
// healthy within the verification window.
type HealthTimeoutError struct {
	Reports []health.Report
}

func (e *HealthTimeoutError) Error() string {
	unhealthy := 0
	for _, r := range e.Reports {
		if r.Status != runtime.StatusHealthy {
			unhealthy++
		}
	}
	return fmt.Sprintf("%d of %d instances failed health verification", unhealthy, len(e.Reports))
}

// RollbackError is terminal: restoring or re-verifying the previous
// configuration failed, and an operator has to intervene.
type RollbackError struct {
	Stage string // "restore", "apply" or "verify"
	Err   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed at %s: %v", e.Stage, e.Err)
}

func (e *RollbackError) Cause() error {
	return e.Err
}
