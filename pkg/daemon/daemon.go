// Package daemon ties the sync engine and the deployment controller
// into a long-running process: periodic triggers, a small HTTP API,
// and metrics.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/deploy"
	"github.com/tugboat-ci/tugboat/pkg/mirror"
)

type LoopVars struct {
	SyncInterval   time.Duration
	SyncTimeout    time.Duration
	DeployInterval time.Duration
	DeployTimeout  time.Duration

	initOnce   sync.Once
	syncSoon   chan struct{}
	deploySoon chan struct{}
}

func (loop *LoopVars) ensureInit() {
	loop.initOnce.Do(func() {
		loop.syncSoon = make(chan struct{}, 1)
		loop.deploySoon = make(chan struct{}, 1)
	})
}

// Daemon runs the two recurring jobs and reports on them.
type Daemon struct {
	Engine     *mirror.Engine
	Controller *deploy.Controller
	Version    string

	LoopVars

	mu           sync.RWMutex
	lastSync     mirror.Summary
	lastSyncAt   time.Time
	lastSyncErr  string
	lastOutcome  deploy.Outcome
	lastDeployAt time.Time
}

// Loop runs sync and deploy cycles until stop is closed. Each job
// runs at least every interval; an Ask, from the API or a completed
// sync, may bring it forward.
func (d *Daemon) Loop(stop chan struct{}, wg *sync.WaitGroup, logger log.Logger) {
	defer wg.Done()
	d.ensureInit()

	syncTimer := time.NewTimer(d.SyncInterval)
	deployTimer := time.NewTimer(d.DeployInterval)

	// Prime both jobs so a fresh daemon converges immediately.
	d.AskForSync()

	for {
		select {
		case <-stop:
			logger.Log("stopping", "true")
			return
		case <-d.syncSoon:
			if !syncTimer.Stop() {
				select {
				case <-syncTimer.C:
				default:
				}
			}
			d.doSync(logger)
			syncTimer.Reset(d.SyncInterval)
			// Whatever the sync brought in is deployable now.
			d.AskForDeploy()
		case <-syncTimer.C:
			d.AskForSync()
		case <-d.deploySoon:
			if !deployTimer.Stop() {
				select {
				case <-deployTimer.C:
				default:
				}
			}
			d.doDeploy(logger)
			deployTimer.Reset(d.DeployInterval)
		case <-deployTimer.C:
			d.AskForDeploy()
		}
	}
}

func (d *Daemon) doSync(logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), d.SyncTimeout)
	defer cancel()

	summary, err := d.Engine.Sync(ctx)
	d.mu.Lock()
	d.lastSync = summary
	d.lastSyncAt = time.Now().UTC()
	d.lastSyncErr = ""
	if err != nil {
		d.lastSyncErr = err.Error()
	}
	d.mu.Unlock()
	if err != nil {
		logger.Log("job", "sync", "err", err)
		return
	}
	logger.Log("job", "sync", "summary", summary.String())
}

func (d *Daemon) doDeploy(logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), d.DeployTimeout)
	defer cancel()

	outcome, err := d.Controller.Run(ctx)
	if errors.Cause(err) == deploy.ErrLocked {
		// A cycle is already running (a CLI invocation, usually);
		// this trigger just folds into it.
		return
	}
	d.mu.Lock()
	d.lastOutcome = outcome
	d.lastDeployAt = time.Now().UTC()
	d.mu.Unlock()
	if err != nil {
		logger.Log("job", "deploy", "outcome", int(outcome), "err", err)
		return
	}
	logger.Log("job", "deploy", "outcome", int(outcome))
}

// Ask for a sync, or if there's one waiting, let that happen.
func (d *LoopVars) AskForSync() {
	d.ensureInit()
	select {
	case d.syncSoon <- struct{}{}:
	default:
	}
}

// Ask for a deploy cycle, or if there's one waiting, let that happen.
func (d *LoopVars) AskForDeploy() {
	d.ensureInit()
	select {
	case d.deploySoon <- struct{}{}:
	default:
	}
}
