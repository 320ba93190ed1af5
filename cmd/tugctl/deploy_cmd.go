package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tugboat-ci/tugboat/pkg/deploy"
	"github.com/tugboat-ci/tugboat/pkg/health"
)

type deployOpts struct {
	*rootOpts
	noProgress bool
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run one deployment cycle",
		Long: `Run one deployment cycle: check the mirror for a newer version and,
if there is one, deploy it gated on health verification.

The exit code reports the result: 0 means deployed or already up to
date, 1 means the attempt was rolled back, 2 means manual
intervention is required.`,
		RunE: opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "do not draw a progress bar while verifying health")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return newUsageError("deploy takes no arguments")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, opts.logger())
	if err != nil {
		return err
	}
	controller, err := buildController(cfg, engine, opts.logger())
	if err != nil {
		return err
	}
	if !opts.noProgress {
		controller.Health = &progressWaiter{inner: controller.Health, out: cmd.OutOrStderr()}
	}

	outcome, err := controller.Run(context.Background())
	return reportCycle(cmd.OutOrStdout(), controller.State(), outcome, err)
}

// reportCycle turns a cycle's result into output and an exit code.
// Outcomes 1 and 2 keep their report codes; a cycle that changed
// nothing (lock held, discovery failed) must not be mistaken for a
// rollback, so it says so and exits through the ordinary error path.
func reportCycle(out io.Writer, state deploy.State, outcome deploy.Outcome, err error) error {
	switch outcome {
	case deploy.OutcomeOK:
		if errors.Cause(err) == deploy.ErrLocked {
			fmt.Fprintln(out, "another cycle is in progress; nothing done")
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, "no deployment was attempted")
			return err
		}
		if state.DesiredTag == state.RunningTag {
			fmt.Fprintf(out, "up to date at %s\n", state.RunningTag)
		} else {
			fmt.Fprintf(out, "deployed %s\n", state.RunningTag)
		}
		return nil
	case deploy.OutcomeRolledBack:
		fmt.Fprintf(out, "deployment failed, rolled back: %v\n", err)
	case deploy.OutcomeManualIntervention:
		fmt.Fprintf(out, "MANUAL INTERVENTION REQUIRED: %v\n", err)
	}
	return &cycleError{error: err, exitCode: int(outcome)}
}

// progressWaiter draws a progress bar across the verification window
// while the wrapped waiter polls.
type progressWaiter struct {
	inner deploy.HealthWaiter
	out   io.Writer
}

func (p *progressWaiter) Wait(ctx context.Context, ids []string, timeout, interval time.Duration) ([]health.Report, bool) {
	bar := pb.New(int(timeout / time.Second))
	bar.SetWriter(p.out)
	bar.SetTemplateString(`verifying health {{bar . }} {{etime . "%s"}}`)
	bar.Start()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bar.Increment()
			case <-done:
				return
			}
		}
	}()

	reports, ok := p.inner.Wait(ctx, ids, timeout, interval)
	close(done)
	bar.Finish()
	return reports, ok
}
