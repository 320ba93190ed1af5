package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tugboat-ci/tugboat/pkg/deploy"
	"github.com/tugboat-ci/tugboat/pkg/health"
	"github.com/tugboat-ci/tugboat/pkg/runtime"
)

type rollbackOpts struct {
	*rootOpts
}

func newRollback(parent *rootOpts) *rollbackOpts {
	return &rollbackOpts{rootOpts: parent}
}

func (opts *rollbackOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Restore and verify a pending snapshot",
		Long: `Consume a pending snapshot, left behind by a failed deployment, by
restoring its configuration, re-applying it and verifying health.
Exits 2 if that fails again; the snapshot is kept.`,
		RunE: opts.RunE,
	}
}

func (opts *rollbackOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return newUsageError("rollback takes no arguments")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	snap, err := deploy.LoadSnapshot(cfg.SnapshotFile)
	if os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "no pending snapshot")
		return nil
	}
	if err != nil {
		return err
	}

	lock := deploy.NewLock(cfg.LockFile)
	release, err := lock.TryLock()
	if err != nil {
		return err
	}
	defer release()

	logger := opts.logger()
	rt := &runtime.DockerRuntime{Logger: logger}
	rb := &deploy.Rollback{
		Runtime: rt,
		Health:  &health.Verifier{Runtime: rt, Logger: logger},
		Logger:  logger,
	}
	err = rb.Run(context.Background(), snap, cfg.ComposeFile, cfg.InstanceIDs,
		cfg.HealthTimeout.Duration(), cfg.HealthInterval.Duration())
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "rollback failed, snapshot kept: %v\n", err)
		return &cycleError{error: err, exitCode: int(deploy.OutcomeManualIntervention)}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", snap.RunningTag)
	return nil
}
