package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type syncOpts struct {
	*rootOpts
}

func newSync(parent *rootOpts) *syncOpts {
	return &syncOpts{rootOpts: parent}
}

func (opts *syncOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one mirror sync cycle",
		RunE:  opts.RunE,
	}
}

func (opts *syncOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return newUsageError("sync takes no arguments")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, opts.logger())
	if err != nil {
		return err
	}

	summary, err := engine.Sync(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary.String())
	for _, tag := range summary.Synced {
		fmt.Fprintf(cmd.OutOrStdout(), "synced   %s\n", tag)
	}
	for _, tag := range summary.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped  %s\n", tag)
	}
	for _, tag := range summary.Failed {
		fmt.Fprintf(cmd.OutOrStdout(), "failed   %s\n", tag)
	}
	return nil
}
