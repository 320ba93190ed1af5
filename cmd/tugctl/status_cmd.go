package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tugboat-ci/tugboat/pkg/daemon"
)

type statusOpts struct {
	*rootOpts
}

func newStatus(parent *rootOpts) *statusOpts {
	return &statusOpts{rootOpts: parent}
}

func (opts *statusOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the daemon is doing",
		RunE:  opts.RunE,
	}
}

func (opts *statusOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return newUsageError("status takes no arguments")
	}

	res, err := http.Get(opts.url() + "/api/v1/status")
	if err != nil {
		return errors.Wrapf(err, "querying %s", opts.url())
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("querying %s: %s", opts.url(), res.Status)
	}
	var status daemon.Status
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return errors.Wrap(err, "decoding status")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version:  %s\n", status.Version)
	fmt.Fprintf(out, "phase:    %s\n", status.Deploy.State.Phase)
	fmt.Fprintf(out, "running:  %s\n", orNone(status.Deploy.State.RunningTag))
	desired := orNone(status.Deploy.State.DesiredTag)
	if d := status.Deploy.State.DesiredDigest; d != "" {
		desired += " (" + d + ")"
	}
	fmt.Fprintf(out, "desired:  %s\n", desired)
	if status.Deploy.State.FailureReason != "" {
		fmt.Fprintf(out, "failure:  %s\n", status.Deploy.State.FailureReason)
	}
	fmt.Fprintf(out, "last sync:    %s (%s)\n", ago(status.Sync.LastRunAt), status.Sync.Summary)
	if status.Sync.Error != "" {
		fmt.Fprintf(out, "sync error:   %s\n", status.Sync.Error)
	}
	fmt.Fprintf(out, "last deploy:  %s (outcome %d)\n", ago(status.Deploy.LastRunAt), status.Deploy.LastOutcome)

	if len(status.Records) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "TAG\tRESULT\tSYNCED\tDIGEST")
		for _, rec := range status.Records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.Tag, rec.LastResult, ago(rec.LastSync), rec.LocalDigest)
		}
		w.Flush()
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s ago", time.Since(t).Truncate(time.Second))
}
