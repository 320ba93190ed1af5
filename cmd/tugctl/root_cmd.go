package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/tugboat-ci/tugboat/pkg/config"
)

const (
	EnvVariableURL = "TUGBOAT_URL"
)

type rootOpts struct {
	URL     string
	Config  string
	Verbose bool
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
tugctl runs tugd's jobs one cycle at a time.

Workflow:
  tugctl sync       # Pull newly signed versions into the local mirror.
  tugctl deploy     # Roll the deployment onto the newest mirrored version.
  tugctl status     # What is the daemon doing?
  tugctl rollback   # Consume a pending snapshot and restore it.

Exit codes of 'deploy': 0 deployed or already up to date, 1 rolled
back, 2 manual intervention required.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "tugctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", "http://localhost:3030",
		fmt.Sprintf("base URL of the tugd API server; you can also set the environment variable %s", EnvVariableURL))
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "tugboat.yaml",
		"path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"include component logs in the output")

	cmd.AddCommand(
		newSync(opts).Command(),
		newDeploy(opts).Command(),
		newRollback(opts).Command(),
		newStatus(opts).Command(),
		newVersionCommand(),
	)

	return cmd
}

// PersistentPreRunE settles the API URL: an explicit --url wins,
// otherwise the environment variable, otherwise the flag default.
func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	if env := os.Getenv(EnvVariableURL); env != "" && !cmd.Flags().Changed("url") {
		opts.URL = env
	}
	return nil
}

func (opts *rootOpts) url() string {
	return opts.URL
}

func (opts *rootOpts) loadConfig() (config.Config, error) {
	return config.Load(opts.Config)
}

func (opts *rootOpts) logger() log.Logger {
	if !opts.Verbose {
		return log.NewNopLogger()
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}
