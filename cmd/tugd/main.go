package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/spf13/pflag"

	"github.com/tugboat-ci/tugboat/pkg/checkpoint"
	"github.com/tugboat-ci/tugboat/pkg/config"
	"github.com/tugboat-ci/tugboat/pkg/daemon"
	"github.com/tugboat-ci/tugboat/pkg/deploy"
	"github.com/tugboat-ci/tugboat/pkg/health"
	"github.com/tugboat-ci/tugboat/pkg/mirror"
	"github.com/tugboat-ci/tugboat/pkg/registry"
	"github.com/tugboat-ci/tugboat/pkg/registry/middleware"
	"github.com/tugboat-ci/tugboat/pkg/runtime"
	"github.com/tugboat-ci/tugboat/pkg/verify"
)

const product = "tugboat"

var version = "unversioned"

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  tugd syncs verified artifacts into a local mirror and keeps the\n")
		fmt.Fprintf(os.Stderr, "  local deployment on the newest healthy version.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
	var (
		versionFlag   = fs.Bool("version", false, "print version and exit")
		logFormat     = fs.String("log-format", "fmt", "log format, fmt or json")
		listenAddr    = fs.StringP("listen", "l", ":3030", "listen address for the API and /metrics")
		configPath    = fs.String("config", "tugboat.yaml", "path to the configuration file")
		dockerBinary  = fs.String("docker-binary", "", "explicit path to the docker tool")
		cosignBinary  = fs.String("cosign-binary", "", "explicit path to the cosign tool")
		registryRPS   = fs.Float64("registry-rps", 200, "max registry requests per second per host")
		registryBurst = fs.Int("registry-burst", 125, "max registry burst size per host")
		registryTrace = fs.Bool("registry-trace", false, "log all registry round-trips")
		syncTimeout   = fs.Duration("sync-timeout", 10*time.Minute, "duration after which a sync cycle times out")
	)
	fs.Parse(os.Args)

	if *versionFlag {
		println(version)
		os.Exit(0)
	}

	// Logger domain.
	var logger log.Logger
	{
		switch *logFormat {
		case "json":
			logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		default:
			logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
		}
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log("err", err)
		os.Exit(1)
	}
	repo, _ := cfg.Repo()
	mirrorRepo, _ := cfg.Mirror()

	checkpoint.CheckForUpdates(product, version, nil, log.With(logger, "component", "checkpoint"))

	// Upstream registry component.
	var engine *mirror.Engine
	{
		logger := log.With(logger, "component", "registry")
		creds := registry.NoCredentials()
		if cfg.CredentialsFile != "" {
			logger.Log("credentials", cfg.CredentialsFile)
			c, err := registry.CredentialsFromFile(cfg.CredentialsFile)
			if err != nil {
				logger.Log("err", err)
				os.Exit(1)
			}
			creds = c
		} else {
			logger.Log("credentials", "none")
		}
		factory := &registry.RemoteClientFactory{
			Logger: logger,
			Limiters: &middleware.RateLimiters{
				RPS:    *registryRPS,
				Burst:  *registryBurst,
				Logger: logger,
			},
			Trace:         *registryTrace,
			InsecureHosts: cfg.InsecureHosts,
		}

		verifier := &verify.CosignVerifier{
			Binary:                *cosignBinary,
			IdentityRegexp:        cfg.Verify.IdentityRegexp,
			IssuerRegexp:          cfg.Verify.IssuerRegexp,
			KeyPath:               cfg.Verify.Key,
			AllowInsecureRegistry: hostIn(cfg.InsecureHosts, repo.Registry()),
		}

		var records mirror.Store = mirror.NewMemStore()
		if len(cfg.MemcachedHosts) > 0 {
			records = mirror.NewMemcacheStore(repo.String(), time.Second, cfg.MemcachedHosts...)
		}

		engine = &mirror.Engine{
			Repo:     repo,
			Mirror:   mirrorRepo,
			Factory:  factory,
			Creds:    creds,
			Verifier: verifier,
			Transfer: &mirror.RegistryTransfer{
				InsecureSrc: hostIn(cfg.InsecureHosts, repo.Registry()),
				InsecureDst: hostIn(cfg.InsecureHosts, mirrorRepo.Registry()),
			},
			Records: records,
			Pattern: cfg.Pattern(),
			Logger:  log.With(logger, "component", "mirror"),
		}
	}

	// Deployment component.
	var controller *deploy.Controller
	{
		rt := &runtime.DockerRuntime{
			Binary: *dockerBinary,
			Logger: log.With(logger, "component", "runtime"),
		}
		controller = &deploy.Controller{
			ComposePath:    cfg.ComposeFile,
			SnapshotPath:   cfg.SnapshotFile,
			LockPath:       cfg.LockFile,
			Instances:      cfg.InstanceIDs,
			MirrorRepo:     mirrorRepo,
			Latest:         engine.LatestTag,
			Runtime:        rt,
			Health:         &health.Verifier{Runtime: rt, Logger: log.With(logger, "component", "health")},
			HealthTimeout:  cfg.HealthTimeout.Duration(),
			HealthInterval: cfg.HealthInterval.Duration(),
			Logger:         log.With(logger, "component", "deploy"),
		}
	}

	d := &daemon.Daemon{
		Engine:     engine,
		Controller: controller,
		Version:    version,
		LoopVars: daemon.LoopVars{
			SyncInterval:   cfg.SyncInterval.Duration(),
			SyncTimeout:    *syncTimeout,
			DeployInterval: cfg.DeployInterval.Duration(),
			// Worst case is a full attempt plus a rollback, each
			// waiting out the health window.
			DeployTimeout: 2*cfg.HealthTimeout.Duration() + 10*time.Minute,
		},
	}

	// Shutdown machinery.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		logger.Log("addr", *listenAddr)
		errc <- http.ListenAndServe(*listenAddr, d.NewRouter(log.With(logger, "component", "api")))
	}()

	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go d.Loop(stop, wg, log.With(logger, "component", "daemon"))

	logger.Log("exiting", <-errc)
	close(stop)
	wg.Wait()
}

func hostIn(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}
