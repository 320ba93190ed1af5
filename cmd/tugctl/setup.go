package main

import (
	"time"

	"github.com/go-kit/kit/log"

	"github.com/tugboat-ci/tugboat/pkg/config"
	"github.com/tugboat-ci/tugboat/pkg/deploy"
	"github.com/tugboat-ci/tugboat/pkg/health"
	"github.com/tugboat-ci/tugboat/pkg/mirror"
	"github.com/tugboat-ci/tugboat/pkg/registry"
	"github.com/tugboat-ci/tugboat/pkg/registry/middleware"
	"github.com/tugboat-ci/tugboat/pkg/runtime"
	"github.com/tugboat-ci/tugboat/pkg/verify"
)

// buildEngine assembles the sync engine the same way tugd does, so a
// CLI cycle and a daemon cycle behave identically.
func buildEngine(cfg config.Config, logger log.Logger) (*mirror.Engine, error) {
	repo, err := cfg.Repo()
	if err != nil {
		return nil, err
	}
	mirrorRepo, err := cfg.Mirror()
	if err != nil {
		return nil, err
	}

	creds := registry.NoCredentials()
	if cfg.CredentialsFile != "" {
		creds, err = registry.CredentialsFromFile(cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
	}

	var records mirror.Store = mirror.NewMemStore()
	if len(cfg.MemcachedHosts) > 0 {
		records = mirror.NewMemcacheStore(repo.String(), time.Second, cfg.MemcachedHosts...)
	}

	return &mirror.Engine{
		Repo:   repo,
		Mirror: mirrorRepo,
		Factory: &registry.RemoteClientFactory{
			Logger:        log.With(logger, "component", "registry"),
			Limiters:      &middleware.RateLimiters{RPS: 200, Burst: 125, Logger: logger},
			InsecureHosts: cfg.InsecureHosts,
		},
		Creds: creds,
		Verifier: &verify.CosignVerifier{
			IdentityRegexp:        cfg.Verify.IdentityRegexp,
			IssuerRegexp:          cfg.Verify.IssuerRegexp,
			KeyPath:               cfg.Verify.Key,
			AllowInsecureRegistry: hostIn(cfg.InsecureHosts, repo.Registry()),
		},
		Transfer: &mirror.RegistryTransfer{
			InsecureSrc: hostIn(cfg.InsecureHosts, repo.Registry()),
			InsecureDst: hostIn(cfg.InsecureHosts, mirrorRepo.Registry()),
		},
		Records: records,
		Pattern: cfg.Pattern(),
		Logger:  log.With(logger, "component", "mirror"),
	}, nil
}

func buildController(cfg config.Config, engine *mirror.Engine, logger log.Logger) (*deploy.Controller, error) {
	mirrorRepo, err := cfg.Mirror()
	if err != nil {
		return nil, err
	}
	rt := &runtime.DockerRuntime{Logger: log.With(logger, "component", "runtime")}
	return &deploy.Controller{
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
	}, nil
}

func hostIn(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}
