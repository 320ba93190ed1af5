// Package health implements the verification gate for rollouts: it
// polls a set of instances until every one reports healthy, or a
// shared deadline passes.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/tugboat-ci/tugboat/pkg/runtime"
)

const (
	DefaultPath          = "/health"
	DefaultContainerPort = "5000/tcp"
	DefaultProbeTimeout  = 5 * time.Second
)

// Report is the per-instance result of a verification run.
type Report struct {
	InstanceID  string    `json:"instance_id"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
}

// Verifier polls instances for health. The runtime's native health
// probe is trusted when the instance declares one; otherwise an HTTP
// GET against the instance's mapped health endpoint decides.
type Verifier struct {
	Runtime runtime.Runtime
	Logger  log.Logger

	// Path and ContainerPort describe the HTTP fallback probe.
	Path          string
	ContainerPort string

	// Endpoint overrides the probe URL construction; used in tests.
	Endpoint func(inst runtime.Instance) string

	// Client is used for fallback probes; a default with
	// DefaultProbeTimeout is used when nil.
	Client *http.Client
}

func (v *Verifier) endpoint(inst runtime.Instance) string {
	if v.Endpoint != nil {
		return v.Endpoint(inst)
	}
	port := v.ContainerPort
	if port == "" {
		port = DefaultContainerPort
	}
	hostPort := inst.HostPort(port)
	if hostPort == "" {
		return ""
	}
	path := v.Path
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("http://127.0.0.1:%s%s", hostPort, path)
}

func (v *Verifier) client() *http.Client {
	if v.Client != nil {
		return v.Client
	}
	return &http.Client{Timeout: DefaultProbeTimeout}
}

// checkOne classifies a single instance, right now.
func (v *Verifier) checkOne(ctx context.Context, inst runtime.Instance) string {
	if !inst.Running {
		// Immediate classification; no probe can succeed against a
		// stopped container.
		return runtime.StatusNotRunning
	}
	switch inst.Health {
	case runtime.StatusHealthy, runtime.StatusUnhealthy, runtime.StatusStarting:
		// The runtime has a native probe; trust it. "starting" is not
		// yet healthy.
		if inst.Health == runtime.StatusHealthy {
			return runtime.StatusHealthy
		}
		return runtime.StatusUnhealthy
	}

	url := v.endpoint(inst)
	if url == "" {
		return runtime.StatusUnknown
	}
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return runtime.StatusUnknown
	}
	res, err := v.client().Do(req.WithContext(ctx))
	if err != nil {
		return runtime.StatusUnhealthy
	}
	res.Body.Close()
	if res.StatusCode/100 == 2 {
		return runtime.StatusHealthy
	}
	return runtime.StatusUnhealthy
}

// Wait blocks until every instance reports healthy or the timeout
// elapses, polling every interval. The deadline is shared across all
// instances; within a tick, instances are checked concurrently and
// independently. It returns the final per-instance reports and
// whether all instances were healthy.
func (v *Verifier) Wait(ctx context.Context, ids []string, timeout, interval time.Duration) ([]Report, bool) {
	logger := v.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reports := make(map[string]Report, len(ids))
	for _, id := range ids {
		reports[id] = Report{InstanceID: id, Status: runtime.StatusUnknown}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		instances, err := v.Runtime.ListInstances(ctx, ids)
		if err != nil {
			logger.Log("err", err)
		} else {
			var wg sync.WaitGroup
			var mu sync.Mutex
			for _, inst := range instances {
				wg.Add(1)
				go func(inst runtime.Instance) {
					defer wg.Done()
					status := v.checkOne(ctx, inst)
					mu.Lock()
					reports[inst.ID] = Report{InstanceID: inst.ID, Status: status, LastChecked: time.Now().UTC()}
					mu.Unlock()
				}(inst)
			}
			wg.Wait()
		}

		if allHealthy(reports) {
			return collect(ids, reports), true
		}

		select {
		case <-ctx.Done():
			return collect(ids, reports), allHealthy(reports)
		case <-ticker.C:
		}
	}
}

func allHealthy(reports map[string]Report) bool {
	for _, r := range reports {
		if r.Status != runtime.StatusHealthy {
			return false
		}
	}
	return true
}

func collect(ids []string, reports map[string]Report) []Report {
	out := make([]Report, 0, len(ids))
	for _, id := range ids {
		out = append(out, reports[id])
	}
	return out
}
