package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tugboat-ci/tugboat/pkg/deploy"
	"github.com/tugboat-ci/tugboat/pkg/mirror"
)

// SyncStatus is the report of the most recent sync cycle.
type SyncStatus struct {
	LastRunAt time.Time      `json:"last_run_at,omitempty"`
	Summary   mirror.Summary `json:"summary"`
	Error     string         `json:"error,omitempty"`
}

// DeployStatus is the report of the most recent deploy cycle.
type DeployStatus struct {
	LastRunAt   time.Time      `json:"last_run_at,omitempty"`
	LastOutcome deploy.Outcome `json:"last_outcome"`
	State       deploy.State   `json:"state"`
}

// Status is what GET /api/v1/status returns.
type Status struct {
	Version string          `json:"version"`
	Sync    SyncStatus      `json:"sync"`
	Deploy  DeployStatus    `json:"deploy"`
	Records []mirror.Record `json:"records,omitempty"`
}

// Status assembles a point-in-time view of the daemon.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	s := Status{
		Version: d.Version,
		Sync: SyncStatus{
			LastRunAt: d.lastSyncAt,
			Summary:   d.lastSync,
			Error:     d.lastSyncErr,
		},
		Deploy: DeployStatus{
			LastRunAt:   d.lastDeployAt,
			LastOutcome: d.lastOutcome,
		},
	}
	d.mu.RUnlock()
	s.Deploy.State = d.Controller.State()
	if d.Engine != nil && d.Engine.Records != nil {
		if records, err := d.Engine.Records.All(); err == nil {
			s.Records = records
		}
	}
	return s
}

// NewRouter returns the daemon's HTTP API. Triggers are
// fire-and-forget: they nudge the loop and return immediately.
func (d *Daemon) NewRouter(logger log.Logger) *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().Methods("GET").Path("/api/v1/status").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.Status()); err != nil {
			logger.Log("err", err)
		}
	})
	r.NewRoute().Methods("POST").Path("/api/v1/sync").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		d.AskForSync()
		w.WriteHeader(http.StatusAccepted)
	})
	r.NewRoute().Methods("POST").Path("/api/v1/deploy").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		d.AskForDeploy()
		w.WriteHeader(http.StatusAccepted)
	})
	r.NewRoute().Methods("GET").Path("/api/v1/ping").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
