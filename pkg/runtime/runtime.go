// Package runtime is the boundary to the container runtime. The
// controller consumes a narrow set of operations: list and inspect
// running instances, pull an artifact, and apply or stop a named
// compose configuration.
package runtime

import (
	"context"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

// Health states as reported by the runtime's native probe. Defined
// here so nothing has to drag in runtime internals to use them.
const (
	StatusHealthy    = "healthy"
	StatusUnhealthy  = "unhealthy"
	StatusStarting   = "starting"
	StatusUnknown    = "unknown"
	StatusNotRunning = "not-running"
)

// Instance is one running (or not) container.
type Instance struct {
	// ID is the instance identifier used in configuration, i.e., the
	// container name.
	ID      string
	Running bool
	// Health is the runtime's native health status, or StatusUnknown
	// when the container declares no healthcheck.
	Health string
	// Image is the reference the instance was started from.
	Image image.Ref
	// Ports maps container ports ("5000/tcp") to mapped host ports.
	Ports map[string]string
}

// HostPort returns the host port an exposed container port is mapped
// to, or "" if unmapped.
func (i Instance) HostPort(containerPort string) string {
	return i.Ports[containerPort]
}

// Runtime is what the deployment controller needs from the container
// engine.
type Runtime interface {
	// ListInstances inspects the named instances. A missing instance
	// is reported as not running, not an error.
	ListInstances(ctx context.Context, ids []string) ([]Instance, error)
	// Pull fetches an artifact so a subsequent Up does not have to.
	Pull(ctx context.Context, ref image.Ref) error
	// Up applies a compose configuration: stops instances whose
	// definition changed and starts them on the new one.
	Up(ctx context.Context, composePath string) error
	// Down stops and removes the instances of a compose configuration.
	Down(ctx context.Context, composePath string) error
}
