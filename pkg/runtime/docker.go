package runtime

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

const defaultCommandTimeout = 2 * time.Minute

// DockerRuntime drives the docker CLI. The compose plugin must be
// available as `docker compose`.
type DockerRuntime struct {
	// Binary is the docker executable; defaults to "docker".
	Binary string
	// CommandTimeout bounds every invocation.
	CommandTimeout time.Duration
	Logger         log.Logger
}

func (r *DockerRuntime) binary() string {
	if r.Binary == "" {
		return "docker"
	}
	return r.Binary
}

func (r *DockerRuntime) run(ctx context.Context, args ...string) ([]byte, error) {
	timeout := r.CommandTimeout
	if timeout == 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if r.Logger != nil {
			r.Logger.Log("cmd", strings.Join(args, " "), "err", err, "output", string(out))
		}
		return out, errors.Wrapf(err, "%s %s: %s", r.binary(), strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (r *DockerRuntime) ListInstances(ctx context.Context, ids []string) ([]Instance, error) {
	instances := make([]Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := r.inspect(ctx, id)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (r *DockerRuntime) inspect(ctx context.Context, id string) (Instance, error) {
	out, err := r.run(ctx, "inspect", id)
	if err != nil {
		// A missing container is the common case after a failed
		// start; classify rather than error.
		if strings.Contains(string(out), "No such object") ||
			strings.Contains(string(out), "No such container") {
			return Instance{ID: id, Running: false, Health: StatusNotRunning}, nil
		}
		return Instance{}, err
	}
	return parseInspect(id, out)
}

// parseInspect interprets `docker inspect` output for one container.
func parseInspect(id string, out []byte) (Instance, error) {
	doc, err := gabs.ParseJSON(out)
	if err != nil {
		return Instance{}, errors.Wrapf(err, "parsing inspect output for %s", id)
	}
	children, err := doc.Children()
	if err != nil || len(children) == 0 {
		return Instance{ID: id, Running: false, Health: StatusNotRunning}, nil
	}
	c := children[0]

	inst := Instance{ID: id, Health: StatusUnknown, Ports: map[string]string{}}
	if running, ok := c.Search("State", "Running").Data().(bool); ok {
		inst.Running = running
	}
	if !inst.Running {
		inst.Health = StatusNotRunning
	} else if health, ok := c.Search("State", "Health", "Status").Data().(string); ok {
		inst.Health = health
	}
	if img, ok := c.Search("Config", "Image").Data().(string); ok {
		if ref, err := image.ParseRef(img); err == nil {
			inst.Image = ref
		}
	}
	if ports, err := c.Search("NetworkSettings", "Ports").ChildrenMap(); err == nil {
		for containerPort, bindings := range ports {
			bs, err := bindings.Children()
			if err != nil || len(bs) == 0 {
				continue
			}
			if hostPort, ok := bs[0].Search("HostPort").Data().(string); ok {
				inst.Ports[containerPort] = hostPort
			}
		}
	}
	return inst, nil
}

func (r *DockerRuntime) Pull(ctx context.Context, ref image.Ref) error {
	_, err := r.run(ctx, "pull", ref.String())
	return err
}

func (r *DockerRuntime) Up(ctx context.Context, composePath string) error {
	_, err := r.run(ctx, "compose", "-f", composePath, "up", "-d", "--remove-orphans")
	return err
}

func (r *DockerRuntime) Down(ctx context.Context, composePath string) error {
	_, err := r.run(ctx, "compose", "-f", composePath, "down")
	return err
}

var _ Runtime = &DockerRuntime{}
