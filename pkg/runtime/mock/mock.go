package mock

import (
	"context"

	"github.com/tugboat-ci/tugboat/pkg/image"
	"github.com/tugboat-ci/tugboat/pkg/runtime"
)

// Runtime is a scriptable runtime for tests. Calls records the
// operations invoked, in order.
type Runtime struct {
	Instances map[string]runtime.Instance

	PullErr error
	UpErr   error
	DownErr error

	Calls []string
}

func (m *Runtime) ListInstances(ctx context.Context, ids []string) ([]runtime.Instance, error) {
	m.Calls = append(m.Calls, "list")
	insts := make([]runtime.Instance, 0, len(ids))
	for _, id := range ids {
		if inst, ok := m.Instances[id]; ok {
			insts = append(insts, inst)
			continue
		}
		insts = append(insts, runtime.Instance{ID: id, Health: runtime.StatusNotRunning})
	}
	return insts, nil
}

func (m *Runtime) Pull(ctx context.Context, ref image.Ref) error {
	m.Calls = append(m.Calls, "pull "+ref.String())
	return m.PullErr
}

func (m *Runtime) Up(ctx context.Context, composePath string) error {
	m.Calls = append(m.Calls, "up "+composePath)
	return m.UpErr
}

func (m *Runtime) Down(ctx context.Context, composePath string) error {
	m.Calls = append(m.Calls, "down "+composePath)
	return m.DownErr
}

var _ runtime.Runtime = &Runtime{}
