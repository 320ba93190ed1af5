package deploy

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ErrSnapshotPending means a snapshot file already exists: a previous
// cycle died before resolving, or ended in manual intervention. A new
// snapshot is never created while one is pending.
var ErrSnapshotPending = errors.New("a deployment snapshot is already pending")

// Snapshot is a copy of the applied deployment configuration, taken
// immediately before a rollout attempt. It is the rollback target: it
// is discarded only once the attempt is confirmed successful, or
// consumed by a completed rollback.
type Snapshot struct {
	TakenAt    time.Time `json:"taken_at"`
	RunningTag string    `json:"running_tag"`
	Compose    []byte    `json:"compose"`

	path string
}

// TakeSnapshot captures the compose file at composePath into a new
// snapshot file. It refuses to overwrite a pending snapshot.
func TakeSnapshot(composePath, snapshotPath, runningTag string) (*Snapshot, error) {
	b, err := ioutil.ReadFile(composePath)
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration to snapshot")
	}
	snap := &Snapshot{
		TakenAt:    time.Now().UTC(),
		RunningTag: runningTag,
		Compose:    b,
		path:       snapshotPath,
	}
	out, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	// O_EXCL enforces the at-most-one-snapshot invariant across
	// crashes as well as within a process.
	f, err := os.OpenFile(snapshotPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrSnapshotPending
		}
		return nil, errors.Wrap(err, "creating snapshot file")
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		os.Remove(snapshotPath)
		return nil, errors.Wrap(err, "writing snapshot")
	}
	if err := f.Close(); err != nil {
		os.Remove(snapshotPath)
		return nil, errors.Wrap(err, "writing snapshot")
	}
	return snap, nil
}

// LoadSnapshot reads a pending snapshot, for operator inspection or
// crash recovery.
func LoadSnapshot(snapshotPath string) (*Snapshot, error) {
	b, err := ioutil.ReadFile(snapshotPath)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	snap.path = snapshotPath
	return &snap, nil
}

// Restore writes the snapshotted configuration back over the compose
// file.
func (s *Snapshot) Restore(composePath string) error {
	return ioutil.WriteFile(composePath, s.Compose, 0644)
}

// Discard removes the snapshot file. Only called once the rollout is
// committed or the rollback has completed.
func (s *Snapshot) Discard() error {
	if s.path == "" {
		return nil
	}
	return os.Remove(s.path)
}
