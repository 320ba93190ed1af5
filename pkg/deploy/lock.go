package deploy

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// ErrLocked means another controller cycle holds the lock; the
// trigger that hit this simply skips its turn.
var ErrLocked = errors.New("another deployment cycle is in progress")

// Lock serializes controller cycles for one service group. It is a
// lock file created exclusively, so overlapping triggers (or a second
// process aimed at the same compose file) cannot race the state
// machine and corrupt the single-snapshot invariant.
type Lock struct {
	path string
}

func NewLock(path string) *Lock {
	return &Lock{path: path}
}

// TryLock acquires the lock or fails immediately with ErrLocked. The
// returned release function must be called when the cycle resolves,
// including a cycle that ends in manual intervention (the snapshot,
// not the lock, is what carries that state).
func (l *Lock) TryLock() (release func(), err error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, errors.Wrap(err, "acquiring deployment lock")
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { os.Remove(l.path) }, nil
}
