package registry

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

// ErrNotFound is returned when a reference does not exist at the
// queried registry. For the local mirror this is the common case for
// a first sync, so callers treat it as "no local digest" rather than
// a failure.
var ErrNotFound = errors.New("image not found in registry")

// DiscoveryError means the registry could not be asked for its tags
// at all: unreachable, unauthorized, or a garbled response. It is
// retried next cycle, never fatal to the process.
type DiscoveryError struct {
	Repo image.Name
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering tags for %s: %v", e.Repo, e.Err)
}

func (e *DiscoveryError) Cause() error {
	return e.Err
}

// ResolutionError means the digest lookup failed for one tag. The
// sync cycle skips the tag and continues.
type ResolutionError struct {
	Ref image.Ref
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving digest for %s: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Cause() error {
	return e.Err
}

// Client is a remote registry client for a particular image
// repository (e.g., for localhost:5000/robot/app). It is an interface
// so we can wrap it in instrumentation, write fake implementations,
// and so on.
type Client interface {
	// Tags returns all tags currently published for the repository,
	// with signature and attestation pseudo-tags filtered out. A
	// repository with no tags yields an empty slice, not an error.
	Tags(ctx context.Context) ([]string, error)
	// Digest resolves a tag to its content digest, or ErrNotFound if
	// the tag does not exist. The result is stable across repeated
	// calls for an unchanged artifact.
	Digest(ctx context.Context, tag string) (string, error)
}

// ClientFactory supplies Client implementations for a given repo,
// with credentials. This is an interface so we can provide fake
// implementations.
type ClientFactory interface {
	ClientFor(image.CanonicalName, Credentials) (Client, error)
	Succeed(image.CanonicalName)
}
