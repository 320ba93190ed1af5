package mirror

import (
	"context"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

// Transfer moves one tagged artifact between registries.
type Transfer interface {
	// Copy pulls src and pushes it to dst. A Copy that returns nil
	// has confirmed the push; anything less is an error.
	Copy(ctx context.Context, src, dst image.Ref) error
}

// TransferFunc adapts a function to the Transfer interface.
type TransferFunc func(ctx context.Context, src, dst image.Ref) error

func (f TransferFunc) Copy(ctx context.Context, src, dst image.Ref) error {
	return f(ctx, src, dst)
}

// RegistryTransfer copies via the registry API directly (pull
// manifest and blobs from src, push to dst); the container runtime is
// not involved.
type RegistryTransfer struct {
	// InsecureSrc / InsecureDst permit HTTP for the respective
	// registries; the local mirror is typically plain HTTP.
	InsecureSrc bool
	InsecureDst bool

	// Keychain resolves push/pull credentials; defaults to the
	// standard docker config.json lookup.
	Keychain authn.Keychain
}

func (t *RegistryTransfer) keychain() authn.Keychain {
	if t.Keychain != nil {
		return t.Keychain
	}
	return authn.DefaultKeychain
}

func parseRef(ref image.Ref, insecure bool) (name.Reference, error) {
	opts := []name.Option{name.WeakValidation}
	if insecure {
		opts = append(opts, name.Insecure)
	}
	return name.ParseReference(ref.String(), opts...)
}

func (t *RegistryTransfer) Copy(ctx context.Context, src, dst image.Ref) error {
	srcRef, err := parseRef(src, t.InsecureSrc)
	if err != nil {
		return errors.Wrapf(err, "parsing source %s", src)
	}
	dstRef, err := parseRef(dst, t.InsecureDst)
	if err != nil {
		return errors.Wrapf(err, "parsing destination %s", dst)
	}

	img, err := remote.Image(srcRef, remote.WithAuthFromKeychain(t.keychain()))
	if err != nil {
		return errors.Wrapf(err, "pulling %s", src)
	}
	if err := remote.Write(dstRef, img, remote.WithAuthFromKeychain(t.keychain())); err != nil {
		return errors.Wrapf(err, "pushing %s", dst)
	}
	return nil
}

var _ Transfer = &RegistryTransfer{}
