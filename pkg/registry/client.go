package registry

import (
	"context"
	"net/http"

	"github.com/docker/distribution"
	"github.com/docker/distribution/manifest/manifestlist"
	"github.com/docker/distribution/registry/api/errcode"
	v2 "github.com/docker/distribution/registry/api/v2"
	"github.com/docker/distribution/registry/client"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

// Remote speaks the registry v2 protocol to one repository, via the
// docker distribution client.
type Remote struct {
	transport http.RoundTripper
	repo      image.CanonicalName
	base      string
}

// Adapt to docker distribution `reference.Named`.
type named struct {
	image.CanonicalName
}

// Name returns the name of the repository. These values are used by
// the docker distribution client package to build API URLs, and (it
// turns out) are _not_ expected to include a domain (e.g.,
// quay.io). Hence, the implementation here just returns the path.
func (n named) Name() string {
	return n.Image
}

// Tags returns the tags for this repository, with signature and
// attestation pseudo-tags removed.
func (a *Remote) Tags(ctx context.Context) ([]string, error) {
	repository, err := client.NewRepository(named{a.repo}, a.base, a.transport)
	if err != nil {
		return nil, err
	}
	all, err := repository.Tags(ctx).All(ctx)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(all))
	for _, t := range all {
		if image.IsSignatureTag(t) {
			continue
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// Digest fetches the manifest for a tag and returns its content
// digest. A manifest list (multi-platform index) is collapsed to the
// digest of its first entry, preferring linux/amd64, so that the
// result is deterministic for an unchanged artifact.
func (a *Remote) Digest(ctx context.Context, tag string) (string, error) {
	repository, err := client.NewRepository(named{a.repo}, a.base, a.transport)
	if err != nil {
		return "", err
	}
	manifests, err := repository.Manifests(ctx)
	if err != nil {
		return "", err
	}
	var manifestDigest digest.Digest
	digestOpt := client.ReturnContentDigest(&manifestDigest)
	manifest, err := manifests.Get(ctx, digest.Digest(tag), digestOpt, distribution.WithTagOption{Tag: tag})
	if err != nil {
		if IsNotFound(err) {
			return "", errors.Wrapf(ErrNotFound, "tag %q at %s", tag, a.repo)
		}
		return "", err
	}

	if list, ok := manifest.(*manifestlist.DeserializedManifestList); ok {
		if len(list.Manifests) == 0 {
			return "", errors.Errorf("empty manifest list for tag %q at %s", tag, a.repo)
		}
		for _, m := range list.Manifests {
			if m.Platform.OS == "linux" && m.Platform.Architecture == "amd64" {
				return m.Digest.String(), nil
			}
		}
		return list.Manifests[0].Digest.String(), nil
	}
	return manifestDigest.String(), nil
}

// IsNotFound reports whether the error from the distribution client
// means the repository or tag does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Cause(err) == ErrNotFound {
		return true
	}
	if errs, ok := err.(errcode.Errors); ok {
		for _, e := range errs {
			if ec, ok := e.(errcode.Error); ok {
				switch ec.Code {
				case v2.ErrorCodeManifestUnknown, v2.ErrorCodeNameUnknown:
					return true
				}
			}
		}
	}
	return false
}
