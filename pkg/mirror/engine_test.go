package mirror

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tugboat-ci/tugboat/pkg/image"
	"github.com/tugboat-ci/tugboat/pkg/registry"
	registrymock "github.com/tugboat-ci/tugboat/pkg/registry/mock"
	"github.com/tugboat-ci/tugboat/pkg/verify"
	verifymock "github.com/tugboat-ci/tugboat/pkg/verify/mock"
)

const (
	upstreamDomain = "registry.example.com"
	mirrorDomain   = "localhost:5000"

	digestV100 = "sha256:aaaa000000000000000000000000000000000000000000000000000000000000"
	digestV110 = "sha256:bbbb000000000000000000000000000000000000000000000000000000000000"
)

// fakeMirror tracks what has been pushed to the local registry.
type fakeMirror struct {
	mu      sync.Mutex
	digests map[string]string
}

func (m *fakeMirror) client() registry.Client {
	return &registrymock.Client{
		TagsFn: func() ([]string, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			var tags []string
			for tag := range m.digests {
				tags = append(tags, tag)
			}
			return tags, nil
		},
		DigestFn: func(tag string) (string, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if d, ok := m.digests[tag]; ok {
				return d, nil
			}
			return "", errors.Wrap(registry.ErrNotFound, tag)
		},
	}
}

type fakeFactory struct {
	clients map[string]registry.Client
}

func (f *fakeFactory) ClientFor(repo image.CanonicalName, _ registry.Credentials) (registry.Client, error) {
	c, ok := f.clients[repo.Domain]
	if !ok {
		return nil, errors.Errorf("no client for %s", repo.Domain)
	}
	return c, nil
}

func (f *fakeFactory) Succeed(image.CanonicalName) {}

type fixture struct {
	engine   *Engine
	mirror   *fakeMirror
	remote   map[string]string // tag -> digest
	copies   []string
	verified []string
}

func newFixture(t *testing.T, remoteTags map[string]string) *fixture {
	fx := &fixture{
		mirror: &fakeMirror{digests: map[string]string{}},
		remote: remoteTags,
	}
	remoteClient := &registrymock.Client{
		TagsFn: func() ([]string, error) {
			var tags []string
			for tag := range fx.remote {
				tags = append(tags, tag)
			}
			return tags, nil
		},
		DigestFn: func(tag string) (string, error) {
			if d, ok := fx.remote[tag]; ok {
				return d, nil
			}
			return "", errors.Wrap(registry.ErrNotFound, tag)
		},
	}

	repo, err := image.ParseRef(upstreamDomain + "/robot/app")
	require.NoError(t, err)
	mirrorName := repo.Name.WithDomain(mirrorDomain)

	fx.engine = &Engine{
		Repo:   repo.Name,
		Mirror: mirrorName,
		Factory: &fakeFactory{clients: map[string]registry.Client{
			upstreamDomain: remoteClient,
			mirrorDomain:   fx.mirror.client(),
		}},
		Creds: registry.NoCredentials(),
		Verifier: &verifymock.Verifier{VerifyFn: func(ref image.Ref) error {
			fx.verified = append(fx.verified, ref.Tag)
			return nil
		}},
		Transfer: TransferFunc(func(ctx context.Context, src, dst image.Ref) error {
			fx.copies = append(fx.copies, src.Tag)
			fx.mirror.mu.Lock()
			fx.mirror.digests[dst.Tag] = fx.remote[src.Tag]
			fx.mirror.mu.Unlock()
			return nil
		}),
		Records: NewMemStore(),
	}
	return fx
}

func TestSync_FirstSyncPullsEverything(t *testing.T) {
	fx := newFixture(t, map[string]string{"1.0.0": digestV100, "1.1.0": digestV110})

	summary, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Discovered)
	assert.ElementsMatch(t, []string{"1.0.0", "1.1.0"}, summary.Synced)
	assert.ElementsMatch(t, []string{"1.0.0", "1.1.0"}, fx.copies)
}

func TestSync_Idempotent(t *testing.T) {
	// Running the engine twice in a row with no remote changes
	// performs zero transfers on the second run.
	fx := newFixture(t, map[string]string{"1.0.0": digestV100})

	_, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, fx.copies, 1)

	summary, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, fx.copies, 1, "second run must not transfer")
	assert.Equal(t, 1, summary.UpToDate)
	assert.Empty(t, summary.Synced)
}

func TestSync_DigestEqualityShortCircuits(t *testing.T) {
	// When remote digest == local digest, neither verification nor
	// transfer is attempted for that tag.
	fx := newFixture(t, map[string]string{"1.0.0": digestV100})
	fx.mirror.digests["1.0.0"] = digestV100

	summary, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fx.verified)
	assert.Empty(t, fx.copies)
	assert.Equal(t, 1, summary.UpToDate)
}

func TestSync_NoUnsignedPromotion(t *testing.T) {
	// A tag that fails verification keeps its mirror digest unchanged
	// after the cycle, and other tags still sync.
	fx := newFixture(t, map[string]string{"1.0.0": digestV100, "1.1.0": digestV110})
	fx.engine.Verifier = &verifymock.Verifier{VerifyFn: func(ref image.Ref) error {
		if ref.Tag == "1.1.0" {
			return &verify.VerificationError{Ref: ref, Err: errors.New("no matching signatures")}
		}
		return nil
	}}

	summary, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, fx.copies)
	assert.Equal(t, []string{"1.1.0"}, summary.Skipped)

	_, present := fx.mirror.digests["1.1.0"]
	assert.False(t, present, "unverified tag must not reach the mirror")

	rec, ok, err := fx.engine.Records.Get("1.1.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ResultSkippedVerification, rec.LastResult)
	assert.Empty(t, rec.LocalDigest)
}

func TestSync_ResolutionFailureSkipsOnlyThatTag(t *testing.T) {
	fx := newFixture(t, nil)
	remoteClient := &registrymock.Client{
		TagsFn: func() ([]string, error) { return []string{"1.0.0", "broken"}, nil },
		DigestFn: func(tag string) (string, error) {
			if tag == "broken" {
				return "", errors.New("499 unexpected status")
			}
			return digestV100, nil
		},
	}
	fx.engine.Factory = &fakeFactory{clients: map[string]registry.Client{
		upstreamDomain: remoteClient,
		mirrorDomain:   fx.mirror.client(),
	}}

	summary, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, summary.Synced)
	assert.Equal(t, []string{"broken"}, summary.Skipped)
}

func TestSync_EmptyDiscoveryIsNoOp(t *testing.T) {
	fx := newFixture(t, map[string]string{})
	summary, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Discovered)
	assert.Empty(t, fx.copies)
}

func TestSync_DiscoveryFailure(t *testing.T) {
	fx := newFixture(t, nil)
	fx.engine.Factory = &fakeFactory{clients: map[string]registry.Client{
		upstreamDomain: &registrymock.Client{
			TagsFn: func() ([]string, error) { return nil, errors.New("connection refused") },
		},
		mirrorDomain: fx.mirror.client(),
	}}

	_, err := fx.engine.Sync(context.Background())
	require.Error(t, err)
	_, ok := err.(*registry.DiscoveryError)
	assert.True(t, ok, "discovery failures are typed for retry next cycle")
}

func TestScenario_NewTagSyncedLatestExcluded(t *testing.T) {
	// Tags ["1.0.0","1.1.0","latest"] discovered; the mirror has only
	// 1.0.0; 1.1.0 differs and its signature is valid.
	fx := newFixture(t, map[string]string{
		"1.0.0":  digestV100,
		"1.1.0":  digestV110,
		"latest": digestV110,
	})
	fx.mirror.digests["1.0.0"] = digestV100

	summary, err := fx.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.1.0", "latest"}, summary.Synced)
	assert.Equal(t, 1, summary.UpToDate)

	rec, ok, err := fx.engine.Records.Get("1.1.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, digestV110, rec.LocalDigest)
	assert.Equal(t, ResultSynced, rec.LastResult)

	// `latest` is excluded from desired-tag selection, and the
	// candidate carries its sync record's digest and sync time.
	latest, err := fx.engine.LatestTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mirrorDomain+"/robot/app:1.1.0", latest.ID.String())
	assert.Equal(t, digestV110, latest.Digest)
	assert.Equal(t, rec.LastSync, latest.LastFetched)
}

func TestLatestTag_NoCandidates(t *testing.T) {
	fx := newFixture(t, nil)
	fx.mirror.digests["latest"] = digestV100

	_, err := fx.engine.LatestTag(context.Background())
	assert.Equal(t, ErrNoCandidates, errors.Cause(err))
}
