// Package mirror brings a local registry into agreement with
// verified remote state, one tag at a time, idempotently.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/image"
	"github.com/tugboat-ci/tugboat/pkg/policy"
	"github.com/tugboat-ci/tugboat/pkg/registry"
	"github.com/tugboat-ci/tugboat/pkg/verify"
)

// ErrNoCandidates means the mirror holds no tag eligible for
// rollout (it may be empty, or hold only floating tags).
var ErrNoCandidates = errors.New("no candidate tags in mirror")

// Summary is the outcome of one sync cycle. A cycle with nothing to
// do is a no-op, not an error.
type Summary struct {
	Discovered int      `json:"discovered"`
	UpToDate   int      `json:"up_to_date"`
	Synced     []string `json:"synced,omitempty"`
	Skipped    []string `json:"skipped,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}

func (s Summary) String() string {
	return fmt.Sprintf("discovered=%d up-to-date=%d synced=%d skipped=%d failed=%d",
		s.Discovered, s.UpToDate, len(s.Synced), len(s.Skipped), len(s.Failed))
}

// Engine does discovery, digest comparison, signature verification
// and transfer for one repository.
type Engine struct {
	// Repo is the upstream repository; Mirror is its home in the
	// local registry.
	Repo   image.Name
	Mirror image.Name

	Factory  registry.ClientFactory
	Creds    registry.Credentials
	Verifier verify.Verifier
	Transfer Transfer
	Records  Store
	// Pattern restricts which tags are sync candidates; defaults to
	// all (signature pseudo-tags are already excluded by discovery).
	Pattern policy.Pattern
	Logger  log.Logger
}

func (e *Engine) logger() log.Logger {
	if e.Logger == nil {
		return log.NewNopLogger()
	}
	return e.Logger
}

func (e *Engine) pattern() policy.Pattern {
	if e.Pattern == nil {
		return policy.PatternAll
	}
	return e.Pattern
}

// Sync runs one mirror cycle. Per-tag failures are recorded and
// skipped; only a failure to discover tags at all is returned as an
// error (a *registry.DiscoveryError, retried next cycle).
func (e *Engine) Sync(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary, err := e.sync(ctx)
	syncDuration.With(
		"success", fmt.Sprint(err == nil),
	).Observe(time.Since(started).Seconds())
	return summary, err
}

func (e *Engine) sync(ctx context.Context) (Summary, error) {
	var summary Summary
	logger := e.logger()

	remote, err := e.Factory.ClientFor(e.Repo.CanonicalName(), e.Creds)
	if err != nil {
		return summary, &registry.DiscoveryError{Repo: e.Repo, Err: err}
	}
	tags, err := remote.Tags(ctx)
	if err != nil {
		return summary, &registry.DiscoveryError{Repo: e.Repo, Err: err}
	}
	summary.Discovered = len(tags)
	if len(tags) == 0 {
		// Nothing published yet; nothing to sync.
		logger.Log("msg", "no tags discovered", "repo", e.Repo.String())
		return summary, nil
	}

	local, err := e.Factory.ClientFor(e.Mirror.CanonicalName(), e.Creds)
	if err != nil {
		return summary, errors.Wrap(err, "constructing mirror client")
	}

	for _, tag := range tags {
		if !e.pattern().Matches(tag) && tag != image.TagLatest {
			continue
		}
		result := e.syncTag(ctx, remote, local, tag)
		switch result {
		case ResultUpToDate:
			summary.UpToDate++
		case ResultSynced:
			summary.Synced = append(summary.Synced, tag)
		case ResultFailedTransfer:
			summary.Failed = append(summary.Failed, tag)
		default:
			summary.Skipped = append(summary.Skipped, tag)
		}
	}

	e.Factory.Succeed(e.Repo.CanonicalName())
	logger.Log("msg", "sync cycle complete", "repo", e.Repo.String(), "summary", summary.String())
	return summary, nil
}

// syncTag runs steps 2-6 of the cycle for one tag and records the
// outcome. The record's LocalDigest is only advanced after the
// transfer has confirmed the push.
func (e *Engine) syncTag(ctx context.Context, remote, local registry.Client, tag string) string {
	logger := log.With(e.logger(), "tag", tag)

	rec, ok, err := e.Records.Get(tag)
	if err != nil {
		logger.Log("err", err)
	}
	if !ok {
		rec = Record{Tag: tag}
	}

	finish := func(result string) string {
		rec.LastSync = time.Now().UTC()
		rec.LastResult = result
		if err := e.Records.Set(rec); err != nil {
			logger.Log("err", errors.Wrap(err, "storing sync record"))
		}
		return result
	}

	remoteDigest, err := remote.Digest(ctx, tag)
	if err != nil {
		logger.Log("msg", "skipping tag", "err", &registry.ResolutionError{Ref: e.Repo.ToRef(tag), Err: err})
		return finish(ResultSkippedResolution)
	}
	rec.RemoteDigest = remoteDigest

	localDigest, err := local.Digest(ctx, tag)
	switch {
	case err == nil:
	case registry.IsNotFound(err):
		localDigest = "" // first sync for this tag
	default:
		logger.Log("msg", "skipping tag", "err", &registry.ResolutionError{Ref: e.Mirror.ToRef(tag), Err: err})
		return finish(ResultSkippedResolution)
	}

	if localDigest == remoteDigest {
		// Same artifact, regardless of tag string; no pull, no verify.
		rec.LocalDigest = localDigest
		return finish(ResultUpToDate)
	}

	// Verify against the mutable tag reference, so a re-pointed tag
	// is re-validated.
	if err := e.Verifier.Verify(ctx, e.Repo.ToRef(tag)); err != nil {
		logger.Log("msg", "refusing unverified tag", "err", err)
		return finish(ResultSkippedVerification)
	}

	if err := e.Transfer.Copy(ctx, e.Repo.ToRef(tag), e.Mirror.ToRef(tag)); err != nil {
		transfersTotal.With("success", "false").Add(1)
		logger.Log("msg", "transfer failed", "err", err)
		return finish(ResultFailedTransfer)
	}
	transfersTotal.With("success", "true").Add(1)

	rec.LocalDigest = remoteDigest
	logger.Log("msg", "tag mirrored", "digest", remoteDigest)
	return finish(ResultSynced)
}

// LatestTag selects the newest rollout candidate present in the
// mirror: `latest` and signature pseudo-tags are excluded, and
// remaining tags are ordered by the pattern's rule (semver above
// lexicographic by default). The candidate's digest and sync time
// are filled in from the tag's sync record, when there is one.
func (e *Engine) LatestTag(ctx context.Context) (image.Info, error) {
	local, err := e.Factory.ClientFor(e.Mirror.CanonicalName(), e.Creds)
	if err != nil {
		return image.Info{}, errors.Wrap(err, "constructing mirror client")
	}
	tags, err := local.Tags(ctx)
	if err != nil {
		return image.Info{}, errors.Wrap(err, "listing mirror tags")
	}

	var infos []image.Info
	for _, tag := range tags {
		if !image.IsCandidateTag(tag) || !e.pattern().Matches(tag) {
			continue
		}
		infos = append(infos, image.Info{ID: e.Mirror.ToRef(tag)})
	}
	if len(infos) == 0 {
		return image.Info{}, ErrNoCandidates
	}
	image.Sort(infos, e.pattern().Newer)

	candidate := infos[0]
	if e.Records != nil {
		if rec, ok, err := e.Records.Get(candidate.ID.Tag); err == nil && ok {
			candidate.Digest = rec.LocalDigest
			candidate.LastFetched = rec.LastSync
		}
	}
	return candidate, nil
}
