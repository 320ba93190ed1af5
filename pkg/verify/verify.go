// Package verify gates artifact promotion on cryptographic
// signatures, by invoking the cosign tool against a tag reference.
// Verification is always performed against the mutable tag, not a
// digest, so that a re-pointed tag is re-validated.
package verify

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

const (
	// MatchAny accepts any signing identity or issuer. The trust
	// boundary by default is "signature exists and is
	// cryptographically valid"; callers wanting a stricter policy
	// supply narrower patterns.
	MatchAny = ".*"

	defaultBinary  = "cosign"
	defaultTimeout = 60 * time.Second
)

// Verifier decides whether an artifact at a tag reference carries an
// acceptable signature.
type Verifier interface {
	Verify(ctx context.Context, ref image.Ref) error
}

// VerificationError carries the tool's diagnostic output. It
// disqualifies one tag for one cycle; it is never fatal to a sync.
type VerificationError struct {
	Ref    image.Ref
	Output string
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("signature verification failed for %s: %v", e.Ref, e.Err)
}

func (e *VerificationError) Cause() error {
	return e.Err
}

// CosignVerifier verifies signatures by running the cosign CLI,
// keyless by default (with identity and issuer patterns), or against
// a fixed public key when KeyPath is set.
type CosignVerifier struct {
	// Binary is the cosign executable; looked up on PATH if not
	// absolute. Defaults to "cosign".
	Binary string
	// IdentityRegexp and IssuerRegexp constrain who may have signed.
	// Both default to MatchAny.
	IdentityRegexp string
	IssuerRegexp   string
	// KeyPath, if set, switches to key-based verification and the
	// identity/issuer patterns are not used.
	KeyPath string
	// AllowInsecureRegistry permits HTTP registries (the local
	// mirror, typically).
	AllowInsecureRegistry bool
	Timeout               time.Duration
}

func (v *CosignVerifier) args(ref image.Ref) []string {
	args := []string{"verify"}
	if v.KeyPath != "" {
		args = append(args, "--key", v.KeyPath)
	} else {
		identity := v.IdentityRegexp
		if identity == "" {
			identity = MatchAny
		}
		issuer := v.IssuerRegexp
		if issuer == "" {
			issuer = MatchAny
		}
		args = append(args,
			"--certificate-identity-regexp", identity,
			"--certificate-oidc-issuer-regexp", issuer,
		)
	}
	if v.AllowInsecureRegistry {
		args = append(args, "--allow-insecure-registry")
	}
	return append(args, ref.String())
}

func (v *CosignVerifier) Verify(ctx context.Context, ref image.Ref) error {
	binary := v.Binary
	if binary == "" {
		binary = defaultBinary
	}
	timeout := v.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, v.args(ref)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &VerificationError{Ref: ref, Output: string(out), Err: err}
	}
	return nil
}

var _ Verifier = &CosignVerifier{}
