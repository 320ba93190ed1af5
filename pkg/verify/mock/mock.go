package mock

import (
	"context"

	"github.com/tugboat-ci/tugboat/pkg/image"
	"github.com/tugboat-ci/tugboat/pkg/verify"
)

type Verifier struct {
	VerifyFn func(ref image.Ref) error
}

func (m *Verifier) Verify(ctx context.Context, ref image.Ref) error {
	if m.VerifyFn == nil {
		return nil
	}
	return m.VerifyFn(ref)
}

var _ verify.Verifier = &Verifier{}
