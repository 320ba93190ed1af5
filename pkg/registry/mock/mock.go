package mock

import (
	"context"

	"github.com/tugboat-ci/tugboat/pkg/image"
	"github.com/tugboat-ci/tugboat/pkg/registry"
)

type Client struct {
	TagsFn   func() ([]string, error)
	DigestFn func(tag string) (string, error)
}

func (m *Client) Tags(context.Context) ([]string, error) {
	return m.TagsFn()
}

func (m *Client) Digest(ctx context.Context, tag string) (string, error) {
	return m.DigestFn(tag)
}

var _ registry.Client = &Client{}

type ClientFactory struct {
	Client registry.Client
	Err    error
}

func (m *ClientFactory) ClientFor(repository image.CanonicalName, creds registry.Credentials) (registry.Client, error) {
	return m.Client, m.Err
}

func (_ *ClientFactory) Succeed(_ image.CanonicalName) {
	return
}

var _ registry.ClientFactory = &ClientFactory{}
