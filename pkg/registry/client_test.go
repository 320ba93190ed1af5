package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docker/distribution/registry/api/errcode"
	v2 "github.com/docker/distribution/registry/api/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

func mustName(t *testing.T, s string) image.CanonicalName {
	ref, err := image.ParseRef(s)
	require.NoError(t, err)
	return ref.CanonicalName()
}

func TestRemote_TagsFiltersSignatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/robot/app/tags/list":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"name": "robot/app",
				"tags": []string{
					"1.0.0",
					"sha256-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.sig",
					"1.1.0",
					"sha256-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.att",
					"latest",
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	remote := &Remote{
		transport: http.DefaultTransport,
		repo:      mustName(t, "registry.example.com/robot/app"),
		base:      srv.URL,
	}
	tags, err := remote.Tags(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.0.0", "1.1.0", "latest"}, tags)
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("some other error")))

	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(errors.Wrap(ErrNotFound, "looking up tag")))

	assert.True(t, IsNotFound(errcode.Errors{errcode.Error{Code: v2.ErrorCodeManifestUnknown}}))
	assert.True(t, IsNotFound(errcode.Errors{errcode.Error{Code: v2.ErrorCodeNameUnknown}}))
	assert.False(t, IsNotFound(errcode.Errors{errcode.Error{Code: errcode.ErrorCodeDenied}}))
}

func TestNamed_NameIsPathOnly(t *testing.T) {
	n := named{mustName(t, "registry.example.com/robot/app")}
	assert.Equal(t, "robot/app", n.Name())
}
