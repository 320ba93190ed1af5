package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tugboat-ci/tugboat/pkg/deploy"
	"github.com/tugboat-ci/tugboat/pkg/mirror"
)

func newTestDaemon(t *testing.T) *Daemon {
	records := mirror.NewMemStore()
	require.NoError(t, records.Set(mirror.Record{
		Tag:          "1.0.0",
		RemoteDigest: "sha256:aaaa",
		LocalDigest:  "sha256:aaaa",
		LastSync:     time.Now().UTC(),
		LastResult:   mirror.ResultSynced,
	}))
	return &Daemon{
		Engine:     &mirror.Engine{Records: records},
		Controller: &deploy.Controller{},
		Version:    "test",
	}
}

func TestStatusEndpoint(t *testing.T) {
	d := newTestDaemon(t)
	srv := httptest.NewServer(d.NewRouter(log.NewNopLogger()))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var status Status
	require.NoError(t, json.NewDecoder(res.Body).Decode(&status))
	assert.Equal(t, "test", status.Version)
	require.Len(t, status.Records, 1)
	assert.Equal(t, "1.0.0", status.Records[0].Tag)
	assert.Equal(t, mirror.ResultSynced, status.Records[0].LastResult)
}

func TestTriggerEndpointsNudgeTheLoop(t *testing.T) {
	d := newTestDaemon(t)
	srv := httptest.NewServer(d.NewRouter(log.NewNopLogger()))
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/v1/sync", "", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	res, err = http.Post(srv.URL+"/api/v1/deploy", "", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	// One of each is queued for the loop to pick up.
	select {
	case <-d.syncSoon:
	default:
		t.Fatal("sync trigger not queued")
	}
	select {
	case <-d.deploySoon:
	default:
		t.Fatal("deploy trigger not queued")
	}
}

func TestAskForSyncCoalesces(t *testing.T) {
	d := &Daemon{}
	d.AskForSync()
	d.AskForSync()
	d.AskForSync()

	<-d.syncSoon
	select {
	case <-d.syncSoon:
		t.Fatal("asks should coalesce into one pending trigger")
	default:
	}
}
