package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `registry_url: registry.example.com
mirror_url: localhost:5000
image_name: robot/app
instance_ids:
  - app-blue
  - app-green
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "registry.example.com", cfg.RegistryURL)
	assert.Equal(t, []string{"app-blue", "app-green"}, cfg.InstanceIDs)
	assert.Equal(t, "docker-compose.yml", cfg.ComposeFile)
	assert.Equal(t, ".tugboat-snapshot.json", cfg.SnapshotFile)
	assert.Equal(t, 90*time.Second, cfg.HealthTimeout.Duration())
	assert.Equal(t, 5*time.Second, cfg.HealthInterval.Duration())
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval.Duration())
	assert.Equal(t, "glob:*", cfg.TagPattern)

	repo, err := cfg.Repo()
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/robot/app", repo.String())
	mirror, err := cfg.Mirror()
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000/robot/app", mirror.String())
}

func TestParse_Overrides(t *testing.T) {
	doc := minimal + `compose_file: /srv/robot/docker-compose.yml
tag_pattern: "semver:~1"
health_timeout: 2m
insecure_hosts:
  - localhost:5000
verify:
  issuer_regexp: https://token\.actions\.githubusercontent\.com
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "/srv/robot/docker-compose.yml", cfg.ComposeFile)
	assert.Equal(t, "/srv/robot/.tugboat-snapshot.json", cfg.SnapshotFile)
	assert.Equal(t, "/srv/robot/.tugboat.lock", cfg.LockFile)
	assert.Equal(t, 2*time.Minute, cfg.HealthTimeout.Duration())
	assert.Equal(t, []string{"localhost:5000"}, cfg.InsecureHosts)
	assert.NotEmpty(t, cfg.Verify.IssuerRegexp)

	assert.True(t, cfg.Pattern().Matches("1.2.0"))
	assert.False(t, cfg.Pattern().Matches("2.0.0"))
}

func TestParse_RejectsMissingFields(t *testing.T) {
	_, err := Parse([]byte("registry_url: registry.example.com\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image_name")
}

func TestParse_RejectsEmptyInstances(t *testing.T) {
	doc := `registry_url: registry.example.com
mirror_url: localhost:5000
image_name: robot/app
instance_ids: []
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

func TestParse_RejectsBadPattern(t *testing.T) {
	doc := minimal + "tag_pattern: \"regexp:[\"\n"
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tag_pattern")
}

func TestParse_RejectsBadDuration(t *testing.T) {
	doc := minimal + "health_timeout: ninety seconds\n"
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}
