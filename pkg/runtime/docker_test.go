package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inspectHealthy = `[
  {
    "Id": "abc123",
    "State": {
      "Running": true,
      "Health": {
        "Status": "healthy",
        "FailingStreak": 0
      }
    },
    "Config": {
      "Image": "localhost:5000/robot/app:1.0.0"
    },
    "NetworkSettings": {
      "Ports": {
        "5000/tcp": [
          {"HostIp": "0.0.0.0", "HostPort": "5001"}
        ]
      }
    }
  }
]`

const inspectNoHealthcheck = `[
  {
    "State": {"Running": true},
    "Config": {"Image": "prom/prometheus:v2.45.0"},
    "NetworkSettings": {"Ports": {}}
  }
]`

const inspectStopped = `[
  {
    "State": {"Running": false, "Health": {"Status": "unhealthy"}},
    "Config": {"Image": "localhost:5000/robot/app:1.0.0"}
  }
]`

func TestParseInspect_Healthy(t *testing.T) {
	inst, err := parseInspect("robot-1", []byte(inspectHealthy))
	require.NoError(t, err)
	assert.True(t, inst.Running)
	assert.Equal(t, StatusHealthy, inst.Health)
	assert.Equal(t, "localhost:5000/robot/app:1.0.0", inst.Image.String())
	assert.Equal(t, "5001", inst.HostPort("5000/tcp"))
}

func TestParseInspect_NoHealthcheck(t *testing.T) {
	inst, err := parseInspect("prometheus", []byte(inspectNoHealthcheck))
	require.NoError(t, err)
	assert.True(t, inst.Running)
	assert.Equal(t, StatusUnknown, inst.Health)
}

func TestParseInspect_NotRunning(t *testing.T) {
	// A stopped container is classified not-running regardless of any
	// stale health status.
	inst, err := parseInspect("robot-1", []byte(inspectStopped))
	require.NoError(t, err)
	assert.False(t, inst.Running)
	assert.Equal(t, StatusNotRunning, inst.Health)
}

func TestParseInspect_Empty(t *testing.T) {
	inst, err := parseInspect("gone", []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, StatusNotRunning, inst.Health)
}
