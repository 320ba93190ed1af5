package compose

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

const composeDoc = `version: "3.8"
services:
  robot-1:
    image: localhost:5000/robot/app:1.0.0
    environment:
      ROBOT_ID: "1"
    ports:
      - "5001:5000"
    healthcheck:
      test: ["CMD", "curl", "-f", "http://localhost:5000/health"]
  robot-2:
    image: localhost:5000/robot/app:1.0.0
    environment:
      ROBOT_ID: "2"
  prometheus:
    image: prom/prometheus:v2.45.0
`

func TestServiceImage(t *testing.T) {
	f, err := Parse([]byte(composeDoc))
	require.NoError(t, err)

	ref, err := f.ServiceImage("robot-1")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000/robot/app:1.0.0", ref.String())

	_, err = f.ServiceImage("no-such-service")
	assert.Error(t, err)
}

func TestSetServiceImage_PreservesOtherFields(t *testing.T) {
	f, err := Parse([]byte(composeDoc))
	require.NoError(t, err)

	newRef, err := image.ParseRef("localhost:5000/robot/app:1.1.0")
	require.NoError(t, err)
	require.NoError(t, f.SetServiceImage("robot-1", newRef))

	out, err := f.Bytes()
	require.NoError(t, err)

	// Round-trip and check the mutation took, and nothing else moved.
	g, err := Parse(out)
	require.NoError(t, err)

	got, err := g.ServiceImage("robot-1")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000/robot/app:1.1.0", got.String())

	unchanged, err := g.ServiceImage("robot-2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000/robot/app:1.0.0", unchanged.String())

	env := g.doc.Search("services", "robot-1", "environment", "ROBOT_ID").Data()
	assert.Equal(t, "1", env)
	hc := g.doc.Search("services", "robot-1", "healthcheck", "test")
	assert.NotNil(t, hc)
}

func TestServicesUsing(t *testing.T) {
	f, err := Parse([]byte(composeDoc))
	require.NoError(t, err)

	name, err := image.ParseRef("localhost:5000/robot/app")
	require.NoError(t, err)

	using := f.ServicesUsing(name.Name)
	assert.ElementsMatch(t, []string{"robot-1", "robot-2"}, using)
}

func TestLoadSave(t *testing.T) {
	dir, err := ioutil.TempDir("", "compose-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(composeDoc), 0644))

	f, err := Load(path)
	require.NoError(t, err)

	newRef, err := image.ParseRef("localhost:5000/robot/app:2.0.0")
	require.NoError(t, err)
	require.NoError(t, f.SetServiceImage("robot-2", newRef))
	require.NoError(t, f.Save(path))

	g, err := Load(path)
	require.NoError(t, err)
	got, err := g.ServiceImage("robot-2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000/robot/app:2.0.0", got.String())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("not: a compose file"))
	assert.Equal(t, ErrNoServices, err)

	_, err = Parse([]byte("\t{nonsense"))
	assert.Error(t, err)
}
