package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobPattern(t *testing.T) {
	p := NewPattern("glob:1.*")
	assert.True(t, p.Matches("1.0.0"))
	assert.True(t, p.Matches("1.2.3"))
	assert.False(t, p.Matches("2.0.0"))
	assert.True(t, p.Valid())

	// no prefix implies glob
	assert.True(t, NewPattern("*").Matches("anything"))
}

func TestSemverPattern(t *testing.T) {
	p := NewPattern("semver:>=1.0.0 <2.0.0")
	assert.True(t, p.Matches("1.5.0"))
	assert.False(t, p.Matches("2.0.0"))
	assert.False(t, p.Matches("not-a-version"))
	assert.True(t, p.Valid())

	assert.False(t, NewPattern("semver:[[").Valid())
}

func TestRegexpPattern(t *testing.T) {
	p := NewPattern("regexp:^v[0-9]+$")
	assert.True(t, p.Matches("v1"))
	assert.False(t, p.Matches("1"))
	assert.True(t, p.Valid())

	// alternative prefix
	assert.True(t, NewPattern("regex:^a").Matches("abc"))

	invalid := NewPattern("regexp:(")
	assert.False(t, invalid.Valid())
	assert.False(t, invalid.Matches("anything"))
}
