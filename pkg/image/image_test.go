package image

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	for _, tc := range []struct {
		in     string
		domain string
		image  string
		tag    string
	}{
		{"alpine", "", "alpine", ""},
		{"alpine:3.5", "", "alpine", "3.5"},
		{"library/alpine:3.5", "", "library/alpine", "3.5"},
		{"localhost:5000/robot/app:1.0.0", "localhost:5000", "robot/app", "1.0.0"},
		{"quay.io/some/path/to/repo:v1", "quay.io", "some/path/to/repo", "v1"},
	} {
		ref, err := ParseRef(tc.in)
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.domain, ref.Domain)
		assert.Equal(t, tc.image, ref.Image)
		assert.Equal(t, tc.tag, ref.Tag)
		assert.Equal(t, tc.in, ref.String())
	}
}

func TestParseRefErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"/leading",
		"trailing/",
		"a:b:c:d",
	} {
		_, err := ParseRef(in)
		assert.Error(t, err, in)
	}
}

func TestCanonicalRef(t *testing.T) {
	ref, err := ParseRef("alpine:3.5")
	assert.NoError(t, err)
	assert.Equal(t, "index.docker.io/library/alpine:3.5", ref.CanonicalRef().String())

	ref, err = ParseRef("localhost:5000/robot/app:1.0.0")
	assert.NoError(t, err)
	assert.Equal(t, "localhost:5000/robot/app:1.0.0", ref.CanonicalRef().String())
}

func TestSignatureTags(t *testing.T) {
	sig := "sha256-" + strings.Repeat("ab", 32) + ".sig"
	assert.True(t, IsSignatureTag(sig))
	assert.False(t, IsCandidateTag(sig))
	assert.False(t, IsCandidateTag("latest"))
	assert.True(t, IsCandidateTag("1.1.0"))
	assert.True(t, IsCandidateTag("nightly"))
	// attestation and SBOM pseudo-tags are excluded too
	assert.True(t, IsSignatureTag("sha256-"+strings.Repeat("00", 32)+".att"))
}

func mustMakeInfo(t *testing.T, ref string) Info {
	r, err := ParseRef(ref)
	if err != nil {
		t.Fatal(err)
	}
	return Info{ID: r}
}

func TestSort_NewerBySemver(t *testing.T) {
	infos := []Info{
		mustMakeInfo(t, "robot/app:nightly"),
		mustMakeInfo(t, "robot/app:1.0.0"),
		mustMakeInfo(t, "robot/app:2.0.0-rc1"),
		mustMakeInfo(t, "robot/app:1.10.0"),
		mustMakeInfo(t, "robot/app:1.2.0"),
	}
	Sort(infos, NewerBySemver)

	var tags []string
	for _, i := range infos {
		tags = append(tags, i.ID.Tag)
	}
	// Semver-parseable tags rank above the rest; prereleases are
	// ordered by semver rules.
	assert.Equal(t, []string{"2.0.0-rc1", "1.10.0", "1.2.0", "1.0.0", "nightly"}, tags)
}

func TestSort_NonSemverDescending(t *testing.T) {
	infos := []Info{
		mustMakeInfo(t, "robot/app:beta"),
		mustMakeInfo(t, "robot/app:alpha"),
	}
	Sort(infos, NewerBySemver)
	assert.Equal(t, "beta", infos[0].ID.Tag)
}
