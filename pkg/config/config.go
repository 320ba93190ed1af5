// Package config loads the controller configuration file. The file
// is YAML, validated against a schema before use, and sparse: any
// field left out takes its default.
package config

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/ghodss/yaml"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tugboat-ci/tugboat/pkg/image"
	"github.com/tugboat-ci/tugboat/pkg/policy"
)

// Duration unmarshals from a YAML string in time.ParseDuration
// syntax, e.g. "90s" or "5m".
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Verify holds the signature verification policy. With no key, the
// keyless flow is used, constrained by the identity and issuer
// regexps (both default to match-any).
type Verify struct {
	Key            string `json:"key,omitempty"`
	IdentityRegexp string `json:"identity_regexp,omitempty"`
	IssuerRegexp   string `json:"issuer_regexp,omitempty"`
}

// Config is the controller configuration.
type Config struct {
	// RegistryURL is the upstream registry host; MirrorURL is the
	// local registry artifacts are promoted into.
	RegistryURL string `json:"registry_url"`
	MirrorURL   string `json:"mirror_url"`

	// ImageName is the repository path, without a registry host.
	ImageName string `json:"image_name"`

	// TagPattern restricts which tags are sync and rollout
	// candidates, e.g. "semver:~1" or "glob:release-*".
	TagPattern string `json:"tag_pattern,omitempty"`

	ComposeFile  string `json:"compose_file,omitempty"`
	SnapshotFile string `json:"snapshot_file,omitempty"`
	LockFile     string `json:"lock_file,omitempty"`

	InstanceIDs []string `json:"instance_ids"`

	HealthTimeout  Duration `json:"health_timeout,omitempty"`
	HealthInterval Duration `json:"health_interval,omitempty"`

	SyncInterval   Duration `json:"sync_interval,omitempty"`
	DeployInterval Duration `json:"deploy_interval,omitempty"`

	// CredentialsFile is a Docker config.json used for upstream
	// registry auth. Empty means anonymous.
	CredentialsFile string `json:"credentials_file,omitempty"`

	// InsecureHosts are registry hosts spoken to over HTTP; the local
	// mirror typically belongs here.
	InsecureHosts []string `json:"insecure_hosts,omitempty"`

	// MemcachedHosts enables the shared sync record store; empty
	// keeps records in process memory.
	MemcachedHosts []string `json:"memcached_hosts,omitempty"`

	Verify Verify `json:"verify,omitempty"`
}

// Defaults returns the configuration applied underneath whatever the
// file provides.
func Defaults() Config {
	return Config{
		TagPattern:     policy.PatternAll.String(),
		ComposeFile:    "docker-compose.yml",
		HealthTimeout:  Duration(90 * time.Second),
		HealthInterval: Duration(5 * time.Second),
		SyncInterval:   Duration(5 * time.Minute),
		DeployInterval: Duration(1 * time.Minute),
	}
}

var schema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"registry_url", "mirror_url", "image_name", "instance_ids"},
	"properties": map[string]interface{}{
		"registry_url": map[string]interface{}{"type": "string", "minLength": 1},
		"mirror_url":   map[string]interface{}{"type": "string", "minLength": 1},
		"image_name":   map[string]interface{}{"type": "string", "minLength": 1},
		"instance_ids": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]interface{}{"type": "string", "minLength": 1},
		},
	},
}

// Parse decodes, defaults and validates configuration bytes.
func Parse(b []byte) (Config, error) {
	var cfg Config

	jsonBytes, err := yaml.YAMLToJSON(b)
	if err != nil {
		return cfg, errors.Wrap(err, "parsing config YAML")
	}
	var doc interface{}
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return cfg, errors.Wrap(err, "parsing config")
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return cfg, errors.Wrap(err, "validating config")
	}
	if !result.Valid() {
		err := errors.New("invalid config")
		for _, desc := range result.Errors() {
			err = errors.Wrap(err, desc.String())
		}
		return cfg, err
	}

	if err := json.Unmarshal(jsonBytes, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing config")
	}
	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return cfg, err
	}
	if cfg.SnapshotFile == "" {
		cfg.SnapshotFile = filepath.Join(filepath.Dir(cfg.ComposeFile), ".tugboat-snapshot.json")
	}
	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Join(filepath.Dir(cfg.ComposeFile), ".tugboat.lock")
	}

	if !policy.NewPattern(cfg.TagPattern).Valid() {
		return cfg, errors.Errorf("invalid tag_pattern %q", cfg.TagPattern)
	}
	if _, err := cfg.Repo(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Mirror(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config file %s", path)
	}
	cfg, err := Parse(b)
	return cfg, errors.Wrapf(err, "in config file %s", path)
}

// Repo is the upstream repository as an image name.
func (c Config) Repo() (image.Name, error) {
	ref, err := image.ParseRef(c.RegistryURL + "/" + c.ImageName)
	if err != nil {
		return image.Name{}, errors.Wrap(err, "constructing upstream repository name")
	}
	return ref.Name, nil
}

// Mirror is the repository's home in the local registry.
func (c Config) Mirror() (image.Name, error) {
	ref, err := image.ParseRef(c.MirrorURL + "/" + c.ImageName)
	if err != nil {
		return image.Name{}, errors.Wrap(err, "constructing mirror repository name")
	}
	return ref.Name, nil
}

// Pattern is the parsed tag pattern.
func (c Config) Pattern() policy.Pattern {
	return policy.NewPattern(c.TagPattern)
}
