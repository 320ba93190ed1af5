package main

import (
	"bytes"
	"os"
	"testing"
)

func execRoot(t *testing.T, args ...string) *rootOpts {
	t.Helper()
	opts := newRoot()
	cmd := opts.Command()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append(args, "version"))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expecting nil, got error (%s)", err)
	}
	return opts
}

func TestURL_Default(t *testing.T) {
	os.Unsetenv(EnvVariableURL)
	opts := execRoot(t)
	if g := opts.url(); g != "http://localhost:3030" {
		t.Fatalf("expected flag default, got %s", g)
	}
}

func TestURL_FromEnvironment(t *testing.T) {
	os.Setenv(EnvVariableURL, "http://tugd.internal:3030")
	defer os.Unsetenv(EnvVariableURL)
	opts := execRoot(t)
	if g := opts.url(); g != "http://tugd.internal:3030" {
		t.Fatalf("expected environment URL, got %s", g)
	}
}

func TestURL_FlagBeatsEnvironment(t *testing.T) {
	os.Setenv(EnvVariableURL, "http://tugd.internal:3030")
	defer os.Unsetenv(EnvVariableURL)
	opts := execRoot(t, "--url", "http://elsewhere:4040")
	if g := opts.url(); g != "http://elsewhere:4040" {
		t.Fatalf("expected flag URL, got %s", g)
	}
}
