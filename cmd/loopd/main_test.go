package main

import (
	"testing"
)

func TestBuildRootCmd(t *testing.T) {
	cmd := buildRootCmd()
	if cmd.Use != "loopd" {
		t.Errorf("use = %q", cmd.Use)
	}

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"serve", "version"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %q command; have %v", want, names)
		}
	}
}

func TestServeRequiresBackendURL(t *testing.T) {
	t.Setenv("BACKEND_WS_URL", "")

	cmd := buildRootCmd()
	cmd.SetArgs([]string{"serve"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error without BACKEND_WS_URL")
	}
}
