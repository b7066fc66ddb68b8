package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workspace != "/workspace" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BACKEND_WS_URL", "ws://backend.example.com/ws")
	t.Setenv("CONTAINER_TOKEN", "tok")
	t.Setenv("LOOPD_WORKSPACE", "/srv/work")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackendWSURL != "ws://backend.example.com/ws" {
		t.Errorf("backend url = %q", cfg.BackendWSURL)
	}
	if cfg.ContainerToken != "tok" {
		t.Errorf("token = %q", cfg.ContainerToken)
	}
	if cfg.Workspace != "/srv/work" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopd.yaml")
	content := `
backend_ws_url: ws://file.example.com/ws
workspace: /data
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackendWSURL != "ws://file.example.com/ws" {
		t.Errorf("backend url = %q", cfg.BackendWSURL)
	}
	if cfg.Workspace != "/data" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopd.yaml")
	if err := os.WriteFile(path, []byte("backend_ws_url: ws://file.example.com/ws\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BACKEND_WS_URL", "ws://env.example.com/ws")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackendWSURL != "ws://env.example.com/ws" {
		t.Errorf("backend url = %q", cfg.BackendWSURL)
	}
}

func TestFileExpandsEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopd.yaml")
	if err := os.WriteFile(path, []byte("container_token: ${TEST_LOOPD_TOKEN}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_LOOPD_TOKEN", "expanded")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ContainerToken != "expanded" {
		t.Errorf("token = %q", cfg.ContainerToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing backend url")
	}
	cfg.BackendWSURL = "ws://backend.example.com/ws"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
