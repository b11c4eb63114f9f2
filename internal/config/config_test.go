// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Driver.Network != "opencommander" {
		t.Errorf("expected driver.network=opencommander, got %s", cfg.Driver.Network)
	}
	if cfg.Proxy.PreConnectBufferBytes != 1<<20 {
		t.Errorf("expected pre_connect_buffer_bytes=1MiB, got %d", cfg.Proxy.PreConnectBufferBytes)
	}
	if cfg.Ports.FrontDoor != 3000 {
		t.Errorf("expected ports.front_door=3000, got %d", cfg.Ports.FrontDoor)
	}
	if cfg.Ports.HTTP != 3001 {
		t.Errorf("expected ports.http=3001, got %d", cfg.Ports.HTTP)
	}
	if cfg.Ports.Proxy != 7682 {
		t.Errorf("expected ports.proxy=7682, got %d", cfg.Ports.Proxy)
	}
}

func TestLoadRequiresOpencommanderConfig(t *testing.T) {
	origConfig := os.Getenv("OPENCOMMANDER_CONFIG")
	defer os.Setenv("OPENCOMMANDER_CONFIG", origConfig)
	os.Unsetenv("OPENCOMMANDER_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when OPENCOMMANDER_CONFIG not set, got nil")
	}

	expectedPrefix := "OPENCOMMANDER_CONFIG environment variable not set"
	if got := err.Error(); len(got) < len(expectedPrefix) || got[:len(expectedPrefix)] != expectedPrefix {
		t.Errorf("expected error to start with %q, got %q", expectedPrefix, got)
	}
}

func TestLoadWithOpencommanderConfig(t *testing.T) {
	origConfig := os.Getenv("OPENCOMMANDER_CONFIG")
	defer os.Setenv("OPENCOMMANDER_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "opencommander.yaml")

	configContent := `
environment: staging
paths:
  root: /test/root
proxy:
  upstream_socket_path: /test/wsproxy.sock
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("OPENCOMMANDER_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
}

func TestLoadFileAppliesEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "opencommander.yaml")

	configContent := `
environment: staging

paths:
  root: /custom/root

driver:
  network: custom-net

proxy:
  upstream_socket_path: /custom/wsproxy.sock

staging:
  driver:
    network: staging-net
  proxy:
    pre_connect_buffer_bytes: 2097152
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Driver.Network != "staging-net" {
		t.Errorf("expected staging override driver.network=staging-net, got %s", cfg.Driver.Network)
	}
	if cfg.Proxy.PreConnectBufferBytes != 2097152 {
		t.Errorf("expected staging override pre_connect_buffer_bytes=2097152, got %d", cfg.Proxy.PreConnectBufferBytes)
	}
	if cfg.Paths.Root != "/custom/root" {
		t.Errorf("expected unoverridden root=/custom/root, got %s", cfg.Paths.Root)
	}
}

func TestPortEnvironmentOverrideTakesPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "opencommander.yaml")

	if err := os.WriteFile(configPath, []byte("environment: development\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	origPort := os.Getenv("OPENCOMMANDER_PROXY_PORT")
	defer os.Setenv("OPENCOMMANDER_PROXY_PORT", origPort)
	os.Setenv("OPENCOMMANDER_PROXY_PORT", "9001")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Ports.Proxy != 9001 {
		t.Errorf("expected env override ports.proxy=9001, got %d", cfg.Ports.Proxy)
	}
}

func TestExpandVariables(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "opencommander.yaml")

	configContent := `
environment: development
paths:
  root: /srv/oc
  state: ${OC_ROOT}/state
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.State != "/srv/oc/state" {
		t.Errorf("expected expanded state=/srv/oc/state, got %s", cfg.Paths.State)
	}
}

func TestValidateRejectsBadEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Environment = "nonsense"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an unknown environment")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Default()
	cfg.Ports.FrontDoor = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an out-of-range port")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}
