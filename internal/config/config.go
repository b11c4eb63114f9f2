// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Open Commander.
//
// Configuration is loaded from a single file specified by:
//   - OPENCOMMANDER_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for Open Commander.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures the relational entity store.
	Store StoreConfig `yaml:"store"`

	// Driver configures the container engine connection.
	Driver DriverConfig `yaml:"driver"`

	// Workspace configures the Git workspace service.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Proxy configures the WebSocket multiplexing proxy and its
	// front-door forwarder.
	Proxy ProxyConfig `yaml:"proxy"`

	// Ports configures the environment-scoped port block used by
	// §6.4 (grounded on lib/config's override-block pattern).
	Ports PortsConfig `yaml:"ports"`

	// EnvironmentOverrides contains per-environment overrides applied
	// after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Store     *StoreConfig     `yaml:"store,omitempty"`
	Driver    *DriverConfig    `yaml:"driver,omitempty"`
	Workspace *WorkspaceConfig `yaml:"workspace,omitempty"`
	Proxy     *ProxyConfig     `yaml:"proxy,omitempty"`
	Ports     *PortsConfig     `yaml:"ports,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Open Commander runtime data.
	Root string `yaml:"root"`

	// State is where session/presence runtime state is stored.
	State string `yaml:"state"`

	// Workspaces is a workspace directory that EnsurePaths creates.
	// cmd/opencommander-ctl resolves session workspace mounts under
	// Workspace.Root, not under this path.
	Workspaces string `yaml:"workspaces"`

	// Agents is an agent-config directory that EnsurePaths creates. No
	// session container mounts it: cmd/opencommander-ctl gives
	// internal/mount Paths.State as its agent-state root, and each
	// user's directory under that is mounted at /home/agent/.commander.
	Agents string `yaml:"agents"`
}

// StoreConfig configures the relational entity store.
type StoreConfig struct {
	// DSN is the SQLite data source name, e.g.
	// "/var/lib/opencommander/entities.db".
	DSN string `yaml:"dsn"`

	// PoolSize is the number of pooled connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// DriverConfig configures the container engine connection.
type DriverConfig struct {
	// Host is the Docker engine endpoint, e.g. "unix:///var/run/docker.sock".
	// Empty uses the client library's environment-based default.
	Host string `yaml:"host"`

	// Network is the Docker network session containers attach to.
	Network string `yaml:"network"`

	// DefaultImage is the agent image used when a session does not
	// specify one.
	DefaultImage string `yaml:"default_image"`
}

// WorkspaceConfig configures the Git workspace service (C4).
type WorkspaceConfig struct {
	// Root is the configured workspace root; clone targets resolving
	// outside of it are rejected (see §4.4 escape-check invariant).
	Root string `yaml:"root"`

	// GitHubToken is an optional default token used when a request
	// does not supply one via GITHUB_TOKEN/GH_TOKEN.
	GitHubToken string `yaml:"github_token"`
}

// ProxyConfig configures the WebSocket multiplexing proxy (C7) and
// the front-door forwarder (C8).
type ProxyConfig struct {
	// ListenAddress, e.g. "0.0.0.0:8443", is read only by
	// cmd/opencommander-ctl, which passes it to session containers as
	// internal/mount.Config.ProxyAddress. The front-door forwarder does
	// not read it; cmd/opencommander-forwarder takes its listen address
	// from its --listen flag.
	ListenAddress string `yaml:"listen_address"`

	// UpstreamSocketPath is a Unix socket path that Validate requires
	// to be set. Nothing listens on or dials it: the daemon serves the
	// WebSocket proxy on TCP 127.0.0.1:Ports.Proxy.
	UpstreamSocketPath string `yaml:"upstream_socket_path"`

	// PreConnectBufferBytes is the configured pre-connect buffer size
	// (1 MiB by default). internal/wsproxy does not read it; its
	// /terminal buffer is bounded by its own preConnectBufferCap
	// constant, also 1 MiB.
	PreConnectBufferBytes int `yaml:"pre_connect_buffer_bytes"`
}

// PortsConfig configures the daemon's own listen ports (§6.4).
// Environment variables of the same name take precedence over the
// configured value.
type PortsConfig struct {
	// FrontDoor is the front-door forwarder's public listen port
	// (internal/forwarder.Forwarder.ListenAddr). Default 3000.
	FrontDoor int `yaml:"front_door"`

	// HTTP is the plain application HTTP port the forwarder splices
	// non-upgrade connections to. Default 3001.
	HTTP int `yaml:"http"`

	// Proxy is the WebSocket proxy's port
	// (internal/wsproxy.Server.Mux). Default 7682.
	Proxy int `yaml:"proxy"`
}

// Default returns the default configuration. Loading starts from these
// values, so every field has a sensible value before the config file
// is applied; cmd/opencommander-daemon and cmd/opencommander-ctl also
// use them unchanged when no config file is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "opencommander")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:       defaultRoot,
			State:      filepath.Join(defaultRoot, "state"),
			Workspaces: filepath.Join(defaultRoot, "workspaces"),
			Agents:     filepath.Join(defaultRoot, "agents"),
		},
		Store: StoreConfig{
			DSN:      filepath.Join(defaultRoot, "entities.db"),
			PoolSize: 4,
		},
		Driver: DriverConfig{
			Host:         "",
			Network:      "opencommander",
			DefaultImage: "opencommander/agent:latest",
		},
		Workspace: WorkspaceConfig{
			Root: filepath.Join(defaultRoot, "workspaces"),
		},
		Proxy: ProxyConfig{
			ListenAddress:         "0.0.0.0:8443",
			UpstreamSocketPath:    "/run/opencommander/wsproxy.sock",
			PreConnectBufferBytes: 1 << 20,
		},
		Ports: PortsConfig{
			FrontDoor: 3000,
			HTTP:      3001,
			Proxy:     7682,
		},
	}
}

// Load loads configuration from the OPENCOMMANDER_CONFIG environment
// variable. There is no fallback — if it is unset, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("OPENCOMMANDER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("OPENCOMMANDER_CONFIG environment variable not set; " +
			"set it to the path of your opencommander.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.applyPortEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		mergePaths(&c.Paths, overrides.Paths)
	}
	if overrides.Store != nil {
		if overrides.Store.DSN != "" {
			c.Store.DSN = overrides.Store.DSN
		}
		if overrides.Store.PoolSize != 0 {
			c.Store.PoolSize = overrides.Store.PoolSize
		}
	}
	if overrides.Driver != nil {
		if overrides.Driver.Host != "" {
			c.Driver.Host = overrides.Driver.Host
		}
		if overrides.Driver.Network != "" {
			c.Driver.Network = overrides.Driver.Network
		}
		if overrides.Driver.DefaultImage != "" {
			c.Driver.DefaultImage = overrides.Driver.DefaultImage
		}
	}
	if overrides.Workspace != nil {
		if overrides.Workspace.Root != "" {
			c.Workspace.Root = overrides.Workspace.Root
		}
		if overrides.Workspace.GitHubToken != "" {
			c.Workspace.GitHubToken = overrides.Workspace.GitHubToken
		}
	}
	if overrides.Proxy != nil {
		if overrides.Proxy.ListenAddress != "" {
			c.Proxy.ListenAddress = overrides.Proxy.ListenAddress
		}
		if overrides.Proxy.UpstreamSocketPath != "" {
			c.Proxy.UpstreamSocketPath = overrides.Proxy.UpstreamSocketPath
		}
		if overrides.Proxy.PreConnectBufferBytes != 0 {
			c.Proxy.PreConnectBufferBytes = overrides.Proxy.PreConnectBufferBytes
		}
	}
	if overrides.Ports != nil {
		if overrides.Ports.FrontDoor != 0 {
			c.Ports.FrontDoor = overrides.Ports.FrontDoor
		}
		if overrides.Ports.HTTP != 0 {
			c.Ports.HTTP = overrides.Ports.HTTP
		}
		if overrides.Ports.Proxy != 0 {
			c.Ports.Proxy = overrides.Ports.Proxy
		}
	}
}

func mergePaths(dst *PathsConfig, src *PathsConfig) {
	if src.Root != "" {
		dst.Root = src.Root
	}
	if src.State != "" {
		dst.State = src.State
	}
	if src.Workspaces != "" {
		dst.Workspaces = src.Workspaces
	}
	if src.Agents != "" {
		dst.Agents = src.Agents
	}
}

// applyPortEnvironmentOverrides lets OPENCOMMANDER_FRONTDOOR_PORT,
// OPENCOMMANDER_HTTP_PORT, and OPENCOMMANDER_PROXY_PORT override the
// configured port block, per §6.4's "environment variables taking
// precedence" rule.
func (c *Config) applyPortEnvironmentOverrides() {
	if v := os.Getenv("OPENCOMMANDER_FRONTDOOR_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			c.Ports.FrontDoor = port
		}
	}
	if v := os.Getenv("OPENCOMMANDER_HTTP_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			c.Ports.HTTP = port
		}
	}
	if v := os.Getenv("OPENCOMMANDER_PROXY_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			c.Ports.Proxy = port
		}
	}
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"OC_ROOT": c.Paths.Root,
		"HOME":    os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["OC_ROOT"] = c.Paths.Root

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Workspaces = expandVars(c.Paths.Workspaces, vars)
	c.Paths.Agents = expandVars(c.Paths.Agents, vars)
	c.Store.DSN = expandVars(c.Store.DSN, vars)
	c.Workspace.Root = expandVars(c.Workspace.Root, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required"))
	}
	if c.Workspace.Root == "" {
		errs = append(errs, fmt.Errorf("workspace.root is required"))
	}
	if c.Proxy.UpstreamSocketPath == "" {
		errs = append(errs, fmt.Errorf("proxy.upstream_socket_path is required"))
	}
	for name, port := range map[string]int{"front_door": c.Ports.FrontDoor, "http": c.Ports.HTTP, "proxy": c.Ports.Proxy} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("ports.%s out of range: %d", name, port))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root, c.Paths.State, c.Paths.Workspaces, c.Paths.Agents, c.Workspace.Root}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
