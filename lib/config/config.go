// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "HOSTSYNC_CONFIG"

// Config is the complete hostsync configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Conductor  ConductorConfig  `yaml:"conductor"`
	Keystore   KeystoreConfig   `yaml:"keystore"`
	Identity   IdentityConfig   `yaml:"identity"`
	Agent      AgentConfig      `yaml:"agent"`
	Store      StoreConfig      `yaml:"store"`
	Membrane   MembraneConfig   `yaml:"membrane"`
	Apps       AppsConfig       `yaml:"apps"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// State holds the credential store, sealed seeds and the keystore
	// socket unless those are configured individually.
	State string `yaml:"state"`
}

// ConductorConfig locates the conductor's admin and app endpoints.
type ConductorConfig struct {
	// AdminURL is the admin websocket, e.g. ws://localhost:4444.
	AdminURL string `yaml:"admin_url"`

	// AppPort is the app interface port requested through
	// attach_app_interface. App connections go to ws://<admin host>:<AppPort>.
	AppPort int `yaml:"app_port"`

	// RequestTimeout bounds each request/response round trip.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ConnectRetry controls dialing the admin endpoint.
	ConnectRetry RetryConfig `yaml:"connect_retry"`
}

// RetryConfig is exponential backoff between Interval and MaxInterval.
// MaxAttempts of zero retries until the context ends.
type RetryConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// KeystoreConfig configures the key custodian, both as seen by its
// clients (SocketPath) and by hostsync-keystore itself.
type KeystoreConfig struct {
	SocketPath string `yaml:"socket_path"`

	// SeedDirectory holds age-sealed agent seeds.
	SeedDirectory string `yaml:"seed_directory"`

	// PassphraseFile holds the passphrase sealing SeedDirectory.
	// "-" reads it from stdin.
	PassphraseFile string `yaml:"passphrase_file"`
}

// IdentityConfig locates the device identity.
type IdentityConfig struct {
	// DescriptorPath is the versioned identity descriptor (JSON/JSONC).
	DescriptorPath string `yaml:"descriptor_path"`

	// PasswordFile holds the device password that unlocks the seed
	// bundle inside the descriptor. "-" reads it from stdin.
	PasswordFile string `yaml:"password_file"`
}

// AgentConfig selects how the agent key is obtained.
type AgentConfig struct {
	// Policy is "deterministic" (derive from the seed bundle) or
	// "ephemeral" (ask the conductor for a random key once).
	Policy string `yaml:"policy"`
}

// StoreConfig selects the local key/value store.
type StoreConfig struct {
	// Backend is "file", "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is a directory for "file" and a database file for "sqlite".
	Path string `yaml:"path"`
}

// MembraneConfig configures membrane proof acquisition.
type MembraneConfig struct {
	// ReadOnly makes every proof the read-only sentinel, with no
	// network or disk access.
	ReadOnly bool `yaml:"read_only"`

	// RegistrationURL is the credential service base URL.
	RegistrationURL string `yaml:"registration_url"`

	// RequestTimeout bounds one registration request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AppsConfig configures the desired app set and reconciliation rules.
type AppsConfig struct {
	// DesiredFile is the YAML or JSONC desired-state file.
	DesiredFile string `yaml:"desired_file"`

	// NamespaceOverride, when set, is appended to every app id as
	// "::<namespace>".
	NamespaceOverride string `yaml:"namespace_override"`

	// ProtectedPrefixes are app id prefixes cleanup never uninstalls.
	ProtectedPrefixes []string `yaml:"protected_prefixes"`

	// Adoptable are app id substrings eligible for cell adoption when
	// an install reports existing cells.
	Adoptable []string `yaml:"adoptable"`

	// DownloadDirectory caches bundles fetched from URL sources.
	DownloadDirectory string `yaml:"download_directory"`
}

// CheckpointConfig locates the checkpoint service.
type CheckpointConfig struct {
	// URL is the base URL. Empty disables resynchronization, and a
	// divergence then aborts the run.
	URL string `yaml:"url"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Valid agent policy and store backend names.
var (
	agentPolicies = []string{"deterministic", "ephemeral"}
	storeBackends = []string{"file", "sqlite", "memory"}
)

// Default returns the configuration every loaded file is merged into.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	state := filepath.Join(homeDirectory, ".local", "state", "hostsync")

	return &Config{
		Paths: PathsConfig{State: state},
		Conductor: ConductorConfig{
			AdminURL:       "ws://localhost:4444",
			AppPort:        42233,
			RequestTimeout: 30 * time.Second,
			ConnectRetry: RetryConfig{
				Interval:    time.Second,
				MaxInterval: 30 * time.Second,
			},
		},
		Keystore: KeystoreConfig{
			SocketPath:    "${HOSTSYNC_STATE}/keystore.sock",
			SeedDirectory: "${HOSTSYNC_STATE}/seeds",
		},
		Agent: AgentConfig{Policy: "deterministic"},
		Store: StoreConfig{
			Backend: "file",
			Path:    "${HOSTSYNC_STATE}/store",
		},
		Membrane: MembraneConfig{
			RequestTimeout: 30 * time.Second,
		},
		Apps: AppsConfig{
			ProtectedPrefixes: []string{"uhCkk"},
			Adoptable:         []string{"core-app", "holofuel", "servicelogger"},
			DownloadDirectory: "${HOSTSYNC_STATE}/bundles",
		},
		Checkpoint: CheckpointConfig{
			RequestTimeout: 60 * time.Second,
		},
	}
}

// Load loads the file named by HOSTSYNC_CONFIG. It fails when the
// variable is unset rather than guessing a location.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your hostsync.yaml, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads and expands the configuration at path. It does not
// validate; callers run Validate once their flags are applied.
func LoadFile(path string) (*Config, error) {
	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	config.expandVariables()
	return config, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["HOSTSYNC_STATE"] = c.Paths.State

	for _, field := range []*string{
		&c.Keystore.SocketPath,
		&c.Keystore.SeedDirectory,
		&c.Keystore.PassphraseFile,
		&c.Identity.DescriptorPath,
		&c.Identity.PasswordFile,
		&c.Store.Path,
		&c.Apps.DesiredFile,
		&c.Apps.DownloadDirectory,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Names in vars take
// precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.State == "" {
		errs = append(errs, errors.New("paths.state is required"))
	}
	if c.Conductor.AdminURL == "" {
		errs = append(errs, errors.New("conductor.admin_url is required"))
	}
	if c.Conductor.AppPort <= 0 || c.Conductor.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("conductor.app_port %d out of range", c.Conductor.AppPort))
	}
	if c.Conductor.RequestTimeout <= 0 {
		errs = append(errs, errors.New("conductor.request_timeout must be positive"))
	}
	retry := c.Conductor.ConnectRetry
	if retry.Interval <= 0 {
		errs = append(errs, errors.New("conductor.connect_retry.interval must be positive"))
	}
	if retry.MaxInterval < retry.Interval {
		errs = append(errs, errors.New("conductor.connect_retry.max_interval must be at least interval"))
	}
	if retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("conductor.connect_retry.max_attempts must not be negative"))
	}
	if c.Keystore.SocketPath == "" {
		errs = append(errs, errors.New("keystore.socket_path is required"))
	}
	if !slices.Contains(agentPolicies, c.Agent.Policy) {
		errs = append(errs, fmt.Errorf("agent.policy must be one of %v, got %q", agentPolicies, c.Agent.Policy))
	}
	if c.Agent.Policy == "deterministic" {
		if c.Identity.DescriptorPath == "" {
			errs = append(errs, errors.New("identity.descriptor_path is required for the deterministic agent policy"))
		}
		if c.Identity.PasswordFile == "" {
			errs = append(errs, errors.New("identity.password_file is required for the deterministic agent policy"))
		}
	}
	if !slices.Contains(storeBackends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend must be one of %v, got %q", storeBackends, c.Store.Backend))
	} else if c.Store.Backend != "memory" && c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required for the %s backend", c.Store.Backend))
	}
	if !c.Membrane.ReadOnly && c.Membrane.RegistrationURL == "" {
		errs = append(errs, errors.New("membrane.registration_url is required unless membrane.read_only is set"))
	}
	if c.Apps.DesiredFile == "" {
		errs = append(errs, errors.New("apps.desired_file is required"))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the state directory and, for the file backend,
// the store directory.
func (c *Config) EnsurePaths() error {
	directories := []string{c.Paths.State}
	if c.Store.Backend == "file" {
		directories = append(directories, c.Store.Path)
	} else if c.Store.Backend == "sqlite" {
		directories = append(directories, filepath.Dir(c.Store.Path))
	}
	for _, directory := range directories {
		if directory == "" {
			continue
		}
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}
