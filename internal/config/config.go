// Package config loads graphrelay configuration from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Environment variables that override file values.
const (
	envTenantID     = "GRAPHRELAY_TENANT_ID"
	envClientID     = "GRAPHRELAY_CLIENT_ID"
	envClientSecret = "GRAPHRELAY_CLIENT_SECRET" //nolint:gosec // G101: variable name, not a credential
	envAuthority    = "GRAPHRELAY_AUTHORITY"
	envGraphURL     = "GRAPHRELAY_GRAPH_URL"
	envStoreBackend = "GRAPHRELAY_STORE_BACKEND"
	envStorePath    = "GRAPHRELAY_STORE_PATH"
	envListen       = "GRAPHRELAY_LISTEN"
	envScopes       = "GRAPHRELAY_DELEGATED_SCOPES"
	envLogVerbose   = "GRAPHRELAY_VERBOSE"
)

// Config is the complete relay configuration.
type Config struct {
	Identity Identity `toml:"identity"`
	Graph    Graph    `toml:"graph"`
	Store    Store    `toml:"store"`
	HTTP     HTTP     `toml:"http"`
	Timeouts Timeouts `toml:"timeouts"`
	Verbose  bool     `toml:"verbose"`
}

// Identity configures the app registration used against the identity provider.
type Identity struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	// Authority is the identity provider host, without tenant.
	Authority string `toml:"authority"`
	// DelegatedScopes overrides the default delegated scope list.
	DelegatedScopes []string `toml:"delegated_scopes"`
}

// Graph configures the remote collaboration API.
type Graph struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Store configures session state persistence.
type Store struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	// Watch reloads the session when another process changes the state file.
	Watch bool `toml:"watch"`
}

// HTTP configures the relay's own listener.
type HTTP struct {
	Listen string `toml:"listen"`
}

// Timeouts bounds every blocking network call.
type Timeouts struct {
	Provider Duration `toml:"provider"`
	Remote   Duration `toml:"remote"`
	// ExpiryLeeway treats tokens as expired this long before their expiry.
	ExpiryLeeway Duration `toml:"expiry_leeway"`
}

// Duration is a time.Duration encoded as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Identity: Identity{
			Authority: "https://login.microsoftonline.com",
		},
		Graph: Graph{
			BaseURL:           "https://graph.microsoft.com/v1.0",
			RequestsPerSecond: 10,
			Burst:             15,
		},
		Store: Store{
			Backend: BackendFile,
			Path:    defaultStatePath(),
			Watch:   true,
		},
		HTTP: HTTP{
			Listen: "127.0.0.1:8085",
		},
		Timeouts: Timeouts{
			Provider:     Duration{30 * time.Second},
			Remote:       Duration{30 * time.Second},
			ExpiryLeeway: Duration{30 * time.Second},
		},
	}
}

// DefaultPath returns ~/.graphrelay/config.toml.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.toml")
}

func defaultStatePath() string {
	return filepath.Join(baseDir(), "session.json")
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".graphrelay"
	}
	return filepath.Join(home, ".graphrelay")
}

// Load reads the TOML file at path over the defaults, then applies environment
// overrides and validates the result. A missing file is not an error.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, name string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}

	set(&c.Identity.TenantID, envTenantID)
	set(&c.Identity.ClientID, envClientID)
	set(&c.Identity.ClientSecret, envClientSecret)
	set(&c.Identity.Authority, envAuthority)
	set(&c.Graph.BaseURL, envGraphURL)
	set(&c.Store.Backend, envStoreBackend)
	set(&c.Store.Path, envStorePath)
	set(&c.HTTP.Listen, envListen)

	if v := getenv(envScopes); v != "" {
		c.Identity.DelegatedScopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if v := getenv(envLogVerbose); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Verbose = b
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Identity.TenantID == "" {
		errs = append(errs, fmt.Errorf("identity.tenant_id is required (or %s)", envTenantID))
	}
	if c.Identity.ClientID == "" {
		errs = append(errs, fmt.Errorf("identity.client_id is required (or %s)", envClientID))
	}
	if c.Identity.Authority == "" {
		errs = append(errs, errors.New("identity.authority must not be empty"))
	}
	if c.Graph.BaseURL == "" {
		errs = append(errs, errors.New("graph.base_url must not be empty"))
	}
	if c.Graph.RequestsPerSecond <= 0 || c.Graph.Burst <= 0 {
		errs = append(errs, errors.New("graph.requests_per_second and graph.burst must be positive"))
	}
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q",
			BackendFile, BackendSQLite, c.Store.Backend))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path must not be empty"))
	}
	if c.Timeouts.Provider.Duration <= 0 || c.Timeouts.Remote.Duration <= 0 {
		errs = append(errs, errors.New("timeouts.provider and timeouts.remote must be positive"))
	}
	if c.Timeouts.ExpiryLeeway.Duration < 0 {
		errs = append(errs, errors.New("timeouts.expiry_leeway must not be negative"))
	}

	return errors.Join(errs...)
}

// HasClientSecret reports whether application mode can be used.
func (c *Config) HasClientSecret() bool {
	return c.Identity.ClientSecret != ""
}
