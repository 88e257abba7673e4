package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/remote/httpremote"
	"github.com/tidemark/normstore/remote/sqliteremote"
	"github.com/tidemark/normstore/store"
	"github.com/tidemark/normstore/syncer"
)

// Config selects and configures the remote backend.
type Config struct {
	// Backend is "http" or "sqlite". Defaults to "http" when an endpoint
	// is set and "sqlite" otherwise.
	Backend string `yaml:"backend"`

	// Endpoint is the HTTP backend's base URL.
	Endpoint string `yaml:"endpoint"`

	// Headers are sent with every HTTP request (e.g. authorization).
	Headers map[string]string `yaml:"headers"`

	// DSN is the SQLite backend's data source name.
	// Defaults to ":memory:".
	DSN string `yaml:"dsn"`
}

// LoadConfig reads a YAML config file. A missing path yields the zero
// config, which resolves to an in-memory SQLite backend.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveBackend picks the backend kind from the config.
func (c *Config) resolveBackend() string {
	if c.Backend != "" {
		return c.Backend
	}
	if c.Endpoint != "" {
		return "http"
	}
	return "sqlite"
}

// NewCoordinator builds the store, registry, and remote described by the
// config and wires them into a coordinator.
func NewCoordinator(cfg *Config) (*syncer.Coordinator, error) {
	var (
		remote syncer.Remote
		err    error
	)
	switch kind := cfg.resolveBackend(); kind {
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http backend requires an endpoint")
		}
		opts := make([]httpremote.Option, 0, len(cfg.Headers))
		for k, v := range cfg.Headers {
			opts = append(opts, httpremote.WithHeader(k, v))
		}
		remote, err = httpremote.New(cfg.Endpoint, opts...)
		if err != nil {
			return nil, err
		}
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		remote, err = sqliteremote.Open(dsn)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown backend %q: must be http or sqlite", kind)
	}

	return syncer.New(store.New(), query.NewRegistry(), remote), nil
}
