package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.resolveBackend())
}

func TestLoadConfigHTTP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: https://api.example.test
headers:
  Authorization: Bearer token-1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.resolveBackend())
	assert.Equal(t, "https://api.example.test", cfg.Endpoint)
	assert.Equal(t, "Bearer token-1", cfg.Headers["Authorization"])
}

func TestNewCoordinatorSQLiteDefault(t *testing.T) {
	coord, err := NewCoordinator(&Config{})
	require.NoError(t, err)
	assert.NotNil(t, coord.Store())
}

func TestNewCoordinatorRejectsUnknownBackend(t *testing.T) {
	_, err := NewCoordinator(&Config{Backend: "ftp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestNewCoordinatorHTTPRequiresEndpoint(t *testing.T) {
	_, err := NewCoordinator(&Config{Backend: "http"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an endpoint")
}
