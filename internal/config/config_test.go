package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigPath)

	cfg := Default()
	cfg.RunID = "ci"
	cfg.Sets = []string{"handle-get"}
	cfg.Ports.Health = 8888
	require.NoError(t, SaveTo(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ci", loaded.RunID)
	assert.Equal(t, []string{"handle-get"}, loaded.Sets)
	assert.Equal(t, 8888, loaded.Ports.Health)
	assert.Equal(t, "redis:5.0.5", loaded.Images.Store)
	assert.Equal(t, true, loaded.Defaults["delete_on_get"])
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), ConfigPath))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  string
	}{
		{
			name: "Bad Duration",
			yaml: "timeouts:\n  execute: soon\n",
			err:  "timeouts.execute",
		},
		{
			name: "Negative Duration",
			yaml: "timeouts:\n  teardown: -1s\n",
			err:  "timeouts.teardown: must not be negative",
		},
		{
			name: "Bad Port",
			yaml: "ports:\n  proxy: 70000\n",
			err:  "ports.proxy: 70000 is not a valid port",
		},
		{
			name: "Unknown Option",
			yaml: "defaults:\n  delete_on_del: true\n",
			err:  `defaults: unknown option "delete_on_del"`,
		},
		{
			name: "Bad Boolean",
			yaml: "defaults:\n  delete_on_get: maybe\n",
			err:  "is not a boolean",
		},
		{
			name: "Not YAML",
			yaml: "ports: [",
			err:  "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigPath)
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestAttest(t *testing.T) {
	cfg := &Config{
		RunID:    "r1",
		Build:    Build{Proxy: "./remiro"},
		Images:   Images{Proxy: "remiro:dev"},
		Ports:    Ports{Source: 6379, Health: 8888},
		Timeouts: Timeouts{Execute: "2s"},
		Defaults: map[string]any{"delete_on_set": "true"},
	}

	a, err := cfg.Attest()
	require.NoError(t, err)

	assert.Equal(t, "r1", a.RunID)
	assert.Equal(t, "./remiro", a.ProxyContext)
	assert.Equal(t, "remiro:dev", a.ProxyImage)
	assert.Equal(t, 6379, a.SourcePort)
	assert.Equal(t, 8888, a.HealthPort)
	assert.Equal(t, 2*time.Second, a.ExecuteTimeout)
	assert.Zero(t, a.TeardownTimeout)
	assert.Equal(t, "true", a.ConfigDefaults["delete_on_set"])
	assert.Equal(t, true, a.ConfigDefaults["delete_on_get"])
}
