package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajabi/dlengine/internal/model"
)

func TestResolveCreatesTargetFile(t *testing.T) {
	dir := t.TempDir()
	r := &Resolver{AppDataDir: dir}

	cfg := model.DefaultStorageConfig()
	cfg.Destinations = []model.Destination{model.CustomDestination(dir)}
	req := model.NewRequest("https://example.com/a.bin", "a.bin")

	res, err := r.Resolve(cfg, req, false)
	require.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, "a.bin"), res.File)
	assert.False(t, res.OverwroteExisting)

	_, statErr := os.Stat(res.File)
	assert.NoError(t, statErr)
}

func TestResolveFailsWhenExistsAndOverwriteDisabled(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	r := &Resolver{AppDataDir: dir}
	cfg := model.DefaultStorageConfig()
	cfg.Destinations = []model.Destination{model.CustomDestination(dir)}
	cfg.OverwriteExisting = false
	req := model.NewRequest("https://example.com/a.bin", "a.bin")

	_, err := r.Resolve(cfg, req, false)
	require.NotNil(t, err)
	assert.Equal(t, model.ErrorStorage, err.Kind)
}

func TestResolveDryRunSkipsDestructiveSteps(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))

	r := &Resolver{AppDataDir: dir}
	cfg := model.DefaultStorageConfig()
	cfg.Destinations = []model.Destination{model.CustomDestination(dir)}
	cfg.OverwriteExisting = true
	req := model.NewRequest("https://example.com/a.bin", "a.bin")

	res, err := r.Resolve(cfg, req, true)
	require.Nil(t, err)
	assert.True(t, res.OverwroteExisting)

	data, readErr := os.ReadFile(target)
	require.NoError(t, readErr)
	assert.Equal(t, "existing", string(data), "dry-run must not delete the existing file")
}

func TestResolveInsufficientSpace(t *testing.T) {
	dir := t.TempDir()
	r := &Resolver{AppDataDir: dir}
	cfg := model.DefaultStorageConfig()
	cfg.Destinations = []model.Destination{model.CustomDestination(dir)}
	cfg.ValidateFreeSpace = true
	cfg.MinFreeSpaceBytes = 1 << 62 // absurd requirement, guaranteed to fail on any real fs
	req := model.NewRequest("https://example.com/a.bin", "a.bin")

	_, err := r.Resolve(cfg, req, false)
	require.NotNil(t, err)
	assert.Equal(t, model.ErrorStorage, err.Kind)
}
