package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"loyalty-rewards-be/internal/config"
	"loyalty-rewards-be/pkg/tour"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTourStore(t *testing.T) {
	store, err := newTourStore(config.StoreMemory, nil, nil)
	require.NoError(t, err)
	_, isExpiring := store.(tour.ExpiringStore)
	assert.True(t, isExpiring)

	_, err = newTourStore(config.StorePostgres, nil, nil)
	assert.Error(t, err)

	_, err = newTourStore("etcd", nil, nil)
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	reg, err := loadRegistry("")
	require.NoError(t, err)
	assert.Equal(t, []tour.Role{tour.RoleAdmin, tour.RoleInstaller}, reg.Roles())

	path := filepath.Join(t.TempDir(), "tooltips.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  installer:\n    - id: a\n      title: A\n"), 0o600))
	reg, err = loadRegistry(path)
	require.NoError(t, err)
	_, ok := reg.Lookup(tour.RoleInstaller, "a")
	assert.True(t, ok)

	_, err = loadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
