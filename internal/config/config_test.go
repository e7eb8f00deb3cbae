package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("LANDBLOCK_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Landblock.DormantInterval)
	assert.Equal(t, 30*time.Minute, cfg.Landblock.UnloadInterval)
	assert.Equal(t, 5*time.Second, cfg.Landblock.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.Landblock.DatabaseSaveInterval)
	assert.Equal(t, "badger", cfg.Storage.Backend)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := `
landblock:
  dormant_interval: 90s
  unload_interval: 1h
world:
  tick_rate: 100ms
  permaload: ["A9B4", "0x0007"]
storage:
  backend: sqlite
  path: world.db
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Landblock.DormantInterval)
	assert.Equal(t, time.Hour, cfg.Landblock.UnloadInterval)
	assert.Equal(t, 5*time.Second, cfg.Landblock.HeartbeatInterval, "Незаданные поля сохраняют дефолты")
	assert.Equal(t, 100*time.Millisecond, cfg.World.TickRate)
	assert.Equal(t, []string{"A9B4", "0x0007"}, cfg.World.Permaload)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	data := `
[landblock]
heartbeat_interval = "2s"

[storage]
backend = "memory"
save_workers = 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Landblock.HeartbeatInterval)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 8, cfg.Storage.SaveWorkers)
}

func TestLoad_RejectsUnloadShorterThanDormant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("landblock:\n  unload_interval: 10s\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LANDBLOCK_CONFIG", "")
	t.Setenv("LANDBLOCK_ADMIN_PORT", "9099")
	t.Setenv("LANDBLOCK_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9099, cfg.Server.AdminPort)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_Terrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terrain.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world:\n  terrain:\n    kind: perlin\n    seed: 1337\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "perlin", cfg.World.Terrain.Kind)
	assert.Equal(t, int64(1337), cfg.World.Terrain.Seed)
	assert.Equal(t, 0.7, cfg.World.Terrain.Threshold, "порог по умолчанию сохраняется")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("world:\n  terrain:\n    kind: voxel\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestLoad_Auth(t *testing.T) {
	t.Setenv("LANDBLOCK_JWT_SECRET", "")
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := `
auth:
  token_ttl: 1h
  admins:
    - username: ops
      password_hash: "$2a$10$abcdefghijklmnopqrstuv"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	require.Len(t, cfg.Auth.Admins, 1)
	assert.Equal(t, "ops", cfg.Auth.Admins[0].Username)

	t.Setenv("LANDBLOCK_JWT_SECRET", "c2VjcmV0")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "c2VjcmV0", cfg.Auth.JWTSecret)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("auth:\n  admins:\n    - username: ops\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}
