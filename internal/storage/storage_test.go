package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverDatabase_WithEnvVar(t *testing.T) {
	t.Setenv(EnvDatabasePath, ":memory:")
	path, err := DiscoverDatabase()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", path)
}

func TestDiscoverDatabaseInDir(t *testing.T) {
	dir := t.TempDir()

	_, err := discoverDatabaseInDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selfheal init")

	dbPath, err := InitProject(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dbPath, nil, 0644))

	found, err := discoverDatabaseInDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dbPath, found)

	ignore, err := os.ReadFile(filepath.Join(dir, StateDir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "*\n", string(ignore))
}

func TestDiscoverDatabaseInDir_IgnoresParent(t *testing.T) {
	parent := t.TempDir()
	dbPath, err := InitProject(parent)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dbPath, nil, 0644))

	child := filepath.Join(parent, "nested")
	require.NoError(t, os.Mkdir(child, 0755))

	_, err = discoverDatabaseInDir(child)
	assert.Error(t, err)
}

func TestInitProject_MissingDir(t *testing.T) {
	_, err := InitProject(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot("/work/app/.selfheal/selfheal.db")
	require.NoError(t, err)
	assert.Equal(t, "/work/app", root)

	_, err = GetProjectRoot("/work/app/state.db")
	assert.Error(t, err)
}

func TestNewStorage(t *testing.T) {
	store, err := NewStorage(context.Background(), &Config{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetFailure(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDaemonLock(t *testing.T) {
	root := t.TempDir()

	lockPath, err := AcquireDaemonLock(root, "test")
	require.NoError(t, err)

	// Our own PID is alive, so a second acquire fails
	_, err = AcquireDaemonLock(root, "test")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, ReleaseDaemonLock(lockPath))
	require.NoError(t, ReleaseDaemonLock(lockPath))
	require.NoError(t, ReleaseDaemonLock(""))

	_, err = AcquireDaemonLock(root, "test")
	require.NoError(t, err)
}

func TestDaemonLock_StaleTakeover(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, StateDir), 0755))

	hostname, err := os.Hostname()
	require.NoError(t, err)
	// PIDs near the top of the range are essentially never in use
	data, err := json.Marshal(DaemonLock{PID: 4194000, Hostname: hostname, StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, StateDir, "daemon.lock"), data, 0644))

	_, err = AcquireDaemonLock(root, "test")
	assert.NoError(t, err)
}
