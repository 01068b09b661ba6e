// pkg/daemon/daemon_test.go

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestStatusNoPIDFile(t *testing.T) {
	isolateHome(t)
	_, err := Status(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStatusLiveProcess(t *testing.T) {
	home := isolateHome(t)
	pidPath := filepath.Join(home, ".2kc", "server.pid")
	require.NoError(t, os.MkdirAll(filepath.Dir(pidPath), 0700))
	// our own pid is always alive
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600))

	pid, err := Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestStatusReapsStalePIDFile(t *testing.T) {
	home := isolateHome(t)
	pidPath := filepath.Join(home, ".2kc", "server.pid")
	require.NoError(t, os.MkdirAll(filepath.Dir(pidPath), 0700))
	// pid far above pid_max on any sane test box
	require.NoError(t, os.WriteFile(pidPath, []byte("99999999\n"), 0600))

	_, err := Status(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)

	_, statErr := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(statErr), "stale pid file must be reaped")
}

func TestStatusMalformedPIDFile(t *testing.T) {
	home := isolateHome(t)
	pidPath := filepath.Join(home, ".2kc", "server.pid")
	require.NoError(t, os.MkdirAll(filepath.Dir(pidPath), 0700))
	require.NoError(t, os.WriteFile(pidPath, []byte("not-a-pid"), 0600))

	_, err := Status(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)

	_, statErr := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStopWithoutServer(t *testing.T) {
	isolateHome(t)
	assert.ErrorIs(t, Stop(context.Background()), ErrNotRunning)
}

func TestPaths(t *testing.T) {
	home := isolateHome(t)

	pidPath, err := PIDFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".2kc", "server.pid"), pidPath)

	logPath, err := LogFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".2kc", "server.log"), logPath)
}
