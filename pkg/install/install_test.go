// pkg/install/install_test.go

package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymlink(t *testing.T) {
	workspace := t.TempDir()

	link, err := Symlink(context.Background(), workspace)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workspace, "bin", "2kc"), link)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, exe, target)
}

func TestSymlinkIsIdempotent(t *testing.T) {
	workspace := t.TempDir()

	_, err := Symlink(context.Background(), workspace)
	require.NoError(t, err)
	_, err = Symlink(context.Background(), workspace)
	assert.NoError(t, err)
}

func TestSymlinkRefusesRegularFile(t *testing.T) {
	workspace := t.TempDir()
	binDir := filepath.Join(workspace, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "2kc"), []byte("#!/bin/sh\n"), 0755))

	_, err := Symlink(context.Background(), workspace)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a symlink")
}
