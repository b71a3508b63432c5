package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointConfigHome redirects the config directory into a temp dir for a test.
func pointConfigHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	return filepath.Join(home, "meshpilot")
}

func TestDirHonorsXDGConfigHome(t *testing.T) {
	want := pointConfigHome(t)
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, want, dir)
}

func TestDefaultAddressRoundTrip(t *testing.T) {
	pointConfigHome(t)

	_, ok := ReadDefaultAddress()
	assert.False(t, ok, "no address should be stored yet")

	require.NoError(t, WriteDefaultAddress("sim:bench"))

	addr, ok := ReadDefaultAddress()
	require.True(t, ok)
	assert.Equal(t, "sim:bench", addr)
}

func TestReadDefaultAddressIgnoresBlankFile(t *testing.T) {
	dir := pointConfigHome(t)
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default_address"), []byte("  \n"), 0600))

	_, ok := ReadDefaultAddress()
	assert.False(t, ok)
}

func TestStartupScripts(t *testing.T) {
	dir := pointConfigHome(t)
	require.NoError(t, os.MkdirAll(dir, 0700))

	assert.Empty(t, StartupScripts("base-1"))

	shared := filepath.Join(dir, "startup")
	require.NoError(t, os.WriteFile(shared, []byte("contacts\n"), 0600))
	perNode := filepath.Join(dir, "startup-base-1")
	require.NoError(t, os.WriteFile(perNode, []byte("recv\n"), 0600))

	got := StartupScripts("base-1")
	require.Len(t, got, 2)
	assert.Equal(t, shared, got[0], "shared script runs first")
	assert.Equal(t, perNode, got[1])

	assert.Equal(t, []string{shared}, StartupScripts("other-node"))
}

func TestHistoryFileCreatesDir(t *testing.T) {
	dir := pointConfigHome(t)

	path := HistoryFile()
	require.NotEmpty(t, path)
	assert.Equal(t, filepath.Join(dir, "history"), path)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
