package plugindir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefersXDGConfigHome(t *testing.T) {
	xdgDir := t.TempDir()
	pluginDir := filepath.Join(xdgDir, "tessera", "plugins")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))

	t.Setenv("XDG_CONFIG_HOME", xdgDir)

	got, err := Resolve()
	require.NoError(t, err)
	assert.Equal(t, pluginDir, got)
}

func TestResolveFallsBackToHomeConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	home := t.TempDir()
	pluginDir := filepath.Join(home, ".config", "tessera", "plugins")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	t.Setenv("HOME", home)

	got, err := Resolve()
	require.NoError(t, err)
	assert.Equal(t, pluginDir, got)
}

func TestResolveErrorsWhenNothingExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := Resolve()
	assert.Error(t, err)
}
