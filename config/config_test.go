package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAtPath(t *testing.T) {
	c, err := NewAtPath("/tmp/config.yml")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/config.yml", c.path)
	assert.False(t, c.Debug)
	assert.Equal(t, "burrow", c.TerminalName)
	assert.Equal(t, 150, c.System.UsageCheckInterval)
	assert.True(t, c.System.History.Enabled)
	assert.Equal(t, 30, c.System.History.RetentionDays)
	assert.Equal(t, "best_speed", c.System.Archives.CompressionLevel)

	assert.NotEmpty(t, c.System.RootDirectory)
	assert.NotEmpty(t, c.System.DataDirectory)
	assert.Equal(t, filepath.Join(c.System.DataDirectory, "logs"), c.System.LogDirectory)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")

	t.Run("values from the file override defaults", func(t *testing.T) {
		b := []byte("terminal_name: custom\nsystem:\n  root_directory: /tmp/custom-root\n  usage_check_interval: 10\n")
		require.NoError(t, os.WriteFile(p, b, 0o600))

		require.NoError(t, FromFile(p))

		c := Get()
		assert.Equal(t, "custom", c.TerminalName)
		assert.Equal(t, "/tmp/custom-root", c.System.RootDirectory)
		assert.Equal(t, 10, c.System.UsageCheckInterval)
		// Values the file does not mention keep their defaults.
		assert.True(t, c.System.History.Enabled)
		assert.Equal(t, 30, c.System.History.RetentionDays)
	})

	t.Run("environment variables are expanded", func(t *testing.T) {
		t.Setenv("BURROW_TEST_ROOT", "/tmp/expanded-root")

		b := []byte("system:\n  root_directory: $BURROW_TEST_ROOT\n")
		require.NoError(t, os.WriteFile(p, b, 0o600))

		require.NoError(t, FromFile(p))
		assert.Equal(t, "/tmp/expanded-root", Get().System.RootDirectory)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		err := FromFile(filepath.Join(dir, "does-not-exist.yml"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		p := filepath.Join(dir, "missing.yml")
		require.NoError(t, Load(p))

		c := Get()
		assert.Equal(t, "burrow", c.TerminalName)
		assert.Equal(t, p, c.GetPath())
	})

	t.Run("existing file is read", func(t *testing.T) {
		p := filepath.Join(dir, "config.yml")
		require.NoError(t, os.WriteFile(p, []byte("terminal_name: fromfile\n"), 0o600))

		require.NoError(t, Load(p))
		assert.Equal(t, "fromfile", Get().TerminalName)
	})
}

func TestWriteToDisk(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "config.yml")

	c, err := NewAtPath(p)
	require.NoError(t, err)
	c.TerminalName = "persisted"
	Set(c)

	require.NoError(t, WriteToDisk(c))

	// Reading the file back through the normal path returns the saved values.
	require.NoError(t, FromFile(p))
	assert.Equal(t, "persisted", Get().TerminalName)
}

func TestUpdate(t *testing.T) {
	c, err := NewAtPath("/tmp/config.yml")
	require.NoError(t, err)
	Set(c)

	Update(func(c *Configuration) {
		c.System.UsageCheckInterval = 99
	})

	assert.Equal(t, 99, Get().System.UsageCheckInterval)
}
