package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a stray config.toml in cwd out of the test

	config, err := Load(nil)
	require.NoError(t, err)

	dir := DefaultDir()
	assert.Equal(t, filepath.Join(dir, "samples.db"), config.DBPath)
	assert.Equal(t, filepath.Join(dir, "cadence-coach.log"), config.LogPath)
	assert.Equal(t, filepath.Join(dir, "preferences.json"), config.PrefsPath)
	assert.Equal(t, uint(0), config.PaceSecPerKm)
	assert.Equal(t, 5*time.Second, config.CaptureInterval)
	assert.Equal(t, 10*time.Second, config.ConnectTimeout)
	assert.False(t, config.Mock)
	assert.False(t, config.Debug)
}

func TestLoad_Flags(t *testing.T) {
	t.Chdir(t.TempDir())

	config, err := Load([]string{
		"--db-path", "/tmp/x.db",
		"--pace-sec-per-km", "270",
		"--capture-interval", "10s",
		"--connect-timeout", "3s",
		"--mock",
		"--debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", config.DBPath)
	assert.Equal(t, uint(270), config.PaceSecPerKm)
	assert.Equal(t, 10*time.Second, config.CaptureInterval)
	assert.Equal(t, 3*time.Second, config.ConnectTimeout)
	assert.True(t, config.Mock)
	assert.True(t, config.Debug)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := `
db-path = "/data/run.db"
pace-sec-per-km = 280
capture-interval = "2s"
debug = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	config, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "/data/run.db", config.DBPath)
	assert.Equal(t, uint(280), config.PaceSecPerKm)
	assert.Equal(t, 2*time.Second, config.CaptureInterval)
	assert.True(t, config.Debug)
}

func TestLoad_FlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := `pace-sec-per-km = 280`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	config, err := Load([]string{"--pace-sec-per-km", "260"})
	require.NoError(t, err)
	assert.Equal(t, uint(260), config.PaceSecPerKm)
}

func TestLoad_BadFlag(t *testing.T) {
	_, err := Load([]string{"--no-such-flag"})
	require.Error(t, err)
}
