package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFiresOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "edgechat.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o644))

	var fired atomic.Int32
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	watcher, err := NewWatcher(configPath, logger, func() {
		fired.Add(1)
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{"server":{"port":9090}}`), 0o644))

	// Debounce is 500ms; give the callback time to land
	assert.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "edgechat.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o644))

	var fired atomic.Int32
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	watcher, err := NewWatcher(configPath, logger, func() {
		fired.Add(1)
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644))

	time.Sleep(time.Second)
	assert.Zero(t, fired.Load())
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "edgechat.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o644))

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	watcher, err := NewWatcher(configPath, logger, func() {})
	require.NoError(t, err)

	assert.NoError(t, watcher.Stop())
}
