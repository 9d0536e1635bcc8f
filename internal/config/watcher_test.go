package config

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wainbox/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherLoadsInitialConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	path := writeConfig(t, minimalConfig())
	watcher := NewWatcher(path, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool {
		return watcher.GetConfig() != nil
	}, time.Second, 10*time.Millisecond)

	cfg := watcher.GetConfig()
	assert.Equal(t, "http://localhost:8080", cfg.Provider.BaseURL)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherFailsOnInvalidConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	err := NewWatcher(path, logger).Start(context.Background())
	require.Error(t, err)
}

func TestWatcherReloadNotifiesCallbacks(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	path := writeConfig(t, minimalConfig())
	watcher := NewWatcher(path, logger)

	changed := make(chan int, 1)
	watcher.OnConfigChange(func(cfg *models.Config) {
		changed <- cfg.RetentionDays
	})

	updated := minimalConfig()
	updated["retentionDays"] = 7
	data, err := json.Marshal(updated)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	watcher.reload()

	select {
	case days := <-changed:
		assert.Equal(t, 7, days)
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked after reload")
	}
}

func TestWatcherReloadKeepsOldConfigOnError(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	path := writeConfig(t, minimalConfig())
	watcher := NewWatcher(path, logger)
	watcher.reload()
	require.NotNil(t, watcher.GetConfig())

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	watcher.reload()

	assert.NotNil(t, watcher.GetConfig(), "broken file must not clear the running config")
	assert.Equal(t, "http://localhost:8080", watcher.GetConfig().Provider.BaseURL)
}
