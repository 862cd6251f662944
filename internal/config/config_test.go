package config_test

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/config"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_AppliesDefaultsForUnsetFields(t *testing.T) {
	path := writeConfigFile(t, "server:\n  env: test\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Server.Env)
	assert.Equal(t, "9644", cfg.Server.Port)
	assert.Equal(t, "/usr/bin/rpk", cfg.DebugBundle.CollectorBinaryPath)
}

func TestLoadConfig_MissingFileReturnsError(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestWatch_SIGHUPReloadsAndInvokesCallback(t *testing.T) {
	path := writeConfigFile(t, "debug_bundle:\n  collector_binary_path: /usr/bin/rpk\n")

	reloaded := make(chan *config.Config, 1)
	stop := config.Watch(path, func(c *config.Config) { reloaded <- c })
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("debug_bundle:\n  collector_binary_path: /usr/bin/rpk-v2\n"), 0o644))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "/usr/bin/rpk-v2", cfg.DebugBundle.CollectorBinaryPath)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not invoke onReload after SIGHUP")
	}
}

func TestWatch_StopDeregistersHandler(t *testing.T) {
	path := writeConfigFile(t, "server:\n  env: test\n")

	// Keep a second SIGHUP subscriber for the whole test so that, once
	// Watch's own handler is stopped, the signal lands here instead of
	// Go's default SIGHUP action (which exits the test binary).
	guard := make(chan os.Signal, 4)
	signal.Notify(guard, syscall.SIGHUP)
	defer signal.Stop(guard)

	var calls int
	reloaded := make(chan struct{}, 4)
	stop := config.Watch(path, func(*config.Config) {
		calls++
		reloaded <- struct{}{}
	})

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not invoke onReload after first SIGHUP")
	}

	stop()
	time.Sleep(50 * time.Millisecond) // let the goroutine actually exit

	// A second SIGHUP after Stop must not be handled by this Watch's
	// callback; only the guard subscriber above still receives it.
	_ = syscall.Kill(os.Getpid(), syscall.SIGHUP)
	select {
	case <-reloaded:
		t.Fatal("onReload invoked after stop()")
	case <-time.After(200 * time.Millisecond):
	}
}
