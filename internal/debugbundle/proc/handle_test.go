package proc_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/debugbundle/proc"
)

func TestSpawn_SuccessfulExitCapturesOutput(t *testing.T) {
	h, err := proc.Spawn(context.Background(), uuid.New(),
		[]string{"/bin/sh", "-c", "echo line1; echo line2 1>&2; exit 0"},
		"/tmp/bundle.zip", "/tmp/out.json")
	require.NoError(t, err)

	ws, err := h.Wait()
	require.NoError(t, err)
	assert.True(t, ws.Success())
	assert.False(t, h.Running())

	assert.Equal(t, []string{"line1"}, h.StdoutLines())
	assert.Equal(t, []string{"line2"}, h.StderrLines())
}

func TestSpawn_NonZeroExit(t *testing.T) {
	h, err := proc.Spawn(context.Background(), uuid.New(),
		[]string{"/bin/sh", "-c", "exit 2"},
		"/tmp/bundle.zip", "/tmp/out.json")
	require.NoError(t, err)

	ws, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 2, ws.ExitCode)
	assert.False(t, ws.Success())
}

func TestWait_IsIdempotent(t *testing.T) {
	h, err := proc.Spawn(context.Background(), uuid.New(),
		[]string{"/bin/sh", "-c", "exit 0"},
		"/tmp/bundle.zip", "/tmp/out.json")
	require.NoError(t, err)

	ws1, err1 := h.Wait()
	ws2, err2 := h.Wait()
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Same(t, ws1, ws2)
}

func TestTerminate_KillsRunningProcess(t *testing.T) {
	h, err := proc.Spawn(context.Background(), uuid.New(),
		[]string{"/bin/sh", "-c", "sleep 60"},
		"/tmp/bundle.zip", "/tmp/out.json")
	require.NoError(t, err)

	start := time.Now()
	err = h.Terminate(200 * time.Millisecond)
	require.NoError(t, err)

	ws, waitErr := h.Wait()
	require.NoError(t, waitErr)
	assert.False(t, ws.Success())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAssertNotRunning_PanicsWhileRunning(t *testing.T) {
	h, err := proc.Spawn(context.Background(), uuid.New(),
		[]string{"/bin/sh", "-c", "sleep 60"},
		"/tmp/bundle.zip", "/tmp/out.json")
	require.NoError(t, err)
	defer h.Terminate(100 * time.Millisecond)

	assert.Panics(t, func() { h.AssertNotRunning() })
}
