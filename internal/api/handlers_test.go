package api_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/api"
	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/debugbundle"
	"github.com/ocx/backend/internal/debugbundle/shard"
	"github.com/ocx/backend/internal/debugbundle/store"
)

func newTestServer(t *testing.T, collectorPath string) *api.Server {
	t.Helper()
	router := shard.New()
	t.Cleanup(router.Shutdown)

	cfg := debugbundle.NewLiveConfig(config.DebugBundleConfig{
		CollectorBinaryPath: collectorPath,
		StorageDir:          t.TempDir(),
	})
	svc := debugbundle.New(router, cfg, store.NewMemStore(), debugbundle.NewMetrics(prometheus.NewRegistry()), debugbundle.NewStatusBus())
	return api.NewServer(svc, nil)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestHandleStatus_NeverStartedReturns404(t *testing.T) {
	srv := newTestServer(t, "/bin/true")
	req := httptest.NewRequest(http.MethodGet, "/v1/debug-bundle", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInitiate_MissingBinaryReturns500(t *testing.T) {
	srv := newTestServer(t, filepath.Join(t.TempDir(), "missing"))
	jobID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/debug-bundle/"+jobID.String(), nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleInitiate_BadJobIDReturns422(t *testing.T) {
	srv := newTestServer(t, "/bin/true")
	req := httptest.NewRequest(http.MethodPost, "/v1/debug-bundle/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleInitiateThenStatus_SuccessfulRun(t *testing.T) {
	collector := writeScript(t, `
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
if [ -n "$out" ]; then echo bundle > "$out"; fi
exit 0
`)
	srv := newTestServer(t, collector)
	router := srv.Router()

	jobID := uuid.New()
	initReq := httptest.NewRequest(http.MethodPost, "/v1/debug-bundle/"+jobID.String(), nil)
	initRec := httptest.NewRecorder()
	router.ServeHTTP(initRec, initReq)
	require.Equal(t, http.StatusAccepted, initRec.Code)

	deadline := time.Now().Add(5 * time.Second)
	for {
		statusReq := httptest.NewRequest(http.MethodGet, "/v1/debug-bundle", nil)
		statusRec := httptest.NewRecorder()
		router.ServeHTTP(statusRec, statusReq)
		require.Equal(t, http.StatusOK, statusRec.Code)
		if !assertRunning(statusRec.Body.String()) {
			assert.Contains(t, statusRec.Body.String(), `"Status":"success"`)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func assertRunning(body string) bool {
	return strings.Contains(body, `"Status":"running"`)
}
