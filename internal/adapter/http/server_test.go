package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/LunaInsidious/abr-geocoder/internal/adapter/http"
)

type stubPipeline struct {
	err     error
	running bool
	records int64
}

func (s *stubPipeline) CheckReadiness(_ context.Context) error { return s.err }
func (s *stubPipeline) Records() int64                         { return s.records }
func (s *stubPipeline) Running() bool                          { return s.running }

func serve(t *testing.T, pipe httpadapter.Pipeline, path string) (int, map[string]any) {
	t.Helper()
	srv := httpadapter.NewServer(":0", pipe, slog.Default())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthzReportsPipelineProgress(t *testing.T) {
	code, body := serve(t, &stubPipeline{running: true, records: 42}, "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["pipeline_running"])
	assert.EqualValues(t, 42, body["records_emitted"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	code, body := serve(t, &stubPipeline{records: 7}, "/readyz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])
	assert.EqualValues(t, 7, body["records_emitted"])
	assert.NotContains(t, body, "error")
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	code, body := serve(t, &stubPipeline{err: fmt.Errorf("dictionaries still building")}, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "dictionaries still building", body["error"])
	assert.EqualValues(t, 0, body["records_emitted"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httpadapter.NewServer(":0", &stubPipeline{}, slog.Default())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
