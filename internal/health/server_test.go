package health

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuwatch/gpuwatch-agent/internal/observability"
)

type stubReadiness struct {
	ready bool
}

func (s *stubReadiness) IsReady() bool { return s.ready }

type stubReport struct {
	report interface{}
}

func (s *stubReport) LatestReport() interface{} { return s.report }

type stubErrors struct {
	codes []string
}

func (s *stubErrors) GetActiveErrorCodes() []string { return s.codes }

func startTestServer(t *testing.T, readiness *stubReadiness, report *stubReport, errStats *stubErrors, debug bool) string {
	t.Helper()

	srv := NewServer(0, observability.NewMetrics(), readiness, report, errStats, debug)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	return "http://127.0.0.1:" + port
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer_Healthz(t *testing.T) {
	base := startTestServer(t, &stubReadiness{}, &stubReport{}, &stubErrors{}, false)

	resp, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_Readyz(t *testing.T) {
	readiness := &stubReadiness{}
	base := startTestServer(t, readiness, &stubReport{}, &stubErrors{}, false)

	resp, body := get(t, base+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"ready":false}`, string(body))

	readiness.ready = true
	resp, body = get(t, base+"/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ready":true}`, string(body))
}

func TestServer_Metrics(t *testing.T) {
	base := startTestServer(t, &stubReadiness{}, &stubReport{}, &stubErrors{}, false)

	resp, body := get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "gpuwatch_")
}

func TestServer_DebugDisabled(t *testing.T) {
	base := startTestServer(t, &stubReadiness{}, &stubReport{}, &stubErrors{}, false)

	resp, _ := get(t, base+"/debug/report")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get(t, base+"/debug/errors")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DebugReport(t *testing.T) {
	report := &stubReport{}
	base := startTestServer(t, &stubReadiness{}, report, &stubErrors{}, true)

	resp, _ := get(t, base+"/debug/report")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	report.report = map[string]string{"report_id": "r-1"}
	resp, body := get(t, base+"/debug/report")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "r-1", decoded["report_id"])
}

func TestServer_DebugErrors(t *testing.T) {
	base := startTestServer(t, &stubReadiness{}, &stubReport{}, &stubErrors{codes: []string{"TELEMETRY_UNAVAILABLE"}}, true)

	resp, body := get(t, base+"/debug/errors")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"active_errors":["TELEMETRY_UNAVAILABLE"]}`, string(body))
}
