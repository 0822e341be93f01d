package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/engine"
	"quorum/internal/gateway/provider"
	"quorum/internal/modelpool"
)

type stubProvider struct{ id string }

func (s *stubProvider) ID() string    { return s.id }
func (s *stubProvider) Enabled() bool { return true }

func (s *stubProvider) Generate(_ context.Context, _ provider.GenRequest) (provider.GenResult, error) {
	return provider.GenResult{Text: "{}", FinishReason: "stop"}, nil
}

func newTestServer(t *testing.T) (*Server, *modelpool.Pool) {
	t.Helper()
	pool, err := modelpool.New(modelpool.Config{FailureThreshold: 3}, []modelpool.Backend{
		{ID: "b0", Priority: 0, Timeout: time.Second, Provider: &stubProvider{id: "b0"}},
	})
	require.NoError(t, err)

	eng := engine.New(engine.Config{Symbol: "BTCUSDT"}, engine.Deps{Pool: pool})
	srv, err := NewServer(ServerConfig{Addr: ":0", Engine: eng, Pool: pool})
	require.NoError(t, err)
	return srv, pool
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLatestCycleBeforeFirstRun(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/cycle/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/bracket/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPoolSnapshotEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/pool")
	require.Equal(t, http.StatusOK, w.Code)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Contains(t, w.Body.String(), "b0")
}

func TestPoolResetEndpoint(t *testing.T) {
	srv, pool := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/pool/reset")
	assert.Equal(t, http.StatusOK, w.Code)

	// 运行中的周期挡住非强制重置
	done := pool.BeginOperation()
	defer done()
	w = doRequest(t, srv, http.MethodPost, "/api/pool/reset")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, srv, http.MethodPost, "/api/pool/reset?force=1")
	assert.Equal(t, http.StatusOK, w.Code)
}
