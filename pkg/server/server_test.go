package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/bridge"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/telemetry"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchMetrics(ctx context.Context) (bridge.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(bridge.Result), args.Error(1)
}

func newTestServer(f *mockFetcher) *Server {
	s := &Server{
		serverName:     "test",
		refreshSeconds: 30,
	}
	return s.WithFetcher(f, "solax")
}

func testResult() bridge.Result {
	raw := types.NewRawMetrics()
	raw.Set("gridvoltage", types.Float(229.5))
	raw.Set("yieldtoday", types.Float(11.8))
	return bridge.Result{
		Raw: raw,
		Metrics: types.Metrics{
			"solax.gridvoltage": types.Float(229.5),
			"solax.yieldtoday":  types.Float(11.8),
		},
	}
}

func TestIndex(t *testing.T) {
	f := &mockFetcher{}
	f.On("FetchMetrics", mock.Anything).Return(testResult(), nil)
	handler := newTestServer(f).setupHandler()

	t.Run("renders html", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, "test", w.Header().Get("Server"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Contains(t, w.Body.String(), "Tagesertrag")
		assert.Contains(t, w.Body.String(), "<td>solax.gridvoltage</td>")
	})

	t.Run("query filters", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?q=grid", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "<td>solax.gridvoltage</td>")
		assert.NotContains(t, w.Body.String(), "<td>solax.yieldtoday</td>")
	})

	t.Run("fetch failure still renders", func(t *testing.T) {
		ff := &mockFetcher{}
		ff.On("FetchMetrics", mock.Anything).Return(bridge.Result{}, errors.New("upstream down"))

		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		newTestServer(ff).setupHandler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Fehler beim Abrufen der Daten: upstream down")
	})

	t.Run("gzip when accepted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	})
}

func TestMetricsJSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := &mockFetcher{}
		f.On("FetchMetrics", mock.Anything).Return(testResult(), nil).Once()

		req := httptest.NewRequest("GET", "/metrics.json", nil)
		w := httptest.NewRecorder()
		newTestServer(f).setupHandler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
		var payload map[string]map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
		assert.Equal(t, 229.5, payload["metrics"]["solax.gridvoltage"])
		assert.Equal(t, 11.8, payload["raw"]["yieldtoday"])
		f.AssertExpectations(t)
	})

	t.Run("failure", func(t *testing.T) {
		f := &mockFetcher{}
		f.On("FetchMetrics", mock.Anything).Return(bridge.Result{}, errors.New("boom")).Once()

		req := httptest.NewRequest("GET", "/metrics.json", nil)
		w := httptest.NewRecorder()
		newTestServer(f).setupHandler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"boom"}`, w.Body.String())
	})
}

func TestNotFound(t *testing.T) {
	f := &mockFetcher{}
	handler := newTestServer(f).setupHandler()

	before := testutil.ToFloat64(telemetry.DashboardRequests.WithLabelValues("other", "404"))
	for _, path := range []string{"/healthz", "/metrics", "/index.html", "/metrics.json/extra"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.True(t, strings.HasPrefix(w.Body.String(), "not found"), path)
	}
	assert.Equal(t, before+4, testutil.ToFloat64(telemetry.DashboardRequests.WithLabelValues("other", "404")))
	f.AssertNotCalled(t, "FetchMetrics", mock.Anything)
}

func TestRunRequiresDashboard(t *testing.T) {
	err := (&Server{}).Run(context.Background())
	assert.Error(t, err)
}
