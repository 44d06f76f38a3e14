package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveFetch(t *testing.T) {
	before := testutil.ToFloat64(Fetches.WithLabelValues(ResultError))
	ObserveFetch(time.Now(), errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(Fetches.WithLabelValues(ResultError)))

	before = testutil.ToFloat64(Fetches.WithLabelValues(ResultSuccess))
	ObserveFetch(time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(Fetches.WithLabelValues(ResultSuccess)))
}

func TestHandler(t *testing.T) {
	ObserveRequest("/", http.StatusOK)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `dashboard_requests_total{path="/",status="200"}`)
}
