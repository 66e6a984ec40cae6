package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RunnerOutcomes.WithLabelValues("no_job"))
	RunnerOutcomes.WithLabelValues("no_job").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RunnerOutcomes.WithLabelValues("no_job")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	JobsProcessed.WithLabelValues("ticker", "success").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `openclerk_jobs_processed_total{status="success",type="ticker"}`)
}
