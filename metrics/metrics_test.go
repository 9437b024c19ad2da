package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.ObserveResponse(ResultRewritten)
	r.ObserveResponse(ResultRewritten)
	r.ObserveResponse(ResultIneligible)
	r.ObserveRun("reddit-remove-sub-feed", "applied")
	r.ObserveRun("stackexchange-remove-related", "failed")
	r.ObserveRewrite(3 * time.Millisecond)
	r.ObserveTransportError("read")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.responsesTotal.WithLabelValues(ResultRewritten)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.responsesTotal.WithLabelValues(ResultIneligible)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("stackexchange-remove-related", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transportErrors.WithLabelValues("read")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.rewriteDuration))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveResponse(ResultPaused)
		r.ObserveRun("x", "applied")
		r.ObserveRewrite(time.Second)
		r.ObserveTransportError("dial")
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRecorder(nil)
	r.ObserveResponse(ResultUnmatched)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `gorged_responses_total{result="unmatched"} 1`))
}
