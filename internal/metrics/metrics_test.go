package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoute(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRoute(r.Context(), "GET /api/resource/move")
		w.WriteHeader(http.StatusConflict)
	}))

	counter := httpRequestsTotal.WithLabelValues("GET", "GET /api/resource/move", "409")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/resource/move?from=a&to=b", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMiddlewareUnmatched(t *testing.T) {
	h := Middleware(http.NotFoundHandler())

	counter := httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRecordStorageOperation(t *testing.T) {
	failed := storageOperationsTotal.WithLabelValues("memory", "copy", "error")
	before := testutil.ToFloat64(failed)

	RecordStorageOperation("memory", "copy", time.Millisecond, false)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestRecordResourceOperation(t *testing.T) {
	c := resourceOperationsTotal.WithLabelValues("move", "type_mismatch")
	before := testutil.ToFloat64(c)

	RecordResourceOperation("move", "type_mismatch")
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
