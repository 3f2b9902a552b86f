package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBackendCall(t *testing.T) {
	before := testutil.ToFloat64(BackendCallsTotal.WithLabelValues(KindCount))
	ObserveBackendCall(KindCount)
	ObserveBackendCall(KindCount)

	if got := testutil.ToFloat64(BackendCallsTotal.WithLabelValues(KindCount)); got != before+2 {
		t.Errorf("expected %v, got %v", before+2, got)
	}
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("unknown", "error"))
	ObserveRequest("", false)

	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("unknown", "error")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}

func TestHandler(t *testing.T) {
	ObserveRequest("queryExecute", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "qconsole_requests_total") {
		t.Error("expected qconsole_requests_total in exposition")
	}
}
