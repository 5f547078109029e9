package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"":                                 "/",
		"/":                                "/",
		"/health":                          "/health",
		"/quotations":                      "/quotations",
		"/quotations/42":                   "/quotations/:id",
		"/quotations/42/documents/statuts": "/quotations/:id/documents",
		"/auth/login":                      "/auth/login",
		"/admin/profiles/3/permissions":    "/admin/profiles",
	}
	for in, want := range tests {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInstrumentHandler(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/quotations/:id", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quotations/9", nil))
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/quotations/:id", "418"))
	if after != before+1 {
		t.Fatalf("expected counter increment, got %v -> %v", before, after)
	}
}

func TestRecorders(t *testing.T) {
	RecordBackendCall("get_quotation", 503, time.Millisecond)
	if v := testutil.ToFloat64(backendCalls.WithLabelValues("get_quotation", "5xx")); v < 1 {
		t.Fatalf("backend call not recorded")
	}
	RecordBackendCall("get_quotation", 0, time.Millisecond)
	if v := testutil.ToFloat64(backendCalls.WithLabelValues("get_quotation", "error")); v < 1 {
		t.Fatalf("transport error not recorded")
	}
	RecordTransition("submit", errors.New("x"))
	if v := testutil.ToFloat64(transitions.WithLabelValues("submit", "error")); v < 1 {
		t.Fatalf("transition not recorded")
	}
	RecordUpload("financier", nil)
	if v := testutil.ToFloat64(uploads.WithLabelValues("financier", "success")); v < 1 {
		t.Fatalf("upload not recorded")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordSessionsPurged(2)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "ejaar_sessions_purged_total") {
		t.Fatalf("metrics output missing sessions counter")
	}
}
