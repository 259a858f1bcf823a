package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	if m == nil {
		t.Fatal("Expected non-nil metrics")
	}

	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/users", "200").Inc()
	m.AuthDecisionsTotal.WithLabelValues("update", "deny").Inc()
	m.SlugGenerationAttempts.Observe(2)
	m.TokensIssuedTotal.WithLabelValues("password").Inc()

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/users", "200")); got != 1 {
		t.Errorf("Expected 1 request counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuthDecisionsTotal.WithLabelValues("update", "deny")); got != 1 {
		t.Errorf("Expected 1 deny counted, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"slug":"jane-doe-a1b2c3d4"}`))
	}))

	req := httptest.NewRequest("POST", "/api/v1/users", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("Middleware altered status code: got %v", rr.Code)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/users", "201")); got != 1 {
		t.Errorf("Expected request counted with status 201, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.TokensRevokedTotal.Inc()

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %v", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "roster_tokens_revoked_total") {
		t.Error("Expected roster_tokens_revoked_total in exposition output")
	}
}
