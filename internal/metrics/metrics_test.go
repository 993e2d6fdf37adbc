package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SignalsTotal.WithLabelValues("BUY_CE").Inc()
	m.TradesTotal.WithLabelValues("SL Hit").Add(2)
	m.ObserveBreaker(1, true)
	m.SetReady("NIFTY", true)

	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("BUY_CE")); got != 1 {
		t.Errorf("signals = %v", got)
	}
	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("SL Hit")); got != 2 {
		t.Errorf("trades = %v", got)
	}
	if got := testutil.ToFloat64(m.RedisCircuitBreakerTrips); got != 1 {
		t.Errorf("trips = %v", got)
	}
	if got := testutil.ToFloat64(m.IndicatorReady.WithLabelValues("NIFTY")); got != 1 {
		t.Errorf("ready = %v", got)
	}

	// a second registration on the same registry must panic
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}

func TestHealthz(t *testing.T) {
	h := NewHealthStatus("sqlite-replay", "V30")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d before feed runs", rec.Code)
	}

	h.SetFeedRunning(true)
	h.SetLastCandleTime(time.Now())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["preset"] != "V30" {
		t.Errorf("body = %v", body)
	}

	h.SetRedisEnabled(true)
	h.mu.Lock()
	h.RedisConnected = false
	h.mu.Unlock()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("redis down: code = %d", rec.Code)
	}
}

func TestServerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.BatchesTotal.Add(3)

	s := NewServer(":0", NewHealthStatus("test", "V30"), reg)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "niftybot_batches_total 3") {
		t.Errorf("metrics output missing batches counter:\n%s", rec.Body.String())
	}
}
