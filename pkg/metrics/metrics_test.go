package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/Sternrassler/screener-client/pkg/client"
	_ "github.com/Sternrassler/screener-client/pkg/pagination"
	_ "github.com/Sternrassler/screener-client/pkg/ratelimit"
)

func TestRegistry(t *testing.T) {
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestCatalogueRegistered(t *testing.T) {
	families, err := Gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	registered := make(map[string]bool, len(families))
	for _, f := range families {
		registered[f.GetName()] = true
	}

	// Vectors only show up once a label set has been observed.
	plain := []string{
		"screener_request_duration_seconds",
		"screener_pages_fetched_total",
		"screener_records_retrieved_total",
		"screener_retrieval_duration_seconds",
		"screener_budget_remaining",
		"screener_budget_waits_total",
		"screener_budget_wait_seconds",
	}
	for _, name := range plain {
		if !registered[name] {
			t.Errorf("metric %s is not registered", name)
		}
	}

	seen := make(map[string]bool)
	for _, name := range Catalogue {
		if !strings.HasPrefix(name, "screener_") {
			t.Errorf("metric %s lacks the screener_ prefix", name)
		}
		if seen[name] {
			t.Errorf("metric %s listed twice", name)
		}
		seen[name] = true
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "screener_pages_fetched_total") {
		t.Error("metrics output does not contain screener_pages_fetched_total")
	}
}
