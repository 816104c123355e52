package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveAggregatesPerEndpoint(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Observe("/v1/providers", 200, 10*time.Millisecond)
	r.Observe("/v1/providers", 500, 30*time.Millisecond)

	snap := r.Snapshot()
	stat, ok := snap.Endpoints["/v1/providers"]
	if !ok {
		t.Fatal("endpoint missing from snapshot")
	}
	if stat.Count != 2 || stat.ErrorCount != 1 {
		t.Fatalf("unexpected counts: %+v", stat)
	}
	if stat.MaxMillis != 30 {
		t.Fatalf("unexpected max: %d", stat.MaxMillis)
	}
	if stat.AverageMillis != 20 {
		t.Fatalf("unexpected average: %g", stat.AverageMillis)
	}
	if stat.LastStatusCode != 500 {
		t.Fatalf("unexpected last status: %d", stat.LastStatusCode)
	}
}

func TestCountersAndGauges(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.IncOperation("hubspot", "contact_create")
	r.IncOperation("hubspot", "contact_create")
	r.IncApproval("approved")
	r.IncProxyCall("slack", false)
	r.IncProxyCall("slack", true)
	r.SetGauge("connections_active", 7)

	snap := r.Snapshot()
	if snap.Operations["hubspot.contact_create"] != 2 {
		t.Fatalf("unexpected operations: %v", snap.Operations)
	}
	if snap.Approvals["approved"] != 1 {
		t.Fatalf("unexpected approvals: %v", snap.Approvals)
	}
	if snap.ProxyCalls["slack"] != 2 || snap.ProxyFails["slack"] != 1 {
		t.Fatalf("unexpected proxy counters: calls=%v fails=%v", snap.ProxyCalls, snap.ProxyFails)
	}
	if snap.Gauges["connections_active"] != 7 {
		t.Fatalf("unexpected gauge: %v", snap.Gauges)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.IncOperation("slack", "message_post")
	snap := r.Snapshot()
	snap.Operations["slack.message_post"] = 99

	if got := r.Snapshot().Operations["slack.message_post"]; got != 1 {
		t.Fatalf("snapshot mutation leaked into registry: %d", got)
	}
}

func TestJSONHandler(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Observe("/healthz", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if snap.Endpoints["/healthz"].Count != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap.Endpoints)
	}
	if snap.GeneratedAt == "" {
		t.Fatal("generated_at missing")
	}
}

func TestPrometheusHandler(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.IncOperation("hubspot", "contact_create")
	r.IncApproval("pending")
	r.IncProxyCall("hubspot", true)
	r.Observe("/v1/approvals", 200, time.Millisecond)
	r.SetGauge("connections_active", 3)

	rec := httptest.NewRecorder()
	r.PrometheusHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`omnigate_operations_total{op="hubspot.contact_create"} 1`,
		`omnigate_approvals_total{status="pending"} 1`,
		`omnigate_proxy_calls_total{provider="hubspot"} 1`,
		`omnigate_proxy_failures_total{provider="hubspot"} 1`,
		`omnigate_http_requests_total{path="/v1/approvals"} 1`,
		`omnigate_http_errors_total{path="/v1/approvals"} 0`,
		`omnigate_connections_active 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q in:\n%s", want, body)
		}
	}
}
