// Package metrics is the in-process counter/histogram registry exposed over
// /metrics (JSON) and /metrics/prometheus (text exposition).
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"omnigate/pkg/httpx"
)

type Registry struct {
	mu         sync.RWMutex
	endpoint   map[string]*EndpointStat
	operations map[string]int64
	approvals  map[string]int64
	proxyCalls map[string]int64
	proxyFails map[string]int64
	gauges     map[string]float64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt string                  `json:"generated_at"`
	Endpoints   map[string]EndpointStat `json:"endpoints"`
	Operations  map[string]int64        `json:"operations"`
	Approvals   map[string]int64        `json:"approvals"`
	ProxyCalls  map[string]int64        `json:"proxy_calls"`
	ProxyFails  map[string]int64        `json:"proxy_failures"`
	Gauges      map[string]float64      `json:"gauges"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:   map[string]*EndpointStat{},
		operations: map[string]int64{},
		approvals:  map[string]int64{},
		proxyCalls: map[string]int64{},
		proxyFails: map[string]int64{},
		gauges:     map[string]float64{},
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
	stat.LastStatusCode = status
}

// IncOperation counts one adapter operation invocation by provider.operation.
func (r *Registry) IncOperation(provider, operation string) {
	r.mu.Lock()
	r.operations[provider+"."+operation]++
	r.mu.Unlock()
}

// IncApproval counts an approval-queue transition by resulting status.
func (r *Registry) IncApproval(status string) {
	r.mu.Lock()
	r.approvals[status]++
	r.mu.Unlock()
}

// IncProxyCall counts one broker proxy call, failed or not, by provider.
func (r *Registry) IncProxyCall(provider string, failed bool) {
	r.mu.Lock()
	r.proxyCalls[provider]++
	if failed {
		r.proxyFails[provider]++
	}
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Endpoints:   map[string]EndpointStat{},
		Operations:  map[string]int64{},
		Approvals:   map[string]int64{},
		ProxyCalls:  map[string]int64{},
		ProxyFails:  map[string]int64{},
		Gauges:      map[string]float64{},
	}
	for k, v := range r.endpoint {
		snap.Endpoints[k] = *v
	}
	for k, v := range r.operations {
		snap.Operations[k] = v
	}
	for k, v := range r.approvals {
		snap.Approvals[k] = v
	}
	for k, v := range r.proxyCalls {
		snap.ProxyCalls[k] = v
	}
	for k, v := range r.proxyFails {
		snap.ProxyFails[k] = v
	}
	for k, v := range r.gauges {
		snap.Gauges[k] = v
	}
	return snap
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteJSON(w, 200, r.Snapshot())
	}
}

// PrometheusHandler renders the snapshot in Prometheus text exposition format.
func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		var b strings.Builder
		writeCounterFamily(&b, "omnigate_operations_total", "op", snap.Operations)
		writeCounterFamily(&b, "omnigate_approvals_total", "status", snap.Approvals)
		writeCounterFamily(&b, "omnigate_proxy_calls_total", "provider", snap.ProxyCalls)
		writeCounterFamily(&b, "omnigate_proxy_failures_total", "provider", snap.ProxyFails)
		endpointKeys := sortedKeys(snap.Endpoints)
		for _, path := range endpointKeys {
			stat := snap.Endpoints[path]
			fmt.Fprintf(&b, "omnigate_http_requests_total{path=%q} %d\n", path, stat.Count)
			fmt.Fprintf(&b, "omnigate_http_errors_total{path=%q} %d\n", path, stat.ErrorCount)
		}
		for _, name := range sortedKeys(snap.Gauges) {
			fmt.Fprintf(&b, "omnigate_%s %g\n", name, snap.Gauges[name])
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(b.String()))
	}
}

func writeCounterFamily(b *strings.Builder, family, label string, values map[string]int64) {
	for _, k := range sortedKeys(values) {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", family, label, k, values[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
