// broker-mock stands in for the credential broker during local development.
// It hands out a fake authorization URL and echoes proxied calls back so the
// gateway's full connect/invoke flow can be exercised without real providers.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"omnigate/pkg/broker"
	"omnigate/pkg/httpx"
	"omnigate/pkg/telemetry"

	"github.com/go-chi/chi/v5"
)

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	listenFn        = func(server *http.Server) error { return server.ListenAndServe() }
)

func main() {
	if err := runBrokerMock(initTelemetryFn, listenFn); err != nil {
		logFatalf("server error: %v", err)
	}
}

func handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string   `json:"provider"`
		TenantID string   `json:"tenant_id"`
		Scopes   []string `json:"scopes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Provider == "" || req.TenantID == "" {
		httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", "provider and tenant_id required")
		return
	}
	base := env("AUTHORIZE_BASE_URL", "https://connect.invalid/authorize")
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"authorization_url": base + "?provider=" + req.Provider + "&tenant=" + req.TenantID,
	})
}

// handleProxy echoes the call so developers can see exactly what the gateway
// would have sent upstream.
func handleProxy(w http.ResponseWriter, r *http.Request) {
	var call broker.Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", "invalid proxy call")
		return
	}
	if call.Provider == "" || call.ConnectionID == "" {
		httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", "provider and connection_id required")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"echo":   call,
	})
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

func runBrokerMock(
	initTelemetry func(context.Context, string) (func(context.Context) error, error),
	listen func(*http.Server) error,
) error {
	if initTelemetry == nil {
		initTelemetry = telemetry.Init
	}
	if listen == nil {
		listen = func(server *http.Server) error { return server.ListenAndServe() }
	}

	shutdown, err := initTelemetry(context.Background(), "broker-mock")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	r := chi.NewRouter()
	r.Use(telemetry.HTTPMiddleware("broker-mock"))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "broker-mock"})
	})
	r.Post("/v1/connections/authorize", handleAuthorize)
	r.Post("/v1/proxy", handleProxy)

	addr := env("ADDR", ":8085")
	log.Printf("broker-mock listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	return listen(server)
}
