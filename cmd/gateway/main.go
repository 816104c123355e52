package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"omnigate/pkg/approval"
	"omnigate/pkg/audit"
	"omnigate/pkg/auth"
	"omnigate/pkg/broker"
	"omnigate/pkg/connbus"
	"omnigate/pkg/connections"
	"omnigate/pkg/httpx"
	"omnigate/pkg/metrics"
	"omnigate/pkg/policy"
	"omnigate/pkg/providers"
	"omnigate/pkg/providers/googlecal"
	"omnigate/pkg/providers/guesty"
	"omnigate/pkg/providers/hubspot"
	"omnigate/pkg/providers/opentable"
	"omnigate/pkg/providers/trustpilot"
	"omnigate/pkg/ratelimit"
	"omnigate/pkg/store"
	"omnigate/pkg/stream"
	"omnigate/pkg/telemetry"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	Connections         connections.Store
	Approvals           approval.Queue
	Audit               audit.Log
	Broker              broker.Client
	Registry            *providers.Registry
	Gate                *providers.Gate
	Cache               store.Cache
	Redis               *redis.Client
	Metrics             *metrics.Registry
	Events              *stream.Hub
	Bus                 connbus.Consumer
	RateLimiter         ratelimit.Limiter
	RateLimitEnabled    bool
	RateLimitPerMinute  int
	RateLimitWindow     time.Duration
	AuthMode            string
	AuthSecret          string
	ApproverRoles       []string
	CallbackTTL         time.Duration
	MaxRequestBodyBytes int64
}

type gatewayDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type gatewayDBCloser interface {
	gatewayDB
	Close()
}

type gatewayInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type gatewayOpenDBFunc func(ctx context.Context) (gatewayDBCloser, error)
type gatewayOpenRedisFunc func(ctx context.Context) (*redis.Client, error)
type gatewayListenFunc func(server *http.Server) error
type gatewayStartLoopsFunc func(s *Server)

var (
	logFatalf      = log.Fatalf
	initTelemetryG = telemetry.Init
	openDBFnG      = func(ctx context.Context) (gatewayDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFnG   = store.NewRedis
	listenFnG      = func(server *http.Server) error { return server.ListenAndServe() }
	startLoopsFnG  = func(s *Server) {
		if s.Bus != nil {
			runner := &connbus.Runner{Bus: s.Bus, Store: s.Connections, Events: s.Events}
			go runner.Run(context.Background())
		}
	}
)

func main() {
	if err := runGateway(initTelemetryG, openDBFnG, openRedisFnG, listenFnG, startLoopsFnG); err != nil {
		logFatalf("gateway: %v", err)
	}
}

func runGateway(
	initTelemetry gatewayInitTelemetryFunc,
	openDB gatewayOpenDBFunc,
	openRedis gatewayOpenRedisFunc,
	listen gatewayListenFunc,
	startLoops gatewayStartLoopsFunc,
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "gateway")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	backend := strings.ToLower(env("STORE_BACKEND", "postgres"))
	var pool gatewayDBCloser
	if backend == "postgres" {
		pool, err = openDB(ctx)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pool.Close()
	}

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	auditSalt := []byte(env("AUDIT_HASH_SALT", ""))
	auditRedact := env("AUDIT_REDACT", "false") == "true"
	rateLimitWindow := time.Second * time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60))
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	callbackTTL := time.Second * time.Duration(envInt("CALLBACK_IDEMPOTENCY_TTL_SEC", 600))
	maxRequestBodyBytes := int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20))
	if maxRequestBodyBytes <= 0 {
		maxRequestBodyBytes = 1 << 20
	}

	s := &Server{
		Cache:               cache,
		Redis:               redisClient,
		Metrics:             metrics.NewRegistry(),
		Events:              stream.NewHub(),
		RateLimitEnabled:    env("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitPerMinute:  envInt("RATE_LIMIT_PER_MINUTE", 240),
		RateLimitWindow:     rateLimitWindow,
		AuthMode:            env("AUTH_MODE", "headers"),
		AuthSecret:          env("OIDC_HS256_SECRET", ""),
		ApproverRoles:       splitCSV(env("APPROVER_ROLES", "")),
		CallbackTTL:         callbackTTL,
		MaxRequestBodyBytes: maxRequestBodyBytes,
	}
	if backend == "postgres" {
		s.Connections = &connections.DBStore{DB: pool}
		s.Approvals = &approval.DBQueue{DB: pool}
	} else {
		s.Connections = connections.NewMemoryStore()
		s.Approvals = approval.NewMemoryQueue()
	}
	switch {
	case env("AUDIT_LOG_ENABLED", "true") != "true":
		s.Audit = audit.Nop{}
	case backend == "postgres":
		s.Audit = &audit.DBLog{DB: pool, HashSalt: auditSalt, Redact: auditRedact}
	default:
		s.Audit = audit.NewMemoryLog(envInt("AUDIT_MEMORY_CAPACITY", 10000))
	}
	s.Broker = &broker.HTTPClient{
		Client:     telemetry.InstrumentClient(&http.Client{Timeout: time.Millisecond * time.Duration(envInt("UPSTREAM_TIMEOUT_MS", 30000))}),
		BaseURL:    env("BROKER_URL", ""),
		AuthHeader: env("BROKER_AUTH_HEADER", ""),
		AuthToken:  env("BROKER_AUTH_TOKEN", ""),
		Timeout:    time.Millisecond * time.Duration(envInt("UPSTREAM_TIMEOUT_MS", 30000)),
	}
	s.Registry = buildRegistry()
	s.Gate = &providers.Gate{
		Connections: s.Connections,
		Approvals:   s.Approvals,
		Audit:       s.Audit,
		Broker:      s.Broker,
		Policy:      policy.Classifier{RequireApproval: env("WRITE_REQUIRES_APPROVAL", "true") == "true"},
		Events:      s.Events,
		Metrics:     s.Metrics,
		PreviewSalt: auditSalt,
	}
	if s.RateLimitEnabled {
		if redisClient != nil {
			s.RateLimiter = ratelimit.NewRedis(redisClient, rateLimitWindow)
		} else {
			s.RateLimiter = ratelimit.NewInMemory(rateLimitWindow)
		}
	}
	if env("KAFKA_ENABLED", "false") == "true" {
		consumer, err := connbus.NewKafkaConsumer(connbus.KafkaConfig{
			Brokers: strings.Split(env("KAFKA_BROKERS", "localhost:9092"), ","),
			Topic:   env("KAFKA_TOPIC", "omnigate.connection.events"),
			GroupID: env("KAFKA_GROUP_ID", "omnigate-gateway"),
		})
		if err != nil {
			return err
		}
		s.Bus = consumer
	}
	defer func() {
		if s.Bus != nil {
			_ = s.Bus.Close()
		}
	}()

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("gateway"))
	r.Use(s.limitRequestBodyMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "gateway"})
	})

	authRouter := chi.NewRouter()
	authRouter.Use(auth.Middleware(s.AuthMode, s.AuthSecret))
	authRouter.Get("/metrics", s.Metrics.Handler())
	authRouter.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())
	authRouter.Get("/v1/providers", s.listProviders)
	authRouter.Post("/v1/providers/{provider}/connect", s.connectProvider)
	authRouter.Post("/v1/providers/{provider}/disconnect", s.disconnectProvider)
	authRouter.Get("/v1/providers/{provider}/status", s.providerStatus)
	authRouter.Post("/v1/providers/{provider}/callback", s.providerCallback)
	authRouter.Post("/v1/providers/{provider}/ops/{operation}", s.invokeOperation)
	authRouter.Get("/v1/approvals", s.listApprovals)
	authRouter.Get("/v1/approvals/{request_id}", s.getApproval)
	authRouter.Post("/v1/approvals/{request_id}/approve", s.withRoles(s.approveRequest, s.ApproverRoles...))
	authRouter.Post("/v1/approvals/{request_id}/reject", s.withRoles(s.rejectRequest, s.ApproverRoles...))
	authRouter.Post("/v1/approvals/{request_id}/execute", s.withRoles(s.executeApproved, s.ApproverRoles...))
	authRouter.Get("/v1/audit", s.listAudit)
	authRouter.Get("/v1/stream", s.streamEvents)
	r.Mount("/", authRouter)

	if startLoops != nil {
		startLoops(s)
	}

	addr := env("ADDR", ":8080")
	log.Printf("gateway listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

// buildRegistry registers the built-in adapters and applies per-provider
// scope overrides from PROVIDER_SCOPES_<ID>.
func buildRegistry() *providers.Registry {
	reg := providers.NewRegistry()
	reg.Register(googlecal.New())
	reg.Register(hubspot.New())
	reg.Register(opentable.New())
	reg.Register(guesty.New())
	reg.Register(trustpilot.New())
	for _, info := range reg.List() {
		key := "PROVIDER_SCOPES_" + strings.ToUpper(info.ID)
		if raw := env(key, ""); raw != "" {
			reg.OverrideScopes(info.ID, splitCSV(raw))
		}
	}
	return reg
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap exposes the underlying writer so http.ResponseController and the
// websocket upgrade can reach Hijack through the middleware chain.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (srv *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		srv.Metrics.Observe(r.Method+" "+r.URL.Path, rec.code, time.Since(start))
	})
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// withRoles gates a handler on the configured approver roles. With no roles
// configured any authenticated principal passes.
func (s *Server) withRoles(h http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(roles) == 0 {
			h(w, r)
			return
		}
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			httpx.Error(w, 401, "ACCESS_DENIED", "unauthenticated")
			return
		}
		if !auth.HasAnyRole(principal, roles...) {
			httpx.Error(w, 403, "ACCESS_DENIED", "forbidden")
			return
		}
		h(w, r)
	}
}

// checkRateLimit applies the fixed-window limit per tenant and provider.
// Returns retry-after milliseconds when the request is over the limit.
func (s *Server) checkRateLimit(r *http.Request, provider string) (bool, int) {
	if !s.RateLimitEnabled || s.RateLimiter == nil || s.RateLimitPerMinute <= 0 {
		return false, 0
	}
	tenant := "anonymous"
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok && principal.Tenant != "" {
		tenant = strings.ToLower(principal.Tenant)
	}
	decision := s.RateLimiter.Allow("ops:"+tenant+":"+provider, s.RateLimitPerMinute)
	if decision.Allowed {
		return false, 0
	}
	retryAfter := int(time.Until(decision.ResetAt).Milliseconds())
	if retryAfter < 0 {
		retryAfter = int(s.RateLimitWindow.Milliseconds())
	}
	return true, retryAfter
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, 503, "CONFIG_ERROR", "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if origins := splitCSV(env("WS_ALLOWED_ORIGINS", "")); len(origins) > 0 {
		opts.OriginPatterns = origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	defer s.Events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "INVALID_ARGS", "request body too large")
		return nil, false
	}
	httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", "invalid request body")
	return nil, false
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
