package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"omnigate/pkg/approval"
	"omnigate/pkg/auth"
	"omnigate/pkg/broker"
	"omnigate/pkg/connections"
	"omnigate/pkg/httpx"
	"omnigate/pkg/models"
	"omnigate/pkg/providers"
	"omnigate/pkg/stream"

	"github.com/go-chi/chi/v5"
)

// writeOpError maps the typed error surface onto stable reason codes.
func writeOpError(w http.ResponseWriter, err error) {
	var transport *broker.TransportError
	switch {
	case errors.Is(err, providers.ErrUnknownProvider):
		httpx.Error(w, http.StatusNotFound, "UNKNOWN_PROVIDER", err.Error())
	case errors.Is(err, providers.ErrUnknownOperation):
		httpx.Error(w, http.StatusNotFound, "UNKNOWN_OPERATION", err.Error())
	case errors.Is(err, connections.ErrNotConnected):
		httpx.Error(w, http.StatusConflict, "NOT_CONNECTED", err.Error())
	case errors.Is(err, providers.ErrMissingConnectionID):
		httpx.Error(w, http.StatusConflict, "MISSING_CONNECTION_ID", err.Error())
	case errors.Is(err, providers.ErrInvalidArgs):
		httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", err.Error())
	case errors.Is(err, providers.ErrNotApproved), errors.Is(err, approval.ErrNotApproved):
		httpx.Error(w, http.StatusConflict, "NOT_APPROVED", err.Error())
	case errors.Is(err, approval.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "APPROVAL_NOT_FOUND", err.Error())
	case errors.Is(err, approval.ErrAccessDenied):
		httpx.Error(w, http.StatusForbidden, "ACCESS_DENIED", err.Error())
	case errors.Is(err, approval.ErrAlreadyDecided):
		httpx.Error(w, http.StatusConflict, "ALREADY_DECIDED", err.Error())
	case errors.Is(err, broker.ErrNotConfigured):
		httpx.Error(w, http.StatusInternalServerError, "CONFIG_ERROR", err.Error())
	case errors.As(err, &transport):
		httpx.Error(w, http.StatusBadGateway, "TRANSPORT_ERROR", transport.Error())
	default:
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || strings.TrimSpace(principal.Tenant) == "" {
		httpx.Error(w, http.StatusUnauthorized, "ACCESS_DENIED", "tenant required")
		return auth.Principal{}, false
	}
	return principal, true
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"providers": s.Registry.List()})
}

func (s *Server) connectProvider(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	adapter, err := s.Registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	scopes := s.Registry.ScopesFor(adapter)
	conn, err := s.Connections.Save(r.Context(), models.Connection{
		TenantID: principal.Tenant,
		Provider: adapter.ID(),
		Status:   models.ConnectionPending,
		Scopes:   scopes,
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	authURL, err := s.Broker.AuthorizeURL(r.Context(), adapter.ID(), principal.Tenant, scopes)
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.publishConnection(conn)
	httpx.WriteJSON(w, http.StatusOK, models.ConnectResponse{
		Connection:       conn,
		AuthorizationURL: authURL,
	})
}

func (s *Server) disconnectProvider(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	adapter, err := s.Registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	deleted, err := s.Connections.Delete(r.Context(), principal.Tenant, adapter.ID())
	if err != nil {
		writeOpError(w, err)
		return
	}
	if deleted {
		s.publishConnection(models.Connection{
			TenantID: principal.Tenant,
			Provider: adapter.ID(),
			Status:   models.ConnectionDisconnected,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"provider": adapter.ID(),
		"status":   models.ConnectionDisconnected,
		"deleted":  deleted,
	})
}

func (s *Server) providerStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	adapter, err := s.Registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	conn, found, err := s.Connections.Get(r.Context(), principal.Tenant, adapter.ID())
	if err != nil {
		writeOpError(w, err)
		return
	}
	if !found {
		httpx.WriteJSON(w, http.StatusOK, models.Connection{
			TenantID: principal.Tenant,
			Provider: adapter.ID(),
			Status:   models.ConnectionDisconnected,
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, conn)
}

type callbackRequest struct {
	ExternalConnectionID string `json:"external_connection_id"`
	Status               string `json:"status,omitempty"`
}

// providerCallback is the broker's completion signal for a connect flow.
// Replays with the same external connection id are absorbed by the cache.
func (s *Server) providerCallback(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	adapter, err := s.Registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", "invalid json")
		return
	}
	if strings.TrimSpace(req.ExternalConnectionID) == "" {
		httpx.Error(w, http.StatusBadRequest, "MISSING_CONNECTION_ID", "external_connection_id required")
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = models.ConnectionConnected
	}
	if status != models.ConnectionConnected && status != models.ConnectionError {
		httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", "status must be connected or error")
		return
	}
	key := "cb:" + strings.ToLower(principal.Tenant) + ":" + adapter.ID() + ":" + req.ExternalConnectionID + ":" + status
	if s.Cache != nil && s.CallbackTTL > 0 {
		if _, err := s.Cache.Get(r.Context(), key); err == nil {
			if conn, found, err := s.Connections.Get(r.Context(), principal.Tenant, adapter.ID()); err == nil && found {
				httpx.WriteJSON(w, http.StatusOK, conn)
				return
			}
		}
	}
	conn, found, err := s.Connections.UpdateStatus(r.Context(), principal.Tenant, adapter.ID(), status, req.ExternalConnectionID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if !found {
		httpx.Error(w, http.StatusConflict, "NOT_CONNECTED", "no pending connection for provider")
		return
	}
	// The replay marker is written only after the update landed, so a failed
	// callback stays retryable.
	if s.Cache != nil && s.CallbackTTL > 0 {
		_ = s.Cache.Set(r.Context(), key, "1", s.CallbackTTL)
	}
	s.publishConnection(conn)
	httpx.WriteJSON(w, http.StatusOK, conn)
}

func (s *Server) invokeOperation(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	adapter, err := s.Registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	if limited, retryAfterMs := s.checkRateLimit(r, adapter.ID()); limited {
		w.Header().Set("Retry-After", strconv.Itoa((retryAfterMs+999)/1000))
		httpx.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return
	}
	opName := chi.URLParam(r, "operation")
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	s.Metrics.IncOperation(adapter.ID(), opName)
	result, err := s.Gate.Invoke(r.Context(), adapter, principal.Tenant, opName, body)
	if err != nil {
		writeOpError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.Audit.List(r.Context(), principal.Tenant, limit)
	if err != nil {
		writeOpError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) publishConnection(conn models.Connection) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(stream.NewEvent(stream.EventConnectionUpdated, map[string]any{
		"tenant_id":  conn.TenantID,
		"provider":   conn.Provider,
		"status":     conn.Status,
		"updated_at": time.Now().UTC(),
	}))
}
