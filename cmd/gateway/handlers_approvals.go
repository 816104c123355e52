package main

import (
	"net/http"
	"strings"

	"omnigate/pkg/httpx"
	"omnigate/pkg/models"
	"omnigate/pkg/stream"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected, models.ApprovalExecuted:
	default:
		httpx.Error(w, http.StatusBadRequest, "INVALID_ARGS", "unknown status filter")
		return
	}
	requests, err := s.Approvals.List(r.Context(), principal.Tenant, status)
	if err != nil {
		writeOpError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"approvals": requests})
}

func (s *Server) getApproval(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	req, err := s.Approvals.Get(r.Context(), chi.URLParam(r, "request_id"), principal.Tenant)
	if err != nil {
		writeOpError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

func (s *Server) approveRequest(w http.ResponseWriter, r *http.Request) {
	s.decideRequest(w, r, models.ApprovalApproved)
}

func (s *Server) rejectRequest(w http.ResponseWriter, r *http.Request) {
	s.decideRequest(w, r, models.ApprovalRejected)
}

func (s *Server) decideRequest(w http.ResponseWriter, r *http.Request, status string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	requestID := chi.URLParam(r, "request_id")
	var (
		req models.ApprovalRequest
		err error
	)
	if status == models.ApprovalApproved {
		req, err = s.Approvals.Approve(r.Context(), requestID, principal.Tenant, principal.Subject)
	} else {
		req, err = s.Approvals.Reject(r.Context(), requestID, principal.Tenant, principal.Subject)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.Metrics.IncApproval(status)
	if s.Events != nil {
		eventType := stream.EventApprovalApproved
		if status == models.ApprovalRejected {
			eventType = stream.EventApprovalRejected
		}
		s.Events.Publish(stream.NewEvent(eventType, req))
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

// executeApproved replays the preserved parameters of an approved request
// through its adapter. Approval alone never triggers network activity, and the
// request is consumed on execution, so repeating the call cannot replay the
// write.
func (s *Server) executeApproved(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	req, err := s.Approvals.Get(r.Context(), chi.URLParam(r, "request_id"), principal.Tenant)
	if err != nil {
		writeOpError(w, err)
		return
	}
	adapter, err := s.Registry.Get(req.Provider)
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.Metrics.IncOperation(adapter.ID(), req.Operation)
	result, err := s.Gate.ExecuteApproved(r.Context(), adapter, req)
	if err != nil {
		writeOpError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}
