package connbus

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"omnigate/pkg/connections"
	"omnigate/pkg/models"
	"omnigate/pkg/stream"
)

// busEvent is the broker's connection lifecycle payload.
type busEvent struct {
	Type                 string `json:"type"`
	TenantID             string `json:"tenant_id"`
	Provider             string `json:"provider"`
	ExternalConnectionID string `json:"external_connection_id"`
	Detail               string `json:"detail,omitempty"`
}

// Runner applies broker connection events to the connection store. It is an
// alternative delivery path to the HTTP callback endpoint.
type Runner struct {
	Bus    Consumer
	Store  connections.Store
	Events *stream.Hub
}

// Run consumes until ctx is cancelled. Read and decode failures are logged
// and skipped so one bad record cannot stall the stream.
func (r *Runner) Run(ctx context.Context) {
	for {
		msg, err := r.Bus.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("connection bus read error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		var evt busEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Printf("connection bus decode error: %v", err)
			continue
		}
		if err := r.apply(ctx, evt); err != nil {
			log.Printf("connection bus apply error: %v", err)
		}
	}
}

func (r *Runner) apply(ctx context.Context, evt busEvent) error {
	status, ok := statusFor(evt.Type)
	if !ok {
		log.Printf("connection bus: ignoring event type %q", evt.Type)
		return nil
	}
	if strings.TrimSpace(evt.TenantID) == "" || strings.TrimSpace(evt.Provider) == "" {
		log.Printf("connection bus: dropping %s event without tenant or provider", evt.Type)
		return nil
	}
	conn, found, err := r.Store.UpdateStatus(ctx, evt.TenantID, evt.Provider, status, evt.ExternalConnectionID)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("connection bus: no connection for tenant=%s provider=%s", evt.TenantID, evt.Provider)
		return nil
	}
	if r.Events != nil {
		r.Events.Publish(stream.NewEvent(stream.EventConnectionUpdated, map[string]any{
			"tenant_id": conn.TenantID,
			"provider":  conn.Provider,
			"status":    conn.Status,
		}))
	}
	return nil
}

func statusFor(eventType string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "connection.authorized":
		return models.ConnectionConnected, true
	case "connection.revoked":
		return models.ConnectionDisconnected, true
	case "connection.error":
		return models.ConnectionError, true
	default:
		return "", false
	}
}
