// Package connections tracks per-tenant, per-provider authorization state.
// Every adapter checks this store before any outbound call; the store itself
// does not enforce the connected-only rule.
package connections

import (
	"context"
	"errors"

	"omnigate/pkg/models"
)

// ErrNotConnected is reported by callers when a connection is absent or not
// in the connected state. No network activity may happen after it.
var ErrNotConnected = errors.New("provider not connected for tenant")

// Store is the connection repository. Save upserts by (tenant, provider) and
// implementations apply each mutation atomically per key.
type Store interface {
	Get(ctx context.Context, tenantID, provider string) (models.Connection, bool, error)
	List(ctx context.Context, tenantID string) ([]models.Connection, error)
	Save(ctx context.Context, conn models.Connection) (models.Connection, error)
	Delete(ctx context.Context, tenantID, provider string) (bool, error)
	// UpdateStatus transitions the stored status and, when externalID is
	// non-empty, records the broker's connection id. Returns false when no
	// record exists.
	UpdateStatus(ctx context.Context, tenantID, provider, status, externalID string) (models.Connection, bool, error)
}
