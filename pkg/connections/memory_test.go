package connections

import (
	"context"
	"testing"
	"time"

	"omnigate/pkg/models"
)

func TestMemoryStoreSaveUpserts(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	first, err := s.Save(context.Background(), models.Connection{
		TenantID: "t1",
		Provider: "hubspot",
		Status:   models.ConnectionPending,
		Scopes:   []string{"crm.read"},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	second, err := s.Save(context.Background(), models.Connection{
		TenantID:             "t1",
		Provider:             "hubspot",
		Status:               models.ConnectionConnected,
		ExternalConnectionID: "ext-1",
	})
	if err != nil {
		t.Fatalf("save upsert: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("upsert must preserve created_at")
	}
	if second.Status != models.ConnectionConnected {
		t.Fatalf("unexpected status: %s", second.Status)
	}

	conn, found, err := s.Get(context.Background(), "t1", "hubspot")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if conn.ExternalConnectionID != "ext-1" {
		t.Fatalf("unexpected external id: %s", conn.ExternalConnectionID)
	}
}

func TestMemoryStoreDeleteRemovesConnection(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if _, err := s.Save(context.Background(), models.Connection{TenantID: "t1", Provider: "guesty", Status: models.ConnectionConnected}); err != nil {
		t.Fatalf("save: %v", err)
	}

	deleted, err := s.Delete(context.Background(), "t1", "guesty")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if _, found, _ := s.Get(context.Background(), "t1", "guesty"); found {
		t.Fatal("connection should be gone after delete")
	}

	deleted, err = s.Delete(context.Background(), "t1", "guesty")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("second delete must report absent")
	}
}

func TestMemoryStoreUpdateStatus(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if _, found, err := s.UpdateStatus(context.Background(), "t1", "trustpilot", models.ConnectionConnected, "ext-9"); err != nil || found {
		t.Fatalf("update on absent connection: found=%v err=%v", found, err)
	}

	if _, err := s.Save(context.Background(), models.Connection{TenantID: "t1", Provider: "trustpilot", Status: models.ConnectionPending}); err != nil {
		t.Fatalf("save: %v", err)
	}
	conn, found, err := s.UpdateStatus(context.Background(), "t1", "trustpilot", models.ConnectionConnected, "ext-9")
	if err != nil || !found {
		t.Fatalf("update: found=%v err=%v", found, err)
	}
	if conn.Status != models.ConnectionConnected || conn.ExternalConnectionID != "ext-9" {
		t.Fatalf("unexpected connection: %+v", conn)
	}

	// Empty external id keeps the recorded one.
	conn, _, err = s.UpdateStatus(context.Background(), "t1", "trustpilot", models.ConnectionError, "")
	if err != nil {
		t.Fatalf("update to error: %v", err)
	}
	if conn.ExternalConnectionID != "ext-9" {
		t.Fatal("empty external id must not clear the stored one")
	}
}

func TestMemoryStoreListIsTenantScopedAndSorted(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	for _, c := range []models.Connection{
		{TenantID: "t1", Provider: "trustpilot", Status: models.ConnectionConnected},
		{TenantID: "t1", Provider: "googlecal", Status: models.ConnectionPending},
		{TenantID: "t2", Provider: "hubspot", Status: models.ConnectionConnected},
	} {
		if _, err := s.Save(context.Background(), c); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	out, err := s.List(context.Background(), "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].Provider != "googlecal" || out[1].Provider != "trustpilot" {
		t.Fatalf("unexpected list: %+v", out)
	}
}
