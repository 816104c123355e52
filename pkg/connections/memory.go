package connections

import (
	"context"
	"sort"
	"sync"
	"time"

	"omnigate/pkg/models"
)

// MemoryStore keeps connections in a map keyed by (tenant, provider). All
// mutations run under one mutex, so concurrent saves on the same key are
// serialized rather than racing read-modify-write.
type MemoryStore struct {
	mu    sync.Mutex
	items map[connKey]models.Connection
	now   func() time.Time
}

type connKey struct {
	tenant   string
	provider string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: map[connKey]models.Connection{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, provider string) (models.Connection, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.items[connKey{tenantID, provider}]
	return conn, ok, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string) ([]models.Connection, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Connection, 0)
	for k, conn := range s.items {
		if k.tenant == tenantID {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, conn models.Connection) (models.Connection, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connKey{conn.TenantID, conn.Provider}
	now := s.now()
	if prev, ok := s.items[key]; ok {
		conn.CreatedAt = prev.CreatedAt
	} else {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	s.items[key] = conn
	return conn, nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, provider string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connKey{tenantID, provider}
	if _, ok := s.items[key]; !ok {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, tenantID, provider, status, externalID string) (models.Connection, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connKey{tenantID, provider}
	conn, ok := s.items[key]
	if !ok {
		return models.Connection{}, false, nil
	}
	conn.Status = status
	if externalID != "" {
		conn.ExternalConnectionID = externalID
	}
	conn.UpdatedAt = s.now()
	s.items[key] = conn
	return conn, true, nil
}
