package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. Expired entries are evicted lazily on access.
// Only suitable when a single instance issues documents.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[string]Entry
	opts    Options
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]Entry),
		opts:    opts.withDefaults(),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Reserve(_ context.Context, tenantID, key, payloadHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookupLocked(tenantID, key); ok {
		return false, nil
	}
	s.putLocked(tenantID, key, Entry{PayloadHash: payloadHash, ExpiresAt: s.opts.Now().Add(s.opts.TTL)})
	return true, nil
}

func (s *MemoryStore) FindEntry(_ context.Context, tenantID, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookupLocked(tenantID, key)
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) AwaitCompletion(ctx context.Context, tenantID, key string, timeout time.Duration) (*Entry, error) {
	return awaitCompletion(ctx, func(ctx context.Context) (*Entry, error) {
		return s.FindEntry(ctx, tenantID, key)
	}, timeout, s.opts.PollInterval)
}

func (s *MemoryStore) Complete(_ context.Context, tenantID, key, payloadHash, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(tenantID, key, Entry{
		DocumentID:  documentID,
		PayloadHash: payloadHash,
		ExpiresAt:   s.opts.Now().Add(s.opts.TTL),
	})
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, tenantID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(tenantID, key)
	return nil
}

func (s *MemoryStore) lookupLocked(tenantID, key string) (Entry, bool) {
	e, ok := s.entries[tenantID][key]
	if !ok {
		return Entry{}, false
	}
	if !s.opts.Now().Before(e.ExpiresAt) {
		s.deleteLocked(tenantID, key)
		return Entry{}, false
	}
	return e, true
}

func (s *MemoryStore) putLocked(tenantID, key string, e Entry) {
	tenant, ok := s.entries[tenantID]
	if !ok {
		tenant = make(map[string]Entry)
		s.entries[tenantID] = tenant
	}
	tenant[key] = e
}

func (s *MemoryStore) deleteLocked(tenantID, key string) {
	tenant, ok := s.entries[tenantID]
	if !ok {
		return
	}
	delete(tenant, key)
	if len(tenant) == 0 {
		delete(s.entries, tenantID)
	}
}
