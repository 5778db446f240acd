package quote

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence interface for quotes and bills.
type Store interface {
	SaveQuote(ctx context.Context, q *Quote) error
	FetchQuote(ctx context.Context, id uuid.UUID) (*Quote, error)
	SaveBill(ctx context.Context, b *Bill) error
	FetchBill(ctx context.Context, id uuid.UUID) (*Bill, error)
	FindBillsByJob(ctx context.Context, jobID uuid.UUID) ([]*Bill, error)
}

// MemoryStore is an in-memory Store, used by tests and single-process
// deployments without a configured database.
type MemoryStore struct {
	mu     sync.RWMutex
	quotes map[uuid.UUID]*Quote
	bills  map[uuid.UUID]*Bill
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes: map[uuid.UUID]*Quote{},
		bills:  map[uuid.UUID]*Bill{},
	}
}

// SaveQuote inserts or replaces the record at q.ID.
func (s *MemoryStore) SaveQuote(_ context.Context, q *Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	cp.Steps = append([]uuid.UUID(nil), q.Steps...)
	s.quotes[q.ID] = &cp
	return nil
}

// FetchQuote returns the quote at id, or ErrNotFound.
func (s *MemoryStore) FetchQuote(_ context.Context, id uuid.UUID) (*Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

// SaveBill inserts or replaces the record at b.ID.
func (s *MemoryStore) SaveBill(_ context.Context, b *Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bills[b.ID] = &cp
	return nil
}

// FetchBill returns the bill at id, or ErrNotFound.
func (s *MemoryStore) FetchBill(_ context.Context, id uuid.UUID) (*Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// FindBillsByJob returns every bill recorded against jobID.
func (s *MemoryStore) FindBillsByJob(_ context.Context, jobID uuid.UUID) ([]*Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Bill
	for _, b := range s.bills {
		if b.Job == jobID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}
