package process

import (
	"context"
	"sync"

	"github.com/crim-ca/weaver-ems/internal/iotype"
)

// Filter selects processes by the fields spec.md §4.6/§6 names as
// filterable/listable.
type Filter struct {
	Type       Type
	Visibility Visibility
	Keyword    string
}

// Store is the persistence interface for deployed processes.
type Store interface {
	SaveProcess(ctx context.Context, p *Process) error
	FetchByID(ctx context.Context, id string) (*Process, error)
	FindProcesses(ctx context.Context, filter Filter) ([]*Process, error)
	DeleteProcess(ctx context.Context, id string) error
	ClearProcesses(ctx context.Context) error
}

// MemoryStore is an in-memory Store, used by tests and single-process
// ADES deployments without a configured database.
type MemoryStore struct {
	mu        sync.RWMutex
	processes map[string]*Process
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{processes: map[string]*Process{}}
}

func cloneProcess(p *Process) *Process {
	cp := *p
	cp.Keywords = append([]string(nil), p.Keywords...)
	cp.Metadata = append([]string(nil), p.Metadata...)
	cp.Inputs = append([]iotype.Io(nil), p.Inputs...)
	cp.Outputs = append([]iotype.Io(nil), p.Outputs...)
	cp.JobControlOptions = append([]string(nil), p.JobControlOptions...)
	cp.OutputTransmission = append([]string(nil), p.OutputTransmission...)
	return &cp
}

// SaveProcess inserts or replaces the record at p.ID: a plain upsert.
// Neither the store nor the deploy handler in internal/api rejects an
// existing id, so deploying over one replaces the stored process.
func (s *MemoryStore) SaveProcess(_ context.Context, p *Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[p.ID] = cloneProcess(p)
	return nil
}

// FetchByID returns the process at id, or ErrNotFound.
func (s *MemoryStore) FetchByID(_ context.Context, id string) (*Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProcess(p), nil
}

// FindProcesses filters the process set by type/visibility/keyword.
func (s *MemoryStore) FindProcesses(_ context.Context, filter Filter) ([]*Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		if filter.Visibility != "" && p.Visibility != filter.Visibility {
			continue
		}
		if filter.Keyword != "" {
			found := false
			for _, kw := range p.Keywords {
				if kw == filter.Keyword {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, cloneProcess(p))
	}
	return matched, nil
}

// DeleteProcess removes the record at id. Deleting a missing id is a
// no-op, matching the teacher store's idempotent-delete convention.
func (s *MemoryStore) DeleteProcess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processes, id)
	return nil
}

// ClearProcesses removes all records. Test only.
func (s *MemoryStore) ClearProcesses(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes = map[string]*Process{}
	return nil
}
