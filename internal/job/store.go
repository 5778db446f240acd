package job

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Filter selects jobs by the fields spec.md §4.6 names as filterable.
type Filter struct {
	Status  Status
	Process string
	Service string
	UserID  string
	Tag     string
	Access  Visibility
}

// SortKey is a field Store.FindJobs can order by.
type SortKey string

const (
	SortCreated  SortKey = "created"
	SortFinished SortKey = "finished"
	SortStatus   SortKey = "status"
	SortProcess  SortKey = "process"
	SortService  SortKey = "service"
	SortUserID   SortKey = "user"
)

// Store is the persistence interface for jobs (spec.md §4.6). Any document
// store suffices; the engine guarantees a single writer per job id (§5),
// so implementations need not serialize writes against the same id
// themselves.
type Store interface {
	SaveJob(ctx context.Context, j *Job) error
	UpdateJob(ctx context.Context, j *Job) error
	FetchByID(ctx context.Context, id uuid.UUID) (*Job, error)
	FindJobs(ctx context.Context, filter Filter, sortBy SortKey, page, limit int) ([]*Job, int, error)
	ClearJobs(ctx context.Context) error
}

// MemoryStore is an in-memory Store, used by tests and as the store for
// single-process ADES deployments without a configured database.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[uuid.UUID]*Job{}}
}

func clone(j *Job) *Job {
	cp := *j
	cp.Logs = append([]string(nil), j.Logs...)
	cp.Exceptions = append([]Exception(nil), j.Exceptions...)
	cp.Inputs = append([]IOValue(nil), j.Inputs...)
	cp.Results = append([]IOValue(nil), j.Results...)
	cp.Tags = append([]string(nil), j.Tags...)
	if j.Finished != nil {
		f := *j.Finished
		cp.Finished = &f
	}
	return &cp
}

// SaveJob inserts or replaces the record at j.ID.
func (s *MemoryStore) SaveJob(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = clone(j)
	return nil
}

// UpdateJob is an alias for SaveJob: both are full-document upserts per
// spec.md §4.6 ("updates are full-document writes on the state fields").
func (s *MemoryStore) UpdateJob(ctx context.Context, j *Job) error {
	return s.SaveJob(ctx, j)
}

// FetchByID returns the job at id, or ErrNotFound.
func (s *MemoryStore) FetchByID(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(j), nil
}

// FindJobs filters, sorts, and paginates the job set.
func (s *MemoryStore) FindJobs(_ context.Context, filter Filter, sortBy SortKey, page, limit int) ([]*Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Process != "" && j.Process != filter.Process {
			continue
		}
		if filter.Service != "" && j.Service != filter.Service {
			continue
		}
		if filter.UserID != "" && j.UserID != filter.UserID {
			continue
		}
		if filter.Access != "" && j.Access != filter.Access {
			continue
		}
		if filter.Tag != "" {
			found := false
			for _, t := range j.Tags {
				if t == filter.Tag {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, clone(j))
	}

	sort.Slice(matched, func(i, k int) bool {
		switch sortBy {
		case SortFinished:
			return lessFinished(matched[i], matched[k])
		case SortStatus:
			return matched[i].Status < matched[k].Status
		case SortProcess:
			return matched[i].Process < matched[k].Process
		case SortService:
			return matched[i].Service < matched[k].Service
		case SortUserID:
			return matched[i].UserID < matched[k].UserID
		default:
			return matched[i].Created.Before(matched[k].Created)
		}
	})

	total := len(matched)
	if limit <= 0 {
		limit = total
	}
	start := page * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func lessFinished(a, b *Job) bool {
	if a.Finished == nil {
		return false
	}
	if b.Finished == nil {
		return true
	}
	return a.Finished.Before(*b.Finished)
}

// ClearJobs removes all records. Test only.
func (s *MemoryStore) ClearJobs(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = map[uuid.UUID]*Job{}
	return nil
}
