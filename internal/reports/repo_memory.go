package reports

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory report store for tests and early
// development.

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Report
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Report{}} }

func (r *MemoryRepo) Insert(ctx context.Context, rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rep.ID] = rep
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.rows[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	return rep, nil
}

func (r *MemoryRepo) LinkCallRequest(ctx context.Context, reportID string, callRequestID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.rows[reportID]
	if !ok {
		return ErrNotFound
	}
	id := callRequestID
	rep.CallRequestID = &id
	r.rows[reportID] = rep
	return nil
}

func (r *MemoryRepo) CountByReporter(ctx context.Context, reporterID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.rows {
		if rep.ReporterID == reporterID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) CountByReporterSince(ctx context.Context, reporterID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.rows {
		if rep.ReporterID == reporterID && !rep.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
