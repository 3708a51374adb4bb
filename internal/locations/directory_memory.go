package locations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-memory Directory for tests and local
// development.

type MemoryDirectory struct {
	mu          sync.Mutex
	eligibility Eligibility
	nextID      int64
	rows        map[int64]Location
}

func NewMemoryDirectory(e Eligibility) *MemoryDirectory {
	return &MemoryDirectory{eligibility: e, rows: map[int64]Location{}}
}

// Add inserts a location and returns its assigned id. A missing
// PublicID is filled in.
func (d *MemoryDirectory) Add(l Location) Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	l.ID = d.nextID
	if l.PublicID == "" {
		l.PublicID = uuid.NewString()
	}
	d.rows[l.ID] = l
	return l
}

func (d *MemoryDirectory) Get(ctx context.Context, id int64) (Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.rows[id]
	if !ok {
		return Location{}, ErrNotFound
	}
	return l, nil
}

func (d *MemoryDirectory) GetByPublicID(ctx context.Context, publicID string) (Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.rows {
		if l.PublicID == publicID {
			return l, nil
		}
	}
	return Location{}, ErrNotFound
}

func (d *MemoryDirectory) ListCallable(ctx context.Context, state string) ([]Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Location, 0)
	for _, l := range d.rows {
		if !d.eligibility.Callable(l) {
			continue
		}
		if state != "" && l.State != state {
			continue
		}
		out = append(out, l)
	}
	// Stable order so candidate selection is deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MemoryDirectory) IsCallable(ctx context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.rows[id]
	if !ok {
		return false, ErrNotFound
	}
	return d.eligibility.Callable(l), nil
}

func (d *MemoryDirectory) SetOutreachFlags(ctx context.Context, id int64, flags OutreachFlags) (Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.rows[id]
	if !ok {
		return Location{}, ErrNotFound
	}
	if flags.SoftDeleted != nil {
		l.SoftDeleted = *flags.SoftDeleted
	}
	if flags.DoNotCall != nil {
		l.DoNotCall = *flags.DoNotCall
	}
	if flags.PreferredContactMethod != nil {
		l.PreferredContactMethod = *flags.PreferredContactMethod
	}
	d.rows[id] = l
	return l, nil
}

func (d *MemoryDirectory) RecordReport(ctx context.Context, id int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.rows[id]
	if !ok {
		return ErrNotFound
	}
	if l.LatestReportAt == nil || at.After(*l.LatestReportAt) {
		t := at
		l.LatestReportAt = &t
	}
	l.ReportCount++
	d.rows[id] = l
	return nil
}
