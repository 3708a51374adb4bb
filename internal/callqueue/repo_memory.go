package callqueue

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"outreach-platform/internal/locations"
)

// MemoryRepo is an in-memory queue store for tests and local
// development. A single mutex serializes all operations, which makes the
// claim guard and candidate reservation trivially atomic; the Postgres
// repository provides the same contract with row locks.

type MemoryRepo struct {
	mu sync.Mutex

	dir    locations.Directory
	nextID int64
	rows   map[int64]*CallRequest
}

func NewMemoryRepo(dir locations.Directory) *MemoryRepo {
	return &MemoryRepo{dir: dir, rows: map[int64]*CallRequest{}}
}

// Seed inserts a request row directly, bypassing idempotency checks.
// Tests use it to construct specific queue states.
func (r *MemoryRepo) Seed(req CallRequest) CallRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	req.ID = r.nextID
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	cp := req
	r.rows[req.ID] = &cp
	return req
}

// Update overwrites a row in place. Tests use it to simulate lease
// expiry and similar states.
func (r *MemoryRepo) Update(req CallRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[req.ID]; ok {
		cp := req
		r.rows[req.ID] = &cp
	}
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (CallRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return CallRequest{}, ErrNotFound
	}
	return *row, nil
}

// matches applies the location-level parts of the availability view:
// eligibility plus the state/name filter.
func (r *MemoryRepo) matches(ctx context.Context, locationID int64, f Filter) bool {
	loc, err := r.dir.Get(ctx, locationID)
	if err != nil {
		return false
	}
	ok, err := r.dir.IsCallable(ctx, locationID)
	if err != nil || !ok {
		return false
	}
	if f.State != "" && loc.State != f.State {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(loc.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	return true
}

// availableLocked returns available rows matching f in queue order.
// Caller holds r.mu.
func (r *MemoryRepo) availableLocked(ctx context.Context, f Filter, now time.Time) []*CallRequest {
	out := make([]*CallRequest, 0)
	for _, row := range r.rows {
		if !row.Available(now) {
			continue
		}
		if f.LocationID != 0 && row.LocationID != f.LocationID {
			continue
		}
		if !r.matches(ctx, row.LocationID, f) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return Less(*out[i], *out[j]) })
	return out
}

func (r *MemoryRepo) CountAvailable(ctx context.Context, f Filter, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.availableLocked(ctx, f, now)), nil
}

func (r *MemoryRepo) ListAvailable(ctx context.Context, f Filter, limit int, now time.Time) ([]CallRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.availableLocked(ctx, f, now)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]CallRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (r *MemoryRepo) ClaimNext(ctx context.Context, f Filter, claimedBy string, until, now time.Time) (*CallRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.availableLocked(ctx, f, now)
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	row.ClaimedBy = claimedBy
	u := until
	row.ClaimedUntil = &u
	cp := *row
	return &cp, nil
}

func (r *MemoryRepo) PeekNext(ctx context.Context, f Filter, now time.Time) (*CallRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.availableLocked(ctx, f, now)
	if len(rows) == 0 {
		return nil, nil
	}
	cp := *rows[0]
	return &cp, nil
}

// queuedLocationsLocked returns the set of locations with an incomplete
// request in any state (claimed or not-yet-vested included).
func (r *MemoryRepo) queuedLocationsLocked() map[int64]bool {
	queued := map[int64]bool{}
	for _, row := range r.rows {
		if !row.Completed {
			queued[row.LocationID] = true
		}
	}
	return queued
}

func (r *MemoryRepo) BackfillCandidates(ctx context.Context, f Filter, phase CandidatePhase, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	callable, err := r.dir.ListCallable(ctx, f.State)
	if err != nil {
		return nil, err
	}
	queued := r.queuedLocationsLocked()

	pool := make([]locations.Location, 0, len(callable))
	for _, l := range callable {
		if queued[l.ID] {
			continue
		}
		if f.NameContains != "" && !strings.Contains(strings.ToLower(l.Name), strings.ToLower(f.NameContains)) {
			continue
		}
		switch phase {
		case PhaseNeverReported:
			if l.LatestReportAt != nil {
				continue
			}
		case PhaseStalest:
			// all remaining candidates qualify; ordering below
		}
		pool = append(pool, l)
	}

	if phase == PhaseStalest {
		sort.Slice(pool, func(i, j int) bool {
			a, b := pool[i], pool[j]
			switch {
			case a.LatestReportAt == nil && b.LatestReportAt == nil:
				return a.ID < b.ID
			case a.LatestReportAt == nil:
				return true
			case b.LatestReportAt == nil:
				return false
			case !a.LatestReportAt.Equal(*b.LatestReportAt):
				return a.LatestReportAt.Before(*b.LatestReportAt)
			default:
				return a.ID < b.ID
			}
		})
	}

	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	ids := make([]int64, 0, len(pool))
	for _, l := range pool {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

func (r *MemoryRepo) CreateForLocations(ctx context.Context, locationIDs []int64, tmpl NewRequest, limit int) ([]CallRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queued := r.queuedLocationsLocked()
	var created []CallRequest
	for _, locID := range locationIDs {
		if limit > 0 && len(created) >= limit {
			break
		}
		if queued[locID] {
			continue
		}
		if ok, err := r.dir.IsCallable(ctx, locID); err != nil || !ok {
			continue
		}
		r.nextID++
		row := &CallRequest{
			ID:            r.nextID,
			LocationID:    locID,
			CreatedAt:     time.Now().UTC(),
			VestingAt:     tmpl.VestingAt,
			Reason:        tmpl.Reason,
			PriorityGroup: tmpl.PriorityGroup,
			Priority:      tmpl.Priority,
			TipType:       tmpl.TipType,
			TipReportID:   tmpl.TipReportID,
		}
		r.rows[row.ID] = row
		queued[locID] = true
		created = append(created, *row)
	}
	return created, nil
}

func (r *MemoryRepo) CompleteClaimedBy(ctx context.Context, locationID int64, reporterID string, now time.Time) ([]CallRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []*CallRequest
	for _, row := range r.rows {
		if row.Completed || row.LocationID != locationID || row.ClaimedBy != reporterID {
			continue
		}
		row.Completed = true
		t := now
		row.CompletedAt = &t
		affected = append(affected, row)
	}
	// Most-recently-claimed first; claim recency tracks id order here.
	sort.Slice(affected, func(i, j int) bool { return affected[i].ID > affected[j].ID })
	out := make([]CallRequest, 0, len(affected))
	for _, row := range affected {
		out = append(out, *row)
	}
	return out, nil
}

func (r *MemoryRepo) DeleteIncompleteForLocation(ctx context.Context, locationID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.LocationID == locationID && !row.Completed {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.rows[id]; ok {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}
