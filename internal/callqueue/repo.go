package callqueue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("callqueue: request not found")
)

// NewRequest is the template for rows created by Enqueue, Backfill and
// skip re-queues.
type NewRequest struct {
	Reason        string
	VestingAt     time.Time
	PriorityGroup PriorityGroup
	Priority      int
	TipType       TipType
	TipReportID   string
}

// CandidatePhase selects which backfill candidate ordering to use.
type CandidatePhase int

const (
	// PhaseNeverReported picks eligible locations with no reports at
	// all, in stable id order.
	PhaseNeverReported CandidatePhase = iota
	// PhaseStalest picks eligible locations by oldest most-recent-report
	// time.
	PhaseStalest
)

// Repository is the durable queue store.
//
// Contract notes:
//   - All reads apply the full availability predicate (request state AND
//     location eligibility) so stale rows for newly ineligible locations
//     never surface.
//   - ClaimNext must be atomic: no two concurrent claimants may receive
//     the same row. Implementations use a conditional update guarded on
//     the current claim state, never read-then-write.
//   - CreateForLocations is idempotent per location (a location with any
//     incomplete request is skipped) and reserves candidate rows with a
//     non-blocking lock attempt; lock conflicts mean "skip", not error.
type Repository interface {
	Get(ctx context.Context, id int64) (CallRequest, error)

	CountAvailable(ctx context.Context, f Filter, now time.Time) (int, error)
	ListAvailable(ctx context.Context, f Filter, limit int, now time.Time) ([]CallRequest, error)

	// ClaimNext selects the highest-priority available request matching
	// f and atomically leases it to claimedBy until the given time.
	// Returns nil when nothing is available.
	ClaimNext(ctx context.Context, f Filter, claimedBy string, until, now time.Time) (*CallRequest, error)

	// PeekNext is ClaimNext without the lease; diagnostics only.
	PeekNext(ctx context.Context, f Filter, now time.Time) (*CallRequest, error)

	// BackfillCandidates returns ids of eligible locations with no
	// incomplete request, ordered per phase, up to limit.
	BackfillCandidates(ctx context.Context, f Filter, phase CandidatePhase, limit int) ([]int64, error)

	// CreateForLocations creates one request per location from tmpl,
	// skipping ineligible locations and locations that already have an
	// incomplete request. limit<=0 means no cap. Returns the created
	// rows.
	CreateForLocations(ctx context.Context, locationIDs []int64, tmpl NewRequest, limit int) ([]CallRequest, error)

	// CompleteClaimedBy marks every incomplete request for the location
	// currently claimed by reporterID as completed at now, returning the
	// affected rows ordered most-recently-claimed first.
	CompleteClaimedBy(ctx context.Context, locationID int64, reporterID string, now time.Time) ([]CallRequest, error)

	// DeleteIncompleteForLocation removes incomplete requests for a
	// location that is no longer eligible. Completed rows are kept.
	DeleteIncompleteForLocation(ctx context.Context, locationID int64) (int64, error)

	// Delete removes rows by id (admin maintenance only).
	Delete(ctx context.Context, ids []int64) (int64, error)
}
