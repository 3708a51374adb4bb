package locations

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("locations: not found")

// Directory is the read/update surface the call queue needs from the
// location subsystem.
//
// Implementations must apply the configured Eligibility consistently:
// ListCallable and IsCallable have to agree, or the queue's availability
// view and its backfill would disagree about the same location.

type Directory interface {
	Get(ctx context.Context, id int64) (Location, error)
	GetByPublicID(ctx context.Context, publicID string) (Location, error)

	// ListCallable returns eligible locations, optionally narrowed to a
	// state code. state=="" means all states.
	ListCallable(ctx context.Context, state string) ([]Location, error)

	IsCallable(ctx context.Context, id int64) (bool, error)

	// SetOutreachFlags applies partial flag updates and returns the
	// updated row.
	SetOutreachFlags(ctx context.Context, id int64, flags OutreachFlags) (Location, error)

	// RecordReport bumps the denormalized report fields after a report
	// for the location is persisted.
	RecordReport(ctx context.Context, id int64, at time.Time) error
}
