package reports

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("reports: not found")

// Repository is the persistence contract for reports.
//
// Reports are append-mostly: the only mutation after insert is the
// call-request back-link written during queue reconciliation.

type Repository interface {
	Insert(ctx context.Context, r Report) error
	Get(ctx context.Context, id string) (Report, error)

	// LinkCallRequest records which queue entry the report fulfilled.
	LinkCallRequest(ctx context.Context, reportID string, callRequestID int64) error

	CountByReporter(ctx context.Context, reporterID string) (int, error)
	CountByReporterSince(ctx context.Context, reporterID string, since time.Time) (int, error)
}
