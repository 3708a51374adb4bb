package callqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"outreach-platform/internal/locations"
	"outreach-platform/internal/metrics"
)

var ErrInvalidArgument = errors.New("callqueue: invalid argument")

// ReportLinker writes the completed call request id back onto the report
// that closed it. The report store owns that column; the queue only
// requests the write.
type ReportLinker interface {
	LinkCallRequest(ctx context.Context, reportID string, callRequestID int64) error
}

// Options tune the claim manager.
type Options struct {
	// MinQueueSize is the available-request floor maintained by inline
	// backfill on claim. Zero disables implicit backfill.
	MinQueueSize int
	// LeaseDuration is the claim lock granted to a caller.
	LeaseDuration time.Duration
	// Links is optional; when nil, report back-linking is skipped.
	Links ReportLinker
}

const DefaultLeaseDuration = 60 * time.Minute

// Service is the call-assignment queue: it decides which location a
// caller should phone next, leases that decision so no two callers get
// the same location, keeps the queue topped up from the directory, and
// reconciles submitted reports back against outstanding claims.
type Service struct {
	repo  Repository
	dir   locations.Directory
	links ReportLinker

	minQueueSize int
	lease        time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository, dir locations.Directory, opts Options) *Service {
	lease := opts.LeaseDuration
	if lease <= 0 {
		lease = DefaultLeaseDuration
	}
	return &Service{
		repo:         repo,
		dir:          dir,
		links:        opts.Links,
		minQueueSize: opts.MinQueueSize,
		lease:        lease,
		clock:        time.Now,
	}
}

// Available lists claimable requests in queue order. limit<=0 returns
// all.
func (s *Service) Available(ctx context.Context, f Filter, limit int) ([]CallRequest, error) {
	return s.repo.ListAvailable(ctx, f, limit, s.clock().UTC())
}

// Next hands the caller the highest-priority available request matching
// f, leased until now+lease. An empty claimFor skips the lease (used for
// diagnostics). A nil result with nil error means nothing is available;
// that is an expected outcome, not a failure.
func (s *Service) Next(ctx context.Context, claimFor string, f Filter) (*CallRequest, error) {
	if s.minQueueSize > 0 {
		s.Backfill(ctx, s.minQueueSize, f)
	}

	now := s.clock().UTC()
	if claimFor == "" {
		return s.repo.PeekNext(ctx, f, now)
	}
	r, err := s.repo.ClaimNext(ctx, f, claimFor, now.Add(s.lease), now)
	if err != nil {
		return nil, err
	}
	if r == nil {
		metrics.ClaimsTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
	}
	return r, nil
}

// NextForLocation hands the caller a request for one specific location,
// creating an immediately-vested one when the location has none. Queue
// order is bypassed; eligibility is not. Semantics otherwise match
// Next, including the empty-claimFor peek.
func (s *Service) NextForLocation(ctx context.Context, claimFor string, locationID int64) (*CallRequest, error) {
	if locationID == 0 {
		return nil, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if _, err := s.repo.CreateForLocations(ctx, []int64{locationID}, NewRequest{
		Reason:        ReasonNewLocation,
		VestingAt:     now,
		PriorityGroup: GroupNotPrioritized,
	}, 0); err != nil {
		return nil, err
	}

	f := Filter{LocationID: locationID}
	if claimFor == "" {
		return s.repo.PeekNext(ctx, f, now)
	}
	r, err := s.repo.ClaimNext(ctx, f, claimFor, now.Add(s.lease), now)
	if err != nil {
		return nil, err
	}
	if r == nil {
		metrics.ClaimsTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
	}
	return r, nil
}

// Enqueue creates a request per location with immediate vesting. A
// location that already has an incomplete request (claimed or not) is
// skipped.
func (s *Service) Enqueue(ctx context.Context, locationIDs []int64, reason string, group PriorityGroup, priority int) ([]CallRequest, error) {
	if reason == "" || len(locationIDs) == 0 {
		return nil, ErrInvalidArgument
	}
	if group == 0 {
		group = GroupNotPrioritized
	}
	if !group.Valid() {
		return nil, ErrInvalidArgument
	}
	return s.repo.CreateForLocations(ctx, locationIDs, NewRequest{
		Reason:        reason,
		VestingAt:     s.clock().UTC(),
		PriorityGroup: group,
		Priority:      priority,
	}, 0)
}

// Backfill tops the queue up to minimum available requests from the
// directory: never-reported locations first, then by oldest most-recent
// report. It is best-effort; lock conflicts and races surface only as a
// smaller batch, never as an error to the caller. Returns the number of
// requests created.
func (s *Service) Backfill(ctx context.Context, minimum int, f Filter) int {
	start := s.clock()
	now := start.UTC()

	avail, err := s.repo.CountAvailable(ctx, f, now)
	if err != nil {
		slog.Warn("backfill count failed", "err", err)
		return 0
	}
	metrics.QueueAvailable.Set(float64(avail))
	deficit := minimum - avail
	if deficit <= 0 {
		return 0
	}

	tmpl := NewRequest{
		Reason:        ReasonAutomaticBackfill,
		VestingAt:     now,
		PriorityGroup: GroupNotPrioritized,
	}

	created := 0
	for _, phase := range []CandidatePhase{PhaseNeverReported, PhaseStalest} {
		if deficit <= 0 {
			break
		}
		ids, err := s.repo.BackfillCandidates(ctx, f, phase, deficit)
		if err != nil {
			slog.Warn("backfill candidate search failed", "phase", int(phase), "err", err)
			break
		}
		rows, err := s.repo.CreateForLocations(ctx, ids, tmpl, deficit)
		if err != nil {
			slog.Warn("backfill insert failed", "phase", int(phase), "err", err)
			break
		}
		created += len(rows)
		deficit -= len(rows)
	}

	metrics.BackfillCreatedTotal.Add(float64(created))
	if deficit > 0 {
		metrics.BackfillShortfallTotal.Inc()
	}
	metrics.BackfillDurationSeconds.Observe(s.clock().Sub(start).Seconds())
	return created
}

// ReportRef is what the completion handler needs to know about a
// submitted report. The report row itself is owned by the report store.
type ReportRef struct {
	ReportID   string
	LocationID int64
	ReporterID string

	// CallBackAt, when set, means the call ended in "call back later":
	// the location is re-queued vesting at this time.
	CallBackAt *time.Time
}

// Completion describes what a submitted report did to the queue.
type Completion struct {
	// Completed holds the closed requests, most-recently-claimed first.
	Completed []CallRequest
	// Requeued is the skip follow-up request, if one was created.
	Requeued *CallRequest
}

// CompleteForReport closes every outstanding claim the reporter holds
// for the report's location, links the report to the most recently
// claimed one, and creates the skip re-queue when the report asked for a
// call-back.
//
// A report with no matching claim is fine: reports can arrive outside
// the claim flow (web-banked calls, admin tooling) and simply leave the
// queue untouched.
func (s *Service) CompleteForReport(ctx context.Context, ref ReportRef) (Completion, error) {
	if ref.LocationID == 0 || ref.ReporterID == "" {
		return Completion{}, ErrInvalidArgument
	}
	now := s.clock().UTC()

	completed, err := s.repo.CompleteClaimedBy(ctx, ref.LocationID, ref.ReporterID, now)
	if err != nil {
		return Completion{}, err
	}
	metrics.CompletionsTotal.Add(float64(len(completed)))

	out := Completion{Completed: completed}
	if len(completed) > 0 && s.links != nil && ref.ReportID != "" {
		// The claims are already closed; a failed back-link must not
		// surface as a failed completion.
		if err := s.links.LinkCallRequest(ctx, ref.ReportID, completed[0].ID); err != nil {
			slog.Warn("report back-link failed",
				"report_id", ref.ReportID, "call_request_id", completed[0].ID, "err", err)
		}
	}

	if ref.CallBackAt == nil {
		return out, nil
	}

	// The location keeps its tier but drops to the back of it.
	group := GroupNotPrioritized
	if len(completed) > 0 {
		group = completed[0].PriorityGroup
	}
	created, err := s.repo.CreateForLocations(ctx, []int64{ref.LocationID}, NewRequest{
		Reason:        ReasonPreviouslySkipped,
		VestingAt:     ref.CallBackAt.UTC(),
		PriorityGroup: group,
		Priority:      0,
		TipType:       TipScooby,
		TipReportID:   ref.ReportID,
	}, 0)
	if err != nil {
		return out, err
	}
	if len(created) > 0 {
		out.Requeued = &created[0]
		metrics.SkipRequeuesTotal.Inc()
	}
	return out, nil
}

// SyncLocation is called after a location's outreach flags change: if
// the location is no longer eligible, its incomplete requests are
// removed so stale queue rows cannot surface it. Completed history is
// kept.
func (s *Service) SyncLocation(ctx context.Context, locationID int64) (int64, error) {
	ok, err := s.dir.IsCallable(ctx, locationID)
	if err != nil {
		return 0, err
	}
	if ok {
		return 0, nil
	}
	return s.repo.DeleteIncompleteForLocation(ctx, locationID)
}

// BulkDelete removes requests by id. Maintenance only; the normal
// lifecycle never deletes rows.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.repo.Delete(ctx, ids)
}

// Get returns a single request by id.
func (s *Service) Get(ctx context.Context, id int64) (CallRequest, error) {
	return s.repo.Get(ctx, id)
}
