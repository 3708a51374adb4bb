package reports

import (
	"context"
	"testing"
	"time"
)

func seedReport(t *testing.T, repo *MemoryRepo, id, reporter string, at time.Time) {
	t.Helper()
	if err := repo.Insert(context.Background(), Report{ID: id, LocationID: 1, ReporterID: reporter, CreatedAt: at}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestCallerStats_TotalAndToday(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewStatsService(repo, nil)
	now := time.Date(2021, 3, 1, 15, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	seedReport(t, repo, "r1", "caller-1", now.Add(-48*time.Hour))
	seedReport(t, repo, "r2", "caller-1", now.Add(-2*time.Hour))
	seedReport(t, repo, "r3", "caller-1", now.Add(-time.Minute))
	seedReport(t, repo, "r4", "caller-2", now)

	got, err := svc.CallerStats(context.Background(), "caller-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.Total != 3 {
		t.Fatalf("expected total 3, got %d", got.Total)
	}
	if got.Today != 2 {
		t.Fatalf("expected 2 today, got %d", got.Today)
	}
}

func TestCallerStats_MidnightBoundary(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewStatsService(repo, nil)
	now := time.Date(2021, 3, 1, 0, 30, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	seedReport(t, repo, "r1", "caller-1", time.Date(2021, 2, 28, 23, 59, 0, 0, time.UTC))
	seedReport(t, repo, "r2", "caller-1", time.Date(2021, 3, 1, 0, 1, 0, 0, time.UTC))

	got, err := svc.CallerStats(context.Background(), "caller-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.Today != 1 {
		t.Fatalf("yesterday's report counted as today: %+v", got)
	}
}

func TestCallerStats_RequiresReporter(t *testing.T) {
	svc := NewStatsService(NewMemoryRepo(), nil)
	if _, err := svc.CallerStats(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRequestedSkip(t *testing.T) {
	r := Report{AvailabilityTags: []string{"yes_walkins_accepted"}}
	if r.RequestedSkip() {
		t.Fatalf("unrelated tags must not read as a skip")
	}
	r.AvailabilityTags = append(r.AvailabilityTags, TagSkipCallBackLater)
	if !r.RequestedSkip() {
		t.Fatalf("skip tag not detected")
	}
}

func TestMemoryRepo_LinkCallRequest(t *testing.T) {
	repo := NewMemoryRepo()
	seedReport(t, repo, "r1", "caller-1", time.Now())

	if err := repo.LinkCallRequest(context.Background(), "r1", 42); err != nil {
		t.Fatalf("link: %v", err)
	}
	got, _ := repo.Get(context.Background(), "r1")
	if got.CallRequestID == nil || *got.CallRequestID != 42 {
		t.Fatalf("back-link not recorded: %+v", got)
	}

	if err := repo.LinkCallRequest(context.Background(), "missing", 1); err == nil {
		t.Fatalf("expected not-found error")
	}
}
