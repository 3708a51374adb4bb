package locations

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDirectory_ListCallableFiltersAndSorts(t *testing.T) {
	d := NewMemoryDirectory(DefaultEligibility())
	ctx := context.Background()

	a := d.Add(Location{Name: "A", PhoneNumber: "1", State: "CA"})
	d.Add(Location{Name: "B", PhoneNumber: "2", State: "OR"})
	d.Add(Location{Name: "C", PhoneNumber: "", State: "CA"})

	got, err := d.ListCallable(ctx, "CA")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("expected only the callable CA location, got %+v", got)
	}

	all, _ := d.ListCallable(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 callable locations, got %d", len(all))
	}
	if all[0].ID > all[1].ID {
		t.Fatalf("list should be id-ordered")
	}
}

func TestMemoryDirectory_RecordReportMonotonic(t *testing.T) {
	d := NewMemoryDirectory(DefaultEligibility())
	ctx := context.Background()
	loc := d.Add(Location{Name: "A", PhoneNumber: "1"})

	t1 := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)

	if err := d.RecordReport(ctx, loc.ID, t1); err != nil {
		t.Fatalf("record: %v", err)
	}
	// An out-of-order report bumps the count but never rewinds the
	// latest-report time.
	if err := d.RecordReport(ctx, loc.ID, t0); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, _ := d.Get(ctx, loc.ID)
	if got.ReportCount != 2 {
		t.Fatalf("expected count 2, got %d", got.ReportCount)
	}
	if got.LatestReportAt == nil || !got.LatestReportAt.Equal(t1) {
		t.Fatalf("latest report rewound: %v", got.LatestReportAt)
	}
}

func TestMemoryDirectory_SetOutreachFlagsPartial(t *testing.T) {
	d := NewMemoryDirectory(DefaultEligibility())
	ctx := context.Background()
	loc := d.Add(Location{Name: "A", PhoneNumber: "1", PreferredContactMethod: "phone"})

	dnc := true
	got, err := d.SetOutreachFlags(ctx, loc.ID, OutreachFlags{DoNotCall: &dnc})
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if !got.DoNotCall {
		t.Fatalf("do_not_call not applied")
	}
	if got.PreferredContactMethod != "phone" {
		t.Fatalf("nil fields must be left unchanged")
	}

	if ok, _ := d.IsCallable(ctx, loc.ID); ok {
		t.Fatalf("flagged location should no longer be callable")
	}
}
