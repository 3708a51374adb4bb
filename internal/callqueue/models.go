package callqueue

import "time"

// CallRequest is an entry in the call queue: "someone should phone this
// location". Requests are never physically deleted by normal operation;
// completion is the terminal state and bulk deletion is an admin-only
// maintenance action.
//
// Claim invariant: ClaimedBy non-empty implies ClaimedUntil set. A lease
// is void once ClaimedUntil passes; the fields are not eagerly cleared,
// validity is a wall-clock comparison.

type CallRequest struct {
	ID         int64 `json:"id" db:"id"`
	LocationID int64 `json:"location_id" db:"location_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// VestingAt is the time the request becomes eligible to be worked.
	// Skip re-queues vest in the future.
	VestingAt time.Time `json:"vesting_at" db:"vesting_at"`

	// Reason records why the request entered the queue. Informational
	// only; it never affects selection.
	Reason string `json:"reason" db:"reason"`

	PriorityGroup PriorityGroup `json:"priority_group" db:"priority_group"`
	// Priority is the tie-break within a group; higher means more urgent.
	Priority int `json:"priority" db:"priority"`

	ClaimedBy    string     `json:"claimed_by,omitempty" db:"claimed_by"`
	ClaimedUntil *time.Time `json:"claimed_until,omitempty" db:"claimed_until"`

	Completed   bool       `json:"completed" db:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// TipType / TipReportID capture the provenance of automatically
	// generated follow-ups (e.g. a "call back later" skip).
	TipType     TipType `json:"tip_type,omitempty" db:"tip_type"`
	TipReportID string  `json:"tip_report_id,omitempty" db:"tip_report_id"`
}

// Well-known queue reasons. Reason is free-form; these are the ones the
// system itself writes.
const (
	ReasonNewLocation       = "New location"
	ReasonAutomaticBackfill = "Automatic backfill"
	ReasonPreviouslySkipped = "Previously skipped"
)

// PriorityGroup is the coarse priority tier. The wire values are fixed
// small integers; ordering is defined by an explicit rank table rather
// than the raw values.
type PriorityGroup int

const (
	GroupCritical       PriorityGroup = 1
	GroupImportant      PriorityGroup = 2
	GroupNormal         PriorityGroup = 3
	GroupLow            PriorityGroup = 4
	GroupNotPrioritized PriorityGroup = 99
)

var groupRank = map[PriorityGroup]int{
	GroupCritical:       0,
	GroupImportant:      1,
	GroupNormal:         2,
	GroupLow:            3,
	GroupNotPrioritized: 4,
}

// Valid reports whether g is one of the closed set of groups.
func (g PriorityGroup) Valid() bool {
	_, ok := groupRank[g]
	return ok
}

// Before reports whether g outranks other (is served first).
func (g PriorityGroup) Before(other PriorityGroup) bool {
	return groupRank[g] < groupRank[other]
}

func (g PriorityGroup) String() string {
	switch g {
	case GroupCritical:
		return "1-critical"
	case GroupImportant:
		return "2-important"
	case GroupNormal:
		return "3-normal"
	case GroupLow:
		return "4-low"
	case GroupNotPrioritized:
		return "99-not_prioritized"
	default:
		return "unknown"
	}
}

// TipType classifies the report feed that prompted an automatic
// follow-up request.
type TipType string

const (
	TipEva             TipType = "eva_report"
	TipScooby          TipType = "scooby_report"
	TipDataCorrections TipType = "data_corrections_report"
)

// Less is the total queue order: group rank ascending, priority
// descending within a group, then id descending (most recently created
// first) as the final tie-break.
func Less(a, b CallRequest) bool {
	if a.PriorityGroup != b.PriorityGroup {
		return a.PriorityGroup.Before(b.PriorityGroup)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID > b.ID
}

// Claimed reports whether the request holds a live lease at now.
func (r CallRequest) Claimed(now time.Time) bool {
	return r.ClaimedBy != "" && r.ClaimedUntil != nil && r.ClaimedUntil.After(now)
}

// Vested reports whether the request is past its vesting time.
func (r CallRequest) Vested(now time.Time) bool {
	return !r.VestingAt.After(now)
}

// Available reports whether the request itself is claimable at now.
// Location eligibility is layered on top by the repositories.
func (r CallRequest) Available(now time.Time) bool {
	return !r.Completed && r.Vested(now) && !r.Claimed(now)
}

// Filter narrows queue reads to a location state, a substring of the
// location name, or a single location. Zero value means no narrowing.
type Filter struct {
	State        string
	NameContains string

	// LocationID pins reads to one location; used by the caller app's
	// location override, which bypasses normal queue selection.
	LocationID int64
}
