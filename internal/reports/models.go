package reports

import "time"

// Report is a caller's record of one phone call to a location. The
// report store owns these rows; the call queue only reads the fields it
// needs for reconciliation and writes back CallRequestID.

type Report struct {
	ID         string `json:"id" db:"id"`
	LocationID int64  `json:"location_id" db:"location_id"`
	ReporterID string `json:"reporter_id" db:"reporter_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// CallRequestID back-references the queue entry this report
	// fulfilled, when the report came through the normal claim flow.
	CallRequestID *int64 `json:"call_request_id,omitempty" db:"call_request_id"`

	AvailabilityTags []string `json:"availability_tags,omitempty" db:"availability_tags"`
	PublicNotes      string   `json:"public_notes,omitempty" db:"public_notes"`
	InternalNotes    string   `json:"internal_notes,omitempty" db:"internal_notes"`

	// DoNotCallUntil is set when the location asked to be called back
	// later; it becomes the vesting time of the skip re-queue.
	DoNotCallUntil *time.Time `json:"do_not_call_until,omitempty" db:"do_not_call_until"`
}

// TagSkipCallBackLater marks a report as a "call back later" skip. A
// DoNotCallUntil time is only honored when this tag is present.
const TagSkipCallBackLater = "skip_call_back_later"

// RequestedSkip reports whether the report asked for a later call-back.
func (r Report) RequestedSkip() bool {
	for _, t := range r.AvailabilityTags {
		if t == TagSkipCallBackLater {
			return true
		}
	}
	return false
}
