package locations

import "time"

// Location is a row in the location directory: a place with a phone
// number that volunteers may be asked to call.
//
// The directory subsystem owns these rows. The call queue consumes them
// through the Directory contract and never mutates anything except the
// denormalized report fields (via RecordReport).

type Location struct {
	ID       int64  `json:"id" db:"id"`
	PublicID string `json:"public_id" db:"public_id"`

	Name        string `json:"name" db:"name"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	FullAddress string `json:"full_address,omitempty" db:"full_address"`
	State       string `json:"state" db:"state"`

	SoftDeleted bool `json:"soft_deleted" db:"soft_deleted"`
	DoNotCall   bool `json:"do_not_call" db:"do_not_call"`

	// PreferredContactMethod, when set, may indicate the location should
	// be reached through non-phone channels (e.g. "research_online").
	PreferredContactMethod string `json:"preferred_contact_method,omitempty" db:"preferred_contact_method"`

	// Denormalized from the report history so queue backfill can order by
	// staleness without joining the full report table.
	LatestReportAt *time.Time `json:"latest_report_at,omitempty" db:"latest_report_at"`
	ReportCount    int        `json:"report_count" db:"report_count"`
}

// OutreachFlags are the mutable bits that affect whether a location may
// be phoned. Nil fields are left unchanged.
type OutreachFlags struct {
	SoftDeleted            *bool   `json:"soft_deleted,omitempty"`
	DoNotCall              *bool   `json:"do_not_call,omitempty"`
	PreferredContactMethod *string `json:"preferred_contact_method,omitempty"`
}

const ContactMethodResearchOnline = "research_online"
