package locations

import (
	"fmt"
	"strings"
)

// Eligibility decides whether a location may be phoned at all.
//
// The set of disqualifying preferred-contact methods is configuration,
// not code: only "research_online" is a confirmed disqualifier, and the
// rest of the set is owned by the directory team.

type Eligibility struct {
	// ExcludedContactMethods lists preferred_contact_method values that
	// take a location out of phone outreach entirely.
	ExcludedContactMethods []string
}

// DefaultEligibility excludes only the confirmed non-phone method.
func DefaultEligibility() Eligibility {
	return Eligibility{ExcludedContactMethods: []string{ContactMethodResearchOnline}}
}

// CallableClause renders the predicate as SQL against the locations
// table (or an alias of it). Excluded contact methods are appended to
// args and referenced positionally.
func (e Eligibility) CallableClause(alias string, args *[]any) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	clauses := []string{
		p + "phone_number <> ''",
		p + "soft_deleted = FALSE",
		p + "do_not_call = FALSE",
	}
	for _, m := range e.ExcludedContactMethods {
		*args = append(*args, m)
		clauses = append(clauses, fmt.Sprintf("(%spreferred_contact_method IS NULL OR %spreferred_contact_method <> $%d)", p, p, len(*args)))
	}
	return strings.Join(clauses, " AND ")
}

// Callable reports whether the location satisfies the phone-contact
// preconditions: has a phone number, not soft-deleted, not flagged
// do-not-call, and not marked for non-phone contact.
func (e Eligibility) Callable(l Location) bool {
	if l.PhoneNumber == "" {
		return false
	}
	if l.SoftDeleted || l.DoNotCall {
		return false
	}
	for _, m := range e.ExcludedContactMethods {
		if l.PreferredContactMethod == m {
			return false
		}
	}
	return true
}
