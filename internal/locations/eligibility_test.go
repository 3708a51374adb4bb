package locations

import (
	"strings"
	"testing"
)

func TestCallable(t *testing.T) {
	e := DefaultEligibility()

	base := Location{Name: "CVS Pharmacy", PhoneNumber: "(555) 555-0100", State: "CA"}
	if !e.Callable(base) {
		t.Fatalf("plain location should be callable")
	}

	cases := []struct {
		name string
		mut  func(l Location) Location
	}{
		{"no phone", func(l Location) Location { l.PhoneNumber = ""; return l }},
		{"soft deleted", func(l Location) Location { l.SoftDeleted = true; return l }},
		{"do not call", func(l Location) Location { l.DoNotCall = true; return l }},
		{"research online", func(l Location) Location { l.PreferredContactMethod = ContactMethodResearchOnline; return l }},
	}
	for _, tc := range cases {
		if e.Callable(tc.mut(base)) {
			t.Errorf("%s: should not be callable", tc.name)
		}
	}
}

func TestCallable_UnlistedContactMethodAllowed(t *testing.T) {
	e := DefaultEligibility()
	l := Location{Name: "CVS", PhoneNumber: "(555) 555-0100", PreferredContactMethod: "phone"}
	if !e.Callable(l) {
		t.Fatalf("only listed methods disqualify")
	}
}

func TestCallable_ConfiguredExclusions(t *testing.T) {
	e := Eligibility{ExcludedContactMethods: []string{"research_online", "email_only"}}
	l := Location{Name: "CVS", PhoneNumber: "(555) 555-0100", PreferredContactMethod: "email_only"}
	if e.Callable(l) {
		t.Fatalf("configured method should disqualify")
	}
}

func TestCallableClause_BindsExclusions(t *testing.T) {
	e := Eligibility{ExcludedContactMethods: []string{"research_online", "email_only"}}
	var args []any
	clause := e.CallableClause("l", &args)

	if len(args) != 2 {
		t.Fatalf("expected 2 bound args, got %d", len(args))
	}
	for _, want := range []string{"l.phone_number <> ''", "l.soft_deleted = FALSE", "l.do_not_call = FALSE", "$1", "$2"} {
		if !strings.Contains(clause, want) {
			t.Errorf("clause missing %q: %s", want, clause)
		}
	}
}
