package resolve

import (
	"testing"

	"github.com/nidhogg/medquery/internal/record"
	"go.uber.org/zap"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	snap := record.NewSnapshot()
	for _, p := range []*record.Patient{
		{ID: "ben_smith", ChartID: "P001", FirstName: "Ben", LastName: "Smith"},
		{ID: "mike_jones", ChartID: "P002", FirstName: "Mike", LastName: "Jones"},
		{ID: "mike_brown", ChartID: "P003", FirstName: "Mike", LastName: "Brown"},
		{ID: "sarah_chen", ChartID: "P004", FirstName: "Sarah", LastName: "Chen"},
	} {
		snap.Patients[p.ID] = p
	}
	store := record.NewStore(zap.NewNop())
	store.SetSnapshot(snap)
	return New(store, zap.NewNop())
}

func TestByIDRecordID(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByID("ben_smith")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusResolved || out.Patient.ID != "ben_smith" {
		t.Fatalf("got %+v, want resolved ben_smith", out)
	}
}

func TestByIDChartID(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByID("p002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusResolved || out.Patient.ID != "mike_jones" {
		t.Fatalf("got %+v, want resolved mike_jones via chart id", out)
	}
}

func TestByName(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByName("Sarah", "Chen")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusResolved || out.Patient.ID != "sarah_chen" {
		t.Fatalf("got %+v, want resolved sarah_chen", out)
	}
}

func TestByFragmentExactFullName(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByFragment("ben smith")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusResolved || out.Patient.ID != "ben_smith" {
		t.Fatalf("got %+v, want resolved ben_smith", out)
	}
}

func TestByFragmentPossessive(t *testing.T) {
	r := newTestResolver(t)
	for _, frag := range []string{"Ben's", "Ben’s", "Ben's,"} {
		out, err := r.ByFragment(frag)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", frag, err)
		}
		if out.Status != StatusResolved || out.Patient.ID != "ben_smith" {
			t.Fatalf("%q: got %+v, want resolved ben_smith", frag, out)
		}
	}
}

func TestByFragmentAmbiguous(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByFragment("Mike")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusAmbiguous {
		t.Fatalf("got status %q, want ambiguous", out.Status)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(out.Candidates))
	}
	// Candidates sorted by id for deterministic disambiguation messages.
	if out.Candidates[0].ID != "mike_brown" || out.Candidates[1].ID != "mike_jones" {
		t.Errorf("candidates not sorted by id: %s, %s", out.Candidates[0].ID, out.Candidates[1].ID)
	}
	names := out.CandidateNames()
	if names[0] != "Mike Brown" || names[1] != "Mike Jones" {
		t.Errorf("unexpected candidate names: %v", names)
	}
}

func TestByFragmentLastNameSubstring(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByFragment("chen")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusResolved || out.Patient.ID != "sarah_chen" {
		t.Fatalf("got %+v, want resolved sarah_chen", out)
	}
}

func TestByFragmentNotFound(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByFragment("zelda")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusNotFound {
		t.Fatalf("got status %q, want not_found", out.Status)
	}
}

func TestByFragmentEmpty(t *testing.T) {
	r := newTestResolver(t)
	out, err := r.ByFragment("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusNotFound {
		t.Fatalf("got status %q, want not_found", out.Status)
	}
}
