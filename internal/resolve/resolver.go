// Package resolve maps loose patient references (ids, names, free-text
// fragments) to exactly one patient record, or to an explicit ambiguous /
// not-found outcome. Ambiguity is a normal case here, not an error.
package resolve

import (
	"sort"
	"strings"

	"github.com/nidhogg/medquery/internal/record"
	"go.uber.org/zap"
)

// Status is the three-way result of a resolution attempt.
type Status string

const (
	StatusResolved  Status = "resolved"
	StatusAmbiguous Status = "ambiguous"
	StatusNotFound  Status = "not_found"
)

// Outcome is a first-class resolution result. Candidates is populated only
// for StatusAmbiguous.
type Outcome struct {
	Status     Status
	Patient    *record.Patient
	Candidates []*record.Patient
}

// Resolved is a convenience constructor for a successful outcome.
func Resolved(p *record.Patient) Outcome {
	return Outcome{Status: StatusResolved, Patient: p}
}

// NotFound is the zero-match outcome.
func NotFound() Outcome {
	return Outcome{Status: StatusNotFound}
}

// CandidateNames lists the names of ambiguous candidates for user-facing
// disambiguation messages.
func (o Outcome) CandidateNames() []string {
	names := make([]string, 0, len(o.Candidates))
	for _, c := range o.Candidates {
		names = append(names, c.Name())
	}
	return names
}

// Resolver performs patient identity lookups against the record store.
type Resolver struct {
	store  *record.Store
	logger *zap.Logger
}

// New creates a resolver backed by the given store.
func New(store *record.Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// ByID resolves an explicit patient id or clinic chart id.
func (r *Resolver) ByID(id string) (Outcome, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if p, err := r.store.FindPatient(id); err == nil {
		return Resolved(p), nil
	} else if err == record.ErrNotReady {
		return Outcome{}, err
	}
	patients, err := r.store.Patients()
	if err != nil {
		return Outcome{}, err
	}
	for _, p := range patients {
		if strings.EqualFold(p.ChartID, id) {
			return Resolved(p), nil
		}
	}
	return NotFound(), nil
}

// ByName resolves an explicit first+last name pair.
func (r *Resolver) ByName(first, last string) (Outcome, error) {
	return r.ByID(record.PatientID(first, last))
}

// ByFragment resolves a loose reference extracted from free text.
// Order: exact id, case-insensitive exact full name, case-insensitive
// substring on first or last name. More than one substring hit is ambiguous;
// the resolver never guesses between candidates.
func (r *Resolver) ByFragment(fragment string) (Outcome, error) {
	fragment = normalizeFragment(fragment)
	if fragment == "" {
		return NotFound(), nil
	}

	if p, err := r.store.FindPatient(fragment); err == nil {
		return Resolved(p), nil
	} else if err == record.ErrNotReady {
		return Outcome{}, err
	}

	patients, err := r.store.Patients()
	if err != nil {
		return Outcome{}, err
	}

	for _, p := range patients {
		if strings.EqualFold(p.Name(), fragment) {
			return Resolved(p), nil
		}
	}

	var candidates []*record.Patient
	for _, p := range patients {
		if containsFold(p.FirstName, fragment) || containsFold(p.LastName, fragment) {
			candidates = append(candidates, p)
		}
	}
	switch len(candidates) {
	case 0:
		return NotFound(), nil
	case 1:
		return Resolved(candidates[0]), nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	r.logger.Debug("ambiguous patient fragment",
		zap.String("fragment", fragment),
		zap.Int("candidates", len(candidates)))
	return Outcome{Status: StatusAmbiguous, Candidates: candidates}, nil
}

// normalizeFragment strips punctuation and the English possessive suffix so
// that "Ben's" resolves like "Ben".
func normalizeFragment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `.,!?;:"()`)
	for _, suffix := range []string{"'s", "’s"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
