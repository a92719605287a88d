// Package route classifies free-text queries into bound tool invocations.
// The deterministic keyword path always runs; the downstream model is only
// ever handed the result, never consulted for routing.
package route

import (
	"strings"
	"time"

	"github.com/nidhogg/medquery/internal/registry"
	"github.com/nidhogg/medquery/internal/resolve"
	"go.uber.org/zap"
)

// Kind discriminates routing decisions.
type Kind string

const (
	// KindPatientData carries one or more bound tool invocations.
	KindPatientData Kind = "patient_data"
	// KindGeneral forwards the bare question downstream with no patient context.
	KindGeneral Kind = "general"
	// KindAmbiguousPatient names multiple candidates; nothing executes.
	KindAmbiguousPatient Kind = "ambiguous_patient"
	// KindPatientNotFound names a reference that matched nobody.
	KindPatientNotFound Kind = "patient_not_found"
	// KindIdentityMissing means a data category matched but the query named
	// no patient at all. Distinct from ambiguous and not-found.
	KindIdentityMissing Kind = "identity_missing"
)

// Invocation is one tool call with bound arguments.
type Invocation struct {
	Tool      string `json:"tool"`
	PatientID string `json:"patient_id"`
	Window    Window `json:"window"`
}

// Decision is the router's verdict on one query.
type Decision struct {
	Kind        Kind
	Category    Category
	Question    string
	Fragment    string
	Resolution  resolve.Outcome
	Invocations []Invocation
	Window      Window
}

// categoryTools binds each category to the tools it selects. Overview unions
// every patient-data summary into one context.
var categoryTools = map[Category][]string{
	CategorySleep:       {registry.ToolSleepPattern},
	CategoryVitals:      {registry.ToolPatientVitals},
	CategoryLabs:        {registry.ToolPatientLabs},
	CategoryMedications: {registry.ToolMedicationAdherence},
	CategoryActivity:    {registry.ToolPatientActivity},
	CategoryVisits:      {registry.ToolPatientVisits},
	CategoryOverview: {
		registry.ToolPatientOverview,
		registry.ToolSleepPattern,
		registry.ToolPatientVitals,
		registry.ToolPatientLabs,
		registry.ToolMedicationAdherence,
		registry.ToolPatientActivity,
		registry.ToolPatientVisits,
	},
}

// Router turns free text into routing decisions. It owns no state beyond its
// injected collaborators, so the same query always yields the same decision.
type Router struct {
	registry    *registry.Registry
	resolver    *resolve.Resolver
	defaultDays int
	now         func() time.Time
	logger      *zap.Logger
}

// New creates a router. defaultDays is the window applied when the query
// names no range.
func New(reg *registry.Registry, resolver *resolve.Resolver, defaultDays int, logger *zap.Logger) *Router {
	return &Router{
		registry:    reg,
		resolver:    resolver,
		defaultDays: defaultDays,
		now:         time.Now,
		logger:      logger,
	}
}

// Decide classifies a query. explicitPatient, when non-empty, bypasses
// free-text fragment extraction.
func (r *Router) Decide(query, explicitPatient string) (*Decision, error) {
	d := &Decision{Question: query}
	d.Window = ParseWindow(query, r.now(), r.defaultDays)

	category, ok := r.firstEnabledCategory(query)

	outcome, fragment, err := r.resolvePatient(query, explicitPatient)
	if err != nil {
		return nil, err
	}
	d.Fragment = fragment
	d.Resolution = outcome

	if !ok {
		switch outcome.Status {
		case resolve.StatusResolved, resolve.StatusAmbiguous:
			// A named patient with no data keywords still implies their
			// overview rather than a general-knowledge answer. An ambiguous
			// name takes the same branch so its candidates surface below
			// instead of being silently dropped.
			category = CategoryOverview
		default:
			d.Kind = KindGeneral
			r.logger.Debug("routed as general knowledge", zap.String("query", query))
			return d, nil
		}
	}
	d.Category = category

	switch outcome.Status {
	case resolve.StatusAmbiguous:
		d.Kind = KindAmbiguousPatient
		return d, nil
	case resolve.StatusNotFound:
		if fragment == "" {
			d.Kind = KindIdentityMissing
		} else {
			d.Kind = KindPatientNotFound
		}
		return d, nil
	}

	d.Kind = KindPatientData
	for _, tool := range categoryTools[category] {
		def, found := r.registry.Get(tool)
		if !found || !def.Enabled {
			continue
		}
		d.Invocations = append(d.Invocations, Invocation{
			Tool:      tool,
			PatientID: outcome.Patient.ID,
			Window:    d.Window,
		})
	}
	r.logger.Debug("routed to patient data",
		zap.String("category", string(category)),
		zap.String("patient", outcome.Patient.ID),
		zap.Int("invocations", len(d.Invocations)))
	return d, nil
}

// WindowOf builds a window of the given day count ending now, falling back to
// the configured default when days is not positive.
func (r *Router) WindowOf(days int) Window {
	if days <= 0 {
		days = r.defaultDays
	}
	return WindowOfDays(days, r.now())
}

// firstEnabledCategory scans the keyword table in order and returns the first
// matched category that still has at least one enabled tool.
func (r *Router) firstEnabledCategory(query string) (Category, bool) {
	for _, cat := range matchCategories(query) {
		for _, tool := range categoryTools[cat] {
			if def, ok := r.registry.Get(tool); ok && def.Enabled {
				return cat, true
			}
		}
	}
	return "", false
}

// resolvePatient finds the patient reference in the query or uses the
// explicit identifier. Returns the outcome and the fragment that produced it
// (empty when the query named nobody).
func (r *Router) resolvePatient(query, explicitPatient string) (resolve.Outcome, string, error) {
	if explicitPatient != "" {
		outcome, err := r.resolver.ByFragment(explicitPatient)
		return outcome, explicitPatient, err
	}

	words := strings.Fields(query)
	cleaned := make([]string, len(words))
	for i, w := range words {
		cleaned[i] = strings.Trim(w, `.,!?;:"()`)
	}

	candidate := func(w string) bool {
		base := strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(w), "'s"), "’s")
		return len(base) >= 2 && !fragmentStopwords[base]
	}

	// Adjacent candidate pairs are tried first so "Ben Smith" beats the
	// single-token lookups for "Ben" and "Smith".
	for i := 0; i+1 < len(cleaned); i++ {
		if !candidate(cleaned[i]) || !candidate(cleaned[i+1]) {
			continue
		}
		pair := cleaned[i] + " " + cleaned[i+1]
		outcome, err := r.resolver.ByFragment(pair)
		if err != nil {
			return resolve.Outcome{}, "", err
		}
		if outcome.Status == resolve.StatusResolved {
			return outcome, pair, nil
		}
	}

	var firstAmbiguous *resolve.Outcome
	var firstFragment string
	var firstMiss string
	for _, w := range cleaned {
		if !candidate(w) {
			continue
		}
		outcome, err := r.resolver.ByFragment(w)
		if err != nil {
			return resolve.Outcome{}, "", err
		}
		switch outcome.Status {
		case resolve.StatusResolved:
			return outcome, w, nil
		case resolve.StatusAmbiguous:
			if firstAmbiguous == nil {
				o := outcome
				firstAmbiguous = &o
				firstFragment = w
			}
		case resolve.StatusNotFound:
			if firstMiss == "" {
				firstMiss = w
			}
		}
	}
	if firstAmbiguous != nil {
		return *firstAmbiguous, firstFragment, nil
	}
	// firstMiss distinguishes "named someone unknown" from "named nobody".
	return resolve.NotFound(), firstMiss, nil
}
