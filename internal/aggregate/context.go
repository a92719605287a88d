// Package aggregate executes bound tool invocations against the record store
// and shapes the results into one bounded context for the downstream model.
// A context lives for a single query and is never cached or mutated after
// construction.
package aggregate

import (
	"time"

	"github.com/nidhogg/medquery/internal/record"
	"github.com/nidhogg/medquery/internal/route"
)

// SectionStatus marks the outcome of one sub-operation. Partial success is
// normal: a not-connected metric never fails the whole aggregation.
type SectionStatus string

const (
	StatusOK               SectionStatus = "ok"
	StatusNotConnected     SectionStatus = "not_connected"
	StatusEmpty            SectionStatus = "empty"
	StatusInsufficientData SectionStatus = "insufficient_data"
	StatusError            SectionStatus = "error"
)

// Section is the result of one tool invocation. Exactly one summary pointer
// is populated when Status is ok.
type Section struct {
	Tool    string        `json:"tool"`
	Status  SectionStatus `json:"status"`
	Message string        `json:"message,omitempty"`

	Overview  *OverviewSummary  `json:"overview,omitempty"`
	Sleep     *SleepSummary     `json:"sleep,omitempty"`
	Vitals    *VitalsSummary    `json:"vitals,omitempty"`
	Labs      *LabsSummary      `json:"labs,omitempty"`
	Adherence *AdherenceSummary `json:"adherence,omitempty"`
	Activity  *ActivitySummary  `json:"activity,omitempty"`
	Visits    *VisitsSummary    `json:"visits,omitempty"`
}

// Context is the bounded artifact handed downstream: one resolved patient,
// the per-operation sections, and the window they cover.
type Context struct {
	QueryID   string         `json:"query_id"`
	Patient   *record.Patient `json:"-"`
	PatientID string         `json:"patient_id"`
	Window    route.Window   `json:"window"`
	Sections  []Section      `json:"sections"`
	CreatedAt time.Time      `json:"created_at"`
}

// TrendDirection is the only statistical claim a summary makes beyond means:
// the sign of a simple least-squares slope.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// OverviewSummary carries demographics and recency for the overview section.
type OverviewSummary struct {
	ChartID          string    `json:"chart_id"`
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	Sex              string    `json:"sex"`
	HeightCM         float64   `json:"height_cm,omitempty"`
	WeightKG         float64   `json:"weight_kg,omitempty"`
	BloodType        string    `json:"blood_type,omitempty"`
	Conditions       []string  `json:"conditions"`
	Medications      []string  `json:"medications"`
	LastVisit        time.Time `json:"last_visit,omitempty"`
	TotalVisits      int       `json:"total_visits"`
	ConnectedSources []string  `json:"connected_sources"`
}

// SleepSummary is the derived sleep section.
type SleepSummary struct {
	Nights             int            `json:"nights"`
	MeanDurationMin    float64        `json:"mean_duration_min"`
	MeanEfficiencyPct  float64        `json:"mean_efficiency_pct"`
	MeanPerformancePct float64        `json:"mean_performance_pct"`
	LatestPerformance  float64        `json:"latest_performance_pct"`
	Quality            map[string]int `json:"quality_distribution"`
	Trend              TrendDirection `json:"trend"`
}

// VitalsReading is one physiological cycle surfaced as a vitals reading.
type VitalsReading struct {
	Date        time.Time `json:"date"`
	RecoveryPct float64   `json:"recovery_pct"`
	RestingHR   float64   `json:"resting_hr"`
	HRVMs       float64   `json:"hrv_ms"`
	Strain      float64   `json:"strain"`
}

// VitalsSummary is the derived vitals section. Flags come from a fixed
// threshold table, never from inference.
type VitalsSummary struct {
	Readings        int            `json:"readings"`
	Latest          *VitalsReading `json:"latest,omitempty"`
	MeanRestingHR   float64        `json:"mean_resting_hr"`
	MeanHRVMs       float64        `json:"mean_hrv_ms"`
	MeanRecoveryPct float64        `json:"mean_recovery_pct"`
	Flags           []string       `json:"flags,omitempty"`
}

// LabsSummary is the derived laboratory section.
type LabsSummary struct {
	Panels      int              `json:"panels"`
	Latest      *record.LabEntry `json:"latest,omitempty"`
	MeanGlucose float64          `json:"mean_glucose_mg_dl"`
	MeanHbA1c   float64          `json:"mean_hba1c_pct"`
	Flags       []string         `json:"flags,omitempty"`
}

// AdherenceSummary reports medication adherence as a percentage in [0, 100].
// Sufficient is false when the expected-entry denominator is zero.
type AdherenceSummary struct {
	Expected   int     `json:"expected_entries"`
	Taken      int     `json:"taken_entries"`
	RatePct    float64 `json:"rate_pct"`
	Sufficient bool    `json:"sufficient"`
}

// ActivitySummary is the derived workout section.
type ActivitySummary struct {
	Workouts        int                  `json:"workouts"`
	MeanStrain      float64              `json:"mean_strain"`
	MeanDurationMin float64              `json:"mean_duration_min"`
	Sports          []string             `json:"sports,omitempty"`
	Latest          *record.WorkoutEntry `json:"latest,omitempty"`
}

// VisitsSummary lists visit history with the most recent visit first.
// Internally the store keeps visits ascending; the surface order is reversed.
type VisitsSummary struct {
	Total  int            `json:"total"`
	Visits []record.Visit `json:"visits"`
}
