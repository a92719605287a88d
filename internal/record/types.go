package record

import (
	"sort"
	"strings"
	"time"
)

// MetricFamily identifies a per-patient device record stream.
type MetricFamily string

const (
	FamilySleep    MetricFamily = "sleep"
	FamilyWorkouts MetricFamily = "workouts"
	FamilyCycles   MetricFamily = "cycles"
	FamilyJournal  MetricFamily = "journal"
	FamilyLabs     MetricFamily = "labs"
)

// Families lists all known metric families in a stable order.
var Families = []MetricFamily{FamilySleep, FamilyWorkouts, FamilyCycles, FamilyJournal, FamilyLabs}

// ValidFamily reports whether f names a known metric family.
func ValidFamily(f MetricFamily) bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// Patient is an immutable demographic record. ID is the stable foreign key
// ("first_last", lowercase) used by every other entity; ChartID is the
// clinic-assigned chart number.
type Patient struct {
	ID          string
	ChartID     string
	FirstName   string
	LastName    string
	Age         int
	Sex         string
	HeightCM    float64
	WeightKG    float64
	BloodType   string
	Conditions  []string
	Medications []string
	Email       string
	LastVisit   time.Time
	Sources     map[MetricFamily]bool
}

// Name returns the patient's display name.
func (p *Patient) Name() string {
	return p.FirstName + " " + p.LastName
}

// Connected reports whether the patient has the given device source.
func (p *Patient) Connected(f MetricFamily) bool {
	return p.Sources[f]
}

// PatientID derives the canonical record key from a name pair.
func PatientID(first, last string) string {
	return strings.ToLower(strings.TrimSpace(first)) + "_" + strings.ToLower(strings.TrimSpace(last))
}

// Visit is a single clinic visit owned by one patient.
type Visit struct {
	PatientID string
	Date      time.Time
	Type      string
	Vitals    string
	Notes     string
}

// SleepEntry is one night of device sleep data.
type SleepEntry struct {
	PatientID      string
	Date           time.Time
	DurationMin    float64
	EfficiencyPct  float64
	PerformancePct float64
	REMMin         float64
	DeepMin        float64
}

// WorkoutEntry is one recorded workout session.
type WorkoutEntry struct {
	PatientID   string
	Date        time.Time
	Sport       string
	Strain      float64
	DurationMin float64
	Calories    float64
	AvgHR       float64
	MaxHR       float64
}

// CycleEntry is one physiological cycle (recovery, strain, resting vitals).
type CycleEntry struct {
	PatientID   string
	Date        time.Time
	RecoveryPct float64
	Strain      float64
	RestingHR   float64
	HRVMs       float64
}

// JournalEntry is one yes/no health journal answer.
type JournalEntry struct {
	PatientID string
	Date      time.Time
	Question  string
	Answer    bool
}

// MedicationRelated reports whether the journal question tracks medication
// intake, which is what adherence ratios are computed from.
func (j *JournalEntry) MedicationRelated() bool {
	q := strings.ToLower(j.Question)
	return strings.Contains(q, "medication") || strings.Contains(q, "meds")
}

// LabEntry is one laboratory panel.
type LabEntry struct {
	PatientID     string
	Date          time.Time
	GlucoseMgDL   float64
	HbA1cPct      float64
	TotalCholMgDL float64
	LDLMgDL       float64
	HDLMgDL       float64
	CreatinineMgDL float64
}

// MetricSet is the tagged result of a metric query: exactly the slice for
// Family is populated.
type MetricSet struct {
	Family   MetricFamily
	Sleep    []SleepEntry
	Workouts []WorkoutEntry
	Cycles   []CycleEntry
	Journal  []JournalEntry
	Labs     []LabEntry
}

// Len returns the number of rows in the populated slice.
func (m *MetricSet) Len() int {
	switch m.Family {
	case FamilySleep:
		return len(m.Sleep)
	case FamilyWorkouts:
		return len(m.Workouts)
	case FamilyCycles:
		return len(m.Cycles)
	case FamilyJournal:
		return len(m.Journal)
	case FamilyLabs:
		return len(m.Labs)
	}
	return 0
}

// Snapshot is the complete loaded dataset. It is built once by a Source and
// never mutated afterwards; all time series are sorted ascending by date.
type Snapshot struct {
	Patients map[string]*Patient
	Visits   map[string][]Visit
	Sleep    map[string][]SleepEntry
	Workouts map[string][]WorkoutEntry
	Cycles   map[string][]CycleEntry
	Journal  map[string][]JournalEntry
	Labs     map[string][]LabEntry
	LoadedAt time.Time
}

// NewSnapshot returns an empty snapshot with all tables allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Patients: make(map[string]*Patient),
		Visits:   make(map[string][]Visit),
		Sleep:    make(map[string][]SleepEntry),
		Workouts: make(map[string][]WorkoutEntry),
		Cycles:   make(map[string][]CycleEntry),
		Journal:  make(map[string][]JournalEntry),
		Labs:     make(map[string][]LabEntry),
	}
}

// finalize sorts every time series ascending by date and stamps the load time.
func (s *Snapshot) finalize() {
	for _, vs := range s.Visits {
		sort.Slice(vs, func(i, j int) bool { return vs[i].Date.Before(vs[j].Date) })
	}
	for _, rows := range s.Sleep {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	for _, rows := range s.Workouts {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	for _, rows := range s.Cycles {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	for _, rows := range s.Journal {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	for _, rows := range s.Labs {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	s.LoadedAt = time.Now()
}
