package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/medquery/internal/record"
	"github.com/nidhogg/medquery/internal/registry"
	"github.com/nidhogg/medquery/internal/route"
	"go.uber.org/zap"
)

// Aggregator executes bound invocations against the record store and merges
// the results into a single bounded context.
type Aggregator struct {
	store  *record.Store
	logger *zap.Logger
}

// New creates an aggregator over the given store.
func New(store *record.Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Aggregate runs every invocation and collects one section per tool. A
// failing sub-operation becomes a marked section; only context cancellation
// aborts the whole aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, patient *record.Patient, invs []route.Invocation) (*Context, error) {
	out := &Context{
		QueryID:   uuid.New().String(),
		Patient:   patient,
		PatientID: patient.ID,
		CreatedAt: time.Now(),
	}
	if len(invs) > 0 {
		out.Window = invs[0].Window
	}

	for _, inv := range invs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Sections = append(out.Sections, a.section(patient, inv))
	}
	return out, nil
}

// section runs one invocation and converts failures into status markers.
func (a *Aggregator) section(patient *record.Patient, inv route.Invocation) Section {
	s := Section{Tool: inv.Tool, Status: StatusOK}

	var err error
	switch inv.Tool {
	case registry.ToolPatientOverview:
		s.Overview, err = a.overview(patient)
	case registry.ToolSleepPattern:
		s.Sleep, err = a.sleep(patient, inv.Window)
	case registry.ToolPatientVitals:
		s.Vitals, err = a.vitals(patient, inv.Window)
	case registry.ToolPatientLabs:
		s.Labs, err = a.labs(patient, inv.Window)
	case registry.ToolMedicationAdherence:
		s.Adherence, err = a.adherence(patient, inv.Window)
	case registry.ToolPatientActivity:
		s.Activity, err = a.activity(patient, inv.Window)
	case registry.ToolPatientVisits:
		s.Visits, err = a.visits(patient)
	default:
		s.Status = StatusError
		s.Message = "no aggregation implemented for tool " + inv.Tool
		return s
	}

	if err != nil {
		var notConnected *record.NotConnectedError
		if errors.As(err, &notConnected) {
			s.Status = StatusNotConnected
			s.Message = notConnected.Error()
			return s
		}
		a.logger.Warn("section failed",
			zap.String("tool", inv.Tool),
			zap.String("patient", patient.ID),
			zap.Error(err))
		s.Status = StatusError
		s.Message = err.Error()
		return s
	}

	switch {
	case s.Sleep != nil && s.Sleep.Nights == 0,
		s.Vitals != nil && s.Vitals.Readings == 0,
		s.Labs != nil && s.Labs.Panels == 0,
		s.Activity != nil && s.Activity.Workouts == 0,
		s.Visits != nil && s.Visits.Total == 0:
		s.Status = StatusEmpty
		s.Message = "no records in the requested window"
	case s.Adherence != nil && !s.Adherence.Sufficient:
		s.Status = StatusInsufficientData
		s.Message = "insufficient data: no expected medication entries in the window"
	}
	return s
}

func (a *Aggregator) overview(patient *record.Patient) (*OverviewSummary, error) {
	visits, err := a.store.VisitsFor(patient.ID)
	if err != nil {
		return nil, err
	}
	sources := make([]string, 0, len(patient.Sources))
	for _, fam := range record.Families {
		if patient.Connected(fam) {
			sources = append(sources, string(fam))
		}
	}
	return &OverviewSummary{
		ChartID:          patient.ChartID,
		Name:             patient.Name(),
		Age:              patient.Age,
		Sex:              patient.Sex,
		HeightCM:         patient.HeightCM,
		WeightKG:         patient.WeightKG,
		BloodType:        patient.BloodType,
		Conditions:       patient.Conditions,
		Medications:      patient.Medications,
		LastVisit:        patient.LastVisit,
		TotalVisits:      len(visits),
		ConnectedSources: sources,
	}, nil
}

func (a *Aggregator) sleep(patient *record.Patient, w route.Window) (*SleepSummary, error) {
	set, err := a.store.MetricsFor(patient.ID, record.FamilySleep, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	return summarizeSleep(set.Sleep), nil
}

func (a *Aggregator) vitals(patient *record.Patient, w route.Window) (*VitalsSummary, error) {
	set, err := a.store.MetricsFor(patient.ID, record.FamilyCycles, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	return summarizeVitals(set.Cycles), nil
}

func (a *Aggregator) labs(patient *record.Patient, w route.Window) (*LabsSummary, error) {
	set, err := a.store.MetricsFor(patient.ID, record.FamilyLabs, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	return summarizeLabs(set.Labs), nil
}

func (a *Aggregator) adherence(patient *record.Patient, w route.Window) (*AdherenceSummary, error) {
	set, err := a.store.MetricsFor(patient.ID, record.FamilyJournal, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	return summarizeAdherence(set.Journal), nil
}

func (a *Aggregator) activity(patient *record.Patient, w route.Window) (*ActivitySummary, error) {
	set, err := a.store.MetricsFor(patient.ID, record.FamilyWorkouts, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	return summarizeActivity(set.Workouts), nil
}

func (a *Aggregator) visits(patient *record.Patient) (*VisitsSummary, error) {
	visits, err := a.store.VisitsFor(patient.ID)
	if err != nil {
		return nil, err
	}
	// Surface order is newest first; storage stays ascending.
	reversed := make([]record.Visit, len(visits))
	for i, v := range visits {
		reversed[len(visits)-1-i] = v
	}
	return &VisitsSummary{Total: len(visits), Visits: reversed}, nil
}
