package record

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrNotReady is returned by every query until a snapshot has been installed.
var ErrNotReady = errors.New("record store not ready")

// ErrPatientNotFound is returned when no patient matches the given id.
var ErrPatientNotFound = errors.New("patient not found")

// NotConnectedError marks a metric query for a patient who has no device
// source of that family. It is a normal outcome, distinct from a connected
// source with no rows in the window.
type NotConnectedError struct {
	PatientName string
	Family      MetricFamily
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s has not connected a %s data source", e.PatientName, e.Family)
}

// Source loads a complete snapshot from backing storage.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Store serves read-only queries over a snapshot loaded once at startup.
// The snapshot pointer is swapped atomically, so reads are safe to run
// concurrently without locks.
type Store struct {
	snap   atomic.Pointer[Snapshot]
	logger *zap.Logger
}

// NewStore creates an empty, not-yet-ready store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{logger: logger}
}

// Load pulls a snapshot from the source and installs it.
func (s *Store) Load(ctx context.Context, src Source) error {
	snap, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	s.SetSnapshot(snap)
	return nil
}

// SetSnapshot installs a snapshot, making the store ready.
func (s *Store) SetSnapshot(snap *Snapshot) {
	snap.finalize()
	s.snap.Store(snap)
	s.logger.Info("record snapshot installed",
		zap.Int("patients", len(snap.Patients)),
		zap.Time("loaded_at", snap.LoadedAt))
}

// Ready reports whether a snapshot has been installed.
func (s *Store) Ready() bool {
	return s.snap.Load() != nil
}

func (s *Store) snapshot() (*Snapshot, error) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

// FindPatient returns the patient with the given id.
func (s *Store) FindPatient(id string) (*Patient, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	p, ok := snap.Patients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return p, nil
}

// Patients returns all patients sorted by id.
func (s *Store) Patients() ([]*Patient, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*Patient, 0, len(snap.Patients))
	for _, p := range snap.Patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// VisitsFor returns the patient's visits ascending by date. No visits is an
// empty slice, not an error.
func (s *Store) VisitsFor(patientID string) ([]Visit, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Visits[patientID], nil
}

// MetricsFor returns the patient's rows of one metric family inside
// [since, until], ascending by date. A patient without that device source
// yields a *NotConnectedError so callers can tell "not connected" apart from
// "connected but no rows in window". An inverted window yields an empty set.
func (s *Store) MetricsFor(patientID string, family MetricFamily, since, until time.Time) (*MetricSet, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if !ValidFamily(family) {
		return nil, fmt.Errorf("unknown metric family %q", family)
	}
	p, ok := snap.Patients[patientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	if !p.Connected(family) {
		return nil, &NotConnectedError{PatientName: p.Name(), Family: family}
	}

	set := &MetricSet{Family: family}
	inWindow := func(d time.Time) bool {
		return !d.Before(since) && !d.After(until)
	}
	switch family {
	case FamilySleep:
		for _, r := range snap.Sleep[patientID] {
			if inWindow(r.Date) {
				set.Sleep = append(set.Sleep, r)
			}
		}
	case FamilyWorkouts:
		for _, r := range snap.Workouts[patientID] {
			if inWindow(r.Date) {
				set.Workouts = append(set.Workouts, r)
			}
		}
	case FamilyCycles:
		for _, r := range snap.Cycles[patientID] {
			if inWindow(r.Date) {
				set.Cycles = append(set.Cycles, r)
			}
		}
	case FamilyJournal:
		for _, r := range snap.Journal[patientID] {
			if inWindow(r.Date) {
				set.Journal = append(set.Journal, r)
			}
		}
	case FamilyLabs:
		for _, r := range snap.Labs[patientID] {
			if inWindow(r.Date) {
				set.Labs = append(set.Labs, r)
			}
		}
	}
	return set, nil
}
