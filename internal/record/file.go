package record

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// FileSource loads the snapshot from flat files: patients.csv and visits.json
// under ClinicDir, device metric CSVs under DeviceDir. The two clinic files
// are required; a missing device CSV just means no rows for that family.
type FileSource struct {
	ClinicDir string
	DeviceDir string
	logger    *zap.Logger
}

// NewFileSource creates a flat-file snapshot source.
func NewFileSource(clinicDir, deviceDir string, logger *zap.Logger) *FileSource {
	return &FileSource{ClinicDir: clinicDir, DeviceDir: deviceDir, logger: logger}
}

// Load parses all source files. Any malformed row fails the whole load.
func (f *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()

	if err := f.loadPatients(snap); err != nil {
		return nil, err
	}
	if err := f.loadVisits(snap); err != nil {
		return nil, err
	}

	deviceFiles := []struct {
		family MetricFamily
		name   string
		parse  func(*Snapshot, *row) error
	}{
		{FamilySleep, "sleeps.csv", parseSleepRow},
		{FamilyWorkouts, "workouts.csv", parseWorkoutRow},
		{FamilyCycles, "physiological_cycles.csv", parseCycleRow},
		{FamilyJournal, "journal_entries.csv", parseJournalRow},
		{FamilyLabs, "labs.csv", parseLabRow},
	}
	for _, df := range deviceFiles {
		path := filepath.Join(f.DeviceDir, df.name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f.logger.Debug("device file absent, skipping", zap.String("file", df.name))
			continue
		}
		if err := forEachCSVRow(path, func(r *row) error { return df.parse(snap, r) }); err != nil {
			return nil, fmt.Errorf("load %s: %w", df.name, err)
		}
	}

	f.logger.Info("flat files loaded",
		zap.String("clinic_dir", f.ClinicDir),
		zap.String("device_dir", f.DeviceDir),
		zap.Int("patients", len(snap.Patients)))
	return snap, nil
}

func (f *FileSource) loadPatients(snap *Snapshot) error {
	path := filepath.Join(f.ClinicDir, "patients.csv")
	err := forEachCSVRow(path, func(r *row) error {
		first, err := r.str("first_name")
		if err != nil {
			return err
		}
		last, err := r.str("last_name")
		if err != nil {
			return err
		}
		p := &Patient{
			ID:        PatientID(first, last),
			FirstName: first,
			LastName:  last,
			Sources:   make(map[MetricFamily]bool),
		}
		if p.ChartID, err = r.str("patient_id"); err != nil {
			return err
		}
		age, err := r.num("age")
		if err != nil {
			return err
		}
		p.Age = int(age)
		if p.Sex, err = r.str("sex"); err != nil {
			return err
		}
		if p.HeightCM, err = r.optNum("height_cm"); err != nil {
			return err
		}
		if p.WeightKG, err = r.optNum("weight_kg"); err != nil {
			return err
		}
		p.BloodType = r.optStr("blood_type")
		p.Conditions = splitList(r.optStr("conditions"))
		p.Medications = splitList(r.optStr("medications"))
		p.Email = r.optStr("email")
		if lv := r.optStr("last_visit"); lv != "" {
			d, err := time.Parse(dateLayout, lv)
			if err != nil {
				return fmt.Errorf("last_visit: %w", err)
			}
			p.LastVisit = d
		}
		for _, src := range splitList(r.optStr("device_sources")) {
			fam := MetricFamily(strings.ToLower(src))
			if !ValidFamily(fam) {
				return fmt.Errorf("unknown device source %q", src)
			}
			p.Sources[fam] = true
		}
		if _, dup := snap.Patients[p.ID]; dup {
			return fmt.Errorf("duplicate patient id %s", p.ID)
		}
		snap.Patients[p.ID] = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("load patients.csv: %w", err)
	}
	return nil
}

// visitRow matches the visits.json field naming.
type visitRow struct {
	PatientID string `json:"patient_id"`
	VisitDate string `json:"visit_date"`
	VisitType string `json:"visit_type"`
	Vitals    string `json:"vitals"`
	Notes     string `json:"notes"`
}

func (f *FileSource) loadVisits(snap *Snapshot) error {
	path := filepath.Join(f.ClinicDir, "visits.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load visits.json: %w", err)
	}
	var rows []visitRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse visits.json: %w", err)
	}
	for i, vr := range rows {
		if vr.PatientID == "" {
			return fmt.Errorf("visits.json entry %d: missing patient_id", i)
		}
		d, err := time.Parse(dateLayout, vr.VisitDate)
		if err != nil {
			return fmt.Errorf("visits.json entry %d: visit_date: %w", i, err)
		}
		snap.Visits[vr.PatientID] = append(snap.Visits[vr.PatientID], Visit{
			PatientID: vr.PatientID,
			Date:      d,
			Type:      vr.VisitType,
			Vitals:    vr.Vitals,
			Notes:     vr.Notes,
		})
	}
	return nil
}

// row is one CSV record with header-indexed access.
type row struct {
	header map[string]int
	fields []string
	line   int
}

func (r *row) str(col string) (string, error) {
	idx, ok := r.header[col]
	if !ok {
		return "", fmt.Errorf("line %d: missing column %q", r.line, col)
	}
	v := strings.TrimSpace(r.fields[idx])
	if v == "" {
		return "", fmt.Errorf("line %d: empty required field %q", r.line, col)
	}
	return v, nil
}

func (r *row) optStr(col string) string {
	idx, ok := r.header[col]
	if !ok {
		return ""
	}
	v := strings.TrimSpace(r.fields[idx])
	if strings.EqualFold(v, "n/a") {
		return ""
	}
	return v
}

func (r *row) num(col string) (float64, error) {
	v, err := r.str(col)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: non-numeric %q in column %q", r.line, v, col)
	}
	return n, nil
}

func (r *row) optNum(col string) (float64, error) {
	v := r.optStr(col)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: non-numeric %q in column %q", r.line, v, col)
	}
	return n, nil
}

func (r *row) date(col string) (time.Time, error) {
	v, err := r.str(col)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("line %d: bad date %q in column %q", r.line, v, col)
	}
	return d, nil
}

func (r *row) boolean(col string) (bool, error) {
	v, err := r.str(col)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("line %d: bad boolean %q in column %q", r.line, v, col)
}

// forEachCSVRow reads a CSV with a header line and calls fn per data row.
// encoding/csv enforces a consistent column count across rows.
func forEachCSVRow(path string, fn func(*row) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("empty file")
	}
	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for i, fields := range records[1:] {
		r := &row{header: header, fields: fields, line: i + 2}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// metricPatientID reads and validates the owning patient id of a metric row.
func metricPatientID(r *row) (string, error) {
	pid, err := r.str("patient_id")
	if err != nil {
		return "", fmt.Errorf("metric row without owning patient: %w", err)
	}
	return pid, nil
}

func parseSleepRow(snap *Snapshot, r *row) error {
	pid, err := metricPatientID(r)
	if err != nil {
		return err
	}
	e := SleepEntry{PatientID: pid}
	if e.Date, err = r.date("date"); err != nil {
		return err
	}
	if e.DurationMin, err = r.num("duration_min"); err != nil {
		return err
	}
	if e.EfficiencyPct, err = r.num("efficiency_pct"); err != nil {
		return err
	}
	if e.PerformancePct, err = r.num("performance_pct"); err != nil {
		return err
	}
	if e.REMMin, err = r.optNum("rem_min"); err != nil {
		return err
	}
	if e.DeepMin, err = r.optNum("deep_min"); err != nil {
		return err
	}
	snap.Sleep[pid] = append(snap.Sleep[pid], e)
	return nil
}

func parseWorkoutRow(snap *Snapshot, r *row) error {
	pid, err := metricPatientID(r)
	if err != nil {
		return err
	}
	e := WorkoutEntry{PatientID: pid}
	if e.Date, err = r.date("date"); err != nil {
		return err
	}
	if e.Sport, err = r.str("sport"); err != nil {
		return err
	}
	if e.Strain, err = r.num("strain"); err != nil {
		return err
	}
	if e.DurationMin, err = r.num("duration_min"); err != nil {
		return err
	}
	if e.Calories, err = r.optNum("calories"); err != nil {
		return err
	}
	if e.AvgHR, err = r.optNum("avg_hr"); err != nil {
		return err
	}
	if e.MaxHR, err = r.optNum("max_hr"); err != nil {
		return err
	}
	snap.Workouts[pid] = append(snap.Workouts[pid], e)
	return nil
}

func parseCycleRow(snap *Snapshot, r *row) error {
	pid, err := metricPatientID(r)
	if err != nil {
		return err
	}
	e := CycleEntry{PatientID: pid}
	if e.Date, err = r.date("date"); err != nil {
		return err
	}
	if e.RecoveryPct, err = r.num("recovery_pct"); err != nil {
		return err
	}
	if e.Strain, err = r.num("strain"); err != nil {
		return err
	}
	if e.RestingHR, err = r.num("resting_hr"); err != nil {
		return err
	}
	if e.HRVMs, err = r.optNum("hrv_ms"); err != nil {
		return err
	}
	snap.Cycles[pid] = append(snap.Cycles[pid], e)
	return nil
}

func parseJournalRow(snap *Snapshot, r *row) error {
	pid, err := metricPatientID(r)
	if err != nil {
		return err
	}
	e := JournalEntry{PatientID: pid}
	if e.Date, err = r.date("date"); err != nil {
		return err
	}
	if e.Question, err = r.str("question"); err != nil {
		return err
	}
	if e.Answer, err = r.boolean("answer"); err != nil {
		return err
	}
	snap.Journal[pid] = append(snap.Journal[pid], e)
	return nil
}

func parseLabRow(snap *Snapshot, r *row) error {
	pid, err := metricPatientID(r)
	if err != nil {
		return err
	}
	e := LabEntry{PatientID: pid}
	if e.Date, err = r.date("date"); err != nil {
		return err
	}
	if e.GlucoseMgDL, err = r.num("glucose_mg_dl"); err != nil {
		return err
	}
	if e.HbA1cPct, err = r.num("hba1c_pct"); err != nil {
		return err
	}
	if e.TotalCholMgDL, err = r.optNum("total_chol_mg_dl"); err != nil {
		return err
	}
	if e.LDLMgDL, err = r.optNum("ldl_mg_dl"); err != nil {
		return err
	}
	if e.HDLMgDL, err = r.optNum("hdl_mg_dl"); err != nil {
		return err
	}
	if e.CreatinineMgDL, err = r.optNum("creatinine_mg_dl"); err != nil {
		return err
	}
	snap.Labs[pid] = append(snap.Labs[pid], e)
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
