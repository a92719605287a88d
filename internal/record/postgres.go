package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresSource loads the snapshot from Postgres tables instead of flat
// files. The store still serves everything from memory; Postgres is only the
// startup source of truth.
type PostgresSource struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSource connects a pgx pool and verifies it with a ping.
func NewPostgresSource(dsn string, logger *zap.Logger) (*PostgresSource, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresSource{db: pool, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (p *PostgresSource) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := p.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		p.logger.Info("migration applied", zap.String("file", f))
	}
	return nil
}

// Close shuts down the connection pool.
func (p *PostgresSource) Close() {
	p.db.Close()
}

// Load reads all record tables into one snapshot.
func (p *PostgresSource) Load(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()

	if err := p.loadPatients(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadVisits(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadSleep(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadWorkouts(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadCycles(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadJournal(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadLabs(ctx, snap); err != nil {
		return nil, err
	}

	p.logger.Info("postgres snapshot loaded", zap.Int("patients", len(snap.Patients)))
	return snap, nil
}

func (p *PostgresSource) loadPatients(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, chart_id, first_name, last_name, age, sex,
		       COALESCE(height_cm, 0), COALESCE(weight_kg, 0), COALESCE(blood_type, ''),
		       COALESCE(conditions, '{}'), COALESCE(medications, '{}'),
		       COALESCE(email, ''), last_visit, COALESCE(device_sources, '{}')
		FROM patients ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pt Patient
		var sources []string
		var lastVisit *time.Time
		if err := rows.Scan(
			&pt.ID, &pt.ChartID, &pt.FirstName, &pt.LastName, &pt.Age, &pt.Sex,
			&pt.HeightCM, &pt.WeightKG, &pt.BloodType,
			&pt.Conditions, &pt.Medications, &pt.Email, &lastVisit, &sources,
		); err != nil {
			return fmt.Errorf("scan patient: %w", err)
		}
		if lastVisit != nil {
			pt.LastVisit = *lastVisit
		}
		pt.Sources = make(map[MetricFamily]bool, len(sources))
		for _, src := range sources {
			fam := MetricFamily(strings.ToLower(src))
			if !ValidFamily(fam) {
				return fmt.Errorf("patient %s: unknown device source %q", pt.ID, src)
			}
			pt.Sources[fam] = true
		}
		snap.Patients[pt.ID] = &pt
	}
	return rows.Err()
}

func (p *PostgresSource) loadVisits(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT patient_id, visit_date, visit_type, COALESCE(vitals, ''), COALESCE(notes, '')
		FROM visits ORDER BY patient_id, visit_date`)
	if err != nil {
		return fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.PatientID, &v.Date, &v.Type, &v.Vitals, &v.Notes); err != nil {
			return fmt.Errorf("scan visit: %w", err)
		}
		snap.Visits[v.PatientID] = append(snap.Visits[v.PatientID], v)
	}
	return rows.Err()
}

func (p *PostgresSource) loadSleep(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT patient_id, entry_date, duration_min, efficiency_pct, performance_pct,
		       COALESCE(rem_min, 0), COALESCE(deep_min, 0)
		FROM sleep_entries ORDER BY patient_id, entry_date`)
	if err != nil {
		return fmt.Errorf("query sleep_entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e SleepEntry
		if err := rows.Scan(&e.PatientID, &e.Date, &e.DurationMin, &e.EfficiencyPct,
			&e.PerformancePct, &e.REMMin, &e.DeepMin); err != nil {
			return fmt.Errorf("scan sleep entry: %w", err)
		}
		snap.Sleep[e.PatientID] = append(snap.Sleep[e.PatientID], e)
	}
	return rows.Err()
}

func (p *PostgresSource) loadWorkouts(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT patient_id, entry_date, sport, strain, duration_min,
		       COALESCE(calories, 0), COALESCE(avg_hr, 0), COALESCE(max_hr, 0)
		FROM workout_entries ORDER BY patient_id, entry_date`)
	if err != nil {
		return fmt.Errorf("query workout_entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e WorkoutEntry
		if err := rows.Scan(&e.PatientID, &e.Date, &e.Sport, &e.Strain,
			&e.DurationMin, &e.Calories, &e.AvgHR, &e.MaxHR); err != nil {
			return fmt.Errorf("scan workout entry: %w", err)
		}
		snap.Workouts[e.PatientID] = append(snap.Workouts[e.PatientID], e)
	}
	return rows.Err()
}

func (p *PostgresSource) loadCycles(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT patient_id, entry_date, recovery_pct, strain, resting_hr, COALESCE(hrv_ms, 0)
		FROM cycle_entries ORDER BY patient_id, entry_date`)
	if err != nil {
		return fmt.Errorf("query cycle_entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e CycleEntry
		if err := rows.Scan(&e.PatientID, &e.Date, &e.RecoveryPct, &e.Strain,
			&e.RestingHR, &e.HRVMs); err != nil {
			return fmt.Errorf("scan cycle entry: %w", err)
		}
		snap.Cycles[e.PatientID] = append(snap.Cycles[e.PatientID], e)
	}
	return rows.Err()
}

func (p *PostgresSource) loadJournal(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT patient_id, entry_date, question, answer
		FROM journal_entries ORDER BY patient_id, entry_date`)
	if err != nil {
		return fmt.Errorf("query journal_entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.PatientID, &e.Date, &e.Question, &e.Answer); err != nil {
			return fmt.Errorf("scan journal entry: %w", err)
		}
		snap.Journal[e.PatientID] = append(snap.Journal[e.PatientID], e)
	}
	return rows.Err()
}

func (p *PostgresSource) loadLabs(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT patient_id, entry_date, glucose_mg_dl, hba1c_pct,
		       COALESCE(total_chol_mg_dl, 0), COALESCE(ldl_mg_dl, 0),
		       COALESCE(hdl_mg_dl, 0), COALESCE(creatinine_mg_dl, 0)
		FROM lab_entries ORDER BY patient_id, entry_date`)
	if err != nil {
		return fmt.Errorf("query lab_entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e LabEntry
		if err := rows.Scan(&e.PatientID, &e.Date, &e.GlucoseMgDL, &e.HbA1cPct,
			&e.TotalCholMgDL, &e.LDLMgDL, &e.HDLMgDL, &e.CreatinineMgDL); err != nil {
			return fmt.Errorf("scan lab entry: %w", err)
		}
		snap.Labs[e.PatientID] = append(snap.Labs[e.PatientID], e)
	}
	return rows.Err()
}
