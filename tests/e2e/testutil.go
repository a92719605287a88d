package e2e

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

// Suppress unused import warning for testcontainers base package.
var _ = testcontainers.GenericContainerRequest{}

// Package-level shared state, set by TestMain and used by all subtests.
var (
	testLogger   *zap.Logger
	testPGDSN    string
	testRedisURL string
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("medquery_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// seedRecords inserts a small clinic into the migrated database: one patient
// with wearable sources and recent entries, one with none. Dates are relative
// to now so window queries behave the same on any day the suite runs.
func seedRecords(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	now := time.Now()
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset) }

	stmts := []struct {
		sql  string
		args []interface{}
	}{
		{
			`INSERT INTO patients (id, chart_id, first_name, last_name, age, sex,
				height_cm, weight_kg, blood_type, conditions, medications, email,
				last_visit, device_sources)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			[]interface{}{"ben_smith", "P001", "Ben", "Smith", 34, "male",
				180.0, 82.5, "O+", []string{"hypertension"}, []string{"lisinopril"},
				"ben@example.com", day(-10), []string{"sleep", "cycles", "labs"}},
		},
		{
			`INSERT INTO patients (id, chart_id, first_name, last_name, age, sex,
				conditions, medications, device_sources)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			[]interface{}{"mike_jones", "P002", "Mike", "Jones", 51, "male",
				[]string{}, []string{}, []string{}},
		},
		{
			`INSERT INTO visits (patient_id, visit_date, visit_type, vitals, notes)
			 VALUES ($1, $2, $3, $4, $5)`,
			[]interface{}{"ben_smith", day(-10), "checkup", "BP 138/88", "Discussed medication adherence."},
		},
		{
			`INSERT INTO visits (patient_id, visit_date, visit_type, vitals, notes)
			 VALUES ($1, $2, $3, $4, $5)`,
			[]interface{}{"ben_smith", day(-90), "annual", "BP 142/90", "Started lisinopril."},
		},
		{
			`INSERT INTO sleep_entries (patient_id, entry_date, duration_min,
				efficiency_pct, performance_pct, rem_min, deep_min)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			[]interface{}{"ben_smith", day(-2), 420, 90.0, 85.0, 95, 80},
		},
		{
			`INSERT INTO sleep_entries (patient_id, entry_date, duration_min,
				efficiency_pct, performance_pct, rem_min, deep_min)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			[]interface{}{"ben_smith", day(-1), 395, 87.5, 81.0, 88, 72},
		},
		{
			`INSERT INTO cycle_entries (patient_id, entry_date, recovery_pct,
				strain, resting_hr, hrv_ms)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			[]interface{}{"ben_smith", day(-1), 62.0, 11.4, 58.0, 64.0},
		},
		{
			`INSERT INTO lab_entries (patient_id, entry_date, glucose_mg_dl,
				hba1c_pct, total_chol_mg_dl, ldl_mg_dl, hdl_mg_dl, creatinine_mg_dl)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			[]interface{}{"ben_smith", day(-20), 98.0, 5.4, 185.0, 110.0, 52.0, 0.9},
		},
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s.sql, s.args...); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}
