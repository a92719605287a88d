package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/medquery/internal/aggregate"
	"github.com/nidhogg/medquery/internal/api"
	"github.com/nidhogg/medquery/internal/assistant"
	"github.com/nidhogg/medquery/internal/provider"
	"github.com/nidhogg/medquery/internal/record"
	"github.com/nidhogg/medquery/internal/registry"
	"github.com/nidhogg/medquery/internal/resolve"
	"github.com/nidhogg/medquery/internal/route"
)

var testSource *record.PostgresSource

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start PostgreSQL, migrate, seed
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()
	testPGDSN = pgDSN

	testSource, err = record.NewPostgresSource(pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg source: %v\n", err)
		os.Exit(1)
	}
	defer testSource.Close()

	if err := testSource.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	if err := seedRecords(ctx, pgDSN); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}

	// 2. Start Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()
	testRedisURL = redisURL

	os.Exit(m.Run())
}

func TestPostgresSnapshotFlow(t *testing.T) {
	ctx := context.Background()
	store := record.NewStore(testLogger)
	if err := store.Load(ctx, testSource); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	patients, err := store.Patients()
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	if len(patients) != 2 {
		t.Fatalf("got %d patients, want 2", len(patients))
	}

	ben, err := store.FindPatient("ben_smith")
	if err != nil {
		t.Fatalf("find patient: %v", err)
	}
	if ben.ChartID != "P001" || !ben.Connected(record.FamilySleep) {
		t.Errorf("unexpected patient: %+v", ben)
	}
	if ben.LastVisit.IsZero() {
		t.Error("last_visit not loaded")
	}

	now := time.Now()
	set, err := store.MetricsFor("ben_smith", record.FamilySleep, now.AddDate(0, 0, -7), now)
	if err != nil {
		t.Fatalf("sleep metrics: %v", err)
	}
	if len(set.Sleep) != 2 {
		t.Fatalf("got %d sleep rows, want 2", len(set.Sleep))
	}
	if set.Sleep[0].Date.After(set.Sleep[1].Date) {
		t.Error("sleep rows not ascending by date")
	}

	// A patient without wearables surfaces not-connected, not empty.
	_, err = store.MetricsFor("mike_jones", record.FamilyWorkouts, now.AddDate(0, 0, -7), now)
	var ncErr *record.NotConnectedError
	if !errors.As(err, &ncErr) {
		t.Fatalf("got %v, want NotConnectedError", err)
	}

	visits, err := store.VisitsFor("ben_smith")
	if err != nil {
		t.Fatalf("visits: %v", err)
	}
	if len(visits) != 2 {
		t.Errorf("got %d visits, want 2", len(visits))
	}
}

func TestRedisLimiterSharedBudget(t *testing.T) {
	ctx := context.Background()

	// Two limiter instances stand in for two processes sharing one Redis.
	a, err := registry.NewRedisLimiter(testRedisURL)
	if err != nil {
		t.Fatalf("limiter a: %v", err)
	}
	defer a.Close()
	b, err := registry.NewRedisLimiter(testRedisURL)
	if err != nil {
		t.Fatalf("limiter b: %v", err)
	}
	defer b.Close()

	const budget = 3
	limiters := []*registry.RedisLimiter{a, b, a, b}
	for i, l := range limiters[:budget] {
		ok, err := l.Allow(ctx, "e2e_shared_tool", budget)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("call %d denied inside budget", i)
		}
	}
	ok, err := limiters[budget].Allow(ctx, "e2e_shared_tool", budget)
	if err != nil {
		t.Fatalf("allow over budget: %v", err)
	}
	if ok {
		t.Fatal("budget not shared across limiter instances")
	}

	// A different tool owns its own counter.
	ok, err = a.Allow(ctx, "e2e_other_tool", budget)
	if err != nil {
		t.Fatalf("allow other tool: %v", err)
	}
	if !ok {
		t.Fatal("unrelated tool denied")
	}
}

// echoProvider satisfies provider.Provider with a fixed response.
type echoProvider struct{ text string }

func (e *echoProvider) ID() string   { return "echo" }
func (e *echoProvider) Name() string { return "Echo" }
func (e *echoProvider) Generate(context.Context, string) (string, error) {
	return e.text, nil
}
func (e *echoProvider) HealthCheck(context.Context) error { return nil }

func TestQueryPipelineOverHTTP(t *testing.T) {
	ctx := context.Background()
	store := record.NewStore(testLogger)
	if err := store.Load(ctx, testSource); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	limiter, err := registry.NewRedisLimiter(testRedisURL)
	if err != nil {
		t.Fatalf("redis limiter: %v", err)
	}
	defer limiter.Close()

	provRouter := provider.NewRouter(testLogger)
	provRouter.Register(&echoProvider{text: "Ben slept well this week."})

	reg := registry.Default(limiter, testLogger)
	resolver := resolve.New(store, testLogger)
	router := route.New(reg, resolver, 30, testLogger)
	aggregator := aggregate.New(store, testLogger)
	service := assistant.New(store, reg, resolver, router, aggregator, provRouter, 5*time.Second, testLogger)

	h := api.NewHandler(service, store, reg, provRouter, testLogger)
	ts := httptest.NewServer(h.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	var health struct {
		Ready    bool `json:"ready"`
		Patients int  `json:"patients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if !health.Ready || health.Patients != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}

	body, _ := json.Marshal(map[string]string{
		"question": "How did Ben sleep over the past week?",
	})
	resp, err = http.Post(ts.URL+"/api/query", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST query: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	var env assistant.AnswerEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Kind != route.KindPatientData {
		t.Errorf("got kind %q, want patient_data", env.Kind)
	}
	if env.PatientID != "ben_smith" {
		t.Errorf("got patient %q, want ben_smith", env.PatientID)
	}
	if env.Answer != "Ben slept well this week." {
		t.Errorf("got answer %q", env.Answer)
	}
	if env.Context == nil || len(env.Context.Sections) == 0 {
		t.Error("envelope missing aggregated context")
	}
}
