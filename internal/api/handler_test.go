package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nidhogg/medquery/internal/aggregate"
	"github.com/nidhogg/medquery/internal/assistant"
	"github.com/nidhogg/medquery/internal/provider"
	"github.com/nidhogg/medquery/internal/record"
	"github.com/nidhogg/medquery/internal/registry"
	"github.com/nidhogg/medquery/internal/resolve"
	"github.com/nidhogg/medquery/internal/route"
	"go.uber.org/zap"
)

// echoProvider satisfies provider.Provider with a fixed response.
type echoProvider struct {
	text string
	err  error
}

func (e *echoProvider) ID() string   { return "echo" }
func (e *echoProvider) Name() string { return "Echo" }
func (e *echoProvider) Generate(context.Context, string) (string, error) {
	return e.text, e.err
}
func (e *echoProvider) HealthCheck(context.Context) error { return nil }

func newTestHandler(t *testing.T, ready bool) (*Handler, http.Handler) {
	t.Helper()
	logger := zap.NewNop()

	store := record.NewStore(logger)
	if ready {
		now := time.Now()
		snap := record.NewSnapshot()
		ben := &record.Patient{
			ID: "ben_smith", ChartID: "P001",
			FirstName: "Ben", LastName: "Smith", Age: 34, Sex: "male",
			Sources: map[record.MetricFamily]bool{record.FamilySleep: true},
		}
		snap.Patients[ben.ID] = ben
		snap.Sleep[ben.ID] = []record.SleepEntry{
			{PatientID: ben.ID, Date: now.AddDate(0, 0, -1), DurationMin: 410, EfficiencyPct: 89, PerformancePct: 84},
		}
		store.SetSnapshot(snap)
	}

	provRouter := provider.NewRouter(logger)
	provRouter.Register(&echoProvider{text: "model answer"})

	reg := registry.Default(registry.NewMemoryLimiter(), logger)
	resolver := resolve.New(store, logger)
	router := route.New(reg, resolver, 30, logger)
	aggregator := aggregate.New(store, logger)
	service := assistant.New(store, reg, resolver, router, aggregator, provRouter, time.Second, logger)

	h := NewHandler(service, store, reg, provRouter, logger)
	return h, h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func putJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPut, ts.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var health struct {
		Status   string `json:"status"`
		Ready    bool   `json:"ready"`
		Provider string `json:"provider"`
		Patients int    `json:"patients"`
	}
	decodeJSON(t, resp, &health)
	if !health.Ready || health.Status != "ok" {
		t.Errorf("unexpected health: %+v", health)
	}
	if health.Provider != "echo" || health.Patients != 1 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestQueryEndpoint(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/query", map[string]string{
		"question": "How did Ben sleep this week?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var env assistant.AnswerEnvelope
	decodeJSON(t, resp, &env)
	if env.Kind != route.KindPatientData {
		t.Errorf("got kind %q, want patient_data", env.Kind)
	}
	if env.Answer != "model answer" {
		t.Errorf("got answer %q", env.Answer)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/query", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestQueryNotReady(t *testing.T) {
	_, router := newTestHandler(t, false)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/query", map[string]string{"question": "anything"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListPatients(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/patients")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var patients []struct {
		ID string `json:"ID"`
	}
	decodeJSON(t, resp, &patients)
	if len(patients) != 1 {
		t.Fatalf("got %d patients, want 1", len(patients))
	}
}

func TestToolCatalogEndpoints(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/tools")
	var tools []registry.Definition
	decodeJSON(t, resp, &tools)
	if len(tools) != 9 {
		t.Fatalf("got %d tools, want 9", len(tools))
	}

	resp = getJSON(t, ts, "/api/tools/"+registry.ToolSleepPattern)
	var def registry.Definition
	decodeJSON(t, resp, &def)
	if def.Name != registry.ToolSleepPattern {
		t.Errorf("got tool %q", def.Name)
	}

	resp = getJSON(t, ts, "/api/tools/no_such_tool")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDisableToolRoundTrip(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := putJSON(t, ts, "/api/tools/"+registry.ToolPatientLabs+"/enabled", map[string]bool{"enabled": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var def registry.Definition
	decodeJSON(t, resp, &def)
	if def.Enabled {
		t.Fatal("tool still enabled after disable")
	}

	// Disabled tools drop out of the default listing.
	resp = getJSON(t, ts, "/api/tools")
	var tools []registry.Definition
	decodeJSON(t, resp, &tools)
	if len(tools) != 8 {
		t.Errorf("got %d tools, want 8", len(tools))
	}

	// Invoking a disabled tool is a validation error.
	resp = postJSON(t, ts, "/api/tools/"+registry.ToolPatientLabs+"/invoke", map[string]interface{}{
		"args": map[string]interface{}{"patient_identifier": "Ben"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInvokeEndpoint(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/tools/"+registry.ToolSleepPattern+"/invoke", map[string]interface{}{
		"args": map[string]interface{}{"patient_identifier": "Ben", "days": 7},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var result assistant.ToolResult
	decodeJSON(t, resp, &result)
	if result.Status != "ok" {
		t.Errorf("got status %q, want ok", result.Status)
	}
	if result.Section == nil || result.Section.Sleep == nil {
		t.Errorf("missing sleep section: %+v", result)
	}
}

func TestInvokeValidationError(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/tools/"+registry.ToolSleepPattern+"/invoke", map[string]interface{}{
		"args": map[string]interface{}{"days": 7},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInvokeRateLimit(t *testing.T) {
	_, router := newTestHandler(t, true)
	ts := httptest.NewServer(router)
	defer ts.Close()

	var last int
	for i := 0; i < 11; i++ {
		resp := postJSON(t, ts, "/api/tools/"+registry.ToolMedicalQuery+"/invoke", map[string]interface{}{
			"args": map[string]interface{}{"question": "what is a fever?"},
		})
		last = resp.StatusCode
		resp.Body.Close()
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", last)
	}
}

func TestQueryDegradedDownstream(t *testing.T) {
	logger := zap.NewNop()
	store := record.NewStore(logger)
	snap := record.NewSnapshot()
	snap.Patients["ben_smith"] = &record.Patient{
		ID: "ben_smith", FirstName: "Ben", LastName: "Smith",
		Sources: map[record.MetricFamily]bool{},
	}
	store.SetSnapshot(snap)

	provRouter := provider.NewRouter(logger)
	provRouter.Register(&echoProvider{err: context.DeadlineExceeded})

	reg := registry.Default(registry.NewMemoryLimiter(), logger)
	resolver := resolve.New(store, logger)
	rt := route.New(reg, resolver, 30, logger)
	aggregator := aggregate.New(store, logger)
	service := assistant.New(store, reg, resolver, rt, aggregator, provRouter, time.Second, logger)
	h := NewHandler(service, store, reg, provRouter, logger)

	ts := httptest.NewServer(h.Router())
	defer ts.Close()

	resp := postJSON(t, ts, "/api/query", map[string]string{"question": "How is Ben doing?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("degraded answer should still be 200, got %d", resp.StatusCode)
	}
	var env assistant.AnswerEnvelope
	decodeJSON(t, resp, &env)
	if !env.Degraded {
		t.Fatal("expected degraded envelope")
	}
}
