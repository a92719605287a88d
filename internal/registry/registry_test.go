package registry

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return Default(NewMemoryLimiter(), zap.NewNop())
}

func TestDefaultCatalog(t *testing.T) {
	r := newTestRegistry(t)
	all := r.List(true)
	if len(all) != 9 {
		t.Fatalf("got %d tools, want 9", len(all))
	}
	// Registration order is stable.
	if all[0].Name != ToolMedicalQuery {
		t.Errorf("first tool is %q, want %q", all[0].Name, ToolMedicalQuery)
	}
	if got := len(r.ByCategory(CategoryPatientData)); got != 7 {
		t.Errorf("got %d patient_data tools, want 7", got)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register(Definition{Name: ToolMedicalQuery})
	if err == nil {
		t.Fatal("duplicate registration must fail")
	}
}

func TestSetEnabledFiltersList(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SetEnabled(ToolPatientLabs, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range r.List(false) {
		if d.Name == ToolPatientLabs {
			t.Fatal("disabled tool still listed without includeDisabled")
		}
	}
	found := false
	for _, d := range r.List(true) {
		if d.Name == ToolPatientLabs && !d.Enabled {
			found = true
		}
	}
	if !found {
		t.Fatal("disabled tool missing from includeDisabled list")
	}
	if err := r.SetEnabled("no_such_tool", true); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestValidateDisabledTool(t *testing.T) {
	r := newTestRegistry(t)
	r.SetEnabled(ToolPatientLabs, false)
	_, err := r.Validate(ToolPatientLabs, map[string]any{"patient_identifier": "ben_smith"})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if valErr.Reason != "tool disabled" {
		t.Errorf("got reason %q, want tool disabled", valErr.Reason)
	}
}

func TestValidateUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Validate("no_such_tool", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestValidateMissingRequired(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Validate(ToolSleepPattern, map[string]any{"days": 7})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("got %v, want ValidationError for missing patient_identifier", err)
	}
}

func TestValidateUnexpectedArgument(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Validate(ToolSleepPattern, map[string]any{
		"patient_identifier": "ben_smith",
		"verbose":            true,
	})
	if err == nil {
		t.Fatal("unexpected argument must be rejected")
	}
}

func TestValidateCoercion(t *testing.T) {
	r := newTestRegistry(t)
	// JSON numbers decode as float64; days must come back as int.
	args, err := r.Validate(ToolSleepPattern, map[string]any{
		"patient_identifier": "ben_smith",
		"days":               float64(7),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d, ok := args["days"].(int); !ok || d != 7 {
		t.Fatalf("days coerced to %T %v, want int 7", args["days"], args["days"])
	}

	if _, err := r.Validate(ToolSleepPattern, map[string]any{
		"patient_identifier": "ben_smith",
		"days":               7.5,
	}); err == nil {
		t.Fatal("fractional integer must be rejected")
	}
	if _, err := r.Validate(ToolSleepPattern, map[string]any{
		"patient_identifier": "ben_smith",
		"days":               200,
	}); err == nil {
		t.Fatal("days above maximum must be rejected")
	}
}

func TestValidateEnumAndArray(t *testing.T) {
	r := newTestRegistry(t)
	args, err := r.Validate(ToolSymptomChecker, map[string]any{
		"symptoms": []any{"headache", "fever"},
		"sex":      "male",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	symptoms, ok := args["symptoms"].([]string)
	if !ok || len(symptoms) != 2 {
		t.Fatalf("symptoms coerced to %T, want []string of 2", args["symptoms"])
	}

	if _, err := r.Validate(ToolSymptomChecker, map[string]any{
		"symptoms": []any{"headache"},
		"sex":      "unknown",
	}); err == nil {
		t.Fatal("enum violation must be rejected")
	}
}

func TestAllowBudget(t *testing.T) {
	logger := zap.NewNop()
	r := New(NewMemoryLimiter(), logger)
	if err := r.Register(Definition{Name: "tiny", Enabled: true, RateLimit: 2}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.Allow(ctx, "tiny"); err != nil {
			t.Fatalf("call %d unexpectedly limited: %v", i+1, err)
		}
	}
	err := r.Allow(ctx, "tiny")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
}

func TestAllowUnlimited(t *testing.T) {
	r := New(NewMemoryLimiter(), zap.NewNop())
	if err := r.Register(Definition{Name: "free", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if err := r.Allow(context.Background(), "free"); err != nil {
			t.Fatalf("unlimited tool limited: %v", err)
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := newTestRegistry(t)
	d, _ := r.Get(ToolMedicalQuery)
	d.Enabled = false
	again, _ := r.Get(ToolMedicalQuery)
	if !again.Enabled {
		t.Fatal("mutating a Get result leaked into the registry")
	}
}
