package aggregate

import (
	"testing"
	"time"

	"github.com/nidhogg/medquery/internal/record"
)

func TestTrendOf(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		want   TrendDirection
	}{
		{"empty", nil, TrendStable},
		{"single point", []float64{80}, TrendStable},
		{"rising", []float64{60, 70, 80, 90}, TrendImproving},
		{"falling", []float64{90, 80, 70, 60}, TrendDeclining},
		{"flat", []float64{75, 75, 75, 75}, TrendStable},
		{"noise within epsilon", []float64{75, 75.01, 75, 75.02}, TrendStable},
	}
	for _, c := range cases {
		if got := trendOf(c.series); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestSummarizeSleep(t *testing.T) {
	rows := []record.SleepEntry{
		{DurationMin: 400, EfficiencyPct: 80, PerformancePct: 60},
		{DurationMin: 420, EfficiencyPct: 85, PerformancePct: 75},
		{DurationMin: 440, EfficiencyPct: 90, PerformancePct: 90},
	}
	s := summarizeSleep(rows)
	if s.Nights != 3 {
		t.Fatalf("got %d nights, want 3", s.Nights)
	}
	if s.MeanDurationMin != 420 {
		t.Errorf("got mean duration %v, want 420", s.MeanDurationMin)
	}
	if s.LatestPerformance != 90 {
		t.Errorf("got latest performance %v, want 90", s.LatestPerformance)
	}
	if s.Trend != TrendImproving {
		t.Errorf("got trend %q, want improving", s.Trend)
	}
	if s.Quality["good"] != 1 || s.Quality["fair"] != 1 || s.Quality["poor"] != 1 {
		t.Errorf("unexpected quality distribution: %v", s.Quality)
	}
}

func TestSummarizeSleepEmpty(t *testing.T) {
	s := summarizeSleep(nil)
	if s.Nights != 0 || s.Trend != TrendStable {
		t.Fatalf("unexpected empty summary: %+v", s)
	}
}

func TestSummarizeVitalsFlags(t *testing.T) {
	rows := []record.CycleEntry{
		{RecoveryPct: 30, RestingHR: 105, HRVMs: 22, Strain: 12},
		{RecoveryPct: 28, RestingHR: 110, HRVMs: 20, Strain: 14},
	}
	s := summarizeVitals(rows)
	if s.Readings != 2 {
		t.Fatalf("got %d readings, want 2", s.Readings)
	}
	if len(s.Flags) != 2 {
		t.Fatalf("got flags %v, want resting HR and recovery flags", s.Flags)
	}
	if s.Latest == nil || s.Latest.RestingHR != 110 {
		t.Errorf("latest reading wrong: %+v", s.Latest)
	}
}

func TestSummarizeVitalsNoFlags(t *testing.T) {
	s := summarizeVitals([]record.CycleEntry{
		{RecoveryPct: 70, RestingHR: 58, HRVMs: 65, Strain: 10},
	})
	if len(s.Flags) != 0 {
		t.Errorf("healthy readings flagged: %v", s.Flags)
	}
}

func TestSummarizeLabsFlags(t *testing.T) {
	s := summarizeLabs([]record.LabEntry{
		{GlucoseMgDL: 140, HbA1cPct: 7.1},
		{GlucoseMgDL: 150, HbA1cPct: 7.4},
	})
	if s.Panels != 2 {
		t.Fatalf("got %d panels, want 2", s.Panels)
	}
	if len(s.Flags) != 2 {
		t.Errorf("got flags %v, want glucose and HbA1c flags", s.Flags)
	}
	if s.Latest == nil || s.Latest.GlucoseMgDL != 150 {
		t.Errorf("latest panel wrong: %+v", s.Latest)
	}
}

func TestSummarizeAdherence(t *testing.T) {
	medQ := "Did you take your medication today?"
	rows := []record.JournalEntry{
		{Question: medQ, Answer: true},
		{Question: medQ, Answer: true},
		{Question: medQ, Answer: false},
		{Question: medQ, Answer: true},
		{Question: "Did you feel rested?", Answer: true},
	}
	s := summarizeAdherence(rows)
	if !s.Sufficient {
		t.Fatal("expected sufficient adherence data")
	}
	if s.Expected != 4 || s.Taken != 3 {
		t.Fatalf("got %d/%d, want 3/4", s.Taken, s.Expected)
	}
	if s.RatePct != 75 {
		t.Errorf("got rate %v, want 75", s.RatePct)
	}
}

func TestSummarizeAdherenceZeroDenominator(t *testing.T) {
	s := summarizeAdherence([]record.JournalEntry{
		{Question: "Did you feel rested?", Answer: true},
	})
	if s.Sufficient {
		t.Fatal("zero medication entries must be insufficient, not 0%")
	}
	if s.RatePct != 0 {
		t.Errorf("got rate %v, want 0", s.RatePct)
	}
}

func TestSummarizeAdherenceBounds(t *testing.T) {
	medQ := "Evening meds taken?"
	for taken := 0; taken <= 5; taken++ {
		var rows []record.JournalEntry
		for i := 0; i < 5; i++ {
			rows = append(rows, record.JournalEntry{Question: medQ, Answer: i < taken})
		}
		s := summarizeAdherence(rows)
		if s.RatePct < 0 || s.RatePct > 100 {
			t.Fatalf("rate %v outside [0, 100]", s.RatePct)
		}
	}
}

func TestSummarizeActivity(t *testing.T) {
	rows := []record.WorkoutEntry{
		{Date: time.Now(), Sport: "running", Strain: 12, DurationMin: 45},
		{Date: time.Now(), Sport: "cycling", Strain: 10, DurationMin: 60},
		{Date: time.Now(), Sport: "running", Strain: 14, DurationMin: 50},
	}
	s := summarizeActivity(rows)
	if s.Workouts != 3 {
		t.Fatalf("got %d workouts, want 3", s.Workouts)
	}
	if len(s.Sports) != 2 {
		t.Errorf("got sports %v, want deduplicated pair", s.Sports)
	}
	if s.MeanStrain != 12 {
		t.Errorf("got mean strain %v, want 12", s.MeanStrain)
	}
}
