package aggregate

import (
	"math"
	"sort"

	"github.com/nidhogg/medquery/internal/record"
)

// slopeEpsilon is the least-squares slope magnitude below which a trend is
// reported as stable rather than a direction.
const slopeEpsilon = 0.05

// vitalsThresholds is the fixed flagging table for vitals readings. Entries
// describe the source's own marking rules; nothing here infers a diagnosis.
var vitalsThresholds = []struct {
	flag  string
	match func(s VitalsSummary) bool
}{
	{"mean resting heart rate above 100 bpm", func(s VitalsSummary) bool { return s.MeanRestingHR > 100 }},
	{"mean recovery below 34%", func(s VitalsSummary) bool { return s.MeanRecoveryPct > 0 && s.MeanRecoveryPct < 34 }},
}

// labThresholds is the fixed flagging table for lab panels.
var labThresholds = []struct {
	flag  string
	match func(s LabsSummary) bool
}{
	{"mean glucose above 125 mg/dL", func(s LabsSummary) bool { return s.MeanGlucose > 125 }},
	{"mean HbA1c above 6.5%", func(s LabsSummary) bool { return s.MeanHbA1c > 6.5 }},
}

func summarizeSleep(rows []record.SleepEntry) *SleepSummary {
	s := &SleepSummary{
		Nights:  len(rows),
		Quality: map[string]int{},
		Trend:   TrendStable,
	}
	if len(rows) == 0 {
		return s
	}

	var durSum, effSum, perfSum float64
	perfSeries := make([]float64, len(rows))
	for i, r := range rows {
		durSum += r.DurationMin
		effSum += r.EfficiencyPct
		perfSum += r.PerformancePct
		perfSeries[i] = r.PerformancePct
		s.Quality[sleepQuality(r.PerformancePct)]++
	}
	n := float64(len(rows))
	s.MeanDurationMin = round1(durSum / n)
	s.MeanEfficiencyPct = round1(effSum / n)
	s.MeanPerformancePct = round1(perfSum / n)
	s.LatestPerformance = rows[len(rows)-1].PerformancePct
	s.Trend = trendOf(perfSeries)
	return s
}

// sleepQuality buckets a performance percentage into the distribution the
// summary reports.
func sleepQuality(performancePct float64) string {
	switch {
	case performancePct >= 85:
		return "good"
	case performancePct >= 70:
		return "fair"
	default:
		return "poor"
	}
}

func summarizeVitals(rows []record.CycleEntry) *VitalsSummary {
	s := &VitalsSummary{Readings: len(rows)}
	if len(rows) == 0 {
		return s
	}

	var rhrSum, hrvSum, recSum float64
	for _, r := range rows {
		rhrSum += r.RestingHR
		hrvSum += r.HRVMs
		recSum += r.RecoveryPct
	}
	n := float64(len(rows))
	s.MeanRestingHR = round1(rhrSum / n)
	s.MeanHRVMs = round1(hrvSum / n)
	s.MeanRecoveryPct = round1(recSum / n)

	latest := rows[len(rows)-1]
	s.Latest = &VitalsReading{
		Date:        latest.Date,
		RecoveryPct: latest.RecoveryPct,
		RestingHR:   latest.RestingHR,
		HRVMs:       latest.HRVMs,
		Strain:      latest.Strain,
	}
	for _, t := range vitalsThresholds {
		if t.match(*s) {
			s.Flags = append(s.Flags, t.flag)
		}
	}
	return s
}

func summarizeLabs(rows []record.LabEntry) *LabsSummary {
	s := &LabsSummary{Panels: len(rows)}
	if len(rows) == 0 {
		return s
	}

	var gluSum, a1cSum float64
	for _, r := range rows {
		gluSum += r.GlucoseMgDL
		a1cSum += r.HbA1cPct
	}
	n := float64(len(rows))
	s.MeanGlucose = round1(gluSum / n)
	s.MeanHbA1c = round1(a1cSum / n)

	latest := rows[len(rows)-1]
	s.Latest = &latest
	for _, t := range labThresholds {
		if t.match(*s) {
			s.Flags = append(s.Flags, t.flag)
		}
	}
	return s
}

// summarizeAdherence computes taken/expected over medication journal entries.
// A zero denominator yields Sufficient=false, never a divide-by-zero.
func summarizeAdherence(rows []record.JournalEntry) *AdherenceSummary {
	s := &AdherenceSummary{}
	for _, r := range rows {
		if !r.MedicationRelated() {
			continue
		}
		s.Expected++
		if r.Answer {
			s.Taken++
		}
	}
	if s.Expected == 0 {
		return s
	}
	s.Sufficient = true
	s.RatePct = round1(100 * float64(s.Taken) / float64(s.Expected))
	// Clamp guards against any future counting change; the ratio is a
	// contract bounded to [0, 100].
	s.RatePct = math.Max(0, math.Min(100, s.RatePct))
	return s
}

func summarizeActivity(rows []record.WorkoutEntry) *ActivitySummary {
	s := &ActivitySummary{Workouts: len(rows)}
	if len(rows) == 0 {
		return s
	}

	var strainSum, durSum float64
	seen := map[string]bool{}
	for _, r := range rows {
		strainSum += r.Strain
		durSum += r.DurationMin
		if r.Sport != "" && !seen[r.Sport] {
			seen[r.Sport] = true
			s.Sports = append(s.Sports, r.Sport)
		}
	}
	sort.Strings(s.Sports)
	n := float64(len(rows))
	s.MeanStrain = round1(strainSum / n)
	s.MeanDurationMin = round1(durSum / n)
	latest := rows[len(rows)-1]
	s.Latest = &latest
	return s
}

// trendOf returns the sign of the least-squares slope over an evenly indexed
// series. Fewer than two points, or a near-zero slope, is stable.
func trendOf(series []float64) TrendDirection {
	if len(series) < 2 {
		return TrendStable
	}
	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return TrendStable
	}
	slope := (n*sumXY - sumX*sumY) / denom
	switch {
	case slope > slopeEpsilon:
		return TrendImproving
	case slope < -slopeEpsilon:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
