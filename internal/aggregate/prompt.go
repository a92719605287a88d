package aggregate

import (
	"fmt"
	"strings"
)

// promptPreamble frames every downstream request. The model organizes and
// summarizes; it does not make clinical decisions.
const promptPreamble = `You are a medical data assistant for healthcare professionals. Your role is to organize, summarize, and display medical information in a clear, structured format. Do not make clinical decisions or recommendations.

Focus on:
- Organizing patient data into clear, readable formats
- Summarizing previous checkups, diagnoses, and test results
- Calculating and displaying averages for vital signs and health metrics
- Presenting information in tables, lists, or other structured markdown formats
- Being concise and factual

Use proper markdown formatting including tables when displaying structured data. Present facts objectively without clinical interpretation or recommendations.`

// RenderPrompt shapes the aggregated context plus the original question into
// the single prompt string handed to the model.
func RenderPrompt(question string, c *Context) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n")

	if c != nil {
		fmt.Fprintf(&b, "PATIENT CONTEXT (%s, window: last %d days):\n", c.Patient.Name(), c.Window.Days)
		for _, s := range c.Sections {
			b.WriteString(FormatSection(&s))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n", question)
	b.WriteString("\nPlease provide a focused, professional response:")
	return b.String()
}

// RenderGeneralPrompt shapes a general medical-knowledge question with no
// patient context.
func RenderGeneralPrompt(question string) string {
	return RenderPrompt(question, nil)
}

// RenderSymptomPrompt shapes the symptom checker's structured guidance
// request.
func RenderSymptomPrompt(symptoms []string, age int, sex string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nPlease analyze the following symptoms and provide general guidance:\n\n")
	fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(symptoms, ", "))
	if age > 0 {
		fmt.Fprintf(&b, "Age: %d\n", age)
	}
	if sex != "" {
		fmt.Fprintf(&b, "Sex: %s\n", sex)
	}
	b.WriteString("\nProvide:\n")
	b.WriteString("1. Possible general categories these symptoms might fall under\n")
	b.WriteString("2. When to seek medical attention\n")
	b.WriteString("3. General self-care measures (if appropriate)\n")
	b.WriteString("4. Red flags that require immediate medical attention\n")
	return b.String()
}

// FormatSection renders one section as human-readable lines, used both in
// prompts and as the text form of a structured tool result.
func FormatSection(s *Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", s.Tool)

	if s.Status != StatusOK {
		fmt.Fprintf(&b, "[%s] %s\n", s.Status, s.Message)
		if s.Status != StatusInsufficientData {
			return b.String()
		}
	}

	switch {
	case s.Overview != nil:
		o := s.Overview
		fmt.Fprintf(&b, "Name: %s (chart %s)\n", o.Name, o.ChartID)
		fmt.Fprintf(&b, "Age: %d, Sex: %s", o.Age, o.Sex)
		if o.BloodType != "" {
			fmt.Fprintf(&b, ", Blood type: %s", o.BloodType)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "Conditions: %s\n", listOrNone(o.Conditions))
		fmt.Fprintf(&b, "Medications: %s\n", listOrNone(o.Medications))
		fmt.Fprintf(&b, "Total visits: %d\n", o.TotalVisits)
		fmt.Fprintf(&b, "Connected device sources: %s\n", listOrNone(o.ConnectedSources))

	case s.Sleep != nil:
		sl := s.Sleep
		fmt.Fprintf(&b, "Nights: %d\n", sl.Nights)
		fmt.Fprintf(&b, "Average duration: %.1f min (%.1f h)\n", sl.MeanDurationMin, sl.MeanDurationMin/60)
		fmt.Fprintf(&b, "Average efficiency: %.1f%%\n", sl.MeanEfficiencyPct)
		fmt.Fprintf(&b, "Average performance: %.1f%%\n", sl.MeanPerformancePct)
		fmt.Fprintf(&b, "Quality distribution: good=%d fair=%d poor=%d\n",
			sl.Quality["good"], sl.Quality["fair"], sl.Quality["poor"])
		fmt.Fprintf(&b, "Trend: %s\n", sl.Trend)

	case s.Vitals != nil:
		v := s.Vitals
		fmt.Fprintf(&b, "Readings: %d\n", v.Readings)
		if v.Latest != nil {
			fmt.Fprintf(&b, "Latest (%s): recovery %.0f%%, resting HR %.0f bpm, HRV %.0f ms\n",
				v.Latest.Date.Format("2006-01-02"), v.Latest.RecoveryPct, v.Latest.RestingHR, v.Latest.HRVMs)
		}
		fmt.Fprintf(&b, "Window means: resting HR %.1f bpm, HRV %.1f ms, recovery %.1f%%\n",
			v.MeanRestingHR, v.MeanHRVMs, v.MeanRecoveryPct)
		for _, flag := range v.Flags {
			fmt.Fprintf(&b, "Flag: %s\n", flag)
		}

	case s.Labs != nil:
		l := s.Labs
		fmt.Fprintf(&b, "Panels: %d\n", l.Panels)
		if l.Latest != nil {
			fmt.Fprintf(&b, "Latest (%s): glucose %.0f mg/dL, HbA1c %.1f%%, total cholesterol %.0f mg/dL (LDL %.0f / HDL %.0f), creatinine %.2f mg/dL\n",
				l.Latest.Date.Format("2006-01-02"), l.Latest.GlucoseMgDL, l.Latest.HbA1cPct,
				l.Latest.TotalCholMgDL, l.Latest.LDLMgDL, l.Latest.HDLMgDL, l.Latest.CreatinineMgDL)
		}
		fmt.Fprintf(&b, "Window means: glucose %.1f mg/dL, HbA1c %.1f%%\n", l.MeanGlucose, l.MeanHbA1c)
		for _, flag := range l.Flags {
			fmt.Fprintf(&b, "Flag: %s\n", flag)
		}

	case s.Adherence != nil:
		a := s.Adherence
		if a.Sufficient {
			fmt.Fprintf(&b, "Adherence: %.1f%% (%d of %d expected entries taken)\n",
				a.RatePct, a.Taken, a.Expected)
		}

	case s.Activity != nil:
		a := s.Activity
		fmt.Fprintf(&b, "Workouts: %d\n", a.Workouts)
		fmt.Fprintf(&b, "Average strain: %.1f, average duration: %.1f min\n", a.MeanStrain, a.MeanDurationMin)
		if len(a.Sports) > 0 {
			fmt.Fprintf(&b, "Sports: %s\n", strings.Join(a.Sports, ", "))
		}
		if a.Latest != nil {
			fmt.Fprintf(&b, "Latest: %s on %s (strain %.1f)\n",
				a.Latest.Sport, a.Latest.Date.Format("2006-01-02"), a.Latest.Strain)
		}

	case s.Visits != nil:
		v := s.Visits
		fmt.Fprintf(&b, "Total visits: %d\n", v.Total)
		for i, visit := range v.Visits {
			if i >= 5 {
				fmt.Fprintf(&b, "... and %d earlier visits\n", v.Total-i)
				break
			}
			fmt.Fprintf(&b, "- %s: %s", visit.Date.Format("2006-01-02"), visit.Type)
			if visit.Notes != "" {
				fmt.Fprintf(&b, " (%s)", visit.Notes)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatContext renders the full context for display or degraded responses.
func FormatContext(c *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Aggregated context for %s (last %d days)\n\n", c.Patient.Name(), c.Window.Days)
	for _, s := range c.Sections {
		b.WriteString(FormatSection(&s))
		b.WriteString("\n")
	}
	return b.String()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
