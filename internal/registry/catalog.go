package registry

import "go.uber.org/zap"

// Categories used by the builtin catalog.
const (
	CategoryGeneral     = "general"
	CategoryPatientData = "patient_data"
)

// Builtin tool names.
const (
	ToolMedicalQuery        = "medical_query"
	ToolSymptomChecker      = "symptom_checker"
	ToolPatientOverview     = "get_patient_overview"
	ToolSleepPattern        = "get_patient_sleep_pattern"
	ToolPatientVitals       = "get_patient_vitals"
	ToolPatientLabs         = "get_patient_labs"
	ToolMedicationAdherence = "get_medication_adherence"
	ToolPatientActivity     = "get_patient_activity"
	ToolPatientVisits       = "get_patient_visits"
)

func f64(v float64) *float64 { return &v }

var patientParam = Param{
	Name:        "patient_identifier",
	Type:        TypeString,
	Description: "Patient name or id (e.g. 'Ben Smith' or 'ben_smith')",
	Required:    true,
}

var daysParam = Param{
	Name:        "days",
	Type:        TypeInteger,
	Description: "Number of days to analyze (default: 30)",
	Min:         f64(1),
	Max:         f64(90),
}

// Default returns a registry populated with the builtin medical tool catalog.
func Default(limiter Limiter, logger *zap.Logger) *Registry {
	r := New(limiter, logger)
	for _, def := range builtinCatalog() {
		// Builtin names are unique by construction.
		_ = r.Register(def)
	}
	return r
}

func builtinCatalog() []Definition {
	return []Definition{
		{
			Name:        ToolMedicalQuery,
			Description: "Answer medical questions with professional, evidence-based responses",
			Category:    CategoryGeneral,
			Enabled:     true,
			RateLimit:   10,
			Params: []Param{
				{Name: "question", Type: TypeString, Description: "The medical question to answer", Required: true},
				{Name: "context", Type: TypeString, Description: "Additional context or patient information"},
			},
		},
		{
			Name:        ToolSymptomChecker,
			Description: "Analyze symptoms and provide general guidance (not a diagnosis)",
			Category:    CategoryGeneral,
			Enabled:     true,
			RateLimit:   15,
			Params: []Param{
				{Name: "symptoms", Type: TypeStringArray, Description: "List of symptoms to analyze", Required: true},
				{Name: "age", Type: TypeInteger, Description: "Patient age", Min: f64(0), Max: f64(120)},
				{Name: "sex", Type: TypeString, Description: "Patient sex", Enum: []string{"male", "female", "other"}},
			},
		},
		{
			Name:        ToolPatientOverview,
			Description: "Comprehensive patient overview: demographics, conditions, recent data",
			Category:    CategoryPatientData,
			Enabled:     true,
			RateLimit:   10,
			Params:      []Param{patientParam},
		},
		{
			Name:        ToolSleepPattern,
			Description: "Sleep pattern and analysis for a patient over a time period",
			Category:    CategoryPatientData,
			Enabled:     true,
			RateLimit:   20,
			Params:      []Param{patientParam, daysParam},
		},
		{
			Name:        ToolPatientVitals,
			Description: "Vital signs summary and recent readings for a patient",
			Category:    CategoryPatientData,
			Enabled:     true,
			RateLimit:   20,
			Params:      []Param{patientParam, daysParam},
		},
		{
			Name:        ToolPatientLabs,
			Description: "Laboratory results and trends for a patient",
			Category:    CategoryPatientData,
			Enabled:     true,
			RateLimit:   15,
			Params:      []Param{patientParam, daysParam},
		},
		{
			Name:        ToolMedicationAdherence,
			Description: "Medication adherence and compliance rates for a patient",
			Category:    CategoryPatientData,
			Enabled:     true,
			RateLimit:   15,
			Params:      []Param{patientParam, daysParam},
		},
		{
			Name:        ToolPatientActivity,
			Description: "Physical activity summary and trends for a patient",
			Category:    CategoryPatientData,
			Enabled:     true,
			RateLimit:   20,
			Params:      []Param{patientParam, daysParam},
		},
		{
			Name:        ToolPatientVisits,
			Description: "Chronological visit history for a patient",
			Category:    CategoryPatientData,
			Enabled:     true,
			RateLimit:   20,
			Params:      []Param{patientParam},
		},
	}
}
