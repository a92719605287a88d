package route

import "strings"

// Category tags a group of domain keywords mapped to patient-data tools.
type Category string

const (
	CategorySleep       Category = "sleep"
	CategoryVitals      Category = "vitals"
	CategoryLabs        Category = "labs"
	CategoryMedications Category = "medications"
	CategoryActivity    Category = "activity"
	CategoryVisits      Category = "visits"
	CategoryOverview    Category = "overview"
)

// categoryOrder fixes the scan order: the first category with a keyword hit
// wins, so routing stays deterministic.
var categoryOrder = []Category{
	CategorySleep,
	CategoryVitals,
	CategoryLabs,
	CategoryMedications,
	CategoryActivity,
	CategoryVisits,
	CategoryOverview,
}

// categoryKeywords is the declarative routing table. New categories are
// additions here, not code changes in the router.
var categoryKeywords = map[Category][]string{
	CategorySleep: {
		"sleep", "slept", "insomnia", "rem", "nap", "rested", "bedtime",
	},
	CategoryVitals: {
		"vitals", "vital signs", "blood pressure", "bp", "heart rate",
		"pulse", "temperature", "recovery", "hrv",
	},
	CategoryLabs: {
		"lab", "labs", "laboratory", "glucose", "cholesterol", "hba1c",
		"a1c", "creatinine", "bloodwork", "blood work",
	},
	CategoryMedications: {
		"medication", "medications", "meds", "adherence", "compliance",
		"prescription", "prescriptions", "refill",
	},
	CategoryActivity: {
		"activity", "workout", "workouts", "exercise", "training",
		"steps", "strain", "fitness",
	},
	CategoryVisits: {
		"visit", "visits", "appointment", "appointments", "checkup",
		"check-up", "consultation",
	},
	CategoryOverview: {
		"overview", "status", "history", "everything", "profile",
	},
}

// matchCategories returns every category with a keyword hit, in scan order.
// Multi-word keywords match as substrings; single words match on token
// boundaries so "bp" does not fire inside "bpm"-free words.
func matchCategories(query string) []Category {
	q := strings.ToLower(query)
	tokens := tokenSet(q)

	var hits []Category
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.ContainsRune(kw, ' ') {
				if strings.Contains(q, kw) {
					hits = append(hits, cat)
					break
				}
			} else if tokens[kw] {
				hits = append(hits, cat)
				break
			}
		}
	}
	return hits
}

// tokenSet splits a lowercase query into bare word tokens.
func tokenSet(q string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	}) {
		tok = strings.TrimSuffix(tok, "'s")
		tok = strings.Trim(tok, "'")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

// fragmentStopwords are query words never treated as patient name fragments.
// The table is extended at init with every routing keyword.
var fragmentStopwords = map[string]bool{
	"what": true, "whats": true, "who": true, "when": true, "how": true,
	"show": true, "tell": true, "give": true, "get": true, "list": true,
	"the": true, "for": true, "and": true, "with": true, "about": true,
	"over": true, "his": true, "her": true, "their": true, "does": true,
	"did": true, "has": true, "have": true, "had": true, "was": true,
	"are": true, "can": true, "you": true, "please": true, "summary": true,
	"summarize": true, "trend": true, "trends": true, "pattern": true,
	"patterns": true, "analysis": true, "data": true, "past": true,
	"last": true, "week": true, "weeks": true, "month": true, "months": true,
	"day": true, "days": true, "recent": true, "latest": true, "this": true,
	"that": true, "patient": true, "patients": true, "blood": true,
	"pressure": true, "heart": true, "rate": true, "signs": true,
	"causes": true, "cause": true, "doing": true, "been": true,
	"is": true, "am": true, "an": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "me": true, "my": true, "by": true, "from": true,
	"it": true, "as": true, "be": true, "or": true, "if": true, "do": true,
	"we": true, "he": true, "she": true, "they": true, "were": true,
	"any": true, "all": true, "some": true, "much": true, "many": true,
}

func init() {
	for _, kws := range categoryKeywords {
		for _, kw := range kws {
			for _, word := range strings.Fields(kw) {
				fragmentStopwords[word] = true
			}
		}
	}
}
