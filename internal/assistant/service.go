// Package assistant exposes the two consumer-facing contracts: free-text
// Answer and structured tool Invoke. Everything else in the module exists to
// serve these two calls.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/medquery/internal/aggregate"
	"github.com/nidhogg/medquery/internal/record"
	"github.com/nidhogg/medquery/internal/registry"
	"github.com/nidhogg/medquery/internal/resolve"
	"github.com/nidhogg/medquery/internal/route"
	"go.uber.org/zap"
)

// Generator is the injected downstream model capability. provider.Router
// satisfies it; tests use a stub.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrDownstream wraps generative-backend failures.
var ErrDownstream = errors.New("downstream model unavailable")

// AnswerEnvelope is the full result of one free-text query.
type AnswerEnvelope struct {
	QueryID    string             `json:"query_id"`
	Kind       route.Kind         `json:"kind"`
	PatientID  string             `json:"patient_id,omitempty"`
	Patient    string             `json:"patient,omitempty"`
	Candidates []string           `json:"candidates,omitempty"`
	Context    *aggregate.Context `json:"context,omitempty"`
	Answer     string             `json:"answer"`
	// Degraded is set when the downstream model failed; Answer then carries
	// the raw aggregated context so the caller can retry or display it.
	Degraded bool `json:"degraded,omitempty"`
}

// ToolResult is the outcome of one structured tool invocation.
type ToolResult struct {
	Tool       string             `json:"tool"`
	Status     string             `json:"status"`
	Text       string             `json:"text"`
	Section    *aggregate.Section `json:"section,omitempty"`
	Candidates []string           `json:"candidates,omitempty"`
}

// Service wires the router, registry, resolver, aggregator and downstream
// generator into the two entry points.
type Service struct {
	store      *record.Store
	registry   *registry.Registry
	resolver   *resolve.Resolver
	router     *route.Router
	aggregator *aggregate.Aggregator
	generator  Generator
	genTimeout time.Duration
	logger     *zap.Logger
}

// New creates the assistant service. genTimeout bounds every downstream call.
func New(
	store *record.Store,
	reg *registry.Registry,
	resolver *resolve.Resolver,
	router *route.Router,
	aggregator *aggregate.Aggregator,
	generator Generator,
	genTimeout time.Duration,
	logger *zap.Logger,
) *Service {
	if genTimeout <= 0 {
		genTimeout = 60 * time.Second
	}
	return &Service{
		store:      store,
		registry:   reg,
		resolver:   resolver,
		router:     router,
		aggregator: aggregator,
		generator:  generator,
		genTimeout: genTimeout,
		logger:     logger,
	}
}

// Answer processes a free-text medical query end to end.
func (s *Service) Answer(ctx context.Context, question, explicitPatient string) (*AnswerEnvelope, error) {
	if !s.store.Ready() {
		return nil, record.ErrNotReady
	}

	decision, err := s.router.Decide(question, explicitPatient)
	if err != nil {
		return nil, fmt.Errorf("route query: %w", err)
	}

	env := &AnswerEnvelope{Kind: decision.Kind}

	switch decision.Kind {
	case route.KindAmbiguousPatient:
		env.Candidates = decision.Resolution.CandidateNames()
		env.Answer = fmt.Sprintf("Multiple patients match %q: %s. Please specify which one you mean.",
			decision.Fragment, strings.Join(env.Candidates, ", "))
		return env, nil

	case route.KindPatientNotFound:
		env.Answer = fmt.Sprintf("Patient %q not found. Available patients: %s.",
			decision.Fragment, strings.Join(s.patientNames(), ", "))
		return env, nil

	case route.KindIdentityMissing:
		env.Answer = "This looks like a patient data question, but no patient was named. " +
			"Please include the patient's name or id."
		return env, nil

	case route.KindGeneral:
		answer, genErr := s.generate(ctx, aggregate.RenderGeneralPrompt(question))
		if genErr != nil {
			env.Degraded = true
			env.Answer = "The medical answer service is currently unavailable. Please try again."
			s.logger.Warn("downstream failed for general query", zap.Error(genErr))
			return env, nil
		}
		env.Answer = answer
		return env, nil
	}

	// Patient-data path.
	patient := decision.Resolution.Patient
	env.PatientID = patient.ID
	env.Patient = patient.Name()

	agg, err := s.aggregator.Aggregate(ctx, patient, decision.Invocations)
	if err != nil {
		// Only cancellation reaches here; partial data failures become
		// section markers instead.
		return nil, err
	}
	env.QueryID = agg.QueryID
	env.Context = agg

	answer, genErr := s.generate(ctx, aggregate.RenderPrompt(question, agg))
	if genErr != nil {
		env.Degraded = true
		env.Answer = "The medical answer service is currently unavailable. Raw patient context:\n\n" +
			aggregate.FormatContext(agg)
		s.logger.Warn("downstream failed, returning raw context",
			zap.String("patient", patient.ID), zap.Error(genErr))
		return env, nil
	}
	env.Answer = answer
	return env, nil
}

// Invoke validates and executes one named tool directly, bypassing routing.
func (s *Service) Invoke(ctx context.Context, tool string, args map[string]any) (*ToolResult, error) {
	if !s.store.Ready() {
		return nil, record.ErrNotReady
	}

	coerced, err := s.registry.Validate(tool, args)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Allow(ctx, tool); err != nil {
		return nil, err
	}

	switch tool {
	case registry.ToolMedicalQuery:
		return s.invokeMedicalQuery(ctx, coerced)
	case registry.ToolSymptomChecker:
		return s.invokeSymptomChecker(ctx, coerced)
	}
	return s.invokePatientTool(ctx, tool, coerced)
}

func (s *Service) invokeMedicalQuery(ctx context.Context, args map[string]any) (*ToolResult, error) {
	question, _ := args["question"].(string)
	if extra, ok := args["context"].(string); ok && extra != "" {
		question = question + "\nAdditional context: " + extra
	}
	answer, err := s.generate(ctx, aggregate.RenderGeneralPrompt(question))
	if err != nil {
		return nil, err
	}
	return &ToolResult{Tool: registry.ToolMedicalQuery, Status: "ok", Text: answer}, nil
}

func (s *Service) invokeSymptomChecker(ctx context.Context, args map[string]any) (*ToolResult, error) {
	symptoms, _ := args["symptoms"].([]string)
	age, _ := args["age"].(int)
	sex, _ := args["sex"].(string)
	answer, err := s.generate(ctx, aggregate.RenderSymptomPrompt(symptoms, age, sex))
	if err != nil {
		return nil, err
	}
	return &ToolResult{Tool: registry.ToolSymptomChecker, Status: "ok", Text: answer}, nil
}

func (s *Service) invokePatientTool(ctx context.Context, tool string, args map[string]any) (*ToolResult, error) {
	identifier, _ := args["patient_identifier"].(string)
	outcome, err := s.resolver.ByFragment(identifier)
	if err != nil {
		return nil, err
	}
	switch outcome.Status {
	case resolve.StatusAmbiguous:
		names := outcome.CandidateNames()
		return &ToolResult{
			Tool:       tool,
			Status:     "ambiguous_patient",
			Candidates: names,
			Text: fmt.Sprintf("Multiple patients match %q: %s.",
				identifier, strings.Join(names, ", ")),
		}, nil
	case resolve.StatusNotFound:
		return &ToolResult{
			Tool:   tool,
			Status: "patient_not_found",
			Text: fmt.Sprintf("Patient %q not found. Available patients: %s.",
				identifier, strings.Join(s.patientNames(), ", ")),
		}, nil
	}

	days := 0
	if d, ok := args["days"].(int); ok {
		days = d
	}
	window := s.router.WindowOf(days)

	agg, err := s.aggregator.Aggregate(ctx, outcome.Patient, []route.Invocation{{
		Tool:      tool,
		PatientID: outcome.Patient.ID,
		Window:    window,
	}})
	if err != nil {
		return nil, err
	}
	section := agg.Sections[0]
	return &ToolResult{
		Tool:    tool,
		Status:  string(section.Status),
		Text:    aggregate.FormatSection(&section),
		Section: &section,
	}, nil
}

// generate calls the downstream model under the service timeout and wraps
// failures in ErrDownstream.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	text, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownstream, err)
	}
	return text, nil
}

func (s *Service) patientNames() []string {
	patients, err := s.store.Patients()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(patients))
	for _, p := range patients {
		names = append(names, p.Name())
	}
	return names
}
