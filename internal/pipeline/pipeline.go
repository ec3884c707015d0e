// Package pipeline runs the extract, plan and revise stages against the
// model gateway. Stages are stateless; persisting their results is the
// caller's job.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/studyplan/internal/domain"
	"github.com/ashureev/studyplan/internal/llm"
)

// Stage names used in logs and metrics.
const (
	StageExtract = "extract"
	StagePlan    = "plan"
	StageRevise  = "revise"
)

// maxPreview bounds how much model output is logged on a parse failure.
const maxPreview = 500

// StageObserver receives the latency and outcome of each stage run.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration, err error)
}

// Orchestrator composes prompts, calls the gateway and post-processes output.
type Orchestrator struct {
	gateway  llm.Gateway
	logger   *slog.Logger
	observer StageObserver
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithObserver reports every stage run to obs.
func WithObserver(obs StageObserver) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// New creates an orchestrator over gateway.
func New(gateway llm.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway: gateway,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) observe(stage string, start time.Time, err error) {
	if o.observer != nil {
		o.observer.ObserveStage(stage, time.Since(start), err)
	}
}

// ExtractSyllabus turns raw syllabus text into a structured syllabus.
func (o *Orchestrator) ExtractSyllabus(ctx context.Context, raw string) (syl *domain.Syllabus, err error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: syllabus text is empty", domain.ErrInvalidInput)
	}

	start := time.Now()
	defer func() { o.observe(StageExtract, start, err) }()

	o.logger.Info("Extracting syllabus", "text_length", len(raw))
	text, err := o.gateway.Generate(ctx, llm.NewRequest(extractSystemPrompt, extractPrompt(raw)))
	if err != nil {
		o.logger.Error("Syllabus extraction failed", "error", err)
		return nil, fmt.Errorf("extract syllabus: %w", err)
	}

	var out domain.Syllabus
	if err := llm.DecodeJSON(text, &out); err != nil {
		o.logger.Warn("Failed to parse extraction output",
			"response_length", len(text),
			"preview", preview(text),
			"error", err,
		)
		return nil, fmt.Errorf("extract syllabus: %w", err)
	}
	out.Normalize()

	o.logger.Info("Syllabus extracted",
		"course", out.CourseName,
		"assignments", len(out.Assignments),
		"readings", len(out.Readings),
		"exams", len(out.Exams),
	)
	return &out, nil
}

// PlanSchedule generates a 14-day plan for syl. The result is opaque text.
func (o *Orchestrator) PlanSchedule(ctx context.Context, syl *domain.Syllabus, prefs domain.Preferences) (plan string, err error) {
	if syl == nil {
		return "", fmt.Errorf("%w: no extracted syllabus", domain.ErrMissingPrerequisite)
	}

	start := time.Now()
	defer func() { o.observe(StagePlan, start, err) }()

	prompt, err := planPrompt(syl, prefs)
	if err != nil {
		return "", err
	}
	text, err := o.gateway.Generate(ctx, llm.NewRequest(planSystemPrompt, prompt))
	if err != nil {
		o.logger.Error("Plan generation failed", "error", err)
		return "", fmt.Errorf("%w: %w", domain.ErrPlanGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: model returned an empty plan", domain.ErrPlanGeneration)
	}

	o.logger.Info("Plan generated", "response_length", len(text))
	return text, nil
}

// RevisePlan asks the model to update currentPlan for message. history is the
// full conversation in chronological order. The returned text replaces the
// plan verbatim.
func (o *Orchestrator) RevisePlan(ctx context.Context, currentPlan, message string, history []domain.ChatEntry) (revised string, err error) {
	if currentPlan == "" {
		return "", fmt.Errorf("%w: no plan to revise", domain.ErrMissingPrerequisite)
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}

	start := time.Now()
	defer func() { o.observe(StageRevise, start, err) }()

	text, err := o.gateway.Generate(ctx, llm.NewRequest(reviseSystemPrompt, revisePrompt(currentPlan, message, history)))
	if err != nil {
		o.logger.Error("Plan revision failed", "error", err)
		return "", fmt.Errorf("revise plan: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: model returned an empty revision", domain.ErrPlanGeneration)
	}

	o.logger.Info("Plan revised", "history_entries", len(history), "response_length", len(text))
	return text, nil
}

func preview(s string) string {
	if len(s) <= maxPreview {
		return s
	}
	return s[:maxPreview]
}
