package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/studyplan/internal/actor"
	"github.com/ashureev/studyplan/internal/domain"
	"github.com/ashureev/studyplan/internal/pipeline"
)

// Planner runs the model-backed pipeline stages.
type Planner interface {
	ExtractSyllabus(ctx context.Context, raw string) (*domain.Syllabus, error)
	PlanSchedule(ctx context.Context, syl *domain.Syllabus, prefs domain.Preferences) (string, error)
	RevisePlan(ctx context.Context, currentPlan, message string, history []domain.ChatEntry) (string, error)
}

// Service runs the planner operations against per-user state.
type Service struct {
	states  *actor.Registry
	planner Planner
	logger  *slog.Logger
}

// NewService creates a service. A nil logger uses slog.Default().
func NewService(states *actor.Registry, planner Planner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		states:  states,
		planner: planner,
		logger:  logger,
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}
	return nil
}

// Upload extracts a syllabus from raw text and stores it, replacing any
// previous syllabus. Later requests for the same user wait for it.
func (s *Service) Upload(ctx context.Context, userID, raw string) (*domain.Syllabus, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var syl *domain.Syllabus
	err := s.states.Do(ctx, userID, func(ctx context.Context, t *actor.Turn) error {
		var err error
		syl, err = s.planner.ExtractSyllabus(ctx, raw)
		if err != nil {
			return err
		}
		t.ApplyUpdate(actor.Update{Syllabus: syl})
		return nil
	})
	if err != nil {
		s.logger.Warn("Syllabus upload failed", "user_id", userID, "kind", domain.KindOf(err), "error", err)
		return nil, err
	}

	s.logger.Info("Syllabus stored", "user_id", userID, "course", syl.CourseName)
	return syl, nil
}

// SubmitPreferences generates a plan from the stored syllabus and stores it.
func (s *Service) SubmitPreferences(ctx context.Context, userID string, prefs domain.Preferences) (string, error) {
	if err := requireUser(userID); err != nil {
		return "", err
	}

	var plan string
	err := s.states.Do(ctx, userID, func(ctx context.Context, t *actor.Turn) error {
		rec, err := t.Read(ctx)
		if err != nil {
			return err
		}
		if rec.Syllabus == nil {
			return fmt.Errorf("%w: upload a syllabus before submitting preferences", domain.ErrMissingPrerequisite)
		}

		plan, err = s.planner.PlanSchedule(ctx, rec.Syllabus, prefs)
		if err != nil {
			return err
		}
		t.ApplyUpdate(actor.Update{Plan: &plan})
		return nil
	})
	if err != nil {
		s.logger.Warn("Plan generation failed", "user_id", userID, "kind", domain.KindOf(err), "error", err)
		return "", err
	}

	s.logger.Info("Plan stored", "user_id", userID, "plan_length", len(plan))
	return plan, nil
}

// Chat records a message and revises the current plan. Without a plan the
// fixed prerequisite message is recorded and returned instead and the model
// is not called. On failure no history is written.
func (s *Service) Chat(ctx context.Context, userID, message string) (ChatResult, error) {
	if err := requireUser(userID); err != nil {
		return ChatResult{}, err
	}
	if strings.TrimSpace(message) == "" {
		return ChatResult{}, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}

	var result ChatResult
	err := s.states.Do(ctx, userID, func(ctx context.Context, t *actor.Turn) error {
		rec, err := t.Read(ctx)
		if err != nil {
			return err
		}

		if !rec.HasPlan() {
			if err := t.AppendChat(domain.RoleUser, message); err != nil {
				return err
			}
			if err := t.AppendChat(domain.RoleAssistant, pipeline.NoPlanMessage); err != nil {
				return err
			}
			result = ChatResult{Response: pipeline.NoPlanMessage}
			return nil
		}

		history := append(rec.ChatHistory, domain.ChatEntry{Role: domain.RoleUser, Content: message})
		revised, err := s.planner.RevisePlan(ctx, rec.Plan(), message, history)
		if err != nil {
			return err
		}

		if err := t.AppendChat(domain.RoleUser, message); err != nil {
			return err
		}
		if err := t.AppendChat(domain.RoleAssistant, revised); err != nil {
			return err
		}
		t.ApplyUpdate(actor.Update{Plan: &revised})
		result = ChatResult{Response: revised, Revised: true}
		return nil
	})
	if err != nil {
		s.logger.Warn("Chat failed", "user_id", userID, "kind", domain.KindOf(err), "error", err)
		return ChatResult{}, err
	}

	s.logger.Info("Chat handled", "user_id", userID, "revised", result.Revised)
	return result, nil
}

// RunComplete extracts the syllabus and generates a plan in one turn. Both
// are stored together or not at all.
func (s *Service) RunComplete(ctx context.Context, userID, raw string, prefs domain.Preferences) (*WorkflowResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var out WorkflowResult
	err := s.states.Do(ctx, userID, func(ctx context.Context, t *actor.Turn) error {
		syl, err := s.planner.ExtractSyllabus(ctx, raw)
		if err != nil {
			return err
		}
		plan, err := s.planner.PlanSchedule(ctx, syl, prefs)
		if err != nil {
			return err
		}
		t.ApplyUpdate(actor.Update{Syllabus: syl, Plan: &plan})
		out = WorkflowResult{Syllabus: syl, Plan: plan}
		return nil
	})
	if err != nil {
		s.logger.Warn("Workflow failed", "user_id", userID, "kind", domain.KindOf(err), "error", err)
		return nil, err
	}

	s.logger.Info("Workflow complete", "user_id", userID, "course", out.Syllabus.CourseName)
	return &out, nil
}

// State returns the stored record for userID.
func (s *Service) State(ctx context.Context, userID string) (*domain.UserRecord, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.states.Read(ctx, userID)
}
