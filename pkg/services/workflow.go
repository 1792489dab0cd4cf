package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/expr"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
)

// liveJobs is the part of the scheduler the workflow service needs when a
// workflow stops being executable.
type liveJobs interface {
	Remove(scheduleID string)
}

// WorkflowService manages workflow definitions. Definitions are validated on
// every save: struct constraints, graph structure, node config schemas and
// condition expressions all fail here, never at execution time. Draft
// workflows only need to pass struct validation; the full graph check runs
// when a workflow is saved or switched active.
type WorkflowService struct {
	logger   *slog.Logger
	store    persistence.Persistence
	registry *registry.Registry
	validate *validator.Validate
	jobs     liveJobs
}

func NewWorkflowService(logger *slog.Logger, store persistence.Persistence, reg *registry.Registry, jobs liveJobs) *WorkflowService {
	return &WorkflowService{
		logger:   logger.With("module", "workflow_service"),
		store:    store,
		registry: reg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		jobs:     jobs,
	}
}

// List returns all workflows except archived ones.
func (s *WorkflowService) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := s.store.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Status != models.WorkflowStatusArchived {
			visible = append(visible, workflow)
		}
	}

	return visible, nil
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.store.WorkflowByID(ctx, id)
}

// GetByWebhookToken resolves the workflow a webhook token belongs to.
func (s *WorkflowService) GetByWebhookToken(ctx context.Context, token string) (*models.Workflow, error) {
	if token == "" {
		return nil, persistence.ErrWorkflowNotFound
	}

	return s.store.WorkflowByWebhookToken(ctx, token)
}

// Create saves a new workflow. Missing id, status and timestamps are filled
// in; execution counters always start at zero.
func (s *WorkflowService) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.TotalExecutions = 0
	workflow.SuccessExecutions = 0
	workflow.FailedExecutions = 0
	workflow.AvgDurationMs = 0

	if err := s.prepare(workflow); err != nil {
		return nil, err
	}

	if err := s.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "workflow created", "workflow_id", workflow.ID, "status", workflow.Status)

	return workflow, nil
}

// Update replaces the definition of an existing workflow. Execution counters,
// creation time and the webhook token survive the update; archived workflows
// are immutable.
func (s *WorkflowService) Update(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := s.store.WorkflowByID(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusArchived {
		return nil, ErrWorkflowNotEditable
	}

	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()
	workflow.TotalExecutions = existing.TotalExecutions
	workflow.SuccessExecutions = existing.SuccessExecutions
	workflow.FailedExecutions = existing.FailedExecutions
	workflow.AvgDurationMs = existing.AvgDurationMs
	workflow.ArchivedAt = nil

	if workflow.WebhookToken == "" {
		workflow.WebhookToken = existing.WebhookToken
	}

	if err := s.prepare(workflow); err != nil {
		return nil, err
	}

	if err := s.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "workflow updated", "workflow_id", workflow.ID, "status", workflow.Status)

	return workflow, nil
}

// Activate switches a workflow active, running the full definition check
// first.
func (s *WorkflowService) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	return s.setStatus(ctx, id, models.WorkflowStatusActive)
}

// Deactivate switches a workflow inactive. Live schedule jobs for it are
// removed; in-flight executions are not touched.
func (s *WorkflowService) Deactivate(ctx context.Context, id string) (*models.Workflow, error) {
	return s.setStatus(ctx, id, models.WorkflowStatusInactive)
}

func (s *WorkflowService) setStatus(ctx context.Context, id string, status models.WorkflowStatus) (*models.Workflow, error) {
	workflow, err := s.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, ErrWorkflowNotEditable
	}

	workflow.Status = status
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.prepare(workflow); err != nil {
		return nil, err
	}

	if err := s.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	if status != models.WorkflowStatusActive {
		s.removeLiveJobs(ctx, id)
	}

	s.logger.InfoContext(ctx, "workflow status changed", "workflow_id", id, "status", status)

	return workflow, nil
}

// RotateWebhookToken replaces the workflow's webhook token. The old token
// stops working immediately.
func (s *WorkflowService) RotateWebhookToken(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := s.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, ErrWorkflowNotEditable
	}

	if workflow.TriggerType != models.TriggerTypeWebhook {
		return nil, NewValidationError("workflow", fmt.Errorf("trigger type %q has no webhook token", workflow.TriggerType))
	}

	token, err := newWebhookToken()
	if err != nil {
		return nil, err
	}

	workflow.WebhookToken = token
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "webhook token rotated", "workflow_id", id)

	return workflow, nil
}

// Archive soft-deletes a workflow. Execution history stays queryable; live
// schedule jobs are removed.
func (s *WorkflowService) Archive(ctx context.Context, id string) error {
	workflow, err := s.store.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusArchived
	workflow.ArchivedAt = &now
	workflow.UpdatedAt = now

	if err := s.store.SaveWorkflow(ctx, workflow); err != nil {
		return err
	}

	s.removeLiveJobs(ctx, id)

	s.logger.InfoContext(ctx, "workflow archived", "workflow_id", id)

	return nil
}

func (s *WorkflowService) removeLiveJobs(ctx context.Context, workflowID string) {
	if s.jobs == nil {
		return
	}

	schedules, err := s.store.SchedulesByWorkflowID(ctx, workflowID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list schedules for removal", "workflow_id", workflowID, "error", err)

		return
	}

	for _, schedule := range schedules {
		s.jobs.Remove(schedule.ID)
	}
}

// prepare validates the definition and fills in derived fields. Drafts only
// need valid struct fields; everything else must pass the full graph and
// config check.
func (s *WorkflowService) prepare(workflow *models.Workflow) error {
	// An unset retry policy means "run once, no backoff"; the multiplier
	// must be filled in before struct validation enforces its lower bound.
	if workflow.Retry.BackoffMultiplier == 0 {
		workflow.Retry.BackoffMultiplier = 1
	}

	if err := s.validate.Struct(workflow); err != nil {
		return NewValidationError("workflow", err)
	}

	if workflow.TriggerType == models.TriggerTypeWebhook && workflow.WebhookToken == "" {
		token, err := newWebhookToken()
		if err != nil {
			return err
		}

		workflow.WebhookToken = token
	}

	if workflow.Status == models.WorkflowStatusDraft {
		return nil
	}

	return s.validateDefinition(workflow)
}

func (s *WorkflowService) validateDefinition(workflow *models.Workflow) error {
	if err := workflow.ValidateGraph(); err != nil {
		return NewValidationError("graph", err)
	}

	for _, node := range workflow.Nodes {
		if !node.IsTriggerNode() {
			if err := s.registry.ValidateConfig(node.Type, node.Config); err != nil {
				return NewValidationError("node "+node.ID, err)
			}
		}

		if node.IsConditionNode() {
			condition, _ := node.Config["condition"].(string)
			if _, err := expr.Parse(condition); err != nil {
				return NewValidationError("node "+node.ID, err)
			}
		}

		for _, edge := range node.Next {
			if edge.Condition == "" {
				continue
			}

			if _, err := expr.Parse(edge.Condition); err != nil {
				return NewValidationError(fmt.Sprintf("edge %s -> %s", node.ID, edge.Target), err)
			}
		}
	}

	return nil
}

// newWebhookToken generates an unguessable URL-safe token.
func newWebhookToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate webhook token: %w", err)
	}

	return hex.EncodeToString(raw), nil
}
