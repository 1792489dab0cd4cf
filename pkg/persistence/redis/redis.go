// Package redis provides a Redis persistence backend. Execution records and
// steps carry a retention TTL; definitions, schedules and credentials are
// kept until deleted.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ExecutionTTL is how long finished execution records are retained.
const ExecutionTTL = 30 * 24 * time.Hour

const (
	workflowKey   = "cascade:workflow:"
	workflowSet   = "cascade:workflows"
	executionKey  = "cascade:execution:"
	executionsOf  = "cascade:executions:workflow:"
	stepsOf       = "cascade:steps:execution:"
	scheduleKey   = "cascade:schedule:"
	scheduleSet   = "cascade:schedules"
	credentialKey = "cascade:credential:"
	credentialSet = "cascade:credentials"
	webhookIndex  = "cascade:webhook-tokens"
)

type Persistence struct {
	client *redis.Client
}

// NewPersistence connects using a redis:// URL.
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{client: client}, nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) setJSON(ctx context.Context, key string, record any, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return p.client.Set(ctx, key, raw, ttl).Err()
}

func (p *Persistence) getJSON(ctx context.Context, key string, record any, notFound error) error {
	raw, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return notFound
	}

	if err != nil {
		return err
	}

	return json.Unmarshal(raw, record)
}

// Workflows

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := p.client.SMembers(ctx, workflowSet).Result()
	if err != nil {
		return nil, persistence.NewStorageError("Workflows", "workflow", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := p.WorkflowByID(ctx, id)
		if persistence.IsWorkflowNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := p.getJSON(ctx, workflowKey+id, &workflow, persistence.ErrWorkflowNotFound); err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (p *Persistence) WorkflowByWebhookToken(ctx context.Context, token string) (*models.Workflow, error) {
	id, err := p.client.HGet(ctx, webhookIndex, token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, persistence.NewStorageError("WorkflowByWebhookToken", "workflow", "", err)
	}

	return p.WorkflowByID(ctx, id)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	// A rotated token must stop resolving, so drop the previous index entry.
	existing, err := p.WorkflowByID(ctx, workflow.ID)
	if err == nil && existing.WebhookToken != "" && existing.WebhookToken != workflow.WebhookToken {
		if err := p.client.HDel(ctx, webhookIndex, existing.WebhookToken).Err(); err != nil {
			return persistence.NewStorageError("SaveWorkflow", "workflow", workflow.ID, err)
		}
	}

	if err := p.setJSON(ctx, workflowKey+workflow.ID, workflow, 0); err != nil {
		return persistence.NewStorageError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	if err := p.client.SAdd(ctx, workflowSet, workflow.ID).Err(); err != nil {
		return persistence.NewStorageError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	if workflow.WebhookToken != "" {
		if err := p.client.HSet(ctx, webhookIndex, workflow.WebhookToken, workflow.ID).Err(); err != nil {
			return persistence.NewStorageError("SaveWorkflow", "workflow", workflow.ID, err)
		}
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	workflow, err := p.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow.WebhookToken != "" {
		_ = p.client.HDel(ctx, webhookIndex, workflow.WebhookToken).Err()
	}

	if err := p.client.Del(ctx, workflowKey+id).Err(); err != nil {
		return persistence.NewStorageError("DeleteWorkflow", "workflow", id, err)
	}

	return p.client.SRem(ctx, workflowSet, id).Err()
}

// Executions

func (p *Persistence) Executions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	// Newest first by score (creation time).
	ids, err := p.client.ZRevRange(ctx, executionsOf+workflowID, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, persistence.NewStorageError("Executions", "execution", "", err)
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := p.ExecutionByID(ctx, id)
		if persistence.IsExecutionNotFound(err) {
			// Expired record still referenced by the index.
			continue
		}

		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	var execution models.Execution
	if err := p.getJSON(ctx, executionKey+id, &execution, persistence.ErrExecutionNotFound); err != nil {
		return nil, err
	}

	return &execution, nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	if err := p.setJSON(ctx, executionKey+execution.ID, execution, ExecutionTTL); err != nil {
		return persistence.NewStorageError("SaveExecution", "execution", execution.ID, err)
	}

	err := p.client.ZAdd(ctx, executionsOf+execution.WorkflowID, redis.Z{
		Score:  float64(execution.CreatedAt.UnixNano()),
		Member: execution.ID,
	}).Err()
	if err != nil {
		return persistence.NewStorageError("SaveExecution", "execution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) StepsByExecutionID(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	raws, err := p.client.ZRange(ctx, stepsOf+executionID, 0, -1).Result()
	if err != nil {
		return nil, persistence.NewStorageError("StepsByExecutionID", "execution", executionID, err)
	}

	steps := make([]*models.ExecutionStep, 0, len(raws))

	for _, raw := range raws {
		var step models.ExecutionStep
		if err := json.Unmarshal([]byte(raw), &step); err != nil {
			return nil, persistence.NewStorageError("StepsByExecutionID", "execution", executionID, err)
		}

		steps = append(steps, &step)
	}

	return steps, nil
}

func (p *Persistence) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	raw, err := json.Marshal(step)
	if err != nil {
		return persistence.NewStorageError("SaveStep", "step", step.ID, err)
	}

	key := stepsOf + step.ExecutionID

	// Steps are updated in place: drop any previous version of this step
	// before re-adding at its order position.
	previous, err := p.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return persistence.NewStorageError("SaveStep", "step", step.ID, err)
	}

	for _, entry := range previous {
		var existing models.ExecutionStep
		if json.Unmarshal([]byte(entry), &existing) == nil && existing.ID == step.ID {
			if err := p.client.ZRem(ctx, key, entry).Err(); err != nil {
				return persistence.NewStorageError("SaveStep", "step", step.ID, err)
			}
		}
	}

	if err := p.client.ZAdd(ctx, key, redis.Z{Score: float64(step.Order), Member: raw}).Err(); err != nil {
		return persistence.NewStorageError("SaveStep", "step", step.ID, err)
	}

	return p.client.Expire(ctx, key, ExecutionTTL).Err()
}

func (p *Persistence) StaleRunningExecutions(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	workflows, err := p.client.SMembers(ctx, workflowSet).Result()
	if err != nil {
		return nil, persistence.NewStorageError("StaleRunningExecutions", "execution", "", err)
	}

	var stale []*models.Execution

	for _, workflowID := range workflows {
		executions, err := p.Executions(ctx, workflowID, 0)
		if err != nil {
			return nil, err
		}

		for _, execution := range executions {
			if execution.Status != models.ExecutionStatusRunning {
				continue
			}

			if execution.StartedAt != nil && execution.StartedAt.Before(cutoff) {
				stale = append(stale, execution)
			}
		}
	}

	return stale, nil
}

// Schedules

func (p *Persistence) Schedules(ctx context.Context) ([]*models.Schedule, error) {
	ids, err := p.client.SMembers(ctx, scheduleSet).Result()
	if err != nil {
		return nil, persistence.NewStorageError("Schedules", "schedule", "", err)
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		schedule, err := p.ScheduleByID(ctx, id)
		if persistence.IsScheduleNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

func (p *Persistence) ScheduleByID(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := p.getJSON(ctx, scheduleKey+id, &schedule, persistence.ErrScheduleNotFound); err != nil {
		return nil, err
	}

	return &schedule, nil
}

func (p *Persistence) SchedulesByWorkflowID(ctx context.Context, workflowID string) ([]*models.Schedule, error) {
	schedules, err := p.Schedules(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*models.Schedule

	for _, schedule := range schedules {
		if schedule.WorkflowID == workflowID {
			matched = append(matched, schedule)
		}
	}

	return matched, nil
}

func (p *Persistence) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if err := p.setJSON(ctx, scheduleKey+schedule.ID, schedule, 0); err != nil {
		return persistence.NewStorageError("SaveSchedule", "schedule", schedule.ID, err)
	}

	return p.client.SAdd(ctx, scheduleSet, schedule.ID).Err()
}

func (p *Persistence) DeleteSchedule(ctx context.Context, id string) error {
	removed, err := p.client.Del(ctx, scheduleKey+id).Result()
	if err != nil {
		return persistence.NewStorageError("DeleteSchedule", "schedule", id, err)
	}

	if removed == 0 {
		return persistence.ErrScheduleNotFound
	}

	return p.client.SRem(ctx, scheduleSet, id).Err()
}

// Credentials

func (p *Persistence) Credentials(ctx context.Context) ([]*models.Credential, error) {
	ids, err := p.client.SMembers(ctx, credentialSet).Result()
	if err != nil {
		return nil, persistence.NewStorageError("Credentials", "credential", "", err)
	}

	credentials := make([]*models.Credential, 0, len(ids))

	for _, id := range ids {
		credential, err := p.CredentialByID(ctx, id)
		if persistence.IsCredentialNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		credentials = append(credentials, credential)
	}

	return credentials, nil
}

func (p *Persistence) CredentialByID(ctx context.Context, id string) (*models.Credential, error) {
	var credential models.Credential
	if err := p.getJSON(ctx, credentialKey+id, &credential, persistence.ErrCredentialNotFound); err != nil {
		return nil, err
	}

	return &credential, nil
}

func (p *Persistence) SaveCredential(ctx context.Context, credential *models.Credential) error {
	if err := p.setJSON(ctx, credentialKey+credential.ID, credential, 0); err != nil {
		return persistence.NewStorageError("SaveCredential", "credential", credential.ID, err)
	}

	return p.client.SAdd(ctx, credentialSet, credential.ID).Err()
}

func (p *Persistence) DeleteCredential(ctx context.Context, id string) error {
	removed, err := p.client.Del(ctx, credentialKey+id).Result()
	if err != nil {
		return persistence.NewStorageError("DeleteCredential", "credential", id, err)
	}

	if removed == 0 {
		return persistence.ErrCredentialNotFound
	}

	return p.client.SRem(ctx, credentialSet, id).Err()
}

var _ persistence.Persistence = (*Persistence)(nil)
