// Package persistence provides the storage abstraction for workflows,
// executions, schedules and credentials.
package persistence

import (
	"context"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
)

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	WorkflowByWebhookToken(ctx context.Context, token string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records and their per-node steps.
type ExecutionRepository interface {
	Executions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error)
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	SaveExecution(ctx context.Context, execution *models.Execution) error

	StepsByExecutionID(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
	SaveStep(ctx context.Context, step *models.ExecutionStep) error

	// StaleRunningExecutions lists executions stuck in the running state
	// since before the cutoff, for crash recovery sweeps.
	StaleRunningExecutions(ctx context.Context, cutoff time.Time) ([]*models.Execution, error)
}

// ScheduleRepository stores cron schedules.
type ScheduleRepository interface {
	Schedules(ctx context.Context) ([]*models.Schedule, error)
	ScheduleByID(ctx context.Context, id string) (*models.Schedule, error)
	SchedulesByWorkflowID(ctx context.Context, workflowID string) ([]*models.Schedule, error)
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
}

// CredentialRepository stores encrypted credential records. Plaintext never
// reaches this layer.
type CredentialRepository interface {
	Credentials(ctx context.Context) ([]*models.Credential, error)
	CredentialByID(ctx context.Context, id string) (*models.Credential, error)
	SaveCredential(ctx context.Context, credential *models.Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// Persistence aggregates the repositories behind one backend.
type Persistence interface {
	WorkflowRepository
	ExecutionRepository
	ScheduleRepository
	CredentialRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
