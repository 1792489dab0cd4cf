// Package postgresql provides the PostgreSQL persistence backend. Records
// are stored as JSONB documents with the queryable columns lifted out.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/sqlbase"
)

type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects, pings and migrates the database.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := manager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger.With("module", "postgresql")}, nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db == nil {
		return nil
	}

	return p.db.Close()
}

func (p *Persistence) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// Workflows

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, persistence.NewStorageError("Workflows", "workflow", "", err)
	}
	defer p.closeRows(ctx, rows)

	var workflows []*models.Workflow

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistence.NewStorageError("Workflows", "workflow", "", err)
		}

		var workflow models.Workflow
		if err := json.Unmarshal(raw, &workflow); err != nil {
			return nil, persistence.NewStorageError("Workflows", "workflow", "", err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, rows.Err()
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowWhere(ctx, `SELECT data FROM workflows WHERE id = $1`, id)
}

func (p *Persistence) WorkflowByWebhookToken(ctx context.Context, token string) (*models.Workflow, error) {
	return p.workflowWhere(ctx, `SELECT data FROM workflows WHERE webhook_token = $1`, token)
}

func (p *Persistence) workflowWhere(ctx context.Context, query, arg string) (*models.Workflow, error) {
	var raw []byte

	err := p.db.QueryRowContext(ctx, query, arg).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, persistence.NewStorageError("WorkflowByID", "workflow", arg, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(raw, &workflow); err != nil {
		return nil, persistence.NewStorageError("WorkflowByID", "workflow", arg, err)
	}

	return &workflow, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	raw, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewStorageError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, status, webhook_token, data, created_at, updated_at, archived_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			webhook_token = EXCLUDED.webhook_token,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at,
			archived_at = EXCLUDED.archived_at
	`, workflow.ID, workflow.Name, workflow.Status, workflow.WebhookToken, raw,
		workflow.CreatedAt, workflow.UpdatedAt, workflow.ArchivedAt)
	if err != nil {
		return persistence.NewStorageError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStorageError("DeleteWorkflow", "workflow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStorageError("DeleteWorkflow", "workflow", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// Executions

func (p *Persistence) Executions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	query := `SELECT data FROM executions`
	args := []any{}

	if workflowID != "" {
		query += ` WHERE workflow_id = $1`
		args = append(args, workflowID)
	}

	query += ` ORDER BY created_at DESC`

	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStorageError("Executions", "execution", "", err)
	}
	defer p.closeRows(ctx, rows)

	var executions []*models.Execution

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistence.NewStorageError("Executions", "execution", "", err)
		}

		var execution models.Execution
		if err := json.Unmarshal(raw, &execution); err != nil {
			return nil, persistence.NewStorageError("Executions", "execution", "", err)
		}

		executions = append(executions, &execution)
	}

	return executions, rows.Err()
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	var raw []byte

	err := p.db.QueryRowContext(ctx, `SELECT data FROM executions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, persistence.NewStorageError("ExecutionByID", "execution", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(raw, &execution); err != nil {
		return nil, persistence.NewStorageError("ExecutionByID", "execution", id, err)
	}

	return &execution, nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	raw, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewStorageError("SaveExecution", "execution", execution.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, data, created_at, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			started_at = EXCLUDED.started_at
	`, execution.ID, execution.WorkflowID, execution.Status, raw, execution.CreatedAt, execution.StartedAt)
	if err != nil {
		return persistence.NewStorageError("SaveExecution", "execution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) StepsByExecutionID(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT data FROM execution_steps WHERE execution_id = $1 ORDER BY step_order`, executionID)
	if err != nil {
		return nil, persistence.NewStorageError("StepsByExecutionID", "execution", executionID, err)
	}
	defer p.closeRows(ctx, rows)

	var steps []*models.ExecutionStep

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistence.NewStorageError("StepsByExecutionID", "execution", executionID, err)
		}

		var step models.ExecutionStep
		if err := json.Unmarshal(raw, &step); err != nil {
			return nil, persistence.NewStorageError("StepsByExecutionID", "execution", executionID, err)
		}

		steps = append(steps, &step)
	}

	return steps, rows.Err()
}

func (p *Persistence) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	raw, err := json.Marshal(step)
	if err != nil {
		return persistence.NewStorageError("SaveStep", "step", step.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO execution_steps (id, execution_id, node_id, step_order, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, step.ID, step.ExecutionID, step.NodeID, step.Order, raw)
	if err != nil {
		return persistence.NewStorageError("SaveStep", "step", step.ID, err)
	}

	return nil
}

func (p *Persistence) StaleRunningExecutions(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT data FROM executions WHERE status = $1 AND started_at < $2`,
		models.ExecutionStatusRunning, cutoff)
	if err != nil {
		return nil, persistence.NewStorageError("StaleRunningExecutions", "execution", "", err)
	}
	defer p.closeRows(ctx, rows)

	var executions []*models.Execution

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistence.NewStorageError("StaleRunningExecutions", "execution", "", err)
		}

		var execution models.Execution
		if err := json.Unmarshal(raw, &execution); err != nil {
			return nil, persistence.NewStorageError("StaleRunningExecutions", "execution", "", err)
		}

		executions = append(executions, &execution)
	}

	return executions, rows.Err()
}

// Schedules

func (p *Persistence) Schedules(ctx context.Context) ([]*models.Schedule, error) {
	return p.schedulesWhere(ctx, `SELECT data FROM schedules ORDER BY created_at`)
}

func (p *Persistence) SchedulesByWorkflowID(ctx context.Context, workflowID string) ([]*models.Schedule, error) {
	return p.schedulesWhere(ctx, `SELECT data FROM schedules WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
}

func (p *Persistence) schedulesWhere(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStorageError("Schedules", "schedule", "", err)
	}
	defer p.closeRows(ctx, rows)

	var schedules []*models.Schedule

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistence.NewStorageError("Schedules", "schedule", "", err)
		}

		var schedule models.Schedule
		if err := json.Unmarshal(raw, &schedule); err != nil {
			return nil, persistence.NewStorageError("Schedules", "schedule", "", err)
		}

		schedules = append(schedules, &schedule)
	}

	return schedules, rows.Err()
}

func (p *Persistence) ScheduleByID(ctx context.Context, id string) (*models.Schedule, error) {
	var raw []byte

	err := p.db.QueryRowContext(ctx, `SELECT data FROM schedules WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrScheduleNotFound
	}

	if err != nil {
		return nil, persistence.NewStorageError("ScheduleByID", "schedule", id, err)
	}

	var schedule models.Schedule
	if err := json.Unmarshal(raw, &schedule); err != nil {
		return nil, persistence.NewStorageError("ScheduleByID", "schedule", id, err)
	}

	return &schedule, nil
}

func (p *Persistence) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	raw, err := json.Marshal(schedule)
	if err != nil {
		return persistence.NewStorageError("SaveSchedule", "schedule", schedule.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO schedules (id, workflow_id, enabled, auto_disabled, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			auto_disabled = EXCLUDED.auto_disabled,
			data = EXCLUDED.data
	`, schedule.ID, schedule.WorkflowID, schedule.Enabled, schedule.AutoDisabled, raw, schedule.CreatedAt)
	if err != nil {
		return persistence.NewStorageError("SaveSchedule", "schedule", schedule.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteSchedule(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStorageError("DeleteSchedule", "schedule", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStorageError("DeleteSchedule", "schedule", id, err)
	}

	if affected == 0 {
		return persistence.ErrScheduleNotFound
	}

	return nil
}

// Credentials

func (p *Persistence) Credentials(ctx context.Context) ([]*models.Credential, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, integration_type, encrypted_data, metadata, created_at, updated_at
		FROM credentials ORDER BY created_at
	`)
	if err != nil {
		return nil, persistence.NewStorageError("Credentials", "credential", "", err)
	}
	defer p.closeRows(ctx, rows)

	var credentials []*models.Credential

	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, persistence.NewStorageError("Credentials", "credential", "", err)
		}

		credentials = append(credentials, credential)
	}

	return credentials, rows.Err()
}

func (p *Persistence) CredentialByID(ctx context.Context, id string) (*models.Credential, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, integration_type, encrypted_data, metadata, created_at, updated_at
		FROM credentials WHERE id = $1
	`, id)

	credential, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrCredentialNotFound
	}

	if err != nil {
		return nil, persistence.NewStorageError("CredentialByID", "credential", id, err)
	}

	return credential, nil
}

func (p *Persistence) SaveCredential(ctx context.Context, credential *models.Credential) error {
	metadata, err := json.Marshal(credential.Metadata)
	if err != nil {
		return persistence.NewStorageError("SaveCredential", "credential", credential.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO credentials (id, name, integration_type, encrypted_data, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			integration_type = EXCLUDED.integration_type,
			encrypted_data = EXCLUDED.encrypted_data,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, credential.ID, credential.Name, credential.IntegrationType, credential.EncryptedData,
		metadata, credential.CreatedAt, credential.UpdatedAt)
	if err != nil {
		return persistence.NewStorageError("SaveCredential", "credential", credential.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteCredential(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStorageError("DeleteCredential", "credential", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStorageError("DeleteCredential", "credential", id, err)
	}

	if affected == 0 {
		return persistence.ErrCredentialNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		credential models.Credential
		metadata   []byte
	)

	err := row.Scan(
		&credential.ID,
		&credential.Name,
		&credential.IntegrationType,
		&credential.EncryptedData,
		&metadata,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &credential.Metadata); err != nil {
			return nil, err
		}
	}

	return &credential, nil
}

var _ persistence.Persistence = (*Persistence)(nil)
