// Package file provides the JSON-on-disk persistence backend. It serves
// development setups and tests; deployments use postgres.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

const dirPerm = 0o755

// Persistence implements persistence.Persistence on a directory tree with
// one JSON file per record.
type Persistence struct {
	mu   sync.RWMutex
	root string
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) dir(kind string) string {
	return filepath.Join(p.root, kind)
}

func (p *Persistence) path(kind, id string) string {
	return filepath.Join(p.root, kind, id+".json")
}

func (p *Persistence) write(kind, id string, record any) error {
	if err := os.MkdirAll(p.dir(kind), dirPerm); err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(p.path(kind, id), encoded, 0o600)
}

func (p *Persistence) read(kind, id string, record any, notFound error) error {
	raw, err := os.ReadFile(p.path(kind, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound
		}

		return err
	}

	return json.Unmarshal(raw, record)
}

func (p *Persistence) remove(kind, id string, notFound error) error {
	err := os.Remove(p.path(kind, id))
	if errors.Is(err, os.ErrNotExist) {
		return notFound
	}

	return err
}

// list decodes every record in a kind directory into out via the visit
// callback.
func (p *Persistence) list(kind string, visit func(raw []byte) error) error {
	entries, err := os.ReadDir(p.dir(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(p.dir(kind), entry.Name()))
		if err != nil {
			return err
		}

		if err := visit(raw); err != nil {
			return err
		}
	}

	return nil
}

// Workflows

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var workflows []*models.Workflow

	err := p.list("workflows", func(raw []byte) error {
		var workflow models.Workflow
		if err := json.Unmarshal(raw, &workflow); err != nil {
			return err
		}

		workflows = append(workflows, &workflow)

		return nil
	})
	if err != nil {
		return nil, persistence.NewStorageError("Workflows", "workflow", "", err)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var workflow models.Workflow
	if err := p.read("workflows", id, &workflow, persistence.ErrWorkflowNotFound); err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (p *Persistence) WorkflowByWebhookToken(ctx context.Context, token string) (*models.Workflow, error) {
	workflows, err := p.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	for _, workflow := range workflows {
		if workflow.WebhookToken != "" && workflow.WebhookToken == token {
			return workflow, nil
		}
	}

	return nil, persistence.ErrWorkflowNotFound
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write("workflows", workflow.ID, workflow); err != nil {
		return persistence.NewStorageError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.remove("workflows", id, persistence.ErrWorkflowNotFound)
}

// Executions

func (p *Persistence) Executions(_ context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var executions []*models.Execution

	err := p.list("executions", func(raw []byte) error {
		var execution models.Execution
		if err := json.Unmarshal(raw, &execution); err != nil {
			return err
		}

		if workflowID == "" || execution.WorkflowID == workflowID {
			executions = append(executions, &execution)
		}

		return nil
	})
	if err != nil {
		return nil, persistence.NewStorageError("Executions", "execution", "", err)
	}

	// Newest first.
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var execution models.Execution
	if err := p.read("executions", id, &execution, persistence.ErrExecutionNotFound); err != nil {
		return nil, err
	}

	return &execution, nil
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write("executions", execution.ID, execution); err != nil {
		return persistence.NewStorageError("SaveExecution", "execution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) StepsByExecutionID(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var steps []*models.ExecutionStep

	err := p.list(filepath.Join("steps", executionID), func(raw []byte) error {
		var step models.ExecutionStep
		if err := json.Unmarshal(raw, &step); err != nil {
			return err
		}

		steps = append(steps, &step)

		return nil
	})
	if err != nil {
		return nil, persistence.NewStorageError("StepsByExecutionID", "execution", executionID, err)
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})

	return steps, nil
}

func (p *Persistence) SaveStep(_ context.Context, step *models.ExecutionStep) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	kind := filepath.Join("steps", step.ExecutionID)
	if err := p.write(kind, step.ID, step); err != nil {
		return persistence.NewStorageError("SaveStep", "step", step.ID, err)
	}

	return nil
}

func (p *Persistence) StaleRunningExecutions(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	executions, err := p.Executions(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	var stale []*models.Execution

	for _, execution := range executions {
		if execution.Status != models.ExecutionStatusRunning {
			continue
		}

		if execution.StartedAt != nil && execution.StartedAt.Before(cutoff) {
			stale = append(stale, execution)
		}
	}

	return stale, nil
}

// Schedules

func (p *Persistence) Schedules(_ context.Context) ([]*models.Schedule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var schedules []*models.Schedule

	err := p.list("schedules", func(raw []byte) error {
		var schedule models.Schedule
		if err := json.Unmarshal(raw, &schedule); err != nil {
			return err
		}

		schedules = append(schedules, &schedule)

		return nil
	})
	if err != nil {
		return nil, persistence.NewStorageError("Schedules", "schedule", "", err)
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})

	return schedules, nil
}

func (p *Persistence) ScheduleByID(_ context.Context, id string) (*models.Schedule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var schedule models.Schedule
	if err := p.read("schedules", id, &schedule, persistence.ErrScheduleNotFound); err != nil {
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

func (p *Persistence) SaveSchedule(_ context.Context, schedule *models.Schedule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write("schedules", schedule.ID, schedule); err != nil {
		return persistence.NewStorageError("SaveSchedule", "schedule", schedule.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteSchedule(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.remove("schedules", id, persistence.ErrScheduleNotFound)
}

// Credentials

func (p *Persistence) Credentials(_ context.Context) ([]*models.Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var credentials []*models.Credential

	err := p.list("credentials", func(raw []byte) error {
		var credential models.Credential
		if err := json.Unmarshal(raw, &credential); err != nil {
			return err
		}

		credentials = append(credentials, &credential)

		return nil
	})
	if err != nil {
		return nil, persistence.NewStorageError("Credentials", "credential", "", err)
	}

	sort.Slice(credentials, func(i, j int) bool {
		return credentials[i].CreatedAt.Before(credentials[j].CreatedAt)
	})

	return credentials, nil
}

func (p *Persistence) CredentialByID(_ context.Context, id string) (*models.Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var credential models.Credential
	if err := p.read("credentials", id, &credential, persistence.ErrCredentialNotFound); err != nil {
		return nil, err
	}

	return &credential, nil
}

func (p *Persistence) SaveCredential(_ context.Context, credential *models.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write("credentials", credential.ID, credential); err != nil {
		return persistence.NewStorageError("SaveCredential", "credential", credential.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteCredential(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.remove("credentials", id, persistence.ErrCredentialNotFound)
}

var _ persistence.Persistence = (*Persistence)(nil)
