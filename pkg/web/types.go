// Package web provides the HTTP layer of the workflow API.
package web

import "github.com/cascadehq/cascade/pkg/models"

// CreateWorkflowRequest is the body for creating a workflow definition.
type CreateWorkflowRequest struct {
	Name          string                 `json:"name"            validate:"required,min=3"`
	Description   string                 `json:"description"`
	Status        models.WorkflowStatus  `json:"status"          validate:"omitempty,oneof=draft active inactive"`
	TriggerType   models.TriggerType     `json:"trigger_type"    validate:"required,oneof=manual schedule webhook event"`
	TriggerConfig map[string]any         `json:"trigger_config"`
	Nodes         []*models.WorkflowNode `json:"nodes"`
	Variables     map[string]any         `json:"variables"`

	TimeoutSeconds int                `json:"timeout_seconds" validate:"gte=0"`
	Retry          models.RetryPolicy `json:"retry"`
	OnError        models.ErrorPolicy `json:"on_error"        validate:"omitempty,oneof=stop continue"`

	Owner string `json:"owner"`
}

// UpdateWorkflowRequest replaces the definition wholesale. Status changes go
// through the activate and deactivate endpoints instead.
type UpdateWorkflowRequest struct {
	Name          string                 `json:"name"            validate:"required,min=3"`
	Description   string                 `json:"description"`
	TriggerType   models.TriggerType     `json:"trigger_type"    validate:"required,oneof=manual schedule webhook event"`
	TriggerConfig map[string]any         `json:"trigger_config"`
	Nodes         []*models.WorkflowNode `json:"nodes"`
	Variables     map[string]any         `json:"variables"`

	TimeoutSeconds int                `json:"timeout_seconds" validate:"gte=0"`
	Retry          models.RetryPolicy `json:"retry"`
	OnError        models.ErrorPolicy `json:"on_error"        validate:"omitempty,oneof=stop continue"`
}

// GenerateWorkflowRequest asks the AI generator for a draft definition.
type GenerateWorkflowRequest struct {
	Description string `json:"description" validate:"required,min=10"`
}

// GenerateWorkflowResponse carries the draft plus every repair the sanitize
// pass applied to the model output.
type GenerateWorkflowResponse struct {
	Workflow *models.Workflow `json:"workflow"`
	Warnings []string         `json:"warnings"`
}

// StartExecutionRequest optionally carries the initial trigger payload.
type StartExecutionRequest struct {
	Payload map[string]any `json:"payload"`
}

// CreateScheduleRequest binds a cron expression to a workflow.
type CreateScheduleRequest struct {
	WorkflowID     string `json:"workflow_id"     validate:"required"`
	CronExpression string `json:"cron_expression" validate:"required"`
	Timezone       string `json:"timezone"`
}

// UpdateScheduleRequest changes expression, timezone or the enabled flag.
type UpdateScheduleRequest struct {
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	Enabled        bool   `json:"enabled"`
}

// CreateCredentialRequest carries plaintext fields exactly once, on the way
// into the vault. They are never echoed back.
type CreateCredentialRequest struct {
	Name            string         `json:"name"             validate:"required"`
	IntegrationType string         `json:"integration_type" validate:"required"`
	Fields          map[string]any `json:"fields"           validate:"required"`
	Metadata        map[string]any `json:"metadata"`
}

// UpdateCredentialRequest replaces the stored fields wholesale.
type UpdateCredentialRequest struct {
	Fields   map[string]any `json:"fields" validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

// CredentialResponse is the masked display form of a credential.
type CredentialResponse struct {
	Credential *models.Credential `json:"credential"`
	Fields     map[string]string  `json:"fields"`
}
