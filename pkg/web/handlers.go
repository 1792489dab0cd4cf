package web

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/services"
)

// WorkflowGenerator is the AI drafting dependency. It is optional; without a
// configured LLM provider the generate endpoint answers 503.
type WorkflowGenerator interface {
	Generate(ctx context.Context, description string) (*models.Workflow, []string, error)
}

type APIHandlers struct {
	workflows   *services.WorkflowService
	executions  *services.ExecutionService
	schedules   *services.ScheduleService
	credentials *services.CredentialService
	generator   WorkflowGenerator
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	workflows *services.WorkflowService,
	executions *services.ExecutionService,
	schedules *services.ScheduleService,
	credentials *services.CredentialService,
	generator WorkflowGenerator,
	reg *registry.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflows:   workflows,
		executions:  executions,
		schedules:   schedules,
		credentials: credentials,
		generator:   generator,
		registry:    reg,
		validator:   validate,
	}
}

// Workflows

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflows.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflows.Create(c.Context(), &models.Workflow{
		Name:           req.Name,
		Description:    req.Description,
		Status:         req.Status,
		TriggerType:    req.TriggerType,
		TriggerConfig:  req.TriggerConfig,
		Nodes:          req.Nodes,
		Variables:      req.Variables,
		TimeoutSeconds: req.TimeoutSeconds,
		Retry:          req.Retry,
		OnError:        req.OnError,
		Owner:          req.Owner,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.workflows.Update(c.Context(), &models.Workflow{
		ID:             existing.ID,
		Name:           req.Name,
		Description:    req.Description,
		Status:         existing.Status,
		TriggerType:    req.TriggerType,
		TriggerConfig:  req.TriggerConfig,
		Nodes:          req.Nodes,
		Variables:      req.Variables,
		TimeoutSeconds: req.TimeoutSeconds,
		Retry:          req.Retry,
		OnError:        req.OnError,
		Owner:          existing.Owner,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflows.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflows.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) RotateWebhookToken(c fiber.Ctx) error {
	workflow, err := h.workflows.RotateWebhookToken(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"webhook_token": workflow.WebhookToken})
}

// ArchiveWorkflow soft-deletes: the definition becomes immutable, execution
// history stays readable.
func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	if err := h.workflows.Archive(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GenerateWorkflow(c fiber.Ctx) error {
	if h.generator == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "workflow generation is not configured",
		})
	}

	var req GenerateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, warnings, err := h.generator.Generate(c.Context(), req.Description)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(GenerateWorkflowResponse{
		Workflow: workflow,
		Warnings: warnings,
	})
}

// Executions

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	execution, err := h.executions.Start(c.Context(), c.Params("id"), models.TriggerTypeManual, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+limitStr)
		}

		limit = parsed
	}

	executions, err := h.executions.List(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	steps, err := h.executions.Steps(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"steps": steps})
}

func (h *APIHandlers) StopExecution(c fiber.Ctx) error {
	execution, err := h.executions.Stop(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// Webhook is the public trigger endpoint. The token is the only
// authentication; an unknown token and a non-executable workflow are both an
// opaque 404.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	workflow, err := h.workflows.GetByWebhookToken(c.Context(), c.Params("token"))
	if err != nil {
		return notFound(c, "not_found", "not found")
	}

	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	execution, err := h.executions.Start(c.Context(), workflow.ID, models.TriggerTypeWebhook, payload)
	if err != nil {
		return notFound(c, "not_found", "not found")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": execution.ID,
		"status":       execution.Status,
	})
}

// Schedules

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	schedules, err := h.schedules.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

func (h *APIHandlers) GetWorkflowSchedules(c fiber.Ctx) error {
	schedules, err := h.schedules.ListByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	schedule, err := h.schedules.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.schedules.Create(c.Context(), req.WorkflowID, req.CronExpression, req.Timezone)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) UpdateSchedule(c fiber.Ctx) error {
	var req UpdateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	schedule, err := h.schedules.Update(c.Context(), c.Params("id"), req.CronExpression, req.Timezone, req.Enabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.schedules.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Credentials

func (h *APIHandlers) GetCredentials(c fiber.Ctx) error {
	credentials, err := h.credentials.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"credentials": credentials})
}

func (h *APIHandlers) GetCredential(c fiber.Ctx) error {
	credential, masked, err := h.credentials.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(CredentialResponse{Credential: credential, Fields: masked})
}

func (h *APIHandlers) CreateCredential(c fiber.Ctx) error {
	var req CreateCredentialRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	credential, err := h.credentials.Create(c.Context(), req.Name, req.IntegrationType, req.Fields, req.Metadata)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(credential)
}

func (h *APIHandlers) UpdateCredential(c fiber.Ctx) error {
	var req UpdateCredentialRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	credential, err := h.credentials.Update(c.Context(), c.Params("id"), req.Fields, req.Metadata)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(credential)
}

func (h *APIHandlers) DeleteCredential(c fiber.Ctx) error {
	if err := h.credentials.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Node catalog

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"node_types": h.registry.NodeTypes()})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	name, healthy := h.registry.HealthCheck()
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "unhealthy",
			"registry": name,
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
