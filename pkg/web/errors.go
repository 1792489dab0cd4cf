package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/cascadehq/cascade/pkg/generator"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, errType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(errType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, errType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(errType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors to problem responses.
// Unexpected errors are returned as opaque 500s.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidation(err):
		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrWorkflowNotEditable):
		return conflict(c, "workflow_not_editable", err.Error())

	case errors.Is(err, services.ErrWorkflowNotExecutable):
		return conflict(c, "workflow_not_executable", err.Error())

	case errors.Is(err, services.ErrExecutionFinished):
		return conflict(c, "execution_finished", err.Error())

	case errors.Is(err, generator.ErrGeneration):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("generation_failed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")

	case persistence.IsScheduleNotFound(err):
		return notFound(c, "schedule_not_found", "schedule not found")

	case persistence.IsCredentialNotFound(err):
		return notFound(c, "credential_not_found", "credential not found")

	default:
		return internalError(c, err)
	}
}
