package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/vaultbridge/txflow/pkg/chain"
	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/registry"
	"github.com/vaultbridge/txflow/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
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

// handleEngineError maps engine and chain errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workflow.ErrUnknownKind):
		return notFound(c, "unknown workflow kind")

	case errors.Is(err, workflow.ErrWorkflowInFlight):
		return conflict(c, "a workflow of this kind is already in flight")

	case errors.Is(err, workflow.ErrNoActiveWorkflow):
		return notFound(c, "no active workflow for this kind")

	case errors.Is(err, models.ErrInvalidAmount):
		return badRequest(c, err.Error())

	case errors.Is(err, chain.ErrRejectedByOperator):
		// The operator declined in their wallet. The workflow is back at
		// idle; no error banner is warranted.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "cancelled_by_operator",
		})

	case chain.IsSubmissionError(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("submission_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	case errors.Is(err, registry.ErrDepositNotFound):
		return notFound(c, "deposit record not found")

	default:
		return internalError(c, err)
	}
}
