// Package web provides HTTP handlers and REST API endpoints for workflow control.
package web

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/poller"
	"github.com/vaultbridge/txflow/pkg/registry"
	"github.com/vaultbridge/txflow/pkg/workflow"
)

type APIHandlers struct {
	engine    *workflow.Engine
	deposits  registry.DepositStore
	poller    *poller.Poller
	validator *validator.Validate
}

func NewAPIHandlers(
	engine *workflow.Engine,
	deposits registry.DepositStore,
	statusPoller *poller.Poller,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		deposits:  deposits,
		poller:    statusPoller,
		validator: validator,
	}
}

func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	var req StartWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Start(c.Context(), workflow.StartRequest{
		Kind:      models.WorkflowKind(c.Params("kind")),
		Amount:    req.Amount,
		Recipient: common.HexToAddress(req.Recipient),
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	instance, err := h.engine.Cancel(c.Context(), models.WorkflowKind(c.Params("kind")))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	instance, err := h.engine.Instance(models.WorkflowKind(c.Params("kind")))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"workflows": h.engine.Instances(),
	})
}

func (h *APIHandlers) GetDeposits(c fiber.Ctx) error {
	records, err := h.deposits.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"deposits": records,
	})
}

func (h *APIHandlers) GetDeposit(c fiber.Ctx) error {
	record, err := h.deposits.ByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(record)
}

// ResumePolling restarts status polling for every pending deposit. Used after
// a session reload, since poll timeouts leave deposits pending and resumable.
func (h *APIHandlers) ResumePolling(c fiber.Ctx) error {
	// Polling must outlive this request.
	err := h.poller.Resume(context.WithoutCancel(c.Context()))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "resumed",
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.deposits.HealthCheck(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
