// Package main provides the txflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/vaultbridge/txflow/pkg/poller"
	"github.com/vaultbridge/txflow/pkg/registry"
	"github.com/vaultbridge/txflow/pkg/web"
	"github.com/vaultbridge/txflow/pkg/workflow"
)

type API struct {
	logger   *slog.Logger
	engine   *workflow.Engine
	deposits registry.DepositStore
	poller   *poller.Poller
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	engine *workflow.Engine,
	deposits registry.DepositStore,
	statusPoller *poller.Poller,
) *API {
	return &API{
		logger:   logger,
		engine:   engine,
		deposits: deposits,
		poller:   statusPoller,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.deposits, a.poller, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("txflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:kind", handlers.GetWorkflow)
	w.Post("/:kind/start", handlers.StartWorkflow)
	w.Post("/:kind/cancel", handlers.CancelWorkflow)

	d := app.Group("/deposits")
	d.Get("/", handlers.GetDeposits)
	d.Get("/:id", handlers.GetDeposit)
	d.Post("/resume-polling", handlers.ResumePolling)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
