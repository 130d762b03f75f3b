// Package main provides the CCRS workflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccrs/workflow-engine/pkg/audit"
	"github.com/ccrs/workflow-engine/pkg/eventbus"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/ccrs/workflow-engine/pkg/services"
	"github.com/ccrs/workflow-engine/pkg/web"
	"github.com/ccrs/workflow-engine/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	auditLogger := audit.NewStoreLogger(a.persistence.AuditRepository(), a.logger)

	templateService := services.NewTemplate(a.persistence, a.eventBus, auditLogger)
	escalationService := services.NewEscalation(a.persistence, auditLogger)
	reminderService := services.NewReminder(a.persistence, auditLogger, nil)
	notificationService := services.NewNotification(a.persistence)

	engine := workflow.NewEngine(a.persistence, a.eventBus, auditLogger, a.logger)
	if a.tracer != nil {
		engine = engine.WithTracer(a.tracer)
	}

	handlers := web.NewAPIHandlers(
		templateService,
		escalationService,
		reminderService,
		notificationService,
		engine,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("CCRS Workflow API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Post("/import", handlers.ImportTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)
	t.Post("/:id/publish", handlers.PublishTemplate)
	t.Get("/:id/versions/:version", handlers.GetTemplateVersion)

	// Escalation rules hang off their template:
	t.Get("/:id/escalation-rules", handlers.GetEscalationRules)
	t.Post("/:id/escalation-rules", handlers.CreateEscalationRule)
	t.Delete("/:id/escalation-rules/:ruleId", handlers.DeleteEscalationRule)

	i := app.Group("/instances")
	i.Post("/", handlers.StartInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Get("/:id/history", handlers.GetInstanceHistory)
	i.Post("/:id/actions", handlers.RecordAction)

	c := app.Group("/contracts")
	c.Get("/:contractId/instance", handlers.GetActiveInstance)
	c.Get("/:contractId/reminders", handlers.GetContractReminders)
	c.Post("/:contractId/reminders", handlers.CreateReminder)

	r := app.Group("/reminders")
	r.Patch("/:id", handlers.UpdateReminder)
	r.Delete("/:id", handlers.DeleteReminder)

	e := app.Group("/escalations")
	e.Get("/", handlers.GetActiveEscalations)
	e.Post("/:id/resolve", handlers.ResolveEscalation)

	app.Get("/notifications", handlers.GetNotifications)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
