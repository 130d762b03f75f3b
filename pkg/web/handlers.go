// Package web provides HTTP handlers and REST API endpoints for contract
// workflow management.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/ccrs/workflow-engine/pkg/services"
	"github.com/ccrs/workflow-engine/pkg/workflow"
)

type APIHandlers struct {
	templateService     *services.Template
	escalationService   *services.Escalation
	reminderService     *services.Reminder
	notificationService *services.Notification
	engine              *workflow.Engine
	validator           *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	escalationService *services.Escalation,
	reminderService *services.Reminder,
	notificationService *services.Notification,
	engine *workflow.Engine,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService:     templateService,
		escalationService:   escalationService,
		reminderService:     reminderService,
		notificationService: notificationService,
		engine:              engine,
		validator:           validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "CCRS workflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "CCRS workflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// --- Templates ---

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	opts, err := h.parseTemplateListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.templateService.List(c.Context(), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates":   result.Templates,
		"total_count": result.TotalCount,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func (h *APIHandlers) parseTemplateListOptions(c fiber.Ctx) (*persistence.TemplateListOptions, error) {
	opts := &persistence.TemplateListOptions{
		RegionID:  c.Query("region_id"),
		EntityID:  c.Query("entity_id"),
		ProjectID: c.Query("project_id"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.TemplateStatus(statusStr)
		opts.Status = &status
	}

	if typeStr := c.Query("contract_type"); typeStr != "" {
		contractType := models.ContractType(typeStr)
		opts.ContractType = &contractType
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	return opts, nil
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.Get(c.Context(), id)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "Template not found")
		}

		return internalError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) GetTemplateVersion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	version, err := strconv.Atoi(c.Params("version"))
	if err != nil {
		return badRequest(c, "Version must be an integer")
	}

	snapshot, err := h.templateService.GetVersion(c.Context(), id, version)
	if err != nil {
		if persistence.IsTemplateVersionNotFound(err) {
			return notFound(c, "Template version not found")
		}

		return internalError(c, err)
	}

	return c.JSON(snapshot)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	var req services.CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	req.CreatedBy = actor.ID

	created, err := h.templateService.Create(c.Context(), req, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ImportTemplate accepts an externally authored template document, validates
// it against the JSON schema and stores it as a draft.
func (h *APIHandlers) ImportTemplate(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	body := c.Body()

	violations, err := validateTemplateDocument(body)
	if err != nil {
		return badRequest(c, "Invalid JSON document")
	}

	if len(violations) > 0 {
		return badRequest(c, "Template document is invalid: "+strings.Join(violations, "; "))
	}

	var req services.CreateTemplateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.CreatedBy = actor.ID

	created, err := h.templateService.Create(c.Context(), req, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req services.UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.templateService.Update(c.Context(), id, req, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) PublishTemplate(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	published, err := h.templateService.Publish(c.Context(), id, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	err := h.templateService.Delete(c.Context(), id, actor)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "Template not found")
		}

		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Instances ---

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Start(c.Context(), req.ContractID, req.TemplateID, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.engine.Instance(c.Context(), id)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return notFound(c, "Instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(h.decorateInstance(c, instance))
}

func (h *APIHandlers) GetActiveInstance(c fiber.Ctx) error {
	contractID := c.Params("contractId")
	if contractID == "" {
		return badRequest(c, "Contract ID is required")
	}

	instance, err := h.engine.ActiveInstance(c.Context(), contractID)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return notFound(c, "Contract has no active workflow instance")
		}

		return internalError(c, err)
	}

	return c.JSON(h.decorateInstance(c, instance))
}

func (h *APIHandlers) GetInstanceHistory(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	history, err := h.engine.History(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"actions": history})
}

func (h *APIHandlers) RecordAction(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req RecordActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	action, err := h.engine.RecordAction(c.Context(), id, req.StageName, workflow.ActionInput{
		Action:    req.Action,
		Comment:   req.Comment,
		Artifacts: req.Artifacts,
	}, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(action)
}

// decorateInstance attaches the pinned snapshot's stage definitions when they
// resolve; a missing snapshot degrades to the bare instance.
func (h *APIHandlers) decorateInstance(c fiber.Ctx, instance *models.WorkflowInstance) *InstanceResponse {
	response := &InstanceResponse{WorkflowInstance: instance}

	snapshot, err := h.templateService.GetVersion(c.Context(), instance.TemplateID, instance.TemplateVersion)
	if err == nil {
		response.Stages = snapshot.Stages
	}

	return response
}

func parsePagination(c fiber.Ctx, defaultLimit int) (int, int, error) {
	limit := defaultLimit
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}

		limit = parsed
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}

		offset = parsed
	}

	return limit, offset, nil
}

// --- Escalations ---

func (h *APIHandlers) GetEscalationRules(c fiber.Ctx) error {
	templateID := c.Params("id")
	if templateID == "" {
		return badRequest(c, "Template ID is required")
	}

	rules, err := h.escalationService.ListRules(c.Context(), templateID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"rules": rules})
}

func (h *APIHandlers) CreateEscalationRule(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	templateID := c.Params("id")
	if templateID == "" {
		return badRequest(c, "Template ID is required")
	}

	var req services.CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.escalationService.CreateRule(c.Context(), templateID, req, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *APIHandlers) DeleteEscalationRule(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	ruleID := c.Params("ruleId")
	if ruleID == "" {
		return badRequest(c, "Rule ID is required")
	}

	if err := h.escalationService.DeleteRule(c.Context(), ruleID, actor); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetActiveEscalations(c fiber.Ctx) error {
	limit, offset, err := parsePagination(c, 50)
	if err != nil {
		return badRequest(c, "Invalid pagination parameters: "+err.Error())
	}

	events, total, err := h.escalationService.ListActive(c.Context(), limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"events":      events,
		"total_count": total,
	})
}

func (h *APIHandlers) ResolveEscalation(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	eventID := c.Params("id")
	if eventID == "" {
		return badRequest(c, "Event ID is required")
	}

	event, err := h.escalationService.Resolve(c.Context(), eventID, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(event)
}

// --- Reminders ---

func (h *APIHandlers) GetContractReminders(c fiber.Ctx) error {
	contractID := c.Params("contractId")
	if contractID == "" {
		return badRequest(c, "Contract ID is required")
	}

	reminders, err := h.reminderService.ListByContract(c.Context(), contractID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"reminders": reminders})
}

func (h *APIHandlers) CreateReminder(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	contractID := c.Params("contractId")
	if contractID == "" {
		return badRequest(c, "Contract ID is required")
	}

	var req services.CreateReminderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	reminder, err := h.reminderService.Create(c.Context(), contractID, req, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(reminder)
}

func (h *APIHandlers) UpdateReminder(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Reminder ID is required")
	}

	var req services.UpdateReminderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	reminder, err := h.reminderService.Update(c.Context(), id, req, actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(reminder)
}

func (h *APIHandlers) DeleteReminder(c fiber.Ctx) error {
	actor := actorFromRequest(c)
	if actor == nil {
		return unauthorized(c)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Reminder ID is required")
	}

	if err := h.reminderService.Delete(c.Context(), id, actor); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Notifications ---

func (h *APIHandlers) GetNotifications(c fiber.Ctx) error {
	limit, offset, err := parsePagination(c, 50)
	if err != nil {
		return badRequest(c, "Invalid pagination parameters: "+err.Error())
	}

	notifications, total, err := h.notificationService.List(c.Context(),
		c.Query("recipient_email"), c.Query("status"), limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"total_count":   total,
	})
}
