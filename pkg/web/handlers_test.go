package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrs/workflow-engine/pkg/audit"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence/memory"
	"github.com/ccrs/workflow-engine/pkg/services"
	"github.com/ccrs/workflow-engine/pkg/web"
	"github.com/ccrs/workflow-engine/pkg/workflow"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := memory.NewPersistence()

	templateService := services.NewTemplate(p, nil, audit.Nop{})
	escalationService := services.NewEscalation(p, audit.Nop{})
	reminderService := services.NewReminder(p, audit.Nop{}, nil)
	notificationService := services.NewNotification(p)
	engine := workflow.NewEngine(p, nil, audit.Nop{}, logger)

	handlers := web.NewAPIHandlers(templateService, escalationService, reminderService, notificationService,
		engine, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	templates := app.Group("/templates")
	templates.Get("/", handlers.GetTemplates)
	templates.Post("/", handlers.CreateTemplate)
	templates.Post("/import", handlers.ImportTemplate)
	templates.Get("/:id", handlers.GetTemplate)
	templates.Patch("/:id", handlers.UpdateTemplate)
	templates.Delete("/:id", handlers.DeleteTemplate)
	templates.Post("/:id/publish", handlers.PublishTemplate)
	templates.Get("/:id/versions/:version", handlers.GetTemplateVersion)
	templates.Get("/:id/escalation-rules", handlers.GetEscalationRules)
	templates.Post("/:id/escalation-rules", handlers.CreateEscalationRule)
	templates.Delete("/:id/escalation-rules/:ruleId", handlers.DeleteEscalationRule)

	instances := app.Group("/instances")
	instances.Post("/", handlers.StartInstance)
	instances.Get("/:id", handlers.GetInstance)
	instances.Get("/:id/history", handlers.GetInstanceHistory)
	instances.Post("/:id/actions", handlers.RecordAction)

	contracts := app.Group("/contracts")
	contracts.Get("/:contractId/instance", handlers.GetActiveInstance)
	contracts.Get("/:contractId/reminders", handlers.GetContractReminders)
	contracts.Post("/:contractId/reminders", handlers.CreateReminder)

	reminders := app.Group("/reminders")
	reminders.Patch("/:id", handlers.UpdateReminder)
	reminders.Delete("/:id", handlers.DeleteReminder)

	escalations := app.Group("/escalations")
	escalations.Get("/", handlers.GetActiveEscalations)
	escalations.Post("/:id/resolve", handlers.ResolveEscalation)

	app.Get("/notifications", handlers.GetNotifications)
	app.Get("/health", handlers.HealthCheck)

	return app, p
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()

	var body io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func asManager(req *http.Request) *http.Request {
	req.Header.Set(web.HeaderUserID, "cm-1")
	req.Header.Set(web.HeaderUserEmail, "cm@example.com")
	req.Header.Set(web.HeaderUserRoles, "Contract Manager, Legal")

	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func createTemplatePayload() services.CreateTemplateRequest {
	return services.CreateTemplateRequest{
		Name:         "Commercial Standard",
		ContractType: models.ContractTypeCommercial,
		Stages: []models.Stage{
			{Name: "Draft", Type: models.StageTypeDraft, Owners: []models.PrincipalRef{models.RoleRef("Contract Manager")}, AllowedTransitions: []string{"Approval"}},
			{Name: "Approval", Type: models.StageTypeApproval, Approvers: []models.PrincipalRef{models.RoleRef("Legal")}, AllowedTransitions: []string{"Signing"}},
			{Name: "Signing", Type: models.StageTypeSigning, AllowedTransitions: []string{}},
		},
	}
}

func createTemplate(t *testing.T, app *fiber.App) models.WorkflowTemplate {
	t.Helper()

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/", createTemplatePayload())))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var template models.WorkflowTemplate
	decodeBody(t, resp, &template)

	return template
}

func publishTemplate(t *testing.T, app *fiber.App, id string) models.WorkflowTemplate {
	t.Helper()

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/"+id+"/publish", nil)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var template models.WorkflowTemplate
	decodeBody(t, resp, &template)

	return template
}

func TestCreateTemplate(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)

	assert.NotEmpty(t, template.ID)
	assert.Equal(t, models.TemplateStatusDraft, template.Status)
	assert.Equal(t, "cm-1", template.CreatedBy)
}

func TestCreateTemplate_RequiresIdentity(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/templates/", createTemplatePayload()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateTemplate_ValidationError(t *testing.T) {
	app, _ := setupTestApp(t)

	payload := createTemplatePayload()
	payload.Name = "ab" // min=3

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/", payload)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishTemplate_ReturnsAllViolations(t *testing.T) {
	app, _ := setupTestApp(t)

	payload := createTemplatePayload()
	payload.Stages = []models.Stage{
		{Name: "Draft", Type: models.StageTypeDraft, AllowedTransitions: []string{}},
	}

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/", payload)))
	require.NoError(t, err)

	var template models.WorkflowTemplate
	decodeBody(t, resp, &template)

	resp, err = app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/"+template.ID+"/publish", nil)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem map[string]any
	decodeBody(t, resp, &problem)

	detail, _ := problem["detail"].(string)
	assert.Contains(t, detail, "approval stage")
	assert.Contains(t, detail, "signing stage")
}

func TestGetTemplate_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/templates/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem map[string]any
	decodeBody(t, resp, &problem)
	assert.Equal(t, "not_found", problem["type"])
}

func TestListTemplates_Filtering(t *testing.T) {
	app, _ := setupTestApp(t)

	createTemplate(t, app)

	merchant := createTemplatePayload()
	merchant.Name = "Merchant Standard"
	merchant.ContractType = models.ContractTypeMerchant

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/", merchant)))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/templates/?contract_type=Merchant", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Templates  []models.WorkflowTemplate `json:"templates"`
		TotalCount int64                     `json:"total_count"`
	}
	decodeBody(t, resp, &result)

	assert.Equal(t, int64(1), result.TotalCount)
	require.Len(t, result.Templates, 1)
	assert.Equal(t, "Merchant Standard", result.Templates[0].Name)
}

func TestImportTemplate_SchemaViolations(t *testing.T) {
	app, _ := setupTestApp(t)

	// contract_type outside the enum and name too short.
	document := map[string]any{
		"name":          "ab",
		"contract_type": "Internal",
		"stages": []map[string]any{
			{"name": "Draft", "type": "draft"},
		},
	}

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/import", document)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportTemplate_AcceptsValidDocument(t *testing.T) {
	app, _ := setupTestApp(t)

	document := map[string]any{
		"name":          "Imported Commercial",
		"contract_type": "Commercial",
		"stages": []map[string]any{
			{"name": "Draft", "type": "draft", "allowed_transitions": []string{"Signing"}},
			{"name": "Signing", "type": "signing", "allowed_transitions": []string{}},
		},
	}

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/import", document)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var template models.WorkflowTemplate
	decodeBody(t, resp, &template)
	assert.Equal(t, "Imported Commercial", template.Name)
	assert.Equal(t, models.TemplateStatusDraft, template.Status)
}

func TestInstanceLifecycleOverHTTP(t *testing.T) {
	app, p := setupTestApp(t)

	p.SeedContract(&models.ContractRef{ID: "contract-1", Title: "Supply Agreement", EntityID: "entity-1"})
	p.SeedSigningAuthority(&models.SigningAuthority{ID: "sa-1", EntityID: "entity-1", UserID: "cm-1"})

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/instances/", web.StartInstanceRequest{
		ContractID: "contract-1",
		TemplateID: template.ID,
	})))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	decodeBody(t, resp, &instance)
	assert.Equal(t, "Draft", instance.CurrentStage)

	// Starting again conflicts while the first instance is active.
	resp, err = app.Test(asManager(jsonRequest(t, http.MethodPost, "/instances/", web.StartInstanceRequest{
		ContractID: "contract-1",
		TemplateID: template.ID,
	})))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The active instance resolves by contract and carries the pinned stages.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/contracts/contract-1/instance", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var active web.InstanceResponse
	decodeBody(t, resp, &active)
	assert.Equal(t, instance.ID, active.ID)
	assert.Len(t, active.Stages, 3)

	// Approve through all stages.
	for _, stage := range []string{"Draft", "Approval", "Signing"} {
		resp, err = app.Test(asManager(jsonRequest(t, http.MethodPost, "/instances/"+instance.ID+"/actions", web.RecordActionRequest{
			StageName: stage,
			Action:    models.ActionApprove,
		})))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "approve at %s", stage)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/instances/"+instance.ID, nil))
	require.NoError(t, err)

	var final web.InstanceResponse
	decodeBody(t, resp, &final)
	assert.Equal(t, models.InstanceStateCompleted, final.State)

	// History shows one row per approve.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/instances/"+instance.ID+"/history", nil))
	require.NoError(t, err)

	var history struct {
		Actions []models.StageAction `json:"actions"`
	}
	decodeBody(t, resp, &history)
	assert.Len(t, history.Actions, 3)
}

func TestRecordAction_StaleStageConflictsAs400(t *testing.T) {
	app, p := setupTestApp(t)

	p.SeedContract(&models.ContractRef{ID: "contract-1", EntityID: "entity-1"})

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/instances/", web.StartInstanceRequest{
		ContractID: "contract-1",
		TemplateID: template.ID,
	})))
	require.NoError(t, err)

	var instance models.WorkflowInstance
	decodeBody(t, resp, &instance)

	resp, err = app.Test(asManager(jsonRequest(t, http.MethodPost, "/instances/"+instance.ID+"/actions", web.RecordActionRequest{
		StageName: "Approval",
		Action:    models.ActionApprove,
	})))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecordAction_UnauthorizedActorIsForbidden(t *testing.T) {
	app, p := setupTestApp(t)

	p.SeedContract(&models.ContractRef{ID: "contract-1", EntityID: "entity-1"})

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/instances/", web.StartInstanceRequest{
		ContractID: "contract-1",
		TemplateID: template.ID,
	})))
	require.NoError(t, err)

	var instance models.WorkflowInstance
	decodeBody(t, resp, &instance)

	req := jsonRequest(t, http.MethodPost, "/instances/"+instance.ID+"/actions", web.RecordActionRequest{
		StageName: "Draft",
		Action:    models.ActionApprove,
	})
	req.Header.Set(web.HeaderUserID, "viewer-1")
	req.Header.Set(web.HeaderUserRoles, "Viewer")

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEscalationRulesAndResolution(t *testing.T) {
	app, p := setupTestApp(t)

	template := createTemplate(t, app)

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/templates/"+template.ID+"/escalation-rules", services.CreateRuleRequest{
		StageName:      "Approval",
		Tier:           1,
		SLABreachHours: 48,
		EscalateToRole: "Legal Lead",
	})))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rule models.EscalationRule
	decodeBody(t, resp, &rule)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/templates/"+template.ID+"/escalation-rules", nil))
	require.NoError(t, err)

	var rules struct {
		Rules []models.EscalationRule `json:"rules"`
	}
	decodeBody(t, resp, &rules)
	require.Len(t, rules.Rules, 1)

	// Seed a breach event and resolve it through the API.
	require.NoError(t, p.EscalationRepository().InsertEvent(t.Context(), &models.EscalationEvent{
		ID:         "evt-1",
		InstanceID: "inst-1",
		RuleID:     rule.ID,
		ContractID: "contract-1",
		StageName:  "Approval",
		Tier:       1,
	}))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/escalations/", nil))
	require.NoError(t, err)

	var activeList struct {
		Events     []models.EscalationEvent `json:"events"`
		TotalCount int64                    `json:"total_count"`
	}
	decodeBody(t, resp, &activeList)
	assert.Equal(t, int64(1), activeList.TotalCount)

	resp, err = app.Test(asManager(jsonRequest(t, http.MethodPost, "/escalations/evt-1/resolve", nil)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resolved models.EscalationEvent
	decodeBody(t, resp, &resolved)
	assert.Equal(t, "cm-1", resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	// Resolving a second time is a 404.
	resp, err = app.Test(asManager(jsonRequest(t, http.MethodPost, "/escalations/evt-1/resolve", nil)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReminderEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(asManager(jsonRequest(t, http.MethodPost, "/contracts/contract-1/reminders", services.CreateReminderRequest{
		ReminderType:   models.ReminderTypeExpiry,
		LeadDays:       30,
		Channel:        models.ChannelEmail,
		RecipientEmail: "owner@example.com",
	})))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reminder models.Reminder
	decodeBody(t, resp, &reminder)
	assert.True(t, reminder.IsActive)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/contracts/contract-1/reminders", nil))
	require.NoError(t, err)

	var list struct {
		Reminders []models.Reminder `json:"reminders"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Reminders, 1)

	inactive := false

	resp, err = app.Test(asManager(jsonRequest(t, http.MethodPatch, "/reminders/"+reminder.ID, services.UpdateReminderRequest{
		IsActive: &inactive,
	})))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Reminder
	decodeBody(t, resp, &updated)
	assert.False(t, updated.IsActive)

	resp, err = app.Test(asManager(jsonRequest(t, http.MethodDelete, "/reminders/"+reminder.ID, nil)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(asManager(jsonRequest(t, http.MethodDelete, "/reminders/"+reminder.ID, nil)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetNotifications(t *testing.T) {
	app, p := setupTestApp(t)

	require.NoError(t, p.NotificationRepository().Insert(t.Context(), &models.Notification{
		ID:             "n-1",
		RecipientEmail: "owner@example.com",
		Channel:        models.ChannelEmail,
		Subject:        "Escalation",
		Status:         models.NotificationStatusPending,
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/notifications?recipient_email=owner@example.com", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Notifications []models.Notification `json:"notifications"`
		TotalCount    int64                 `json:"total_count"`
	}
	decodeBody(t, resp, &list)
	assert.Equal(t, int64(1), list.TotalCount)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	decodeBody(t, resp, &health)
	assert.Equal(t, "healthy", health["status"])
}
