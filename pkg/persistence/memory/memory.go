// Package memory provides a mutex-guarded in-memory implementation of the
// persistence layer. It backs local runs without a database and is the
// workhorse of the unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// Persistence implements persistence.Persistence entirely in memory.
type Persistence struct {
	mu sync.RWMutex

	templates        map[string]*models.WorkflowTemplate
	templateVersions map[string]map[int]*models.TemplateVersion
	instances        map[string]*models.WorkflowInstance
	actions          []*models.StageAction
	rules            map[string]*models.EscalationRule
	escalationEvents map[string]*models.EscalationEvent
	reminders        map[string]*models.Reminder
	notifications    map[string]*models.Notification
	notificationSeq  []string
	signingAuthority []*models.SigningAuthority
	contracts        map[string]*models.ContractRef
	auditEntries     []*persistence.AuditEntry
}

// NewPersistence creates an empty in-memory persistence layer.
func NewPersistence() *Persistence {
	return &Persistence{
		templates:        make(map[string]*models.WorkflowTemplate),
		templateVersions: make(map[string]map[int]*models.TemplateVersion),
		instances:        make(map[string]*models.WorkflowInstance),
		actions:          make([]*models.StageAction, 0),
		rules:            make(map[string]*models.EscalationRule),
		escalationEvents: make(map[string]*models.EscalationEvent),
		reminders:        make(map[string]*models.Reminder),
		notifications:    make(map[string]*models.Notification),
		notificationSeq:  make([]string, 0),
		signingAuthority: make([]*models.SigningAuthority, 0),
		contracts:        make(map[string]*models.ContractRef),
		auditEntries:     make([]*persistence.AuditEntry, 0),
	}
}

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

func (p *Persistence) TemplateRepository() persistence.TemplateRepository { return &templateRepo{p} }
func (p *Persistence) InstanceRepository() persistence.InstanceRepository { return &instanceRepo{p} }
func (p *Persistence) ActionRepository() persistence.ActionRepository     { return &actionRepo{p} }
func (p *Persistence) EscalationRepository() persistence.EscalationRepository {
	return &escalationRepo{p}
}
func (p *Persistence) ReminderRepository() persistence.ReminderRepository { return &reminderRepo{p} }
func (p *Persistence) NotificationRepository() persistence.NotificationRepository {
	return &notificationRepo{p}
}
func (p *Persistence) SigningAuthorityRepository() persistence.SigningAuthorityRepository {
	return &signingAuthorityRepo{p}
}
func (p *Persistence) ContractRepository() persistence.ContractRepository { return &contractRepo{p} }
func (p *Persistence) AuditRepository() persistence.AuditRepository       { return &auditRepo{p} }

// SeedContract registers a contract reference so the engine can resolve and
// mirror it. Tests and local tools use this in place of the CRUD layer.
func (p *Persistence) SeedContract(contract *models.ContractRef) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := *contract
	p.contracts[c.ID] = &c
}

// SeedSigningAuthority registers signing-authority rows.
func (p *Persistence) SeedSigningAuthority(rows ...*models.SigningAuthority) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, row := range rows {
		r := *row
		p.signingAuthority = append(p.signingAuthority, &r)
	}
}

// AuditEntries returns a snapshot of all recorded audit entries.
func (p *Persistence) AuditEntries() []*persistence.AuditEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*persistence.AuditEntry, len(p.auditEntries))
	copy(out, p.auditEntries)

	return out
}

type templateRepo struct{ p *Persistence }

func (r *templateRepo) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	template, ok := r.p.templates[id]
	if !ok {
		return nil, persistence.ErrTemplateNotFound
	}

	t := *template

	return &t, nil
}

func (r *templateRepo) List(_ context.Context, opts persistence.TemplateListOptions) (*persistence.TemplateListResult, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.WorkflowTemplate, 0, len(r.p.templates))

	for _, template := range r.p.templates {
		if opts.Status != nil && template.Status != *opts.Status {
			continue
		}

		if opts.ContractType != nil && template.ContractType != *opts.ContractType {
			continue
		}

		if opts.RegionID != "" && (template.RegionID == nil || *template.RegionID != opts.RegionID) {
			continue
		}

		if opts.EntityID != "" && (template.EntityID == nil || *template.EntityID != opts.EntityID) {
			continue
		}

		if opts.ProjectID != "" && (template.ProjectID == nil || *template.ProjectID != opts.ProjectID) {
			continue
		}

		t := *template
		matched = append(matched, &t)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return &persistence.TemplateListResult{
		Templates:  matched[start:end],
		TotalCount: total,
	}, nil
}

func (r *templateRepo) Save(_ context.Context, template *models.WorkflowTemplate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	t := *template
	r.p.templates[t.ID] = &t

	return nil
}

func (r *templateRepo) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.templates[id]; !ok {
		return persistence.ErrTemplateNotFound
	}

	delete(r.p.templates, id)
	delete(r.p.templateVersions, id)

	return nil
}

func (r *templateRepo) SaveVersion(_ context.Context, version *models.TemplateVersion) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if r.p.templateVersions[version.TemplateID] == nil {
		r.p.templateVersions[version.TemplateID] = make(map[int]*models.TemplateVersion)
	}

	v := *version
	v.Stages = append([]models.Stage(nil), version.Stages...)
	r.p.templateVersions[version.TemplateID][version.Version] = &v

	return nil
}

func (r *templateRepo) GetVersion(_ context.Context, templateID string, version int) (*models.TemplateVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	versions, ok := r.p.templateVersions[templateID]
	if !ok {
		return nil, persistence.ErrTemplateVersionNotFound
	}

	snapshot, ok := versions[version]
	if !ok {
		return nil, persistence.ErrTemplateVersionNotFound
	}

	v := *snapshot
	v.Stages = append([]models.Stage(nil), snapshot.Stages...)

	return &v, nil
}

type instanceRepo struct{ p *Persistence }

func (r *instanceRepo) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	instance, ok := r.p.instances[id]
	if !ok {
		return nil, persistence.ErrInstanceNotFound
	}

	i := *instance

	return &i, nil
}

func (r *instanceRepo) GetActiveByContract(_ context.Context, contractID string) (*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, instance := range r.p.instances {
		if instance.ContractID == contractID && instance.State == models.InstanceStateActive {
			i := *instance

			return &i, nil
		}
	}

	return nil, persistence.ErrInstanceNotFound
}

func (r *instanceRepo) ListActive(_ context.Context) ([]*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	active := make([]*models.WorkflowInstance, 0)

	for _, instance := range r.p.instances {
		if instance.State == models.InstanceStateActive {
			i := *instance
			active = append(active, &i)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.Before(active[j].StartedAt)
	})

	return active, nil
}

func (r *instanceRepo) Save(_ context.Context, instance *models.WorkflowInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	// Same guard the SQL backend gets from its partial unique index: at most
	// one active instance per contract.
	if instance.State == models.InstanceStateActive {
		for _, existing := range r.p.instances {
			if existing.ID != instance.ID &&
				existing.ContractID == instance.ContractID &&
				existing.State == models.InstanceStateActive {
				return persistence.ErrDuplicateActiveInstance
			}
		}
	}

	i := *instance
	r.p.instances[i.ID] = &i

	return nil
}

func (r *instanceRepo) AdvanceFromStage(_ context.Context, instance *models.WorkflowInstance, expectedStage string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, ok := r.p.instances[instance.ID]
	if !ok {
		return persistence.ErrInstanceNotFound
	}

	if stored.State != models.InstanceStateActive || stored.CurrentStage != expectedStage {
		return persistence.ErrStaleInstanceStage
	}

	i := *instance
	r.p.instances[i.ID] = &i

	return nil
}

type actionRepo struct{ p *Persistence }

func (r *actionRepo) Append(_ context.Context, action *models.StageAction) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	a := *action
	r.p.actions = append(r.p.actions, &a)

	return nil
}

func (r *actionRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.StageAction, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.StageAction, 0)

	for _, action := range r.p.actions {
		if action.InstanceID == instanceID {
			a := *action
			matched = append(matched, &a)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (r *actionRepo) LatestByInstance(ctx context.Context, instanceID string) (*models.StageAction, error) {
	actions, err := r.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if len(actions) == 0 {
		return nil, nil
	}

	return actions[len(actions)-1], nil
}

type escalationRepo struct{ p *Persistence }

func (r *escalationRepo) ListRulesByTemplate(_ context.Context, templateID string) ([]*models.EscalationRule, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.EscalationRule, 0)

	for _, rule := range r.p.rules {
		if rule.TemplateID == templateID {
			rr := *rule
			matched = append(matched, &rr)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StageName != matched[j].StageName {
			return matched[i].StageName < matched[j].StageName
		}

		return matched[i].Tier < matched[j].Tier
	})

	return matched, nil
}

func (r *escalationRepo) ListRulesByStage(_ context.Context, templateID, stageName string) ([]*models.EscalationRule, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.EscalationRule, 0)

	for _, rule := range r.p.rules {
		if rule.TemplateID == templateID && rule.StageName == stageName {
			rr := *rule
			matched = append(matched, &rr)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Tier < matched[j].Tier })

	return matched, nil
}

func (r *escalationRepo) SaveRule(_ context.Context, rule *models.EscalationRule) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	rr := *rule
	r.p.rules[rr.ID] = &rr

	return nil
}

func (r *escalationRepo) DeleteRule(_ context.Context, ruleID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.rules[ruleID]; !ok {
		return persistence.ErrRuleNotFound
	}

	delete(r.p.rules, ruleID)

	return nil
}

func (r *escalationRepo) HasUnresolvedEvent(_ context.Context, instanceID, ruleID string) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, event := range r.p.escalationEvents {
		if event.InstanceID == instanceID && event.RuleID == ruleID && !event.Resolved() {
			return true, nil
		}
	}

	return false, nil
}

func (r *escalationRepo) InsertEvent(_ context.Context, event *models.EscalationEvent) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	// Enforce the same partial uniqueness the SQL backend has via its index:
	// at most one unresolved event per (instance, rule).
	for _, existing := range r.p.escalationEvents {
		if existing.InstanceID == event.InstanceID && existing.RuleID == event.RuleID && !existing.Resolved() {
			return persistence.ErrDuplicateEscalationEvent
		}
	}

	e := *event
	r.p.escalationEvents[e.ID] = &e

	return nil
}

func (r *escalationRepo) ListUnresolvedEvents(_ context.Context, limit, offset int) ([]*models.EscalationEvent, int64, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.EscalationEvent, 0)

	for _, event := range r.p.escalationEvents {
		if !event.Resolved() {
			e := *event
			matched = append(matched, &e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].EscalatedAt.After(matched[j].EscalatedAt)
	})

	total := int64(len(matched))

	if limit <= 0 {
		limit = 50
	}

	start := offset
	if start > len(matched) {
		start = len(matched)
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], total, nil
}

func (r *escalationRepo) ResolveEvent(_ context.Context, eventID, resolvedBy string, resolvedAt time.Time) (*models.EscalationEvent, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	event, ok := r.p.escalationEvents[eventID]
	if !ok || event.Resolved() {
		return nil, persistence.ErrEventNotFound
	}

	event.ResolvedAt = &resolvedAt
	event.ResolvedBy = resolvedBy

	e := *event

	return &e, nil
}

type reminderRepo struct{ p *Persistence }

func (r *reminderRepo) GetByID(_ context.Context, id string) (*models.Reminder, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	reminder, ok := r.p.reminders[id]
	if !ok {
		return nil, persistence.ErrReminderNotFound
	}

	rem := *reminder

	return &rem, nil
}

func (r *reminderRepo) ListByContract(_ context.Context, contractID string) ([]*models.Reminder, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.Reminder, 0)

	for _, reminder := range r.p.reminders {
		if reminder.ContractID == contractID {
			rem := *reminder
			matched = append(matched, &rem)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].NextDueAt == nil {
			return false
		}

		if matched[j].NextDueAt == nil {
			return true
		}

		return matched[i].NextDueAt.Before(*matched[j].NextDueAt)
	})

	return matched, nil
}

func (r *reminderRepo) ListDue(_ context.Context, now time.Time) ([]*models.Reminder, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	due := make([]*models.Reminder, 0)

	for _, reminder := range r.p.reminders {
		if reminder.IsDue(now) {
			rem := *reminder
			due = append(due, &rem)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(*due[j].NextDueAt)
	})

	return due, nil
}

func (r *reminderRepo) Save(_ context.Context, reminder *models.Reminder) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	rem := *reminder
	r.p.reminders[rem.ID] = &rem

	return nil
}

func (r *reminderRepo) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.reminders[id]; !ok {
		return persistence.ErrReminderNotFound
	}

	delete(r.p.reminders, id)

	return nil
}

type notificationRepo struct{ p *Persistence }

func (r *notificationRepo) Insert(_ context.Context, notification *models.Notification) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	n := *notification
	r.p.notifications[n.ID] = &n
	r.p.notificationSeq = append(r.p.notificationSeq, n.ID)

	return nil
}

func (r *notificationRepo) ListPending(_ context.Context, limit int) ([]*models.Notification, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	pending := make([]*models.Notification, 0)

	for _, id := range r.p.notificationSeq {
		notification := r.p.notifications[id]
		if notification.Status != models.NotificationStatusPending {
			continue
		}

		n := *notification
		pending = append(pending, &n)

		if len(pending) >= limit {
			break
		}
	}

	return pending, nil
}

func (r *notificationRepo) List(_ context.Context, recipientEmail, status string, limit, offset int) ([]*models.Notification, int64, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.Notification, 0)

	for i := len(r.p.notificationSeq) - 1; i >= 0; i-- {
		notification := r.p.notifications[r.p.notificationSeq[i]]

		if recipientEmail != "" && notification.RecipientEmail != recipientEmail {
			continue
		}

		if status != "" && string(notification.Status) != status {
			continue
		}

		n := *notification
		matched = append(matched, &n)
	}

	total := int64(len(matched))

	if limit <= 0 {
		limit = 50
	}

	start := offset
	if start > len(matched) {
		start = len(matched)
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], total, nil
}

func (r *notificationRepo) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	notification, ok := r.p.notifications[id]
	if !ok {
		return persistence.ErrNotificationNotFound
	}

	notification.Status = models.NotificationStatusSent
	notification.SentAt = &sentAt

	return nil
}

func (r *notificationRepo) MarkFailed(_ context.Context, id string, errorMessage string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	notification, ok := r.p.notifications[id]
	if !ok {
		return persistence.ErrNotificationNotFound
	}

	notification.Status = models.NotificationStatusFailed
	notification.ErrorMessage = errorMessage

	return nil
}

type signingAuthorityRepo struct{ p *Persistence }

func (r *signingAuthorityRepo) ListForEntity(_ context.Context, entityID string) ([]*models.SigningAuthority, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.SigningAuthority, 0)

	for _, row := range r.p.signingAuthority {
		if row.EntityID == entityID {
			s := *row
			matched = append(matched, &s)
		}
	}

	return matched, nil
}

type contractRepo struct{ p *Persistence }

func (r *contractRepo) GetRef(_ context.Context, contractID string) (*models.ContractRef, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	contract, ok := r.p.contracts[contractID]
	if !ok {
		return nil, persistence.ErrContractNotFound
	}

	c := *contract

	return &c, nil
}

func (r *contractRepo) UpdateWorkflowState(_ context.Context, contractID, state string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	contract, ok := r.p.contracts[contractID]
	if !ok {
		return persistence.ErrContractNotFound
	}

	contract.WorkflowState = state

	return nil
}

type auditRepo struct{ p *Persistence }

func (r *auditRepo) Append(_ context.Context, entry *persistence.AuditEntry) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	e := *entry
	r.p.auditEntries = append(r.p.auditEntries, &e)

	return nil
}
