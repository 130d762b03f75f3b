package postgresql

// migrations returns the schema migrations keyed by version. Migrations are
// applied in ascending order inside transactions.
func migrations() map[int]string {
	return map[int]string{
		1: schemaV1,
	}
}

const schemaV1 = `
	CREATE TABLE IF NOT EXISTS workflow_templates (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		contract_type TEXT NOT NULL,
		region_id TEXT,
		entity_id TEXT,
		project_id TEXT,
		stages JSONB NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'draft',
		version INTEGER NOT NULL DEFAULT 0,
		created_by TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		published_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_templates_status ON workflow_templates(status);
	CREATE INDEX IF NOT EXISTS idx_templates_contract_type ON workflow_templates(contract_type);

	CREATE TABLE IF NOT EXISTS workflow_template_versions (
		template_id UUID NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
		version INTEGER NOT NULL,
		stages JSONB NOT NULL,
		published_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (template_id, version)
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY,
		title TEXT,
		entity_id TEXT,
		project_id TEXT,
		workflow_state TEXT
	);

	CREATE TABLE IF NOT EXISTS workflow_instances (
		id UUID PRIMARY KEY,
		contract_id UUID NOT NULL,
		template_id UUID NOT NULL,
		template_version INTEGER NOT NULL,
		current_stage TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'active',
		started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMP WITH TIME ZONE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_instances_active_contract
		ON workflow_instances(contract_id) WHERE state = 'active';

	CREATE TABLE IF NOT EXISTS stage_actions (
		id UUID PRIMARY KEY,
		instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
		stage_name TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_email TEXT,
		comment TEXT,
		artifacts JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_stage_actions_instance
		ON stage_actions(instance_id, created_at);

	CREATE TABLE IF NOT EXISTS escalation_rules (
		id UUID PRIMARY KEY,
		workflow_template_id UUID NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
		stage_name TEXT NOT NULL,
		tier INTEGER NOT NULL DEFAULT 1,
		sla_breach_hours DOUBLE PRECISION NOT NULL,
		escalate_to_role TEXT,
		escalate_to_user_id TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_escalation_rules_stage
		ON escalation_rules(workflow_template_id, stage_name, tier);

	CREATE TABLE IF NOT EXISTS escalation_events (
		id UUID PRIMARY KEY,
		workflow_instance_id UUID NOT NULL,
		rule_id UUID NOT NULL,
		contract_id UUID NOT NULL,
		stage_name TEXT NOT NULL,
		tier INTEGER NOT NULL,
		escalated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMP WITH TIME ZONE,
		resolved_by TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_escalation_events_unresolved
		ON escalation_events(workflow_instance_id, rule_id) WHERE resolved_at IS NULL;

	CREATE TABLE IF NOT EXISTS reminders (
		id UUID PRIMARY KEY,
		contract_id UUID NOT NULL,
		key_date_id UUID,
		reminder_type TEXT NOT NULL,
		lead_days INTEGER NOT NULL,
		channel TEXT NOT NULL DEFAULT 'email',
		recipient_email TEXT,
		recipient_user_id TEXT,
		last_sent_at TIMESTAMP WITH TIME ZONE,
		next_due_at TIMESTAMP WITH TIME ZONE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_reminders_due
		ON reminders(next_due_at) WHERE is_active;

	CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		recipient_email TEXT,
		recipient_user_id TEXT,
		channel TEXT NOT NULL DEFAULT 'email',
		subject TEXT NOT NULL,
		body TEXT,
		related_resource_type TEXT,
		related_resource_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		sent_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status, created_at);

	CREATE TABLE IF NOT EXISTS signing_authority (
		id UUID PRIMARY KEY,
		entity_id TEXT NOT NULL,
		project_id TEXT,
		user_id TEXT,
		user_email TEXT,
		role_or_name TEXT,
		contract_type_pattern TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_signing_authority_entity ON signing_authority(entity_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT,
		actor_id TEXT,
		details JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_resource ON audit_log(resource_type, resource_id);
`
