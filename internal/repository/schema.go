package repository

// Schema definitions for the pension rules database.
// Compatible with both SQLite and PostgreSQL. Decimal amounts are stored as
// TEXT so they round-trip exactly.

const schemaMembers = `
CREATE TABLE IF NOT EXISTS members (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    external_id TEXT,
    name TEXT NOT NULL,
    birth_date TEXT NOT NULL,
    state TEXT NOT NULL,
    final_average_salary TEXT NOT NULL,
    contribution_rate TEXT NOT NULL,
    medical_exam_on_file INTEGER NOT NULL DEFAULT 0,
    spouse_approval_on_file INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_members_state ON members(tenant_id, state);
CREATE INDEX IF NOT EXISTS idx_members_created ON members(tenant_id, created_at);
`

const schemaServiceHistory = `
CREATE TABLE IF NOT EXISTS service_history (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT,
    credited_years TEXT NOT NULL,
    purchased INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_service_history_member ON service_history(tenant_id, member_id, start_date);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    member_id TEXT,
    state TEXT NOT NULL,
    benefit_type TEXT NOT NULL,
    eligible INTEGER NOT NULL,
    annual_amount TEXT NOT NULL,
    readiness_score INTEGER NOT NULL,
    as_of TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_member ON assessments(tenant_id, member_id);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(tenant_id, timestamp);
`

// schemaStateRuleSets holds tenant overrides of the shipped state rules.
// The rule set itself is stored as a JSON payload.
const schemaStateRuleSets = `
CREATE TABLE IF NOT EXISTS state_rule_sets (
    tenant_id TEXT NOT NULL,
    state TEXT NOT NULL,
    version TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, state)
);
`

const schemaPolicyRules = `
CREATE TABLE IF NOT EXISTS policy_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    state TEXT,
    expression TEXT NOT NULL,
    reason TEXT,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_policy_rules_enabled ON policy_rules(tenant_id, enabled);
`

const schemaAuditLog = `
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    actor TEXT,
    details TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(tenant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(tenant_id, entity_type, entity_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaMembers,
		schemaServiceHistory,
		schemaAssessments,
		schemaStateRuleSets,
		schemaPolicyRules,
		schemaAuditLog,
	}
}
