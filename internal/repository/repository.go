// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, d, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLRepository{db: db, dialect: d}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveMember inserts or updates a member with tenant isolation.
func (r *SQLRepository) SaveMember(ctx context.Context, tenantID string, m *domain.Member) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.TenantID = tenantID

	query := `
		INSERT INTO members (
			id, tenant_id, external_id, name, birth_date, state,
			final_average_salary, contribution_rate,
			medical_exam_on_file, spouse_approval_on_file, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			external_id = excluded.external_id,
			name = excluded.name,
			birth_date = excluded.birth_date,
			state = excluded.state,
			final_average_salary = excluded.final_average_salary,
			contribution_rate = excluded.contribution_rate,
			medical_exam_on_file = excluded.medical_exam_on_file,
			spouse_approval_on_file = excluded.spouse_approval_on_file,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		m.ID, tenantID, m.ExternalID, m.Name,
		m.BirthDate.Format(time.DateOnly), string(m.State),
		m.FinalAverageSalary.String(), m.ContributionRate.String(),
		boolToInt(m.MedicalExamOnFile), boolToInt(m.SpouseApprovalOnFile),
		m.CreatedAt, m.UpdatedAt,
	)
	return err
}

const memberColumns = `
	id, tenant_id, external_id, name, birth_date, state,
	final_average_salary, contribution_rate,
	medical_exam_on_file, spouse_approval_on_file, created_at, updated_at
`

// GetMember retrieves a member by ID with tenant isolation.
func (r *SQLRepository) GetMember(ctx context.Context, tenantID string, memberID string) (*domain.Member, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = ? AND id = ?`

	m, err := scanMember(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers returns the most recently created members for a tenant.
func (r *SQLRepository) ListMembers(ctx context.Context, tenantID string, limit int) ([]*domain.Member, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = ? ORDER BY created_at DESC, id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var m domain.Member
	var externalID sql.NullString
	var birthDate, state string
	var medical, spouse int

	if err := row.Scan(
		&m.ID, &m.TenantID, &externalID, &m.Name, &birthDate, &state,
		&m.FinalAverageSalary, &m.ContributionRate,
		&medical, &spouse, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	bd, err := time.Parse(time.DateOnly, birthDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse birth date for member %s: %w", m.ID, err)
	}

	m.ExternalID = externalID.String
	m.BirthDate = bd
	m.State = domain.StateCode(state)
	m.MedicalExamOnFile = medical == 1
	m.SpouseApprovalOnFile = spouse == 1

	return &m, nil
}

// AddServiceEntry appends a service history entry for a member.
// Entries are never updated in place.
func (r *SQLRepository) AddServiceEntry(ctx context.Context, tenantID string, memberID string, entry *domain.ServiceHistoryEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if memberID == "" {
		return fmt.Errorf("%w: memberID is required", ErrInvalidInput)
	}
	if entry.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var endDate sql.NullString
	if entry.EndDate != nil {
		endDate = sql.NullString{String: entry.EndDate.Format(time.DateOnly), Valid: true}
	}

	query := `
		INSERT INTO service_history (
			id, tenant_id, member_id, start_date, end_date, credited_years, purchased, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, memberID,
		entry.StartDate.Format(time.DateOnly), endDate,
		entry.CreditedYears.String(), boolToInt(entry.Purchased),
		time.Now().UTC(),
	)
	return err
}

// ListServiceHistory returns a member's service history ordered by start date.
func (r *SQLRepository) ListServiceHistory(ctx context.Context, tenantID string, memberID string) ([]domain.ServiceHistoryEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, start_date, end_date, credited_years, purchased
		FROM service_history
		WHERE tenant_id = ? AND member_id = ?
		ORDER BY start_date, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.ServiceHistoryEntry{}
	for rows.Next() {
		var e domain.ServiceHistoryEntry
		var start string
		var end sql.NullString
		var credited decimal.Decimal
		var purchased int

		if err := rows.Scan(&e.ID, &start, &end, &credited, &purchased); err != nil {
			return nil, err
		}

		if e.StartDate, err = time.Parse(time.DateOnly, start); err != nil {
			return nil, fmt.Errorf("failed to parse start date for entry %s: %w", e.ID, err)
		}
		if end.Valid {
			endDate, err := time.Parse(time.DateOnly, end.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse end date for entry %s: %w", e.ID, err)
			}
			e.EndDate = &endDate
		}
		e.CreditedYears = credited
		e.Purchased = purchased == 1

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SaveAssessment stores an assessment result with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, member_id, state, benefit_type, eligible,
			annual_amount, readiness_score, as_of, timestamp, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.MemberID, string(a.State), string(a.BenefitType),
		boolToInt(a.Verdict.Eligible), a.Benefit.AnnualAmount.StringFixed(2),
		a.Readiness.Score, a.AsOf.Format(time.DateOnly), a.Timestamp,
		string(payload),
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT payload FROM assessments WHERE tenant_id = ? AND id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var a domain.Assessment
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to decode assessment %s: %w", assessmentID, err)
	}
	return &a, nil
}

// ListAssessmentsByMember returns a member's assessments, newest first.
func (r *SQLRepository) ListAssessmentsByMember(ctx context.Context, tenantID string, memberID string) ([]*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM assessments
		WHERE tenant_id = ? AND member_id = ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*domain.Assessment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var a domain.Assessment
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("failed to decode assessment: %w", err)
		}
		assessments = append(assessments, &a)
	}

	return assessments, rows.Err()
}

// SaveStateRuleSet stores a tenant's rule set for a state, replacing any
// previous one.
func (r *SQLRepository) SaveStateRuleSet(ctx context.Context, tenantID string, record *domain.RuleSetRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if record == nil || record.RuleSet == nil {
		return fmt.Errorf("%w: rule set is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(record.RuleSet)
	if err != nil {
		return fmt.Errorf("failed to encode rule set: %w", err)
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO state_rule_sets (tenant_id, state, version, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, state) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, string(record.RuleSet.State), record.Version, string(payload), record.UpdatedAt,
	)
	return err
}

// ListStateRuleSets returns every stored rule set for a tenant, sorted by state.
func (r *SQLRepository) ListStateRuleSets(ctx context.Context, tenantID string) ([]*domain.RuleSetRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT version, payload, updated_at
		FROM state_rule_sets
		WHERE tenant_id = ?
		ORDER BY state
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.RuleSetRecord
	for rows.Next() {
		var rec domain.RuleSetRecord
		var payload string

		if err := rows.Scan(&rec.Version, &payload, &rec.UpdatedAt); err != nil {
			return nil, err
		}

		var rs domain.StateRuleSet
		if err := json.Unmarshal([]byte(payload), &rs); err != nil {
			return nil, fmt.Errorf("failed to decode rule set: %w", err)
		}
		rec.RuleSet = &rs
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SavePolicyRule stores a policy rule with tenant isolation.
func (r *SQLRepository) SavePolicyRule(ctx context.Context, tenantID string, rule *domain.PolicyRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO policy_rules (
			id, tenant_id, name, description, state, expression, reason, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			state = excluded.state,
			expression = excluded.expression,
			reason = excluded.reason,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, string(rule.State),
		rule.Expression, rule.Reason, rule.Severity, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// ListPolicyRules retrieves every policy rule for a tenant, enabled or not.
func (r *SQLRepository) ListPolicyRules(ctx context.Context, tenantID string) ([]*domain.PolicyRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, state, expression, reason, severity, enabled
		FROM policy_rules
		WHERE tenant_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.PolicyRule
	for rows.Next() {
		var p domain.PolicyRule
		var description, state, reason sql.NullString
		var enabled int

		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Name, &description, &state,
			&p.Expression, &reason, &p.Severity, &enabled,
		); err != nil {
			return nil, err
		}

		p.Description = description.String
		p.State = domain.StateCode(state.String)
		p.Reason = reason.String
		p.Enabled = enabled == 1
		rules = append(rules, &p)
	}

	return rules, rows.Err()
}

// SaveAuditRecord appends an audit log entry.
func (r *SQLRepository) SaveAuditRecord(ctx context.Context, tenantID string, rec *domain.AuditRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, tenant_id, action, entity_type, entity_id, actor, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.Action, rec.EntityType, rec.EntityID, rec.Actor,
		string(details), rec.Timestamp.UTC(),
	)
	return err
}

// ListAuditRecords returns audit entries recorded at or after since, newest first.
func (r *SQLRepository) ListAuditRecords(ctx context.Context, tenantID string, since time.Time) ([]*domain.AuditRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, action, entity_type, entity_id, actor, details, timestamp
		FROM audit_log
		WHERE tenant_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var actor, details sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.Action, &rec.EntityType, &rec.EntityID,
			&actor, &details, &rec.Timestamp,
		); err != nil {
			return nil, err
		}

		rec.Actor = actor.String
		if details.String != "" && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &rec.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details for %s: %w", rec.ID, err)
			}
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *SQLRepository) rebind(query string) string {
	return r.dialect.rebind(query)
}
