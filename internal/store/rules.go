package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

const ruleColumns = `id, keyword, match_type, account_id, contact_id, priority, active, usage_count, last_used, is_system, created_at`

func scanRule(row scanner) (*models.Rule, error) {
	var r models.Rule
	var accountID, contactID, lastUsed sql.NullString
	var active, system int
	var createdAt string
	if err := row.Scan(&r.ID, &r.Keyword, &r.MatchType, &accountID, &contactID, &r.Priority,
		&active, &r.UsageCount, &lastUsed, &system, &createdAt); err != nil {
		return nil, err
	}
	r.AccountID = accountID.String
	r.ContactID = contactID.String
	r.Active = active == 1
	r.IsSystem = system == 1

	var err error
	if r.CreatedAt, err = parseTimestamp("scan rule", createdAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t, err := parseTimestamp("scan rule", lastUsed.String)
		if err != nil {
			return nil, err
		}
		r.LastUsed = &t
	}
	return &r, nil
}

// ActiveRules lists active rules, highest priority first.
func (s *Store) ActiveRules(ctx context.Context) ([]*models.Rule, error) {
	return s.listRules(ctx, "active rules",
		`SELECT `+ruleColumns+` FROM rules WHERE active = 1 ORDER BY priority DESC, created_at, rowid`)
}

// ListRules lists every rule, highest priority first.
func (s *Store) ListRules(ctx context.Context) ([]*models.Rule, error) {
	return s.listRules(ctx, "list rules",
		`SELECT `+ruleColumns+` FROM rules ORDER BY priority DESC, created_at, rowid`)
}

func (s *Store) listRules(ctx context.Context, operation, query string) ([]*models.Rule, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	defer rows.Close()

	var out []*models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeDecodeFailed, operation)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	return out, nil
}

// RuleByKeyword returns the rule whose keyword equals keyword ignoring case, or nil.
func (s *Store) RuleByKeyword(ctx context.Context, keyword string) (*models.Rule, error) {
	r, err := scanRule(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE keyword = ? COLLATE NOCASE`, keyword))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeQueryFailed, "rule by keyword")
	}
	return r, nil
}

// MaxRulePriority returns the highest priority in use, or 0 without rules.
func (s *Store) MaxRulePriority(ctx context.Context) (int, error) {
	var highest sql.NullInt64
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT MAX(priority) FROM rules`).Scan(&highest); err != nil {
		return 0, errors.StoreError(errors.CodeQueryFailed, "max rule priority", err)
	}
	return int(highest.Int64), nil
}

// InsertRule stores a new rule, assigning an id when it has none.
func (s *Store) InsertRule(ctx context.Context, r *models.Rule) error {
	if err := r.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "rule", r.Keyword, err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	var lastUsed sql.NullString
	if r.LastUsed != nil {
		lastUsed = sql.NullString{String: r.LastUsed.Format(timestampLayout), Valid: true}
	}

	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO rules(id, keyword, match_type, account_id, contact_id, priority, active, usage_count, last_used, is_system, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Keyword, string(r.MatchType), nullString(r.AccountID), nullString(r.ContactID), r.Priority,
		boolInt(r.Active), r.UsageCount, lastUsed, boolInt(r.IsSystem), r.CreatedAt.Format(timestampLayout))
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "insert rule", err)
	}
	return nil
}

// TouchRule records one more use of the rule at the given time. Non-empty
// accountID or contactID replace the rule's targets.
func (s *Store) TouchRule(ctx context.Context, id, accountID, contactID string, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
	UPDATE rules SET
	 usage_count = usage_count + 1,
	 last_used = ?,
	 account_id = COALESCE(?, account_id),
	 contact_id = COALESCE(?, contact_id)
	WHERE id = ?
	`, at.UTC().Format(timestampLayout), nullString(accountID), nullString(contactID), id)
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "touch rule", err)
	}
	return requireAffected(res, "touch rule")
}

// DeleteRule removes a user rule. System rules are refused.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM rules WHERE id = ? AND is_system = 0`, id)
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "delete rule", err)
	}
	return requireAffected(res, "delete rule")
}
