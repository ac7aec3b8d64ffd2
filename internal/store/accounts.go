package store

import (
	"context"
	"database/sql"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

const accountColumns = `id, code, name, type, vat_class, tax_category, system_role, active`

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	var active int
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.VATClass, &a.TaxCategory, &a.SystemRole, &active); err != nil {
		return nil, err
	}
	a.Active = active == 1
	return &a, nil
}

func (s *Store) queryAccount(ctx context.Context, operation, query string, args ...interface{}) (*models.Account, error) {
	a, err := scanAccount(s.conn(ctx).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	return a, nil
}

func (s *Store) queryAccounts(ctx context.Context, operation, query string, args ...interface{}) ([]*models.Account, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, errors.StoreError(errors.CodeDecodeFailed, operation, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	return out, nil
}

// AccountByID returns the account with the given id, or nil.
func (s *Store) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	return s.queryAccount(ctx, "account by id",
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

// AccountByCode returns the account with the given code, or nil.
func (s *Store) AccountByCode(ctx context.Context, code string) (*models.Account, error) {
	return s.queryAccount(ctx, "account by code",
		`SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code)
}

// AccountBySystemRole returns the active account holding role, lowest code
// first, or nil when the chart has none.
func (s *Store) AccountBySystemRole(ctx context.Context, role models.SystemRole) (*models.Account, error) {
	return s.queryAccount(ctx, "account by system role",
		`SELECT `+accountColumns+` FROM accounts WHERE system_role = ? AND active = 1 ORDER BY code LIMIT 1`, string(role))
}

// ActiveAccountsByType lists active accounts of the given types ordered by code.
func (s *Store) ActiveAccountsByType(ctx context.Context, types ...models.AccountType) ([]*models.Account, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(types))
	for i, t := range types {
		args[i] = string(t)
	}
	return s.queryAccounts(ctx, "active accounts by type",
		`SELECT `+accountColumns+` FROM accounts WHERE active = 1 AND type IN (`+placeholders(len(types))+`) ORDER BY code`, args...)
}

// ListAccounts lists the whole chart of accounts ordered by code.
func (s *Store) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.queryAccounts(ctx, "list accounts", `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
}

// UpsertAccount inserts the account or updates the row with the same id.
func (s *Store) UpsertAccount(ctx context.Context, a *models.Account) error {
	if err := a.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "account", a.Code, err)
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO accounts(id, code, name, type, vat_class, tax_category, system_role, active)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 code=excluded.code,
	 name=excluded.name,
	 type=excluded.type,
	 vat_class=excluded.vat_class,
	 tax_category=excluded.tax_category,
	 system_role=excluded.system_role,
	 active=excluded.active
	`, a.ID, a.Code, a.Name, string(a.Type), string(a.VATClass), a.TaxCategory, string(a.SystemRole), boolInt(a.Active))
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "upsert account", err)
	}
	return nil
}
