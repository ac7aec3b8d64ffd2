package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

const relationColumns = `id, name, type, iban, default_account_id, active, created_at`

func scanRelation(row scanner) (*models.Relation, error) {
	var r models.Relation
	var defaultAccount sql.NullString
	var active int
	var createdAt string
	if err := row.Scan(&r.ID, &r.Name, &r.Type, &r.IBAN, &defaultAccount, &active, &createdAt); err != nil {
		return nil, err
	}
	r.DefaultAccountID = defaultAccount.String
	r.Active = active == 1
	var err error
	if r.CreatedAt, err = parseTimestamp("scan relation", createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ActiveRelations lists active relations in insertion order. The relation
// matcher takes the first hit, so this order is part of the matching contract.
func (s *Store) ActiveRelations(ctx context.Context) ([]*models.Relation, error) {
	return s.listRelations(ctx, "active relations",
		`SELECT `+relationColumns+` FROM relations WHERE active = 1 ORDER BY created_at, rowid`)
}

// ListRelations lists all relations by name
func (s *Store) ListRelations(ctx context.Context) ([]*models.Relation, error) {
	return s.listRelations(ctx, "list relations",
		`SELECT `+relationColumns+` FROM relations ORDER BY name COLLATE NOCASE`)
}

func (s *Store) listRelations(ctx context.Context, operation, query string) ([]*models.Relation, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	defer rows.Close()

	var out []*models.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
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

// RelationByID returns the relation with the given id, or nil.
func (s *Store) RelationByID(ctx context.Context, id string) (*models.Relation, error) {
	r, err := scanRelation(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+relationColumns+` FROM relations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeQueryFailed, "relation by id")
	}
	return r, nil
}

// CreateRelation inserts a relation, assigning an id when it has none.
func (s *Store) CreateRelation(ctx context.Context, r *models.Relation) error {
	if err := r.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "relation", r.Name, err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO relations(id, name, type, iban, default_account_id, active, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, string(r.Type), r.IBAN, nullString(r.DefaultAccountID), boolInt(r.Active), r.CreatedAt.Format(timestampLayout))
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "create relation", err)
	}
	return nil
}

// SetRelationDefaultAccount points the relation at a default ledger account.
func (s *Store) SetRelationDefaultAccount(ctx context.Context, relationID, accountID string) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE relations SET default_account_id = ? WHERE id = ?`, nullString(accountID), relationID)
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "set relation default account", err)
	}
	return requireAffected(res, "set relation default account")
}

func requireAffected(res sql.Result, operation string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, operation, err)
	}
	if n == 0 {
		return errors.StoreError(errors.CodeNotFound, operation, nil)
	}
	return nil
}
