package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

const transactionColumns = `id, date, amount, description, counterparty_name, counterparty_iban, status,
 journal_entry_id, contact_id, invoice_id, source_hash,
 suggestion_mode, suggestion_source, suggestion_confidence, suggestion_reason,
 suggested_account_id, suggested_contact_id, suggested_invoice_id, suggestion_note, created_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var date, createdAt string
	var entryID, contactID, invoiceID, hash sql.NullString
	var mode, source, reason, accountID, sugContact, sugInvoice, note sql.NullString
	var confidence sql.NullInt64

	if err := row.Scan(&t.ID, &date, &t.Amount, &t.Description, &t.CounterpartyName, &t.CounterpartyIBAN, &t.Status,
		&entryID, &contactID, &invoiceID, &hash,
		&mode, &source, &confidence, &reason,
		&accountID, &sugContact, &sugInvoice, &note, &createdAt); err != nil {
		return nil, err
	}

	t.JournalEntryID = entryID.String
	t.ContactID = contactID.String
	t.InvoiceID = invoiceID.String
	t.SourceHash = hash.String

	var err error
	if t.Date, err = parseDate("scan transaction", date); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimestamp("scan transaction", createdAt); err != nil {
		return nil, err
	}

	if source.Valid {
		t.Suggested = &models.ConfidenceOutcome{
			Score:  int(confidence.Int64),
			Reason: reason.String,
			Source: models.OutcomeSource(source.String),
		}
		if mode.Valid {
			t.Suggested.Suggestion = &models.Suggestion{
				Mode:        models.BookingMode(mode.String),
				AccountID:   accountID.String,
				ContactID:   sugContact.String,
				InvoiceID:   sugInvoice.String,
				Description: note.String,
			}
		}
	}
	return &t, nil
}

// TransactionByID returns the transaction with the given id, or nil.
func (s *Store) TransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := scanTransaction(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeQueryFailed, "transaction by id")
	}
	return t, nil
}

// TransactionFilter narrows ListTransactions. Zero values do not filter.
type TransactionFilter struct {
	Status models.TransactionStatus
	Limit  int
}

// ListTransactions lists transactions by date, oldest first.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]*models.Transaction, error) {
	var where []string
	var args []interface{}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, created_at, rowid"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "list transactions", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeDecodeFailed, "list transactions")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "list transactions", err)
	}
	return out, nil
}

// UnmatchedTransactionIDs returns the ids of all unmatched transactions.
func (s *Store) UnmatchedTransactionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id FROM transactions WHERE status = ? ORDER BY date, created_at, rowid`, string(models.StatusUnmatched))
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "unmatched transaction ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StoreError(errors.CodeDecodeFailed, "unmatched transaction ids", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertTransaction stores an imported transaction. It reports false without
// error when a transaction with the same source hash already exists.
func (s *Store) InsertTransaction(ctx context.Context, t *models.Transaction) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, errors.ValidationError(errors.CodeMissingField, "transaction", t.Description, err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.StatusUnmatched
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	res, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO transactions(id, date, amount, description, counterparty_name, counterparty_iban, status, source_hash, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_hash) DO NOTHING
	`, t.ID, t.Date.Format(models.DateLayout), t.Amount.StringFixed(2), t.Description, t.CounterpartyName,
		t.CounterpartyIBAN, string(t.Status), nullString(t.SourceHash), t.CreatedAt.Format(timestampLayout))
	if err != nil {
		return false, errors.StoreError(errors.CodeWriteFailed, "insert transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.StoreError(errors.CodeWriteFailed, "insert transaction", err)
	}
	return n == 1, nil
}

// TransactionBooking is the state the poster writes back after posting.
type TransactionBooking struct {
	Status         models.TransactionStatus
	JournalEntryID string
	ContactID      string
	InvoiceID      string
}

// UpdateTransactionBooking records the booking result and clears any stored
// suggestion. Empty ids leave the existing link in place.
func (s *Store) UpdateTransactionBooking(ctx context.Context, id string, b TransactionBooking) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
	UPDATE transactions SET
	 status = ?,
	 journal_entry_id = COALESCE(?, journal_entry_id),
	 contact_id = COALESCE(?, contact_id),
	 invoice_id = COALESCE(?, invoice_id),
	 suggestion_mode = NULL,
	 suggestion_source = NULL,
	 suggestion_confidence = NULL,
	 suggestion_reason = NULL,
	 suggested_account_id = NULL,
	 suggested_contact_id = NULL,
	 suggested_invoice_id = NULL,
	 suggestion_note = NULL
	WHERE id = ?
	`, string(b.Status), nullString(b.JournalEntryID), nullString(b.ContactID), nullString(b.InvoiceID), id)
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "update transaction booking", err)
	}
	return requireAffected(res, "update transaction booking")
}

// AttachSuggestion stores an outcome for review on an unposted transaction.
// The status stays as it is.
func (s *Store) AttachSuggestion(ctx context.Context, id string, o *models.ConfidenceOutcome) error {
	if o == nil {
		return nil
	}
	var mode, accountID, contactID, invoiceID, note sql.NullString
	if o.Suggestion != nil {
		mode = nullString(string(o.Suggestion.Mode))
		accountID = nullString(o.Suggestion.AccountID)
		contactID = nullString(o.Suggestion.ContactID)
		invoiceID = nullString(o.Suggestion.InvoiceID)
		note = nullString(o.Suggestion.Description)
	}

	res, err := s.conn(ctx).ExecContext(ctx, `
	UPDATE transactions SET
	 suggestion_mode = ?,
	 suggestion_source = ?,
	 suggestion_confidence = ?,
	 suggestion_reason = ?,
	 suggested_account_id = ?,
	 suggested_contact_id = ?,
	 suggested_invoice_id = ?,
	 suggestion_note = ?
	WHERE id = ? AND status NOT IN (?, ?, ?)
	`, mode, string(o.Source), o.Score, o.Reason, accountID, contactID, invoiceID, note, id,
		string(models.StatusBooked), string(models.StatusPending), string(models.StatusReconciled))
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "attach suggestion", err)
	}
	return requireAffected(res, "attach suggestion")
}
