package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

const invoiceColumns = `id, kind, number, contact_id, date, total, vat_rate, account_id, status,
 journal_entry_id, payment_transaction_id, created_at`

func scanInvoice(row scanner) (*models.Invoice, error) {
	var inv models.Invoice
	var date, createdAt string
	var accountID, entryID, paymentID sql.NullString
	if err := row.Scan(&inv.ID, &inv.Kind, &inv.Number, &inv.ContactID, &date, &inv.Total, &inv.VATRate,
		&accountID, &inv.Status, &entryID, &paymentID, &createdAt); err != nil {
		return nil, err
	}
	inv.AccountID = accountID.String
	inv.JournalEntryID = entryID.String
	inv.PaymentTransactionID = paymentID.String

	var err error
	if inv.Date, err = parseDate("scan invoice", date); err != nil {
		return nil, err
	}
	if inv.CreatedAt, err = parseTimestamp("scan invoice", createdAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

// InvoiceByID returns the invoice with the given id, or nil.
func (s *Store) InvoiceByID(ctx context.Context, id string) (*models.Invoice, error) {
	inv, err := scanInvoice(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeQueryFailed, "invoice by id")
	}
	return inv, nil
}

// OpenInvoices lists invoices of kind in one of statuses, dated within
// [from, to], that no payment is linked to and that no posted transaction
// holds. Oldest first.
func (s *Store) OpenInvoices(ctx context.Context, kind models.InvoiceKind, statuses []models.InvoiceStatus, from, to time.Time) ([]*models.Invoice, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []interface{}{string(kind), from.Format(models.DateLayout), to.Format(models.DateLayout)}
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.conn(ctx).QueryContext(ctx, `
	SELECT `+invoiceColumns+` FROM invoices
	WHERE kind = ? AND date >= ? AND date <= ?
	 AND status IN (`+placeholders(len(statuses))+`)
	 AND payment_transaction_id IS NULL
	 AND NOT EXISTS (SELECT 1 FROM transactions t
	  WHERE t.invoice_id = invoices.id AND t.status IN (`+postedStatuses+`))
	ORDER BY date, created_at, rowid`, args...)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "open invoices", err)
	}
	defer rows.Close()

	var out []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeDecodeFailed, "open invoices")
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "open invoices", err)
	}
	return out, nil
}

// postedStatuses are the transaction statuses that hold a linked invoice
var postedStatuses = "'" + string(models.StatusPending) + "','" + string(models.StatusBooked) + "','" +
	string(models.StatusReconciled) + "'"

// InvoiceClaimant returns the id of the posted transaction that holds the
// invoice, or "" when none does.
func (s *Store) InvoiceClaimant(ctx context.Context, invoiceID string) (string, error) {
	var id string
	err := s.conn(ctx).QueryRowContext(ctx, `
	SELECT id FROM transactions
	WHERE invoice_id = ? AND status IN (`+postedStatuses+`)
	ORDER BY rowid LIMIT 1`, invoiceID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.StoreError(errors.CodeQueryFailed, "invoice claimant", err)
	}
	return id, nil
}

// InsertInvoice stores an invoice, assigning an id when it has none.
func (s *Store) InsertInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := inv.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "invoice", inv.Number, err)
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}

	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO invoices(id, kind, number, contact_id, date, total, vat_rate, account_id, status,
	 journal_entry_id, payment_transaction_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, string(inv.Kind), inv.Number, inv.ContactID, inv.Date.Format(models.DateLayout),
		inv.Total.StringFixed(2), inv.VATRate.String(), nullString(inv.AccountID), string(inv.Status),
		nullString(inv.JournalEntryID), nullString(inv.PaymentTransactionID), inv.CreatedAt.Format(timestampLayout))
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "insert invoice", err)
	}
	return nil
}

// SetInvoiceEntry links the invoice to the journal entry that booked it.
func (s *Store) SetInvoiceEntry(ctx context.Context, invoiceID, entryID string) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE invoices SET journal_entry_id = ? WHERE id = ?`, entryID, invoiceID)
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "set invoice entry", err)
	}
	return requireAffected(res, "set invoice entry")
}

// MarkInvoicePaid sets the invoice to paid and links the paying transaction.
func (s *Store) MarkInvoicePaid(ctx context.Context, invoiceID, transactionID string) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE invoices SET status = ?, payment_transaction_id = ? WHERE id = ?`,
		string(models.InvoicePaid), transactionID, invoiceID)
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "mark invoice paid", err)
	}
	return requireAffected(res, "mark invoice paid")
}
