package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
)

// InsertJournalEntry stores an entry and its lines. Ids are assigned where
// missing. Callers wrap this in Atomic so an entry is never left without its
// lines; balance is checked by the poster before this is called.
func (s *Store) InsertJournalEntry(ctx context.Context, e *models.JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	db := s.conn(ctx)
	_, err := db.ExecContext(ctx, `
	INSERT INTO journal_entries(id, date, kind, description, transaction_id, invoice_id, contact_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Date.Format(models.DateLayout), string(e.Kind), e.Description,
		nullString(e.TransactionID), nullString(e.InvoiceID), nullString(e.ContactID), e.CreatedAt.Format(timestampLayout))
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "insert journal entry", err)
	}

	for i := range e.Lines {
		l := &e.Lines[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.EntryID = e.ID
		_, err := db.ExecContext(ctx, `
		INSERT INTO journal_lines(id, entry_id, line_no, account_id, debit, credit, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, l.ID, e.ID, i+1, l.AccountID, l.Debit.StringFixed(2), l.Credit.StringFixed(2), l.Description)
		if err != nil {
			return errors.StoreError(errors.CodeWriteFailed, "insert journal line", err)
		}
	}
	return nil
}

// EntriesForTransaction returns the journal entries booked for a bank
// transaction, oldest first, with their lines.
func (s *Store) EntriesForTransaction(ctx context.Context, transactionID string) ([]*models.JournalEntry, error) {
	return s.queryEntries(ctx, "entries for transaction", `
	SELECT id, date, kind, description, transaction_id, invoice_id, contact_id, created_at
	FROM journal_entries WHERE transaction_id = ? ORDER BY created_at, rowid`, transactionID)
}

// EntriesForInvoice returns the journal entries referencing an invoice.
func (s *Store) EntriesForInvoice(ctx context.Context, invoiceID string) ([]*models.JournalEntry, error) {
	return s.queryEntries(ctx, "entries for invoice", `
	SELECT id, date, kind, description, transaction_id, invoice_id, contact_id, created_at
	FROM journal_entries WHERE invoice_id = ? ORDER BY created_at, rowid`, invoiceID)
}

func (s *Store) queryEntries(ctx context.Context, operation, query string, args ...interface{}) ([]*models.JournalEntry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}

	var entries []*models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var date, createdAt string
		var txID, invoiceID, contactID sql.NullString
		if err := rows.Scan(&e.ID, &date, &e.Kind, &e.Description, &txID, &invoiceID, &contactID, &createdAt); err != nil {
			rows.Close()
			return nil, errors.StoreError(errors.CodeDecodeFailed, operation, err)
		}
		e.TransactionID = txID.String
		e.InvoiceID = invoiceID.String
		e.ContactID = contactID.String
		if e.Date, err = parseDate(operation, date); err != nil {
			rows.Close()
			return nil, err
		}
		if e.CreatedAt, err = parseTimestamp(operation, createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	// Lines are loaded after the cursor is closed: the pool has one connection.
	rows.Close()

	for _, e := range entries {
		lines, err := s.linesForEntry(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.Lines = lines
	}
	return entries, nil
}

func (s *Store) linesForEntry(ctx context.Context, entryID string) ([]models.JournalLine, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
	SELECT id, entry_id, account_id, debit, credit, description
	FROM journal_lines WHERE entry_id = ? ORDER BY line_no`, entryID)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "journal lines", err)
	}
	defer rows.Close()

	var lines []models.JournalLine
	for rows.Next() {
		var l models.JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return nil, errors.StoreError(errors.CodeDecodeFailed, "journal lines", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// AccountBalance returns debit minus credit over all lines booked on the account.
func (s *Store) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT debit, credit FROM journal_lines WHERE account_id = ?`, accountID)
	if err != nil {
		return decimal.Zero, errors.StoreError(errors.CodeQueryFailed, "account balance", err)
	}
	defer rows.Close()

	balance := decimal.Zero
	for rows.Next() {
		var debit, credit decimal.Decimal
		if err := rows.Scan(&debit, &credit); err != nil {
			return decimal.Zero, errors.StoreError(errors.CodeDecodeFailed, "account balance", err)
		}
		balance = balance.Add(debit).Sub(credit)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, errors.StoreError(errors.CodeQueryFailed, "account balance", err)
	}
	return balance, nil
}
