// Package posting turns resolved transactions and invoices into balanced
// double-entry journal entries.
//
// Direct mode books the bank account against the target account in a single
// entry. Relation mode routes the movement through a suspense account: a
// payment entry moves money between bank and suspense, and a cost or revenue
// entry books the target account against the same suspense account. A later
// settlement clears whatever is left on suspense against creditors or debtors.
//
// Every posting runs inside one store transaction and every entry is checked
// for balance before it is written.
package posting

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/store"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// Store is the persistence the poster needs
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	AccountByID(ctx context.Context, id string) (*models.Account, error)
	AccountBySystemRole(ctx context.Context, role models.SystemRole) (*models.Account, error)
	RelationByID(ctx context.Context, id string) (*models.Relation, error)
	TransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	UpdateTransactionBooking(ctx context.Context, id string, b store.TransactionBooking) error
	InvoiceByID(ctx context.Context, id string) (*models.Invoice, error)
	InvoiceClaimant(ctx context.Context, invoiceID string) (string, error)
	SetInvoiceEntry(ctx context.Context, invoiceID, entryID string) error
	MarkInvoicePaid(ctx context.Context, invoiceID, transactionID string) error
	InsertJournalEntry(ctx context.Context, e *models.JournalEntry) error
	EntriesForTransaction(ctx context.Context, transactionID string) ([]*models.JournalEntry, error)
}

// Result describes what a posting wrote
type Result struct {
	EntryIDs       []string                 `json:"entry_ids"`
	PrimaryEntryID string                   `json:"primary_entry_id,omitempty"`
	Status         models.TransactionStatus `json:"status,omitempty"`
}

func (r *Result) add(e *models.JournalEntry) {
	r.EntryIDs = append(r.EntryIDs, e.ID)
	if r.PrimaryEntryID == "" {
		r.PrimaryEntryID = e.ID
	}
}

// Poster writes journal entries
type Poster struct {
	store  Store
	logger logger.Logger
}

// NewPoster creates a poster over store
func NewPoster(s Store, log logger.Logger) *Poster {
	return &Poster{
		store:  s,
		logger: logger.OrGlobal(log, "poster"),
	}
}

// Post books a transaction according to outcome. Direct mode leaves the
// transaction booked; relation mode leaves it pending until settlement.
func (p *Poster) Post(ctx context.Context, tx *models.Transaction, outcome *models.ConfidenceOutcome) (*Result, error) {
	if tx == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "transaction", nil, nil)
	}
	if !outcome.HasMatch() {
		return nil, errors.PostingError(errors.CodeIncompleteInput, tx.ID, nil)
	}

	var result *Result
	err := p.store.Atomic(ctx, func(ctx context.Context) error {
		current, err := p.store.TransactionByID(ctx, tx.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return errors.StoreError(errors.CodeNotFound, "transaction "+tx.ID, nil)
		}
		if current.Status.IsPosted() {
			return errors.PostingError(errors.CodeAlreadyBooked, tx.ID, nil)
		}

		switch outcome.Suggestion.Mode {
		case models.ModeRelation:
			result, err = p.postRelation(ctx, current, outcome.Suggestion)
		default:
			result, err = p.postDirect(ctx, current, outcome.Suggestion)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logger.Fields{
		"transaction_id": tx.ID,
		"mode":           outcome.Suggestion.Mode,
		"source":         outcome.Source,
		"entry_ids":      strings.Join(result.EntryIDs, ","),
		"status":         result.Status,
	}).Info("Posted transaction")
	return result, nil
}

func (p *Poster) postDirect(ctx context.Context, tx *models.Transaction, s *models.Suggestion) (*Result, error) {
	target, err := p.target(ctx, tx.ID, s.AccountID)
	if err != nil {
		return nil, err
	}
	bank, err := p.role(ctx, models.RoleBank)
	if err != nil {
		return nil, err
	}

	amount := tx.AbsoluteAmount()
	entry := p.entry(tx, models.EntryDirect, description(tx, s), s.ContactID, "")
	if tx.IsOutgoing() {
		entry.Debit(target.ID, amount, target.Name).Credit(bank.ID, amount, bank.Name)
	} else {
		entry.Debit(bank.ID, amount, bank.Name).Credit(target.ID, amount, target.Name)
	}
	if err := p.insert(ctx, entry); err != nil {
		return nil, err
	}

	if err := p.store.UpdateTransactionBooking(ctx, tx.ID, store.TransactionBooking{
		Status:         models.StatusBooked,
		JournalEntryID: entry.ID,
		ContactID:      s.ContactID,
	}); err != nil {
		return nil, err
	}

	result := &Result{Status: models.StatusBooked}
	result.add(entry)
	return result, nil
}

func (p *Poster) postRelation(ctx context.Context, tx *models.Transaction, s *models.Suggestion) (*Result, error) {
	if s.ContactID == "" {
		return nil, errors.PostingError(errors.CodeIncompleteInput, tx.ID, fmt.Errorf("relation booking without a contact"))
	}

	var invoice *models.Invoice
	if s.InvoiceID != "" {
		inv, err := p.store.InvoiceByID(ctx, s.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv == nil {
			return nil, errors.StoreError(errors.CodeNotFound, "invoice "+s.InvoiceID, nil)
		}
		if !inv.AwaitsPayment() {
			return nil, errors.PostingError(errors.CodeInvalidState, tx.ID,
				fmt.Errorf("invoice %s is %s and not awaiting payment", inv.Number, inv.Status))
		}
		if err := p.checkUnclaimed(ctx, tx.ID, inv); err != nil {
			return nil, err
		}
		invoice = inv
	}

	bank, err := p.role(ctx, models.RoleBank)
	if err != nil {
		return nil, err
	}
	suspense, err := p.role(ctx, suspenseRole(tx))
	if err != nil {
		return nil, err
	}

	// Cost or revenue of an invoice that was booked on its own is already in
	// the ledger; only the cash movement is posted then.
	invoiceBooked := invoice != nil && invoice.JournalEntryID != ""

	var target *models.Account
	if !invoiceBooked {
		if target, err = p.target(ctx, tx.ID, s.AccountID); err != nil {
			return nil, err
		}
	}

	gross := tx.AbsoluteAmount()
	invoiceID := ""
	if invoice != nil {
		invoiceID = invoice.ID
	}

	payment := p.entry(tx, models.EntryPayment, "Payment "+description(tx, s), s.ContactID, invoiceID)
	if tx.IsOutgoing() {
		payment.Debit(suspense.ID, gross, suspense.Name).Credit(bank.ID, gross, bank.Name)
	} else {
		payment.Debit(bank.ID, gross, bank.Name).Credit(suspense.ID, gross, suspense.Name)
	}
	if err := p.insert(ctx, payment); err != nil {
		return nil, err
	}

	result := &Result{Status: models.StatusPending}
	result.add(payment)

	if !invoiceBooked {
		rate := decimal.Zero
		if invoice != nil {
			rate = invoice.VATRate
		}
		booking, err := p.costOrRevenue(ctx, tx, s, target, suspense, gross, rate, invoiceID)
		if err != nil {
			return nil, err
		}
		result.add(booking)

		if invoice != nil {
			if err := p.store.SetInvoiceEntry(ctx, invoice.ID, booking.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := p.store.UpdateTransactionBooking(ctx, tx.ID, store.TransactionBooking{
		Status:         models.StatusPending,
		JournalEntryID: payment.ID,
		ContactID:      s.ContactID,
		InvoiceID:      invoiceID,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// checkUnclaimed refuses an invoice that another posted transaction holds
func (p *Poster) checkUnclaimed(ctx context.Context, transactionID string, inv *models.Invoice) error {
	holder, err := p.store.InvoiceClaimant(ctx, inv.ID)
	if err != nil {
		return err
	}
	if holder != "" && holder != transactionID {
		return errors.PostingError(errors.CodeInvoiceClaimed, transactionID,
			fmt.Errorf("invoice %s is held by transaction %s", inv.Number, holder)).
			WithContext("invoice_id", inv.ID)
	}
	return nil
}

// costOrRevenue books the target account against suspense, splitting VAT
// when a rate is known.
func (p *Poster) costOrRevenue(ctx context.Context, tx *models.Transaction, s *models.Suggestion, target, suspense *models.Account,
	gross, rate decimal.Decimal, invoiceID string) (*models.JournalEntry, error) {
	net, vat := SplitVAT(gross, rate)

	if tx.IsOutgoing() {
		entry := p.entry(tx, models.EntryCost, "Cost "+description(tx, s), s.ContactID, invoiceID)
		entry.Debit(target.ID, net, target.Name)
		if vat.IsPositive() {
			vatAccount, err := p.role(ctx, models.RoleVATReceivable)
			if err != nil {
				return nil, err
			}
			entry.Debit(vatAccount.ID, vat, vatAccount.Name)
		}
		entry.Credit(suspense.ID, gross, suspense.Name)
		return entry, p.insert(ctx, entry)
	}

	entry := p.entry(tx, models.EntryRevenue, "Revenue "+description(tx, s), s.ContactID, invoiceID)
	entry.Debit(suspense.ID, gross, suspense.Name).Credit(target.ID, net, target.Name)
	if vat.IsPositive() {
		vatAccount, err := p.role(ctx, models.RoleVATPayable)
		if err != nil {
			return nil, err
		}
		entry.Credit(vatAccount.ID, vat, vatAccount.Name)
	}
	return entry, p.insert(ctx, entry)
}

// Settle clears the suspense balance a pending transaction left behind
// against creditors (money out) or debtors (money in), links the invoice and
// marks the transaction reconciled.
func (p *Poster) Settle(ctx context.Context, transactionID, invoiceID string) (*Result, error) {
	var result *Result
	err := p.store.Atomic(ctx, func(ctx context.Context) error {
		tx, err := p.store.TransactionByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if tx == nil {
			return errors.StoreError(errors.CodeNotFound, "transaction "+transactionID, nil)
		}
		if tx.Status != models.StatusPending {
			return errors.PostingError(errors.CodeInvalidState, transactionID,
				fmt.Errorf("only pending transactions can be settled, status is %s", tx.Status))
		}
		if tx.InvoiceID != "" && tx.InvoiceID != invoiceID {
			return errors.PostingError(errors.CodeInvalidState, transactionID,
				fmt.Errorf("transaction is linked to invoice %s", tx.InvoiceID))
		}

		inv, err := p.store.InvoiceByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return errors.StoreError(errors.CodeNotFound, "invoice "+invoiceID, nil)
		}
		if !inv.AwaitsPayment() {
			return errors.PostingError(errors.CodeInvalidState, transactionID,
				fmt.Errorf("invoice %s is %s and not awaiting payment", inv.Number, inv.Status))
		}
		if err := p.checkUnclaimed(ctx, tx.ID, inv); err != nil {
			return err
		}
		wantKind := models.InvoiceSales
		if tx.IsOutgoing() {
			wantKind = models.InvoicePurchase
		}
		if inv.Kind != wantKind {
			return errors.PostingError(errors.CodeInvalidState, transactionID,
				fmt.Errorf("a %s invoice cannot settle this transaction", inv.Kind))
		}

		result, err = p.settle(ctx, tx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logger.Fields{
		"transaction_id": transactionID,
		"invoice_id":     invoiceID,
		"entry_ids":      strings.Join(result.EntryIDs, ","),
	}).Info("Settled transaction")
	return result, nil
}

func (p *Poster) settle(ctx context.Context, tx *models.Transaction, inv *models.Invoice) (*Result, error) {
	suspense, err := p.role(ctx, suspenseRole(tx))
	if err != nil {
		return nil, err
	}

	entries, err := p.store.EntriesForTransaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	open := decimal.Zero
	var booking *models.JournalEntry
	for _, e := range entries {
		if e.Kind == models.EntryCost || e.Kind == models.EntryRevenue {
			booking = e
		}
		for _, l := range e.Lines {
			if l.AccountID == suspense.ID {
				open = open.Add(l.Debit).Sub(l.Credit)
			}
		}
	}

	result := &Result{Status: models.StatusReconciled}
	if open.Abs().GreaterThan(NegligibleVAT) {
		entry := p.entry(tx, models.EntrySettlement, "Settlement invoice "+inv.Number, inv.ContactID, inv.ID)
		amount := open.Abs()
		if open.IsPositive() {
			creditors, err := p.role(ctx, models.RoleCreditors)
			if err != nil {
				return nil, err
			}
			entry.Debit(creditors.ID, amount, creditors.Name).Credit(suspense.ID, amount, suspense.Name)
		} else {
			debtors, err := p.role(ctx, models.RoleDebtors)
			if err != nil {
				return nil, err
			}
			entry.Debit(suspense.ID, amount, suspense.Name).Credit(debtors.ID, amount, debtors.Name)
		}
		if err := p.insert(ctx, entry); err != nil {
			return nil, err
		}
		result.add(entry)
	}

	if inv.JournalEntryID == "" && booking != nil {
		if err := p.store.SetInvoiceEntry(ctx, inv.ID, booking.ID); err != nil {
			return nil, err
		}
	}
	if err := p.store.MarkInvoicePaid(ctx, inv.ID, tx.ID); err != nil {
		return nil, err
	}
	if err := p.store.UpdateTransactionBooking(ctx, tx.ID, store.TransactionBooking{
		Status:    models.StatusReconciled,
		ContactID: inv.ContactID,
		InvoiceID: inv.ID,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// PostInvoice books a purchase invoice against creditors or a sales invoice
// against debtors, splitting VAT by the invoice rate.
func (p *Poster) PostInvoice(ctx context.Context, invoiceID string) (*Result, error) {
	var result *Result
	err := p.store.Atomic(ctx, func(ctx context.Context) error {
		inv, err := p.store.InvoiceByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return errors.StoreError(errors.CodeNotFound, "invoice "+invoiceID, nil)
		}
		if inv.JournalEntryID != "" {
			return errors.New(errors.CategoryPosting, errors.CodeAlreadyBooked,
				fmt.Sprintf("invoice %s is already booked", inv.Number)).WithContext("invoice_id", inv.ID)
		}
		if inv.Status == models.InvoiceDraft {
			return errors.New(errors.CategoryPosting, errors.CodeInvalidState,
				fmt.Sprintf("invoice %s is still a draft", inv.Number)).WithContext("invoice_id", inv.ID)
		}

		accountID := inv.AccountID
		if accountID == "" {
			rel, err := p.store.RelationByID(ctx, inv.ContactID)
			if err != nil {
				return err
			}
			if rel != nil {
				accountID = rel.DefaultAccountID
			}
		}
		target, err := p.target(ctx, "invoice "+inv.Number, accountID)
		if err != nil {
			return err
		}

		entry, err := p.invoiceEntry(ctx, inv, target)
		if err != nil {
			return err
		}
		if err := p.store.SetInvoiceEntry(ctx, inv.ID, entry.ID); err != nil {
			return err
		}
		result = &Result{}
		result.add(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logger.Fields{
		"invoice_id": invoiceID,
		"entry_id":   result.PrimaryEntryID,
	}).Info("Posted invoice")
	return result, nil
}

func (p *Poster) invoiceEntry(ctx context.Context, inv *models.Invoice, target *models.Account) (*models.JournalEntry, error) {
	gross := inv.Total
	net, vat := SplitVAT(gross, inv.VATRate)
	entry := &models.JournalEntry{
		Date:        inv.Date,
		Kind:        models.EntryInvoice,
		Description: invoiceLabel(inv),
		InvoiceID:   inv.ID,
		ContactID:   inv.ContactID,
	}

	if inv.Kind == models.InvoicePurchase {
		creditors, err := p.role(ctx, models.RoleCreditors)
		if err != nil {
			return nil, err
		}
		entry.Debit(target.ID, net, target.Name)
		if vat.IsPositive() {
			vatAccount, err := p.role(ctx, models.RoleVATReceivable)
			if err != nil {
				return nil, err
			}
			entry.Debit(vatAccount.ID, vat, vatAccount.Name)
		}
		entry.Credit(creditors.ID, gross, creditors.Name)
	} else {
		debtors, err := p.role(ctx, models.RoleDebtors)
		if err != nil {
			return nil, err
		}
		entry.Debit(debtors.ID, gross, debtors.Name).Credit(target.ID, net, target.Name)
		if vat.IsPositive() {
			vatAccount, err := p.role(ctx, models.RoleVATPayable)
			if err != nil {
				return nil, err
			}
			entry.Credit(vatAccount.ID, vat, vatAccount.Name)
		}
	}
	return entry, p.insert(ctx, entry)
}

// insert validates shape and balance, then writes the entry. An unbalanced
// entry aborts the surrounding store transaction.
func (p *Poster) insert(ctx context.Context, e *models.JournalEntry) error {
	if err := e.ValidateLines(); err != nil {
		return errors.Wrap(err, errors.CategoryInvariant, errors.CodeUnbalancedEntry,
			fmt.Sprintf("journal entry %q is malformed", e.Description))
	}
	if !e.IsBalanced() {
		debit, credit := e.Totals()
		p.logger.WithFields(logger.Fields{
			"entry":        e.Description,
			"debit_total":  debit.StringFixed(2),
			"credit_total": credit.StringFixed(2),
		}).Error("Refusing unbalanced journal entry")
		return errors.InvariantError(e.Description, debit, credit)
	}
	return p.store.InsertJournalEntry(ctx, e)
}

func (p *Poster) entry(tx *models.Transaction, kind models.EntryKind, desc, contactID, invoiceID string) *models.JournalEntry {
	return &models.JournalEntry{
		Date:          tx.Date,
		Kind:          kind,
		Description:   desc,
		TransactionID: tx.ID,
		InvoiceID:     invoiceID,
		ContactID:     contactID,
	}
}

// target loads a posting target and refuses blacklisted or inactive accounts.
func (p *Poster) target(ctx context.Context, subject, accountID string) (*models.Account, error) {
	if accountID == "" {
		return nil, errors.PostingError(errors.CodeIncompleteInput, subject, nil)
	}
	acct, err := p.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errors.PostingError(errors.CodeIncompleteInput, subject, fmt.Errorf("account %s does not exist", accountID))
	}
	if acct.IsBlacklisted() {
		return nil, errors.PostingError(errors.CodeBlacklistedAccount, subject, fmt.Errorf("account %s", acct))
	}
	if !acct.Active {
		return nil, errors.PostingError(errors.CodeIncompleteInput, subject, fmt.Errorf("account %s is inactive", acct))
	}
	return acct, nil
}

func (p *Poster) role(ctx context.Context, role models.SystemRole) (*models.Account, error) {
	acct, err := p.store.AccountBySystemRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errors.MissingAccountError(string(role))
	}
	return acct, nil
}

func suspenseRole(tx *models.Transaction) models.SystemRole {
	if tx.IsOutgoing() {
		return models.RoleSuspense
	}
	return models.RoleReceivableSuspense
}

func description(tx *models.Transaction, s *models.Suggestion) string {
	if s != nil && strings.TrimSpace(s.Description) != "" {
		return s.Description
	}
	if tx.CounterpartyName != "" {
		return tx.CounterpartyName
	}
	return tx.Description
}

func invoiceLabel(inv *models.Invoice) string {
	if inv.Kind == models.InvoiceSales {
		return "Sales invoice " + inv.Number
	}
	return "Purchase invoice " + inv.Number
}
