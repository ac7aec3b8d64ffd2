package learning

import (
	"context"
	"strings"
	"unicode"

	"github.com/jbrukh/bayesian"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/store"
	"golang-bookkeeping-service/pkg/logger"
)

// MinHintProbability is the posterior a history hint needs before it is shown
const MinHintProbability = 0.75

// HistorySource provides booked transactions and their journal entries
type HistorySource interface {
	ListTransactions(ctx context.Context, f store.TransactionFilter) ([]*models.Transaction, error)
	EntriesForTransaction(ctx context.Context, transactionID string) ([]*models.JournalEntry, error)
	AccountByID(ctx context.Context, id string) (*models.Account, error)
}

// Hint is an account guessed from earlier bookings of similar transactions
type Hint struct {
	AccountID   string  `json:"account_id"`
	Probability float64 `json:"probability"`
}

// HistoryClassifier is a naive Bayes classifier over the words of booked
// transactions. It only gives hints and never books anything.
type HistoryClassifier struct {
	classifier *bayesian.Classifier
	examples   int
}

type example struct {
	words     []string
	accountID string
}

// TrainHistory learns from every booked transaction in src. Lines on system
// accounts (bank, suspense, VAT and the like) are not learned.
func TrainHistory(ctx context.Context, src HistorySource, log logger.Logger) (*HistoryClassifier, error) {
	log = logger.OrGlobal(log, "history")

	booked, err := src.ListTransactions(ctx, store.TransactionFilter{Status: models.StatusBooked})
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]*models.Account)
	var examples []example
	var classes []bayesian.Class
	for _, tx := range booked {
		words := Tokenize(tx)
		if len(words) == 0 {
			continue
		}
		entries, err := src.EntriesForTransaction(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			for _, line := range e.Lines {
				acc, seen := accounts[line.AccountID]
				if !seen {
					if acc, err = src.AccountByID(ctx, line.AccountID); err != nil {
						return nil, err
					}
					accounts[line.AccountID] = acc
					if acc != nil && acc.SystemRole == models.RoleNone {
						classes = append(classes, bayesian.Class(acc.ID))
					}
				}
				if acc == nil || acc.SystemRole != models.RoleNone {
					continue
				}
				examples = append(examples, example{words: words, accountID: acc.ID})
			}
		}
	}

	h := &HistoryClassifier{examples: len(examples)}
	// the classifier needs at least two classes
	if len(classes) < 2 {
		log.WithField("classes", len(classes)).Debug("Not enough booking history to train on")
		return h, nil
	}
	h.classifier = bayesian.NewClassifier(classes...)
	for _, ex := range examples {
		h.classifier.Learn(ex.words, bayesian.Class(ex.accountID))
	}
	log.WithFields(logger.Fields{
		"classes":  len(classes),
		"examples": len(examples),
	}).Debug("Trained history classifier")
	return h, nil
}

// Examples returns how many bookings were learned
func (h *HistoryClassifier) Examples() int {
	return h.examples
}

// Suggest returns the most likely account for tx, or false when the history
// is too thin or ambiguous.
func (h *HistoryClassifier) Suggest(tx *models.Transaction) (Hint, bool) {
	if h == nil || h.classifier == nil || tx == nil {
		return Hint{}, false
	}
	words := Tokenize(tx)
	if len(words) == 0 {
		return Hint{}, false
	}
	scores, idx, strict := h.classifier.ProbScores(words)
	if !strict || scores[idx] < MinHintProbability {
		return Hint{}, false
	}
	return Hint{AccountID: string(h.classifier.Classes[idx]), Probability: scores[idx]}, true
}

// Tokenize splits the counterparty and description of tx into lowercase
// words of at least three letters.
func Tokenize(tx *models.Transaction) []string {
	text := strings.ToLower(tx.CounterpartyName + " " + tx.Description)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			words = append(words, f)
		}
	}
	return words
}
