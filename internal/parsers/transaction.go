package parsers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	date "github.com/joyt/godate"
	"github.com/shopspring/decimal"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// BatchCallback receives parsed transactions in batches
type BatchCallback func(ctx context.Context, batch []*models.Transaction) error

// TransactionParser reads import files into unmatched transactions
type TransactionParser struct {
	base   *baseParser
	config *ImportConfig
	logger logger.Logger
}

// NewTransactionParser creates a parser for the given layout
func NewTransactionParser(config *ImportConfig, log logger.Logger) (*TransactionParser, error) {
	if config == nil {
		config = DefaultImportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"import_config",
			config.Name,
			err,
		).WithSuggestion("Check the import format configuration values")
	}

	log = logger.OrGlobal(log, "transaction_parser")
	log.WithFields(logger.Fields{
		"format":     config.Name,
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
	}).Debug("Created transaction parser")

	return &TransactionParser{
		base:   &baseParser{config: config, logger: log},
		config: config,
		logger: log,
	}, nil
}

// ParseFile parses an import file
func (tp *TransactionParser) ParseFile(ctx context.Context, path string) ([]*models.Transaction, *ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "", "", err).
			WithSuggestion("Check that the file exists and is readable")
	}
	defer file.Close()
	return tp.Parse(ctx, file, path)
}

// Parse reads all rows from r. Rows that fail to parse are recorded in the
// stats and skipped; only file-level problems return an error.
func (tp *TransactionParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.Transaction, *ParseStats, error) {
	var out []*models.Transaction
	stats, err := tp.Stream(ctx, r, source, 0, func(_ context.Context, batch []*models.Transaction) error {
		out = append(out, batch...)
		return nil
	})
	return out, stats, err
}

// Stream reads rows from r and hands them to callback in batches of
// batchSize. A batchSize below 1 delivers everything in one batch. A
// callback error stops the stream and is returned.
func (tp *TransactionParser) Stream(ctx context.Context, r io.Reader, source string, batchSize int, callback BatchCallback) (*ParseStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	stats := NewParseStats()
	err := logger.TimedOperation("parse_transactions", tp.logger.WithField("source", source), func() error {
		return tp.stream(ctx, r, source, batchSize, callback, stats)
	})
	return stats, err
}

func (tp *TransactionParser) stream(ctx context.Context, r io.Reader, source string, batchSize int, callback BatchCallback, stats *ParseStats) error {
	reader, err := tp.base.newReader(r, source)
	if err != nil {
		return err
	}

	pc := &parseContext{ctx: ctx, source: source}
	if err := tp.base.readHeaders(reader, pc); err != nil {
		return err
	}

	occurrences := make(map[string]int)
	var batch []*models.Transaction
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := callback(ctx, batch); err != nil {
			return err
		}
		batch = nil
		return nil
	}

	for {
		record, err := tp.base.readRecord(reader, pc)
		if err == io.EOF {
			break
		}
		if err != nil {
			if rowErr, ok := err.(*RowError); ok {
				stats.RecordsParsed++
				stats.AddError(rowErr)
				continue
			}
			stats.TotalLines = pc.line
			return err
		}

		stats.RecordsParsed++
		tx, rowErr := tp.parseRecord(record, pc)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}

		canonical := canonicalString(tx)
		occurrences[canonical]++
		tx.SourceHash = sourceHash(canonical, occurrences[canonical])

		batch = append(batch, tx)
		stats.RecordsValid++
		if batchSize > 0 && len(batch) >= batchSize {
			if err := flush(); err != nil {
				stats.TotalLines = pc.line
				return err
			}
		}
	}
	if err := flush(); err != nil {
		stats.TotalLines = pc.line
		return err
	}

	stats.TotalLines = pc.line
	tp.logger.WithFields(logger.Fields{
		"source":         source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Transaction parsing completed")
	if stats.HasErrors() {
		tp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}
	return nil
}

// parseRecord turns one CSV record into an unmatched transaction
func (tp *TransactionParser) parseRecord(record []string, pc *parseContext) (*models.Transaction, *RowError) {
	dateStr := pc.field(record, FieldDate)
	bookDate, err := pc.parseDate(dateStr)
	if err != nil {
		return nil, &RowError{Line: pc.line, Field: FieldDate, Value: dateStr, Message: "invalid date", Err: err}
	}

	amountStr := pc.field(record, FieldAmount)
	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return nil, &RowError{Line: pc.line, Field: FieldAmount, Value: amountStr, Message: "invalid amount", Err: err}
	}

	if dir := pc.field(record, FieldDirection); dir != "" {
		sign, ok := directionSign(dir)
		if !ok {
			return nil, &RowError{Line: pc.line, Field: FieldDirection, Value: dir, Message: "unknown debit/credit indicator"}
		}
		amount = amount.Abs().Mul(decimal.NewFromInt(int64(sign)))
	}

	tx := &models.Transaction{
		Date:             models.TruncateDay(bookDate),
		Amount:           amount,
		Description:      collapseSpaces(pc.field(record, FieldDescription)),
		CounterpartyName: collapseSpaces(pc.field(record, FieldCounterpartyName)),
		CounterpartyIBAN: normalizeIBAN(pc.field(record, FieldCounterpartyIBAN)),
		Status:           models.StatusUnmatched,
	}
	if tx.Description == "" {
		tx.Description = tx.CounterpartyName
	}
	if err := tx.Validate(); err != nil {
		return nil, &RowError{Line: pc.line, Message: err.Error(), Err: err}
	}
	return tx, nil
}

// directionSign maps debit/credit indicators to -1 or +1
func directionSign(s string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "af", "d", "debit", "dt", "out", "-":
		return -1, true
	case "bij", "c", "credit", "ct", "in", "+":
		return 1, true
	default:
		return 0, false
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeIBAN(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

// canonicalString is the content key used for duplicate detection
func canonicalString(tx *models.Transaction) string {
	return strings.Join([]string{
		tx.Date.Format(models.DateLayout),
		tx.Amount.StringFixed(2),
		strings.ToLower(tx.Description),
		strings.ToLower(tx.CounterpartyName),
		tx.CounterpartyIBAN,
	}, "|")
}

func sourceHash(canonical string, occurrence int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", canonical, occurrence)))
	return hex.EncodeToString(h[:])
}

// parseDate tries the known bank layouts first. Anything else is detected
// once and the layout is reused for the following rows of the same file.
func (pc *parseContext) parseDate(s string) (time.Time, error) {
	d, err := models.ParseDate(s)
	if err == nil {
		return d, nil
	}
	if pc.dateLayout != "" {
		if d, lerr := time.Parse(pc.dateLayout, s); lerr == nil {
			return d, nil
		}
	}
	d, layout, derr := date.ParseAndGetLayout(s)
	if derr != nil {
		return time.Time{}, err
	}
	pc.dateLayout = layout
	return d, nil
}
