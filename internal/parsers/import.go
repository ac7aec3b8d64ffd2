package parsers

import (
	"context"
	"io"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/logger"
)

// DefaultImportBatchSize is the number of rows written per store transaction
const DefaultImportBatchSize = 500

// TransactionSink stores imported transactions. InsertTransaction reports
// false when a row with the same source hash already exists.
type TransactionSink interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	InsertTransaction(ctx context.Context, t *models.Transaction) (bool, error)
}

// ImportResult summarizes one import run
type ImportResult struct {
	Source     string      `json:"source"`
	Inserted   int         `json:"inserted"`
	Duplicates int         `json:"duplicates"`
	Stats      *ParseStats `json:"stats"`
}

// Import parses r and inserts every valid row into sink, one store
// transaction per batch. Rows seen before are counted as duplicates.
func (tp *TransactionParser) Import(ctx context.Context, r io.Reader, source string, sink TransactionSink, batchSize int) (*ImportResult, error) {
	if batchSize < 1 {
		batchSize = DefaultImportBatchSize
	}
	result := &ImportResult{Source: source}

	stats, err := tp.Stream(ctx, r, source, batchSize, func(ctx context.Context, batch []*models.Transaction) error {
		inserted, duplicates := 0, 0
		err := sink.Atomic(ctx, func(ctx context.Context) error {
			for _, tx := range batch {
				ok, err := sink.InsertTransaction(ctx, tx)
				if err != nil {
					return err
				}
				if ok {
					inserted++
				} else {
					duplicates++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		result.Inserted += inserted
		result.Duplicates += duplicates
		return nil
	})
	result.Stats = stats
	if err != nil {
		return result, err
	}

	tp.logger.WithFields(logger.Fields{
		"source":     source,
		"inserted":   result.Inserted,
		"duplicates": result.Duplicates,
		"rejected":   stats.ErrorCount,
	}).Info("Import completed")
	return result, nil
}
