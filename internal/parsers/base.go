// Package parsers reads bank transaction exports into normalized import
// tuples: date, signed amount, description and an optional counterparty name
// and IBAN.
//
// Headers are matched case-insensitively against per-field aliases so that
// the normalized layout and common Dutch bank exports ("Datum", "Bedrag",
// "Naam tegenpartij", "Af Bij") load without configuration. Amounts accept a
// decimal point or a decimal comma; an Af/Bij column signs unsigned amounts.
//
// Example usage:
//
//	parser, err := parsers.NewTransactionParser(parsers.DefaultImportConfig(), log)
//	txs, stats, err := parser.ParseFile(ctx, "statement.csv")
//
// Every parsed transaction carries a SourceHash derived from its content and
// its occurrence number within the file, so re-importing a file is a no-op
// while identical rows inside one file stay distinct.
package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

// maxFieldSize limits a single CSV field
const maxFieldSize = 64 * 1024

// RowError describes one rejected row
type RowError struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d (%s=%q): %s", e.Line, e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int         `json:"total_lines"`
	RecordsParsed int         `json:"records_parsed"`
	RecordsValid  int         `json:"records_valid"`
	ErrorCount    int         `json:"error_count"`
	Errors        []*RowError `json:"errors,omitempty"`
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{}
}

// AddError records a rejected row
func (ps *ParseStats) AddError(err *RowError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any row errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples row errors as strings
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}
	samples := make([]string, 0, limit)
	for _, e := range ps.Errors[:limit] {
		samples = append(samples, e.Error())
	}
	return samples
}

// parseContext holds state while one file is read
type parseContext struct {
	ctx     context.Context
	source  string
	line    int
	columns map[string]int
	headers []string

	// dateLayout is the last layout detected for a non-standard date
	dateLayout string
}

func (pc *parseContext) cancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// field returns the trimmed value of a canonical field, or "" when the
// column is absent from the file or the row.
func (pc *parseContext) field(record []string, name string) string {
	idx, ok := pc.columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// baseParser handles the CSV mechanics shared by import formats
type baseParser struct {
	config *ImportConfig
	logger logger.Logger
}

// newReader validates the encoding of the input and returns a configured
// csv.Reader. A UTF-8 byte order mark is dropped.
func (bp *baseParser) newReader(r io.Reader, source string) (*csv.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, 0, "", "", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if err := validateEncoding(data, source); err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader, nil
}

func validateEncoding(data []byte, source string) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxFieldSize*8)
	line := 0
	for scanner.Scan() {
		line++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeInvalidFormat,
				source,
				line,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.ParseError(errors.CodeInvalidFormat, source, line, "", "", err)
	}
	return nil
}

// readHeaders maps canonical fields to column indexes. Without a header row
// the configured column order is used.
func (bp *baseParser) readHeaders(reader *csv.Reader, pc *parseContext) error {
	pc.columns = make(map[string]int)

	if !bp.config.HasHeader {
		pc.headers = append([]string(nil), bp.config.Columns...)
		for i, field := range bp.config.Columns {
			pc.columns[field] = i
		}
		return nil
	}

	headers, err := reader.Read()
	if err == io.EOF {
		return errors.ParseError(errors.CodeMissingColumn, pc.source, 1, "headers", "", fmt.Errorf("file is empty")).
			WithSuggestion("Ensure the file contains a header row and data rows")
	}
	if err != nil {
		return errors.ParseError(errors.CodeInvalidFormat, pc.source, 1, "headers", "", err).
			WithSuggestion("Check the file format and the delimiter")
	}
	pc.line++

	pc.headers = make([]string, len(headers))
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		pc.headers[i] = strings.TrimSpace(h)
		key := strings.ToLower(pc.headers[i])
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	for _, field := range append(append([]string{}, RequiredFields...), OptionalFields...) {
		for _, alias := range bp.config.Aliases(field) {
			if i, ok := index[strings.ToLower(alias)]; ok {
				pc.columns[field] = i
				break
			}
		}
	}

	var missing []string
	for _, field := range RequiredFields {
		if _, ok := pc.columns[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_fields":    missing,
			"available_headers": pc.headers,
		}).Error("Required columns are missing")
		return errors.ParseError(
			errors.CodeMissingColumn,
			pc.source,
			pc.line,
			"headers",
			strings.Join(missing, ", "),
			fmt.Errorf("no column found for %s", strings.Join(missing, ", ")),
		).WithSuggestion(fmt.Sprintf("Available headers: %s", strings.Join(pc.headers, ", ")))
	}

	bp.logger.WithFields(logger.Fields{
		"source":  pc.source,
		"columns": pc.columns,
	}).Debug("Resolved import columns")
	return nil
}

// readRecord returns the next non-empty record. A malformed line is
// returned as a *RowError so the caller can record it and continue.
func (bp *baseParser) readRecord(reader *csv.Reader, pc *parseContext) ([]string, error) {
	for {
		if pc.cancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "import parsing", pc.ctx.Err())
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil, err
		}
		if err != nil {
			pc.line++
			if pe, ok := err.(*csv.ParseError); ok {
				pc.line = pe.StartLine
			}
			return nil, &RowError{Line: pc.line, Message: "malformed CSV row", Err: err}
		}
		pc.line, _ = reader.FieldPos(0)
		if isEmptyRecord(record) {
			continue
		}
		for i, f := range record {
			if len(f) > maxFieldSize {
				return nil, &RowError{
					Line:    pc.line,
					Field:   fmt.Sprintf("column_%d", i+1),
					Value:   f[:32] + "...",
					Message: fmt.Sprintf("field exceeds maximum size of %d bytes", maxFieldSize),
				}
			}
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
