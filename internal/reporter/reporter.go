// Package reporter renders batch reports and single resolution outcomes.
//
// Supported output formats:
//   - Console: human-readable text for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one row per transaction for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeBooked lists auto-booked and skipped transactions in the
	// console output; review items and errors are always listed
	IncludeBooked bool `json:"include_booked"`

	// MaxItems caps each console section; 0 lists everything
	MaxItems int `json:"max_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		MaxItems:     25,
		CSVDelimiter: ',',
		CSVHeaders:   true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator renders reports in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a batch report to writer
func (rg *ReportGenerator) GenerateReport(report *reconciler.Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("batch report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return writeJSON(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *reconciler.Report, writer io.Writer) error {
	w := &errWriter{w: writer}

	w.printf("BOOKING BATCH REPORT\n")
	w.printf("Started: %s\n", report.StartedAt.Format(time.RFC3339))
	w.printf("Duration: %v\n", report.Duration.Round(time.Millisecond))
	w.printf("Concurrency: %d, auto-book threshold: %d\n", report.Concurrency, report.Threshold)
	if report.Cancelled {
		w.printf("Batch was cancelled before all transactions were processed\n")
	}
	w.printf("\n=== SUMMARY ===\n")
	w.printf("  Processed:    %d\n", report.TotalProcessed)
	w.printf("  Auto-booked:  %d (%.1f%%)\n", report.AutoBooked, percentage(report.AutoBooked, report.TotalProcessed))
	w.printf("  Needs review: %d (%.1f%%)\n", report.NeedsReview, percentage(report.NeedsReview, report.TotalProcessed))
	w.printf("  Skipped:      %d\n", report.Skipped)
	w.printf("  Errors:       %d\n", report.Errors)

	sources := sourceBreakdown(report.Details)
	if len(sources) > 0 {
		w.printf("\n=== RESOLVED BY ===\n")
		for _, s := range sources {
			w.printf("  %-20s %d\n", s.source, s.count)
		}
	}

	sections := []struct {
		title  string
		action reconciler.Action
		show   bool
	}{
		{"NEEDS REVIEW", reconciler.ActionNeedsReview, true},
		{"ERRORS", reconciler.ActionError, true},
		{"AUTO-BOOKED", reconciler.ActionAutoBooked, rg.config.IncludeBooked},
		{"SKIPPED", reconciler.ActionSkipped, rg.config.IncludeBooked},
	}
	for _, section := range sections {
		if !section.show {
			continue
		}
		items := filter(report.Details, section.action)
		if len(items) == 0 {
			continue
		}
		w.printf("\n=== %s (%d) ===\n", section.title, len(items))
		for i, item := range items {
			if rg.config.MaxItems > 0 && i >= rg.config.MaxItems {
				w.printf("  ... and %d more\n", len(items)-rg.config.MaxItems)
				break
			}
			w.printf("  %d. %s\n", i+1, describeItem(item))
		}
	}

	if report.ErrorSummary != nil && report.ErrorSummary.Total > 0 {
		w.printf("\n=== ERROR SUMMARY ===\n")
		categories := make([]string, 0, len(report.ErrorSummary.ByCategory))
		for category, count := range report.ErrorSummary.ByCategory {
			categories = append(categories, fmt.Sprintf("  %-15s %d", category, count))
		}
		sort.Strings(categories)
		w.printf("%s\n", strings.Join(categories, "\n"))
	}
	return w.err
}

func (rg *ReportGenerator) generateCSVReport(report *reconciler.Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Transaction_ID",
			"Counterparty",
			"Amount",
			"Action",
			"Status",
			"Source",
			"Confidence",
			"Mode",
			"Account_ID",
			"Contact_ID",
			"Invoice_ID",
			"Entry_IDs",
			"Reason",
			"Error_Code",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, item := range report.Details {
		record := []string{
			item.TransactionID,
			item.Counterparty,
			item.Amount,
			string(item.Action),
			string(item.Status),
			"", "", "", "", "", "",
			strings.Join(item.EntryIDs, " "),
			item.Reason,
			"",
		}
		if o := item.Outcome; o != nil {
			record[5] = string(o.Source)
			record[6] = strconv.Itoa(o.Score)
			if s := o.Suggestion; s != nil {
				record[7] = string(s.Mode)
				record[8] = s.AccountID
				record[9] = s.ContactID
				record[10] = s.InvoiceID
			}
		}
		if item.Error != nil {
			record[13] = string(item.Error.Code)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write record for %s: %w", item.TransactionID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// GenerateOutcome writes the resolution of a single transaction to writer.
// CSV output falls back to JSON since there is only one record.
func (rg *ReportGenerator) GenerateOutcome(tx *models.Transaction, outcome *models.ConfidenceOutcome, threshold int, writer io.Writer) error {
	if tx == nil || outcome == nil {
		return fmt.Errorf("transaction and outcome are required")
	}
	if rg.config.Format != FormatConsole {
		return writeJSON(map[string]interface{}{
			"transaction": tx,
			"outcome":     outcome,
			"actionable":  outcome.IsActionable(threshold),
		}, writer)
	}

	w := &errWriter{w: writer}
	w.printf("Transaction %s\n", tx.ID)
	w.printf("  Date:         %s\n", tx.Date.Format(models.DateLayout))
	w.printf("  Amount:       %s\n", tx.Amount.StringFixed(2))
	w.printf("  Description:  %s\n", tx.Description)
	if tx.CounterpartyName != "" {
		w.printf("  Counterparty: %s\n", tx.CounterpartyName)
	}
	w.printf("  Status:       %s\n", tx.Status)
	w.printf("Outcome\n")
	w.printf("  Source:       %s\n", outcome.Source)
	w.printf("  Confidence:   %d\n", outcome.Score)
	w.printf("  Reason:       %s\n", outcome.Reason)
	if s := outcome.Suggestion; s != nil {
		w.printf("  Mode:         %s\n", s.Mode)
		if s.AccountID != "" {
			w.printf("  Account:      %s\n", s.AccountID)
		}
		if s.ContactID != "" {
			w.printf("  Contact:      %s\n", s.ContactID)
		}
		if s.InvoiceID != "" {
			w.printf("  Invoice:      %s\n", s.InvoiceID)
		}
	}
	if outcome.IsActionable(threshold) {
		w.printf("Would be booked automatically (threshold %d)\n", threshold)
	} else {
		w.printf("Needs review (threshold %d)\n", threshold)
	}
	return w.err
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

type sourceCount struct {
	source models.OutcomeSource
	count  int
}

// sourceBreakdown counts resolved outcomes per pipeline stage, largest first.
func sourceBreakdown(details []*reconciler.ItemResult) []sourceCount {
	counts := map[models.OutcomeSource]int{}
	for _, d := range details {
		if d.Outcome != nil && d.Outcome.HasMatch() {
			counts[d.Outcome.Source]++
		}
	}
	out := make([]sourceCount, 0, len(counts))
	for source, count := range counts {
		out = append(out, sourceCount{source, count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].source < out[j].source
	})
	return out
}

func filter(details []*reconciler.ItemResult, action reconciler.Action) []*reconciler.ItemResult {
	var out []*reconciler.ItemResult
	for _, d := range details {
		if d.Action == action {
			out = append(out, d)
		}
	}
	return out
}

func describeItem(item *reconciler.ItemResult) string {
	var b strings.Builder
	b.WriteString(item.TransactionID)
	if item.Amount != "" {
		fmt.Fprintf(&b, " %s", item.Amount)
	}
	if item.Counterparty != "" {
		fmt.Fprintf(&b, " %q", item.Counterparty)
	}
	if o := item.Outcome; o != nil && o.HasMatch() {
		fmt.Fprintf(&b, " [%s %d]", o.Source, o.Score)
		if o.Suggestion.AccountID != "" {
			fmt.Fprintf(&b, " account=%s", o.Suggestion.AccountID)
		}
	}
	if item.Error != nil {
		fmt.Fprintf(&b, " %s: %s", item.Error.Code, item.Error.Message)
	} else if item.Reason != "" {
		fmt.Fprintf(&b, " (%s)", item.Reason)
	}
	if item.Warning != "" {
		fmt.Fprintf(&b, " warning: %s", item.Warning)
	}
	return b.String()
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func writeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// errWriter remembers the first write error so console output can be
// written without checking every line.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
