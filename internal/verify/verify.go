// Package verify runs post-load integrity checks against a store.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scorecast/scorecast/internal/schema"
)

// Report statuses.
const (
	StatusSuccess     = "SUCCESS"
	StatusIssuesFound = "ISSUES_FOUND"
)

// Issue kinds.
const (
	KindOrphanedForeignKey = "orphaned_foreign_key"
	KindCountMismatch      = "count_mismatch"
	KindMissingRequired    = "missing_required"
)

// Inspector is the read-only view of a store the verifier needs. Both the
// relational and the document store implement it.
type Inspector interface {
	Count(ctx context.Context, table string) (int64, error)
	CountOrphans(ctx context.Context, table string) (int64, error)
	FindOutOfRange(ctx context.Context, rule schema.RangeRule, limit int) ([]schema.FieldValue, error)
	FindNulls(ctx context.Context, table, field string, limit int) ([]int64, error)
	SampleComplete(ctx context.Context, n int) ([]schema.CompleteStudent, error)
}

// AuditCounter is implemented by stores that keep an audit log. Its count is
// reported for information and never affects the status.
type AuditCounter interface {
	CountAudit(ctx context.Context) (int64, error)
}

// Report is the structured outcome of one verification.
type Report struct {
	Status              string                   `json:"status"`
	Counts              map[string]int64         `json:"counts"`
	ExpectedStudents    *int64                   `json:"expected_students,omitempty"`
	AuditEntries        *int64                   `json:"audit_entries,omitempty"`
	OrphanedForeignKeys map[string]int64         `json:"orphaned_foreign_keys"`
	Issues              []IntegrityIssue         `json:"issues,omitempty"`
	RangeViolations     []RangeViolation         `json:"range_violations,omitempty"`
	Samples             []schema.CompleteStudent `json:"samples,omitempty"`
	StartedAt           time.Time                `json:"started_at"`
	CompletedAt         time.Time                `json:"completed_at"`
}

// IntegrityIssue is a table-level finding.
type IntegrityIssue struct {
	Kind    string `json:"kind"`
	Table   string `json:"table"`
	Count   int64  `json:"count"`
	Message string `json:"message"`
}

// RangeViolation is a row whose value lies outside its declared bounds, or
// whose required field is null.
type RangeViolation struct {
	Table string   `json:"table"`
	RowID int64    `json:"row_id"`
	Field string   `json:"field"`
	Value *float64 `json:"value,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Null  bool     `json:"null,omitempty"`
}

func (v RangeViolation) String() string {
	if v.Null {
		return fmt.Sprintf("%s row %d: %s is null", v.Table, v.RowID, v.Field)
	}
	val := "null"
	if v.Value != nil {
		val = fmt.Sprintf("%g", *v.Value)
	}
	return fmt.Sprintf("%s row %d: %s = %s", v.Table, v.RowID, v.Field, val)
}

// Passed reports whether the verification found nothing.
func (r *Report) Passed() bool { return r.Status == StatusSuccess }

// Options configures a Verifier.
type Options struct {
	SampleSize     int // complete students to retrieve; default 3, negative disables
	ViolationLimit int // rows reported per rule; default 100
	Logger         *slog.Logger
	Callback       func(check string, passed bool)
}

// Verifier checks counts, referential integrity and value ranges.
type Verifier struct {
	inspector Inspector
	schema    *schema.Schema
	opts      Options
	logger    *slog.Logger
}

// New creates a Verifier over inspector.
func New(inspector Inspector, opts Options) *Verifier {
	if opts.SampleSize == 0 {
		opts.SampleSize = 3
	}
	if opts.ViolationLimit <= 0 {
		opts.ViolationLimit = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		inspector: inspector,
		schema:    schema.Normalized(),
		opts:      opts,
		logger:    logger,
	}
}

// Verify runs every check and returns the findings. It is read-only. An
// error is returned only when the store cannot be read; findings never
// produce an error.
func (v *Verifier) Verify(ctx context.Context, expectedStudents *int64) (*Report, error) {
	report := &Report{
		Counts:              make(map[string]int64),
		OrphanedForeignKeys: make(map[string]int64),
		ExpectedStudents:    expectedStudents,
		StartedAt:           time.Now(),
	}

	for _, table := range v.schema.TableNames() {
		n, err := v.inspector.Count(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		report.Counts[table] = n
		v.notify("count:"+table, true)
	}

	if ac, ok := v.inspector.(AuditCounter); ok {
		n, err := ac.CountAudit(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", schema.TableAuditLog, err)
		}
		report.AuditEntries = &n
	}

	if expectedStudents != nil {
		got := report.Counts[schema.TableStudents]
		ok := got == *expectedStudents
		if !ok {
			v.addIssue(report, IntegrityIssue{
				Kind:    KindCountMismatch,
				Table:   schema.TableStudents,
				Count:   got - *expectedStudents,
				Message: fmt.Sprintf("count mismatch: expected=%d, stored=%d", *expectedStudents, got),
			})
		}
		v.notify("expected_count", ok)
	}

	if err := v.checkOrphans(ctx, report); err != nil {
		return nil, err
	}
	if err := v.checkRanges(ctx, report); err != nil {
		return nil, err
	}
	if err := v.checkRequired(ctx, report); err != nil {
		return nil, err
	}

	if v.opts.SampleSize > 0 {
		samples, err := v.inspector.SampleComplete(ctx, v.opts.SampleSize)
		if err != nil {
			return nil, fmt.Errorf("sampling students: %w", err)
		}
		report.Samples = samples
	}

	report.CompletedAt = time.Now()
	report.Status = computeStatus(report)
	v.logger.Info("verification complete",
		"status", report.Status,
		"issues", len(report.Issues),
		"range_violations", len(report.RangeViolations),
	)
	return report, nil
}

func (v *Verifier) checkOrphans(ctx context.Context, report *Report) error {
	for _, table := range v.schema.DependentTables() {
		n, err := v.inspector.CountOrphans(ctx, table)
		if err != nil {
			return fmt.Errorf("checking orphans in %s: %w", table, err)
		}
		report.OrphanedForeignKeys[table] = n
		if n > 0 {
			v.addIssue(report, IntegrityIssue{
				Kind:    KindOrphanedForeignKey,
				Table:   table,
				Count:   n,
				Message: fmt.Sprintf("%d %s rows reference a missing student", n, table),
			})
		}
		v.notify("orphans:"+table, n == 0)
	}
	return nil
}

func (v *Verifier) checkRanges(ctx context.Context, report *Report) error {
	for _, rule := range v.schema.RangeRules() {
		found, err := v.inspector.FindOutOfRange(ctx, rule, v.opts.ViolationLimit)
		if err != nil {
			return fmt.Errorf("checking %s: %w", rule, err)
		}
		for _, fv := range found {
			lower := rule.Min
			viol := RangeViolation{
				Table: rule.Table,
				RowID: fv.RowID,
				Field: rule.Field,
				Value: fv.Value,
				Min:   &lower,
				Max:   rule.Max,
			}
			report.RangeViolations = append(report.RangeViolations, viol)
			v.logger.Warn("range violation", "rule", rule.String(), "row", fv.RowID)
		}
		v.notify("range:"+rule.Table+"."+rule.Field, len(found) == 0)
	}
	return nil
}

func (v *Verifier) checkRequired(ctx context.Context, report *Report) error {
	required := v.schema.RequiredFields()
	for _, table := range v.schema.TableNames() {
		for _, field := range required[table] {
			ids, err := v.inspector.FindNulls(ctx, table, field, v.opts.ViolationLimit)
			if err != nil {
				return fmt.Errorf("checking %s.%s: %w", table, field, err)
			}
			for _, id := range ids {
				report.RangeViolations = append(report.RangeViolations, RangeViolation{
					Table: table, RowID: id, Field: field, Null: true,
				})
			}
			if len(ids) > 0 {
				v.addIssue(report, IntegrityIssue{
					Kind:    KindMissingRequired,
					Table:   table,
					Count:   int64(len(ids)),
					Message: fmt.Sprintf("%d %s rows have no %s", len(ids), table, field),
				})
			}
			v.notify("required:"+table+"."+field, len(ids) == 0)
		}
	}
	return nil
}

func (v *Verifier) addIssue(report *Report, issue IntegrityIssue) {
	report.Issues = append(report.Issues, issue)
	v.logger.Warn("integrity issue", "kind", issue.Kind, "table", issue.Table, "count", issue.Count)
}

func (v *Verifier) notify(check string, passed bool) {
	if v.opts.Callback != nil {
		v.opts.Callback(check, passed)
	}
}

func computeStatus(r *Report) string {
	if len(r.Issues) == 0 && len(r.RangeViolations) == 0 {
		return StatusSuccess
	}
	return StatusIssuesFound
}
