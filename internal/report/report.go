// Package report renders the outcome of a pipeline run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/schema"
	"github.com/scorecast/scorecast/internal/verify"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// RunReport is the final report of one load run.
type RunReport struct {
	Version      string                    `json:"version"`
	RunID        string                    `json:"run_id"`
	Status       string                    `json:"status"`
	Rows         int                       `json:"rows"`
	StartedAt    time.Time                 `json:"started_at"`
	CompletedAt  time.Time                 `json:"completed_at"`
	Load         map[string]*loader.Report `json:"load"`
	SinkErrors   map[string]string         `json:"sink_errors,omitempty"`
	Verification *verify.Report            `json:"verification,omitempty"`
	VerifyError  string                    `json:"verify_error,omitempty"`
	Interrupted  bool                      `json:"interrupted,omitempty"`
	Predictions  *PredictionSummary        `json:"predictions,omitempty"`
	Checks       []Check                   `json:"checks"`
}

// PredictionSummary describes a prediction run.
type PredictionSummary struct {
	ModelVersion string            `json:"model_version"`
	Students     int               `json:"students"`
	Scored       int               `json:"scored"`
	Stored       int               `json:"stored"`
	Failures     []predict.Failure `json:"failures,omitempty"`
	Load         *loader.Report    `json:"load,omitempty"`
}

// Check is a single pass/fail condition of a run.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// New starts a report for runID.
func New(runID string, rows int) *RunReport {
	return &RunReport{
		Version:    "1",
		RunID:      runID,
		Status:     StatusRunning,
		Rows:       rows,
		StartedAt:  time.Now(),
		Load:       make(map[string]*loader.Report),
		SinkErrors: make(map[string]string),
	}
}

// Sinks returns the loaded sink names in sorted order.
func (r *RunReport) Sinks() []string {
	names := make([]string, 0, len(r.Load))
	for name := range r.Load {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Finish derives the checks and the final status. Interrupted runs fail.
func (r *RunReport) Finish(maxErrors int) {
	r.CompletedAt = time.Now()
	r.Checks = nil

	aborted := 0
	for _, name := range r.Sinks() {
		rep := r.Load[name]
		c := Check{Name: "load:" + name, Passed: rep.Acceptable(maxErrors)}
		switch {
		case rep.Aborted:
			aborted++
			c.Message = fmt.Sprintf("aborted after %d students: %s", rep.StudentsInserted, rep.AbortReason)
		case rep.ErrorCount() > 0:
			c.Message = fmt.Sprintf("%d students loaded, %d records rejected", rep.StudentsInserted, rep.ErrorCount())
		default:
			c.Message = fmt.Sprintf("%d students loaded", rep.StudentsInserted)
		}
		r.Checks = append(r.Checks, c)
	}

	switch {
	case r.Verification != nil:
		c := Check{Name: "verification", Passed: r.Verification.Passed(), Message: r.Verification.Status}
		if !c.Passed {
			c.Message = fmt.Sprintf("%s: %d issues, %d range violations",
				r.Verification.Status, len(r.Verification.Issues), len(r.Verification.RangeViolations))
		}
		r.Checks = append(r.Checks, c)
	case r.VerifyError != "":
		r.Checks = append(r.Checks, Check{Name: "verification", Message: r.VerifyError})
	}

	passed := true
	for _, c := range r.Checks {
		passed = passed && c.Passed
	}
	switch {
	case r.Interrupted, len(r.Load) > 0 && aborted == len(r.Load):
		r.Status = StatusFailed
	case passed:
		r.Status = StatusCompleted
	default:
		r.Status = StatusPartial
	}
}

// Counts returns the students stored per sink.
func (r *RunReport) Counts() map[string]int {
	out := make(map[string]int, len(r.Load))
	for name, rep := range r.Load {
		out[name] = rep.StudentsInserted
	}
	return out
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(report)), 0o644)
}

// FormatText renders the report as human-readable text.
func FormatText(report *RunReport) string {
	var b strings.Builder

	b.WriteString("=== Scorecast Run Report ===\n")
	fmt.Fprintf(&b, "Run:       %s\n", report.RunID)
	fmt.Fprintf(&b, "Status:    %s\n", report.Status)
	fmt.Fprintf(&b, "Rows:      %d\n", report.Rows)
	fmt.Fprintf(&b, "Started:   %s\n", report.StartedAt.Format(time.RFC3339))
	if !report.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Completed: %s (%s)\n", report.CompletedAt.Format(time.RFC3339),
			report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n")

	for _, name := range report.Sinks() {
		rep := report.Load[name]
		fmt.Fprintf(&b, "Load (%s):\n", name)
		fmt.Fprintf(&b, "  Students:      %d\n", rep.StudentsInserted)
		fmt.Fprintf(&b, "  Academic:      %d\n", rep.AcademicInserted)
		fmt.Fprintf(&b, "  Environmental: %d\n", rep.EnvironmentalInserted)
		fmt.Fprintf(&b, "  Batches:       %d\n", rep.Batches)
		fmt.Fprintf(&b, "  Errors:        %d\n", rep.ErrorCount())
		for i, e := range rep.Errors {
			if i == 10 {
				fmt.Fprintf(&b, "    ... %d more\n", len(rep.Errors)-10)
				break
			}
			fmt.Fprintf(&b, "    %s\n", e.Error())
		}
		if msg := report.SinkErrors[name]; msg != "" {
			fmt.Fprintf(&b, "  Aborted:       %s\n", msg)
		}
		b.WriteString("\n")
	}

	if v := report.Verification; v != nil {
		fmt.Fprintf(&b, "Verification: %s\n", v.Status)
		for _, table := range schema.Normalized().TableNames() {
			fmt.Fprintf(&b, "  %-22s %d rows", table, v.Counts[table])
			if n := v.OrphanedForeignKeys[table]; n > 0 {
				fmt.Fprintf(&b, " (%d orphaned)", n)
			}
			b.WriteString("\n")
		}
		if v.AuditEntries != nil {
			fmt.Fprintf(&b, "  %-22s %d rows\n", schema.TableAuditLog, *v.AuditEntries)
		}
		for _, issue := range v.Issues {
			fmt.Fprintf(&b, "  ! %s\n", issue.Message)
		}
		for _, rv := range v.RangeViolations {
			fmt.Fprintf(&b, "  ! %s\n", rv.String())
		}
		b.WriteString("\n")
	} else if report.VerifyError != "" {
		fmt.Fprintf(&b, "Verification: not completed (%s)\n\n", report.VerifyError)
	}

	if p := report.Predictions; p != nil {
		fmt.Fprintf(&b, "Predictions (%s): %d of %d scored, %d stored\n\n", p.ModelVersion, p.Scored, p.Students, p.Stored)
	}

	b.WriteString("Checks:\n")
	for _, c := range report.Checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s: %s\n", status, c.Name, c.Message)
	}

	return b.String()
}
