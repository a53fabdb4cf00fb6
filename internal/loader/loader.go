// Package loader writes normalized entities to a sink in dependency order
// and fixed-size batches.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scorecast/scorecast/internal/schema"
)

// ErrParentNotLoaded marks a dependent record whose student was rejected.
var ErrParentNotLoaded = errors.New("student was not loaded")

// PerRecordInsertError is a single rejected record. It is recorded in the
// report; the load continues.
type PerRecordInsertError struct {
	Table string `json:"table"`
	Row   int    `json:"row"` // 0-indexed position in the input sequence
	Err   error  `json:"-"`
}

func (e *PerRecordInsertError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.Row, e.Err)
}

func (e *PerRecordInsertError) Unwrap() error { return e.Err }

// MarshalJSON keeps the underlying error message in serialized reports.
func (e *PerRecordInsertError) MarshalJSON() ([]byte, error) {
	return fmt.Appendf(nil, `{"table":%q,"row":%d,"error":%q}`, e.Table, e.Row, errString(e.Err)), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Options configures a Loader.
type Options struct {
	BatchSize int
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Loader writes entities to one sink.
type Loader struct {
	sink      Sink
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

// New creates a Loader. A batch size below 1 is treated as 1.
func New(sink Sink, opts Options) *Loader {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		sink:      sink,
		batchSize: opts.BatchSize,
		logger:    opts.Logger.With("sink", sink.Name()),
		metrics:   opts.Metrics,
	}
}

// Report summarizes one load run against one sink.
type Report struct {
	RunID                 string                  `json:"run_id"`
	Sink                  string                  `json:"sink"`
	BatchSize             int                     `json:"batch_size"`
	StudentsInserted      int                     `json:"students_inserted"`
	AcademicInserted      int                     `json:"academic_inserted"`
	EnvironmentalInserted int                     `json:"environmental_inserted"`
	PredictionsInserted   int                     `json:"predictions_inserted,omitempty"`
	Batches               int                     `json:"batches"`
	Errors                []*PerRecordInsertError `json:"errors,omitempty"`
	Aborted               bool                    `json:"aborted,omitempty"`
	AbortReason           string                  `json:"abort_reason,omitempty"`
	StartedAt             time.Time               `json:"started_at"`
	CompletedAt           time.Time               `json:"completed_at"`

	// StudentIDs maps surrogate ids to the ids the sink stored.
	StudentIDs map[int64]int64 `json:"-"`
}

// ErrorCount returns the number of per-record failures.
func (r *Report) ErrorCount() int { return len(r.Errors) }

// Acceptable reports whether the run finished with at most maxErrors failures.
func (r *Report) Acceptable(maxErrors int) bool {
	return !r.Aborted && len(r.Errors) <= maxErrors
}

// Inserted returns the count for table.
func (r *Report) Inserted(table string) int {
	switch table {
	case schema.TableStudents:
		return r.StudentsInserted
	case schema.TableAcademic:
		return r.AcademicInserted
	case schema.TableEnvironmental:
		return r.EnvironmentalInserted
	case schema.TablePredictions:
		return r.PredictionsInserted
	}
	return 0
}

func (l *Loader) newReport() *Report {
	return &Report{
		RunID:      uuid.NewString(),
		Sink:       l.sink.Name(),
		BatchSize:  l.batchSize,
		StartedAt:  time.Now(),
		StudentIDs: make(map[int64]int64),
	}
}

// LoadAll inserts students, then academic records and environmental factors.
// Students are fully committed before any dependent batch starts. Dependents
// are rewritten to reference the ids the sink assigned.
//
// Per-record failures are collected in the report. A sink failure or context
// cancellation stops the run; the returned report then describes the
// committed prefix and the error is non-nil.
func (l *Loader) LoadAll(ctx context.Context, students []schema.Student, academic []schema.AcademicRecord, env []schema.EnvironmentalFactors) (*Report, error) {
	report := l.newReport()

	recs := make([]schema.Record, len(students))
	rows := make([]int, len(students))
	for i, s := range students {
		recs[i] = s
		rows[i] = i
	}
	ids, err := l.loadTable(ctx, report, schema.TableStudents, recs, rows)
	report.StudentsInserted = countNonZero(ids)
	for i, id := range ids {
		if id != 0 {
			report.StudentIDs[students[i].ID] = id
		}
	}
	if err != nil {
		return l.abort(report, err)
	}

	recs, rows = l.remapDependents(report, schema.TableAcademic, len(academic), func(i int, sid int64) schema.Record {
		a := academic[i]
		a.StudentID = sid
		return a
	}, func(i int) int64 { return academic[i].StudentID })
	ids, err = l.loadTable(ctx, report, schema.TableAcademic, recs, rows)
	report.AcademicInserted = countNonZero(ids)
	if err != nil {
		return l.abort(report, err)
	}

	recs, rows = l.remapDependents(report, schema.TableEnvironmental, len(env), func(i int, sid int64) schema.Record {
		e := env[i]
		e.StudentID = sid
		return e
	}, func(i int) int64 { return env[i].StudentID })
	ids, err = l.loadTable(ctx, report, schema.TableEnvironmental, recs, rows)
	report.EnvironmentalInserted = countNonZero(ids)
	if err != nil {
		return l.abort(report, err)
	}

	report.CompletedAt = time.Now()
	l.logger.Info("load complete",
		"run_id", report.RunID,
		"students", report.StudentsInserted,
		"academic_records", report.AcademicInserted,
		"environmental_factors", report.EnvironmentalInserted,
		"failures", len(report.Errors),
	)
	return report, nil
}

// LoadPredictions appends prediction records. Their student ids must already
// be stored ids.
func (l *Loader) LoadPredictions(ctx context.Context, preds []schema.Prediction) (*Report, error) {
	report := l.newReport()
	recs := make([]schema.Record, len(preds))
	rows := make([]int, len(preds))
	for i, p := range preds {
		recs[i] = p
		rows[i] = i
	}
	ids, err := l.loadTable(ctx, report, schema.TablePredictions, recs, rows)
	report.PredictionsInserted = countNonZero(ids)
	if err != nil {
		return l.abort(report, err)
	}
	report.CompletedAt = time.Now()
	return report, nil
}

// remapDependents rewrites student ids to stored ids. Records whose student
// was not stored become per-record failures and are not sent to the sink.
func (l *Loader) remapDependents(report *Report, table string, n int, build func(i int, sid int64) schema.Record, owner func(i int) int64) ([]schema.Record, []int) {
	recs := make([]schema.Record, 0, n)
	rows := make([]int, 0, n)
	skipped := 0
	for i := 0; i < n; i++ {
		sid, ok := report.StudentIDs[owner(i)]
		if !ok {
			l.recordFailure(report, table, i, fmt.Errorf("student %d: %w", owner(i), ErrParentNotLoaded))
			skipped++
			continue
		}
		recs = append(recs, build(i, sid))
		rows = append(rows, i)
	}
	l.metrics.skipped(l.sink.Name(), table, skipped)
	return recs, rows
}

// loadTable writes recs in batches. rows maps each record to its position in
// the caller's input for error reporting. The returned ids are positional.
func (l *Loader) loadTable(ctx context.Context, report *Report, table string, recs []schema.Record, rows []int) ([]int64, error) {
	ids := make([]int64, len(recs))
	for start := 0; start < len(recs); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		end := min(start+l.batchSize, len(recs))
		batch := recs[start:end]

		began := time.Now()
		res, err := l.sink.WriteBatch(ctx, table, batch)
		if err != nil {
			return ids, fmt.Errorf("writing %s rows %d-%d: %w", table, rows[start], rows[end-1], err)
		}
		if len(res.IDs) != len(batch) {
			return ids, fmt.Errorf("sink %s returned %d ids for a batch of %d", l.sink.Name(), len(res.IDs), len(batch))
		}
		copy(ids[start:end], res.IDs)
		for _, f := range res.Failures {
			l.recordFailure(report, table, rows[start+f.Index], f.Err)
		}

		report.Batches++
		l.metrics.observe(l.sink.Name(), table, res.Inserted(), len(res.Failures), time.Since(began))
		l.logger.Debug("batch committed",
			"table", table,
			"first_row", rows[start],
			"size", len(batch),
			"inserted", res.Inserted(),
			"failed", len(res.Failures),
		)
	}
	return ids, nil
}

func (l *Loader) recordFailure(report *Report, table string, row int, err error) {
	report.Errors = append(report.Errors, &PerRecordInsertError{Table: table, Row: row, Err: err})
	l.logger.Warn("record rejected", "table", table, "row", row, "error", err)
}

func (l *Loader) abort(report *Report, err error) (*Report, error) {
	report.Aborted = true
	report.AbortReason = err.Error()
	report.CompletedAt = time.Now()
	l.logger.Error("load aborted", "run_id", report.RunID, "error", err)
	return report, err
}

func countNonZero(ids []int64) int {
	n := 0
	for _, id := range ids {
		if id != 0 {
			n++
		}
	}
	return n
}
