package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/logging"
	"github.com/scorecast/scorecast/internal/schema"
)

func makeDataset(n int) ([]schema.Student, []schema.AcademicRecord, []schema.EnvironmentalFactors) {
	students := make([]schema.Student, n)
	academic := make([]schema.AcademicRecord, n)
	env := make([]schema.EnvironmentalFactors, n)
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		students[i] = schema.Student{ID: id, Gender: schema.GenderFemale, LearningDisabilities: schema.No, DistanceFromHome: schema.DistanceNear}
		academic[i] = schema.AcademicRecord{StudentID: id, HoursStudied: 10, Attendance: 90, PreviousScores: 70, ExamScore: schema.IntPtr(70)}
		env[i] = schema.EnvironmentalFactors{StudentID: id, SleepHours: 7, PhysicalActivity: 2}
	}
	return students, academic, env
}

func newTestLoader(sink Sink, batchSize int) *Loader {
	return New(sink, Options{BatchSize: batchSize, Logger: logging.Discard()})
}

func rejectExamAbove110(table string, rec schema.Record) error {
	if a, ok := rec.(schema.AcademicRecord); ok && a.ExamScore != nil && *a.ExamScore > 110 {
		return fmt.Errorf("check constraint violated: exam_score %d", *a.ExamScore)
	}
	return nil
}

func TestLoadAllPartialFailureIsolation(t *testing.T) {
	students, academic, env := makeDataset(10)
	academic[4].ExamScore = schema.IntPtr(150)

	sink := &MockSink{Reject: rejectExamAbove110}
	report, err := newTestLoader(sink, 10).LoadAll(context.Background(), students, academic, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.AcademicInserted != 9 {
		t.Errorf("academic inserted = %d, want 9", report.AcademicInserted)
	}
	if report.ErrorCount() != 1 {
		t.Fatalf("errors = %d, want 1", report.ErrorCount())
	}
	e := report.Errors[0]
	if e.Table != schema.TableAcademic || e.Row != 4 {
		t.Errorf("error names %s row %d, want academic_records row 4", e.Table, e.Row)
	}
	if report.StudentsInserted != 10 || report.EnvironmentalInserted != 10 {
		t.Errorf("unexpected counts %+v", report)
	}
	if !report.Acceptable(1) || report.Acceptable(0) {
		t.Error("Acceptable threshold misreports")
	}
}

func TestLoadAllBatchesAndOrdering(t *testing.T) {
	students, academic, env := makeDataset(10)
	sink := &MockSink{}

	report, err := newTestLoader(sink, 3).LoadAll(context.Background(), students, academic, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{3, 3, 3, 1}
	for _, table := range []string{schema.TableStudents, schema.TableAcademic, schema.TableEnvironmental} {
		got := sink.Batches[table]
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("%s batches = %v, want %v", table, got, want)
		}
	}
	if report.Batches != 12 {
		t.Errorf("batches = %d, want 12", report.Batches)
	}

	seenDependent := false
	for _, table := range sink.Tables {
		if table != schema.TableStudents {
			seenDependent = true
		} else if seenDependent {
			t.Fatalf("students batch written after a dependent batch: %v", sink.Tables)
		}
	}
}

func TestLoadAllRemapsStudentIDs(t *testing.T) {
	students, academic, env := makeDataset(3)
	sink := &MockSink{}

	report, err := newTestLoader(sink, 2).LoadAll(context.Background(), students, academic, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, rec := range sink.Stored[schema.TableAcademic] {
		want := int64(1001 + i)
		if rec.OwnerID() != want {
			t.Errorf("academic %d stored with student_id %d, want %d", i, rec.OwnerID(), want)
		}
	}
	if report.StudentIDs[2] != 1002 {
		t.Errorf("surrogate 2 mapped to %d, want 1002", report.StudentIDs[2])
	}
	if academic[0].StudentID != 1 {
		t.Error("input records must not be mutated")
	}
}

func TestLoadAllSkipsDependentsOfRejectedStudent(t *testing.T) {
	students, academic, env := makeDataset(4)
	students[2].Gender = ""

	sink := &MockSink{Reject: func(table string, rec schema.Record) error {
		if s, ok := rec.(schema.Student); ok && s.Gender == "" {
			return errors.New("not null constraint: gender")
		}
		return nil
	}}
	report, err := newTestLoader(sink, 2).LoadAll(context.Background(), students, academic, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.StudentsInserted != 3 || report.AcademicInserted != 3 || report.EnvironmentalInserted != 3 {
		t.Errorf("unexpected counts %+v", report)
	}
	if report.ErrorCount() != 3 {
		t.Fatalf("errors = %d, want 3", report.ErrorCount())
	}
	for _, e := range report.Errors[1:] {
		if !errors.Is(e, ErrParentNotLoaded) || e.Row != 2 {
			t.Errorf("expected parent-not-loaded for row 2, got %v", e)
		}
	}
	if n := len(sink.Stored[schema.TableAcademic]); n != 3 {
		t.Errorf("orphaned dependent reached the sink: %d academic stored", n)
	}
}

func TestLoadAllAbortsOnStorageFailure(t *testing.T) {
	students, academic, env := makeDataset(6)
	sink := &MockSink{
		FailOnCall: 2,
		FailErr:    apperrors.Unavailable("insert", errors.New("connection refused")),
	}

	report, err := newTestLoader(sink, 3).LoadAll(context.Background(), students, academic, env)
	if !apperrors.IsStorageUnavailable(err) {
		t.Fatalf("expected StorageUnavailableError, got %v", err)
	}
	if report == nil || !report.Aborted {
		t.Fatal("expected an aborted report describing the committed prefix")
	}
	if report.StudentsInserted != 3 {
		t.Errorf("students inserted = %d, want 3 from the first batch", report.StudentsInserted)
	}
	if sink.Calls != 2 {
		t.Errorf("sink called %d times after failure, want 2", sink.Calls)
	}
	if report.Acceptable(100) {
		t.Error("aborted run must not be acceptable")
	}
}

func TestLoadAllStopsWhenCanceled(t *testing.T) {
	students, academic, env := makeDataset(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &MockSink{}
	_, err := newTestLoader(sink, 1).LoadAll(ctx, students, academic, env)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.Calls != 0 {
		t.Errorf("sink called %d times", sink.Calls)
	}
}

func TestLoadPredictions(t *testing.T) {
	preds := []schema.Prediction{
		{StudentID: 1, PredictedScore: 70, ConfidenceScore: 0.85, ModelVersion: "v1.0"},
		{StudentID: 2, PredictedScore: 120, ConfidenceScore: 0.85, ModelVersion: "v1.0"},
	}
	sink := &MockSink{Reject: func(_ string, rec schema.Record) error {
		if p := rec.(schema.Prediction); p.PredictedScore > 110 {
			return errors.New("predicted_score out of range")
		}
		return nil
	}}

	report, err := newTestLoader(sink, 10).LoadPredictions(context.Background(), preds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.PredictionsInserted != 1 || report.ErrorCount() != 1 || report.Errors[0].Row != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Inserted(schema.TablePredictions) != 1 {
		t.Error("Inserted(predictions) mismatch")
	}
}

func TestLoaderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	students, academic, env := makeDataset(4)
	academic[1].ExamScore = schema.IntPtr(200)
	sink := &MockSink{SinkName: "relational", Reject: rejectExamAbove110}

	l := New(sink, Options{BatchSize: 2, Logger: logging.Discard(), Metrics: metrics})
	if _, err := l.LoadAll(context.Background(), students, academic, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(metrics.inserted.WithLabelValues("relational", schema.TableAcademic)); got != 3 {
		t.Errorf("academic inserted metric = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.failed.WithLabelValues("relational", schema.TableAcademic)); got != 1 {
		t.Errorf("academic failure metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batches.WithLabelValues("relational", schema.TableStudents)); got != 2 {
		t.Errorf("student batch metric = %v, want 2", got)
	}
}
