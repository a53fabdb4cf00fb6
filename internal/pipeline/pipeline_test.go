package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/scorecast/scorecast/internal/dataset"
	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/logging"
	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/report"
	"github.com/scorecast/scorecast/internal/schema"
	"github.com/scorecast/scorecast/internal/sqlstore"
	"github.com/scorecast/scorecast/internal/transform"
	"github.com/scorecast/scorecast/internal/verify"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := sqlstore.Open(context.Background(), sqlstore.Options{
		Driver: sqlstore.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func row() dataset.Row {
	return dataset.Row{
		transform.ColGender:               "Male",
		transform.ColLearningDisabilities: "No",
		transform.ColHoursStudied:         "20.0",
		transform.ColAttendance:           "85",
		transform.ColPreviousScores:       "75",
		transform.ColTutoringSessions:     "3",
		transform.ColExamScore:            "82",
		transform.ColParentalInvolvement:  "High",
		transform.ColAccessToResources:    "Medium",
		transform.ColExtracurricular:      "Yes",
		transform.ColSleepHours:           "7",
		transform.ColMotivationLevel:      "Low",
		transform.ColInternetAccess:       "Yes",
		transform.ColFamilyIncome:         "Medium",
		transform.ColSchoolType:           "Public",
		transform.ColPeerInfluence:        "Positive",
		transform.ColPhysicalActivity:     "3",
	}
}

func rows(n int) []dataset.Row {
	out := make([]dataset.Row, n)
	for i := range out {
		out[i] = row()
	}
	return out
}

func newPipeline(s *sqlstore.Store) *Pipeline {
	return &Pipeline{
		Sinks:     []loader.Sink{s},
		Inspector: s,
		BatchSize: 4,
		Logger:    logging.Discard(),
	}
}

func TestRun_SingleRowEndToEnd(t *testing.T) {
	s := openStore(t)
	p := newPipeline(s)

	rep, err := p.Run(context.Background(), "run-1", rows(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Status != report.StatusCompleted {
		t.Errorf("status = %s, checks = %+v", rep.Status, rep.Checks)
	}
	if rep.Verification == nil || rep.Verification.Status != verify.StatusSuccess {
		t.Fatalf("verification = %+v", rep.Verification)
	}
	for _, table := range []string{schema.TableStudents, schema.TableAcademic, schema.TableEnvironmental} {
		if got := rep.Verification.Counts[table]; got != 1 {
			t.Errorf("%s count = %d, want 1", table, got)
		}
	}
	if rep.Load["relational"].RunID != "run-1" {
		t.Errorf("load run id = %s", rep.Load["relational"].RunID)
	}

	complete, err := s.CompleteStudents(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := complete[0]
	if c.DistanceFromHome != schema.DistanceModerate || c.Environmental.TeacherQuality != schema.LevelMedium {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestRun_RejectedRecordIsIsolated(t *testing.T) {
	s := openStore(t)
	p := newPipeline(s)

	in := rows(10)
	in[4][transform.ColExamScore] = "150"

	rep, err := p.Run(context.Background(), "", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lr := rep.Load["relational"]
	if lr.StudentsInserted != 10 || lr.AcademicInserted != 9 || lr.EnvironmentalInserted != 10 {
		t.Errorf("unexpected load %+v", lr)
	}
	if lr.ErrorCount() != 1 || lr.Errors[0].Row != 4 || lr.Errors[0].Table != schema.TableAcademic {
		t.Errorf("errors = %+v", lr.Errors)
	}
	if rep.RunID == "" {
		t.Error("run id should be generated")
	}
	if rep.Status != report.StatusPartial {
		t.Errorf("status = %s, want partial", rep.Status)
	}
	if rep.Verification == nil || len(rep.Verification.OrphanedForeignKeys) == 0 {
		t.Fatalf("verification = %+v", rep.Verification)
	}
	for table, n := range rep.Verification.OrphanedForeignKeys {
		if n != 0 {
			t.Errorf("%s has %d orphans", table, n)
		}
	}

	p.MaxErrors = 1
	rep.Finish(p.MaxErrors)
	if rep.Status != report.StatusCompleted {
		t.Errorf("status = %s within error budget", rep.Status)
	}
}

func TestRun_MalformedRowWritesNothing(t *testing.T) {
	s := openStore(t)
	p := newPipeline(s)

	in := rows(3)
	in[2][transform.ColHoursStudied] = "lots"

	_, err := p.Run(context.Background(), "", in)
	var malformed *transform.MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
	if n, err := s.Count(context.Background(), schema.TableStudents); err != nil || n != 0 {
		t.Errorf("students = %d, err = %v", n, err)
	}
}

func TestRun_SinksAreIndependent(t *testing.T) {
	s := openStore(t)
	broken := &loader.MockSink{SinkName: "document", FailOnCall: 1, FailErr: errors.New("server selection timeout")}
	p := newPipeline(s)
	p.Sinks = []loader.Sink{broken, s}
	p.Primary = "relational"

	rep, err := p.Run(context.Background(), "", rows(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rep.SinkErrors["document"], "server selection timeout") {
		t.Errorf("sink errors = %v", rep.SinkErrors)
	}
	if !rep.Load["document"].Aborted {
		t.Error("document load should be aborted")
	}
	if rep.Load["relational"].StudentsInserted != 5 {
		t.Errorf("relational load = %+v", rep.Load["relational"])
	}
	if rep.Verification == nil || *rep.Verification.ExpectedStudents != 5 || !rep.Verification.Passed() {
		t.Errorf("verification = %+v", rep.Verification)
	}
	if rep.Status != report.StatusPartial {
		t.Errorf("status = %s, want partial", rep.Status)
	}
}

func TestRun_NoSinks(t *testing.T) {
	if _, err := (&Pipeline{}).Run(context.Background(), "", rows(1)); err == nil {
		t.Error("expected error")
	}
}

func TestRun_CancelledSkipsVerification(t *testing.T) {
	s := openStore(t)
	p := newPipeline(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := p.Run(ctx, "", rows(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Verification != nil {
		t.Error("verification should not run after cancellation")
	}
	if rep.SinkErrors["relational"] == "" || rep.Status != report.StatusFailed {
		t.Errorf("status = %s, sink errors = %v", rep.Status, rep.SinkErrors)
	}
}

// cancelAfterSink cancels the run once a batch of table has been committed.
type cancelAfterSink struct {
	loader.Sink
	table  string
	cancel context.CancelFunc
}

func (c *cancelAfterSink) WriteBatch(ctx context.Context, table string, recs []schema.Record) (*loader.BatchResult, error) {
	res, err := c.Sink.WriteBatch(ctx, table, recs)
	if table == c.table {
		c.cancel()
	}
	return res, err
}

func TestRun_CancelledAfterLastBatchIsFailed(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newPipeline(s)
	p.Sinks = []loader.Sink{&cancelAfterSink{Sink: s, table: schema.TableEnvironmental, cancel: cancel}}

	rep, err := p.Run(ctx, "", rows(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lr := rep.Load["relational"]
	if lr == nil || lr.Aborted || lr.EnvironmentalInserted != 3 {
		t.Fatalf("load should have completed, got %+v", lr)
	}
	if rep.Verification != nil {
		t.Error("verification should not run after cancellation")
	}
	if !rep.Interrupted || rep.VerifyError == "" {
		t.Errorf("interrupted=%v verifyError=%q", rep.Interrupted, rep.VerifyError)
	}
	if rep.Status != report.StatusFailed {
		t.Errorf("status = %s, want failed", rep.Status)
	}
}

func predictionScores(t *testing.T, s *sqlstore.Store) []float64 {
	t.Helper()
	rs, err := s.DB().Query(`SELECT predicted_score FROM predictions ORDER BY prediction_id`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rs.Close()
	var out []float64
	for rs.Next() {
		var v float64
		if err := rs.Scan(&v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, v)
	}
	return out
}

func TestPredict_StoresDeterministicScores(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := newPipeline(s)
	if _, err := p.Run(ctx, "", rows(4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model := predict.NewLinearModel("")
	if err := model.Load(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Adapter = predict.NewAdapter(model, predict.Options{Logger: logging.Discard()})
	p.Source = s
	p.PredictionSink = s

	for i := 0; i < 2; i++ {
		sum, err := p.Predict(ctx, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sum.Students != 4 || sum.Scored != 4 || sum.Stored != 4 || len(sum.Failures) != 0 {
			t.Errorf("summary = %+v", sum)
		}
		if sum.ModelVersion != predict.DefaultModelVersion {
			t.Errorf("model version = %s", sum.ModelVersion)
		}
	}

	scores := predictionScores(t, s)
	if len(scores) != 8 {
		t.Fatalf("predictions stored = %d, want 8", len(scores))
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] != scores[0] {
			t.Errorf("identical students scored differently: %v", scores)
			break
		}
	}
}

func TestPredict_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := newPipeline(s)
	in := rows(3)
	in[1][transform.ColHoursStudied] = "30"
	if _, err := p.Run(ctx, "", in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model := &predict.MockModel{Ready: true, FailFor: map[float64]error{30: errors.New("feature out of range")}}
	p.Adapter = predict.NewAdapter(model, predict.Options{Logger: logging.Discard()})
	p.Source = s

	sum, err := p.Predict(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Scored != 2 || len(sum.Failures) != 1 || sum.Failures[0].StudentID != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Stored != 0 || sum.Load != nil {
		t.Error("nothing should be stored without a prediction sink")
	}
}

func TestPredict_NotConfigured(t *testing.T) {
	if _, err := (&Pipeline{}).Predict(context.Background(), 0); err == nil {
		t.Error("expected error")
	}
}
