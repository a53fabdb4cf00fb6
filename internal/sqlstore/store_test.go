package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/logging"
	"github.com/scorecast/scorecast/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(context.Background(), Options{
		Driver: DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openSchemaStore(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func students(n int) []schema.Record {
	recs := make([]schema.Record, n)
	for i := range recs {
		recs[i] = schema.Student{Gender: schema.GenderMale, LearningDisabilities: schema.No, DistanceFromHome: schema.DistanceNear}
	}
	return recs
}

func academic(studentID int64, exam int) schema.AcademicRecord {
	return schema.AcademicRecord{StudentID: studentID, HoursStudied: 20, Attendance: 85, PreviousScores: 70, TutoringSessions: 1, ExamScore: schema.IntPtr(exam)}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestWithForeignKeys(t *testing.T) {
	tests := []struct{ in, want string }{
		{"scorecast.db", "scorecast.db?_pragma=foreign_keys(1)"},
		{"file:x?mode=memory", "file:x?mode=memory&_pragma=foreign_keys(1)"},
		{"x.db?_pragma=foreign_keys(0)", "x.db?_pragma=foreign_keys(0)"},
	}
	for _, tt := range tests {
		if got := withForeignKeys(tt.in); got != tt.want {
			t.Errorf("withForeignKeys(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteBatchReturnsGeneratedIDs(t *testing.T) {
	s := openSchemaStore(t)
	ctx := context.Background()

	res, err := s.WriteBatch(ctx, schema.TableStudents, students(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, id := range res.IDs {
		if id != int64(i+1) {
			t.Errorf("IDs[%d] = %d, want %d", i, id, i+1)
		}
	}
	n, err := s.Count(ctx, schema.TableStudents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestWriteBatchIsolatesRejectedRow(t *testing.T) {
	s := openSchemaStore(t)
	ctx := context.Background()
	if _, err := s.WriteBatch(ctx, schema.TableStudents, students(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs := make([]schema.Record, 10)
	for i := range recs {
		exam := 70
		if i == 4 {
			exam = 150
		}
		recs[i] = academic(int64(i+1), exam)
	}
	res, err := s.WriteBatch(ctx, schema.TableAcademic, recs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Index != 4 {
		t.Fatalf("failures = %+v, want exactly index 4", res.Failures)
	}
	if res.Inserted() != 9 {
		t.Errorf("inserted = %d, want 9", res.Inserted())
	}
	n, err := s.Count(ctx, schema.TableAcademic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 9 {
		t.Errorf("stored = %d, want 9", n)
	}
}

func TestWriteBatchConstraintViolations(t *testing.T) {
	s := openSchemaStore(t)
	ctx := context.Background()
	if _, err := s.WriteBatch(ctx, schema.TableStudents, students(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		rec  schema.Record
	}{
		{"missing parent", academic(999, 70)},
		{"missing gender", schema.Student{LearningDisabilities: schema.No, DistanceFromHome: schema.DistanceFar}},
		{"unknown school type", schema.EnvironmentalFactors{StudentID: 1, SleepHours: 7, SchoolType: "Boarding"}},
		{"sleep below range", schema.EnvironmentalFactors{StudentID: 1, SleepHours: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.WriteBatch(ctx, tt.rec.TableName(), []schema.Record{tt.rec})
			if err != nil {
				t.Fatalf("expected a per-record failure, got fatal error: %v", err)
			}
			if len(res.Failures) != 1 || res.IDs[0] != 0 {
				t.Errorf("expected rejection, got %+v", res)
			}
		})
	}
}

func TestWriteBatchDuplicateDependent(t *testing.T) {
	s := openSchemaStore(t)
	ctx := context.Background()
	if _, err := s.WriteBatch(ctx, schema.TableStudents, students(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := s.WriteBatch(ctx, schema.TableAcademic, []schema.Record{academic(1, 60), academic(1, 61)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted() != 1 || len(res.Failures) != 1 || res.Failures[0].Index != 1 {
		t.Errorf("expected the second record to violate uniqueness, got %+v", res)
	}
}

func TestWriteBatchWithoutSchemaIsFatal(t *testing.T) {
	s := openTestStore(t)
	_, err := s.WriteBatch(context.Background(), schema.TableStudents, students(1))
	if err == nil {
		t.Fatal("expected error when tables are missing")
	}
}

func TestLoaderAgainstSQLite(t *testing.T) {
	s := openSchemaStore(t)
	ctx := context.Background()

	var (
		studs []schema.Student
		acad  []schema.AcademicRecord
		env   []schema.EnvironmentalFactors
	)
	for i := 1; i <= 5; i++ {
		id := int64(i)
		studs = append(studs, schema.Student{ID: id, Gender: schema.GenderFemale, LearningDisabilities: schema.No, DistanceFromHome: schema.DistanceModerate})
		acad = append(acad, academic(id, 60+i))
		env = append(env, schema.EnvironmentalFactors{StudentID: id, SleepHours: 8, PhysicalActivity: 3, InternetAccess: schema.Yes})
	}

	l := loader.New(s, loader.Options{BatchSize: 2, Logger: logging.Discard()})
	report, err := l.LoadAll(ctx, studs, acad, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.StudentsInserted != 5 || report.AcademicInserted != 5 || report.EnvironmentalInserted != 5 {
		t.Errorf("unexpected report %+v", report)
	}

	complete, err := s.CompleteStudents(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(complete) != 5 {
		t.Fatalf("complete students = %d, want 5", len(complete))
	}
	c := complete[2]
	if c.Academic == nil || *c.Academic.ExamScore != 63 || c.Environmental == nil || c.Environmental.InternetAccess != schema.Yes {
		t.Errorf("unexpected joined record %+v", c)
	}

	sample, err := s.SampleComplete(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sample) != 3 || sample[0].ID != 1 {
		t.Errorf("unexpected sample %+v", sample)
	}
}

// laxDDL mirrors the tables without constraints so integrity problems can be
// planted.
var laxDDL = []string{
	`CREATE TABLE students (student_id INTEGER PRIMARY KEY, gender TEXT, learning_disabilities TEXT, distance_from_home TEXT)`,
	`CREATE TABLE academic_records (record_id INTEGER PRIMARY KEY, student_id INTEGER, hours_studied INTEGER,
		attendance INTEGER, previous_scores INTEGER, tutoring_sessions INTEGER, exam_score INTEGER)`,
	`CREATE TABLE environmental_factors (env_id INTEGER PRIMARY KEY, student_id INTEGER, parental_involvement TEXT,
		access_to_resources TEXT, extracurricular_activities TEXT, sleep_hours INTEGER, motivation_level TEXT,
		internet_access TEXT, family_income TEXT, teacher_quality TEXT, school_type TEXT, peer_influence TEXT,
		physical_activity INTEGER, parental_education_level TEXT)`,
	`INSERT INTO students VALUES (1, 'Male', 'No', 'Near'), (2, NULL, 'No', 'Far')`,
	`INSERT INTO academic_records VALUES (1, 1, 10, 90, 80, 0, 150), (2, 2, 10, 90, 80, 0, NULL), (3, 7, 5, 101, 50, 0, 60)`,
	`INSERT INTO environmental_factors (env_id, student_id, sleep_hours, physical_activity) VALUES (1, 1, 7, 2), (2, 2, 3, 2)`,
}

func openLaxStore(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t)
	for _, stmt := range laxDDL {
		if _, err := s.DB().Exec(stmt); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	return s
}

func TestCountAudit(t *testing.T) {
	s := openSchemaStore(t)
	ctx := context.Background()

	n, err := s.CountAudit(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("audit entries = %d, want 0", n)
	}

	if _, err := s.DB().Exec(`INSERT INTO audit_log (table_name, operation, record_id) VALUES ('students', 'INSERT', 1)`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, err = s.CountAudit(ctx); err != nil || n != 1 {
		t.Errorf("audit entries = %d, err = %v, want 1", n, err)
	}
}

func TestInspectorFindsProblems(t *testing.T) {
	s := openLaxStore(t)
	ctx := context.Background()

	orphans, err := s.CountOrphans(ctx, schema.TableAcademic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orphans != 1 {
		t.Errorf("orphans = %d, want 1", orphans)
	}

	examMax := 110.0
	exam, err := s.FindOutOfRange(ctx, schema.RangeRule{Table: schema.TableAcademic, Field: "exam_score", Min: 0, Max: &examMax}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exam) != 1 || exam[0].RowID != 1 || *exam[0].Value != 150 {
		t.Errorf("exam violations = %+v, want row 1 value 150", exam)
	}

	attMax := 100.0
	att, err := s.FindOutOfRange(ctx, schema.RangeRule{Table: schema.TableAcademic, Field: "attendance", Min: 0, Max: &attMax}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(att) != 1 || att[0].RowID != 3 {
		t.Errorf("attendance violations = %+v, want row 3", att)
	}

	nulls, err := s.FindNulls(ctx, schema.TableStudents, "gender", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nulls) != 1 || nulls[0] != 2 {
		t.Errorf("null genders = %v, want [2]", nulls)
	}
}

func TestInspectorRejectsUnknownColumns(t *testing.T) {
	s := openLaxStore(t)
	if _, err := s.Count(context.Background(), "users; DROP TABLE students"); err == nil {
		t.Error("expected error for unknown table")
	}
	if _, err := s.FindNulls(context.Background(), schema.TableStudents, "nickname", 0); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestDropSchema(t *testing.T) {
	s := openSchemaStore(t)
	ctx := context.Background()
	if err := s.DropSchema(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Count(ctx, schema.TableStudents); err == nil {
		t.Error("expected error counting a dropped table")
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("recreating schema: %v", err)
	}
}

func TestIsRecordError(t *testing.T) {
	if isRecordError(errors.New("connection refused")) {
		t.Error("plain errors are not record errors")
	}
}
