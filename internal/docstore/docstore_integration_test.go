//go:build integration

package docstore

import (
	"context"
	"os"
	"testing"

	"github.com/scorecast/scorecast/internal/logging"
	"github.com/scorecast/scorecast/internal/schema"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("SCORECAST_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("skipping: SCORECAST_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, uri, "scorecast_test", logging.Discard())
	if err != nil {
		t.Fatalf("connecting to MongoDB: %v", err)
	}
	if err := s.DropCollections(ctx, s.schema.TableNames()); err != nil {
		t.Fatalf("dropping collections: %v", err)
	}
	if err := s.EnsureCollections(ctx); err != nil {
		t.Fatalf("creating collections: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DropCollections(ctx, s.schema.TableNames())
		_ = s.Close(ctx)
	})
	return s
}

func TestMongoValidatorRejectsOutOfRange(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	var studs []schema.Record
	var acad []schema.Record
	for i := 1; i <= 10; i++ {
		studs = append(studs, schema.Student{ID: int64(i), Gender: schema.GenderFemale, LearningDisabilities: schema.No, DistanceFromHome: schema.DistanceNear})
		exam := 60 + i
		if i == 5 {
			exam = 150
		}
		acad = append(acad, schema.AcademicRecord{StudentID: int64(i), HoursStudied: 10, Attendance: 90, PreviousScores: 70, ExamScore: schema.IntPtr(exam)})
	}
	if _, err := s.WriteBatch(ctx, schema.TableStudents, studs); err != nil {
		t.Fatalf("writing students: %v", err)
	}
	res, err := s.WriteBatch(ctx, schema.TableAcademic, acad)
	if err != nil {
		t.Fatalf("writing academic records: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Index != 4 {
		t.Fatalf("failures = %+v, want index 4", res.Failures)
	}

	n, err := s.Count(ctx, schema.TableAcademic)
	if err != nil {
		t.Fatalf("counting: %v", err)
	}
	if n != 9 {
		t.Errorf("count = %d, want 9", n)
	}

	complete, err := s.CompleteStudents(ctx, 3)
	if err != nil {
		t.Fatalf("reading complete students: %v", err)
	}
	if len(complete) != 3 || complete[0].Academic == nil {
		t.Errorf("unexpected complete students %+v", complete)
	}

	avg, err := s.AverageExamScoreBy(ctx, "gender")
	if err != nil {
		t.Fatalf("averaging: %v", err)
	}
	if len(avg) != 1 || avg[0].Group != "Female" || avg[0].Count != 9 {
		t.Errorf("unexpected averages %+v", avg)
	}

	top, err := s.TopStudents(ctx, 2)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(top) != 2 || top[0].ExamScore != 70 {
		t.Errorf("unexpected ranking %+v", top)
	}
}
