package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/schema"
)

// GroupAverage is the mean exam score of one group.
type GroupAverage struct {
	Group   string  `json:"group" bson:"_id"`
	Average float64 `json:"average" bson:"average"`
	Count   int64   `json:"count" bson:"count"`
}

// ScoreBucket counts exam scores in [Lower, Lower+size).
type ScoreBucket struct {
	Lower int   `json:"lower" bson:"_id"`
	Count int64 `json:"count" bson:"count"`
}

// TopStudent is one row of the top-scores ranking.
type TopStudent struct {
	StudentID int64  `json:"student_id" bson:"student_id"`
	ExamScore int    `json:"exam_score" bson:"exam_score"`
	Gender    string `json:"gender" bson:"gender"`
}

// AverageExamScoreBy groups exam scores by a student or environmental
// attribute, e.g. "gender" or "motivation_level".
func (s *Store) AverageExamScoreBy(ctx context.Context, field string) ([]GroupAverage, error) {
	pipeline, err := averagePipeline(s.schema, field)
	if err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(schema.TableAcademic).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperrors.Unavailable("averaging exam scores by "+field, err)
	}
	defer cursor.Close(ctx)

	var out []GroupAverage
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding averages: %w", err)
	}
	return out, nil
}

func averagePipeline(sc *schema.Schema, field string) (bson.A, error) {
	from := ""
	for _, table := range []string{schema.TableStudents, schema.TableEnvironmental} {
		for _, c := range sc.Table(table).Columns {
			if c.Name == field && len(c.Enum) > 0 {
				from = table
			}
		}
	}
	if from == "" {
		return nil, fmt.Errorf("cannot group by %q", field)
	}
	return bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "exam_score", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: from},
			{Key: "localField", Value: "student_id"},
			{Key: "foreignField", Value: "student_id"},
			{Key: "as", Value: "joined"},
		}}},
		bson.D{{Key: "$unwind", Value: "$joined"}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$joined." + field},
			{Key: "average", Value: bson.D{{Key: "$avg", Value: "$exam_score"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}, nil
}

// ScoreDistribution buckets exam scores into ranges of size width.
func (s *Store) ScoreDistribution(ctx context.Context, width int) ([]ScoreBucket, error) {
	if width < 1 {
		return nil, fmt.Errorf("bucket width must be at least 1, got %d", width)
	}
	cursor, err := s.db.Collection(schema.TableAcademic).Aggregate(ctx, distributionPipeline(width))
	if err != nil {
		return nil, apperrors.Unavailable("computing score distribution", err)
	}
	defer cursor.Close(ctx)

	var out []ScoreBucket
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding distribution: %w", err)
	}
	return out, nil
}

func distributionPipeline(width int) bson.A {
	return bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "exam_score", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$toInt", Value: bson.D{{Key: "$multiply", Value: bson.A{
				bson.D{{Key: "$floor", Value: bson.D{{Key: "$divide", Value: bson.A{"$exam_score", width}}}}},
				width,
			}}}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// TopStudents returns the n highest exam scores with the student's gender.
func (s *Store) TopStudents(ctx context.Context, n int) ([]TopStudent, error) {
	pipeline := bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "exam_score", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "exam_score", Value: -1}, {Key: "student_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: n}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: schema.TableStudents},
			{Key: "localField", Value: "student_id"},
			{Key: "foreignField", Value: "student_id"},
			{Key: "as", Value: "student"},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "student_id", Value: 1},
			{Key: "exam_score", Value: 1},
			{Key: "gender", Value: bson.D{{Key: "$first", Value: "$student.gender"}}},
		}}},
	}
	cursor, err := s.db.Collection(schema.TableAcademic).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperrors.Unavailable("ranking students", err)
	}
	defer cursor.Close(ctx)

	var out []TopStudent
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding top students: %w", err)
	}
	return out, nil
}
