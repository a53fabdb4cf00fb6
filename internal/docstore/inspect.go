package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/schema"
	"github.com/scorecast/scorecast/internal/verify"
)

var (
	_ loader.Sink      = (*Store)(nil)
	_ verify.Inspector = (*Store)(nil)
)

func (s *Store) checkField(table, field string) error {
	t := s.schema.Table(table)
	if t == nil {
		return fmt.Errorf("unknown collection %q", table)
	}
	if field == "" {
		return nil
	}
	for _, c := range t.Columns {
		if c.Name == field {
			return nil
		}
	}
	return fmt.Errorf("unknown field %s.%s", table, field)
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if err := s.checkField(table, ""); err != nil {
		return 0, err
	}
	n, err := s.db.Collection(table).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, apperrors.Unavailable("counting documents in "+table, err)
	}
	return n, nil
}

// orphanPipeline matches documents whose student_id has no student.
func orphanPipeline() bson.A {
	return bson.A{
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: schema.TableStudents},
			{Key: "localField", Value: "student_id"},
			{Key: "foreignField", Value: "student_id"},
			{Key: "as", Value: "student"},
		}}},
		bson.D{{Key: "$match", Value: bson.D{{Key: "student", Value: bson.D{{Key: "$size", Value: 0}}}}}},
		bson.D{{Key: "$count", Value: "n"}},
	}
}

// CountOrphans counts documents referencing a missing student.
func (s *Store) CountOrphans(ctx context.Context, table string) (int64, error) {
	if err := s.checkField(table, "student_id"); err != nil {
		return 0, err
	}
	cursor, err := s.db.Collection(table).Aggregate(ctx, orphanPipeline())
	if err != nil {
		return 0, apperrors.Unavailable("counting orphans in "+table, err)
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		var result bson.M
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("decoding orphan count: %w", err)
		}
		return int64(toFloat(result["n"])), nil
	}
	return 0, cursor.Err()
}

// RangeFilter matches documents whose field lies outside the rule's bounds.
func RangeFilter(rule schema.RangeRule) bson.D {
	outside := bson.A{bson.D{{Key: rule.Field, Value: bson.D{{Key: "$lt", Value: rule.Min}}}}}
	if rule.Max != nil {
		outside = append(outside, bson.D{{Key: rule.Field, Value: bson.D{{Key: "$gt", Value: *rule.Max}}}})
	}
	return bson.D{{Key: "$or", Value: outside}}
}

// FindOutOfRange returns documents violating rule. Documents are identified
// by student_id. limit <= 0 returns all.
func (s *Store) FindOutOfRange(ctx context.Context, rule schema.RangeRule, limit int) ([]schema.FieldValue, error) {
	if err := s.checkField(rule.Table, rule.Field); err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "student_id", Value: 1}}).
		SetProjection(bson.D{{Key: "student_id", Value: 1}, {Key: rule.Field, Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(rule.Table).Find(ctx, RangeFilter(rule), opts)
	if err != nil {
		return nil, apperrors.Unavailable("checking "+rule.String(), err)
	}
	defer cursor.Close(ctx)

	var out []schema.FieldValue
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rule.Table, err)
		}
		v := toFloat(doc[rule.Field])
		out = append(out, schema.FieldValue{RowID: int64(toFloat(doc["student_id"])), Value: &v})
	}
	return out, cursor.Err()
}

// FindNulls returns the student ids of documents where field is null or
// missing.
func (s *Store) FindNulls(ctx context.Context, table, field string, limit int) ([]int64, error) {
	if err := s.checkField(table, field); err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "student_id", Value: 1}}).
		SetProjection(bson.D{{Key: "student_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(table).Find(ctx, bson.D{{Key: field, Value: nil}}, opts)
	if err != nil {
		return nil, apperrors.Unavailable(fmt.Sprintf("finding null %s.%s", table, field), err)
	}
	defer cursor.Close(ctx)

	var ids []int64
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", table, err)
		}
		ids = append(ids, int64(toFloat(doc["student_id"])))
	}
	return ids, cursor.Err()
}

// completePipeline joins students with their academic record and
// environmental factors.
func completePipeline(limit int) bson.A {
	pipeline := bson.A{bson.D{{Key: "$sort", Value: bson.D{{Key: "student_id", Value: 1}}}}}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	for _, join := range []struct{ from, as string }{
		{schema.TableAcademic, "academic_record"},
		{schema.TableEnvironmental, "environmental_factors"},
	} {
		pipeline = append(pipeline,
			bson.D{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: join.from},
				{Key: "localField", Value: "student_id"},
				{Key: "foreignField", Value: "student_id"},
				{Key: "as", Value: join.as},
			}}},
			bson.D{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + join.as},
				{Key: "preserveNullAndEmptyArrays", Value: true},
			}}},
		)
	}
	return pipeline
}

// CompleteStudents returns students joined with their records, ordered by
// student id. limit <= 0 returns all.
func (s *Store) CompleteStudents(ctx context.Context, limit int) ([]schema.CompleteStudent, error) {
	cursor, err := s.db.Collection(schema.TableStudents).Aggregate(ctx, completePipeline(limit))
	if err != nil {
		return nil, apperrors.Unavailable("reading complete students", err)
	}
	defer cursor.Close(ctx)

	var out []schema.CompleteStudent
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding complete students: %w", err)
	}
	return out, nil
}

// SampleComplete returns the first n complete students.
func (s *Store) SampleComplete(ctx context.Context, n int) ([]schema.CompleteStudent, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.CompleteStudents(ctx, n)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
