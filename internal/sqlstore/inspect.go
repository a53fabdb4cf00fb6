package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/schema"
	"github.com/scorecast/scorecast/internal/verify"
)

var (
	_ loader.Sink      = (*Store)(nil)
	_ verify.Inspector    = (*Store)(nil)
	_ verify.AuditCounter = (*Store)(nil)
)

// column checks that table.field is part of the normalized schema so names
// can be interpolated safely.
func (s *Store) column(table, field string) (*schema.Table, error) {
	t := s.schema.Table(table)
	if t == nil {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	if field == "" {
		return t, nil
	}
	for _, c := range t.Columns {
		if c.Name == field {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown column %s.%s", table, field)
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if _, err := s.column(table, ""); err != nil {
		return 0, err
	}
	query, args, err := s.sb.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.Unavailable("counting "+table, err)
	}
	return n, nil
}

// CountAudit counts audit_log entries written by the API.
func (s *Store) CountAudit(ctx context.Context) (int64, error) {
	query, args, err := s.sb.Select("COUNT(*)").From(schema.TableAuditLog).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.Unavailable("counting "+schema.TableAuditLog, err)
	}
	return n, nil
}

// CountOrphans counts rows of a dependent table whose student_id has no
// matching student.
func (s *Store) CountOrphans(ctx context.Context, table string) (int64, error) {
	if _, err := s.column(table, "student_id"); err != nil {
		return 0, err
	}
	query, args, err := s.sb.Select("COUNT(*)").
		From(table + " t").
		LeftJoin("students s ON t.student_id = s.student_id").
		Where(sq.Eq{"s.student_id": nil}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.Unavailable("counting orphans in "+table, err)
	}
	return n, nil
}

// FindOutOfRange returns rows whose value for the rule's field lies outside
// its bounds. Null values are not violations. limit <= 0 returns all rows.
func (s *Store) FindOutOfRange(ctx context.Context, rule schema.RangeRule, limit int) ([]schema.FieldValue, error) {
	t, err := s.column(rule.Table, rule.Field)
	if err != nil {
		return nil, err
	}
	outside := sq.Or{sq.Lt{rule.Field: rule.Min}}
	if rule.Max != nil {
		outside = append(outside, sq.Gt{rule.Field: *rule.Max})
	}
	qb := s.sb.Select(t.PrimaryKey, rule.Field).
		From(rule.Table).
		Where(outside).
		OrderBy(t.PrimaryKey)
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Unavailable("checking "+rule.String(), err)
	}
	defer rows.Close()

	var out []schema.FieldValue
	for rows.Next() {
		var (
			id  int64
			val sql.NullFloat64
		)
		if err := rows.Scan(&id, &val); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", rule.Table, err)
		}
		fv := schema.FieldValue{RowID: id}
		if val.Valid {
			v := val.Float64
			fv.Value = &v
		}
		out = append(out, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("checking "+rule.String(), err)
	}
	return out, nil
}

// FindNulls returns the keys of rows where field is null.
func (s *Store) FindNulls(ctx context.Context, table, field string, limit int) ([]int64, error) {
	t, err := s.column(table, field)
	if err != nil {
		return nil, err
	}
	qb := s.sb.Select(t.PrimaryKey).
		From(table).
		Where(sq.Eq{field: nil}).
		OrderBy(t.PrimaryKey)
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Unavailable(fmt.Sprintf("finding null %s.%s", table, field), err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SampleComplete returns the first n students joined with their records.
func (s *Store) SampleComplete(ctx context.Context, n int) ([]schema.CompleteStudent, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.CompleteStudents(ctx, n)
}

var completeColumns = []string{
	"s.student_id", "s.gender", "s.learning_disabilities", "s.distance_from_home",
	"a.record_id", "a.hours_studied", "a.attendance", "a.previous_scores", "a.tutoring_sessions", "a.exam_score",
	"e.env_id", "e.parental_involvement", "e.access_to_resources", "e.extracurricular_activities",
	"e.sleep_hours", "e.motivation_level", "e.internet_access", "e.family_income", "e.teacher_quality",
	"e.school_type", "e.peer_influence", "e.physical_activity", "e.parental_education_level",
}

// CompleteStudents joins students with their academic record and
// environmental factors, ordered by student id. limit <= 0 returns all.
func (s *Store) CompleteStudents(ctx context.Context, limit int) ([]schema.CompleteStudent, error) {
	qb := s.sb.Select(completeColumns...).
		From("students s").
		LeftJoin("academic_records a ON a.student_id = s.student_id").
		LeftJoin("environmental_factors e ON e.student_id = s.student_id").
		OrderBy("s.student_id")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Unavailable("reading complete students", err)
	}
	defer rows.Close()

	var out []schema.CompleteStudent
	for rows.Next() {
		c, err := scanComplete(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("reading complete students", err)
	}
	return out, nil
}

func scanComplete(rows *sql.Rows) (schema.CompleteStudent, error) {
	var (
		c                                           schema.CompleteStudent
		gender, disabilities, distance              sql.NullString
		recordID, hours, attendance, prev, tutoring sql.NullInt64
		exam                                        sql.NullInt64
		envID, sleep, physical                      sql.NullInt64
		involvement, resources, extra, motivation   sql.NullString
		internet, income, teacher, school, peer     sql.NullString
		education                                   sql.NullString
	)
	err := rows.Scan(
		&c.ID, &gender, &disabilities, &distance,
		&recordID, &hours, &attendance, &prev, &tutoring, &exam,
		&envID, &involvement, &resources, &extra,
		&sleep, &motivation, &internet, &income, &teacher,
		&school, &peer, &physical, &education,
	)
	if err != nil {
		return c, fmt.Errorf("scanning complete student: %w", err)
	}

	c.Gender = schema.Gender(gender.String)
	c.LearningDisabilities = schema.YesNo(disabilities.String)
	c.DistanceFromHome = schema.Distance(distance.String)

	if recordID.Valid {
		a := &schema.AcademicRecord{
			RecordID:         recordID.Int64,
			StudentID:        c.ID,
			HoursStudied:     int(hours.Int64),
			Attendance:       int(attendance.Int64),
			PreviousScores:   int(prev.Int64),
			TutoringSessions: int(tutoring.Int64),
		}
		if exam.Valid {
			a.ExamScore = schema.IntPtr(int(exam.Int64))
		}
		c.Academic = a
	}
	if envID.Valid {
		c.Environmental = &schema.EnvironmentalFactors{
			EnvID:                     envID.Int64,
			StudentID:                 c.ID,
			ParentalInvolvement:       schema.Level(involvement.String),
			AccessToResources:         schema.Level(resources.String),
			ExtracurricularActivities: schema.YesNo(extra.String),
			SleepHours:                int(sleep.Int64),
			MotivationLevel:           schema.Level(motivation.String),
			InternetAccess:            schema.YesNo(internet.String),
			FamilyIncome:              schema.Level(income.String),
			TeacherQuality:            schema.Level(teacher.String),
			SchoolType:                schema.SchoolType(school.String),
			PeerInfluence:             schema.PeerInfluence(peer.String),
			PhysicalActivity:          int(physical.Int64),
			ParentalEducationLevel:    schema.EducationLevel(education.String),
		}
	}
	return c, nil
}
