// Package repository implements student CRUD over the relational store with
// gorm. Every mutation writes an audit_log row in the same transaction.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/schema"
)

// ChangedBy is recorded on every audit row written through the repository.
const ChangedBy = "api"

// Audit operations.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// auditRow is the gorm mapping of schema.AuditEntry.
type auditRow struct {
	AuditID   int64             `gorm:"column:audit_id;primaryKey;autoIncrement"`
	Table     string            `gorm:"column:table_name"`
	Operation string            `gorm:"column:operation"`
	RecordID  int64             `gorm:"column:record_id"`
	OldValues datatypes.JSONMap `gorm:"column:old_values;type:jsonb"`
	NewValues datatypes.JSONMap `gorm:"column:new_values;type:jsonb"`
	ChangedBy string            `gorm:"column:changed_by"`
	ChangedAt time.Time         `gorm:"column:changed_at"`
}

func (auditRow) TableName() string { return schema.TableAuditLog }

func (a auditRow) entry() schema.AuditEntry {
	return schema.AuditEntry{
		AuditID:   a.AuditID,
		TableName: a.Table,
		Operation: a.Operation,
		RecordID:  a.RecordID,
		OldValues: a.OldValues,
		NewValues: a.NewValues,
		ChangedBy: a.ChangedBy,
		ChangedAt: a.ChangedAt,
	}
}

// Repository is the gorm-backed CRUD layer.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL.
func Open(dsn string, logger *slog.Logger) (*Repository, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, apperrors.Unavailable("connecting", err)
	}
	return New(db, logger), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return apperrors.Unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperrors.Unavailable("ping", err)
	}
	return nil
}

// CreateStudent inserts s and returns it with its assigned id.
func (r *Repository) CreateStudent(ctx context.Context, s schema.Student) (schema.Student, error) {
	s, err := schema.NewStudent(s.Gender, s.LearningDisabilities, s.DistanceFromHome)
	if err != nil {
		return schema.Student{}, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&s).Error; err != nil {
			return err
		}
		return audit(tx, schema.TableStudents, OpInsert, s.ID, nil, s)
	})
	if err != nil {
		return schema.Student{}, translate("creating student", err)
	}
	return s, nil
}

// ListStudents pages through students ordered by id.
func (r *Repository) ListStudents(ctx context.Context, skip, limit int) ([]schema.Student, error) {
	var out []schema.Student
	q := r.db.WithContext(ctx).Order("student_id").Offset(skip)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, translate("listing students", err)
	}
	return out, nil
}

// GetStudent returns one student.
func (r *Repository) GetStudent(ctx context.Context, id int64) (schema.Student, error) {
	var s schema.Student
	if err := r.db.WithContext(ctx).First(&s, "student_id = ?", id).Error; err != nil {
		return schema.Student{}, translate("getting student", err)
	}
	return s, nil
}

// UpdateStudent merges patch into the stored student.
func (r *Repository) UpdateStudent(ctx context.Context, id int64, patch schema.StudentPatch) (schema.Student, error) {
	if err := schema.Validate(patch); err != nil {
		return schema.Student{}, err
	}
	var updated schema.Student
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old schema.Student
		if err := tx.First(&old, "student_id = ?", id).Error; err != nil {
			return err
		}
		updated = patch.Apply(old)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		return audit(tx, schema.TableStudents, OpUpdate, id, old, updated)
	})
	if err != nil {
		return schema.Student{}, translate("updating student", err)
	}
	return updated, nil
}

// DeleteStudent removes a student; dependents go with it.
func (r *Repository) DeleteStudent(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old schema.Student
		if err := tx.First(&old, "student_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&schema.Student{}, "student_id = ?", id).Error; err != nil {
			return err
		}
		return audit(tx, schema.TableStudents, OpDelete, id, old, nil)
	})
	return translate("deleting student", err)
}

// CreateAcademic attaches an academic record to an existing student.
func (r *Repository) CreateAcademic(ctx context.Context, studentID int64, a schema.AcademicRecord) (schema.AcademicRecord, error) {
	a, err := schema.NewAcademicRecord(studentID, a)
	if err != nil {
		return schema.AcademicRecord{}, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStudent(tx, studentID); err != nil {
			return err
		}
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		return audit(tx, schema.TableAcademic, OpInsert, a.RecordID, nil, a)
	})
	if err != nil {
		return schema.AcademicRecord{}, translate("creating academic record", err)
	}
	return a, nil
}

// GetAcademic returns the student's academic record.
func (r *Repository) GetAcademic(ctx context.Context, studentID int64) (schema.AcademicRecord, error) {
	var a schema.AcademicRecord
	if err := r.db.WithContext(ctx).First(&a, "student_id = ?", studentID).Error; err != nil {
		return schema.AcademicRecord{}, translate("getting academic record", err)
	}
	return a, nil
}

// UpdateAcademic merges patch into the student's academic record.
func (r *Repository) UpdateAcademic(ctx context.Context, studentID int64, patch schema.AcademicPatch) (schema.AcademicRecord, error) {
	if err := schema.Validate(patch); err != nil {
		return schema.AcademicRecord{}, err
	}
	var updated schema.AcademicRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old schema.AcademicRecord
		if err := tx.First(&old, "student_id = ?", studentID).Error; err != nil {
			return err
		}
		updated = patch.Apply(old)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		return audit(tx, schema.TableAcademic, OpUpdate, old.RecordID, old, updated)
	})
	if err != nil {
		return schema.AcademicRecord{}, translate("updating academic record", err)
	}
	return updated, nil
}

// CreateEnvironmental attaches environmental factors to an existing student.
func (r *Repository) CreateEnvironmental(ctx context.Context, studentID int64, e schema.EnvironmentalFactors) (schema.EnvironmentalFactors, error) {
	e, err := schema.NewEnvironmentalFactors(studentID, e)
	if err != nil {
		return schema.EnvironmentalFactors{}, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStudent(tx, studentID); err != nil {
			return err
		}
		if err := tx.Create(&e).Error; err != nil {
			return err
		}
		return audit(tx, schema.TableEnvironmental, OpInsert, e.EnvID, nil, e)
	})
	if err != nil {
		return schema.EnvironmentalFactors{}, translate("creating environmental factors", err)
	}
	return e, nil
}

// GetEnvironmental returns the student's environmental factors.
func (r *Repository) GetEnvironmental(ctx context.Context, studentID int64) (schema.EnvironmentalFactors, error) {
	var e schema.EnvironmentalFactors
	if err := r.db.WithContext(ctx).First(&e, "student_id = ?", studentID).Error; err != nil {
		return schema.EnvironmentalFactors{}, translate("getting environmental factors", err)
	}
	return e, nil
}

// UpdateEnvironmental merges patch into the student's environmental factors.
func (r *Repository) UpdateEnvironmental(ctx context.Context, studentID int64, patch schema.EnvironmentalPatch) (schema.EnvironmentalFactors, error) {
	if err := schema.Validate(patch); err != nil {
		return schema.EnvironmentalFactors{}, err
	}
	var updated schema.EnvironmentalFactors
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old schema.EnvironmentalFactors
		if err := tx.First(&old, "student_id = ?", studentID).Error; err != nil {
			return err
		}
		updated = patch.Apply(old)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		return audit(tx, schema.TableEnvironmental, OpUpdate, old.EnvID, old, updated)
	})
	if err != nil {
		return schema.EnvironmentalFactors{}, translate("updating environmental factors", err)
	}
	return updated, nil
}

// CreateComplete inserts a student and whichever dependents c carries in
// one transaction.
func (r *Repository) CreateComplete(ctx context.Context, c schema.CompleteStudent) (schema.CompleteStudent, error) {
	s, err := schema.NewStudent(c.Gender, c.LearningDisabilities, c.DistanceFromHome)
	if err != nil {
		return schema.CompleteStudent{}, err
	}
	out := schema.CompleteStudent{Student: s}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&out.Student).Error; err != nil {
			return err
		}
		if err := audit(tx, schema.TableStudents, OpInsert, out.ID, nil, out.Student); err != nil {
			return err
		}
		if c.Academic != nil {
			a, err := schema.NewAcademicRecord(out.ID, *c.Academic)
			if err != nil {
				return err
			}
			if err := tx.Create(&a).Error; err != nil {
				return err
			}
			if err := audit(tx, schema.TableAcademic, OpInsert, a.RecordID, nil, a); err != nil {
				return err
			}
			out.Academic = &a
		}
		if c.Environmental != nil {
			e, err := schema.NewEnvironmentalFactors(out.ID, *c.Environmental)
			if err != nil {
				return err
			}
			if err := tx.Create(&e).Error; err != nil {
				return err
			}
			if err := audit(tx, schema.TableEnvironmental, OpInsert, e.EnvID, nil, e); err != nil {
				return err
			}
			out.Environmental = &e
		}
		return nil
	})
	if err != nil {
		return schema.CompleteStudent{}, translate("creating complete student", err)
	}
	return out, nil
}

// GetComplete returns a student joined with its dependents and predictions.
func (r *Repository) GetComplete(ctx context.Context, id int64) (schema.CompleteStudent, error) {
	s, err := r.GetStudent(ctx, id)
	if err != nil {
		return schema.CompleteStudent{}, err
	}
	out := schema.CompleteStudent{Student: s}
	if a, err := r.GetAcademic(ctx, id); err == nil {
		out.Academic = &a
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return schema.CompleteStudent{}, err
	}
	if e, err := r.GetEnvironmental(ctx, id); err == nil {
		out.Environmental = &e
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return schema.CompleteStudent{}, err
	}
	preds, err := r.ListPredictions(ctx, id)
	if err != nil {
		return schema.CompleteStudent{}, err
	}
	out.Predictions = preds
	return out, nil
}

// CreatePrediction appends a prediction for an existing student.
func (r *Repository) CreatePrediction(ctx context.Context, p schema.Prediction) (schema.Prediction, error) {
	if err := schema.Validate(p); err != nil {
		return schema.Prediction{}, err
	}
	p.PredictionID = 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStudent(tx, p.StudentID); err != nil {
			return err
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		return audit(tx, schema.TablePredictions, OpInsert, p.PredictionID, nil, p)
	})
	if err != nil {
		return schema.Prediction{}, translate("creating prediction", err)
	}
	return p, nil
}

// ListPredictions returns a student's predictions, newest first.
func (r *Repository) ListPredictions(ctx context.Context, studentID int64) ([]schema.Prediction, error) {
	var out []schema.Prediction
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("prediction_date DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate("listing predictions", err)
	}
	return out, nil
}

// AuditTrail returns the audit rows of one record, oldest first.
func (r *Repository) AuditTrail(ctx context.Context, table string, recordID int64) ([]schema.AuditEntry, error) {
	var rows []auditRow
	err := r.db.WithContext(ctx).
		Where("table_name = ? AND record_id = ?", table, recordID).
		Order("audit_id").
		Find(&rows).Error
	if err != nil {
		return nil, translate("reading audit log", err)
	}
	out := make([]schema.AuditEntry, len(rows))
	for i, row := range rows {
		out[i] = row.entry()
	}
	return out, nil
}

func requireStudent(tx *gorm.DB, id int64) error {
	var n int64
	if err := tx.Model(&schema.Student{}).Where("student_id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("student %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func audit(tx *gorm.DB, table, op string, recordID int64, oldV, newV any) error {
	row := auditRow{
		Table:     table,
		Operation: op,
		RecordID:  recordID,
		ChangedBy: ChangedBy,
		ChangedAt: time.Now().UTC(),
	}
	var err error
	if row.OldValues, err = toJSONMap(oldV); err != nil {
		return err
	}
	if row.NewValues, err = toJSONMap(newV); err != nil {
		return err
	}
	return tx.Create(&row).Error
}

func toJSONMap(v any) (datatypes.JSONMap, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding audit values: %w", err)
	}
	m := datatypes.JSONMap{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding audit values: %w", err)
	}
	return m, nil
}

// translate maps gorm and PostgreSQL errors onto the apperrors vocabulary.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, apperrors.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, apperrors.ErrNotFound)
		}
		if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "22" || pgErr.Code[:2] == "23") {
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, apperrors.ErrValidation)
		}
	}
	return apperrors.Unavailable(op, err)
}
