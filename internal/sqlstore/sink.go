package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/schema"
)

const savepoint = "scorecast_record"

// WriteBatch inserts records in one transaction. Each row runs under its own
// savepoint so a rejected row is rolled back alone.
func (s *Store) WriteBatch(ctx context.Context, table string, records []schema.Record) (*loader.BatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Unavailable("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := &loader.BatchResult{IDs: make([]int64, len(records))}
	for i, rec := range records {
		if rec.TableName() != table {
			return nil, fmt.Errorf("record for %s in a %s batch", rec.TableName(), table)
		}
		cols, vals := rec.InsertColumns()
		query, args, err := s.sb.Insert(table).
			Columns(cols...).
			Values(vals...).
			Suffix("RETURNING student_id").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("building %s insert: %w", table, err)
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, apperrors.Unavailable("creating savepoint", err)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			if !isRecordError(err) {
				return nil, apperrors.Unavailable("inserting into "+table, err)
			}
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return nil, apperrors.Unavailable("rolling back savepoint", rbErr)
			}
			res.Failures = append(res.Failures, loader.RecordFailure{Index: i, Err: err})
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, apperrors.Unavailable("releasing savepoint", err)
		}
		res.IDs[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Unavailable("committing batch", err)
	}
	return res, nil
}

// isRecordError reports whether err was caused by the row's data rather than
// the store. Postgres classes 22 (data exception) and 23 (integrity
// violation) and SQLite constraint, type mismatch and size errors qualify.
func isRecordError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return false
		}
		class := pgErr.Code[:2]
		return class == "22" || class == "23"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
			return true
		}
	}
	return false
}
