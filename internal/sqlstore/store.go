// Package sqlstore is the relational store: a load sink and an integrity
// inspector over PostgreSQL (pgx) or SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/schema"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed schema_postgres.sql
var postgresDDL string

//go:embed schema_sqlite.sql
var sqliteDDL string

// dropOrder removes dependents before students.
var dropOrder = []string{
	schema.TablePredictions,
	schema.TableEnvironmental,
	schema.TableAcademic,
	schema.TableAuditLog,
	schema.TableStudents,
}

// Options configures Open.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Logger       *slog.Logger
}

// Store is a relational sink and inspector.
type Store struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	schema *schema.Schema
	logger *slog.Logger
}

// Open connects to the relational store and pings it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var (
		driverName string
		dsn        = opts.DSN
		sb         sq.StatementBuilderType
	)
	switch opts.Driver {
	case DriverPostgres:
		driverName = "pgx"
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	case DriverSQLite:
		driverName = "sqlite"
		dsn = withForeignKeys(dsn)
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	default:
		return nil, fmt.Errorf("unsupported relational driver %q", opts.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, apperrors.Unavailable("opening relational store", err)
	}
	if opts.Driver == DriverSQLite {
		// one writer; keeps shared-cache memory databases alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.Unavailable("pinging relational store", err)
	}

	return &Store{
		db:     db,
		driver: opts.Driver,
		sb:     sb,
		schema: schema.Normalized(),
		logger: opts.Logger.With("store", "relational"),
	}, nil
}

// withForeignKeys enables foreign key enforcement on every SQLite connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Name identifies the store as a load sink.
func (s *Store) Name() string { return "relational" }

// Driver returns the configured driver.
func (s *Store) Driver() string { return s.driver }

// DB exposes the connection pool for the CRUD repository.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the tables, constraints and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := postgresDDL
	if s.driver == DriverSQLite {
		ddl = sqliteDDL
	}
	for _, stmt := range splitStatements(ddl) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Unavailable("creating relational schema", err)
		}
	}
	s.logger.Info("relational schema ensured")
	return nil
}

// DropSchema drops every table. Dependents go first.
func (s *Store) DropSchema(ctx context.Context) error {
	for _, table := range dropOrder {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return apperrors.Unavailable("dropping "+table, err)
		}
	}
	s.logger.Info("relational schema dropped")
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
