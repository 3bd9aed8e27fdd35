package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

// timestamps are stored as fixed-width UTC text so they sort lexically on every driver
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

// SQLDatabase implements DatabaseService on database/sql for SQLite and PostgreSQL
type SQLDatabase struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewSQLiteDatabase opens a SQLite database using the pure Go modernc driver
func NewSQLiteDatabase(connectionString string) (*SQLDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps in-memory databases shared and serialises writers
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &SQLDatabase{db: db, dialect: dialectSQLite, now: time.Now}, nil
}

// NewPostgresDatabase opens a PostgreSQL database through the pgx stdlib driver
func NewPostgresDatabase(connectionString string) (*SQLDatabase, error) {
	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &SQLDatabase{db: db, dialect: dialectPostgres, now: time.Now}, nil
}

func (s *SQLDatabase) Migrate(ctx context.Context) error {
	dir, err := fs.Sub(migrations, path.Join("migrations", string(s.dialect)))
	if err != nil {
		return err
	}
	gooseDialect := goose.DialectSQLite3
	if s.dialect == dialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, s.db, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, result := range results {
		slog.Info("applied migration", "version", result.Source.Version, "duration_ms", result.Duration.Milliseconds())
	}
	return nil
}

func (s *SQLDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into the $n form postgres expects
func (s *SQLDatabase) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLDatabase) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLDatabase) timestamp() string {
	return formatTime(s.now())
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		slog.Warn("could not parse stored timestamp", "value", value, "error", err)
		return time.Time{}
	}
	return t
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func emptyAsNull(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func affectedOrNotFound(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *SQLDatabase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
