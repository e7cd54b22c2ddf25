package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/newsrank/internal/logger"
)

// SQL dialects; the names double as database/sql driver names.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQLArchive keeps the archive in a relational database.
type SQLArchive struct {
	db      *sql.DB
	dialect string
	log     *slog.Logger
}

// OpenSQL connects to the database and initializes the schema.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLArchive, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if dialect == DialectSQLite {
		// One connection keeps ":memory:" databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLArchive{db: db, dialect: dialect, log: logger.For("storage")}

	// Initialize schema
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.log.Info("archive database connected", "dialect", dialect)
	return s, nil
}

// initSchema creates the necessary tables if they don't exist
func (s *SQLArchive) initSchema(ctx context.Context) error {
	id := "id SERIAL PRIMARY KEY"
	if s.dialect == DialectSQLite {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS archive_entries (
			` + id + `,
			month TEXT NOT NULL,
			day TEXT NOT NULL,
			entry TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (month, entry)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_entries_day ON archive_entries(day)`,
		`CREATE TABLE IF NOT EXISTS ranked_days (
			day TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// LoadCorpus returns the month's entries in insertion order.
func (s *SQLArchive) LoadCorpus(ctx context.Context, month time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM archive_entries WHERE month = $1 ORDER BY id`, monthKey(month))
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendEntries inserts entries for day in one transaction. Entries already
// present in the month are ignored.
func (s *SQLArchive) AppendEntries(ctx context.Context, day time.Time, entries []string) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archive_entries (month, day, entry)
		VALUES ($1, $2, $3)
		ON CONFLICT (month, entry) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	month, d := monthKey(day), dayKey(day)
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, month, d, e); err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entries: %w", err)
	}
	return nil
}

// ReadDay returns the ranked document for day when one was written, and
// otherwise rebuilds the unranked day document from the archived entries.
func (s *SQLArchive) ReadDay(ctx context.Context, day time.Time) (string, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM ranked_days WHERE day = $1`, dayKey(day)).Scan(&doc)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read ranked day: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM archive_entries WHERE day = $1 ORDER BY id`, dayKey(day))
	if err != nil {
		return "", fmt.Errorf("failed to read day entries: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString(DayHeader(day))
	b.WriteByte('\n')
	n := 0
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return "", fmt.Errorf("failed to scan entry: %w", err)
		}
		b.WriteString(e)
		b.WriteByte('\n')
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("day %s: %w", dayKey(day), ErrNotFound)
	}
	return b.String(), nil
}

// WriteDay stores the ranked document for day, replacing any previous one.
func (s *SQLArchive) WriteDay(ctx context.Context, day time.Time, doc string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ranked_days (day, document, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (day) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = CURRENT_TIMESTAMP
	`, dayKey(day), doc)
	if err != nil {
		return fmt.Errorf("failed to write ranked day: %w", err)
	}
	return nil
}

// GetStats returns archive statistics
func (s *SQLArchive) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_entries`).Scan(&total); err != nil {
		return nil, err
	}
	stats["total_entries"] = total

	var ranked int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ranked_days`).Scan(&ranked); err != nil {
		return nil, err
	}
	stats["ranked_days"] = ranked

	return stats, nil
}

// Close closes the database connection
func (s *SQLArchive) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
