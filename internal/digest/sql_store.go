package digest

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	table      = "digest_latest"
	latestSlot = "latest"
)

var columns = []string{"date", "summary_text", "detail_text", "public_url", "title", "generated_at"}

// SQLStore keeps the digest in a single-row table. Driver is "postgres"
// or "sqlite3".
type SQLStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// NewSQLStore connects, runs migrations and returns the store.
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver == "sqlite3" {
		dsn = fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(db, driver); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("✅ digest store connected", "driver", driver)
	return &SQLStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholderFor(driver)),
	}, nil
}

// placeholderFor returns $N for postgres and ? for everything else.
func placeholderFor(driver string) sq.PlaceholderFormat {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == "postgres" {
		placeholder = sq.Dollar
	}
	return placeholder
}

func migrate(db *sql.DB, driver string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) ReadLatest(ctx context.Context) (Digest, error) {
	var d Digest
	var generatedAt string

	err := s.builder.Select(columns...).
		From(table).
		Where(sq.Eq{"slot": latestSlot}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&d.Date, &d.SummaryText, &d.DetailText, &d.PublicURL, &d.Title, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("failed to read digest: %w", err)
	}

	if d.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt); err != nil {
		return d, fmt.Errorf("failed to parse generated_at: %w", err)
	}
	return d, nil
}

// Publish upserts the single row in one statement.
func (s *SQLStore) Publish(ctx context.Context, d Digest) error {
	if err := d.Validate(); err != nil {
		return err
	}

	_, err := s.builder.Insert(table).
		Columns(append([]string{"slot"}, columns...)...).
		Values(latestSlot, d.Date, d.SummaryText, d.DetailText, d.PublicURL, d.Title, d.GeneratedAt.Format(time.RFC3339Nano)).
		Suffix(`ON CONFLICT (slot) DO UPDATE SET
			date = excluded.date,
			summary_text = excluded.summary_text,
			detail_text = excluded.detail_text,
			public_url = excluded.public_url,
			title = excluded.title,
			generated_at = excluded.generated_at`).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish digest: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
