package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"finbot/internal/core"
)

// dateLayout is how timestamps are stored: UTC, second precision.
const dateLayout = "2006-01-02T15:04:05Z"

// createdLayout is fixed width so users sort by registration time.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// SQLRepository is a ledger backend over sqlite or postgres.
type SQLRepository struct {
	db      *sql.DB
	queries *Queries
	dialect Dialect
	loc     *time.Location
}

// NewSQLiteRepository opens (creating if needed) the database file and migrates it.
func NewSQLiteRepository(dbPath string, loc *time.Location) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(SQLite, dbPath, loc)
}

// NewPostgresRepository connects to dsn and migrates the schema.
func NewPostgresRepository(dsn string, loc *time.Location) (*SQLRepository, error) {
	return open(Postgres, dsn, loc)
}

func open(dialect Dialect, dsn string, loc *time.Location) (*SQLRepository, error) {
	if loc == nil {
		loc = time.Local
	}
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time; sqlite returns SQLITE_BUSY otherwise.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{
		db:      db,
		queries: New(db, dialect),
		dialect: dialect,
		loc:     loc,
	}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) EnsureUser(ctx context.Context, user string) error {
	createdAt := time.Now().UTC().Format(createdLayout)
	if err := r.queries.CreateUser(ctx, user, createdAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLRepository) Users(ctx context.Context) ([]string, error) {
	users, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *SQLRepository) Load(ctx context.Context, user string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsByUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return nil, fmt.Errorf("parse date %q of transaction %s: %w", row.Date, row.ID, err)
		}
		txs = append(txs, core.Transaction{
			ID:           row.ID,
			UserID:       row.UserID,
			Seq:          row.Seq,
			Kind:         core.Kind(row.Type),
			Amount:       row.Amount,
			Note:         row.Note,
			Counterparty: row.Counterparty,
			Timestamp:    ts.In(r.loc),
			Settled:      row.Settled,
		})
	}
	return txs, nil
}

// Append inserts the user row if needed and the transaction in one database
// transaction.
func (r *SQLRepository) Append(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	q := r.queries.WithTx(dbTx)
	if err := q.CreateUser(ctx, tx.UserID, time.Now().UTC().Format(createdLayout)); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := q.CreateTransaction(ctx, Transaction{
		ID:           tx.ID,
		UserID:       tx.UserID,
		Seq:          tx.Seq,
		Type:         string(tx.Kind),
		Amount:       tx.Amount,
		Note:         tx.Note,
		Counterparty: tx.Counterparty,
		Date:         tx.Timestamp.UTC().Format(dateLayout),
		Settled:      tx.Settled,
	}); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved",
		"dialect", r.dialect,
		"id", tx.ID,
		"user_id", tx.UserID,
		"seq", tx.Seq)
	return nil
}

func (r *SQLRepository) MarkSettled(ctx context.Context, tx core.Transaction) error {
	n, err := r.queries.MarkTransactionSettled(ctx, tx.ID, tx.UserID)
	if err != nil {
		return fmt.Errorf("mark transaction settled: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %s", core.ErrNotFound, tx.ID)
	}
	slog.InfoContext(ctx, "Transaction marked as settled", "id", tx.ID, "user_id", tx.UserID)
	return nil
}
