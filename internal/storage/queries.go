package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Dialect selects the SQL flavour and driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Transaction is a row of the transactions table.
type Transaction struct {
	ID           string
	UserID       string
	Seq          int64
	Type         string
	Amount       decimal.Decimal
	Note         string
	Counterparty string
	Date         string
	Settled      bool
}

type Queries struct {
	db      DBTX
	dialect Dialect
}

func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

const createUser = `INSERT INTO users (id, created_at) VALUES (?, ?)
ON CONFLICT (id) DO NOTHING`

func (q *Queries) CreateUser(ctx context.Context, id, createdAt string) error {
	_, err := q.db.ExecContext(ctx, q.dialect.rebind(createUser), id, createdAt)
	return err
}

const listUsers = `SELECT id FROM users ORDER BY created_at, id`

func (q *Queries) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createTransaction = `INSERT INTO transactions
    (id, user_id, seq, type, amount, note, counterparty, date, settled)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, arg Transaction) error {
	_, err := q.db.ExecContext(ctx, q.dialect.rebind(createTransaction),
		arg.ID,
		arg.UserID,
		arg.Seq,
		arg.Type,
		arg.Amount,
		arg.Note,
		arg.Counterparty,
		arg.Date,
		arg.Settled,
	)
	return err
}

const listTransactionsByUser = `SELECT id, user_id, seq, type, amount, note, counterparty, date, settled
FROM transactions
WHERE user_id = ?
ORDER BY seq`

func (q *Queries) ListTransactionsByUser(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.rebind(listTransactionsByUser), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Seq,
			&i.Type,
			&i.Amount,
			&i.Note,
			&i.Counterparty,
			&i.Date,
			&i.Settled,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markTransactionSettled = `UPDATE transactions SET settled = TRUE
WHERE id = ? AND user_id = ?`

func (q *Queries) MarkTransactionSettled(ctx context.Context, id, userID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.dialect.rebind(markTransactionSettled), id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
