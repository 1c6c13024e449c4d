package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/codes"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db      DBTX
	dialect Dialect
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, rebind(q.dialect, query), args...)
	if err != nil {
		return 0, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := q.db.QueryContext(ctx, rebind(q.dialect, query), args...)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, rebind(q.dialect, query), args...)
}

type scanner interface {
	Scan(dest ...any) error
}

// Sellers

const sellerColumns = `id, name, prefix, range_start, range_end, created_at`

func scanSeller(row scanner) (model.Seller, error) {
	var (
		seller     model.Seller
		prefix     sql.NullString
		rangeStart sql.NullInt64
		rangeEnd   sql.NullInt64
	)
	if err := row.Scan(&seller.ID, &seller.Name, &prefix, &rangeStart, &rangeEnd, &seller.CreatedAt); err != nil {
		return model.Seller{}, mapError(err)
	}
	seller.Prefix = prefix.String
	seller.RangeStart = intPtr(rangeStart)
	seller.RangeEnd = intPtr(rangeEnd)
	seller.CreatedAt = seller.CreatedAt.UTC()
	return seller, nil
}

func (q *Queries) InsertSeller(ctx context.Context, seller model.Seller) error {
	var prefix any
	if seller.Prefix != "" {
		prefix = seller.Prefix
	}
	_, err := q.exec(ctx, `
		INSERT INTO sellers (id, name, prefix, range_start, range_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, seller.ID, seller.Name, prefix, nullInt(seller.RangeStart), nullInt(seller.RangeEnd), seller.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert seller: %w", err)
	}
	return nil
}

func (q *Queries) GetSeller(ctx context.Context, id string) (model.Seller, error) {
	seller, err := scanSeller(q.queryRow(ctx, `SELECT `+sellerColumns+` FROM sellers WHERE id = ?`, id))
	if err != nil {
		return model.Seller{}, fmt.Errorf("get seller %s: %w", id, err)
	}
	return seller, nil
}

// LockSeller takes a row lock on the seller for the rest of the transaction.
// SQLite has no row locks; its single connection already serializes writers.
func (q *Queries) LockSeller(ctx context.Context, id string) (model.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = ?`
	if q.dialect == Postgres {
		query += ` FOR UPDATE`
	}
	seller, err := scanSeller(q.queryRow(ctx, query, id))
	if err != nil {
		return model.Seller{}, fmt.Errorf("lock seller %s: %w", id, err)
	}
	return seller, nil
}

func (q *Queries) ListSellers(ctx context.Context) ([]model.Seller, error) {
	rows, err := q.query(ctx, `SELECT `+sellerColumns+` FROM sellers ORDER BY prefix, id`)
	if err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	defer rows.Close()
	var sellers []model.Seller
	for rows.Next() {
		seller, err := scanSeller(rows)
		if err != nil {
			return nil, err
		}
		sellers = append(sellers, seller)
	}
	return sellers, rows.Err()
}

// UpdateSellerRange stores the cached range; nil clears it.
func (q *Queries) UpdateSellerRange(ctx context.Context, id string, r *codes.Range) error {
	var start, end any
	if r != nil {
		start, end = int64(r.Start), int64(r.End)
	}
	affected, err := q.exec(ctx, `UPDATE sellers SET range_start = ?, range_end = ? WHERE id = ?`, start, end, id)
	if err != nil {
		return fmt.Errorf("update seller range: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update seller range %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetSellerPrefix registers a prefix on a seller that has none yet.
// ErrStaleState means a prefix was already set.
func (q *Queries) SetSellerPrefix(ctx context.Context, id, prefix string) error {
	affected, err := q.exec(ctx, `UPDATE sellers SET prefix = ? WHERE id = ? AND prefix IS NULL`, prefix, id)
	if err != nil {
		return fmt.Errorf("set seller prefix: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set seller prefix %s: %w", id, ErrStaleState)
	}
	return nil
}
