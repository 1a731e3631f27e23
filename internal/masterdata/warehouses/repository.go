package warehouses

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/platform/db"
)

// ErrNotFound indicates a missing warehouse.
var ErrNotFound = errors.New("warehouses: not found")

// ErrHasStock indicates a warehouse that still holds stock.
var ErrHasStock = errors.New("warehouses: warehouse still holds stock")

type Repository interface {
	List(ctx context.Context, search string, page, perPage int) ([]Warehouse, int, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, wh Warehouse) (Warehouse, error)
	Update(ctx context.Context, id int64, wh Warehouse) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, search string, page, perPage int) ([]Warehouse, int, error) {
	query := `SELECT id, code, name, address, created_at FROM warehouses WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM warehouses WHERE 1=1`
	args := []any{}
	countArgs := []any{}

	if search != "" {
		query += ` AND (name ILIKE $1 OR code ILIKE $1)`
		countQuery += ` AND (name ILIKE $1 OR code ILIKE $1)`
		args = append(args, "%"+search+"%")
		countArgs = append(countArgs, "%"+search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	if perPage > 0 {
		if page < 1 {
			page = 1
		}
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, perPage, (page-1)*perPage)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var whs []Warehouse
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.Code, &wh.Name, &wh.Address, &wh.CreatedAt); err != nil {
			return nil, 0, err
		}
		whs = append(whs, wh)
	}
	return whs, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	var wh Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, code, name, address, created_at FROM warehouses WHERE id = $1`, id).
		Scan(&wh.ID, &wh.Code, &wh.Name, &wh.Address, &wh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrNotFound
	}
	return wh, err
}

func (r *repository) Create(ctx context.Context, wh Warehouse) (Warehouse, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO warehouses (code, name, address, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id, created_at`,
		wh.Code, wh.Name, wh.Address).Scan(&wh.ID, &wh.CreatedAt)
	return wh, err
}

func (r *repository) Update(ctx context.Context, id int64, wh Warehouse) error {
	tag, err := r.db.Exec(ctx, `UPDATE warehouses SET code = $1, name = $2, address = $3 WHERE id = $4`,
		wh.Code, wh.Name, wh.Address, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete refuses to remove a warehouse with a nonzero balance; empty the
// warehouse with transfers or adjustments first.
func (r *repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var holding int64
		err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM stock_balances WHERE warehouse_id = $1`, id).Scan(&holding)
		if err != nil {
			return err
		}
		if holding != 0 {
			return ErrHasStock
		}
		tag, err := tx.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
