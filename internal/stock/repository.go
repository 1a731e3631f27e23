package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/platform/db"
)

// Repository persists balances and ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the engine.
// Balance writes and the matching ledger append run inside one transaction
// so the two stores can never diverge on a committed mutation.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	AppendLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("stock balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetBalance returns the current quantity for an (item, warehouse) pair,
// defaulting to zero when no row exists yet.
func (r *Repository) GetBalance(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT qty FROM stock_balances WHERE item_id=$1 AND warehouse_id=$2`, itemID, warehouseID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("stock: get balance: %w", err)
	}
	return qty, nil
}

// ListBalances returns balance rows, optionally restricted to one item or warehouse.
func (r *Repository) ListBalances(ctx context.Context, itemID, warehouseID int64) ([]Balance, error) {
	query := `SELECT item_id, warehouse_id, qty, last_updated_at, COALESCE(last_updated_by, 0), remarks FROM stock_balances`
	var (
		conds []string
		args  []any
	)
	if itemID != 0 {
		args = append(args, itemID)
		conds = append(conds, fmt.Sprintf("item_id=$%d", len(args)))
	}
	if warehouseID != 0 {
		args = append(args, warehouseID)
		conds = append(conds, fmt.Sprintf("warehouse_id=$%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY item_id, warehouse_id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stock: list balances: %w", err)
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.ItemID, &b.WarehouseID, &b.Quantity, &b.LastUpdatedAt, &b.LastUpdatedBy, &b.Remarks); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// QueryLedger returns ledger entries matching the filter, newest first.
func (r *Repository) QueryLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	query := `SELECT id, item_id, warehouse_id, direction, qty, operation, COALESCE(doc_type, ''), COALESCE(doc_id, 0), ref_no, COALESCE(actor_id, 0), remarks, occurred_at FROM stock_ledger`
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ItemID != 0 {
		add("item_id=$%d", filter.ItemID)
	}
	if filter.WarehouseID != 0 {
		add("warehouse_id=$%d", filter.WarehouseID)
	}
	if filter.Operation != "" {
		add("operation=$%d", string(filter.Operation))
	}
	if filter.ActorID != 0 {
		add("actor_id=$%d", filter.ActorID)
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at <= $%d", filter.To)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stock: query ledger: %w", err)
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.WarehouseID, &e.Direction, &e.Quantity, &e.Operation, &e.Document.Type, &e.Document.ID, &e.RefNo, &e.ActorID, &e.Remarks, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (Balance, error) {
	var b Balance
	err := r.tx.QueryRow(ctx, `SELECT item_id, warehouse_id, qty, last_updated_at, COALESCE(last_updated_by, 0), remarks FROM stock_balances WHERE item_id=$1 AND warehouse_id=$2 FOR UPDATE`, itemID, warehouseID).
		Scan(&b.ItemID, &b.WarehouseID, &b.Quantity, &b.LastUpdatedAt, &b.LastUpdatedBy, &b.Remarks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ItemID: itemID, WarehouseID: warehouseID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (item_id, warehouse_id, qty, last_updated_at, last_updated_by, remarks)
VALUES ($1,$2,$3,NOW(),$4,$5)
ON CONFLICT (item_id, warehouse_id) DO UPDATE SET qty=EXCLUDED.qty, last_updated_at=NOW(), last_updated_by=EXCLUDED.last_updated_by, remarks=EXCLUDED.remarks`,
		balance.ItemID, balance.WarehouseID, balance.Quantity, nullInt(balance.LastUpdatedBy), balance.Remarks)
	return err
}

func (r *txRepository) AppendLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_ledger (item_id, warehouse_id, direction, qty, operation, doc_type, doc_id, ref_no, actor_id, remarks, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		entry.ItemID, entry.WarehouseID, string(entry.Direction), entry.Quantity, string(entry.Operation),
		nullString(string(entry.Document.Type)), nullInt(entry.Document.ID), entry.RefNo, nullInt(entry.ActorID), entry.Remarks, entry.OccurredAt).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
