package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/platform/db"
)

// Repository persists procurement documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) error
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error)
	InsertGRNLine(ctx context.Context, line GRNLine) error
	CreatePurchaseReturn(ctx context.Context, ret PurchaseReturn) (int64, error)
	InsertReturnLine(ctx context.Context, line PurchaseReturnLine) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetPO fetches a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	var po PurchaseOrder
	err := r.pool.QueryRow(ctx, `SELECT id, number, vendor_id, warehouse_id, status, delivery_date, remarks, COALESCE(created_by, 0), created_at
FROM purchase_orders WHERE id=$1`, id).
		Scan(&po.ID, &po.Number, &po.VendorID, &po.WarehouseID, &po.Status, &po.DeliveryDate, &po.Remarks, &po.CreatedBy, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrNotFound
		}
		return PurchaseOrder{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, po_id, item_id, qty FROM purchase_order_lines WHERE po_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ItemID, &line.Quantity); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return po, lines, rows.Err()
}

// ListPOs lists purchase order headers, newest first.
func (r *Repository) ListPOs(ctx context.Context) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, vendor_id, warehouse_id, status, delivery_date, remarks, COALESCE(created_by, 0), created_at
FROM purchase_orders ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pos := []PurchaseOrder{}
	for rows.Next() {
		var po PurchaseOrder
		if err := rows.Scan(&po.ID, &po.Number, &po.VendorID, &po.WarehouseID, &po.Status, &po.DeliveryDate, &po.Remarks, &po.CreatedBy, &po.CreatedAt); err != nil {
			return nil, err
		}
		pos = append(pos, po)
	}
	return pos, rows.Err()
}

// GetGRN fetches a goods receipt with its lines.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GoodsReceipt, []GRNLine, error) {
	var grn GoodsReceipt
	err := r.pool.QueryRow(ctx, `SELECT id, number, po_id, warehouse_id, remarks, COALESCE(created_by, 0), received_at
FROM goods_receipts WHERE id=$1`, id).
		Scan(&grn.ID, &grn.Number, &grn.POID, &grn.WarehouseID, &grn.Remarks, &grn.CreatedBy, &grn.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, nil, ErrNotFound
		}
		return GoodsReceipt{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, grn_id, item_id, qty FROM goods_receipt_lines WHERE grn_id=$1 ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	defer rows.Close()
	var lines []GRNLine
	for rows.Next() {
		var line GRNLine
		if err := rows.Scan(&line.ID, &line.GRNID, &line.ItemID, &line.Quantity); err != nil {
			return GoodsReceipt{}, nil, err
		}
		lines = append(lines, line)
	}
	return grn, lines, rows.Err()
}

// ListGRNLinesByPO returns every line of every goods receipt against one PO.
func (r *Repository) ListGRNLinesByPO(ctx context.Context, poID int64) ([]GRNLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.grn_id, l.item_id, l.qty
FROM goods_receipt_lines l
JOIN goods_receipts g ON g.id = l.grn_id
WHERE g.po_id=$1 ORDER BY l.id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []GRNLine{}
	for rows.Next() {
		var line GRNLine
		if err := rows.Scan(&line.ID, &line.GRNID, &line.ItemID, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListReturnLinesByGRN returns every line of every purchase return against one GRN.
func (r *Repository) ListReturnLinesByGRN(ctx context.Context, grnID int64) ([]PurchaseReturnLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.return_id, l.item_id, l.qty
FROM purchase_return_lines l
JOIN purchase_returns p ON p.id = l.return_id
WHERE p.grn_id=$1 ORDER BY l.id`, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []PurchaseReturnLine{}
	for rows.Next() {
		var line PurchaseReturnLine
		if err := rows.Scan(&line.ID, &line.ReturnID, &line.ItemID, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, vendor_id, warehouse_id, status, delivery_date, remarks, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		po.Number, po.VendorID, po.WarehouseID, string(po.Status), po.DeliveryDate, po.Remarks, nullInt(po.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPOLine(ctx context.Context, line POLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_lines (po_id, item_id, qty) VALUES ($1,$2,$3)`,
		line.POID, line.ItemID, line.Quantity)
	return err
}

func (r *txRepository) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (r *txRepository) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_id, warehouse_id, remarks, created_by, received_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		grn.Number, grn.POID, grn.WarehouseID, grn.Remarks, nullInt(grn.CreatedBy), grn.ReceivedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertGRNLine(ctx context.Context, line GRNLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO goods_receipt_lines (grn_id, item_id, qty) VALUES ($1,$2,$3)`,
		line.GRNID, line.ItemID, line.Quantity)
	return err
}

func (r *txRepository) CreatePurchaseReturn(ctx context.Context, ret PurchaseReturn) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_returns (number, grn_id, warehouse_id, remarks, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		ret.Number, ret.GRNID, ret.WarehouseID, ret.Remarks, nullInt(ret.CreatedBy), ret.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertReturnLine(ctx context.Context, line PurchaseReturnLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_return_lines (return_id, item_id, qty) VALUES ($1,$2,$3)`,
		line.ReturnID, line.ItemID, line.Quantity)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
