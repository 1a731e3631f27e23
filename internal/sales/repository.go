package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/platform/db"
)

// Repository persists sales documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	CreateSO(ctx context.Context, so SalesOrder) (int64, error)
	InsertSOLine(ctx context.Context, line SOLine) error
	AddDelivered(ctx context.Context, soID, itemID, qty int64) error
	UpdateSOStatus(ctx context.Context, id int64, status SOStatus) error
	CreateChallan(ctx context.Context, dc DeliveryChallan) (int64, error)
	InsertChallanLine(ctx context.Context, line ChallanLine) error
	CreateInvoice(ctx context.Context, inv SalesInvoice) (int64, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) error
	CreateSalesReturn(ctx context.Context, ret SalesReturn) (int64, error)
	InsertReturnLine(ctx context.Context, line SalesReturnLine) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetSO fetches a sales order with its lines.
func (r *Repository) GetSO(ctx context.Context, id int64) (SalesOrder, []SOLine, error) {
	var so SalesOrder
	err := r.pool.QueryRow(ctx, `SELECT id, number, customer_id, warehouse_id, status, delivery_date, remarks, COALESCE(created_by, 0), created_at
FROM sales_orders WHERE id=$1`, id).
		Scan(&so.ID, &so.Number, &so.CustomerID, &so.WarehouseID, &so.Status, &so.DeliveryDate, &so.Remarks, &so.CreatedBy, &so.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, nil, ErrNotFound
		}
		return SalesOrder{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, so_id, item_id, qty, delivered_qty FROM sales_order_lines WHERE so_id=$1 ORDER BY id`, id)
	if err != nil {
		return SalesOrder{}, nil, err
	}
	defer rows.Close()
	var lines []SOLine
	for rows.Next() {
		var line SOLine
		if err := rows.Scan(&line.ID, &line.SOID, &line.ItemID, &line.Quantity, &line.Delivered); err != nil {
			return SalesOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return so, lines, rows.Err()
}

// ListSOs lists sales order headers, newest first. With onlyOpen set, only
// orders still awaiting delivery are returned.
func (r *Repository) ListSOs(ctx context.Context, onlyOpen bool) ([]SalesOrder, error) {
	query := `SELECT id, number, customer_id, warehouse_id, status, delivery_date, remarks, COALESCE(created_by, 0), created_at
FROM sales_orders`
	if onlyOpen {
		query += ` WHERE status <> 'Completed'`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sos := []SalesOrder{}
	for rows.Next() {
		var so SalesOrder
		if err := rows.Scan(&so.ID, &so.Number, &so.CustomerID, &so.WarehouseID, &so.Status, &so.DeliveryDate, &so.Remarks, &so.CreatedBy, &so.CreatedAt); err != nil {
			return nil, err
		}
		sos = append(sos, so)
	}
	return sos, rows.Err()
}

// GetChallan fetches a delivery challan with its lines.
func (r *Repository) GetChallan(ctx context.Context, id int64) (DeliveryChallan, []ChallanLine, error) {
	var dc DeliveryChallan
	err := r.pool.QueryRow(ctx, `SELECT id, number, so_id, warehouse_id, remarks, COALESCE(created_by, 0), shipped_at
FROM delivery_challans WHERE id=$1`, id).
		Scan(&dc.ID, &dc.Number, &dc.SOID, &dc.WarehouseID, &dc.Remarks, &dc.CreatedBy, &dc.ShippedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliveryChallan{}, nil, ErrNotFound
		}
		return DeliveryChallan{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, challan_id, item_id, qty FROM delivery_challan_lines WHERE challan_id=$1 ORDER BY id`, id)
	if err != nil {
		return DeliveryChallan{}, nil, err
	}
	defer rows.Close()
	var lines []ChallanLine
	for rows.Next() {
		var line ChallanLine
		if err := rows.Scan(&line.ID, &line.ChallanID, &line.ItemID, &line.Quantity); err != nil {
			return DeliveryChallan{}, nil, err
		}
		lines = append(lines, line)
	}
	return dc, lines, rows.Err()
}

// GetInvoice fetches a sales invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (SalesInvoice, []InvoiceLine, error) {
	var inv SalesInvoice
	err := r.pool.QueryRow(ctx, `SELECT id, number, challan_id, so_id, remarks, COALESCE(created_by, 0), created_at
FROM sales_invoices WHERE id=$1`, id).
		Scan(&inv.ID, &inv.Number, &inv.ChallanID, &inv.SOID, &inv.Remarks, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesInvoice{}, nil, ErrNotFound
		}
		return SalesInvoice{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, item_id, qty FROM sales_invoice_lines WHERE invoice_id=$1 ORDER BY id`, id)
	if err != nil {
		return SalesInvoice{}, nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ItemID, &line.Quantity); err != nil {
			return SalesInvoice{}, nil, err
		}
		lines = append(lines, line)
	}
	return inv, lines, rows.Err()
}

// InvoiceExistsForChallan reports whether a challan already has an invoice.
func (r *Repository) InvoiceExistsForChallan(ctx context.Context, challanID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales_invoices WHERE challan_id=$1)`, challanID).Scan(&exists)
	return exists, err
}

// ListReturnLinesByInvoice returns every line of every sales return against one invoice.
func (r *Repository) ListReturnLinesByInvoice(ctx context.Context, invoiceID int64) ([]SalesReturnLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.return_id, l.item_id, l.qty
FROM sales_return_lines l
JOIN sales_returns s ON s.id = l.return_id
WHERE s.invoice_id=$1 ORDER BY l.id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []SalesReturnLine{}
	for rows.Next() {
		var line SalesReturnLine
		if err := rows.Scan(&line.ID, &line.ReturnID, &line.ItemID, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) CreateSO(ctx context.Context, so SalesOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_orders (number, customer_id, warehouse_id, status, delivery_date, remarks, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		so.Number, so.CustomerID, so.WarehouseID, string(so.Status), so.DeliveryDate, so.Remarks, nullInt(so.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertSOLine(ctx context.Context, line SOLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sales_order_lines (so_id, item_id, qty, delivered_qty) VALUES ($1,$2,$3,0)`,
		line.SOID, line.ItemID, line.Quantity)
	return err
}

// AddDelivered credits a shipped quantity to the SO line for the item. Order
// creation merges repeated items into one line, so the match is unique.
func (r *txRepository) AddDelivered(ctx context.Context, soID, itemID, qty int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_lines SET delivered_qty = delivered_qty + $3 WHERE so_id=$1 AND item_id=$2`,
		soID, itemID, qty)
	return err
}

func (r *txRepository) UpdateSOStatus(ctx context.Context, id int64, status SOStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_orders SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (r *txRepository) CreateChallan(ctx context.Context, dc DeliveryChallan) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO delivery_challans (number, so_id, warehouse_id, remarks, created_by, shipped_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		dc.Number, dc.SOID, dc.WarehouseID, dc.Remarks, nullInt(dc.CreatedBy), dc.ShippedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertChallanLine(ctx context.Context, line ChallanLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO delivery_challan_lines (challan_id, item_id, qty) VALUES ($1,$2,$3)`,
		line.ChallanID, line.ItemID, line.Quantity)
	return err
}

func (r *txRepository) CreateInvoice(ctx context.Context, inv SalesInvoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoices (number, challan_id, so_id, remarks, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		inv.Number, inv.ChallanID, inv.SOID, inv.Remarks, nullInt(inv.CreatedBy), inv.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertInvoiceLine(ctx context.Context, line InvoiceLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sales_invoice_lines (invoice_id, item_id, qty) VALUES ($1,$2,$3)`,
		line.InvoiceID, line.ItemID, line.Quantity)
	return err
}

func (r *txRepository) CreateSalesReturn(ctx context.Context, ret SalesReturn) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_returns (number, invoice_id, warehouse_id, remarks, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		ret.Number, ret.InvoiceID, ret.WarehouseID, ret.Remarks, nullInt(ret.CreatedBy), ret.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertReturnLine(ctx context.Context, line SalesReturnLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sales_return_lines (return_id, item_id, qty) VALUES ($1,$2,$3)`,
		line.ReturnID, line.ItemID, line.Quantity)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
