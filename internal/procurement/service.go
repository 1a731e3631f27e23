package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockyard-erp/stockyard/internal/documents"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
	ListPOs(ctx context.Context) ([]PurchaseOrder, error)
	GetGRN(ctx context.Context, id int64) (GoodsReceipt, []GRNLine, error)
	ListGRNLinesByPO(ctx context.Context, poID int64) ([]GRNLine, error)
	ListReturnLinesByGRN(ctx context.Context, grnID int64) ([]PurchaseReturnLine, error)
}

// StockPort exposes the mutation engine operations procurement needs.
type StockPort interface {
	IncreaseStock(ctx context.Context, input stock.MovementInput) (stock.LedgerEntry, error)
	DecreaseStock(ctx context.Context, input stock.MovementInput) (stock.LedgerEntry, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards document posting against client retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates purchase orders, goods receipts and purchase returns.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, stockSvc StockPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, stock: stockSvc, audit: audit, idempotency: idem}
}

// LineInput is one (item, quantity) request line.
type LineInput struct {
	ItemID   int64
	Quantity int64
}

// CreatePOInput describes a purchase order creation payload.
type CreatePOInput struct {
	Number       string
	VendorID     int64
	WarehouseID  int64
	DeliveryDate time.Time
	Remarks      string
	ActorID      int64
	Lines        []LineInput
}

// CreateGRNInput describes a goods receipt payload. Number is the client's
// document number; retries carrying the same number are rejected as
// duplicates. Left empty, a number is generated and the posting is not
// retry-safe.
type CreateGRNInput struct {
	Number      string
	POID        int64
	WarehouseID int64
	Remarks     string
	ActorID     int64
	Lines       []LineInput
}

// CreateReturnInput describes a purchase return payload.
type CreateReturnInput struct {
	GRNID       int64
	WarehouseID int64
	Remarks     string
	ActorID     int64
	Lines       []LineInput
}

// CreatePurchaseOrder persists a PO header and its lines.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	if input.VendorID == 0 || input.WarehouseID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: vendor and warehouse required", ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:       input.Number,
		VendorID:     input.VendorID,
		WarehouseID:  input.WarehouseID,
		Status:       POStatusPending,
		DeliveryDate: input.DeliveryDate,
		Remarks:      input.Remarks,
		CreatedBy:    input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			if line.ItemID == 0 || line.Quantity <= 0 {
				return ErrValidation
			}
			if err := tx.InsertPOLine(ctx, POLine{POID: poID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		po.ID = poID
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "PO_CREATE", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// GetPurchaseOrder fetches a PO with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPurchaseOrders lists PO headers.
func (s *Service) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx)
}

// GetGoodsReceipt fetches a GRN with its lines.
func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, []GRNLine, error) {
	return s.repo.GetGRN(ctx, id)
}

// CreateGoodsReceipt runs the goods receipt workflow: resolve the PO, rescan
// prior receipts, validate every requested line against the remaining ordered
// quantity, persist the GRN, post one inbound stock movement per line, and
// recompute the PO status from the full receipt history.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input CreateGRNInput) (GoodsReceipt, error) {
	if input.WarehouseID == 0 {
		return GoodsReceipt{}, fmt.Errorf("%w: warehouse required", ErrValidation)
	}

	po, poLines, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return GoodsReceipt{}, fmt.Errorf("purchase order %d: %w", input.POID, documents.ErrSourceNotFound)
		}
		return GoodsReceipt{}, err
	}

	ordered := documents.SumLines(toDocLines(poLines, func(l POLine) (int64, int64) { return l.ItemID, l.Quantity }))
	prior, err := s.repo.ListGRNLinesByPO(ctx, po.ID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	consumed := documents.SumLines(toDocLines(prior, func(l GRNLine) (int64, int64) { return l.ItemID, l.Quantity }))

	requested := toDocLines(input.Lines, func(l LineInput) (int64, int64) { return l.ItemID, l.Quantity })
	if err := documents.ValidateLines(ordered, consumed, requested); err != nil {
		return GoodsReceipt{}, err
	}

	number := input.Number
	if number == "" {
		number = generateNumber("GRN")
	}
	grn := GoodsReceipt{
		Number:      number,
		POID:        po.ID,
		WarehouseID: input.WarehouseID,
		Remarks:     input.Remarks,
		CreatedBy:   input.ActorID,
		ReceivedAt:  time.Now().UTC(),
	}

	key := fmt.Sprintf("GRN:%s", grn.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.grn"); err != nil {
			return GoodsReceipt{}, err
		}
		inserted = true
	}

	// The document commits before any stock mutation so every ledger entry
	// can reference a durable GRN id.
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grnID, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID
		for _, line := range input.Lines {
			if err := tx.InsertGRNLine(ctx, GRNLine{GRNID: grnID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return GoodsReceipt{}, err
	}

	if err := s.applyMovements(ctx, grn.ID, input.Lines, func(line LineInput) (stock.LedgerEntry, error) {
		return s.stock.IncreaseStock(ctx, stock.MovementInput{
			ItemID:      line.ItemID,
			WarehouseID: input.WarehouseID,
			Quantity:    line.Quantity,
			Operation:   stock.OperationGoodsReceipt,
			Document:    stock.GoodsReceiptRef(grn.ID),
			ActorID:     input.ActorID,
			Remarks:     defaultString(input.Remarks, fmt.Sprintf("Received against PO %s", po.Number)),
		})
	}); err != nil {
		return GoodsReceipt{}, err
	}

	documents.AddConsumed(consumed, requested)
	if err := s.updatePOStatus(ctx, po.ID, ordered, consumed); err != nil {
		return GoodsReceipt{}, err
	}

	s.recordAudit(ctx, input.ActorID, "GRN_CREATE", grn.ID, map[string]any{"number": grn.Number, "po": po.Number})
	return grn, nil
}

// CreatePurchaseReturn runs the purchase return workflow against the
// originating goods receipt: received minus previously returned bounds each
// line, then stock is decreased per line.
func (s *Service) CreatePurchaseReturn(ctx context.Context, input CreateReturnInput) (PurchaseReturn, error) {
	grn, grnLines, err := s.repo.GetGRN(ctx, input.GRNID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PurchaseReturn{}, fmt.Errorf("goods receipt %d: %w", input.GRNID, documents.ErrSourceNotFound)
		}
		return PurchaseReturn{}, err
	}

	warehouseID := input.WarehouseID
	if warehouseID == 0 {
		warehouseID = grn.WarehouseID
	}

	received := documents.SumLines(toDocLines(grnLines, func(l GRNLine) (int64, int64) { return l.ItemID, l.Quantity }))
	prior, err := s.repo.ListReturnLinesByGRN(ctx, grn.ID)
	if err != nil {
		return PurchaseReturn{}, err
	}
	returned := documents.SumLines(toDocLines(prior, func(l PurchaseReturnLine) (int64, int64) { return l.ItemID, l.Quantity }))

	requested := toDocLines(input.Lines, func(l LineInput) (int64, int64) { return l.ItemID, l.Quantity })
	if err := documents.ValidateLines(received, returned, requested); err != nil {
		return PurchaseReturn{}, err
	}

	ret := PurchaseReturn{
		Number:      generateNumber("PRET"),
		GRNID:       grn.ID,
		WarehouseID: warehouseID,
		Remarks:     input.Remarks,
		CreatedBy:   input.ActorID,
		CreatedAt:   time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		retID, err := tx.CreatePurchaseReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = retID
		for _, line := range input.Lines {
			if err := tx.InsertReturnLine(ctx, PurchaseReturnLine{ReturnID: retID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseReturn{}, err
	}

	if err := s.applyMovements(ctx, ret.ID, input.Lines, func(line LineInput) (stock.LedgerEntry, error) {
		return s.stock.DecreaseStock(ctx, stock.MovementInput{
			ItemID:      line.ItemID,
			WarehouseID: warehouseID,
			Quantity:    line.Quantity,
			Operation:   stock.OperationPurchaseReturn,
			Document:    stock.PurchaseReturnRef(ret.ID),
			ActorID:     input.ActorID,
			Remarks:     defaultString(input.Remarks, fmt.Sprintf("Returned from GRN %s", grn.Number)),
		})
	}); err != nil {
		return PurchaseReturn{}, err
	}

	s.recordAudit(ctx, input.ActorID, "PRET_CREATE", ret.ID, map[string]any{"number": ret.Number, "grn": grn.Number})
	return ret, nil
}

// applyMovements invokes the mutation engine once per line in document order.
// Validation already passed for every line, so a mid-loop failure is a storage
// problem; the error names the failing line and how many lines were applied so
// the partial application can be reconciled, not hidden.
func (s *Service) applyMovements(ctx context.Context, docID int64, lines []LineInput, post func(LineInput) (stock.LedgerEntry, error)) error {
	for i, line := range lines {
		if _, err := post(line); err != nil {
			return fmt.Errorf("document %d line %d (item %d): stock mutation failed after %d of %d lines applied: %w",
				docID, i+1, line.ItemID, i, len(lines), err)
		}
	}
	return nil
}

func (s *Service) updatePOStatus(ctx context.Context, poID int64, ordered, consumed map[int64]int64) error {
	status := POStatusPending
	switch documents.RecomputeProgress(ordered, consumed) {
	case documents.ProgressComplete:
		status = POStatusReceived
	case documents.ProgressPartial:
		status = POStatusPartiallyReceived
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, poID, status)
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func toDocLines[T any](lines []T, extract func(T) (int64, int64)) []documents.Line {
	out := make([]documents.Line, 0, len(lines))
	for _, l := range lines {
		itemID, qty := extract(l)
		out = append(out, documents.Line{ItemID: itemID, Quantity: qty})
	}
	return out
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
