package sales

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
	GetSO(ctx context.Context, id int64) (SalesOrder, []SOLine, error)
	ListSOs(ctx context.Context, onlyOpen bool) ([]SalesOrder, error)
	GetChallan(ctx context.Context, id int64) (DeliveryChallan, []ChallanLine, error)
	GetInvoice(ctx context.Context, id int64) (SalesInvoice, []InvoiceLine, error)
	InvoiceExistsForChallan(ctx context.Context, challanID int64) (bool, error)
	ListReturnLinesByInvoice(ctx context.Context, invoiceID int64) ([]SalesReturnLine, error)
}

// StockPort exposes the mutation engine operations sales needs.
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

// Service orchestrates sales orders, delivery challans, invoices and returns.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, stockSvc StockPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, stock: stockSvc, audit: audit, idempotency: idem}
}

// LineInput is one (item, quantity) request line.
type LineInput struct {
	ItemID   int64
	Quantity int64
}

// CreateSOInput describes a sales order creation payload.
type CreateSOInput struct {
	Number       string
	CustomerID   int64
	WarehouseID  int64
	DeliveryDate time.Time
	Remarks      string
	ActorID      int64
	Lines        []LineInput
}

// CreateChallanInput describes a delivery challan payload. Number is the
// client's document number; retries carrying the same number are rejected as
// duplicates. Left empty, a number is generated and the posting is not
// retry-safe.
type CreateChallanInput struct {
	Number      string
	SOID        int64
	WarehouseID int64
	Remarks     string
	ActorID     int64
	Lines       []LineInput
}

// CreateInvoiceInput describes an invoice creation payload.
type CreateInvoiceInput struct {
	ChallanID int64
	Remarks   string
	ActorID   int64
}

// CreateReturnInput describes a sales return payload.
type CreateReturnInput struct {
	InvoiceID   int64
	WarehouseID int64
	Remarks     string
	ActorID     int64
	Lines       []LineInput
}

// CreateSalesOrder persists an SO header and its lines. Lines repeating an
// item are merged into one row; delivered quantities accumulate per item, so
// a split line would double-count every delivery against it.
func (s *Service) CreateSalesOrder(ctx context.Context, input CreateSOInput) (SalesOrder, error) {
	if len(input.Lines) == 0 {
		return SalesOrder{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	if input.CustomerID == 0 || input.WarehouseID == 0 {
		return SalesOrder{}, fmt.Errorf("%w: customer and warehouse required", ErrValidation)
	}
	lines, err := mergeLines(input.Lines)
	if err != nil {
		return SalesOrder{}, err
	}
	if input.Number == "" {
		input.Number = generateNumber("SO")
	}
	so := SalesOrder{
		Number:       input.Number,
		CustomerID:   input.CustomerID,
		WarehouseID:  input.WarehouseID,
		Status:       SOStatusPending,
		DeliveryDate: input.DeliveryDate,
		Remarks:      input.Remarks,
		CreatedBy:    input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		soID, err := tx.CreateSO(ctx, so)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.InsertSOLine(ctx, SOLine{SOID: soID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		so.ID = soID
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "SO_CREATE", so.ID, map[string]any{"number": so.Number})
	return so, nil
}

// GetSalesOrder fetches an SO with its lines.
func (s *Service) GetSalesOrder(ctx context.Context, id int64) (SalesOrder, []SOLine, error) {
	return s.repo.GetSO(ctx, id)
}

// ListSalesOrders lists SO headers.
func (s *Service) ListSalesOrders(ctx context.Context) ([]SalesOrder, error) {
	return s.repo.ListSOs(ctx, false)
}

// ListUndelivered lists SOs still awaiting full delivery.
func (s *Service) ListUndelivered(ctx context.Context) ([]SalesOrder, error) {
	return s.repo.ListSOs(ctx, true)
}

// GetDeliveryChallan fetches a challan with its lines.
func (s *Service) GetDeliveryChallan(ctx context.Context, id int64) (DeliveryChallan, []ChallanLine, error) {
	return s.repo.GetChallan(ctx, id)
}

// GetSalesInvoice fetches an invoice with its lines.
func (s *Service) GetSalesInvoice(ctx context.Context, id int64) (SalesInvoice, []InvoiceLine, error) {
	return s.repo.GetInvoice(ctx, id)
}

// CreateDeliveryChallan runs the delivery workflow: resolve the SO, validate
// every requested line against the remaining undelivered quantity, persist the
// challan, post one outbound stock movement per line, then fold the shipped
// quantities back into the SO lines and status.
func (s *Service) CreateDeliveryChallan(ctx context.Context, input CreateChallanInput) (DeliveryChallan, error) {
	so, soLines, err := s.repo.GetSO(ctx, input.SOID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeliveryChallan{}, fmt.Errorf("sales order %d: %w", input.SOID, documents.ErrSourceNotFound)
		}
		return DeliveryChallan{}, err
	}

	warehouseID := input.WarehouseID
	if warehouseID == 0 {
		warehouseID = so.WarehouseID
	}

	ordered := make(map[int64]int64, len(soLines))
	delivered := make(map[int64]int64, len(soLines))
	for _, l := range soLines {
		ordered[l.ItemID] += l.Quantity
		delivered[l.ItemID] += l.Delivered
	}
	requested := toDocLines(input.Lines)
	if err := documents.ValidateLines(ordered, delivered, requested); err != nil {
		return DeliveryChallan{}, err
	}

	number := input.Number
	if number == "" {
		number = generateNumber("DC")
	}
	dc := DeliveryChallan{
		Number:      number,
		SOID:        so.ID,
		WarehouseID: warehouseID,
		Remarks:     input.Remarks,
		CreatedBy:   input.ActorID,
		ShippedAt:   time.Now().UTC(),
	}

	key := fmt.Sprintf("DC:%s", dc.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "sales.challan"); err != nil {
			return DeliveryChallan{}, err
		}
		inserted = true
	}

	// The challan commits before any stock mutation so every ledger entry
	// can reference a durable challan id.
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		dcID, err := tx.CreateChallan(ctx, dc)
		if err != nil {
			return err
		}
		dc.ID = dcID
		for _, line := range input.Lines {
			if err := tx.InsertChallanLine(ctx, ChallanLine{ChallanID: dcID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return DeliveryChallan{}, err
	}

	if err := s.applyMovements(ctx, dc.ID, input.Lines, func(line LineInput) (stock.LedgerEntry, error) {
		return s.stock.DecreaseStock(ctx, stock.MovementInput{
			ItemID:      line.ItemID,
			WarehouseID: warehouseID,
			Quantity:    line.Quantity,
			Operation:   stock.OperationDeliveryChallan,
			Document:    stock.DeliveryChallanRef(dc.ID),
			ActorID:     input.ActorID,
			Remarks:     defaultString(input.Remarks, fmt.Sprintf("Delivered against SO %s", so.Number)),
		})
	}); err != nil {
		return DeliveryChallan{}, err
	}

	documents.AddConsumed(delivered, requested)
	status := SOStatusPending
	switch documents.RecomputeProgress(ordered, delivered) {
	case documents.ProgressComplete:
		status = SOStatusCompleted
	case documents.ProgressPartial:
		status = SOStatusPartiallyDelivered
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Lines {
			if err := tx.AddDelivered(ctx, so.ID, line.ItemID, line.Quantity); err != nil {
				return err
			}
		}
		return tx.UpdateSOStatus(ctx, so.ID, status)
	})
	if err != nil {
		return DeliveryChallan{}, err
	}

	s.recordAudit(ctx, input.ActorID, "DC_CREATE", dc.ID, map[string]any{"number": dc.Number, "so": so.Number})
	return dc, nil
}

// CreateInvoiceFromChallan bills a delivery challan. The invoice copies the
// challan lines verbatim and moves no stock; the goods already left with the
// challan. A challan can be invoiced at most once.
func (s *Service) CreateInvoiceFromChallan(ctx context.Context, input CreateInvoiceInput) (SalesInvoice, error) {
	dc, dcLines, err := s.repo.GetChallan(ctx, input.ChallanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SalesInvoice{}, fmt.Errorf("delivery challan %d: %w", input.ChallanID, documents.ErrSourceNotFound)
		}
		return SalesInvoice{}, err
	}
	exists, err := s.repo.InvoiceExistsForChallan(ctx, dc.ID)
	if err != nil {
		return SalesInvoice{}, err
	}
	if exists {
		return SalesInvoice{}, fmt.Errorf("delivery challan %d: %w", dc.ID, ErrAlreadyInvoiced)
	}

	inv := SalesInvoice{
		Number:    generateNumber("INV"),
		ChallanID: dc.ID,
		SOID:      dc.SOID,
		Remarks:   input.Remarks,
		CreatedBy: input.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invID, err := tx.CreateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = invID
		for _, line := range dcLines {
			if err := tx.InsertInvoiceLine(ctx, InvoiceLine{InvoiceID: invID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SalesInvoice{}, err
	}
	s.recordAudit(ctx, input.ActorID, "INV_CREATE", inv.ID, map[string]any{"number": inv.Number, "challan": dc.Number})
	return inv, nil
}

// CreateSalesReturn runs the sales return workflow against the originating
// invoice: invoiced minus previously returned bounds each line, then stock is
// increased per line at the warehouse the goods come back to.
func (s *Service) CreateSalesReturn(ctx context.Context, input CreateReturnInput) (SalesReturn, error) {
	inv, invLines, err := s.repo.GetInvoice(ctx, input.InvoiceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SalesReturn{}, fmt.Errorf("sales invoice %d: %w", input.InvoiceID, documents.ErrSourceNotFound)
		}
		return SalesReturn{}, err
	}

	warehouseID := input.WarehouseID
	if warehouseID == 0 {
		dc, _, err := s.repo.GetChallan(ctx, inv.ChallanID)
		if err != nil {
			return SalesReturn{}, err
		}
		warehouseID = dc.WarehouseID
	}

	invoiced := make(map[int64]int64, len(invLines))
	for _, l := range invLines {
		invoiced[l.ItemID] += l.Quantity
	}
	prior, err := s.repo.ListReturnLinesByInvoice(ctx, inv.ID)
	if err != nil {
		return SalesReturn{}, err
	}
	returned := make(map[int64]int64, len(prior))
	for _, l := range prior {
		returned[l.ItemID] += l.Quantity
	}

	requested := toDocLines(input.Lines)
	if err := documents.ValidateLines(invoiced, returned, requested); err != nil {
		return SalesReturn{}, err
	}

	ret := SalesReturn{
		Number:      generateNumber("SRET"),
		InvoiceID:   inv.ID,
		WarehouseID: warehouseID,
		Remarks:     input.Remarks,
		CreatedBy:   input.ActorID,
		CreatedAt:   time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		retID, err := tx.CreateSalesReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = retID
		for _, line := range input.Lines {
			if err := tx.InsertReturnLine(ctx, SalesReturnLine{ReturnID: retID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SalesReturn{}, err
	}

	if err := s.applyMovements(ctx, ret.ID, input.Lines, func(line LineInput) (stock.LedgerEntry, error) {
		return s.stock.IncreaseStock(ctx, stock.MovementInput{
			ItemID:      line.ItemID,
			WarehouseID: warehouseID,
			Quantity:    line.Quantity,
			Operation:   stock.OperationSalesReturn,
			Document:    stock.SalesReturnRef(ret.ID),
			ActorID:     input.ActorID,
			Remarks:     defaultString(input.Remarks, fmt.Sprintf("Returned against invoice %s", inv.Number)),
		})
	}); err != nil {
		return SalesReturn{}, err
	}

	s.recordAudit(ctx, input.ActorID, "SRET_CREATE", ret.ID, map[string]any{"number": ret.Number, "invoice": inv.Number})
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

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "sales", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

// mergeLines folds lines repeating an item into one, keeping first-seen
// order, and rejects zero items and non-positive quantities.
func mergeLines(lines []LineInput) ([]LineInput, error) {
	merged := make([]LineInput, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.ItemID == 0 || line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: every line needs an item and a positive quantity", ErrValidation)
		}
		if i, ok := index[line.ItemID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func toDocLines(lines []LineInput) []documents.Line {
	out := make([]documents.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, documents.Line{ItemID: l.ItemID, Quantity: l.Quantity})
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
