package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// RepositoryPort abstracts repository usage for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, itemID, warehouseID int64) (int64, error)
	ListBalances(ctx context.Context, itemID, warehouseID int64) ([]Balance, error)
	QueryLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the mutation engine: the sole writer of stock balances and the
// stock ledger. Every document workflow funnels its quantity changes through
// IncreaseStock and DecreaseStock.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// MovementInput describes one stock movement request.
type MovementInput struct {
	ItemID      int64
	WarehouseID int64
	Quantity    int64
	Operation   Operation
	Document    DocumentRef
	RefNo       string
	ActorID     int64
	Remarks     string
}

// TransferInput describes an inter-warehouse transfer request.
type TransferInput struct {
	ItemID          int64
	FromWarehouseID int64
	ToWarehouseID   int64
	Quantity        int64
	ActorID         int64
	Remarks         string
}

// AdjustmentType selects the direction of a manual adjustment.
type AdjustmentType string

const (
	AdjustmentIncrease AdjustmentType = "increase"
	AdjustmentDecrease AdjustmentType = "decrease"
)

// AdjustmentInput describes a manual stock adjustment.
type AdjustmentInput struct {
	ItemID      int64
	WarehouseID int64
	Type        AdjustmentType
	Quantity    int64
	ActorID     int64
	Remarks     string
}

// IncreaseStock adds quantity to an (item, warehouse) balance and appends the
// matching IN ledger entry in the same transaction. The balance row is created
// at zero on first touch.
func (s *Service) IncreaseStock(ctx context.Context, input MovementInput) (LedgerEntry, error) {
	return s.applyMovement(ctx, DirectionIn, input)
}

// DecreaseStock removes quantity from an (item, warehouse) balance and appends
// the matching OUT ledger entry. The read-validate-decrement sequence runs
// under a row lock so concurrent decrements cannot jointly overdraw the
// balance; an insufficient balance fails before any write.
func (s *Service) DecreaseStock(ctx context.Context, input MovementInput) (LedgerEntry, error) {
	return s.applyMovement(ctx, DirectionOut, input)
}

// TransferStock moves quantity between two warehouses as an OUT at the source
// followed by an IN at the destination. The two ledger entries share one
// correlation suffix in their reference numbers. The destination credit is
// only attempted after the source debit has committed; if the credit then
// fails, the error surfaces the partial debit for manual compensation.
func (s *Service) TransferStock(ctx context.Context, input TransferInput) (out LedgerEntry, in LedgerEntry, err error) {
	if input.FromWarehouseID == input.ToWarehouseID {
		return LedgerEntry{}, LedgerEntry{}, ErrInvalidTransfer
	}
	if input.Quantity <= 0 {
		return LedgerEntry{}, LedgerEntry{}, ErrInvalidQuantity
	}

	suffix := uuid.NewString()
	out, err = s.applyMovement(ctx, DirectionOut, MovementInput{
		ItemID:      input.ItemID,
		WarehouseID: input.FromWarehouseID,
		Quantity:    input.Quantity,
		Operation:   OperationTransferOut,
		RefNo:       fmt.Sprintf("TRF#%s-OUT", suffix),
		ActorID:     input.ActorID,
		Remarks:     transferRemark("Transferred to warehouse", input.ToWarehouseID, input.Remarks),
	})
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}

	in, err = s.applyMovement(ctx, DirectionIn, MovementInput{
		ItemID:      input.ItemID,
		WarehouseID: input.ToWarehouseID,
		Quantity:    input.Quantity,
		Operation:   OperationTransferIn,
		RefNo:       fmt.Sprintf("TRF#%s-IN", suffix),
		ActorID:     input.ActorID,
		Remarks:     transferRemark("Received from warehouse", input.FromWarehouseID, input.Remarks),
	})
	if err != nil {
		return out, LedgerEntry{}, fmt.Errorf("stock: transfer credit to warehouse %d failed after debiting %d from warehouse %d (ref %s): %w",
			input.ToWarehouseID, input.Quantity, input.FromWarehouseID, out.RefNo, err)
	}
	return out, in, nil
}

// PostAdjustment applies a manual stock correction in either direction.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (LedgerEntry, error) {
	movement := MovementInput{
		ItemID:      input.ItemID,
		WarehouseID: input.WarehouseID,
		Quantity:    input.Quantity,
		Operation:   OperationStockAdjustment,
		ActorID:     input.ActorID,
		Remarks:     input.Remarks,
	}
	switch input.Type {
	case AdjustmentIncrease:
		return s.applyMovement(ctx, DirectionIn, movement)
	case AdjustmentDecrease:
		return s.applyMovement(ctx, DirectionOut, movement)
	default:
		return LedgerEntry{}, fmt.Errorf("stock: invalid adjustment type %q", input.Type)
	}
}

// GetBalance returns the current quantity for an (item, warehouse) pair,
// zero when the pair has never been touched.
func (s *Service) GetBalance(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	if itemID == 0 || warehouseID == 0 {
		return 0, errors.New("stock: item and warehouse required")
	}
	return s.repo.GetBalance(ctx, itemID, warehouseID)
}

// ListBalances lists balance rows, optionally filtered by item or warehouse.
func (s *Service) ListBalances(ctx context.Context, itemID, warehouseID int64) ([]Balance, error) {
	return s.repo.ListBalances(ctx, itemID, warehouseID)
}

// QueryLedger lists ledger entries matching the filter, newest first. The
// ledger feeds audit and reporting only; no mutation path reads it.
func (s *Service) QueryLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	return s.repo.QueryLedger(ctx, filter)
}

func (s *Service) applyMovement(ctx context.Context, direction Direction, input MovementInput) (LedgerEntry, error) {
	if input.Quantity <= 0 {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	if input.ItemID == 0 || input.WarehouseID == 0 {
		return LedgerEntry{}, errors.New("stock: item and warehouse required")
	}
	if input.Operation == "" {
		input.Operation = OperationManual
	}

	now := time.Now().UTC()
	refNo := input.RefNo
	if refNo == "" {
		refNo = input.Document.RefNo()
	}
	if refNo == "" {
		refNo = fmt.Sprintf("REF-%d", now.UnixNano())
	}

	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.ItemID, input.WarehouseID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}

		newQty := balance.Quantity
		switch direction {
		case DirectionIn:
			newQty += input.Quantity
		case DirectionOut:
			if balance.Quantity < input.Quantity {
				return fmt.Errorf("%w: item %d in warehouse %d: requested %d, available %d",
					ErrInsufficientStock, input.ItemID, input.WarehouseID, input.Quantity, balance.Quantity)
			}
			newQty -= input.Quantity
		default:
			return fmt.Errorf("stock: invalid direction %q", direction)
		}

		balance.Quantity = newQty
		balance.LastUpdatedBy = input.ActorID
		if input.Remarks != "" {
			balance.Remarks = input.Remarks
		}
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}

		entry = LedgerEntry{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Direction:   direction,
			Quantity:    input.Quantity,
			Operation:   input.Operation,
			Document:    input.Document,
			RefNo:       refNo,
			ActorID:     input.ActorID,
			Remarks:     input.Remarks,
			OccurredAt:  now,
		}
		id, err := tx.AppendLedgerEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	if err != nil {
		return LedgerEntry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("stock:%s", direction),
			Entity:   "stock_ledger",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"item_id":      input.ItemID,
				"warehouse_id": input.WarehouseID,
				"qty":          input.Quantity,
				"operation":    string(input.Operation),
				"ref_no":       refNo,
			},
		})
	}
	return entry, nil
}

func transferRemark(prefix string, warehouseID int64, remarks string) string {
	if remarks == "" {
		return fmt.Sprintf("%s %d", prefix, warehouseID)
	}
	return fmt.Sprintf("%s %d: %s", prefix, warehouseID, remarks)
}
