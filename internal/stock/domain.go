// Package stock implements the stock ledger and quantity-mutation engine:
// per-(item, warehouse) balances, the append-only movement ledger, and the
// single choke point through which every quantity change flows.
package stock

import (
	"errors"
	"fmt"
	"time"
)

// Direction marks the flow of a ledger entry.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "IN"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "OUT"
)

// Operation enumerates the business operations that move stock.
type Operation string

const (
	OperationGoodsReceipt    Operation = "GRN"
	OperationDeliveryChallan Operation = "Delivery Challan"
	OperationSalesReturn     Operation = "Sales Return"
	OperationPurchaseReturn  Operation = "Purchase Return"
	OperationStockAdjustment Operation = "Stock Adjustment"
	OperationTransferIn      Operation = "Transfer IN"
	OperationTransferOut     Operation = "Transfer OUT"
	OperationManual          Operation = "Manual"
)

// DocumentType tags the kind of business document behind a ledger entry.
type DocumentType string

const (
	DocumentGoodsReceipt    DocumentType = "GRN"
	DocumentDeliveryChallan DocumentType = "DC"
	DocumentPurchaseReturn  DocumentType = "PRET"
	DocumentSalesReturn     DocumentType = "SRET"
	DocumentAdjustment      DocumentType = "ADJ"
	DocumentTransfer        DocumentType = "TRF"
)

// DocumentRef is a typed reference to the originating business document.
// The zero value means an ad-hoc manual movement without a source document.
type DocumentRef struct {
	Type DocumentType
	ID   int64
}

// GoodsReceiptRef builds a reference to a goods receipt note.
func GoodsReceiptRef(id int64) DocumentRef { return DocumentRef{Type: DocumentGoodsReceipt, ID: id} }

// DeliveryChallanRef builds a reference to a delivery challan.
func DeliveryChallanRef(id int64) DocumentRef {
	return DocumentRef{Type: DocumentDeliveryChallan, ID: id}
}

// PurchaseReturnRef builds a reference to a purchase return.
func PurchaseReturnRef(id int64) DocumentRef { return DocumentRef{Type: DocumentPurchaseReturn, ID: id} }

// SalesReturnRef builds a reference to a sales return.
func SalesReturnRef(id int64) DocumentRef { return DocumentRef{Type: DocumentSalesReturn, ID: id} }

// AdjustmentRef builds a reference to a stock adjustment.
func AdjustmentRef(id int64) DocumentRef { return DocumentRef{Type: DocumentAdjustment, ID: id} }

// IsZero reports whether the reference points at no document.
func (r DocumentRef) IsZero() bool {
	return r.Type == "" && r.ID == 0
}

// RefNo derives the human-readable reference, e.g. "GRN#42".
func (r DocumentRef) RefNo() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s#%d", r.Type, r.ID)
}

// Balance is the current on-hand quantity of an item in one warehouse.
// Rows spring into existence at quantity zero on first mutation and are
// written exclusively by the mutation engine.
type Balance struct {
	ItemID        int64
	WarehouseID   int64
	Quantity      int64
	LastUpdatedAt time.Time
	LastUpdatedBy int64
	Remarks       string
}

// LedgerEntry is one immutable row of the stock movement audit trail.
type LedgerEntry struct {
	ID          int64
	ItemID      int64
	WarehouseID int64
	Direction   Direction
	Quantity    int64
	Operation   Operation
	Document    DocumentRef
	RefNo       string
	ActorID     int64
	Remarks     string
	OccurredAt  time.Time
}

// LedgerFilter narrows ledger queries. Zero fields are ignored.
type LedgerFilter struct {
	ItemID      int64
	WarehouseID int64
	Operation   Operation
	ActorID     int64
	From        time.Time
	To          time.Time
	Limit       int
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity request.
	ErrInvalidQuantity = errors.New("stock: quantity must be a positive integer")
	// ErrInsufficientStock indicates a decrement that would drive a balance negative.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrInvalidTransfer indicates a same-warehouse transfer request.
	ErrInvalidTransfer = errors.New("stock: source and destination warehouse must differ")
)
