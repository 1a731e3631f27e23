package procurement

import (
	"errors"
	"time"
)

// Purchase order aggregate statuses driven by cumulative received quantities.
type POStatus string

const (
	POStatusPending           POStatus = "Pending"
	POStatusPartiallyReceived POStatus = "Partially Received"
	POStatusReceived          POStatus = "Received"
)

// PurchaseOrder is the source document goods receipts are validated against.
// Immutable once created; corrections happen via returns, not edits.
type PurchaseOrder struct {
	ID           int64
	Number       string
	VendorID     int64
	WarehouseID  int64
	Status       POStatus
	DeliveryDate time.Time
	Remarks      string
	CreatedBy    int64
	CreatedAt    time.Time
}

// POLine is one ordered item of a purchase order.
type POLine struct {
	ID       int64
	POID     int64
	ItemID   int64
	Quantity int64
}

// GoodsReceipt records items physically received against a purchase order.
type GoodsReceipt struct {
	ID          int64
	Number      string
	POID        int64
	WarehouseID int64
	Remarks     string
	CreatedBy   int64
	ReceivedAt  time.Time
}

// GRNLine is one received item of a goods receipt.
type GRNLine struct {
	ID       int64
	GRNID    int64
	ItemID   int64
	Quantity int64
}

// PurchaseReturn records items sent back to the vendor against a goods receipt.
type PurchaseReturn struct {
	ID          int64
	Number      string
	GRNID       int64
	WarehouseID int64
	Remarks     string
	CreatedBy   int64
	CreatedAt   time.Time
}

// PurchaseReturnLine is one returned item of a purchase return.
type PurchaseReturnLine struct {
	ID       int64
	ReturnID int64
	ItemID   int64
	Quantity int64
}

var (
	// ErrNotFound indicates a missing procurement record.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)
