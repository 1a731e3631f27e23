package sales

import (
	"errors"
	"time"
)

// Sales order aggregate statuses driven by cumulative delivered quantities.
type SOStatus string

const (
	SOStatusPending            SOStatus = "Pending"
	SOStatusPartiallyDelivered SOStatus = "Partially Delivered"
	SOStatusCompleted          SOStatus = "Completed"
)

// SalesOrder is the source document delivery challans are validated against.
type SalesOrder struct {
	ID           int64
	Number       string
	CustomerID   int64
	WarehouseID  int64
	Status       SOStatus
	DeliveryDate time.Time
	Remarks      string
	CreatedBy    int64
	CreatedAt    time.Time
}

// SOLine is one ordered item of a sales order. Delivered accumulates across
// challans so the remaining deliverable quantity is Quantity-Delivered.
type SOLine struct {
	ID        int64
	SOID      int64
	ItemID    int64
	Quantity  int64
	Delivered int64
}

// DeliveryChallan records items shipped out against a sales order.
type DeliveryChallan struct {
	ID          int64
	Number      string
	SOID        int64
	WarehouseID int64
	Remarks     string
	CreatedBy   int64
	ShippedAt   time.Time
}

// ChallanLine is one shipped item of a delivery challan.
type ChallanLine struct {
	ID        int64
	ChallanID int64
	ItemID    int64
	Quantity  int64
}

// SalesInvoice bills a delivery challan. Invoicing is a paper operation with
// no stock effect; the goods already left with the challan.
type SalesInvoice struct {
	ID        int64
	Number    string
	ChallanID int64
	SOID      int64
	Remarks   string
	CreatedBy int64
	CreatedAt time.Time
}

// InvoiceLine is one billed item of a sales invoice.
type InvoiceLine struct {
	ID        int64
	InvoiceID int64
	ItemID    int64
	Quantity  int64
}

// SalesReturn records items the customer sent back against an invoice.
type SalesReturn struct {
	ID          int64
	Number      string
	InvoiceID   int64
	WarehouseID int64
	Remarks     string
	CreatedBy   int64
	CreatedAt   time.Time
}

// SalesReturnLine is one returned item of a sales return.
type SalesReturnLine struct {
	ID       int64
	ReturnID int64
	ItemID   int64
	Quantity int64
}

var (
	// ErrNotFound indicates a missing sales record.
	ErrNotFound = errors.New("sales: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("sales: invalid input")
	// ErrAlreadyInvoiced indicates the challan already has an invoice.
	ErrAlreadyInvoiced = errors.New("sales: challan already invoiced")
)
