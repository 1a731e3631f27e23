// Package documents holds the quantity-reconciliation helpers shared by every
// document workflow: computing how much of a source document has already been
// consumed by dependent documents, validating a new request against the
// remainder, and recomputing the source document's aggregate status.
package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound indicates the referenced source document is missing.
	ErrSourceNotFound = errors.New("documents: source document not found")
	// ErrItemNotInSource indicates a requested item absent from the source document.
	ErrItemNotInSource = errors.New("documents: item not in source document")
	// ErrExceedsAvailable indicates a requested quantity above the remaining allowance.
	ErrExceedsAvailable = errors.New("documents: quantity exceeds remaining allowance")
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = errors.New("documents: line quantity must be a positive integer")
	// ErrEmptyLines indicates a document without lines.
	ErrEmptyLines = errors.New("documents: at least one line is required")
)

// Line is one (item, quantity) pair of a business document.
type Line struct {
	ItemID   int64
	Quantity int64
}

// SumLines aggregates lines into per-item totals.
func SumLines(lines []Line) map[int64]int64 {
	totals := make(map[int64]int64, len(lines))
	for _, line := range lines {
		totals[line.ItemID] += line.Quantity
	}
	return totals
}

// AddConsumed accumulates lines of one dependent document into a running
// per-item consumption map. Callers rescan every prior dependent document
// rather than keeping incremental counters.
func AddConsumed(consumed map[int64]int64, lines []Line) {
	for _, line := range lines {
		consumed[line.ItemID] += line.Quantity
	}
}

// ValidateLines checks every requested line against the source document's
// ordered quantities minus what prior dependent documents already consumed.
// It validates all lines before the caller performs any stock mutation;
// repeated items within one request draw down the same remaining allowance.
func ValidateLines(ordered, consumed map[int64]int64, requested []Line) error {
	if len(requested) == 0 {
		return ErrEmptyLines
	}
	pending := make(map[int64]int64, len(requested))
	for i, line := range requested {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d (item %d): %w", i+1, line.ItemID, ErrInvalidQuantity)
		}
		orderedQty, ok := ordered[line.ItemID]
		if !ok {
			return fmt.Errorf("line %d (item %d): %w", i+1, line.ItemID, ErrItemNotInSource)
		}
		remaining := orderedQty - consumed[line.ItemID] - pending[line.ItemID]
		if line.Quantity > remaining {
			if remaining < 0 {
				remaining = 0
			}
			return fmt.Errorf("line %d (item %d): requested %d with %d remaining: %w",
				i+1, line.ItemID, line.Quantity, remaining, ErrExceedsAvailable)
		}
		pending[line.ItemID] += line.Quantity
	}
	return nil
}

// Progress describes how far a source document has been consumed.
type Progress string

const (
	// ProgressNone means no dependent document consumed anything yet.
	ProgressNone Progress = "NONE"
	// ProgressPartial means some but not all lines are fully consumed.
	ProgressPartial Progress = "PARTIAL"
	// ProgressComplete means every line is fully consumed.
	ProgressComplete Progress = "COMPLETE"
)

// RecomputeProgress derives the aggregate progress of a source document from
// ordered versus consumed quantities. It is a pure function re-run after
// every dependent-document creation; a document is complete only when every
// line is consumed in full.
func RecomputeProgress(ordered, consumed map[int64]int64) Progress {
	if len(ordered) == 0 {
		return ProgressNone
	}
	anyConsumed := false
	allComplete := true
	for itemID, orderedQty := range ordered {
		got := consumed[itemID]
		if got > 0 {
			anyConsumed = true
		}
		if got < orderedQty {
			allComplete = false
		}
	}
	if allComplete {
		return ProgressComplete
	}
	if anyConsumed {
		return ProgressPartial
	}
	return ProgressNone
}
