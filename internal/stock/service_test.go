package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	balances map[string]Balance
	ledger   []LedgerEntry
	nextID   int64

	// failAppendWarehouse makes ledger appends for that warehouse fail,
	// simulating a storage error on one side of a transfer.
	failAppendWarehouse int64
}

type memoryTx struct {
	repo     *memoryRepo
	balances map[string]Balance
	entries  []LedgerEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]Balance)}
}

func key(itemID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d", itemID, warehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, balances: make(map[string]Balance)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, v := range tx.balances {
		r.balances[k] = v
	}
	r.ledger = append(r.ledger, tx.entries...)
	return nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, itemID, warehouseID int64) (int64, error) {
	return r.balances[key(itemID, warehouseID)].Quantity, nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, itemID, warehouseID int64) ([]Balance, error) {
	var out []Balance
	for _, b := range r.balances {
		if itemID != 0 && b.ItemID != itemID {
			continue
		}
		if warehouseID != 0 && b.WarehouseID != warehouseID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *memoryRepo) QueryLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for i := len(r.ledger) - 1; i >= 0; i-- {
		e := r.ledger[i]
		if filter.ItemID != 0 && e.ItemID != filter.ItemID {
			continue
		}
		if filter.WarehouseID != 0 && e.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (Balance, error) {
	k := key(itemID, warehouseID)
	if b, ok := tx.balances[k]; ok {
		return b, nil
	}
	if b, ok := tx.repo.balances[k]; ok {
		return b, nil
	}
	return Balance{ItemID: itemID, WarehouseID: warehouseID}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.balances[key(balance.ItemID, balance.WarehouseID)] = balance
	return nil
}

func (tx *memoryTx) AppendLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	if tx.repo.failAppendWarehouse != 0 && entry.WarehouseID == tx.repo.failAppendWarehouse {
		return 0, errors.New("simulated storage failure")
	}
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.entries = append(tx.entries, entry)
	return entry.ID, nil
}

// requireReconciled asserts balance == sum(IN) - sum(OUT) for every pair.
func requireReconciled(t *testing.T, repo *memoryRepo) {
	t.Helper()
	sums := map[string]int64{}
	for _, e := range repo.ledger {
		k := key(e.ItemID, e.WarehouseID)
		if e.Direction == DirectionIn {
			sums[k] += e.Quantity
		} else {
			sums[k] -= e.Quantity
		}
	}
	for k, b := range repo.balances {
		require.Equal(t, sums[k], b.Quantity, "pair %s out of reconciliation", k)
	}
	for k, sum := range sums {
		require.Equal(t, repo.balances[k].Quantity, sum, "ledger pair %s without matching balance", k)
	}
}

func TestReceiptAndChallanFlow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.IncreaseStock(ctx, MovementInput{
		ItemID: 1, WarehouseID: 1, Quantity: 50,
		Operation: OperationGoodsReceipt, Document: GoodsReceiptRef(7),
	})
	require.NoError(t, err)
	require.Equal(t, DirectionIn, entry.Direction)
	require.Equal(t, "GRN#7", entry.RefNo)

	qty, err := svc.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 50, qty)
	require.Len(t, repo.ledger, 1)
	requireReconciled(t, repo)

	_, err = svc.DecreaseStock(ctx, MovementInput{
		ItemID: 1, WarehouseID: 1, Quantity: 30,
		Operation: OperationDeliveryChallan, Document: DeliveryChallanRef(3),
	})
	require.NoError(t, err)

	qty, err = svc.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 20, qty)
	require.Len(t, repo.ledger, 2)
	requireReconciled(t, repo)

	// Over-draw fails with no mutation and no ledger append.
	_, err = svc.DecreaseStock(ctx, MovementInput{
		ItemID: 1, WarehouseID: 1, Quantity: 25,
		Operation: OperationDeliveryChallan, Document: DeliveryChallanRef(4),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "item 1")
	require.Contains(t, err.Error(), "warehouse 1")

	qty, err = svc.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 20, qty)
	require.Len(t, repo.ledger, 2)
	requireReconciled(t, repo)
}

func TestInvalidQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, MovementInput{ItemID: 1, WarehouseID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.DecreaseStock(ctx, MovementInput{ItemID: 1, WarehouseID: 1, Quantity: -5})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	require.Empty(t, repo.ledger)
	require.Empty(t, repo.balances)
}

func TestGetBalanceIdempotentRead(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, MovementInput{ItemID: 2, WarehouseID: 1, Quantity: 9, Operation: OperationManual})
	require.NoError(t, err)

	first, err := svc.GetBalance(ctx, 2, 1)
	require.NoError(t, err)
	second, err := svc.GetBalance(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Untouched pair defaults to zero.
	qty, err := svc.GetBalance(ctx, 2, 99)
	require.NoError(t, err)
	require.Zero(t, qty)
}

func TestTransfer(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, MovementInput{ItemID: 1, WarehouseID: 1, Quantity: 10, Operation: OperationGoodsReceipt})
	require.NoError(t, err)

	out, in, err := svc.TransferStock(ctx, TransferInput{ItemID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: 10})
	require.NoError(t, err)
	require.Equal(t, OperationTransferOut, out.Operation)
	require.Equal(t, OperationTransferIn, in.Operation)

	// The two entries share one correlation suffix.
	outRef := strings.TrimSuffix(out.RefNo, "-OUT")
	inRef := strings.TrimSuffix(in.RefNo, "-IN")
	require.Equal(t, outRef, inRef)
	require.True(t, strings.HasPrefix(outRef, "TRF#"))

	src, err := svc.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.Zero(t, src)
	dst, err := svc.GetBalance(ctx, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 10, dst)
	requireReconciled(t, repo)
}

func TestTransferSameWarehouse(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, _, err := svc.TransferStock(context.Background(), TransferInput{ItemID: 1, FromWarehouseID: 3, ToWarehouseID: 3, Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidTransfer)
}

func TestTransferInsufficientSource(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, MovementInput{ItemID: 1, WarehouseID: 1, Quantity: 5, Operation: OperationGoodsReceipt})
	require.NoError(t, err)

	_, _, err = svc.TransferStock(ctx, TransferInput{ItemID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: 6})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The destination must not have been touched.
	dst, err := svc.GetBalance(ctx, 1, 2)
	require.NoError(t, err)
	require.Zero(t, dst)
	src, err := svc.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 5, src)
	requireReconciled(t, repo)
}

func TestTransferDestinationFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, MovementInput{ItemID: 1, WarehouseID: 1, Quantity: 10, Operation: OperationGoodsReceipt})
	require.NoError(t, err)

	repo.failAppendWarehouse = 2
	out, _, err := svc.TransferStock(ctx, TransferInput{ItemID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: 4})
	require.Error(t, err)
	require.Contains(t, err.Error(), out.RefNo)

	// The source debit committed; the destination saw nothing. Each side
	// individually still reconciles against its ledger.
	src, err := svc.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 6, src)
	dst, err := svc.GetBalance(ctx, 1, 2)
	require.NoError(t, err)
	require.Zero(t, dst)
	requireReconciled(t, repo)
}

func TestPostAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 4, WarehouseID: 1, Type: AdjustmentIncrease, Quantity: 12, Remarks: "count correction"})
	require.NoError(t, err)
	require.Equal(t, OperationStockAdjustment, entry.Operation)

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 4, WarehouseID: 1, Type: AdjustmentDecrease, Quantity: 2})
	require.NoError(t, err)

	qty, err := svc.GetBalance(ctx, 4, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, qty)
	requireReconciled(t, repo)

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 4, WarehouseID: 1, Type: "sideways", Quantity: 1})
	require.Error(t, err)
}

func TestQueryLedgerFilters(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, MovementInput{ItemID: 1, WarehouseID: 1, Quantity: 5, Operation: OperationGoodsReceipt})
	require.NoError(t, err)
	_, err = svc.DecreaseStock(ctx, MovementInput{ItemID: 1, WarehouseID: 1, Quantity: 2, Operation: OperationDeliveryChallan})
	require.NoError(t, err)
	_, err = svc.IncreaseStock(ctx, MovementInput{ItemID: 2, WarehouseID: 1, Quantity: 7, Operation: OperationGoodsReceipt})
	require.NoError(t, err)

	entries, err := svc.QueryLedger(ctx, LedgerFilter{ItemID: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = svc.QueryLedger(ctx, LedgerFilter{Operation: OperationGoodsReceipt})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
