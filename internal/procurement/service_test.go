package procurement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockyard-erp/stockyard/internal/documents"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

type memoryRepo struct {
	pos      map[int64]PurchaseOrder
	poLines  map[int64][]POLine
	grns     map[int64]GoodsReceipt
	grnLines map[int64][]GRNLine
	returns  map[int64]PurchaseReturn
	retLines map[int64][]PurchaseReturnLine
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		pos:      make(map[int64]PurchaseOrder),
		poLines:  make(map[int64][]POLine),
		grns:     make(map[int64]GoodsReceipt),
		grnLines: make(map[int64][]GRNLine),
		returns:  make(map[int64]PurchaseReturn),
		retLines: make(map[int64][]PurchaseReturnLine),
	}
}

// memoryTx stages writes and applies them only when the callback succeeds.
type memoryTx struct {
	repo     *memoryRepo
	pos      []PurchaseOrder
	poLines  []POLine
	statuses map[int64]POStatus
	grns     []GoodsReceipt
	grnLines []GRNLine
	returns  []PurchaseReturn
	retLines []PurchaseReturnLine
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, statuses: make(map[int64]POStatus)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, po := range tx.pos {
		r.pos[po.ID] = po
	}
	for _, line := range tx.poLines {
		r.poLines[line.POID] = append(r.poLines[line.POID], line)
	}
	for id, status := range tx.statuses {
		po := r.pos[id]
		po.Status = status
		r.pos[id] = po
	}
	for _, grn := range tx.grns {
		r.grns[grn.ID] = grn
	}
	for _, line := range tx.grnLines {
		r.grnLines[line.GRNID] = append(r.grnLines[line.GRNID], line)
	}
	for _, ret := range tx.returns {
		r.returns[ret.ID] = ret
	}
	for _, line := range tx.retLines {
		r.retLines[line.ReturnID] = append(r.retLines[line.ReturnID], line)
	}
	return nil
}

func (r *memoryRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, r.poLines[id], nil
}

func (r *memoryRepo) ListPOs(ctx context.Context) ([]PurchaseOrder, error) {
	out := []PurchaseOrder{}
	for _, po := range r.pos {
		out = append(out, po)
	}
	return out, nil
}

func (r *memoryRepo) GetGRN(ctx context.Context, id int64) (GoodsReceipt, []GRNLine, error) {
	grn, ok := r.grns[id]
	if !ok {
		return GoodsReceipt{}, nil, ErrNotFound
	}
	return grn, r.grnLines[id], nil
}

func (r *memoryRepo) ListGRNLinesByPO(ctx context.Context, poID int64) ([]GRNLine, error) {
	out := []GRNLine{}
	for id, grn := range r.grns {
		if grn.POID != poID {
			continue
		}
		out = append(out, r.grnLines[id]...)
	}
	return out, nil
}

func (r *memoryRepo) ListReturnLinesByGRN(ctx context.Context, grnID int64) ([]PurchaseReturnLine, error) {
	out := []PurchaseReturnLine{}
	for id, ret := range r.returns {
		if ret.GRNID != grnID {
			continue
		}
		out = append(out, r.retLines[id]...)
	}
	return out, nil
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (tx *memoryTx) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	po.ID = tx.repo.id()
	tx.pos = append(tx.pos, po)
	return po.ID, nil
}

func (tx *memoryTx) InsertPOLine(ctx context.Context, line POLine) error {
	line.ID = tx.repo.id()
	tx.poLines = append(tx.poLines, line)
	return nil
}

func (tx *memoryTx) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	tx.statuses[id] = status
	return nil
}

func (tx *memoryTx) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	grn.ID = tx.repo.id()
	tx.grns = append(tx.grns, grn)
	return grn.ID, nil
}

func (tx *memoryTx) InsertGRNLine(ctx context.Context, line GRNLine) error {
	line.ID = tx.repo.id()
	tx.grnLines = append(tx.grnLines, line)
	return nil
}

func (tx *memoryTx) CreatePurchaseReturn(ctx context.Context, ret PurchaseReturn) (int64, error) {
	ret.ID = tx.repo.id()
	tx.returns = append(tx.returns, ret)
	return ret.ID, nil
}

func (tx *memoryTx) InsertReturnLine(ctx context.Context, line PurchaseReturnLine) error {
	line.ID = tx.repo.id()
	tx.retLines = append(tx.retLines, line)
	return nil
}

// fakeStock records mutation-engine calls; failAfter makes the nth call fail.
type fakeStock struct {
	increases []stock.MovementInput
	decreases []stock.MovementInput
	failAfter int
	calls     int
}

var errStorage = errors.New("storage down")

func (f *fakeStock) IncreaseStock(ctx context.Context, input stock.MovementInput) (stock.LedgerEntry, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return stock.LedgerEntry{}, errStorage
	}
	f.increases = append(f.increases, input)
	return stock.LedgerEntry{ID: int64(f.calls)}, nil
}

func (f *fakeStock) DecreaseStock(ctx context.Context, input stock.MovementInput) (stock.LedgerEntry, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return stock.LedgerEntry{}, errStorage
	}
	f.decreases = append(f.decreases, input)
	return stock.LedgerEntry{ID: int64(f.calls)}, nil
}

func newTestService() (*Service, *memoryRepo, *fakeStock) {
	repo := newMemoryRepo()
	engine := &fakeStock{}
	return NewService(repo, engine, nil, nil), repo, engine
}

func createPO(t *testing.T, svc *Service, lines []LineInput) PurchaseOrder {
	t.Helper()
	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		VendorID:    7,
		WarehouseID: 1,
		Lines:       lines,
	})
	require.NoError(t, err)
	return po
}

func TestCreatePurchaseOrder(t *testing.T) {
	svc, repo, _ := newTestService()

	po := createPO(t, svc, []LineInput{{ItemID: 101, Quantity: 50}, {ItemID: 102, Quantity: 20}})
	require.NotZero(t, po.ID)
	require.Contains(t, po.Number, "PO-")
	require.Equal(t, POStatusPending, po.Status)
	require.Len(t, repo.poLines[po.ID], 2)

	_, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{VendorID: 7, WarehouseID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		VendorID: 7, WarehouseID: 1,
		Lines: []LineInput{{ItemID: 101, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateGoodsReceiptFlow(t *testing.T) {
	svc, repo, engine := newTestService()
	po := createPO(t, svc, []LineInput{{ItemID: 101, Quantity: 50}, {ItemID: 102, Quantity: 20}})

	// Partial receipt moves the PO to Partially Received.
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:        po.ID,
		WarehouseID: 1,
		Lines:       []LineInput{{ItemID: 101, Quantity: 30}},
	})
	require.NoError(t, err)
	require.Contains(t, grn.Number, "GRN-")
	require.Len(t, engine.increases, 1)
	require.Equal(t, stock.OperationGoodsReceipt, engine.increases[0].Operation)
	require.Equal(t, stock.GoodsReceiptRef(grn.ID), engine.increases[0].Document)
	require.Equal(t, POStatusPartiallyReceived, repo.pos[po.ID].Status)

	// Receiving the remainder completes the PO.
	_, err = svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:        po.ID,
		WarehouseID: 1,
		Lines:       []LineInput{{ItemID: 101, Quantity: 20}, {ItemID: 102, Quantity: 20}},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, repo.pos[po.ID].Status)
	require.Len(t, engine.increases, 3)
}

func TestCreateGoodsReceiptOverReceipt(t *testing.T) {
	svc, repo, engine := newTestService()
	po := createPO(t, svc, []LineInput{{ItemID: 101, Quantity: 50}})

	// 60 against 50 ordered fails before anything is persisted or mutated.
	_, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:        po.ID,
		WarehouseID: 1,
		Lines:       []LineInput{{ItemID: 101, Quantity: 60}},
	})
	require.ErrorIs(t, err, documents.ErrExceedsAvailable)
	require.Empty(t, repo.grns)
	require.Empty(t, engine.increases)
	require.Equal(t, POStatusPending, repo.pos[po.ID].Status)

	// The allowance shrinks with each receipt: after 30, another 30 is too much.
	_, err = svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID, WarehouseID: 1,
		Lines: []LineInput{{ItemID: 101, Quantity: 30}},
	})
	require.NoError(t, err)
	_, err = svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID, WarehouseID: 1,
		Lines: []LineInput{{ItemID: 101, Quantity: 30}},
	})
	require.ErrorIs(t, err, documents.ErrExceedsAvailable)
	require.Len(t, repo.grns, 1)
}

func TestCreateGoodsReceiptRejections(t *testing.T) {
	svc, _, _ := newTestService()
	po := createPO(t, svc, []LineInput{{ItemID: 101, Quantity: 50}})

	_, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: 999, WarehouseID: 1,
		Lines: []LineInput{{ItemID: 101, Quantity: 10}},
	})
	require.ErrorIs(t, err, documents.ErrSourceNotFound)

	_, err = svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID, WarehouseID: 1,
		Lines: []LineInput{{ItemID: 555, Quantity: 10}},
	})
	require.ErrorIs(t, err, documents.ErrItemNotInSource)

	_, err = svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID, WarehouseID: 1,
	})
	require.ErrorIs(t, err, documents.ErrEmptyLines)

	_, err = svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID,
		Lines: []LineInput{{ItemID: 101, Quantity: 10}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateGoodsReceiptPartialMutationFailure(t *testing.T) {
	svc, repo, engine := newTestService()
	po := createPO(t, svc, []LineInput{{ItemID: 101, Quantity: 50}, {ItemID: 102, Quantity: 20}})
	engine.failAfter = 1

	_, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:        po.ID,
		WarehouseID: 1,
		Lines:       []LineInput{{ItemID: 101, Quantity: 10}, {ItemID: 102, Quantity: 5}},
	})
	require.ErrorIs(t, err, errStorage)
	// The first line was applied and the document persisted; the error says so.
	require.Contains(t, err.Error(), "after 1 of 2 lines applied")
	require.Len(t, engine.increases, 1)
	require.Len(t, repo.grns, 1)
}

func TestCreatePurchaseReturn(t *testing.T) {
	svc, repo, engine := newTestService()
	po := createPO(t, svc, []LineInput{{ItemID: 101, Quantity: 50}})
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID, WarehouseID: 3,
		Lines: []LineInput{{ItemID: 101, Quantity: 40}},
	})
	require.NoError(t, err)

	ret, err := svc.CreatePurchaseReturn(context.Background(), CreateReturnInput{
		GRNID: grn.ID,
		Lines: []LineInput{{ItemID: 101, Quantity: 15}},
	})
	require.NoError(t, err)
	require.Contains(t, ret.Number, "PRET-")
	// Warehouse defaults to the receiving warehouse.
	require.Equal(t, int64(3), ret.WarehouseID)
	require.Len(t, engine.decreases, 1)
	require.Equal(t, stock.OperationPurchaseReturn, engine.decreases[0].Operation)
	require.Equal(t, stock.PurchaseReturnRef(ret.ID), engine.decreases[0].Document)
	require.Equal(t, int64(3), engine.decreases[0].WarehouseID)

	// Prior returns shrink what can still be sent back: 40 received, 15
	// returned, so 26 more is over the line.
	_, err = svc.CreatePurchaseReturn(context.Background(), CreateReturnInput{
		GRNID: grn.ID,
		Lines: []LineInput{{ItemID: 101, Quantity: 26}},
	})
	require.ErrorIs(t, err, documents.ErrExceedsAvailable)
	require.Len(t, repo.returns, 1)

	_, err = svc.CreatePurchaseReturn(context.Background(), CreateReturnInput{
		GRNID: 999,
		Lines: []LineInput{{ItemID: 101, Quantity: 1}},
	})
	require.ErrorIs(t, err, documents.ErrSourceNotFound)
}

// memoryIdempotency tracks processed keys so retries are detectable.
type memoryIdempotency struct {
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestCreateGoodsReceiptRetry(t *testing.T) {
	repo := newMemoryRepo()
	engine := &fakeStock{}
	idem := newMemoryIdempotency()
	svc := NewService(repo, engine, nil, idem)
	po := createPO(t, svc, []LineInput{{ItemID: 101, Quantity: 50}})

	input := CreateGRNInput{
		Number:      "GRN-2026-0001",
		POID:        po.ID,
		WarehouseID: 1,
		Lines:       []LineInput{{ItemID: 101, Quantity: 10}},
	}
	grn, err := svc.CreateGoodsReceipt(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "GRN-2026-0001", grn.Number)

	// Posting the same document number again is a retry, not a new receipt.
	_, err = svc.CreateGoodsReceipt(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.grns, 1)
	require.Len(t, engine.increases, 1)

	// A different number is a new document.
	input.Number = "GRN-2026-0002"
	_, err = svc.CreateGoodsReceipt(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, repo.grns, 2)
}
