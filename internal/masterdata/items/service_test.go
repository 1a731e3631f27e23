package items

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items  map[int64]Item
	nextID int64
}

func (r *memoryRepo) List(ctx context.Context, search string, page, perPage int) ([]Item, int, error) {
	out := []Item{}
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Item, error) {
	it, ok := r.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (r *memoryRepo) Create(ctx context.Context, item Item) (Item, error) {
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, item Item) error {
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	item.ID = id
	r.items[id] = item
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func TestItemCRUD(t *testing.T) {
	svc := NewService(&memoryRepo{items: make(map[int64]Item)})
	ctx := context.Background()

	_, err := svc.Create(ctx, Item{Name: "Widget", Unit: "pcs"})
	require.ErrorIs(t, err, ErrValidation)

	item, err := svc.Create(ctx, Item{SKU: "WID-1", Name: "Widget", Unit: "pcs"})
	require.NoError(t, err)
	require.NotZero(t, item.ID)

	got, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "WID-1", got.SKU)

	require.NoError(t, svc.Update(ctx, item.ID, Item{SKU: "WID-1", Name: "Widget Mk2", Unit: "pcs"}))
	got, err = svc.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "Widget Mk2", got.Name)

	require.NoError(t, svc.Delete(ctx, item.ID))
	_, err = svc.Get(ctx, item.ID)
	require.ErrorIs(t, err, ErrNotFound)

	err = svc.Delete(ctx, 0)
	require.ErrorIs(t, err, ErrValidation)
}
