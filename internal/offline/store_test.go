package offline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStoreAt(t *testing.T, dir string) *BadgerStore {
	t.Helper()
	store, err := OpenBadgerStore(BadgerStoreConfig{Path: dir, SyncWrites: false}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	return openTestStoreAt(t, t.TempDir())
}

func storedOp(table string, typ OpType) *QueuedOperation {
	return &QueuedOperation{
		ID:       uuid.New().String(),
		Table:    table,
		Type:     typ,
		Payload:  json.RawMessage(`{"id":"rec-1","sku":"WIDGET-9"}`),
		OrgID:    uuid.New(),
		QueuedAt: time.Now().UTC(),
	}
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerStoreConfig{}, nil)
	assert.ErrorIs(t, err, ErrStorePathRequired)
}

func TestBadgerStore_AddAssignsSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := storedOp("products", OpInsert)
	second := storedOp("inventory", OpUpdate)
	require.NoError(t, store.Add(ctx, first))
	require.NoError(t, store.Add(ctx, second))

	assert.Greater(t, second.Seq, first.Seq)
}

func TestBadgerStore_AddValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Add(ctx, nil), ErrNilOperation)

	op := storedOp("products", OpInsert)
	op.ID = ""
	assert.ErrorIs(t, store.Add(ctx, op), ErrEmptyOperationID)
}

func TestBadgerStore_GetAllEnqueueOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		op := storedOp("orders", OpInsert)
		require.NoError(t, store.Add(ctx, op))
		ids = append(ids, op.ID)
	}

	ops, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 5)
	for i, op := range ops {
		assert.Equal(t, ids[i], op.ID)
		if i > 0 {
			assert.Greater(t, op.Seq, ops[i-1].Seq)
		}
	}
}

func TestBadgerStore_Update(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	op := storedOp("products", OpUpdate)
	require.NoError(t, store.Add(ctx, op))

	op.Retries = 2
	require.NoError(t, store.Update(ctx, op))

	ops, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 2, ops[0].Retries)
	assert.Equal(t, op.Seq, ops[0].Seq)
}

func TestBadgerStore_UpdateMissing(t *testing.T) {
	store := openTestStore(t)

	op := storedOp("products", OpUpdate)
	err := store.Update(context.Background(), op)
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestBadgerStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	op := storedOp("customers", OpDelete)
	require.NoError(t, store.Add(ctx, op))
	require.NoError(t, store.Delete(ctx, op.ID))

	ops, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)

	assert.ErrorIs(t, store.Delete(ctx, op.ID), ErrOperationNotFound)
}

func TestBadgerStore_OrderSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openTestStoreAt(t, dir)
	first := storedOp("products", OpInsert)
	second := storedOp("products", OpUpdate)
	require.NoError(t, store.Add(ctx, first))
	require.NoError(t, store.Add(ctx, second))
	require.NoError(t, store.Close())

	reopened := openTestStoreAt(t, dir)
	third := storedOp("products", OpDelete)
	require.NoError(t, reopened.Add(ctx, third))

	ops, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, first.ID, ops[0].ID)
	assert.Equal(t, second.ID, ops[1].ID)
	assert.Equal(t, third.ID, ops[2].ID)
	assert.Greater(t, ops[2].Seq, ops[1].Seq)
}

func TestBadgerStore_Closed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Add(ctx, storedOp("products", OpInsert)), ErrStoreClosed)
	_, err := store.GetAll(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Update(ctx, storedOp("products", OpUpdate)), ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrStoreClosed)

	// Closing again is a no-op
	assert.NoError(t, store.Close())
}
