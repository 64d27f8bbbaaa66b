package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/roby-guard/internal/domain"
)

func TestMemoryStore_AllocateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := &Record{Key: domain.Pubkey{1}, Data: make([]byte, 8), Deposit: 8}
	require.NoError(t, s.Allocate(ctx, rec))
	assert.ErrorIs(t, s.Allocate(ctx, rec), ErrAccountExists)

	got, err := s.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got.Data[0] = 9
	again, _ := s.Get(ctx, rec.Key)
	assert.Equal(t, byte(0), again.Data[0], "Get returns a copy")

	_, err = s.Get(ctx, domain.Pubkey{2})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMemoryStore_TransactCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := domain.Pubkey{1}
	require.NoError(t, s.Allocate(ctx, &Record{Key: key, Data: make([]byte, 4)}))

	err := s.Transact(ctx, []domain.Pubkey{key, {7}}, func(_ context.Context, recs map[domain.Pubkey]*Record) error {
		assert.Len(t, recs, 1, "unknown keys are not loaded")
		recs[key].Data[0] = 1
		return errors.New("boom")
	})
	require.Error(t, err)
	got, _ := s.Get(ctx, key)
	assert.Equal(t, []byte{0, 0, 0, 0}, got.Data)

	err = s.Transact(ctx, []domain.Pubkey{key}, func(_ context.Context, recs map[domain.Pubkey]*Record) error {
		recs[key].Data[0] = 1
		return nil
	})
	require.NoError(t, err)
	got, _ = s.Get(ctx, key)
	assert.Equal(t, []byte{1, 0, 0, 0}, got.Data)
}

func TestMemoryStore_ScanBySize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Allocate(ctx, &Record{Key: domain.Pubkey{1}, Data: make([]byte, 4)}))
	require.NoError(t, s.Allocate(ctx, &Record{Key: domain.Pubkey{2}, Data: make([]byte, 16)}))

	var seen []domain.Pubkey
	require.NoError(t, s.ScanBySize(ctx, 10, func(r *Record) error {
		seen = append(seen, r.Key)
		return nil
	}))
	assert.Equal(t, []domain.Pubkey{{2}}, seen)
}

func TestRecord_Exempt(t *testing.T) {
	r := &Record{Data: make([]byte, 100), Deposit: 200}
	assert.True(t, r.Exempt(2))
	assert.False(t, r.Exempt(3))
	assert.True(t, r.Exempt(0))
	assert.False(t, r.Exempt(^uint64(0)))
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys([]domain.Pubkey{{3}, {1}, {3}, {2}})
	assert.Equal(t, []domain.Pubkey{{1}, {2}, {3}}, keys)
}
