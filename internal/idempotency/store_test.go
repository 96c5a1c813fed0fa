package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReserveFinalizeLookup(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, repository.NewMemoryStore().Queries(), time.Hour)

	_, err := s.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Reserve(ctx, "k1", "h1", "POST", "/v1/swaps")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Reserve(ctx, "k1", "h1", "POST", "/v1/swaps")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := s.Finalize(ctx, "k1", "h1", 201, []byte(`{"id":"x"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	rec, err = s.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"x"}`, string(rec.Body))
	assert.Equal(t, "store", rec.ServedBy)

	_, err = s.Lookup(ctx, "k1", "other")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestWaitForCompletion(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, repository.NewMemoryStore().Queries(), time.Hour)

	_, err := s.Reserve(ctx, "k2", "h", "POST", "/v1/swaps")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = s.Finalize(ctx, "k2", "h", 200, []byte("done"), "text/plain")
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rec, err := s.WaitForCompletion(waitCtx, "k2", "h")
	require.NoError(t, err)
	assert.Equal(t, "done", string(rec.Body))
}
