package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeHarness lets the same behavioural checks run against every backend.
type storeHarness struct {
	store Store
	// interfere writes key from a different connection than the store's
	// transaction, simulating a concurrent writer.
	interfere func(t *testing.T, key, value string)
}

func runStoreContract(t *testing.T, newHarness func(t *testing.T) storeHarness) {
	t.Run("GetMissing", func(t *testing.T) {
		h := newHarness(t)
		v, ok, err := h.store.Get(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("SetGetDelete", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.store.Set(ctx, "room:lobby:binding:username", "Ada"))
		v, ok, err := h.store.Get(ctx, "room:lobby:binding:username")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Ada", v)

		require.NoError(t, h.store.Delete(ctx, "room:lobby:binding:username", "never-set"))
		_, ok, err = h.store.Get(ctx, "room:lobby:binding:username")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("HashRoundTrip", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		fields := map[string]string{"sender": "Susan", "text": "hi", "seq": "3"}
		require.NoError(t, h.store.HSet(ctx, "room:lobby:msg:3", fields))

		got, err := h.store.HGetAll(ctx, "room:lobby:msg:3")
		require.NoError(t, err)
		assert.Equal(t, fields, got)

		empty, err := h.store.HGetAll(ctx, "room:lobby:msg:99")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ScanPrefix", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		for i := 1; i <= 25; i++ {
			require.NoError(t, h.store.HSet(ctx, fmt.Sprintf("room:lobby:msg:%d", i), map[string]string{"seq": fmt.Sprint(i)}))
		}
		require.NoError(t, h.store.Set(ctx, "room:lobby:seq", "25"))
		require.NoError(t, h.store.Set(ctx, "room:lobbyist:msg:1", "other room"))

		var keys []string
		err := h.store.ScanPrefix(ctx, "room:lobby:msg:", func(key string) error {
			keys = append(keys, key)
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, keys, 25)
		sort.Strings(keys)
		assert.Equal(t, "room:lobby:msg:1", keys[0])
	})

	t.Run("ScanPrefixLiteralGlobChars", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.store.Set(ctx, "room:a*b:msg:1", "x"))
		require.NoError(t, h.store.Set(ctx, "room:aXb:msg:1", "y"))

		var keys []string
		require.NoError(t, h.store.ScanPrefix(ctx, "room:a*b:", func(key string) error {
			keys = append(keys, key)
			return nil
		}))
		assert.Equal(t, []string{"room:a*b:msg:1"}, keys)
	})

	t.Run("ScanPrefixStopsOnError", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.store.Set(ctx, "p:1", "1"))
		require.NoError(t, h.store.Set(ctx, "p:2", "2"))

		stop := errors.New("stop")
		calls := 0
		err := h.store.ScanPrefix(ctx, "p:", func(string) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("TransactionCommits", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		conflicted, err := h.store.WithOptimisticTransaction(ctx, "seq", func(tx Tx) error {
			_, ok, err := tx.Get(ctx, "seq")
			require.NoError(t, err)
			assert.False(t, ok)
			tx.Set("seq", "1")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, conflicted)

		v, _, err := h.store.Get(ctx, "seq")
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	})

	t.Run("TransactionDetectsConflict", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "seq", "4"))

		conflicted, err := h.store.WithOptimisticTransaction(ctx, "seq", func(tx Tx) error {
			cur, _, err := tx.Get(ctx, "seq")
			require.NoError(t, err)
			assert.Equal(t, "4", cur)
			h.interfere(t, "seq", "5")
			tx.Set("seq", "5")
			tx.Set("side", "effect")
			return nil
		})
		require.NoError(t, err)
		assert.True(t, conflicted)

		_, ok, err := h.store.Get(ctx, "side")
		require.NoError(t, err)
		assert.False(t, ok, "writes of a conflicted transaction must not be applied")
	})

	t.Run("ReadOnlyTransactionDetectsConflict", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "seq", "1"))

		conflicted, err := h.store.WithOptimisticTransaction(ctx, "seq", func(tx Tx) error {
			h.interfere(t, "seq", "2")
			return nil
		})
		require.NoError(t, err)
		assert.True(t, conflicted)
	})

	t.Run("TransactionBodyErrorAborts", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		boom := errors.New("boom")
		conflicted, err := h.store.WithOptimisticTransaction(ctx, "seq", func(tx Tx) error {
			tx.Set("seq", "9")
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, conflicted)

		_, ok, err := h.store.Get(ctx, "seq")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ClosedStore", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.store.Close())
		require.NoError(t, h.store.Close())

		_, _, err := h.store.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, h.store.Set(ctx, "k", "v"), ErrClosed)
		assert.ErrorIs(t, h.store.Ping(ctx), ErrClosed)
		_, err = h.store.WithOptimisticTransaction(ctx, "k", func(Tx) error { return nil })
		assert.ErrorIs(t, err, ErrClosed)
	})
}
