// Package storetest holds the behaviour every store.Engine must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/store"
)

// Factory returns a fresh, empty engine.
type Factory func(t *testing.T) store.Engine

func sample(i int, base time.Time) recording.Recording {
	created := base.Add(time.Duration(i) * time.Minute)
	return recording.Recording{
		ID:        uuid.New(),
		Name:      recording.DisplayName(created),
		Duration:  time.Duration(i+1) * time.Second,
		Address:   "zizh/recordings/" + uuid.NewString() + ".m4a",
		CreatedAt: created,
	}
}

// Run exercises the engine contract.
func Run(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	base := time.Unix(1738750000, 0)

	t.Run("fetch is newest first for any insertion order", func(t *testing.T) {
		e := newEngine(t)
		order := []int{3, 0, 7, 1, 9, 2, 8, 4, 6, 5}
		byIndex := map[int]recording.Recording{}
		for _, i := range order {
			rec := sample(i, base)
			byIndex[i] = rec
			require.NoError(t, e.Insert(ctx, rec))
		}

		got, err := e.FetchAll(ctx, store.NewestFirst)
		require.NoError(t, err)
		require.Len(t, got, 10)
		for pos, rec := range got {
			want := byIndex[9-pos]
			assert.True(t, want.Equal(rec), "position %d: want %+v got %+v", pos, want, rec)
		}
	})

	t.Run("fetch by predicate", func(t *testing.T) {
		e := newEngine(t)
		for i := 0; i < 6; i++ {
			require.NoError(t, e.Insert(ctx, sample(i, base)))
		}

		long := func(r recording.Recording) bool { return r.Duration > 3*time.Second }
		got, err := e.Fetch(ctx, long, store.Sort{Field: store.ByDuration})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 4*time.Second, got[0].Duration)
		assert.Equal(t, 6*time.Second, got[2].Duration)
	})

	t.Run("delete removes the entity", func(t *testing.T) {
		e := newEngine(t)
		keep, drop := sample(0, base), sample(1, base)
		require.NoError(t, e.Insert(ctx, keep))
		require.NoError(t, e.Insert(ctx, drop))

		require.NoError(t, e.Delete(ctx, drop))

		got, err := e.FetchAll(ctx, store.NewestFirst)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, keep.ID, got[0].ID)

		assert.ErrorIs(t, e.Delete(ctx, drop), store.ErrNotFound)
	})

	t.Run("insert of an existing id replaces it", func(t *testing.T) {
		e := newEngine(t)
		rec := sample(0, base)
		require.NoError(t, e.Insert(ctx, rec))
		rec.Name = "renamed"
		require.NoError(t, e.Insert(ctx, rec))

		got, err := e.FetchAll(ctx, store.NewestFirst)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "renamed", got[0].Name)
	})

	t.Run("closed engine rejects operations", func(t *testing.T) {
		e := newEngine(t)
		require.NoError(t, e.Close())

		assert.ErrorIs(t, e.Insert(ctx, sample(0, base)), store.ErrClosed)
		_, err := e.FetchAll(ctx, store.NewestFirst)
		assert.ErrorIs(t, err, store.ErrClosed)
	})
}
