// Package storetest provides a conformance suite for ports.MetaStore
// implementations.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/ports"
)

// FakeClock provides a controllable clock.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a fake clock set to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the fake current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Advance moves the fake time forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Sequential generates ids prefix1, prefix2, ...
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential id generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next id.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Factory builds an empty store using the given clock and id generator.
type Factory func(t *testing.T, clock ports.Clock, ids ports.IDGenerator) ports.MetaStore

func sample() meta.Meta {
	inner := meta.NewBuilder().Put("k", "v").Seal()
	return meta.NewBuilder().
		Put("title", "run").
		Put("limits.low", 1).
		Put("limits.high", 2.5).
		Put("flags", []any{true, false}).
		Put("blob", []byte{0, 1, 2}).
		Put("empty", nil).
		PutIndexed(names.FromBodies("point"), inner, inner).
		Seal()
}

// Run exercises the MetaStore contract.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("SaveAndGet", func(t *testing.T) {
		store := newStore(t, NewFakeClock(start), NewSequential("s"))
		m := sample()

		saved, err := store.Save(ctx, "run", m)
		require.NoError(t, err)
		assert.Equal(t, "s1", saved.ID)
		assert.Equal(t, len(meta.Flatten(m)), saved.Values)
		assert.True(t, saved.CreatedAt.Equal(start))

		got, err := store.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "run", got.Name)
		assert.True(t, meta.Equal(m, got.Meta), "loaded %s", meta.String(got.Meta))
	})

	t.Run("SaveCopies", func(t *testing.T) {
		store := newStore(t, NewFakeClock(start), NewSequential("s"))
		cfg := meta.NewConfig()
		require.NoError(t, meta.SetValue(cfg, names.FromBodies("a"), 1))

		saved, err := store.Save(ctx, "run", cfg)
		require.NoError(t, err)
		require.NoError(t, meta.SetValue(cfg, names.FromBodies("a"), 2))

		got, err := store.Get(ctx, saved.ID)
		require.NoError(t, err)
		v, _ := meta.GetInt(got.Meta, names.FromBodies("a"), 0)
		assert.Equal(t, int64(1), v)
	})

	t.Run("Latest", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := newStore(t, clock, NewSequential("s"))

		_, err := store.Save(ctx, "run", meta.NewBuilder().Put("v", 1).Seal())
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = store.Save(ctx, "other", meta.NewBuilder().Put("v", 9).Seal())
		require.NoError(t, err)
		clock.Advance(time.Minute)
		want, err := store.Save(ctx, "run", meta.NewBuilder().Put("v", 2).Seal())
		require.NoError(t, err)

		got, err := store.Latest(ctx, "run")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)

		_, err = store.Latest(ctx, "missing")
		assert.True(t, errors.Is(err, ports.ErrNotFound))
	})

	t.Run("List", func(t *testing.T) {
		clock := NewFakeClock(start)
		store := newStore(t, clock, NewSequential("s"))
		for _, name := range []string{"a", "b", "a"} {
			_, err := store.Save(ctx, name, meta.NewBuilder().Put("x", name).Seal())
			require.NoError(t, err)
			clock.Advance(time.Second)
		}

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"s3", "s2", "s1"}, []string{all[0].ID, all[1].ID, all[2].ID})
		assert.Nil(t, all[0].Meta)
		assert.Equal(t, 1, all[0].Values)

		onlyA, err := store.List(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, onlyA, 2)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t, NewFakeClock(start), NewSequential("s"))
		saved, err := store.Save(ctx, "run", sample())
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, saved.ID))
		_, err = store.Get(ctx, saved.ID)
		assert.True(t, errors.Is(err, ports.ErrNotFound))
		assert.True(t, errors.Is(store.Delete(ctx, saved.ID), ports.ErrNotFound))
	})

	t.Run("EmptyName", func(t *testing.T) {
		store := newStore(t, NewFakeClock(start), NewSequential("s"))
		_, err := store.Save(ctx, "", sample())
		assert.Error(t, err)
	})
}
