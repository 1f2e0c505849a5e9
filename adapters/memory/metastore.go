// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/ports"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type uuidGen struct{}

func (uuidGen) New() string { return uuid.NewString() }

// Option configures a MetaStore.
type Option func(*MetaStore)

// WithClock sets the clock stamping new snapshots.
func WithClock(c ports.Clock) Option {
	return func(s *MetaStore) { s.clock = c }
}

// WithIDGenerator sets the snapshot id generator.
func WithIDGenerator(g ports.IDGenerator) Option {
	return func(s *MetaStore) { s.ids = g }
}

// MetaStore is an in-memory implementation of ports.MetaStore.
type MetaStore struct {
	mu        sync.RWMutex
	snapshots []ports.Snapshot // insertion order
	clock     ports.Clock
	ids       ports.IDGenerator
}

// NewMetaStore creates a new in-memory meta store.
func NewMetaStore(opts ...Option) *MetaStore {
	s := &MetaStore{clock: systemClock{}, ids: uuidGen{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores a sealed copy of m.
func (s *MetaStore) Save(ctx context.Context, name string, m meta.Meta) (ports.Snapshot, error) {
	if name == "" {
		return ports.Snapshot{}, fmt.Errorf("save snapshot: empty name")
	}
	sealed := meta.Seal(m)
	snap := ports.Snapshot{
		ID:        s.ids.New(),
		Name:      name,
		Meta:      sealed,
		Values:    len(meta.Flatten(sealed)),
		CreatedAt: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return snap, nil
}

// Get loads a snapshot by id.
func (s *MetaStore) Get(ctx context.Context, id string) (ports.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.snapshots {
		if snap.ID == id {
			return snap, nil
		}
	}
	return ports.Snapshot{}, ports.ErrNotFound
}

// Latest loads the most recent snapshot of name.
func (s *MetaStore) Latest(ctx context.Context, name string) (ports.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := -1
	for i, snap := range s.snapshots {
		if snap.Name != name {
			continue
		}
		if found < 0 || !snap.CreatedAt.Before(s.snapshots[found].CreatedAt) {
			found = i
		}
	}
	if found < 0 {
		return ports.Snapshot{}, ports.ErrNotFound
	}
	return s.snapshots[found], nil
}

// List returns snapshot headers, newest first.
func (s *MetaStore) List(ctx context.Context, name string) ([]ports.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ports.Snapshot
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		snap := s.snapshots[i]
		if name != "" && snap.Name != name {
			continue
		}
		snap.Meta = nil
		result = append(result, snap)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes a snapshot.
func (s *MetaStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, snap := range s.snapshots {
		if snap.ID == id {
			s.snapshots = append(s.snapshots[:i], s.snapshots[i+1:]...)
			return nil
		}
	}
	return ports.ErrNotFound
}

// Ensure interface compliance.
var _ ports.MetaStore = (*MetaStore)(nil)
