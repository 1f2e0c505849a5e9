// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/dataforge/core/meta"
)

// ErrNotFound is returned when a stored snapshot does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// Snapshot is a Meta saved under a name at a point in time.
// Snapshots listed by MetaStore.List carry no Meta.
type Snapshot struct {
	ID        string
	Name      string
	Meta      meta.Meta
	Values    int // number of flattened values
	CreatedAt time.Time
}

// MetaStore persists Meta snapshots. Stores keep values and names only;
// the child order of a loaded Meta follows the flattened save order.
type MetaStore interface {
	// Save stores m as a new snapshot of name.
	Save(ctx context.Context, name string, m meta.Meta) (Snapshot, error)

	// Get loads a snapshot by id.
	Get(ctx context.Context, id string) (Snapshot, error)

	// Latest loads the most recent snapshot of name.
	Latest(ctx context.Context, name string) (Snapshot, error)

	// List returns snapshot headers, newest first. An empty name lists all.
	List(ctx context.Context, name string) ([]Snapshot, error)

	// Delete removes a snapshot.
	Delete(ctx context.Context, id string) error
}
