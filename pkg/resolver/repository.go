package resolver

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// EntityRepository persists canonical entities. Create must reject a second entity with
// the same (kind, slug) as ConcurrentWriteConflict.
type EntityRepository interface {
	Create(ctx context.Context, entity *models.CanonicalEntity) error
	Get(ctx context.Context, id string) (*models.CanonicalEntity, error)
	GetMany(ctx context.Context, ids []string) ([]models.CanonicalEntity, error)
	SlugExists(ctx context.Context, kind models.EntityKind, slug string) (bool, error)
	// WidenActivePeriod extends the entity's active years to cover [from, until]
	WidenActivePeriod(ctx context.Context, id string, from, until int) error
	// Delete removes the entity and its aliases; pending matches lose their reference to it
	Delete(ctx context.Context, id string) error
}

// PendingRepository persists resolution decisions, both open and terminal
type PendingRepository interface {
	// GetPendingByKey returns the open pending match for key, or nil
	GetPendingByKey(ctx context.Context, key models.PendingMatchKey) (*models.PendingMatch, error)
	// Upsert inserts a pending match or refreshes the open one with the same key.
	// match.ID is set to the stored row's id.
	Upsert(ctx context.Context, match *models.PendingMatch) (created bool, err error)
	// InsertTerminal records an already-decided match for audit
	InsertTerminal(ctx context.Context, match *models.PendingMatch) error
	// Complete moves a pending match to a terminal status. A match that is no longer
	// pending is a StaleResolution.
	Complete(ctx context.Context, id string, completion models.PendingMatchCompletion) (*models.PendingMatch, error)
	Get(ctx context.Context, id string) (*models.PendingMatch, error)
	List(ctx context.Context, filter models.PendingMatchFilter) (*models.PendingMatchPage, error)
}

// Transactor runs fn as one atomic unit of work. Calls made with a context that is
// already inside a unit of work join it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
