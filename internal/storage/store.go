// Package storage persists memories and links in PostgreSQL with the
// pgvector extension. The Store interface is what the memory service
// consumes; tests substitute an in-memory fake.
package storage

import (
	"context"
	"time"

	"dev.helix.recall/internal/models"
)

// SearchQuery is the storage-level input of a similarity search. The
// query text has already been embedded by the caller.
type SearchQuery struct {
	Embedding []float32
	Type      string
	Tags      []string
	Threshold float64
	Limit     int
}

// ListQuery is the storage-level input of a filtered list.
type ListQuery struct {
	Type    string
	Tags    []string
	Since   *time.Time
	Until   *time.Time
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Store is the persistence contract consumed by the memory service.
// Not-found is reported as (nil, nil) or (false, nil), never as an
// error.
type Store interface {
	Insert(ctx context.Context, m *models.Memory) error
	GetByID(ctx context.Context, id string) (*models.Memory, error)
	Update(ctx context.Context, m *models.Memory) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Search(ctx context.Context, q SearchQuery) ([]*models.SearchResult, error)
	List(ctx context.Context, q ListQuery) ([]*models.Memory, error)
	Count(ctx context.Context, q ListQuery) (int64, error)

	InsertLink(ctx context.Context, link *models.MemoryLink) error
	ListLinks(ctx context.Context, memoryID string) ([]*models.MemoryLink, error)
	DeleteLink(ctx context.Context, sourceID, targetID, relationship string) (bool, error)

	// WithTx runs fn inside one transaction. fn receives a Store whose
	// operations share that transaction; any error returned by fn rolls
	// the whole transaction back.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
}
