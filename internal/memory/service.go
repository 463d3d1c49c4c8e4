// Package memory implements the memory service: it orchestrates the
// vectorizer, the storage engine, and the tiered cache to turn validated
// input into persisted, embedded, searchable records, and streams
// created events to live subscribers.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/cache"
	"dev.helix.recall/internal/config"
	"dev.helix.recall/internal/events"
	"dev.helix.recall/internal/models"
	"dev.helix.recall/internal/storage"
	"dev.helix.recall/internal/vectorizer"
)

// Service coordinates the three independently-failing collaborators.
// Cache faults never fail an operation; vectorizer and storage faults
// abort the operation that needed them.
type Service struct {
	store   storage.Store
	vec     vectorizer.Client
	cache   *cache.TieredCache
	hub     *events.Hub
	logger  *logrus.Logger
	ttl     config.CacheConfig
	updates idLocks
}

// NewService wires the service. cache and hub may be nil in stripped-
// down deployments; every code path tolerates their absence.
func NewService(store storage.Store, vec vectorizer.Client, tiered *cache.TieredCache,
	hub *events.Hub, ttl config.CacheConfig, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if ttl.MemoryTTL <= 0 {
		ttl.MemoryTTL = 30 * time.Minute
	}
	if ttl.ListTTL <= 0 {
		ttl.ListTTL = 5 * time.Minute
	}
	if ttl.SearchTTL <= 0 {
		// Search results are the most volatile view: minutes, not hours.
		ttl.SearchTTL = 2 * time.Minute
	}
	return &Service{
		store:  store,
		vec:    vec,
		cache:  tiered,
		hub:    hub,
		logger: logger,
		ttl:    ttl,
	}
}

// Create validates params, embeds the canonical content text, persists
// one row, emits a created event, and invalidates list caches. A memory
// is never persisted without an embedding.
func (s *Service) Create(ctx context.Context, params *models.CreateMemoryParams) (*models.Memory, error) {
	m, err := s.prepare(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}

	s.publishCreated(m)
	s.invalidate(ctx, listKeyPrefix+"*")
	return m, nil
}

// GetByID returns the memory or (nil, nil) when absent. Single-row
// reads are cached under memory:<id>.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Memory, error) {
	if id == "" {
		return nil, models.NewValidationError("id", "required")
	}

	key := memoryKey(id)
	if s.cache != nil {
		var cached models.Memory
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	m, err := s.store.GetByID(ctx, id)
	if err != nil || m == nil {
		return m, err
	}

	s.cacheSet(ctx, key, m, s.ttl.MemoryTTL)
	return m, nil
}

// Update applies the present fields to an existing row. The embedding
// is recomputed only when params carries content. Returns (nil, nil)
// when the id does not exist. A per-id lock serializes the read-modify-
// write sequence against concurrent updates to the same row.
func (s *Service) Update(ctx context.Context, id string, params *models.UpdateMemoryParams) (*models.Memory, error) {
	mu := s.updates.lock(id)
	defer mu.Unlock()

	m, err := s.applyUpdate(ctx, s.store, id, params)
	if err != nil || m == nil {
		return m, err
	}

	s.invalidateAll(ctx)
	return m, nil
}

// Delete removes the row; the storage engine cascades links. Returns
// (false, nil) when the id does not exist. A successful delete fires
// the broad cache invalidation so no cached view can resurrect the id.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, models.NewValidationError("id", "required")
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}

	s.invalidateAll(ctx)
	return true, nil
}

// Search embeds the query and returns rows whose cosine similarity is
// at or above the threshold, ordered descending, capped at limit.
// Results are cached for a short TTL under the canonicalized full
// parameter set.
func (s *Service) Search(ctx context.Context, params *models.SearchParams) ([]*models.SearchResult, error) {
	if params == nil {
		return nil, models.NewValidationError("params", "required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	key := searchKey(params)
	if s.cache != nil {
		var cached []*models.SearchResult
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	embedding, err := s.vec.Embed(ctx, params.Query)
	if err != nil {
		return nil, err
	}

	results, err := s.store.Search(ctx, storage.SearchQuery{
		Embedding: embedding,
		Type:      params.Type,
		Tags:      params.Tags,
		Threshold: *params.Threshold,
		Limit:     params.Limit,
	})
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, results, s.ttl.SearchTTL)
	return results, nil
}

// List returns a filtered, ordered page plus the unpaginated total for
// the same filters. Briefly cached.
func (s *Service) List(ctx context.Context, params *models.ListParams) (*models.ListResult, error) {
	if params == nil {
		params = &models.ListParams{}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	key := listKey(params)
	if s.cache != nil {
		var cached models.ListResult
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	query := storage.ListQuery{
		Type:    params.Type,
		Tags:    params.Tags,
		Since:   params.Since,
		Until:   params.Until,
		OrderBy: params.OrderBy,
		Desc:    params.Desc,
		Limit:   params.Limit,
		Offset:  params.Offset,
	}

	memories, err := s.store.List(ctx, query)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &models.ListResult{Memories: memories, Total: total}
	s.cacheSet(ctx, key, result, s.ttl.ListTTL)
	return result, nil
}

// Batch executes an ordered, heterogeneous operation list inside one
// storage transaction. Validation and not-found failures are recorded
// per item and processing continues; any other error aborts and rolls
// back the entire transaction, discarding prior per-item successes.
// This dual contract is deliberate.
func (s *Service) Batch(ctx context.Context, operations []models.BatchOperation) ([]models.BatchResult, error) {
	results := make([]models.BatchResult, 0, len(operations))
	if len(operations) == 0 {
		return results, nil
	}

	var created []*models.Memory
	mutated := false

	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		for i, op := range operations {
			result := models.BatchResult{Index: i, Op: op.Op}

			switch op.Op {
			case models.BatchOpCreate:
				m, err := s.batchCreate(ctx, tx, op.Create)
				if err != nil {
					if !models.IsValidation(err) {
						return err
					}
					result.Error = err.Error()
				} else {
					result.Success = true
					result.ID = m.ID
					result.Memory = m
					created = append(created, m)
					mutated = true
				}

			case models.BatchOpUpdate:
				m, err := s.applyUpdate(ctx, tx, op.ID, op.Update)
				switch {
				case err != nil && !models.IsValidation(err):
					return err
				case err != nil:
					result.Error = err.Error()
				case m == nil:
					result.Error = fmt.Sprintf("memory %q not found", op.ID)
				default:
					result.Success = true
					result.ID = m.ID
					result.Memory = m
					mutated = true
				}

			case models.BatchOpDelete:
				if op.ID == "" {
					result.Error = models.NewValidationError("id", "required").Error()
					break
				}
				deleted, err := tx.Delete(ctx, op.ID)
				switch {
				case err != nil:
					return err
				case !deleted:
					result.Error = fmt.Sprintf("memory %q not found", op.ID)
				default:
					result.Success = true
					result.ID = op.ID
					mutated = true
				}

			default:
				result.Error = models.NewValidationError("op", fmt.Sprintf("unknown operation %q", op.Op)).Error()
			}

			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back; per-item successes recorded so far
		// were discarded with it.
		return nil, err
	}

	for _, m := range created {
		s.publishCreated(m)
	}
	if mutated {
		s.invalidateAll(ctx)
	}
	return results, nil
}

// CreateStream attaches a live subscriber that receives created events
// matching filter. It is forward-only with no history; the caller must
// Close the subscription.
func (s *Service) CreateStream(filter models.StreamFilter) *events.Subscription {
	if s.hub == nil {
		// No hub configured: hand back an already-closed subscription so
		// callers see a closed channel instead of a panic.
		h := events.NewHub(1)
		h.Close()
		return h.Subscribe(filter)
	}
	return s.hub.Subscribe(filter)
}

// Link records a directed edge between two existing memories. Returns
// (nil, nil) when either endpoint does not exist.
func (s *Service) Link(ctx context.Context, params *models.LinkParams) (*models.MemoryLink, error) {
	if params == nil {
		return nil, models.NewValidationError("params", "required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	for _, id := range []string{params.SourceID, params.TargetID} {
		m, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, nil
		}
	}

	link := &models.MemoryLink{
		SourceID:     params.SourceID,
		TargetID:     params.TargetID,
		Relationship: params.Relationship,
		Strength:     params.Strength,
		Metadata:     params.Metadata,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.InsertLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// Unlink removes one link by its full key. Returns (false, nil) when no
// such link exists.
func (s *Service) Unlink(ctx context.Context, sourceID, targetID, relationship string) (bool, error) {
	if sourceID == "" {
		return false, models.NewValidationError("source_id", "required")
	}
	if targetID == "" {
		return false, models.NewValidationError("target_id", "required")
	}
	if relationship == "" {
		return false, models.NewValidationError("relationship", "required")
	}
	return s.store.DeleteLink(ctx, sourceID, targetID, relationship)
}

// LinksFor returns every link touching the memory in either direction.
func (s *Service) LinksFor(ctx context.Context, id string) ([]*models.MemoryLink, error) {
	if id == "" {
		return nil, models.NewValidationError("id", "required")
	}
	return s.store.ListLinks(ctx, id)
}

// Ready reports whether the vectorizer answers a smoke embedding and
// the storage engine responds to a ping. The first call may block while
// the embedding model loads.
func (s *Service) Ready(ctx context.Context) bool {
	if !s.vec.Ready(ctx) {
		return false
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("storage readiness check failed")
		return false
	}
	return true
}

// prepare validates create params and builds the fully-formed row,
// embedding included.
func (s *Service) prepare(ctx context.Context, params *models.CreateMemoryParams) (*models.Memory, error) {
	if params == nil {
		return nil, models.NewValidationError("params", "required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	text := models.CanonicalText(params.Content)
	if text == "" {
		return nil, models.NewValidationError("content", "not representable as text")
	}

	embedding, err := s.vec.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	confidence := 1.0
	if params.Confidence != nil {
		confidence = *params.Confidence
	}
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}

	now := time.Now().UTC()
	return &models.Memory{
		ID:         uuid.New().String(),
		Type:       params.Type,
		Content:    params.Content,
		Source:     params.Source,
		Embedding:  embedding,
		Tags:       tags,
		Confidence: confidence,
		Metadata:   params.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// batchCreate is Create against an arbitrary store without the cache
// and event side effects, which the batch applies after commit.
func (s *Service) batchCreate(ctx context.Context, store storage.Store, params *models.CreateMemoryParams) (*models.Memory, error) {
	if params == nil {
		return nil, models.NewValidationError("create", "required for create operation")
	}
	m, err := s.prepare(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := store.Insert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// applyUpdate runs the read-modify-write sequence against an arbitrary
// store. No per-id lock is held between the read and the write.
func (s *Service) applyUpdate(ctx context.Context, store storage.Store, id string, params *models.UpdateMemoryParams) (*models.Memory, error) {
	if id == "" {
		return nil, models.NewValidationError("id", "required")
	}
	if params == nil || params.Empty() {
		return nil, models.NewValidationError("update", "no fields to update")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	m, err := store.GetByID(ctx, id)
	if err != nil || m == nil {
		return m, err
	}

	if params.Type != nil {
		m.Type = *params.Type
	}
	if params.Source != nil {
		m.Source = *params.Source
	}
	if params.Tags != nil {
		m.Tags = params.Tags
	}
	if params.Confidence != nil {
		m.Confidence = *params.Confidence
	}
	if params.Metadata != nil {
		m.Metadata = params.Metadata
	}
	if params.Content != nil {
		text := models.CanonicalText(params.Content)
		if text == "" {
			return nil, models.NewValidationError("content", "not representable as text")
		}
		embedding, err := s.vec.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		m.Content = params.Content
		m.Embedding = embedding
	}
	m.UpdatedAt = time.Now().UTC()

	updated, err := store.Update(ctx, m)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}
	return m, nil
}

func (s *Service) publishCreated(m *models.Memory) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(&events.Event{Kind: events.KindCreated, Memory: m})
}

// invalidate clears one cache pattern, best-effort.
func (s *Service) invalidate(ctx context.Context, pattern string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidatePattern(ctx, pattern); err != nil {
		s.logger.WithError(err).WithField("pattern", pattern).Warn("cache invalidation failed")
	}
}

// invalidateAll clears every cache namespace. List and search entries
// are keyed by arbitrary filter combinations that cannot be enumerated
// cheaply, so mutations trade cache hit rate for correctness.
func (s *Service) invalidateAll(ctx context.Context) {
	s.invalidate(ctx, memoryKeyPrefix+"*")
	s.invalidate(ctx, listKeyPrefix+"*")
	s.invalidate(ctx, searchKeyPrefix+"*")
}

// cacheSet writes a cache entry, best-effort.
func (s *Service) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}
