package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/config"
	"dev.helix.recall/internal/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// query code serves pooled and transactional execution.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on PostgreSQL with pgvector.
type Postgres struct {
	pool   *pgxpool.Pool // nil inside a transaction
	q      querier
	logger *logrus.Logger
}

// Connect builds a pooled Postgres store and verifies connectivity.
// pgvector codecs are registered on every new connection.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (*Postgres, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.WithField("database", cfg.Name).Info("connected to PostgreSQL")
	return &Postgres{pool: pool, q: pool, logger: logger}, nil
}

// EnsureSchema creates the vector extension, tables, and indexes. The
// embedding column dimension is fixed per deployment.
func (p *Postgres) EnsureSchema(ctx context.Context, dimension int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			content JSONB NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		`CREATE TABLE IF NOT EXISTS memory_links (
			source_id UUID NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			target_id UUID NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			relationship TEXT NOT NULL,
			strength DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (source_id, target_id, relationship)
		)`,
		`CREATE INDEX IF NOT EXISTS memories_type_idx ON memories (type)`,
		`CREATE INDEX IF NOT EXISTS memories_tags_idx ON memories USING gin (tags)`,
		`CREATE INDEX IF NOT EXISTS memories_embedding_idx ON memories
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}

	for _, stmt := range statements {
		if _, err := p.q.Exec(ctx, stmt); err != nil {
			return models.NewStorageError("ensure schema", err)
		}
	}
	return nil
}

const memoryColumns = `id, type, content, source, embedding, tags, confidence, metadata, created_at, updated_at`

// Insert persists one fully-formed memory row.
func (p *Postgres) Insert(ctx context.Context, m *models.Memory) error {
	_, err := p.q.Exec(ctx, `INSERT INTO memories (`+memoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Type, m.Content, m.Source, pgvector.NewVector(m.Embedding),
		m.Tags, m.Confidence, m.Metadata, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return models.NewStorageError("insert memory", err)
	}
	return nil
}

// GetByID returns the memory or (nil, nil) when absent.
func (p *Postgres) GetByID(ctx context.Context, id string) (*models.Memory, error) {
	row := p.q.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError("get memory", err)
	}
	return m, nil
}

// Update rewrites the full row. Returns false when the id does not
// exist.
func (p *Postgres) Update(ctx context.Context, m *models.Memory) (bool, error) {
	tag, err := p.q.Exec(ctx, `UPDATE memories
		SET type = $2, content = $3, source = $4, embedding = $5,
		    tags = $6, confidence = $7, metadata = $8, updated_at = $9
		WHERE id = $1`,
		m.ID, m.Type, m.Content, m.Source, pgvector.NewVector(m.Embedding),
		m.Tags, m.Confidence, m.Metadata, m.UpdatedAt)
	if err != nil {
		return false, models.NewStorageError("update memory", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the row; links cascade at the engine level. Returns
// false when the id does not exist.
func (p *Postgres) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := p.q.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return false, models.NewStorageError("delete memory", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Search runs a cosine-similarity query with optional type and tag
// filters, keeps rows at or above the threshold, and orders by
// similarity descending.
func (p *Postgres) Search(ctx context.Context, q SearchQuery) ([]*models.SearchResult, error) {
	args := []any{pgvector.NewVector(q.Embedding), q.Threshold}
	conditions := []string{`1 - (embedding <=> $1) >= $2`}

	if q.Type != "" {
		args = append(args, q.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(q.Tags) > 0 {
		args = append(args, q.Tags)
		conditions = append(conditions, fmt.Sprintf("tags && $%d", len(args)))
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM memories
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d`, memoryColumns, strings.Join(conditions, " AND "), len(args))

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, models.NewStorageError("search memories", err)
	}
	defer rows.Close()

	results := make([]*models.SearchResult, 0)
	for rows.Next() {
		m := &models.Memory{}
		var embedding pgvector.Vector
		var similarity float64
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &m.Source, &embedding,
			&m.Tags, &m.Confidence, &m.Metadata, &m.CreatedAt, &m.UpdatedAt, &similarity); err != nil {
			return nil, models.NewStorageError("scan search row", err)
		}
		m.Embedding = embedding.Slice()
		results = append(results, &models.SearchResult{Memory: m, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("iterate search rows", err)
	}
	return results, nil
}

// List returns a filtered page ordered by an allow-listed column.
func (p *Postgres) List(ctx context.Context, q ListQuery) ([]*models.Memory, error) {
	where, args := listFilters(q)
	orderBy, err := orderClause(q.OrderBy, q.Desc)
	if err != nil {
		return nil, err
	}

	args = append(args, q.Limit)
	limitIdx := len(args)
	args = append(args, q.Offset)
	query := fmt.Sprintf(`SELECT %s FROM memories%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		memoryColumns, where, orderBy, limitIdx, len(args))

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, models.NewStorageError("list memories", err)
	}
	defer rows.Close()

	memories := make([]*models.Memory, 0)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, models.NewStorageError("scan list row", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("iterate list rows", err)
	}
	return memories, nil
}

// Count returns the unpaginated total for the same filters as List.
func (p *Postgres) Count(ctx context.Context, q ListQuery) (int64, error) {
	where, args := listFilters(q)

	var total int64
	err := p.q.QueryRow(ctx, `SELECT COUNT(*) FROM memories`+where, args...).Scan(&total)
	if err != nil {
		return 0, models.NewStorageError("count memories", err)
	}
	return total, nil
}

// InsertLink persists one directed link. The engine enforces endpoint
// existence and (source, target, relationship) uniqueness.
func (p *Postgres) InsertLink(ctx context.Context, link *models.MemoryLink) error {
	_, err := p.q.Exec(ctx, `INSERT INTO memory_links
		(source_id, target_id, relationship, strength, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		link.SourceID, link.TargetID, link.Relationship, link.Strength, link.Metadata, link.CreatedAt)
	if err != nil {
		return models.NewStorageError("insert link", err)
	}
	return nil
}

// ListLinks returns every link touching the memory, in either
// direction.
func (p *Postgres) ListLinks(ctx context.Context, memoryID string) ([]*models.MemoryLink, error) {
	rows, err := p.q.Query(ctx, `SELECT source_id, target_id, relationship, strength, metadata, created_at
		FROM memory_links WHERE source_id = $1 OR target_id = $1
		ORDER BY created_at`, memoryID)
	if err != nil {
		return nil, models.NewStorageError("list links", err)
	}
	defer rows.Close()

	links := make([]*models.MemoryLink, 0)
	for rows.Next() {
		link := &models.MemoryLink{}
		if err := rows.Scan(&link.SourceID, &link.TargetID, &link.Relationship,
			&link.Strength, &link.Metadata, &link.CreatedAt); err != nil {
			return nil, models.NewStorageError("scan link row", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("iterate link rows", err)
	}
	return links, nil
}

// DeleteLink removes one link by its full key. Returns false when no
// such link exists.
func (p *Postgres) DeleteLink(ctx context.Context, sourceID, targetID, relationship string) (bool, error) {
	tag, err := p.q.Exec(ctx, `DELETE FROM memory_links
		WHERE source_id = $1 AND target_id = $2 AND relationship = $3`,
		sourceID, targetID, relationship)
	if err != nil {
		return false, models.NewStorageError("delete link", err)
	}
	return tag.RowsAffected() > 0, nil
}

// WithTx runs fn inside one transaction; any error from fn rolls back
// everything written through the transactional store.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if p.pool == nil {
		return models.NewStorageError("begin transaction", errors.New("nested transactions are not supported"))
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return models.NewStorageError("begin transaction", err)
	}

	txStore := &Postgres{q: tx, logger: p.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.logger.WithError(rbErr).Warn("transaction rollback failed")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.NewStorageError("commit transaction", err)
	}
	return nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// scanMemory reads one row in memoryColumns order.
func scanMemory(row pgx.Row) (*models.Memory, error) {
	m := &models.Memory{}
	var embedding pgvector.Vector
	if err := row.Scan(&m.ID, &m.Type, &m.Content, &m.Source, &embedding,
		&m.Tags, &m.Confidence, &m.Metadata, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Embedding = embedding.Slice()
	return m, nil
}

// listFilters builds the WHERE clause shared by List and Count. Values
// are always bound parameters, never interpolated.
func listFilters(q ListQuery) (string, []any) {
	var conditions []string
	var args []any

	if q.Type != "" {
		args = append(args, q.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(q.Tags) > 0 {
		args = append(args, q.Tags)
		conditions = append(conditions, fmt.Sprintf("tags && $%d", len(args)))
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if q.Until != nil {
		args = append(args, *q.Until)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// orderableColumns maps allow-listed sort columns to SQL identifiers.
// The service layer validates orderBy before it gets here; this map is
// the second line of defense so an unchecked value can never reach the
// query text.
var orderableColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"confidence": "confidence",
	"type":       "type",
}

func orderClause(orderBy string, desc bool) (string, error) {
	column, ok := orderableColumns[orderBy]
	if !ok {
		return "", models.NewValidationError("order_by", fmt.Sprintf("column %q is not orderable", orderBy))
	}
	if desc {
		return column + " DESC", nil
	}
	return column + " ASC", nil
}
