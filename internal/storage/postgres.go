package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/qpindex/internal/models"
)

// schemaLockKey serializes concurrent schema bootstraps across processes.
const schemaLockKey = 0x71706978 // "qpix"

// PostgresStorage implements Storage on PostgreSQL with the pgvector extension.
// Nearest-neighbor queries use the <=> (cosine distance) operator.
type PostgresStorage struct {
	pool  *pgxpool.Pool
	opts  Options
	table string
}

// NewPostgresStorage connects a pool to databaseURL. maxConns <= 0 keeps the pgx default.
func NewPostgresStorage(ctx context.Context, databaseURL string, maxConns int32, opts Options) (*PostgresStorage, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		pc.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewPostgresStorageFromPool(pool, opts)
}

// NewPostgresStorageFromPool wraps an existing pool.
func NewPostgresStorageFromPool(pool *pgxpool.Pool, opts Options) (*PostgresStorage, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &PostgresStorage{
		pool:  pool,
		opts:  opts,
		table: pgx.Identifier{opts.Table}.Sanitize(),
	}, nil
}

// EnsureSchema enables pgvector and creates the documents table inside one transaction
// holding an advisory lock, so concurrent callers do not race on CREATE EXTENSION.
// Columns added after the first release are added with IF NOT EXISTS.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistenceErr("ensure schema", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{
		fmt.Sprintf(`SELECT pg_advisory_xact_lock(%d)`, schemaLockKey),
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			content TEXT,
			metadata JSONB,
			embedding vector(%d)
		)`, s.table, s.opts.Dimensions),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS content_hash TEXT`, s.table),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ DEFAULT now()`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (content_hash)`,
			pgx.Identifier{s.opts.Table + "_content_hash_idx"}.Sanitize(), s.table),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return persistenceErr("ensure schema", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return persistenceErr("ensure schema", err)
	}
	return nil
}

// Insert stores doc as one atomic statement.
func (s *PostgresStorage) Insert(ctx context.Context, doc *models.Document) error {
	if err := checkDimensions(doc.Embedding, s.opts.Dimensions); err != nil {
		return err
	}
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	vec := pgvector.NewVector(doc.Embedding)
	hash := ContentHash(doc.Content)

	var query string
	if s.opts.Deduplicate {
		query = fmt.Sprintf(`INSERT INTO %[1]s (content, metadata, embedding, content_hash)
			SELECT $1, $2::jsonb, $3::vector, $4::text
			WHERE NOT EXISTS (SELECT 1 FROM %[1]s WHERE content_hash = $4::text)
			RETURNING id, created_at`, s.table)
	} else {
		query = fmt.Sprintf(`INSERT INTO %s (content, metadata, embedding, content_hash)
			VALUES ($1, $2::jsonb, $3::vector, $4::text)
			RETURNING id, created_at`, s.table)
	}

	var id int64
	var createdAt *time.Time
	err = s.pool.QueryRow(ctx, query, doc.Content, metadataJSON, vec.String(), hash).Scan(&id, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		doc.ID = 0
		return nil
	}
	if err != nil {
		return persistenceErr("insert", err)
	}
	doc.ID = id
	if createdAt != nil {
		doc.CreatedAt = *createdAt
	}
	return nil
}

// NearestNeighbors orders rows by embedding <=> vec, ties by id.
func (s *PostgresStorage) NearestNeighbors(ctx context.Context, vec []float32, k int) ([]*models.Document, error) {
	if k <= 0 {
		k = DefaultK
	}
	if err := checkDimensions(vec, s.opts.Dimensions); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, content, metadata, embedding <=> $1::vector AS distance
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY distance, id
		LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vec).String(), k)
	if err != nil {
		return nil, persistenceErr("query neighbors", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0, k)
	for rows.Next() {
		var doc models.Document
		var content *string
		var metadataJSON []byte
		if err := rows.Scan(&doc.ID, &content, &metadataJSON, &doc.Distance); err != nil {
			return nil, persistenceErr("scan neighbor", err)
		}
		if content != nil {
			doc.Content = *content
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				return nil, persistenceErr("unmarshal metadata", err)
			}
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate neighbors", err)
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *PostgresStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count); err != nil {
		return 0, persistenceErr("count", err)
	}
	return count, nil
}

// Close releases the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ Storage = (*PostgresStorage)(nil)
	_ Storage = (*SQLiteStorage)(nil)
)
