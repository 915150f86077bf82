package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/qpindex/internal/models"
)

// SQLiteStorage implements Storage on a local SQLite file. Nearest-neighbor queries scan
// every row and rank by cosine distance in Go, so it suits development and small corpora.
type SQLiteStorage struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath.
// Parent directories are created if they do not exist. The schema is created by EnsureSchema.
func NewSQLiteStorage(dbPath string, opts Options) (*SQLiteStorage, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// busy_timeout is per connection, so it goes in the DSN rather than a PRAGMA.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	return &SQLiteStorage{db: db, opts: opts}, nil
}

// EnsureSchema creates the documents table and its hash index if absent.
func (s *SQLiteStorage) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT,
		metadata TEXT,
		embedding BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		content_hash TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_content_hash ON %[1]s(content_hash);
	`, s.opts.Table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return persistenceErr("ensure schema", err)
	}
	return nil
}

// Insert stores doc. The embedding length must equal the configured dimension.
func (s *SQLiteStorage) Insert(ctx context.Context, doc *models.Document) error {
	if err := checkDimensions(doc.Embedding, s.opts.Dimensions); err != nil {
		return err
	}
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	hash := ContentHash(doc.Content)
	doc.CreatedAt = time.Now()

	var query string
	args := []interface{}{doc.Content, metadataJSON, encodeVector(doc.Embedding), len(doc.Embedding), hash, doc.CreatedAt}
	if s.opts.Deduplicate {
		query = fmt.Sprintf(`INSERT INTO %[1]s (content, metadata, embedding, dimensions, content_hash, created_at)
			SELECT ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM %[1]s WHERE content_hash = ?)`, s.opts.Table)
		args = append(args, hash)
	} else {
		query = fmt.Sprintf(`INSERT INTO %s (content, metadata, embedding, dimensions, content_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, s.opts.Table)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistenceErr("insert", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		doc.ID = 0
		return nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return persistenceErr("insert id", err)
	}
	doc.ID = id
	return nil
}

// NearestNeighbors ranks every stored row by cosine distance to vec.
func (s *SQLiteStorage) NearestNeighbors(ctx context.Context, vec []float32, k int) ([]*models.Document, error) {
	if k <= 0 {
		k = DefaultK
	}
	if err := checkDimensions(vec, s.opts.Dimensions); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, content, metadata, embedding, created_at FROM %s`, s.opts.Table))
	if err != nil {
		return nil, persistenceErr("query neighbors", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		var doc models.Document
		var content, metadataJSON sql.NullString
		var blob []byte
		if err := rows.Scan(&doc.ID, &content, &metadataJSON, &blob, &doc.CreatedAt); err != nil {
			return nil, persistenceErr("scan neighbor", err)
		}
		doc.Content = content.String
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
				return nil, persistenceErr("unmarshal metadata", err)
			}
		}
		doc.Embedding = decodeVector(blob)
		doc.Distance = CosineDistance(vec, doc.Embedding)
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate neighbors", err)
	}
	return rankByDistance(docs, k), nil
}

// Count returns the number of stored documents.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.opts.Table)).Scan(&count)
	if err != nil {
		return 0, persistenceErr("count", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func marshalMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal metadata: %w", models.ErrPersistence, err)
	}
	return string(data), nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
