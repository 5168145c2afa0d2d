// Package store persists embedded chunks in SQLite with a sqlite-vec KNN index.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// ErrDimensionMismatch is returned by Open when an existing index was built
// with vectors of a different length.
var ErrDimensionMismatch = errors.New("index embedding dimension mismatch")

// Document is an indexed chunk. Lines are 1-based and half-open.
type Document struct {
	ID        int64
	FilePath  string
	StartLine int
	EndLine   int
	Content   string
	Embedding []float32
}

// Stats holds index statistics.
type Stats struct {
	Files     int64
	Chunks    int64
	SizeBytes int64
}

// Store is the vector storage backend.
type Store struct {
	db   *sql.DB
	path string
	dims int
}

// Open opens or creates a store at path for vectors of length dims.
func Open(path string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dims)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	sqlite_vec.Auto()

	dsn := "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=10000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; sqlite serializes them anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, dims: dims}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
			embedding float[%d] distance_metric=l2
		)`, s.dims),
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = 'dims'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO metadata (key, value) VALUES ('dims', ?)`, strconv.Itoa(s.dims))
		return err
	case err != nil:
		return err
	case stored != strconv.Itoa(s.dims):
		return fmt.Errorf("%w: index has %s, want %d", ErrDimensionMismatch, stored, s.dims)
	}
	return nil
}

// FileHashes returns the content hash recorded for every indexed file.
func (s *Store) FileHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, hash FROM files`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// ReplaceFile atomically swaps all chunks of path for docs and records hash.
func (s *Store) ReplaceFile(ctx context.Context, path, hash string, docs []*Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deletePath(ctx, tx, path); err != nil {
		return err
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (path, start_line, end_line, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = chunkStmt.Close() }()

	vecStmt, err := tx.PrepareContext(ctx, `INSERT INTO vec_chunks (rowid, embedding) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = vecStmt.Close() }()

	for _, doc := range docs {
		if len(doc.Embedding) != s.dims {
			return fmt.Errorf("%w: chunk of %s has %d, want %d", ErrDimensionMismatch, path, len(doc.Embedding), s.dims)
		}

		res, err := chunkStmt.ExecContext(ctx, path, doc.StartLine, doc.EndLine, doc.Content)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		doc.ID = id
		doc.FilePath = path

		blob, err := sqlite_vec.SerializeFloat32(doc.Embedding)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		if _, err := vecStmt.ExecContext(ctx, id, blob); err != nil {
			return fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash`, path, hash); err != nil {
		return fmt.Errorf("failed to record file hash: %w", err)
	}

	return tx.Commit()
}

// DeleteByPath removes a file and all of its chunks.
func (s *Store) DeleteByPath(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deletePath(ctx, tx, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return err
	}
	return tx.Commit()
}

func deletePath(ctx context.Context, tx *sql.Tx, path string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE rowid = ?`, id); err != nil {
			return fmt.Errorf("failed to delete embedding: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Search finds the limit chunks nearest to embedding, closest first.
// Uses two-phase search: KNN first, then load documents.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]*Document, []float64, error) {
	if limit <= 0 {
		return nil, nil, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM vec_chunks
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, blob, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("KNN search failed: %w", err)
	}

	var ids []int64
	var distances []float64
	for rows.Next() {
		var id int64
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			_ = rows.Close()
			return nil, nil, err
		}
		ids = append(ids, id)
		distances = append(distances, distance)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	docRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, path, start_line, end_line, content
		FROM chunks
		WHERE id IN (%s)
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("document fetch failed: %w", err)
	}
	defer func() { _ = docRows.Close() }()

	byID := make(map[int64]*Document, len(ids))
	for docRows.Next() {
		var doc Document
		if err := docRows.Scan(&doc.ID, &doc.FilePath, &doc.StartLine, &doc.EndLine, &doc.Content); err != nil {
			return nil, nil, err
		}
		byID[doc.ID] = &doc
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, err
	}

	docs := make([]*Document, 0, len(ids))
	dists := make([]float64, 0, len(ids))
	for i, id := range ids {
		if d, ok := byID[id]; ok {
			docs = append(docs, d)
			dists = append(dists, distances[i])
		}
	}
	return docs, dists, nil
}

// Stats returns index statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&stats.Files); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return nil, err
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return &stats, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}
