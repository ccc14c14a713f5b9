package knowledge

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

const ragIndexFile = "index.db"

// DocState records one indexed document and the modification time it was
// indexed at.
type DocState struct {
	Path       string `json:"path"`
	ModifiedAt int64  `json:"modifiedAt"`
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	ID         string
	SourcePath string
	Text       string
	Embedding  []float32
	Norm       float32
}

// Store persists the semantic index in a sqlite database under
// .creatorai/rag. Rebuilds replace the whole index atomically.
type Store struct {
	db *sql.DB
}

func OpenStore(projectRoot string) (*Store, error) {
	if err := ensureRagDir(projectRoot); err != nil {
		return nil, err
	}
	dir, err := security.ValidatePath(projectRoot, ragDir)
	if err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dir, ragIndexFile)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS docs (
		path TEXT PRIMARY KEY,
		modified_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		norm REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_path);
	`
	_, err := s.db.Exec(schema)
	return err
}

// HasIndex reports whether a build has ever completed.
func (s *Store) HasIndex() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'createdAt'`).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Replace swaps the whole index in one transaction.
func (s *Store) Replace(docs []DocState, chunks []Chunk, model string, createdAt int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM docs`, `DELETE FROM chunks`, `DELETE FROM meta`} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	for _, kv := range [][2]string{
		{"schemaVersion", fmt.Sprintf("%d", schemaVersion)},
		{"model", model},
		{"createdAt", fmt.Sprintf("%d", createdAt)},
	} {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return err
		}
	}

	for _, d := range docs {
		if _, err := tx.Exec(`INSERT INTO docs (path, modified_at) VALUES (?, ?)`, d.Path, d.ModifiedAt); err != nil {
			return err
		}
	}
	for _, c := range chunks {
		if _, err := tx.Exec(
			`INSERT INTO chunks (id, source_path, text, embedding, norm) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.SourcePath, c.Text, encodeVector(c.Embedding), c.Norm,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DocStates returns the indexed document set for staleness comparison.
func (s *Store) DocStates() ([]DocState, error) {
	rows, err := s.db.Query(`SELECT path, modified_at FROM docs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocState
	for rows.Next() {
		var d DocState
		if err := rows.Scan(&d.Path, &d.ModifiedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Chunks loads every embedded chunk.
func (s *Store) Chunks() ([]Chunk, error) {
	rows, err := s.db.Query(`SELECT id, source_path, text, embedding, norm FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.SourcePath, &c.Text, &blob, &c.Norm); err != nil {
			return nil, err
		}
		c.Embedding = decodeVector(blob)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
