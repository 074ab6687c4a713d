// Package storage reads and writes store snapshots as single SQLite files.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TylerDurden17/support-agent/internal/models"
)

// SchemaVersion is written to every snapshot; readers reject other versions.
const SchemaVersion = 1

// ErrCorruptSnapshot is returned when a snapshot file exists but cannot be decoded
// into a consistent store.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

const schema = `
CREATE TABLE manifest (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE chunks (
	seq      INTEGER PRIMARY KEY,
	id       TEXT NOT NULL UNIQUE,
	text     TEXT NOT NULL,
	metadata TEXT,
	vector   BLOB NOT NULL
);
`

const (
	keySchemaVersion = "schema_version"
	keyDimensions    = "dimensions"
	keyProvider      = "provider"
	keyBuildID       = "build_id"
	keyBuiltAt       = "built_at"
	keyFingerprint   = "fingerprint"
	keyEntries       = "entries"
)

// WriteSnapshot writes m and entries to path atomically: the snapshot is built in a
// temporary file next to path, synced, and renamed over path. On any error path is
// left untouched and the temporary file is removed.
func WriteSnapshot(ctx context.Context, path string, m models.Manifest, entries []models.Entry) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
			_ = os.Remove(tmpPath + "-journal")
		}
	}()

	if err := writeDB(ctx, tmpPath, m, entries); err != nil {
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	// The rename is durable once the directory entry is synced. Not every platform
	// allows syncing a directory, so failures here are ignored.
	_ = syncFile(dir)
	return nil
}

func writeDB(ctx context.Context, path string, m models.Manifest, entries []models.Entry) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous=FULL"); err != nil {
		return fmt.Errorf("failed to set synchronous: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	manifest := map[string]string{
		keySchemaVersion: strconv.Itoa(SchemaVersion),
		keyDimensions:    strconv.Itoa(m.Dimensions),
		keyProvider:      m.Provider,
		keyBuildID:       m.BuildID,
		keyFingerprint:   m.Fingerprint,
		keyEntries:       strconv.Itoa(len(entries)),
	}
	if !m.BuiltAt.IsZero() {
		manifest[keyBuiltAt] = m.BuiltAt.UTC().Format(time.RFC3339Nano)
	}
	for k, v := range manifest {
		if _, err := tx.ExecContext(ctx, `INSERT INTO manifest (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (seq, id, text, metadata, vector) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range entries {
		var metadata []byte
		if len(e.Chunk.Metadata) > 0 {
			if metadata, err = json.Marshal(e.Chunk.Metadata); err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", e.Chunk.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, i, e.Chunk.ID, e.Chunk.Text, string(metadata), EncodeVector(e.Vector)); err != nil {
			return fmt.Errorf("failed to write chunk %s: %w", e.Chunk.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return db.Close()
}

// ReadManifest reads only the manifest of the snapshot at path, without decoding
// any vectors. Errors are reported like ReadSnapshot's.
func ReadManifest(ctx context.Context, path string) (models.Manifest, error) {
	db, err := openSnapshot(path)
	if err != nil {
		return models.Manifest{}, err
	}
	defer db.Close()
	raw, err := readManifest(ctx, db)
	if err != nil {
		return models.Manifest{}, corrupt(ctx, "read manifest", err)
	}
	m, err := parseManifest(raw)
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return m, nil
}

func openSnapshot(path string) (*sql.DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrCorruptSnapshot, path)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	return db, nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot. A missing file yields an
// error satisfying errors.Is(err, fs.ErrNotExist); a file that is not a valid
// snapshot yields ErrCorruptSnapshot.
func ReadSnapshot(ctx context.Context, path string) (models.Manifest, []models.Entry, error) {
	var m models.Manifest
	db, err := openSnapshot(path)
	if err != nil {
		return m, nil, err
	}
	defer db.Close()

	raw, err := readManifest(ctx, db)
	if err != nil {
		return m, nil, corrupt(ctx, "read manifest", err)
	}
	if m, err = parseManifest(raw); err != nil {
		return m, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	entries, err := readChunks(ctx, db, m.Dimensions)
	if err != nil {
		return m, nil, corrupt(ctx, "read chunks", err)
	}
	if len(entries) != m.Entries {
		return m, nil, fmt.Errorf("%w: manifest lists %d entries, found %d", ErrCorruptSnapshot, m.Entries, len(entries))
	}
	return m, entries, nil
}

// corrupt wraps a read failure as ErrCorruptSnapshot unless it was caused by ctx.
func corrupt(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, op, err)
}

func readManifest(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM manifest`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func parseManifest(raw map[string]string) (models.Manifest, error) {
	var m models.Manifest
	version, err := strconv.Atoi(raw[keySchemaVersion])
	if err != nil || version != SchemaVersion {
		return m, fmt.Errorf("unsupported schema version %q", raw[keySchemaVersion])
	}
	if m.Dimensions, err = strconv.Atoi(raw[keyDimensions]); err != nil || m.Dimensions <= 0 {
		return m, fmt.Errorf("invalid dimensions %q", raw[keyDimensions])
	}
	if m.Entries, err = strconv.Atoi(raw[keyEntries]); err != nil || m.Entries < 0 {
		return m, fmt.Errorf("invalid entry count %q", raw[keyEntries])
	}
	m.Provider = raw[keyProvider]
	m.BuildID = raw[keyBuildID]
	m.Fingerprint = raw[keyFingerprint]
	if s := raw[keyBuiltAt]; s != "" {
		if m.BuiltAt, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return m, fmt.Errorf("invalid built_at %q", s)
		}
	}
	return m, nil
}

func readChunks(ctx context.Context, db *sql.DB, dimensions int) ([]models.Entry, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, text, metadata, vector FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.Entry
	seen := make(map[string]struct{})
	for rows.Next() {
		var (
			e        models.Entry
			metadata sql.NullString
			blob     []byte
		)
		if err := rows.Scan(&e.Chunk.ID, &e.Chunk.Text, &metadata, &blob); err != nil {
			return nil, err
		}
		if e.Chunk.ID == "" || e.Chunk.Text == "" {
			return nil, fmt.Errorf("chunk at position %d has an empty id or text", len(entries))
		}
		if _, dup := seen[e.Chunk.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %s", e.Chunk.ID)
		}
		seen[e.Chunk.ID] = struct{}{}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("chunk %s metadata: %w", e.Chunk.ID, err)
			}
		}
		if len(blob) != dimensions*4 {
			return nil, fmt.Errorf("chunk %s vector has %d bytes, want %d", e.Chunk.ID, len(blob), dimensions*4)
		}
		e.Vector = DecodeVector(blob)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EncodeVector encodes v as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(x))
	}
	return out
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
