package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps points in a SQLite table with the vectors as little-endian float32 BLOBs.
// Filters become SQL WHERE clauses; similarity is computed in process over the filtered rows.
type SQLiteStore struct {
	db         *sql.DB
	collection string
	dimensions int
}

// NewSQLiteStore opens or creates the database at dbPath. Parent directories are created
// if they do not exist.
func NewSQLiteStore(dbPath, collection string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, collection: collection}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS points (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		filename TEXT NOT NULL,
		owner TEXT NOT NULL,
		sequence_id INTEGER NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		summary TEXT NOT NULL,
		content TEXT NOT NULL,
		summary_vector BLOB NOT NULL,
		content_vector BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_points_document ON points(collection, filename, owner);
	CREATE INDEX IF NOT EXISTS idx_points_owner ON points(collection, owner, is_public);
	`
	_, err := db.Exec(schema)
	return err
}

// EnsureCollection records the collection dimension or checks it against the stored one.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	var existing int
	err := s.db.QueryRowContext(ctx, "SELECT dimensions FROM collections WHERE name = ?", s.collection).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx, "INSERT INTO collections (name, dimensions) VALUES (?, ?)", s.collection, dimensions); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read collection: %w", err)
	case existing != dimensions:
		return fmt.Errorf("%w: collection %s has %d, expected %d", ErrDimensionMismatch, s.collection, existing, dimensions)
	}
	s.dimensions = dimensions
	return nil
}

// Upsert writes all points in one transaction. Replaced points keep their row position.
func (s *SQLiteStore) Upsert(ctx context.Context, points []Point) error {
	if s.dimensions == 0 {
		return ErrNotInitialized
	}
	for i := range points {
		if err := checkPoint(&points[i], s.dimensions); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, filename, owner, sequence_id, is_public, summary, content, summary_vector, content_vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			filename = excluded.filename,
			owner = excluded.owner,
			sequence_id = excluded.sequence_id,
			is_public = excluded.is_public,
			summary = excluded.summary,
			content = excluded.content,
			summary_vector = excluded.summary_vector,
			content_vector = excluded.content_vector
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		c := p.Payload
		_, err := stmt.ExecContext(ctx, s.collection, p.ID, c.Filename, c.Owner, c.SequenceID, c.IsPublic,
			c.Summary, c.Content, float32SliceToBytes(p.SummaryVector), float32SliceToBytes(p.ContentVector))
		if err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Search loads the filtered rows with the named vector and ranks them by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, vectorName string, query []float32, filter *Filter, limit int) ([]ScoredPoint, error) {
	if err := checkVectorName(vectorName); err != nil {
		return nil, err
	}
	if s.dimensions == 0 {
		return nil, ErrNotInitialized
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), s.dimensions)
	}
	if limit <= 0 {
		return nil, nil
	}
	where, args, err := s.where(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, filename, owner, sequence_id, is_public, summary, content, "+vectorName+
			" FROM points WHERE "+where+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}
	defer rows.Close()

	var scored []ScoredPoint
	for rows.Next() {
		var sp ScoredPoint
		var blob []byte
		c := &sp.Payload
		if err := rows.Scan(&sp.ID, &c.Filename, &c.Owner, &c.SequenceID, &c.IsPublic, &c.Summary, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		sp.Score = utils.Cosine(query, bytesToFloat32Slice(blob))
		scored = append(scored, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *SQLiteStore) Scroll(ctx context.Context, filter *Filter, limit int) ([]Record, error) {
	where, args, err := s.where(filter)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, filename, owner, sequence_id, is_public, summary, content FROM points WHERE " + where + " ORDER BY rowid"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		c := &r.Payload
		if err := rows.Scan(&r.ID, &c.Filename, &c.Owner, &c.SequenceID, &c.IsPublic, &c.Summary, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, filter *Filter) (int, error) {
	where, args, err := s.where(filter)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, filter *Filter) (int, error) {
	where, args, err := s.where(filter)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM points WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) SetPublic(ctx context.Context, filter *Filter, isPublic bool) (int, error) {
	where, args, err := s.where(filter)
	if err != nil {
		return 0, err
	}
	args = append([]any{isPublic}, args...)
	res, err := s.db.ExecContext(ctx, "UPDATE points SET is_public = ? WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update points: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// where scopes the filter to this collection.
func (s *SQLiteStore) where(filter *Filter) (string, []any, error) {
	args := []any{s.collection}
	clause, err := filterSQL(filter, &args)
	if err != nil {
		return "", nil, err
	}
	if clause == "" {
		return "collection = ?", args, nil
	}
	return "collection = ? AND " + clause, args, nil
}

// filterSQL renders f as a SQL boolean expression, appending bound values to args.
// An empty string means no restriction.
func filterSQL(f *Filter, args *[]any) (string, error) {
	if f == nil {
		return "", nil
	}
	var must []string
	for _, c := range f.Must {
		expr, err := conditionSQL(c, args)
		if err != nil {
			return "", err
		}
		if expr != "" {
			must = append(must, expr)
		}
	}
	var should []string
	var shouldArgs []any
	for _, c := range f.Should {
		expr, err := conditionSQL(c, &shouldArgs)
		if err != nil {
			return "", err
		}
		if expr == "" {
			// an unrestricted alternative satisfies the whole Should clause
			should = nil
			break
		}
		should = append(should, expr)
	}
	if len(should) > 0 {
		must = append(must, "("+strings.Join(should, " OR ")+")")
		*args = append(*args, shouldArgs...)
	}
	return strings.Join(must, " AND "), nil
}

func conditionSQL(c Condition, args *[]any) (string, error) {
	if c.Filter != nil {
		expr, err := filterSQL(c.Filter, args)
		if err != nil || expr == "" {
			return expr, err
		}
		return "(" + expr + ")", nil
	}
	switch c.Key {
	case models.FieldFilename, models.FieldOwner, models.FieldSequenceID, models.FieldIsPublic,
		models.FieldSummary, models.FieldContent:
	default:
		return "", fmt.Errorf("%w: %s", models.ErrInvalidField, c.Key)
	}
	*args = append(*args, c.Value)
	return c.Key + " = ?", nil
}
