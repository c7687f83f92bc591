package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// maxBatch keeps IN (...) lists under SQLite's host parameter limit.
const maxBatch = 900

// SQLStore serves the code graph straight from a SQL database. Everything is
// resident, so LoadSubgraph never has anything to do.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLite creates or opens a SQLite database and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open graph db %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping graph db %s: %w", path, err)
	}
	s := &SQLStore{db: db}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init graph schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// InitSchema creates the tables and indexes if they do not exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS vertices (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT,
			defining_type TEXT,
			file_name TEXT,
			begin_line INTEGER,
			end_line INTEGER,
			properties JSON
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			parent_id INTEGER,
			child_id INTEGER,
			ordinal INTEGER,
			PRIMARY KEY (parent_id, ordinal)
		);`,
		`CREATE TABLE IF NOT EXISTS calls (
			invocation_id INTEGER,
			target_id INTEGER,
			PRIMARY KEY (invocation_id, target_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vertices_kind ON vertices(kind);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Save replaces the stored graph with g: every vertex, child edge and call
// edge, loading deferred types first.
func (s *SQLStore) Save(ctx context.Context, g *Graph) (err error) {
	if err := g.LoadAll(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"calls", "edges", "vertices"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insVertex, err := tx.PrepareContext(ctx, `INSERT INTO vertices
		(id, kind, name, defining_type, file_name, begin_line, end_line, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare vertices: %w", err)
	}
	defer insVertex.Close()
	insEdge, err := tx.PrepareContext(ctx, `INSERT INTO edges (parent_id, child_id, ordinal) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edges: %w", err)
	}
	defer insEdge.Close()
	insCall, err := tx.PrepareContext(ctx, `INSERT INTO calls (invocation_id, target_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare calls: %w", err)
	}
	defer insCall.Close()

	err = g.Each(func(v *Vertex, children, targets []VertexID) error {
		props, err := json.Marshal(v.Properties)
		if err != nil {
			return fmt.Errorf("marshal properties of %d: %w", v.ID, err)
		}
		if _, err := insVertex.ExecContext(ctx, int64(v.ID), string(v.Kind), v.Name, v.DefiningType,
			v.FileName, v.BeginLine, v.EndLine, string(props)); err != nil {
			return fmt.Errorf("insert vertex %d: %w", v.ID, err)
		}
		for i, c := range children {
			if _, err := insEdge.ExecContext(ctx, int64(v.ID), int64(c), i); err != nil {
				return fmt.Errorf("insert edge %d→%d: %w", v.ID, c, err)
			}
		}
		for _, t := range targets {
			if _, err := insCall.ExecContext(ctx, int64(v.ID), int64(t)); err != nil {
				return fmt.Errorf("insert call %d→%d: %w", v.ID, t, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Vertices implements Provider with one IN (...) query per batch of ids.
func (s *SQLStore) Vertices(ctx context.Context, ids []VertexID) ([]*Vertex, error) {
	found := make(map[VertexID]*Vertex, len(ids))
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		if err := s.fetchVertices(ctx, ids[start:end], found); err != nil {
			return nil, err
		}
	}
	out := make([]*Vertex, len(ids))
	for i, id := range ids {
		v, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("vertex %d: %w", id, ErrVertexNotFound)
		}
		out[i] = v
	}
	return out, nil
}

func (s *SQLStore) fetchVertices(ctx context.Context, ids []VertexID, into map[VertexID]*Vertex) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query := fmt.Sprintf(`SELECT id, kind, name, defining_type, file_name, begin_line, end_line, properties
		FROM vertices WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query vertices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v                       Vertex
			id                      int64
			kind                    string
			name, defType, fileName sql.NullString
			beginLine, endLine      sql.NullInt64
			props                   sql.NullString
		)
		if err := rows.Scan(&id, &kind, &name, &defType, &fileName, &beginLine, &endLine, &props); err != nil {
			return fmt.Errorf("scan vertex: %w", err)
		}
		v.ID = VertexID(id)
		v.Kind = Kind(kind)
		v.Name = name.String
		v.DefiningType = defType.String
		v.FileName = fileName.String
		v.BeginLine = int(beginLine.Int64)
		v.EndLine = int(endLine.Int64)
		if props.Valid && props.String != "" && props.String != "null" {
			if err := json.Unmarshal([]byte(props.String), &v.Properties); err != nil {
				return fmt.Errorf("decode properties of %d: %w", id, err)
			}
		}
		into[v.ID] = &v
	}
	return rows.Err()
}

// Children implements Provider.
func (s *SQLStore) Children(ctx context.Context, id VertexID) ([]VertexID, error) {
	return s.queryIDs(ctx, `SELECT child_id FROM edges WHERE parent_id = ? ORDER BY ordinal`, int64(id))
}

// CallTargets implements Provider.
func (s *SQLStore) CallTargets(ctx context.Context, invocation VertexID) ([]VertexID, error) {
	return s.queryIDs(ctx, `SELECT target_id FROM calls WHERE invocation_id = ? ORDER BY target_id`, int64(invocation))
}

// Methods implements Provider.
func (s *SQLStore) Methods(ctx context.Context) ([]VertexID, error) {
	return s.queryIDs(ctx, `SELECT id FROM vertices WHERE kind = ? ORDER BY id`, string(KindMethod))
}

// LoadSubgraph implements Provider. The store holds every type already.
func (s *SQLStore) LoadSubgraph(ctx context.Context, definingType string) (bool, error) {
	return false, nil
}

func (s *SQLStore) queryIDs(ctx context.Context, query string, arg any) ([]VertexID, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()
	var out []VertexID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, VertexID(id))
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
