package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Schema creates the table PostgresStore reads. %[1]s is the table name.
const Schema = `CREATE TABLE IF NOT EXISTS %[1]s (
	tenant_id  TEXT NOT NULL,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, collection, id)
);
CREATE INDEX IF NOT EXISTS %[1]s_data_gin ON %[1]s USING GIN (data);`

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresStore keeps every tenant document as a JSONB row keyed by
// (tenant_id, collection, id).
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{db: db, table: table}, nil
}

// EnsureSchema creates the documents table and its GIN index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(Schema, s.table)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, collection, id string) (*Document, error) {
	query := fmt.Sprintf(
		`SELECT data FROM %s WHERE tenant_id = $1 AND collection = $2 AND id = $3`, s.table)

	var data []byte
	err := s.db.QueryRowContext(ctx, query, tenantID, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Data: data}, nil
}

func (s *PostgresStore) Query(ctx context.Context, tenantID string, q Query) ([]Document, error) {
	query, args, err := s.buildQuery(tenantID, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Collection, err)
	}
	return docs, nil
}

// buildQuery renders q as SQL. Field names are validated by Query.Validate
// before they are spliced into JSON path literals; values are bound.
func (s *PostgresStore) buildQuery(tenantID string, q Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := []any{tenantID, q.Collection}
	fmt.Fprintf(&b, "SELECT id, data FROM %s WHERE tenant_id = $1 AND collection = $2", s.table)

	for _, f := range q.Filters {
		args = append(args, f.Value)
		switch f.Op {
		case OpEqual:
			fmt.Fprintf(&b, " AND data #>> '%s' = $%d", jsonPath(f.Field), len(args))
		case OpArrayContains:
			fmt.Fprintf(&b, " AND data #> '%s' ? $%d", jsonPath(f.Field), len(args))
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY data #>> '%s' %s NULLS LAST", jsonPath(q.OrderBy), dir)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}

// jsonPath turns "associations.deals" into the text array '{associations,deals}'.
func jsonPath(field string) string {
	return "{" + strings.ReplaceAll(field, ".", ",") + "}"
}
