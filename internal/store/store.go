// Package store defines the tenant-scoped document store the deal context
// aggregator reads from, along with its Postgres, Elasticsearch, in-memory
// and Redis-cached implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotFound is returned by Get when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// ErrMalformedDocument wraps decode failures. Rereading the same document
// fails the same way.
var ErrMalformedDocument = errors.New("malformed document")

// TenantDocumentStore is a read-only view of a multi-tenant, schema-less
// document store. Collections are tenant-relative paths such as "deals" or
// "deals/d1/notes". Implementations must be safe for concurrent use.
type TenantDocumentStore interface {
	Get(ctx context.Context, tenantID, collection, id string) (*Document, error)
	Query(ctx context.Context, tenantID string, q Query) ([]Document, error)
}

// Document is a raw stored record.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document into v and sets its "id" field to the
// document id.
func (d Document) Decode(v any) error {
	if len(d.Data) > 0 {
		if err := json.Unmarshal(d.Data, v); err != nil {
			return fmt.Errorf("decode document %s: %w: %w", d.ID, ErrMalformedDocument, err)
		}
	}
	idDoc, err := json.Marshal(map[string]string{"id": d.ID})
	if err != nil {
		return err
	}
	return json.Unmarshal(idDoc, v)
}

type Operator string

const (
	OpEqual         Operator = "=="
	OpArrayContains Operator = "array-contains"
)

// Filter matches documents whose field (dot-separated path) equals Value,
// or, for OpArrayContains, whose array field holds Value.
type Filter struct {
	Field string
	Op    Operator
	Value string
}

func Where(field string, op Operator, value string) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Validate rejects queries a backend could not express safely.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Collection) == "" {
		return errors.New("query collection is required")
	}
	if q.Limit < 0 {
		return fmt.Errorf("query limit must not be negative: %d", q.Limit)
	}
	if q.OrderBy != "" && !fieldPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
		if f.Op != OpEqual && f.Op != OpArrayContains {
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return nil
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " where %s %s %s", f.Field, f.Op, f.Value)
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order by %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", q.Limit)
	}
	return b.String()
}
