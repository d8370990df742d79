package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryStore keeps documents in process. It backs the preview tool and
// the tests of packages that depend on a TenantDocumentStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]memDoc // tenant -> collection -> docs in insertion order
}

type memDoc struct {
	id   string
	data json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string][]memDoc)}
}

// Put stores v (anything json.Marshal accepts) under tenant/collection/id,
// replacing an existing document with the same id.
func (m *MemoryStore) Put(tenantID, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	colls, ok := m.docs[tenantID]
	if !ok {
		colls = make(map[string][]memDoc)
		m.docs[tenantID] = colls
	}
	for i, d := range colls[collection] {
		if d.id == id {
			colls[collection][i].data = data
			return nil
		}
	}
	colls[collection] = append(colls[collection], memDoc{id: id, data: data})
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, tenantID, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.docs[tenantID][collection] {
		if d.id == id {
			return &Document{ID: d.id, Data: d.data}, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Query(ctx context.Context, tenantID string, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	src := m.docs[tenantID][q.Collection]
	type candidate struct {
		doc    memDoc
		fields map[string]any
	}
	matched := make([]candidate, 0, len(src))
	for _, d := range src {
		var fields map[string]any
		if err := json.Unmarshal(d.data, &fields); err != nil {
			continue
		}
		if matchesAll(fields, q.Filters) {
			matched = append(matched, candidate{doc: d, fields: fields})
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := lookup(matched[i].fields, q.OrderBy)
			b, _ := lookup(matched[j].fields, q.OrderBy)
			if q.Descending {
				return compareValues(b, a) < 0
			}
			return compareValues(a, b) < 0
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]Document, 0, len(matched))
	for _, c := range matched {
		out = append(out, Document{ID: c.doc.id, Data: c.doc.data})
	}
	return out, nil
}

func matchesAll(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := lookup(fields, f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if s, ok := v.(string); !ok || s != f.Value {
				return false
			}
		case OpArrayContains:
			arr, ok := v.([]any)
			if !ok || !containsString(arr, f.Value) {
				return false
			}
		}
	}
	return true
}

func containsString(arr []any, want string) bool {
	for _, item := range arr {
		if s, ok := item.(string); ok && s == want {
			return true
		}
	}
	return false
}

func lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// compareValues orders missing values first, then numbers, RFC 3339 times
// and finally plain strings.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	ta, errA := time.Parse(time.RFC3339Nano, sa)
	tb, errB := time.Parse(time.RFC3339Nano, sb)
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(sa, sb)
}

// fixture is the YAML layout read by LoadFixture:
//
//	tenants:
//	  acme:
//	    deals:
//	      d1: {name: Renewal, stage: Discovery}
//	    deals/d1/notes:
//	      n1: {content: Called, createdAt: "2024-03-01T10:00:00Z"}
type fixture struct {
	Tenants map[string]map[string]yaml.Node `yaml:"tenants"`
}

// LoadFixture builds a MemoryStore from a YAML document. Documents keep the
// order in which they appear in the file.
func LoadFixture(r io.Reader) (*MemoryStore, error) {
	var fx fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	m := NewMemoryStore()
	for tenant, collections := range fx.Tenants {
		for collection, node := range collections {
			if node.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("fixture %s/%s: expected a mapping of documents", tenant, collection)
			}
			for i := 0; i+1 < len(node.Content); i += 2 {
				id := node.Content[i].Value
				var doc map[string]any
				if err := node.Content[i+1].Decode(&doc); err != nil {
					return nil, fmt.Errorf("fixture %s/%s/%s: %w", tenant, collection, id, err)
				}
				if err := m.Put(tenant, collection, id, normalizeYAML(doc)); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}

// normalizeYAML converts the values yaml.v3 produces into shapes
// encoding/json marshals the way stored documents look.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
