package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Fields the indexer adds to every source document.
const (
	esCollectionField = "docCollection"
	esIDField         = "docId"
)

var indexUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// ElasticsearchStore reads tenant documents from one index per tenant
// ("{prefix}-{tenant}"). Every source document carries docCollection and
// docId keyword fields; string fields are expected to be mapped as keywords
// so term filters match exactly.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	prefix string
}

func NewElasticsearchStore(client *elasticsearch.Client, prefix string) *ElasticsearchStore {
	return &ElasticsearchStore{client: client, prefix: prefix}
}

// IndexName returns the index holding a tenant's documents.
func (s *ElasticsearchStore) IndexName(tenantID string) string {
	tenant := indexUnsafe.ReplaceAllString(strings.ToLower(tenantID), "_")
	return s.prefix + "-" + tenant
}

func (s *ElasticsearchStore) Get(ctx context.Context, tenantID, collection, id string) (*Document, error) {
	docs, err := s.search(ctx, tenantID, collection, map[string]any{
		"size": 1,
		"query": boolFilter(
			term(esCollectionField, collection),
			term(esIDField, id),
		),
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

func (s *ElasticsearchStore) Query(ctx context.Context, tenantID string, q Query) ([]Document, error) {
	body, err := buildSearchBody(q)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, tenantID, q.Collection, body)
}

func buildSearchBody(q Query) (map[string]any, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	clauses := []any{term(esCollectionField, q.Collection)}
	for _, f := range q.Filters {
		// A term query on an array field matches any element, so equality
		// and array-contains share the same clause.
		clauses = append(clauses, term(f.Field, f.Value))
	}

	body := map[string]any{"query": boolFilter(clauses...)}
	if q.OrderBy != "" {
		order := "asc"
		if q.Descending {
			order = "desc"
		}
		body["sort"] = []any{
			map[string]any{q.OrderBy: map[string]any{"order": order, "unmapped_type": "date"}},
		}
	}
	if q.Limit > 0 {
		body["size"] = q.Limit
	}
	return body, nil
}

func (s *ElasticsearchStore) search(ctx context.Context, tenantID, collection string, body map[string]any) ([]Document, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{s.IndexName(tenantID)},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", collection, res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", collection, err)
	}

	docs := make([]Document, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var ids struct {
			DocID string `json:"docId"`
		}
		_ = json.Unmarshal(hit.Source, &ids)
		id := ids.DocID
		if id == "" {
			id = hit.ID
		}
		docs = append(docs, Document{ID: id, Data: hit.Source})
	}
	return docs, nil
}

func term(field, value string) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func boolFilter(clauses ...any) map[string]any {
	return map[string]any{"bool": map[string]any{"filter": clauses}}
}
