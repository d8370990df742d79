package dealcontext

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deal-coach/internal/models"
	"deal-coach/internal/store"

	"golang.org/x/sync/errgroup"
)

// Collections, relative to the tenant root.
const (
	collDeals        = "deals"
	collCompanies    = "crm_companies"
	collLocations    = "company_locations"
	collContacts     = "crm_contacts"
	collUsers        = "users"
	collEmailLogs    = "email_logs"
	collEmails       = "emails"
	collActivities   = "activities"
	collTasks        = "tasks"
	collTone         = "tone_settings"
	collAIInferences = "ai_inferences"
	collPerformance  = "salesperson_performance"
	collLearning     = "ai_learning"

	learningDocID = "global"
)

const (
	notesLimit           = 20
	emailsLimit          = 10
	tasksLimit           = 10
	aiInferencesLimit    = 5
	dealActivitiesLimit  = 20
	companyActivityLimit = 10
)

// entityKind describes how records related to one kind of entity are found.
type entityKind struct {
	name       string
	collection string
	emailField string
	taskField  string
}

var (
	companyKind     = entityKind{"company", collCompanies, "companyId", "associations.companies"}
	locationKind    = entityKind{"location", collLocations, "locationId", "associations.locations"}
	contactKind     = entityKind{"contact", collContacts, "contactId", "associations.contacts"}
	salespersonKind = entityKind{"salesperson", collUsers, "salespersonId", "associations.salespeople"}
)

// branchKey returns the metric label and the report key for a branch.
// Only the company is unique per deal, so it carries no id in its key.
func (k entityKind) branchKey(id, branch string) (kind, key string) {
	kind = k.name + "." + branch
	if k.name == companyKind.name {
		return kind, kind
	}
	return kind, fmt.Sprintf("%s[%s].%s", k.name, id, branch)
}

func getOne[T any](ctx context.Context, st store.TenantDocumentStore, tenantID, collection, id string) (*T, error) {
	doc, err := st.Get(ctx, tenantID, collection, id)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := doc.Decode(v); err != nil {
		return nil, err
	}
	return v, nil
}

// queryList runs q and decodes every document. A document that fails to
// decode fails the whole list.
func queryList[T any](ctx context.Context, st store.TenantDocumentStore, tenantID string, q store.Query) ([]T, error) {
	docs, err := st.Query(ctx, tenantID, q)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func notesQuery(kind entityKind, id string) store.Query {
	return store.Query{
		Collection: fmt.Sprintf("%s/%s/notes", kind.collection, id),
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      notesLimit,
	}
}

// entityRecords holds the branches every entity context shares.
type entityRecords struct {
	notes  []models.Note
	emails []models.Communication
	tasks  []models.Task
	tone   *models.ToneSettings
	ai     []models.AIInference
}

// fetchEntityRecords starts the notes, emails, tasks, tone and AI
// inference branches for one entity on g, writing into out.
func (r *run) fetchEntityRecords(ctx context.Context, g *errgroup.Group, kind entityKind, id string, out *entityRecords) {
	g.Go(func() error {
		k, key := kind.branchKey(id, "notes")
		out.notes = fetch(ctx, r, k, key, []models.Note{}, func(c context.Context) ([]models.Note, error) {
			return queryList[models.Note](c, r.store, r.tenantID, notesQuery(kind, id))
		})
		return nil
	})
	g.Go(func() error {
		k, key := kind.branchKey(id, "emails")
		out.emails = fetch(ctx, r, k, key, []models.Communication{}, func(c context.Context) ([]models.Communication, error) {
			return queryList[models.Communication](c, r.store, r.tenantID, store.Query{
				Collection: collEmailLogs,
				Filters:    []store.Filter{store.Where(kind.emailField, store.OpEqual, id)},
				OrderBy:    "timestamp",
				Descending: true,
				Limit:      emailsLimit,
			})
		})
		return nil
	})
	g.Go(func() error {
		k, key := kind.branchKey(id, "tasks")
		out.tasks = fetch(ctx, r, k, key, []models.Task{}, func(c context.Context) ([]models.Task, error) {
			return queryList[models.Task](c, r.store, r.tenantID, store.Query{
				Collection: collTasks,
				Filters:    []store.Filter{store.Where(kind.taskField, store.OpArrayContains, id)},
				OrderBy:    "createdAt",
				Descending: true,
				Limit:      tasksLimit,
			})
		})
		return nil
	})
	g.Go(func() error {
		k, key := kind.branchKey(id, "tone")
		out.tone = r.fetchTone(ctx, k, key, id)
		return nil
	})
	g.Go(func() error {
		k, key := kind.branchKey(id, "ai")
		out.ai = r.fetchAIInferences(ctx, k, key, kind.name, id)
		return nil
	})
}

func (r *run) fetchTone(ctx context.Context, kind, key, entityID string) *models.ToneSettings {
	return fetch(ctx, r, kind, key, (*models.ToneSettings)(nil), func(c context.Context) (*models.ToneSettings, error) {
		return getOne[models.ToneSettings](c, r.store, r.tenantID, collTone, entityID)
	})
}

func (r *run) fetchAIInferences(ctx context.Context, kind, key, targetType, targetID string) []models.AIInference {
	return fetch(ctx, r, kind, key, []models.AIInference{}, func(c context.Context) ([]models.AIInference, error) {
		return queryList[models.AIInference](c, r.store, r.tenantID, store.Query{
			Collection: collAIInferences,
			Filters: []store.Filter{
				store.Where("targetId", store.OpEqual, targetID),
				store.Where("targetType", store.OpEqual, targetType),
			},
			OrderBy:    "createdAt",
			Descending: true,
			Limit:      aiInferencesLimit,
		})
	})
}

func (r *run) fetchActivities(ctx context.Context, kind, key, field, id string, limit int) []models.Activity {
	return fetch(ctx, r, kind, key, []models.Activity{}, func(c context.Context) ([]models.Activity, error) {
		return queryList[models.Activity](c, r.store, r.tenantID, store.Query{
			Collection: collActivities,
			Filters:    []store.Filter{store.Where(field, store.OpEqual, id)},
			OrderBy:    "timestamp",
			Descending: true,
			Limit:      limit,
		})
	})
}

// fetchDealEmails reads email_logs and falls back to the legacy emails
// collection when the first fails or returns nothing. A failed email_logs
// read that the fallback covers is still recorded under its own key.
func (r *run) fetchDealEmails(ctx context.Context) []models.Communication {
	return fetch(ctx, r, "deal.emails", "deal.emails", []models.Communication{}, func(c context.Context) ([]models.Communication, error) {
		start := time.Now()
		emails, err := queryList[models.Communication](c, r.store, r.tenantID, store.Query{
			Collection: collEmailLogs,
			Filters:    []store.Filter{store.Where("dealId", store.OpEqual, r.dealID)},
			OrderBy:    "timestamp",
			Descending: true,
			Limit:      emailsLimit,
		})
		if err == nil && len(emails) > 0 {
			return emails, nil
		}
		legacy, fbErr := queryList[models.Communication](c, r.store, r.tenantID, store.Query{
			Collection: collEmails,
			Filters:    []store.Filter{store.Where("dealId", store.OpEqual, r.dealID)},
			OrderBy:    "createdAt",
			Descending: true,
			Limit:      emailsLimit,
		})
		if fbErr != nil {
			if err != nil {
				return nil, fmt.Errorf("%s: %v; %s: %w", collEmailLogs, err, collEmails, fbErr)
			}
			// The primary answered; an unreachable legacy collection is not a failure.
			return emails, nil
		}
		if err != nil {
			r.finish("deal.emails.primary", "deal.emails."+collEmailLogs, err, time.Since(start))
		}
		return legacy, nil
	})
}

func (r *run) fetchLearningData(ctx context.Context) models.LearningData {
	ld := fetch(ctx, r, "learning", "learning", (*models.LearningData)(nil), func(c context.Context) (*models.LearningData, error) {
		return getOne[models.LearningData](c, r.store, r.tenantID, collLearning, learningDocID)
	})
	if ld == nil {
		return models.DefaultLearningData()
	}
	ld.Normalize()
	return *ld
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func isMalformed(err error) bool {
	return errors.Is(err, store.ErrMalformedDocument)
}
