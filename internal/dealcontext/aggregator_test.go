package dealcontext

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deal-coach/internal/common/logger"
	"deal-coach/internal/models"
	"deal-coach/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "acme"

func seedDealGraph(t *testing.T) *store.MemoryStore {
	t.Helper()
	m := store.NewMemoryStore()
	put := func(collection, id string, v map[string]any) {
		require.NoError(t, m.Put(tenant, collection, id, v))
	}

	put("deals", "d1", map[string]any{
		"name":           "Acme Renewal",
		"stage":          "Negotiation",
		"estimatedValue": 125000,
		"associations": map[string]any{
			"companies":   []any{map[string]any{"id": "c1", "isPrimary": true}},
			"locations":   []any{"l1"},
			"contacts":    []any{"p1", map[string]any{"id": "p2", "role": "influencer"}},
			"salespeople": []any{"u1"},
		},
	})
	put("deals/d1/notes", "n1", map[string]any{"content": "Kickoff went well", "createdAt": "2024-01-10T09:00:00Z"})
	put("deals/d1/notes", "n2", map[string]any{"content": "Pricing pushback", "createdAt": "2024-02-10T09:00:00Z"})
	put("email_logs", "e1", map[string]any{"dealId": "d1", "subject": "Proposal", "timestamp": "2024-02-01T10:00:00Z"})
	put("activities", "a1", map[string]any{"dealId": "d1", "type": "meeting_scheduled", "timestamp": "2024-02-03T10:00:00Z"})
	put("tasks", "t1", map[string]any{"title": "Send contract", "createdAt": "2024-02-04T10:00:00Z",
		"associations": map[string]any{"deals": []any{"d1"}, "contacts": []any{"p1"}}})
	put("tone_settings", "d1", map[string]any{"tone": "consultative"})
	put("ai_inferences", "i1", map[string]any{"targetId": "d1", "targetType": "deal", "content": "Likely to close", "createdAt": "2024-02-05T10:00:00Z"})

	put("crm_companies", "c1", map[string]any{"name": "Acme Corp", "industry": "Manufacturing"})
	put("crm_companies/c1/notes", "cn1", map[string]any{"content": "Expanding to EU"})
	put("activities", "a2", map[string]any{"companyId": "c1", "type": "call", "description": "Quarterly check-in", "timestamp": "2024-01-20T10:00:00Z"})

	put("company_locations", "l1", map[string]any{"name": "Austin HQ", "companyId": "c1"})

	put("crm_contacts", "p1", map[string]any{
		"firstName": "Dana", "lastName": "Lee", "title": "CFO",
		"contactDealRole": "decision_maker", "contactPersonality": "analytical",
		"communicationPreferences": map[string]any{"preferredChannel": "email"},
	})
	put("crm_contacts", "p2", map[string]any{"fullName": "Sam Ortiz"})
	put("email_logs", "e2", map[string]any{"contactId": "p1", "subject": "Budget question", "timestamp": "2024-02-02T10:00:00Z"})
	put("ai_inferences", "i2", map[string]any{"targetId": "p1", "targetType": "contact", "content": "Prefers numbers"})

	put("users", "u1", map[string]any{"displayName": "Riley Chen"})
	put("salesperson_performance", "u1", map[string]any{"summary": "Top closer", "strengths": []any{"negotiation"}})

	put("ai_learning", "global", map[string]any{"commonObjections": []any{"price"}})
	return m
}

type recordingRecorder struct {
	mu       sync.Mutex
	branches map[string]int
	dropped  map[string]int
	finished int
	failed   int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{branches: map[string]int{}, dropped: map[string]int{}}
}

func (r *recordingRecorder) BranchFetched(branch, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branches[branch+":"+status]++
}

func (r *recordingRecorder) AssociationsDropped(entityType string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[entityType] += n
}

func (r *recordingRecorder) AggregationFinished(_ context.Context, _ time.Duration, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	r.failed = failed
}

// faultyStore wraps a store and misbehaves for chosen collections.
type faultyStore struct {
	store.TenantDocumentStore
	fail  map[string]bool
	panic map[string]bool
	block map[string]bool
}

func (f *faultyStore) check(ctx context.Context, collection string) error {
	if f.panic[collection] {
		panic("store exploded")
	}
	if f.fail[collection] {
		return errors.New("backend unavailable")
	}
	if f.block[collection] {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *faultyStore) Get(ctx context.Context, tenantID, collection, id string) (*store.Document, error) {
	if err := f.check(ctx, collection); err != nil {
		return nil, err
	}
	return f.TenantDocumentStore.Get(ctx, tenantID, collection, id)
}

func (f *faultyStore) Query(ctx context.Context, tenantID string, q store.Query) ([]store.Document, error) {
	if err := f.check(ctx, q.Collection); err != nil {
		return nil, err
	}
	return f.TenantDocumentStore.Query(ctx, tenantID, q)
}

// gaugeStore tracks the peak number of concurrent calls.
type gaugeStore struct {
	store.TenantDocumentStore
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeStore) enter() func() {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return func() { g.inFlight.Add(-1) }
}

func (g *gaugeStore) Get(ctx context.Context, tenantID, collection, id string) (*store.Document, error) {
	defer g.enter()()
	return g.TenantDocumentStore.Get(ctx, tenantID, collection, id)
}

func (g *gaugeStore) Query(ctx context.Context, tenantID string, q store.Query) ([]store.Document, error) {
	defer g.enter()()
	return g.TenantDocumentStore.Query(ctx, tenantID, q)
}

func newTestAggregator(t *testing.T, st store.TenantDocumentStore, rec Recorder, opts Options) *Aggregator {
	t.Helper()
	return NewAggregator(st, logger.NewTestLogger(t), rec, opts)
}

func TestGetEnhancedDealContext_FullGraph(t *testing.T) {
	rec := newRecordingRecorder()
	agg := newTestAggregator(t, seedDealGraph(t), rec, Options{MaxConcurrentFetches: 4})

	dc := agg.GetEnhancedDealContext(context.Background(), "d1", tenant, "user-7")

	require.NotNil(t, dc.Deal)
	assert.Equal(t, "Acme Renewal", dc.Deal.Name)
	require.NotNil(t, dc.Deal.Value)
	assert.Equal(t, 125000.0, *dc.Deal.Value)
	assert.Equal(t, tenant, dc.TenantID)
	assert.Equal(t, "user-7", dc.RequestedBy)

	require.Len(t, dc.DealNotes, 2)
	assert.Equal(t, "Pricing pushback", dc.DealNotes[0].Content)
	require.Len(t, dc.DealEmails, 1)
	assert.Equal(t, "Proposal", dc.DealEmails[0].Subject)
	require.Len(t, dc.DealActivities, 1)
	require.Len(t, dc.DealTasks, 1)
	require.NotNil(t, dc.DealToneSettings)
	assert.Equal(t, "consultative", dc.DealToneSettings.Tone)
	require.Len(t, dc.DealAIInferences, 1)

	require.NotNil(t, dc.Company)
	assert.Equal(t, "Acme Corp", dc.Company.Company.Name)
	assert.Len(t, dc.Company.CompanyNotes, 1)
	require.Len(t, dc.Company.CompanyRecentActivity, 1)
	assert.Equal(t, "Quarterly check-in", dc.Company.CompanyRecentActivity[0].Description)
	assert.Nil(t, dc.Company.CompanyToneSettings)

	require.Len(t, dc.Locations, 1)
	assert.Equal(t, "Austin HQ", dc.Locations[0].Location.Name)

	require.Len(t, dc.Contacts, 2)
	dana, sam := dc.Contacts[0], dc.Contacts[1]
	assert.Equal(t, "Dana Lee", dana.Contact.DisplayName())
	assert.Equal(t, "decision_maker", dana.ContactDealRole)
	assert.Equal(t, "analytical", dana.ContactPersonality)
	assert.Equal(t, "email", dana.CommunicationPreferences.PreferredChannel)
	assert.Len(t, dana.ContactEmails, 1)
	assert.Len(t, dana.ContactTasks, 1)
	assert.Len(t, dana.ContactAIInferences, 1)
	assert.Equal(t, "influencer", sam.ContactDealRole)
	assert.NotNil(t, sam.ContactNotes)
	assert.Empty(t, sam.ContactNotes)

	require.Len(t, dc.Salespeople, 1)
	assert.Equal(t, "Riley Chen", dc.Salespeople[0].Salesperson.Name())
	require.NotNil(t, dc.Salespeople[0].SalespersonPerformance)
	assert.Equal(t, []string{"negotiation"}, dc.Salespeople[0].SalespersonPerformance.Strengths)

	assert.Equal(t, []string{"price"}, dc.LearningData.CommonObjections)
	assert.NotNil(t, dc.LearningData.StageSuccessRates)

	assert.Equal(t, "c1", dc.AssociationSummary.PrimaryCompanyID)
	assert.NotEmpty(t, dc.Report.RunID)
	assert.Empty(t, dc.Report.Failed())
	assert.Equal(t, models.BranchOK, dc.Report.Branches["contact[p1].emails"].Status)
	assert.Equal(t, models.BranchNotFound, dc.Report.Branches["company.tone"].Status)

	assert.Equal(t, 1, rec.finished)
	assert.Zero(t, rec.failed)
	assert.Equal(t, 2, rec.branches["contact.record:ok"])
}

func TestGetEnhancedDealContext_PartialFailure(t *testing.T) {
	st := &faultyStore{
		TenantDocumentStore: seedDealGraph(t),
		fail:                map[string]bool{"email_logs": true, "emails": true},
	}
	rec := newRecordingRecorder()
	dc := newTestAggregator(t, st, rec, Options{}).GetEnhancedDealContext(context.Background(), "d1", tenant, "u")

	require.NotNil(t, dc.Deal)
	assert.NotNil(t, dc.DealEmails)
	assert.Empty(t, dc.DealEmails)
	require.Len(t, dc.Contacts, 2)
	assert.Empty(t, dc.Contacts[0].ContactEmails)
	assert.Len(t, dc.Contacts[0].ContactTasks, 1)
	require.NotNil(t, dc.Company)
	assert.Len(t, dc.DealNotes, 2)

	failed := dc.Report.Failed()
	assert.Contains(t, failed, "deal.emails")
	assert.Contains(t, failed, "company.emails")
	assert.Contains(t, failed, "contact[p1].emails")
	assert.Contains(t, failed, "salesperson[u1].emails")
	assert.Equal(t, "email_logs: backend unavailable; emails: backend unavailable", dc.Report.Branches["deal.emails"].Error)
	assert.Equal(t, "backend unavailable", dc.Report.Branches["contact[p1].emails"].Error)
	assert.Equal(t, len(failed), rec.failed)
}

func TestGetEnhancedDealContext_BranchPanicIsContained(t *testing.T) {
	st := &faultyStore{
		TenantDocumentStore: seedDealGraph(t),
		panic:               map[string]bool{"tasks": true},
	}
	dc := newTestAggregator(t, st, nil, Options{}).GetEnhancedDealContext(context.Background(), "d1", tenant, "u")

	require.NotNil(t, dc.Deal)
	assert.Empty(t, dc.DealTasks)
	assert.Len(t, dc.DealNotes, 2)
	outcome := dc.Report.Branches["deal.tasks"]
	assert.Equal(t, models.BranchFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "store exploded")
}

func TestGetEnhancedDealContext_BranchTimeout(t *testing.T) {
	st := &faultyStore{
		TenantDocumentStore: seedDealGraph(t),
		block:               map[string]bool{"activities": true},
	}
	agg := newTestAggregator(t, st, nil, Options{BranchTimeout: 20 * time.Millisecond})

	start := time.Now()
	dc := agg.GetEnhancedDealContext(context.Background(), "d1", tenant, "u")
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Empty(t, dc.DealActivities)
	assert.Len(t, dc.DealNotes, 2)
	outcome := dc.Report.Branches["deal.activities"]
	assert.Equal(t, models.BranchFailed, outcome.Status)
	assert.Contains(t, outcome.Error, context.DeadlineExceeded.Error())
}

func TestGetEnhancedDealContext_NoCompany(t *testing.T) {
	m := store.NewMemoryStore()
	require.NoError(t, m.Put(tenant, "deals", "d2", map[string]any{
		"name":         "Solo",
		"associations": map[string]any{"contacts": []any{"p1"}},
	}))
	require.NoError(t, m.Put(tenant, "crm_contacts", "p1", map[string]any{"firstName": "Ana"}))

	dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "d2", tenant, "u")

	assert.Nil(t, dc.Company)
	require.Len(t, dc.Contacts, 1)
	assert.Equal(t, "Ana", dc.Contacts[0].Contact.DisplayName())
	assert.Empty(t, dc.Report.Failed())
	_, companyFetched := dc.Report.Branches["company.record"]
	assert.False(t, companyFetched)
}

func TestGetEnhancedDealContext_MissingEntityRecordsAreOmitted(t *testing.T) {
	m := store.NewMemoryStore()
	require.NoError(t, m.Put(tenant, "deals", "d3", map[string]any{
		"associations": map[string]any{"companies": []any{"gone"}, "contacts": []any{"p1", "ghost"}},
	}))
	require.NoError(t, m.Put(tenant, "crm_contacts", "p1", map[string]any{"firstName": "Ana"}))

	dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "d3", tenant, "u")

	assert.Nil(t, dc.Company)
	require.Len(t, dc.Contacts, 1)
	assert.Equal(t, "p1", dc.Contacts[0].Contact.ID)
	assert.Equal(t, models.BranchNotFound, dc.Report.Branches["contact[ghost].record"].Status)
	assert.Equal(t, models.BranchNotFound, dc.Report.Branches["company.record"].Status)
}

func TestGetEnhancedDealContext_MissingDeal(t *testing.T) {
	dc := newTestAggregator(t, seedDealGraph(t), nil, Options{}).
		GetEnhancedDealContext(context.Background(), "nope", tenant, "u")

	assert.Nil(t, dc.Deal)
	assert.Nil(t, dc.Company)
	assert.Empty(t, dc.Contacts)
	assert.NotNil(t, dc.DealNotes)
	assert.Equal(t, models.BranchNotFound, dc.Report.Branches["deal.record"].Status)
	assert.Empty(t, dc.Report.Failed())
	assert.Equal(t, []string{"price"}, dc.LearningData.CommonObjections)
}

func TestGetEnhancedDealContext_EmailFallback(t *testing.T) {
	m := store.NewMemoryStore()
	require.NoError(t, m.Put(tenant, "deals", "d4", map[string]any{"name": "Legacy"}))
	require.NoError(t, m.Put(tenant, "emails", "old1", map[string]any{"dealId": "d4", "subject": "From the old inbox"}))

	dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "d4", tenant, "u")

	require.Len(t, dc.DealEmails, 1)
	assert.Equal(t, "From the old inbox", dc.DealEmails[0].Subject)
}

func TestGetEnhancedDealContext_EmailFallbackOnFailure(t *testing.T) {
	m := seedDealGraph(t)
	require.NoError(t, m.Put(tenant, "emails", "old1", map[string]any{"dealId": "d1", "subject": "From the old inbox"}))
	st := &faultyStore{TenantDocumentStore: m, fail: map[string]bool{"email_logs": true}}

	dc := newTestAggregator(t, st, nil, Options{}).GetEnhancedDealContext(context.Background(), "d1", tenant, "u")

	require.Len(t, dc.DealEmails, 1)
	assert.Equal(t, "From the old inbox", dc.DealEmails[0].Subject)
	assert.Equal(t, models.BranchOK, dc.Report.Branches["deal.emails"].Status)
	assert.Contains(t, dc.Report.Failed(), "contact[p1].emails")

	primary := dc.Report.Branches["deal.emails.email_logs"]
	assert.Equal(t, models.BranchFailed, primary.Status)
	assert.Equal(t, "backend unavailable", primary.Error)
	assert.Contains(t, dc.Report.Failed(), "deal.emails.email_logs")
}

func TestGetEnhancedDealContext_EmailFallbackAfterEmptyPrimaryIsNotAFailure(t *testing.T) {
	m := store.NewMemoryStore()
	require.NoError(t, m.Put(tenant, "deals", "d4", map[string]any{"name": "Legacy"}))

	dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "d4", tenant, "u")

	assert.NotContains(t, dc.Report.Branches, "deal.emails.email_logs")
	assert.Empty(t, dc.Report.Failed())
}

func TestGetEnhancedDealContext_CompanyNotesFailure(t *testing.T) {
	st := &faultyStore{
		TenantDocumentStore: seedDealGraph(t),
		fail:                map[string]bool{"crm_companies/c1/notes": true},
	}
	dc := newTestAggregator(t, st, nil, Options{}).GetEnhancedDealContext(context.Background(), "d1", tenant, "u")

	require.NotNil(t, dc.Company)
	assert.Equal(t, "Acme Corp", dc.Company.Company.Name)
	assert.NotNil(t, dc.Company.CompanyNotes)
	assert.Empty(t, dc.Company.CompanyNotes)
	assert.Len(t, dc.Company.CompanyRecentActivity, 1)
	assert.Equal(t, []string{"company.notes"}, dc.Report.Failed())
}

func TestGetEnhancedDealContext_QueryLimitsBoundLists(t *testing.T) {
	m := store.NewMemoryStore()
	require.NoError(t, m.Put(tenant, "deals", "d5", map[string]any{"name": "Busy"}))
	for i := 0; i < 30; i++ {
		id := "n" + strings.Repeat("x", i)
		require.NoError(t, m.Put(tenant, "deals/d5/notes", id, map[string]any{"content": id}))
		require.NoError(t, m.Put(tenant, "email_logs", id, map[string]any{"dealId": "d5"}))
		require.NoError(t, m.Put(tenant, "ai_inferences", id, map[string]any{"targetId": "d5", "targetType": "deal"}))
	}

	dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "d5", tenant, "u")

	assert.Len(t, dc.DealNotes, notesLimit)
	assert.Len(t, dc.DealEmails, emailsLimit)
	assert.Len(t, dc.DealAIInferences, aiInferencesLimit)
}

func TestGetEnhancedDealContext_EntityListsAreBounded(t *testing.T) {
	m := store.NewMemoryStore()
	require.NoError(t, m.Put(tenant, "deals", "d6", map[string]any{
		"name": "Crowded",
		"associations": map[string]any{
			"companies":   []any{"c1"},
			"contacts":    []any{"p1"},
			"salespeople": []any{"u1"},
		},
	}))
	require.NoError(t, m.Put(tenant, "crm_companies", "c1", map[string]any{"name": "Acme Corp"}))
	require.NoError(t, m.Put(tenant, "crm_contacts", "p1", map[string]any{"firstName": "Dana"}))
	require.NoError(t, m.Put(tenant, "users", "u1", map[string]any{"displayName": "Riley Chen"}))
	for i := 0; i < 30; i++ {
		id := "x" + strings.Repeat("y", i)
		require.NoError(t, m.Put(tenant, "crm_companies/c1/notes", id, map[string]any{"content": id}))
		require.NoError(t, m.Put(tenant, "email_logs", id, map[string]any{"contactId": "p1"}))
		require.NoError(t, m.Put(tenant, "tasks", id, map[string]any{
			"title":        id,
			"associations": map[string]any{"salespeople": []any{"u1"}},
		}))
	}

	dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "d6", tenant, "u")

	require.NotNil(t, dc.Company)
	assert.Len(t, dc.Company.CompanyNotes, notesLimit)
	require.Len(t, dc.Contacts, 1)
	assert.Len(t, dc.Contacts[0].ContactEmails, emailsLimit)
	require.Len(t, dc.Salespeople, 1)
	assert.Len(t, dc.Salespeople[0].SalespersonTasks, tasksLimit)
}

func TestGetEnhancedDealContext_LenientLegacyDealFields(t *testing.T) {
	tests := []struct {
		name         string
		deal         map[string]any
		wantContacts int
		wantCompany  bool
		wantValue    *float64
		wantDropped  map[string]int
	}{
		{
			name:         "record-shaped contactIds",
			deal:         map[string]any{"name": "L1", "contactIds": []any{map[string]any{"id": "p1"}}},
			wantContacts: 1,
			wantDropped:  map[string]int{},
		},
		{
			name:         "non-string contactIds entry",
			deal:         map[string]any{"name": "L2", "contactIds": []any{"p1", 7}},
			wantContacts: 1,
			wantDropped:  map[string]int{"contacts": 1},
		},
		{
			name:        "numeric companyId",
			deal:        map[string]any{"name": "L3", "companyId": 42},
			wantDropped: map[string]int{"companies": 1},
		},
		{
			name:        "string estimatedValue",
			deal:        map[string]any{"name": "L4", "estimatedValue": "125000", "companyId": "c1"},
			wantCompany: true,
			wantValue:   float(125000),
			wantDropped: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := seedDealGraph(t)
			require.NoError(t, m.Put(tenant, "deals", "legacy", tt.deal))

			dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "legacy", tenant, "u")

			require.NotNil(t, dc.Deal)
			assert.Equal(t, models.BranchOK, dc.Report.Branches["deal.record"].Status)
			assert.Len(t, dc.Contacts, tt.wantContacts)
			assert.Equal(t, tt.wantCompany, dc.Company != nil)
			assert.Equal(t, tt.wantValue, dc.Deal.Value)
			assert.Equal(t, tt.wantDropped, dc.AssociationSummary.DroppedEntries)
		})
	}
}

func TestGetEnhancedDealContext_UndecodableDealIsPermanent(t *testing.T) {
	m := store.NewMemoryStore()
	require.NoError(t, m.Put(tenant, "deals", "bad", map[string]any{"name": []any{"not", "a", "name"}}))

	dc := newTestAggregator(t, m, nil, Options{}).GetEnhancedDealContext(context.Background(), "bad", tenant, "u")

	assert.Nil(t, dc.Deal)
	outcome := dc.Report.Branches["deal.record"]
	assert.Equal(t, models.BranchFailed, outcome.Status)
	assert.True(t, outcome.Permanent)
	assert.Contains(t, outcome.Error, "malformed document")
}

func TestGetEnhancedDealContext_ConcurrencyIsBounded(t *testing.T) {
	st := &gaugeStore{TenantDocumentStore: seedDealGraph(t)}
	agg := newTestAggregator(t, st, nil, Options{MaxConcurrentFetches: 3})

	dc := agg.GetEnhancedDealContext(context.Background(), "d1", tenant, "u")

	require.Len(t, dc.Contacts, 2)
	assert.LessOrEqual(t, st.peak.Load(), int32(3))
	assert.Positive(t, st.peak.Load())
}

func TestGetEnhancedDealContext_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dc := newTestAggregator(t, seedDealGraph(t), nil, Options{MaxConcurrentFetches: 2}).
		GetEnhancedDealContext(ctx, "d1", tenant, "u")

	assert.Nil(t, dc.Deal)
	assert.Contains(t, dc.Report.Failed(), "deal.record")
	assert.Equal(t, models.DefaultLearningData(), dc.LearningData)
}

func TestGetEnhancedDealContext_DroppedAssociationsAreCounted(t *testing.T) {
	m := seedDealGraph(t)
	require.NoError(t, m.Put(tenant, "deals", "d6", map[string]any{
		"associations": map[string]any{"contacts": []any{"p1", 42, map[string]any{"name": "x"}}},
	}))
	rec := newRecordingRecorder()

	dc := newTestAggregator(t, m, rec, Options{}).GetEnhancedDealContext(context.Background(), "d6", tenant, "u")

	require.Len(t, dc.Contacts, 1)
	assert.Equal(t, 2, dc.AssociationSummary.DroppedEntries["contacts"])
	assert.Equal(t, 2, rec.dropped["contacts"])
}

func TestGetEnhancedDealContext_Repeatable(t *testing.T) {
	agg := newTestAggregator(t, seedDealGraph(t), nil, Options{MaxConcurrentFetches: 5})

	first := agg.GetEnhancedDealContext(context.Background(), "d1", tenant, "u")
	second := agg.GetEnhancedDealContext(context.Background(), "d1", tenant, "u")

	assert.NotEqual(t, first.Report.RunID, second.Report.RunID)
	assert.Equal(t, first.Deal, second.Deal)
	assert.Equal(t, first.Company, second.Company)
	assert.Equal(t, first.Contacts, second.Contacts)
	assert.Equal(t, first.Salespeople, second.Salespeople)
	assert.Equal(t, first.DealNotes, second.DealNotes)
	assert.Equal(t, len(first.Report.Branches), len(second.Report.Branches))
}

func float(v float64) *float64 { return &v }
