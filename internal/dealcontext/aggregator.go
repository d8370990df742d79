// Package dealcontext builds the enhanced deal context: it resolves a deal's
// associations and fans out bounded, concurrent reads for every related
// record, collecting whatever succeeds.
package dealcontext

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deal-coach/internal/common/logger"
	"deal-coach/internal/models"
	"deal-coach/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Recorder receives fetch measurements. *metrics.Recorder implements it.
type Recorder interface {
	BranchFetched(branch, status string, d time.Duration)
	AssociationsDropped(entityType string, n int)
	AggregationFinished(ctx context.Context, d time.Duration, failedBranches int)
}

type Options struct {
	// MaxConcurrentFetches bounds in-flight store calls per aggregation.
	// Zero means unbounded.
	MaxConcurrentFetches int
	// BranchTimeout bounds each store call. Zero means no per-branch limit.
	BranchTimeout time.Duration
}

// Aggregator is safe for concurrent use; each call gets its own run state.
type Aggregator struct {
	store store.TenantDocumentStore
	log   logger.Logger
	rec   Recorder
	opts  Options
}

func NewAggregator(st store.TenantDocumentStore, log logger.Logger, rec Recorder, opts Options) *Aggregator {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Aggregator{store: st, log: log, rec: rec, opts: opts}
}

// GetEnhancedDealContext assembles everything known about a deal. It never
// fails: a branch that errors, panics or times out leaves its field empty
// and is recorded in the returned context's Report. A missing deal yields a
// context with a nil Deal and no related entities.
func (a *Aggregator) GetEnhancedDealContext(ctx context.Context, dealID, tenantID, userID string) (dc *models.EnhancedDealContext) {
	start := time.Now()
	r := a.newRun(dealID, tenantID)
	dc = models.NewEnhancedDealContext(tenantID, userID)

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Deal context aggregation aborted", map[string]interface{}{"panic": fmt.Sprint(p)})
			r.setOutcome("aggregate", models.BranchOutcome{
				Status: models.BranchFailed,
				Error:  fmt.Sprintf("panic: %v", p),
			})
		}
		dc.Report = r.report()
		failed := dc.Report.Failed()
		elapsed := time.Since(start)
		a.rec.AggregationFinished(ctx, elapsed, len(failed))

		fields := map[string]interface{}{
			"durationMs": elapsed.Milliseconds(),
			"branches":   len(dc.Report.Branches),
			"contacts":   len(dc.Contacts),
		}
		if len(failed) > 0 {
			fields["failedBranches"] = failed
			r.log.Warn("Deal context built with failed branches", fields)
			return
		}
		r.log.Info("Deal context built", fields)
	}()

	r.aggregate(ctx, dc)
	return dc
}

// run is the state of a single aggregation.
type run struct {
	store    store.TenantDocumentStore
	rec      Recorder
	log      logger.Logger
	tenantID string
	dealID   string
	runID    string
	timeout  time.Duration
	sem      *semaphore.Weighted

	mu       sync.Mutex
	branches map[string]models.BranchOutcome
}

func (a *Aggregator) newRun(dealID, tenantID string) *run {
	runID := uuid.NewString()
	r := &run{
		store:    a.store,
		rec:      a.rec,
		tenantID: tenantID,
		dealID:   dealID,
		runID:    runID,
		timeout:  a.opts.BranchTimeout,
		branches: make(map[string]models.BranchOutcome),
		log: a.log.With(map[string]interface{}{
			"runId":    runID,
			"tenantId": tenantID,
			"dealId":   dealID,
		}),
	}
	if a.opts.MaxConcurrentFetches > 0 {
		r.sem = semaphore.NewWeighted(int64(a.opts.MaxConcurrentFetches))
	}
	return r
}

func (r *run) aggregate(ctx context.Context, dc *models.EnhancedDealContext) {
	dc.Deal = fetch(ctx, r, "deal.record", "deal.record", (*models.Deal)(nil), func(c context.Context) (*models.Deal, error) {
		return getOne[models.Deal](c, r.store, r.tenantID, collDeals, r.dealID)
	})

	res := ResolveAssociations(dc.Deal)
	dc.AssociationSummary = res.Summary()
	if total := res.DroppedTotal(); total > 0 {
		for entityType, n := range res.Dropped {
			r.rec.AssociationsDropped(entityType, n)
		}
		r.log.Warn("Dropped malformed association entries", map[string]interface{}{
			"dropped": res.Dropped,
			"total":   total,
		})
	}

	g := new(errgroup.Group)
	// Branches must not outlive the call, even if this function panics.
	defer g.Wait()

	var (
		company     *models.CompanyContext
		locations   = make([]*models.LocationContext, len(res.Locations))
		contacts    = make([]*models.ContactContext, len(res.Contacts))
		salespeople = make([]*models.SalespersonContext, len(res.Salespeople))
	)

	if len(res.Companies) > 0 {
		companyID := res.Companies[0]
		g.Go(func() error {
			company = r.buildCompany(ctx, companyID)
			return nil
		})
	}
	for i, id := range res.Locations {
		g.Go(func() error {
			locations[i] = r.buildLocation(ctx, id)
			return nil
		})
	}
	for i, id := range res.Contacts {
		role := res.ContactRoles[id]
		g.Go(func() error {
			contacts[i] = r.buildContact(ctx, id, role)
			return nil
		})
	}
	for i, id := range res.Salespeople {
		g.Go(func() error {
			salespeople[i] = r.buildSalesperson(ctx, id)
			return nil
		})
	}

	if dc.Deal != nil {
		r.fetchDealRecords(ctx, g, dc)
	}
	g.Go(func() error {
		dc.LearningData = r.fetchLearningData(ctx)
		return nil
	})

	_ = g.Wait()

	dc.Company = company
	dc.Locations = compact(locations)
	dc.Contacts = compact(contacts)
	dc.Salespeople = compact(salespeople)
}

// fetchDealRecords starts the deal-level branches. Each writes a distinct
// field of dc.
func (r *run) fetchDealRecords(ctx context.Context, g *errgroup.Group, dc *models.EnhancedDealContext) {
	g.Go(func() error {
		dc.DealNotes = fetch(ctx, r, "deal.notes", "deal.notes", []models.Note{}, func(c context.Context) ([]models.Note, error) {
			return queryList[models.Note](c, r.store, r.tenantID, store.Query{
				Collection: fmt.Sprintf("%s/%s/notes", collDeals, r.dealID),
				OrderBy:    "createdAt",
				Descending: true,
				Limit:      notesLimit,
			})
		})
		return nil
	})
	g.Go(func() error {
		dc.DealEmails = r.fetchDealEmails(ctx)
		return nil
	})
	g.Go(func() error {
		dc.DealActivities = r.fetchActivities(ctx, "deal.activities", "deal.activities", "dealId", r.dealID, dealActivitiesLimit)
		return nil
	})
	g.Go(func() error {
		dc.DealTasks = fetch(ctx, r, "deal.tasks", "deal.tasks", []models.Task{}, func(c context.Context) ([]models.Task, error) {
			return queryList[models.Task](c, r.store, r.tenantID, store.Query{
				Collection: collTasks,
				Filters:    []store.Filter{store.Where("associations.deals", store.OpArrayContains, r.dealID)},
				OrderBy:    "createdAt",
				Descending: true,
				Limit:      tasksLimit,
			})
		})
		return nil
	})
	g.Go(func() error {
		dc.DealToneSettings = r.fetchTone(ctx, "deal.tone", "deal.tone", r.dealID)
		return nil
	})
	g.Go(func() error {
		dc.DealAIInferences = r.fetchAIInferences(ctx, "deal.ai", "deal.ai", "deal", r.dealID)
		return nil
	})
}

func (r *run) buildCompany(ctx context.Context, id string) *models.CompanyContext {
	g := new(errgroup.Group)
	var (
		company  *models.Company
		records  entityRecords
		activity []models.Activity
	)
	g.Go(func() error {
		kind, key := companyKind.branchKey(id, "record")
		company = fetch(ctx, r, kind, key, (*models.Company)(nil), func(c context.Context) (*models.Company, error) {
			return getOne[models.Company](c, r.store, r.tenantID, collCompanies, id)
		})
		return nil
	})
	r.fetchEntityRecords(ctx, g, companyKind, id, &records)
	g.Go(func() error {
		kind, key := companyKind.branchKey(id, "activity")
		activity = r.fetchActivities(ctx, kind, key, "companyId", id, companyActivityLimit)
		return nil
	})
	_ = g.Wait()

	if company == nil {
		return nil
	}
	return &models.CompanyContext{
		Company:               *company,
		CompanyNotes:          records.notes,
		CompanyEmails:         records.emails,
		CompanyTasks:          records.tasks,
		CompanyToneSettings:   records.tone,
		CompanyAIInferences:   records.ai,
		CompanyRecentActivity: activity,
	}
}

func (r *run) buildLocation(ctx context.Context, id string) *models.LocationContext {
	g := new(errgroup.Group)
	var (
		location *models.Location
		records  entityRecords
	)
	g.Go(func() error {
		kind, key := locationKind.branchKey(id, "record")
		location = fetch(ctx, r, kind, key, (*models.Location)(nil), func(c context.Context) (*models.Location, error) {
			return getOne[models.Location](c, r.store, r.tenantID, collLocations, id)
		})
		return nil
	})
	r.fetchEntityRecords(ctx, g, locationKind, id, &records)
	_ = g.Wait()

	if location == nil {
		return nil
	}
	return &models.LocationContext{
		Location:             *location,
		LocationNotes:        records.notes,
		LocationEmails:       records.emails,
		LocationTasks:        records.tasks,
		LocationToneSettings: records.tone,
		LocationAIInferences: records.ai,
	}
}

// buildContact assembles one contact. The deal role comes from the contact
// record, then from the deal's association entry.
func (r *run) buildContact(ctx context.Context, id, associationRole string) *models.ContactContext {
	g := new(errgroup.Group)
	var (
		contact *models.Contact
		records entityRecords
	)
	g.Go(func() error {
		kind, key := contactKind.branchKey(id, "record")
		contact = fetch(ctx, r, kind, key, (*models.Contact)(nil), func(c context.Context) (*models.Contact, error) {
			return getOne[models.Contact](c, r.store, r.tenantID, collContacts, id)
		})
		return nil
	})
	r.fetchEntityRecords(ctx, g, contactKind, id, &records)
	_ = g.Wait()

	if contact == nil {
		return nil
	}
	role := contact.ContactDealRole
	if role == "" {
		role = associationRole
	}
	return &models.ContactContext{
		Contact:                  *contact,
		ContactNotes:             records.notes,
		ContactEmails:            records.emails,
		ContactTasks:             records.tasks,
		ContactToneSettings:      records.tone,
		ContactAIInferences:      records.ai,
		ContactDealRole:          role,
		ContactPersonality:       contact.ContactPersonality,
		CommunicationPreferences: contact.CommunicationPreferences,
	}
}

func (r *run) buildSalesperson(ctx context.Context, id string) *models.SalespersonContext {
	g := new(errgroup.Group)
	var (
		person      *models.Salesperson
		records     entityRecords
		performance *models.SalespersonPerformance
	)
	g.Go(func() error {
		kind, key := salespersonKind.branchKey(id, "record")
		person = fetch(ctx, r, kind, key, (*models.Salesperson)(nil), func(c context.Context) (*models.Salesperson, error) {
			return getOne[models.Salesperson](c, r.store, r.tenantID, collUsers, id)
		})
		return nil
	})
	r.fetchEntityRecords(ctx, g, salespersonKind, id, &records)
	g.Go(func() error {
		kind, key := salespersonKind.branchKey(id, "performance")
		performance = fetch(ctx, r, kind, key, (*models.SalespersonPerformance)(nil), func(c context.Context) (*models.SalespersonPerformance, error) {
			return getOne[models.SalespersonPerformance](c, r.store, r.tenantID, collPerformance, id)
		})
		return nil
	})
	_ = g.Wait()

	if person == nil {
		return nil
	}
	return &models.SalespersonContext{
		Salesperson:             *person,
		SalespersonNotes:        records.notes,
		SalespersonEmails:       records.emails,
		SalespersonTasks:        records.tasks,
		SalespersonToneSettings: records.tone,
		SalespersonAIInferences: records.ai,
		SalespersonPerformance:  performance,
	}
}

// fetch runs one branch under the concurrency bound and branch timeout and
// records its outcome. On error or panic it returns empty.
func fetch[T any](ctx context.Context, r *run, kind, key string, empty T, fn func(context.Context) (T, error)) (out T) {
	start := time.Now()
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			out = empty
		}
		r.finish(kind, key, err, time.Since(start))
	}()

	if r.sem != nil {
		if err = r.sem.Acquire(ctx, 1); err != nil {
			return empty
		}
		defer r.sem.Release(1)
	}
	bctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err = fn(bctx)
	return out
}

func (r *run) finish(kind, key string, err error, d time.Duration) {
	outcome := models.BranchOutcome{Status: models.BranchOK, DurationMs: d.Milliseconds()}
	switch {
	case err == nil:
	case isNotFound(err):
		outcome.Status = models.BranchNotFound
	default:
		outcome.Status = models.BranchFailed
		outcome.Error = err.Error()
		outcome.Permanent = isMalformed(err)
		r.log.Warn("Context branch failed", map[string]interface{}{
			"branch": key,
			"error":  err,
		})
	}
	r.rec.BranchFetched(kind, string(outcome.Status), d)
	r.setOutcome(key, outcome)
}

func (r *run) setOutcome(key string, outcome models.BranchOutcome) {
	r.mu.Lock()
	r.branches[key] = outcome
	r.mu.Unlock()
}

func (r *run) report() models.FetchReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	branches := make(map[string]models.BranchOutcome, len(r.branches))
	for k, v := range r.branches {
		branches[k] = v
	}
	return models.FetchReport{RunID: r.runID, Branches: branches}
}

func compact[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}

type noopRecorder struct{}

func (noopRecorder) BranchFetched(string, string, time.Duration) {}

func (noopRecorder) AssociationsDropped(string, int) {}

func (noopRecorder) AggregationFinished(context.Context, time.Duration, int) {}
