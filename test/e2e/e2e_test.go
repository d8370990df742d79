// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"deal-coach/internal/common/camunda"
	"deal-coach/internal/common/config"
	"deal-coach/internal/common/database"
	"deal-coach/internal/common/logger"
	"deal-coach/internal/dealcontext"
	"deal-coach/internal/store"
	bcp "deal-coach/internal/workers/deal-coaching/build-coaching-prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The suite needs running Postgres and Redis (and optionally Zeebe) reachable
// through configs/config.yaml. Set E2E=1 to run it.
func TestMain(m *testing.M) {
	if os.Getenv("E2E") == "" {
		fmt.Println("E2E not set, skipping end-to-end tests")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

const e2eTenant = "e2e_tenant"

type seedDoc struct {
	collection string
	id         string
	data       map[string]any
}

var dealGraph = []seedDoc{
	{"deals", "e2e-deal", map[string]any{
		"name": "E2E Expansion", "stage": "Proposal", "estimatedValue": 48000,
		"associations": map[string]any{
			"companies": []any{map[string]any{"id": "e2e-co", "isPrimary": true}},
			"contacts":  []any{map[string]any{"id": "e2e-p1", "role": "decision_maker"}},
		},
	}},
	{"deals/e2e-deal/notes", "n1", map[string]any{"content": "Asked for a pilot", "createdAt": "2024-03-01T09:00:00Z"}},
	{"crm_companies", "e2e-co", map[string]any{"name": "Globex", "industry": "Logistics"}},
	{"crm_contacts", "e2e-p1", map[string]any{"firstName": "Hank", "lastName": "Scorpio", "title": "CEO"}},
	{"activities", "a1", map[string]any{"dealId": "e2e-deal", "type": "email_sent", "timestamp": "2024-03-02T09:00:00Z"}},
	{"ai_learning", "global", map[string]any{"commonObjections": []any{"timeline"}}},
}

func TestBuildCoachingPromptE2E(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)
	log := logger.NewTestLogger(t)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()
	require.NoError(t, database.WaitReady(ctx, "postgres", pg, 5, time.Second), "PostgreSQL unreachable")

	docs, err := store.NewPostgresStore(pg.DB, cfg.Store.Table)
	require.NoError(t, err)
	require.NoError(t, docs.EnsureSchema(ctx))
	seedPostgres(ctx, t, pg, cfg.Store.Table, dealGraph)
	t.Cleanup(func() {
		_, _ = pg.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, cfg.Store.Table), e2eTenant)
	})

	rc := database.NewRedis(cfg.Database.Redis)
	defer rc.Close()
	require.NoError(t, database.WaitReady(ctx, "redis", rc, 5, time.Second), "Redis unreachable")

	cached := store.NewCachedStore(docs, rc.Client, time.Minute, []string{"ai_learning", "crm_companies"}, log)
	agg := dealcontext.NewAggregator(cached, log, nil, dealcontext.Options{MaxConcurrentFetches: 8, BranchTimeout: 5 * time.Second})

	handler, err := bcp.NewHandler(bcp.HandlerOptions{AppConfig: cfg, Builder: agg, Logger: log})
	require.NoError(t, err)

	input := &bcp.Input{DealID: "e2e-deal", TenantID: e2eTenant, UserID: "e2e-user", UserMessage: "Who is the decision maker?"}

	// The second run is served partly from the Redis cache.
	for run := 0; run < 2; run++ {
		out, err := handler.Execute(ctx, input)
		require.NoError(t, err, "run %d", run)

		assert.Contains(t, out.ContextSummary, "Deal: E2E Expansion (Proposal)")
		assert.Contains(t, out.ContextSummary, "Value: $48,000")
		assert.Contains(t, out.ContextSummary, "Company: Globex (Logistics)")
		assert.Contains(t, out.Recommendations, "Focus on Hank Scorpio as the primary decision maker")
		assert.Contains(t, out.Recommendations, "Follow up on the recent email")
		assert.Contains(t, out.EnhancedUserPrompt, "CONTACT CONTEXT:")
		assert.Empty(t, out.FailedBranches)
	}

	_, err = handler.Execute(ctx, &bcp.Input{DealID: "no-such-deal", TenantID: e2eTenant, UserID: "e2e-user"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEAL_NOT_FOUND")
}

func TestZeebeConnectivityE2E(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	client, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      5 * time.Second,
		RetryConfig:            &camunda.RetryConfig{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 2 * time.Second},
	})
	if err != nil {
		t.Skipf("Zeebe unavailable at %s: %v", cfg.Camunda.BrokerAddress, err)
	}
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func seedPostgres(ctx context.Context, t *testing.T, pg *database.PostgresClient, table string, docs []seedDoc) {
	t.Helper()
	stmt := fmt.Sprintf(`INSERT INTO %s (tenant_id, collection, id, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, collection, id) DO UPDATE SET data = EXCLUDED.data`, table)

	for _, d := range docs {
		data, err := json.Marshal(d.data)
		require.NoError(t, err)
		_, err = pg.DB.ExecContext(ctx, stmt, e2eTenant, d.collection, d.id, data)
		require.NoError(t, err, "seed %s/%s", d.collection, d.id)
	}
}
