package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deal-coach/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReady_RetriesUntilReady(t *testing.T) {
	p := &flakyPinger{failures: 2}
	require.NoError(t, WaitReady(context.Background(), "test", p, 5, time.Millisecond))
	assert.Equal(t, 3, p.calls)
}

func TestWaitReady_GivesUp(t *testing.T) {
	p := &flakyPinger{failures: 10}
	err := WaitReady(context.Background(), "postgres", p, 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Contains(t, err.Error(), "postgres not ready after 3 attempts")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWaitReady_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &flakyPinger{failures: 10}
	err := WaitReady(ctx, "redis", p, 5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	c := &PostgresClient{DB: db}
	mock.ExpectPing()
	assert.NoError(t, c.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, c.Ping(context.Background()), "postgres ping failed")

	mock.ExpectClose()
	assert.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.ErrorContains(t, c.Ping(context.Background()), "redis ping failed")
}

func TestElasticsearchClient_Ping(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	assert.NoError(t, c.Ping(context.Background()))

	status = http.StatusServiceUnavailable
	assert.ErrorContains(t, c.Ping(context.Background()), "elasticsearch ping error")
}
