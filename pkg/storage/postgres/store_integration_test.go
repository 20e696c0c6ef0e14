//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/coursemetrics/pkg/analytics"
	"github.com/platinummonkey/coursemetrics/pkg/storage"
)

// setupPostgres starts a PostgreSQL container with the schema and seed data
func setupPostgres(t *testing.T) *ConnectionManager {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("coursemetrics_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.DatabaseURL = connStr
	cm, err := NewConnectionManager(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cm.Close() })

	require.NoError(t, Migrate(ctx, cm.Primary()))
	seed(t, cm.Primary())
	return cm
}

func TestPostgresStore_Integration(t *testing.T) {
	cm := setupPostgres(t)
	store := NewStore(cm)
	ctx := context.Background()

	require.NoError(t, cm.HealthCheck(ctx))

	n, err := store.CountEnrollments(ctx, analytics.EnrollmentFilter{InstructorID: "i1", From: day(1, 1), To: day(3, 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	revenue, err := store.SumRevenue(ctx, analytics.PaymentFilter{InstructorID: "i1"})
	require.NoError(t, err)
	assert.InDelta(t, 99.98, revenue, 0.001)

	active, err := store.CountActiveUsers(ctx, day(1, 18))
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	top, err := store.ListCourses(ctx, analytics.CourseFilter{Published: analytics.BoolPtr(true), OrderByEnrollments: true, Limit: 5})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].EnrollmentCount)

	progress, err := store.ListProgress(ctx, analytics.ProgressFilter{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.True(t, progress[0].CompletedAt.IsZero())
	assert.True(t, progress[0].LastAccessedAt.Equal(day(2, 7)))

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, analytics.ErrNotFound)
}
