package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/coursemetrics/pkg/analytics"
	"github.com/platinummonkey/coursemetrics/pkg/cache"
)

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
}

// seed loads a small academy: one instructor with a published and a draft
// course, and two students
func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	inserts := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO users (id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5)", []any{"i1", "Ada", "ada@example.com", "INSTRUCTOR", day(1, 1)}},
		{"INSERT INTO users (id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5)", []any{"u1", "Bo", "bo@example.com", "STUDENT", day(1, 10)}},
		{"INSERT INTO users (id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5)", []any{"u2", "Cy", "cy@example.com", "STUDENT", day(2, 5)}},

		{"INSERT INTO courses (id, title, instructor_id, category, level, price, published, view_count, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
			[]any{"c1", "Go Basics", "i1", "programming", "BEGINNER", 49.99, true, 100, day(1, 2)}},
		{"INSERT INTO courses (id, title, instructor_id, category, level, price, published, view_count, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
			[]any{"c2", "Go Internals", "i1", "programming", "ADVANCED", 10.0, false, 0, day(1, 3)}},

		{"INSERT INTO lessons (id, course_id, title, position, duration_seconds) VALUES ($1, $2, $3, $4, $5)", []any{"l2", "c1", "Types", 2, 900}},
		{"INSERT INTO lessons (id, course_id, title, position, duration_seconds) VALUES ($1, $2, $3, $4, $5)", []any{"l1", "c1", "Intro", 1, 600}},

		{"INSERT INTO enrollments (id, user_id, course_id, enrolled_at, completed, completed_at) VALUES ($1, $2, $3, $4, $5, $6)", []any{"e1", "u1", "c1", day(1, 11), true, day(1, 20)}},
		{"INSERT INTO enrollments (id, user_id, course_id, enrolled_at, completed, completed_at) VALUES ($1, $2, $3, $4, $5, $6)", []any{"e2", "u2", "c1", day(2, 6), false, nil}},
		{"INSERT INTO enrollments (id, user_id, course_id, enrolled_at, completed, completed_at) VALUES ($1, $2, $3, $4, $5, $6)", []any{"e3", "u1", "c2", day(1, 12), false, nil}},

		{"INSERT INTO lesson_progress (id, user_id, lesson_id, completed, watch_time_seconds, last_accessed_at, completed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)", []any{"p1", "u1", "l1", true, 600, day(1, 15), day(1, 15)}},
		{"INSERT INTO lesson_progress (id, user_id, lesson_id, completed, watch_time_seconds, last_accessed_at, completed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)", []any{"p2", "u1", "l2", true, 900, day(1, 19), day(1, 19)}},
		{"INSERT INTO lesson_progress (id, user_id, lesson_id, completed, watch_time_seconds, last_accessed_at, completed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)", []any{"p3", "u2", "l1", false, 120, day(2, 7), nil}},

		{"INSERT INTO payments (id, user_id, course_id, amount, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)", []any{"pay1", "u1", "c1", 49.99, "COMPLETED", day(1, 11)}},
		{"INSERT INTO payments (id, user_id, course_id, amount, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)", []any{"pay2", "u2", "c1", 49.99, "COMPLETED", day(2, 6)}},
		{"INSERT INTO payments (id, user_id, course_id, amount, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)", []any{"pay3", "u1", "c2", 10.0, "REFUNDED", day(1, 12)}},

		{"INSERT INTO reviews (id, user_id, course_id, rating, created_at) VALUES ($1, $2, $3, $4, $5)", []any{"r1", "u1", "c1", 5, day(1, 21)}},
		{"INSERT INTO reviews (id, user_id, course_id, rating, created_at) VALUES ($1, $2, $3, $4, $5)", []any{"r2", "u2", "c1", 4, day(2, 8)}},

		{"INSERT INTO quiz_attempts (id, user_id, quiz_id, score, passed, attempted_at) VALUES ($1, $2, $3, $4, $5, $6)", []any{"q1", "u1", "quiz-a", 80.0, true, day(1, 16)}},
		{"INSERT INTO certificates (id, user_id, course_id, issued_at) VALUES ($1, $2, $3, $4)", []any{"cert1", "u1", "c1", day(1, 20)}},
		{"INSERT INTO achievements (id, user_id, title, earned_at) VALUES ($1, $2, $3, $4)", []any{"a1", "u1", "First Course", day(1, 20)}},
	}
	for _, ins := range inserts {
		_, err := db.Exec(ins.query, ins.args...)
		require.NoError(t, err, ins.query)
	}
}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "coursemetrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	// applying twice is a no-op
	require.NoError(t, Migrate(context.Background(), db))
	seed(t, db)

	return NewStore(WrapDB(db, nil))
}

func TestSQLiteStore_Counts(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	count := func(n int64, err error) int64 {
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, int64(3), count(store.CountUsers(ctx, analytics.UserFilter{})))
	assert.Equal(t, int64(1), count(store.CountUsers(ctx, analytics.UserFilter{CreatedFrom: day(1, 5), CreatedTo: day(2, 1)})))

	assert.Equal(t, int64(2), count(store.CountActiveUsers(ctx, day(1, 18))))
	assert.Equal(t, int64(1), count(store.CountActiveUsers(ctx, day(2, 1))))

	assert.Equal(t, int64(1), count(store.CountCourses(ctx, analytics.CourseFilter{Published: analytics.BoolPtr(true)})))
	assert.Equal(t, int64(2), count(store.CountCourses(ctx, analytics.CourseFilter{InstructorID: "i1"})))
	assert.Equal(t, int64(0), count(store.CountCourses(ctx, analytics.CourseFilter{InstructorID: "u1"})))

	assert.Equal(t, int64(2), count(store.CountEnrollments(ctx, analytics.EnrollmentFilter{CourseID: "c1"})))
	assert.Equal(t, int64(3), count(store.CountEnrollments(ctx, analytics.EnrollmentFilter{InstructorID: "i1"})))
	assert.Equal(t, int64(1), count(store.CountEnrollments(ctx, analytics.EnrollmentFilter{CompletedOnly: true})))
	assert.Equal(t, int64(1), count(store.CountEnrollments(ctx, analytics.EnrollmentFilter{From: day(2, 1)})))

	sum := func(v float64, err error) float64 {
		require.NoError(t, err)
		return v
	}
	assert.InDelta(t, 99.98, sum(store.SumRevenue(ctx, analytics.PaymentFilter{})), 0.001)
	assert.InDelta(t, 49.99, sum(store.SumRevenue(ctx, analytics.PaymentFilter{CourseID: "c1", From: day(2, 1)})), 0.001)
	assert.InDelta(t, 10.0, sum(store.SumRevenue(ctx, analytics.PaymentFilter{Status: analytics.PaymentRefunded})), 0.001)
	assert.InDelta(t, 99.98, sum(store.SumRevenue(ctx, analytics.PaymentFilter{InstructorID: "i1"})), 0.001)
	assert.Zero(t, sum(store.SumRevenue(ctx, analytics.PaymentFilter{UserID: "nobody"})))
}

func TestSQLiteStore_Lookups(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	course, err := store.GetCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Go Basics", course.Title)
	assert.Equal(t, int64(2), course.EnrollmentCount)
	assert.InDelta(t, 49.99, course.Price, 0.001)
	assert.True(t, course.Published)
	assert.True(t, course.CreatedAt.Equal(day(1, 2)))

	_, err = store.GetCourse(ctx, "missing")
	assert.ErrorIs(t, err, analytics.ErrNotFound)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "bo@example.com", user.Email)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, analytics.ErrNotFound)
}

func TestSQLiteStore_Lists(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		users, err := store.ListUsers(ctx, analytics.UserFilter{CreatedFrom: day(1, 5)})
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "u1", users[0].ID)
		assert.Equal(t, "u2", users[1].ID)
	})

	t.Run("courses", func(t *testing.T) {
		top, err := store.ListCourses(ctx, analytics.CourseFilter{OrderByEnrollments: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "c1", top[0].ID)

		all, err := store.ListCourses(ctx, analytics.CourseFilter{InstructorID: "i1"})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "c1", all[0].ID)
		assert.Equal(t, int64(1), all[1].EnrollmentCount)
	})

	t.Run("lessons ordered by position", func(t *testing.T) {
		lessons, err := store.ListLessons(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, lessons, 2)
		assert.Equal(t, "l1", lessons[0].ID)
		assert.Equal(t, int64(900), lessons[1].DurationSeconds)
	})

	t.Run("enrollments", func(t *testing.T) {
		rows, err := store.ListEnrollments(ctx, analytics.EnrollmentFilter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "e1", rows[0].ID)
		assert.True(t, rows[0].Completed)
		assert.True(t, rows[0].CompletedAt.Equal(day(1, 20)))
		assert.False(t, rows[1].Completed)
		assert.True(t, rows[1].CompletedAt.IsZero())
	})

	t.Run("progress", func(t *testing.T) {
		rows, err := store.ListProgress(ctx, analytics.ProgressFilter{CourseID: "c1"})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for _, row := range rows {
			assert.Equal(t, "c1", row.CourseID)
		}

		rows, err = store.ListProgress(ctx, analytics.ProgressFilter{UserID: "u2"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].CompletedAt.IsZero())
		assert.True(t, rows[0].LastAccessedAt.Equal(day(2, 7)))

		rows, err = store.ListProgress(ctx, analytics.ProgressFilter{InstructorID: "i1", CompletedOnly: true})
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		rows, err = store.ListProgress(ctx, analytics.ProgressFilter{Since: day(1, 18)})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("payments and reviews", func(t *testing.T) {
		payments, err := store.ListPayments(ctx, analytics.PaymentFilter{})
		require.NoError(t, err)
		require.Len(t, payments, 2)
		assert.Equal(t, "pay1", payments[0].ID)

		reviews, err := store.ListReviews(ctx, analytics.ReviewFilter{InstructorID: "i1"})
		require.NoError(t, err)
		require.Len(t, reviews, 2)
		assert.Equal(t, 5, reviews[0].Rating)
	})

	t.Run("student records", func(t *testing.T) {
		quizzes, err := store.ListQuizAttempts(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, quizzes, 1)
		assert.InDelta(t, 80.0, quizzes[0].Score, 0.001)
		assert.True(t, quizzes[0].Passed)

		certs, err := store.ListCertificates(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, certs, 1)

		achievements, err := store.ListAchievements(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, achievements, 1)
		assert.Equal(t, "First Course", achievements[0].Title)

		none, err := store.ListCertificates(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestSQLiteStore_CourseSnapshot(t *testing.T) {
	store := newSQLiteStore(t)
	manager := cache.NewManager(cache.NewStore(cache.DefaultNamespaces()))
	service := analytics.NewService(store, manager)

	metrics, err := service.GetCourseMetrics(context.Background(), "c1", &analytics.DateRange{From: day(1, 1), To: day(3, 1)})
	require.NoError(t, err)

	assert.Equal(t, "Go Basics", metrics.Title)
	assert.Equal(t, int64(2), metrics.TotalEnrollments)
	assert.Equal(t, int64(2), metrics.EnrollmentsInRange)
	assert.Equal(t, int64(2), metrics.ReviewCount)
	assert.InDelta(t, 4.5, metrics.AverageRating, 0.01)
	assert.InDelta(t, 99.98, metrics.Revenue, 0.01)

	_, err = service.GetCourseMetrics(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, analytics.ErrNotFound)
}
