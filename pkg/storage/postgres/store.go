package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/coursemetrics/pkg/analytics"
	"github.com/platinummonkey/coursemetrics/pkg/observability"
)

const tracerName = "github.com/platinummonkey/coursemetrics/pkg/storage/postgres"

// Store is the SQL implementation of analytics.Source. Every query is
// read-only and runs on a replica when one is configured.
//
// Placeholders are numbered ($1, $2, ...) in the order they appear, so the
// same statements run on lib/pq and go-sqlite3.
type Store struct {
	conns   *ConnectionManager
	metrics *observability.Metrics
	log     logrus.FieldLogger
	tracer  trace.Tracer
}

var _ analytics.Source = (*Store)(nil)

// StoreOption configures a Store
type StoreOption func(*Store)

// WithMetrics records query counts and durations
func WithMetrics(m *observability.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the store logger
func WithLogger(log logrus.FieldLogger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore creates a Store reading through conns
func NewStore(conns *ConnectionManager, opts ...StoreOption) *Store {
	s := &Store{
		conns:  conns,
		log:    logrus.StandardLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run executes fn against a read connection inside a span and records the
// outcome under op
func (s *Store) run(ctx context.Context, op string, fn func(context.Context, *sql.DB) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "Store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sql"),
			attribute.String("db.operation", op),
		),
	)
	start := time.Now()
	defer func() {
		s.metrics.ObserveSourceQuery(op, time.Since(start), err)
		if err != nil && !errors.Is(err, analytics.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query failed")
			observability.WithContextFields(ctx, s.log).WithError(err).WithField("operation", op).Debug("Source query failed")
		}
		span.End()
	}()

	return fn(ctx, s.conns.Replica())
}

// where accumulates AND-ed conditions and their arguments
type where struct {
	clauses []string
	args    []any
}

// placeholder appends arg and returns its numbered placeholder
func (w *where) placeholder(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

// add appends a condition; format holds one %s for the placeholder of arg
func (w *where) add(format string, arg any) {
	w.clauses = append(w.clauses, fmt.Sprintf(format, w.placeholder(arg)))
}

func (w *where) addRange(column string, from, to time.Time) {
	if !from.IsZero() {
		w.add(column+" >= %s", from.UTC())
	}
	if !to.IsZero() {
		w.add(column+" < %s", to.UTC())
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

const instructorCourses = " IN (SELECT id FROM courses WHERE instructor_id = %s)"

func (s *Store) count(ctx context.Context, op, query string, args []any) (int64, error) {
	var n int64
	err := s.run(ctx, op, func(ctx context.Context, db *sql.DB) error {
		if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			return fmt.Errorf("failed to %s: %w", op, err)
		}
		return nil
	})
	return n, err
}

// CountUsers counts users created inside the filter window
func (s *Store) CountUsers(ctx context.Context, filter analytics.UserFilter) (int64, error) {
	var w where
	w.addRange("created_at", filter.CreatedFrom, filter.CreatedTo)
	return s.count(ctx, "count_users", "SELECT COUNT(*) FROM users"+w.String(), w.args)
}

// CountActiveUsers counts distinct users with lesson progress accessed since the given time
func (s *Store) CountActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	var w where
	if !since.IsZero() {
		w.add("last_accessed_at >= %s", since.UTC())
	}
	return s.count(ctx, "count_active_users", "SELECT COUNT(DISTINCT user_id) FROM lesson_progress"+w.String(), w.args)
}

func courseWhere(filter analytics.CourseFilter, alias string) *where {
	w := &where{}
	if filter.InstructorID != "" {
		w.add(alias+"instructor_id = %s", filter.InstructorID)
	}
	if filter.Published != nil {
		w.add(alias+"published = %s", *filter.Published)
	}
	return w
}

// CountCourses counts courses matching the filter; ordering and limit are ignored
func (s *Store) CountCourses(ctx context.Context, filter analytics.CourseFilter) (int64, error) {
	w := courseWhere(filter, "")
	return s.count(ctx, "count_courses", "SELECT COUNT(*) FROM courses"+w.String(), w.args)
}

func enrollmentWhere(filter analytics.EnrollmentFilter) *where {
	w := &where{}
	if filter.UserID != "" {
		w.add("user_id = %s", filter.UserID)
	}
	if filter.CourseID != "" {
		w.add("course_id = %s", filter.CourseID)
	}
	if filter.InstructorID != "" {
		w.add("course_id"+instructorCourses, filter.InstructorID)
	}
	w.addRange("enrolled_at", filter.From, filter.To)
	if filter.CompletedOnly {
		w.add("completed = %s", true)
	}
	return w
}

// CountEnrollments counts enrollments matching the filter
func (s *Store) CountEnrollments(ctx context.Context, filter analytics.EnrollmentFilter) (int64, error) {
	w := enrollmentWhere(filter)
	return s.count(ctx, "count_enrollments", "SELECT COUNT(*) FROM enrollments"+w.String(), w.args)
}

func paymentWhere(filter analytics.PaymentFilter) *where {
	w := &where{}
	w.add("status = %s", filter.EffectiveStatus())
	if filter.UserID != "" {
		w.add("user_id = %s", filter.UserID)
	}
	if filter.CourseID != "" {
		w.add("course_id = %s", filter.CourseID)
	}
	if filter.InstructorID != "" {
		w.add("course_id"+instructorCourses, filter.InstructorID)
	}
	w.addRange("created_at", filter.From, filter.To)
	return w
}

// SumRevenue sums payment amounts matching the filter, 0 when none match
func (s *Store) SumRevenue(ctx context.Context, filter analytics.PaymentFilter) (float64, error) {
	w := paymentWhere(filter)
	query := "SELECT COALESCE(SUM(amount), 0) FROM payments" + w.String()

	var total float64
	err := s.run(ctx, "sum_revenue", func(ctx context.Context, db *sql.DB) error {
		if err := db.QueryRowContext(ctx, query, w.args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to sum revenue: %w", err)
		}
		return nil
	})
	return total, err
}

const courseColumns = `c.id, c.title, c.instructor_id, c.category, c.level, c.price, c.published, c.view_count,
	(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id) AS enrollment_count, c.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(row scanner) (analytics.CourseRow, error) {
	var c analytics.CourseRow
	err := row.Scan(&c.ID, &c.Title, &c.InstructorID, &c.Category, &c.Level, &c.Price,
		&c.Published, &c.ViewCount, &c.EnrollmentCount, &c.CreatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

// GetCourse returns one course with its enrollment count
func (s *Store) GetCourse(ctx context.Context, courseID string) (*analytics.CourseRow, error) {
	query := "SELECT " + courseColumns + " FROM courses c WHERE c.id = $1"

	var course analytics.CourseRow
	err := s.run(ctx, "get_course", func(ctx context.Context, db *sql.DB) error {
		var err error
		course, err = scanCourse(db.QueryRowContext(ctx, query, courseID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("course %s: %w", courseID, analytics.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get course: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

const userColumns = "id, name, email, role, created_at"

func scanUser(row scanner) (analytics.UserRow, error) {
	var u analytics.UserRow
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, err
}

// GetUser returns one user
func (s *Store) GetUser(ctx context.Context, userID string) (*analytics.UserRow, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"

	var user analytics.UserRow
	err := s.run(ctx, "get_user", func(ctx context.Context, db *sql.DB) error {
		var err error
		user, err = scanUser(db.QueryRowContext(ctx, query, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %s: %w", userID, analytics.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// list runs query and scans every row with scan
func list[T any](ctx context.Context, s *Store, op, query string, args []any, scan func(scanner) (T, error)) ([]T, error) {
	var out []T
	err := s.run(ctx, op, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to %s: %w", op, err)
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scan(rows)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", op, err)
			}
			out = append(out, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListUsers returns users created inside the filter window, oldest first
func (s *Store) ListUsers(ctx context.Context, filter analytics.UserFilter) ([]analytics.UserRow, error) {
	var w where
	w.addRange("created_at", filter.CreatedFrom, filter.CreatedTo)
	query := "SELECT " + userColumns + " FROM users" + w.String() + " ORDER BY created_at, id"
	return list(ctx, s, "list_users", query, w.args, scanUser)
}

// ListCourses returns courses with EnrollmentCount populated
func (s *Store) ListCourses(ctx context.Context, filter analytics.CourseFilter) ([]analytics.CourseRow, error) {
	w := courseWhere(filter, "c.")
	query := "SELECT " + courseColumns + " FROM courses c" + w.String()
	if filter.OrderByEnrollments {
		query += " ORDER BY enrollment_count DESC, c.id"
	} else {
		query += " ORDER BY c.created_at, c.id"
	}
	if filter.Limit > 0 {
		query += " LIMIT " + w.placeholder(filter.Limit)
	}
	return list(ctx, s, "list_courses", query, w.args, scanCourse)
}

// ListLessons returns the lessons of a course ordered by position
func (s *Store) ListLessons(ctx context.Context, courseID string) ([]analytics.LessonRow, error) {
	query := `SELECT id, course_id, title, position, duration_seconds
		FROM lessons WHERE course_id = $1 ORDER BY position, id`
	return list(ctx, s, "list_lessons", query, []any{courseID}, func(row scanner) (analytics.LessonRow, error) {
		var l analytics.LessonRow
		err := row.Scan(&l.ID, &l.CourseID, &l.Title, &l.Position, &l.DurationSeconds)
		return l, err
	})
}

// nullTime maps NULL to the zero time
func nullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// ListEnrollments returns enrollments matching the filter, oldest first
func (s *Store) ListEnrollments(ctx context.Context, filter analytics.EnrollmentFilter) ([]analytics.EnrollmentRow, error) {
	w := enrollmentWhere(filter)
	query := "SELECT id, user_id, course_id, enrolled_at, completed, completed_at FROM enrollments" +
		w.String() + " ORDER BY enrolled_at, id"
	return list(ctx, s, "list_enrollments", query, w.args, func(row scanner) (analytics.EnrollmentRow, error) {
		var (
			e           analytics.EnrollmentRow
			completedAt sql.NullTime
		)
		err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.EnrolledAt, &e.Completed, &completedAt)
		e.EnrolledAt = e.EnrolledAt.UTC()
		e.CompletedAt = nullTime(completedAt)
		return e, err
	})
}

// ListProgress returns lesson progress with the course of each lesson
func (s *Store) ListProgress(ctx context.Context, filter analytics.ProgressFilter) ([]analytics.ProgressRow, error) {
	var w where
	if filter.UserID != "" {
		w.add("p.user_id = %s", filter.UserID)
	}
	if filter.CourseID != "" {
		w.add("l.course_id = %s", filter.CourseID)
	}
	if filter.InstructorID != "" {
		w.add("l.course_id"+instructorCourses, filter.InstructorID)
	}
	if filter.CompletedOnly {
		w.add("p.completed = %s", true)
	}
	if !filter.Since.IsZero() {
		w.add("p.last_accessed_at >= %s", filter.Since.UTC())
	}

	query := `SELECT p.id, p.user_id, l.course_id, p.lesson_id, p.completed, p.watch_time_seconds,
		p.last_accessed_at, p.completed_at
		FROM lesson_progress p JOIN lessons l ON l.id = p.lesson_id` + w.String() + " ORDER BY p.id"
	return list(ctx, s, "list_progress", query, w.args, func(row scanner) (analytics.ProgressRow, error) {
		var (
			p                         analytics.ProgressRow
			lastAccessed, completedAt sql.NullTime
		)
		err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.LessonID, &p.Completed, &p.WatchTimeSeconds,
			&lastAccessed, &completedAt)
		p.LastAccessedAt = nullTime(lastAccessed)
		p.CompletedAt = nullTime(completedAt)
		return p, err
	})
}

// ListPayments returns payments matching the filter, oldest first
func (s *Store) ListPayments(ctx context.Context, filter analytics.PaymentFilter) ([]analytics.PaymentRow, error) {
	w := paymentWhere(filter)
	query := "SELECT id, user_id, course_id, amount, status, created_at FROM payments" +
		w.String() + " ORDER BY created_at, id"
	return list(ctx, s, "list_payments", query, w.args, func(row scanner) (analytics.PaymentRow, error) {
		var p analytics.PaymentRow
		err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.Amount, &p.Status, &p.CreatedAt)
		p.CreatedAt = p.CreatedAt.UTC()
		return p, err
	})
}

// ListReviews returns the reviews of one course or of an instructor's courses
func (s *Store) ListReviews(ctx context.Context, filter analytics.ReviewFilter) ([]analytics.ReviewRow, error) {
	var w where
	if filter.CourseID != "" {
		w.add("course_id = %s", filter.CourseID)
	}
	if filter.InstructorID != "" {
		w.add("course_id"+instructorCourses, filter.InstructorID)
	}
	query := "SELECT id, user_id, course_id, rating, created_at FROM reviews" + w.String() + " ORDER BY created_at, id"
	return list(ctx, s, "list_reviews", query, w.args, func(row scanner) (analytics.ReviewRow, error) {
		var r analytics.ReviewRow
		err := row.Scan(&r.ID, &r.UserID, &r.CourseID, &r.Rating, &r.CreatedAt)
		r.CreatedAt = r.CreatedAt.UTC()
		return r, err
	})
}

// ListQuizAttempts returns a student's quiz attempts, oldest first
func (s *Store) ListQuizAttempts(ctx context.Context, userID string) ([]analytics.QuizAttemptRow, error) {
	query := `SELECT id, user_id, quiz_id, score, passed, attempted_at
		FROM quiz_attempts WHERE user_id = $1 ORDER BY attempted_at, id`
	return list(ctx, s, "list_quiz_attempts", query, []any{userID}, func(row scanner) (analytics.QuizAttemptRow, error) {
		var q analytics.QuizAttemptRow
		err := row.Scan(&q.ID, &q.UserID, &q.QuizID, &q.Score, &q.Passed, &q.AttemptedAt)
		q.AttemptedAt = q.AttemptedAt.UTC()
		return q, err
	})
}

// ListCertificates returns a student's certificates, oldest first
func (s *Store) ListCertificates(ctx context.Context, userID string) ([]analytics.CertificateRow, error) {
	query := `SELECT id, user_id, course_id, issued_at
		FROM certificates WHERE user_id = $1 ORDER BY issued_at, id`
	return list(ctx, s, "list_certificates", query, []any{userID}, func(row scanner) (analytics.CertificateRow, error) {
		var c analytics.CertificateRow
		err := row.Scan(&c.ID, &c.UserID, &c.CourseID, &c.IssuedAt)
		c.IssuedAt = c.IssuedAt.UTC()
		return c, err
	})
}

// ListAchievements returns a student's achievements, oldest first
func (s *Store) ListAchievements(ctx context.Context, userID string) ([]analytics.AchievementRow, error) {
	query := `SELECT id, user_id, title, earned_at
		FROM achievements WHERE user_id = $1 ORDER BY earned_at, id`
	return list(ctx, s, "list_achievements", query, []any{userID}, func(row scanner) (analytics.AchievementRow, error) {
		var a analytics.AchievementRow
		err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.EarnedAt)
		a.EarnedAt = a.EarnedAt.UTC()
		return a, err
	})
}
