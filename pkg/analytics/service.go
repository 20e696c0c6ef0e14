package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/coursemetrics/pkg/cache"
	"github.com/platinummonkey/coursemetrics/pkg/observability"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/platinummonkey/coursemetrics/pkg/analytics"

// DefaultFanOutLimit bounds the concurrent Source reads of one snapshot
const DefaultFanOutLimit = 8

// Dashboard names, used in metrics labels and span names
const (
	DashboardPlatform   = "platform"
	DashboardInstructor = "instructor"
	DashboardStudent    = "student"
	DashboardCourse     = "course"
)

// Service computes the four dashboard snapshots. Each method fans out its
// Source reads concurrently, aggregates the results, and memoizes the snapshot
// in the cache manager under "method:entityID:range".
//
// Source errors are returned unchanged (the first one of the fan-out); the
// service never substitutes a zero-valued snapshot for a failed read.
type Service struct {
	source      Source
	cache       *cache.Manager
	clock       clockwork.Clock
	log         logrus.FieldLogger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	fanOutLimit int
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithClock sets the clock used for default ranges and activity windows
func WithClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger
func WithLogger(log logrus.FieldLogger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records snapshot compute durations
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithFanOutLimit bounds the concurrent Source reads of one snapshot
func WithFanOutLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.fanOutLimit = n
		}
	}
}

// NewService creates an analytics service. A nil cache manager disables caching.
func NewService(source Source, manager *cache.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		source:      source,
		cache:       manager,
		clock:       clockwork.NewRealClock(),
		log:         logrus.New(),
		tracer:      otel.Tracer(tracerName),
		fanOutLimit: DefaultFanOutLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPlatformMetrics returns the platform-wide dashboard. A nil range covers
// the trailing 30 days.
func (s *Service) GetPlatformMetrics(ctx context.Context, r *DateRange) (*PlatformMetrics, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	key := metricsKey(methodPlatform, platformEntity, r)
	return cache.CachedQuery(ctx, s.cache, cache.NamespacePlatformMetrics, key,
		func(ctx context.Context) (*PlatformMetrics, error) {
			return traced(ctx, s, DashboardPlatform, platformEntity, func(ctx context.Context) (*PlatformMetrics, error) {
				return s.computePlatform(ctx, r)
			})
		}, 0)
}

// GetInstructorMetrics returns the dashboard of one instructor's courses
func (s *Service) GetInstructorMetrics(ctx context.Context, instructorID string, r *DateRange) (*InstructorMetrics, error) {
	if instructorID == "" {
		return nil, fmt.Errorf("%w: instructor id is required", ErrInvalidArgument)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	key := metricsKey(methodInstructor, instructorID, r)
	return cache.CachedQuery(ctx, s.cache, cache.NamespaceInstructorMetrics, key,
		func(ctx context.Context) (*InstructorMetrics, error) {
			return traced(ctx, s, DashboardInstructor, instructorID, func(ctx context.Context) (*InstructorMetrics, error) {
				return s.computeInstructor(ctx, instructorID, r)
			})
		}, 0)
}

// GetStudentMetrics returns the dashboard of one learner
func (s *Service) GetStudentMetrics(ctx context.Context, studentID string) (*StudentMetrics, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidArgument)
	}
	key := metricsKey(methodStudent, studentID, nil)
	return cache.CachedQuery(ctx, s.cache, cache.NamespaceStudentMetrics, key,
		func(ctx context.Context) (*StudentMetrics, error) {
			return traced(ctx, s, DashboardStudent, studentID, func(ctx context.Context) (*StudentMetrics, error) {
				return s.computeStudent(ctx, studentID)
			})
		}, 0)
}

// GetCourseMetrics returns the dashboard of one course
func (s *Service) GetCourseMetrics(ctx context.Context, courseID string, r *DateRange) (*CourseMetrics, error) {
	if courseID == "" {
		return nil, fmt.Errorf("%w: course id is required", ErrInvalidArgument)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	key := metricsKey(methodCourse, courseID, r)
	return cache.CachedQuery(ctx, s.cache, cache.NamespaceCourseMetrics, key,
		func(ctx context.Context) (*CourseMetrics, error) {
			return traced(ctx, s, DashboardCourse, courseID, func(ctx context.Context) (*CourseMetrics, error) {
				return s.computeCourse(ctx, courseID, r)
			})
		}, 0)
}

// Refresh recomputes the default-range snapshot of one dashboard and
// overwrites its cache entry. Readers keep the previous snapshot until the new
// one is stored. entityID is ignored for the platform dashboard.
func (s *Service) Refresh(ctx context.Context, dashboard, entityID string) error {
	if dashboard != DashboardPlatform && entityID == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidArgument, dashboard)
	}

	switch dashboard {
	case DashboardPlatform:
		return refresh(ctx, s, cache.NamespacePlatformMetrics, DashboardPlatform, methodPlatform, platformEntity,
			func(ctx context.Context) (*PlatformMetrics, error) { return s.computePlatform(ctx, nil) })
	case DashboardInstructor:
		return refresh(ctx, s, cache.NamespaceInstructorMetrics, DashboardInstructor, methodInstructor, entityID,
			func(ctx context.Context) (*InstructorMetrics, error) { return s.computeInstructor(ctx, entityID, nil) })
	case DashboardStudent:
		return refresh(ctx, s, cache.NamespaceStudentMetrics, DashboardStudent, methodStudent, entityID,
			func(ctx context.Context) (*StudentMetrics, error) { return s.computeStudent(ctx, entityID) })
	case DashboardCourse:
		return refresh(ctx, s, cache.NamespaceCourseMetrics, DashboardCourse, methodCourse, entityID,
			func(ctx context.Context) (*CourseMetrics, error) { return s.computeCourse(ctx, entityID, nil) })
	default:
		return fmt.Errorf("%w: unknown dashboard %q", ErrInvalidArgument, dashboard)
	}
}

func refresh[T any](ctx context.Context, s *Service, ns cache.Namespace, dashboard, method, entityID string, compute func(context.Context) (T, error)) error {
	value, err := traced(ctx, s, dashboard, entityID, compute)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Set(ctx, ns, metricsKey(method, entityID, nil), value, 0)
	}
	return nil
}

// traced runs one snapshot computation in a span and records its duration
func traced[T any](ctx context.Context, s *Service, dashboard, entityID string, compute func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.compute."+dashboard,
		trace.WithAttributes(
			attribute.String("analytics.dashboard", dashboard),
			attribute.String("analytics.entity_id", entityID),
		))
	defer span.End()

	start := s.clock.Now()
	result, err := compute(ctx)
	elapsed := s.clock.Since(start)
	s.metrics.ObserveSnapshot(dashboard, elapsed, err)

	log := observability.WithContextFields(ctx, s.log).WithFields(logrus.Fields{
		"dashboard":   dashboard,
		"entity_id":   entityID,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("Failed to compute analytics snapshot")
		return result, err
	}
	log.Debug("Computed analytics snapshot")
	return result, nil
}

func (s *Service) newGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOutLimit)
	return g, gctx
}

func (s *Service) computePlatform(ctx context.Context, r *DateRange) (*PlatformMetrics, error) {
	now := s.clock.Now().UTC()
	rng := r.resolve(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var (
		m        PlatformMetrics
		signups  []UserRow
		progress []ProgressRow
		payments []PaymentRow
		popular  []CourseRow
	)

	g, gctx := s.newGroup(ctx)
	g.Go(func() (err error) {
		m.TotalUsers, err = s.source.CountUsers(gctx, UserFilter{})
		return err
	})
	g.Go(func() (err error) {
		m.NewUsersThisMonth, err = s.source.CountUsers(gctx, UserFilter{CreatedFrom: monthStart})
		return err
	})
	g.Go(func() (err error) {
		m.ActiveUsers, err = s.source.CountActiveUsers(gctx, now.AddDate(0, 0, -ActiveUsersWindowDays))
		return err
	})
	g.Go(func() (err error) {
		m.TotalCourses, err = s.source.CountCourses(gctx, CourseFilter{})
		return err
	})
	g.Go(func() (err error) {
		m.TotalEnrollments, err = s.source.CountEnrollments(gctx, EnrollmentFilter{})
		return err
	})
	g.Go(func() (err error) {
		m.EnrollmentsInRange, err = s.source.CountEnrollments(gctx, EnrollmentFilter{From: rng.From, To: rng.To})
		return err
	})
	g.Go(func() (err error) {
		m.CompletedCourses, err = s.source.CountEnrollments(gctx, EnrollmentFilter{CompletedOnly: true})
		return err
	})
	g.Go(func() (err error) {
		m.TotalRevenue, err = s.source.SumRevenue(gctx, PaymentFilter{From: rng.From, To: rng.To})
		return err
	})
	g.Go(func() (err error) {
		popular, err = s.source.ListCourses(gctx, CourseFilter{OrderByEnrollments: true, Limit: TopCoursesLimit})
		return err
	})
	g.Go(func() (err error) {
		signups, err = s.source.ListUsers(gctx, UserFilter{CreatedFrom: rng.From, CreatedTo: rng.To})
		return err
	})
	g.Go(func() (err error) {
		progress, err = s.source.ListProgress(gctx, ProgressFilter{})
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.source.ListPayments(gctx, PaymentFilter{From: rng.From, To: rng.To})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	signupTimes := make([]time.Time, len(signups))
	for i, u := range signups {
		signupTimes[i] = u.CreatedAt
	}

	m.AverageCompletionRate = AverageCompletionRate(CourseCompletion(progress))
	m.UserGrowth = GrowthSeries(signupTimes, Day)
	m.RevenueByMonth = RevenueSeries(payments)
	m.PopularCourses = TopCourses(popular, TopCoursesLimit)
	m.Range = rng
	m.GeneratedAt = now
	return &m, nil
}

func (s *Service) computeInstructor(ctx context.Context, instructorID string, r *DateRange) (*InstructorMetrics, error) {
	now := s.clock.Now().UTC()
	rng := r.resolve(now)

	var (
		courses     []CourseRow
		enrollments []EnrollmentRow
		payments    []PaymentRow
		reviews     []ReviewRow
		progress    []ProgressRow
	)

	g, gctx := s.newGroup(ctx)
	g.Go(func() (err error) {
		courses, err = s.source.ListCourses(gctx, CourseFilter{InstructorID: instructorID})
		return err
	})
	g.Go(func() (err error) {
		enrollments, err = s.source.ListEnrollments(gctx, EnrollmentFilter{InstructorID: instructorID})
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.source.ListPayments(gctx, PaymentFilter{InstructorID: instructorID, From: rng.From, To: rng.To})
		return err
	})
	g.Go(func() (err error) {
		reviews, err = s.source.ListReviews(gctx, ReviewFilter{InstructorID: instructorID})
		return err
	})
	g.Go(func() (err error) {
		progress, err = s.source.ListProgress(gctx, ProgressFilter{InstructorID: instructorID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	students := DistinctStudents(enrollments)

	return &InstructorMetrics{
		InstructorID:     instructorID,
		TotalCourses:     int64(len(courses)),
		TotalStudents:    int64(students),
		TotalEnrollments: int64(len(enrollments)),
		TotalRevenue:     TotalRevenue(payments),
		AverageRating:    AverageRating(reviews),
		CompletionRate:   AverageCompletionRate(CourseCompletion(progress)),
		EngagementRate:   EngagementRate(students, progress, now, EngagementWindowDays),
		EnrollmentGrowth: GrowthSeries(enrolledWithin(enrollments, rng), Day),
		RevenueByMonth:   RevenueSeries(payments),
		TopCourses:       TopCourses(courses, TopCoursesLimit),
		Range:            rng,
		GeneratedAt:      now,
	}, nil
}

func (s *Service) computeStudent(ctx context.Context, studentID string) (*StudentMetrics, error) {
	now := s.clock.Now().UTC()

	var (
		user         *UserRow
		enrollments  []EnrollmentRow
		progress     []ProgressRow
		attempts     []QuizAttemptRow
		certificates []CertificateRow
		achievements []AchievementRow
		catalog      []CourseRow
	)

	g, gctx := s.newGroup(ctx)
	g.Go(func() (err error) {
		user, err = s.user(gctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		enrollments, err = s.source.ListEnrollments(gctx, EnrollmentFilter{UserID: studentID})
		return err
	})
	g.Go(func() (err error) {
		progress, err = s.source.ListProgress(gctx, ProgressFilter{UserID: studentID})
		return err
	})
	g.Go(func() (err error) {
		attempts, err = s.source.ListQuizAttempts(gctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		certificates, err = s.certificates(gctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		achievements, err = s.source.ListAchievements(gctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		catalog, err = s.source.ListCourses(gctx, CourseFilter{Published: BoolPtr(true), OrderByEnrollments: true})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", studentID, ErrNotFound)
	}

	var completedCourses, completedLessons int64
	for _, e := range enrollments {
		if e.Completed {
			completedCourses++
		}
	}

	activity := make([]time.Time, 0, len(progress))
	var lessonCompletions []time.Time
	for _, p := range progress {
		activity = append(activity, p.LastAccessedAt)
		if p.Completed {
			completedLessons++
			lessonCompletions = append(lessonCompletions, p.CompletedAt)
		}
	}

	return &StudentMetrics{
		StudentID:             studentID,
		Name:                  user.Name,
		EnrolledCourses:       int64(len(enrollments)),
		CompletedCourses:      completedCourses,
		InProgressCourses:     int64(len(enrollments)) - completedCourses,
		CompletedLessons:      completedLessons,
		AverageQuizScore:      AverageQuizScore(attempts),
		QuizAttempts:          int64(len(attempts)),
		CurrentStreak:         CurrentStreak(activity, now),
		TotalWatchTimeSeconds: TotalWatchTime(progress),
		Certificates:          int64(len(certificates)),
		Achievements:          int64(len(achievements)),
		WeeklyProgress:        GrowthSeries(lessonCompletions, Week),
		Recommendations:       Recommend(catalog, enrollments, TopCoursesLimit),
		GeneratedAt:           now,
	}, nil
}

func (s *Service) computeCourse(ctx context.Context, courseID string, r *DateRange) (*CourseMetrics, error) {
	now := s.clock.Now().UTC()
	rng := r.resolve(now)

	var (
		course      *CourseRow
		lessons     []LessonRow
		enrollments []EnrollmentRow
		progress    []ProgressRow
		reviews     []ReviewRow
		revenue     float64
	)

	g, gctx := s.newGroup(ctx)
	g.Go(func() (err error) {
		course, err = s.course(gctx, courseID)
		return err
	})
	g.Go(func() (err error) {
		lessons, err = s.lessons(gctx, courseID)
		return err
	})
	g.Go(func() (err error) {
		enrollments, err = s.source.ListEnrollments(gctx, EnrollmentFilter{CourseID: courseID})
		return err
	})
	g.Go(func() (err error) {
		progress, err = s.source.ListProgress(gctx, ProgressFilter{CourseID: courseID})
		return err
	})
	g.Go(func() (err error) {
		reviews, err = s.source.ListReviews(gctx, ReviewFilter{CourseID: courseID})
		return err
	})
	g.Go(func() (err error) {
		revenue, err = s.source.SumRevenue(gctx, PaymentFilter{CourseID: courseID, From: rng.From, To: rng.To})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if course == nil {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}

	inRange := enrolledWithin(enrollments, rng)

	return &CourseMetrics{
		CourseID:                courseID,
		Title:                   course.Title,
		TotalEnrollments:        int64(len(enrollments)),
		EnrollmentsInRange:      int64(len(inRange)),
		CompletionRate:          AverageCompletionRate(CourseCompletion(progress)),
		AverageRating:           AverageRating(reviews),
		ReviewCount:             int64(len(reviews)),
		Revenue:                 revenue,
		AverageWatchTimeSeconds: AverageWatchTime(progress),
		ConversionRate:          ConversionRate(int64(len(enrollments)), course.ViewCount),
		DropOffPoints:           DropOffPoints(lessons, progress, DropOffLimit),
		LessonEngagement:        LessonEngagementStats(lessons, progress),
		EnrollmentGrowth:        GrowthSeries(inRange, Day),
		Range:                   rng,
		GeneratedAt:             now,
	}, nil
}

// enrolledWithin returns the enrollment times inside the range
func enrolledWithin(enrollments []EnrollmentRow, rng DateRange) []time.Time {
	var times []time.Time
	for _, e := range enrollments {
		if e.EnrolledAt.IsZero() || e.EnrolledAt.Before(rng.From) || !e.EnrolledAt.Before(rng.To) {
			continue
		}
		times = append(times, e.EnrolledAt)
	}
	return times
}

// Entity lookups are memoized in the entity namespaces so that write-path
// invalidation has entries to remove.

func (s *Service) course(ctx context.Context, courseID string) (*CourseRow, error) {
	return cache.CachedQuery(ctx, s.cache, cache.NamespaceCourses, courseID, func(ctx context.Context) (*CourseRow, error) {
		return s.source.GetCourse(ctx, courseID)
	}, 0)
}

func (s *Service) user(ctx context.Context, userID string) (*UserRow, error) {
	return cache.CachedQuery(ctx, s.cache, cache.NamespaceUsers, userID, func(ctx context.Context) (*UserRow, error) {
		return s.source.GetUser(ctx, userID)
	}, 0)
}

func (s *Service) lessons(ctx context.Context, courseID string) ([]LessonRow, error) {
	return cache.CachedQuery(ctx, s.cache, cache.NamespaceLessons, LessonsKey(courseID), func(ctx context.Context) ([]LessonRow, error) {
		rows, err := s.source.ListLessons(ctx, courseID)
		if err != nil {
			return nil, err
		}
		// Index entries go in before the list so a lesson write never misses it
		if s.cache != nil {
			for _, l := range rows {
				s.cache.Set(ctx, cache.NamespaceLessons, cache.LessonIndexKey(courseID, l.ID), courseID, 0)
			}
		}
		return rows, nil
	}, 0)
}

func (s *Service) certificates(ctx context.Context, userID string) ([]CertificateRow, error) {
	return cache.CachedQuery(ctx, s.cache, cache.NamespaceCertificates, CertificatesKey(userID), func(ctx context.Context) ([]CertificateRow, error) {
		return s.source.ListCertificates(ctx, userID)
	}, 0)
}
