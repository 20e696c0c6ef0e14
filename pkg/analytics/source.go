package analytics

import (
	"context"
	"time"
)

// Source is the read-only relational data source the analytics are computed
// from. Zero-valued filter fields do not constrain the query; zero times are
// unbounded.
//
// GetCourse and GetUser return an error wrapping ErrNotFound when the entity
// does not exist.
type Source interface {
	CountUsers(ctx context.Context, filter UserFilter) (int64, error)
	// CountActiveUsers counts distinct users with lesson progress since the given time
	CountActiveUsers(ctx context.Context, since time.Time) (int64, error)
	CountCourses(ctx context.Context, filter CourseFilter) (int64, error)
	CountEnrollments(ctx context.Context, filter EnrollmentFilter) (int64, error)
	SumRevenue(ctx context.Context, filter PaymentFilter) (float64, error)

	GetCourse(ctx context.Context, courseID string) (*CourseRow, error)
	GetUser(ctx context.Context, userID string) (*UserRow, error)

	ListUsers(ctx context.Context, filter UserFilter) ([]UserRow, error)
	// ListCourses returns courses with EnrollmentCount populated
	ListCourses(ctx context.Context, filter CourseFilter) ([]CourseRow, error)
	// ListLessons returns the lessons of a course ordered by position
	ListLessons(ctx context.Context, courseID string) ([]LessonRow, error)
	ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]EnrollmentRow, error)
	ListProgress(ctx context.Context, filter ProgressFilter) ([]ProgressRow, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]PaymentRow, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]ReviewRow, error)
	ListQuizAttempts(ctx context.Context, userID string) ([]QuizAttemptRow, error)
	ListCertificates(ctx context.Context, userID string) ([]CertificateRow, error)
	ListAchievements(ctx context.Context, userID string) ([]AchievementRow, error)
}

// UserFilter selects users by creation time, From inclusive and To exclusive
type UserFilter struct {
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// CourseFilter selects courses
type CourseFilter struct {
	InstructorID       string
	Published          *bool
	OrderByEnrollments bool // most enrolled first
	Limit              int  // 0 means no limit
}

// EnrollmentFilter selects enrollments by EnrolledAt, From inclusive and To exclusive
type EnrollmentFilter struct {
	UserID        string
	CourseID      string
	InstructorID  string
	From          time.Time
	To            time.Time
	CompletedOnly bool
}

// ProgressFilter selects lesson progress rows
type ProgressFilter struct {
	UserID        string
	CourseID      string
	InstructorID  string
	CompletedOnly bool
	Since         time.Time // on LastAccessedAt
}

// PaymentFilter selects payments by CreatedAt, From inclusive and To exclusive.
// An empty Status selects completed payments.
type PaymentFilter struct {
	UserID       string
	CourseID     string
	InstructorID string
	From         time.Time
	To           time.Time
	Status       string
}

// EffectiveStatus returns the status the filter selects
func (f PaymentFilter) EffectiveStatus() string {
	if f.Status == "" {
		return PaymentCompleted
	}
	return f.Status
}

// ReviewFilter selects reviews of one course or of every course of an instructor
type ReviewFilter struct {
	CourseID     string
	InstructorID string
}

// BoolPtr returns a pointer to b, for optional filter fields
func BoolPtr(b bool) *bool {
	return &b
}
