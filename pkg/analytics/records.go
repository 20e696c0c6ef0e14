package analytics

import "time"

// Raw record shapes returned by a Source. Timestamps are stored in UTC; a zero
// time.Time marks a missing value and excludes the row from time bucketing.

// UserRow is a platform account
type UserRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CourseRow is a course with its denormalized enrollment count
type CourseRow struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	InstructorID    string    `json:"instructor_id"`
	Category        string    `json:"category"`
	Level           string    `json:"level"`
	Price           float64   `json:"price"`
	Published       bool      `json:"published"`
	ViewCount       int64     `json:"view_count"`
	EnrollmentCount int64     `json:"enrollment_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// LevelBeginner is the course level recommended to students with no completed course
const LevelBeginner = "BEGINNER"

// LessonRow is one lesson of a course
type LessonRow struct {
	ID              string `json:"id"`
	CourseID        string `json:"course_id"`
	Title           string `json:"title"`
	Position        int    `json:"position"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// EnrollmentRow links a student to a course
type EnrollmentRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at"`
}

// ProgressRow is a student's progress on one lesson
type ProgressRow struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	CourseID         string    `json:"course_id"`
	LessonID         string    `json:"lesson_id"`
	Completed        bool      `json:"completed"`
	WatchTimeSeconds int64     `json:"watch_time_seconds"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Payment statuses
const (
	PaymentCompleted = "COMPLETED"
	PaymentPending   = "PENDING"
	PaymentRefunded  = "REFUNDED"
)

// PaymentRow is a course purchase
type PaymentRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewRow is a course rating from 1 to 5
type ReviewRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// QuizAttemptRow is a scored quiz attempt. Score is a percentage.
type QuizAttemptRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	QuizID      string    `json:"quiz_id"`
	Score       float64   `json:"score"`
	Passed      bool      `json:"passed"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// CertificateRow is a certificate issued on course completion
type CertificateRow struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	CourseID string    `json:"course_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// AchievementRow is a badge earned by a student
type AchievementRow struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Title    string    `json:"title"`
	EarnedAt time.Time `json:"earned_at"`
}
