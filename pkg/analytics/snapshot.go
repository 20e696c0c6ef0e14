package analytics

import "time"

// Snapshots are built fresh on every cache miss and shared between callers
// once cached. They must not be modified after they are returned.

// PlatformMetrics is the platform-wide dashboard
type PlatformMetrics struct {
	TotalUsers            int64           `json:"total_users"`
	NewUsersThisMonth     int64           `json:"new_users_this_month"`
	ActiveUsers           int64           `json:"active_users"`
	TotalCourses          int64           `json:"total_courses"`
	TotalEnrollments      int64           `json:"total_enrollments"`
	EnrollmentsInRange    int64           `json:"enrollments_in_range"`
	CompletedCourses      int64           `json:"completed_courses"`
	TotalRevenue          float64         `json:"total_revenue"`
	AverageCompletionRate float64         `json:"average_completion_rate"`
	UserGrowth            []GrowthPoint   `json:"user_growth"`
	RevenueByMonth        []SeriesPoint   `json:"revenue_by_month"`
	PopularCourses        []CourseSummary `json:"popular_courses"`
	Range                 DateRange       `json:"range"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// InstructorMetrics is the dashboard of one instructor's courses
type InstructorMetrics struct {
	InstructorID     string          `json:"instructor_id"`
	TotalCourses     int64           `json:"total_courses"`
	TotalStudents    int64           `json:"total_students"`
	TotalEnrollments int64           `json:"total_enrollments"`
	TotalRevenue     float64         `json:"total_revenue"`
	AverageRating    float64         `json:"average_rating"`
	CompletionRate   float64         `json:"completion_rate"`
	EngagementRate   float64         `json:"engagement_rate"`
	EnrollmentGrowth []GrowthPoint   `json:"enrollment_growth"`
	RevenueByMonth   []SeriesPoint   `json:"revenue_by_month"`
	TopCourses       []CourseSummary `json:"top_courses"`
	Range            DateRange       `json:"range"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// StudentMetrics is the dashboard of one learner
type StudentMetrics struct {
	StudentID             string          `json:"student_id"`
	Name                  string          `json:"name"`
	EnrolledCourses       int64           `json:"enrolled_courses"`
	CompletedCourses      int64           `json:"completed_courses"`
	InProgressCourses     int64           `json:"in_progress_courses"`
	CompletedLessons      int64           `json:"completed_lessons"`
	AverageQuizScore      float64         `json:"average_quiz_score"`
	QuizAttempts          int64           `json:"quiz_attempts"`
	CurrentStreak         int             `json:"current_streak"`
	TotalWatchTimeSeconds int64           `json:"total_watch_time_seconds"`
	Certificates          int64           `json:"certificates"`
	Achievements          int64           `json:"achievements"`
	WeeklyProgress        []GrowthPoint   `json:"weekly_progress"`
	Recommendations       []CourseSummary `json:"recommendations"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// CourseMetrics is the dashboard of one course
type CourseMetrics struct {
	CourseID                string             `json:"course_id"`
	Title                   string             `json:"title"`
	TotalEnrollments        int64              `json:"total_enrollments"`
	EnrollmentsInRange      int64              `json:"enrollments_in_range"`
	CompletionRate          float64            `json:"completion_rate"`
	AverageRating           float64            `json:"average_rating"`
	ReviewCount             int64              `json:"review_count"`
	Revenue                 float64            `json:"revenue"`
	AverageWatchTimeSeconds float64            `json:"average_watch_time_seconds"`
	ConversionRate          float64            `json:"conversion_rate"`
	DropOffPoints           []DropOffPoint     `json:"drop_off_points"`
	LessonEngagement        []LessonEngagement `json:"lesson_engagement"`
	EnrollmentGrowth        []GrowthPoint      `json:"enrollment_growth"`
	Range                   DateRange          `json:"range"`
	GeneratedAt             time.Time          `json:"generated_at"`
}
