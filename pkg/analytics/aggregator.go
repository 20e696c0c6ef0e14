package analytics

import (
	"math"
	"sort"
	"time"
)

// Aggregation functions are pure and synchronous. They assume rows were
// validated by the Source; a malformed row is excluded from the affected
// calculation instead of failing it, and empty denominators never produce
// NaN or Inf.

// DropOffLimit is the number of lessons reported as drop-off points
const DropOffLimit = 5

// TopCoursesLimit is the number of courses in popularity rankings
const TopCoursesLimit = 5

// Activity windows in days
const (
	EngagementWindowDays  = 7
	ActiveUsersWindowDays = 30
)

// CourseProgress is the completion of one course over its progress rows
type CourseProgress struct {
	CourseID  string  `json:"course_id"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// CourseCompletion groups progress rows by course and computes each course's
// completion percentage. Courses are returned in first-encountered order.
func CourseCompletion(progress []ProgressRow) []CourseProgress {
	pos := make(map[string]int)
	var out []CourseProgress
	for _, p := range progress {
		if p.CourseID == "" {
			continue
		}
		i, ok := pos[p.CourseID]
		if !ok {
			i = len(out)
			pos[p.CourseID] = i
			out = append(out, CourseProgress{CourseID: p.CourseID})
		}
		out[i].Total++
		if p.Completed {
			out[i].Completed++
		}
	}
	for i := range out {
		out[i].Rate = percent(int64(out[i].Completed), int64(out[i].Total))
	}
	return out
}

// AverageCompletionRate averages the completion rate of courses that have at
// least one progress row. Courses with no rows are excluded rather than
// counted as 0%.
func AverageCompletionRate(courses []CourseProgress) float64 {
	var sum float64
	var n int
	for _, c := range courses {
		if c.Total <= 0 {
			continue
		}
		sum += float64(c.Completed) / float64(c.Total) * 100
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// DropOffPoint is the funnel of one lesson
type DropOffPoint struct {
	LessonID       string  `json:"lesson_id"`
	Title          string  `json:"title"`
	Position       int     `json:"position"`
	Started        int     `json:"started"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
	DropOffRate    float64 `json:"drop_off_rate"`
}

// LessonStats builds one funnel per lesson: started is the number of progress
// rows for the lesson and completed the rows flagged completed. Progress rows
// for lessons not in the list are ignored. Lessons with no starts have zero
// rates.
func LessonStats(lessons []LessonRow, progress []ProgressRow) []DropOffPoint {
	pos := make(map[string]int, len(lessons))
	stats := make([]DropOffPoint, len(lessons))
	for i, l := range lessons {
		pos[l.ID] = i
		stats[i] = DropOffPoint{LessonID: l.ID, Title: l.Title, Position: l.Position}
	}

	for _, p := range progress {
		i, ok := pos[p.LessonID]
		if !ok {
			continue
		}
		stats[i].Started++
		if p.Completed {
			stats[i].Completed++
		}
	}

	for i := range stats {
		if stats[i].Started == 0 {
			continue
		}
		stats[i].CompletionRate = percent(int64(stats[i].Completed), int64(stats[i].Started))
		stats[i].DropOffRate = 100 - stats[i].CompletionRate
	}
	return stats
}

// RankDropOff returns up to limit lessons with the highest drop-off rate,
// earlier lessons first on ties. Lessons nobody started are excluded.
func RankDropOff(stats []DropOffPoint, limit int) []DropOffPoint {
	ranked := make([]DropOffPoint, 0, len(stats))
	for _, s := range stats {
		if s.Started > 0 {
			ranked = append(ranked, s)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].DropOffRate != ranked[j].DropOffRate {
			return ranked[i].DropOffRate > ranked[j].DropOffRate
		}
		return ranked[i].Position < ranked[j].Position
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// DropOffPoints returns the lessons most responsible for learner attrition
func DropOffPoints(lessons []LessonRow, progress []ProgressRow, limit int) []DropOffPoint {
	return RankDropOff(LessonStats(lessons, progress), limit)
}

// LessonEngagement summarizes activity on one lesson
type LessonEngagement struct {
	LessonID                string  `json:"lesson_id"`
	Title                   string  `json:"title"`
	Position                int     `json:"position"`
	Views                   int     `json:"views"`
	Completions             int     `json:"completions"`
	AverageWatchTimeSeconds float64 `json:"average_watch_time_seconds"`
}

// LessonEngagementStats returns activity per lesson in lesson order,
// including lessons with no activity
func LessonEngagementStats(lessons []LessonRow, progress []ProgressRow) []LessonEngagement {
	pos := make(map[string]int, len(lessons))
	out := make([]LessonEngagement, len(lessons))
	watch := make([]int64, len(lessons))
	for i, l := range lessons {
		pos[l.ID] = i
		out[i] = LessonEngagement{LessonID: l.ID, Title: l.Title, Position: l.Position}
	}

	for _, p := range progress {
		i, ok := pos[p.LessonID]
		if !ok {
			continue
		}
		out[i].Views++
		if p.Completed {
			out[i].Completions++
		}
		if p.WatchTimeSeconds > 0 {
			watch[i] += p.WatchTimeSeconds
		}
	}

	for i := range out {
		if out[i].Views > 0 {
			out[i].AverageWatchTimeSeconds = float64(watch[i]) / float64(out[i].Views)
		}
	}
	return out
}

// ActiveUsers counts distinct users with progress in the trailing window of
// days ending at now
func ActiveUsers(progress []ProgressRow, now time.Time, days int) int {
	since := now.AddDate(0, 0, -days)
	active := make(map[string]struct{})
	for _, p := range progress {
		if p.UserID == "" || p.LastAccessedAt.IsZero() {
			continue
		}
		if !p.LastAccessedAt.Before(since) && !p.LastAccessedAt.After(now) {
			active[p.UserID] = struct{}{}
		}
	}
	return len(active)
}

// EngagementRate is the share of enrolled students active in the trailing
// window, as a percentage. It is 0 when nobody is enrolled.
func EngagementRate(enrolledStudents int, progress []ProgressRow, now time.Time, days int) float64 {
	if enrolledStudents <= 0 {
		return 0
	}
	rate := percent(int64(ActiveUsers(progress, now, days)), int64(enrolledStudents))
	return math.Min(rate, 100)
}

// DistinctStudents counts distinct users across enrollments
func DistinctStudents(enrollments []EnrollmentRow) int {
	seen := make(map[string]struct{}, len(enrollments))
	for _, e := range enrollments {
		if e.UserID != "" {
			seen[e.UserID] = struct{}{}
		}
	}
	return len(seen)
}

// AverageQuizScore is the mean score of the attempts, skipping NaN scores
func AverageQuizScore(attempts []QuizAttemptRow) float64 {
	var sum float64
	var n int
	for _, a := range attempts {
		if math.IsNaN(a.Score) || math.IsInf(a.Score, 0) {
			continue
		}
		sum += a.Score
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CurrentStreak counts consecutive UTC days with activity ending today, or
// ending yesterday when there is no activity yet today.
func CurrentStreak(activity []time.Time, now time.Time) int {
	days := make(map[string]struct{}, len(activity))
	for _, t := range activity {
		if !t.IsZero() {
			days[BucketKey(t, Day)] = struct{}{}
		}
	}

	day := now.UTC()
	if _, ok := days[BucketKey(day, Day)]; !ok {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for {
		if _, ok := days[BucketKey(day, Day)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

// TotalWatchTime sums watch time over progress rows, in seconds
func TotalWatchTime(progress []ProgressRow) int64 {
	var total int64
	for _, p := range progress {
		if p.WatchTimeSeconds > 0 {
			total += p.WatchTimeSeconds
		}
	}
	return total
}

// AverageWatchTime is the mean watch time per progress row, in seconds
func AverageWatchTime(progress []ProgressRow) float64 {
	if len(progress) == 0 {
		return 0
	}
	return float64(TotalWatchTime(progress)) / float64(len(progress))
}

// AverageRating is the mean rating of the reviews. Ratings outside 1..5 are skipped.
func AverageRating(reviews []ReviewRow) float64 {
	var sum, n int
	for _, r := range reviews {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		sum += r.Rating
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// TotalRevenue sums payment amounts, skipping NaN amounts
func TotalRevenue(payments []PaymentRow) float64 {
	var total float64
	for _, p := range payments {
		if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
			continue
		}
		total += p.Amount
	}
	return total
}

// ConversionRate is enrollments per course view, as a percentage. It is 0
// for a course that was never viewed.
func ConversionRate(enrollments, views int64) float64 {
	return percent(enrollments, views)
}

// CourseSummary is a course in a ranking or recommendation list
type CourseSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category,omitempty"`
	Level       string `json:"level,omitempty"`
	Enrollments int64  `json:"enrollments"`
}

func summarize(c CourseRow) CourseSummary {
	return CourseSummary{
		ID:          c.ID,
		Title:       c.Title,
		Category:    c.Category,
		Level:       c.Level,
		Enrollments: c.EnrollmentCount,
	}
}

// TopCourses ranks courses by enrollment count, keeping input order on ties
func TopCourses(courses []CourseRow, limit int) []CourseSummary {
	sorted := make([]CourseRow, len(courses))
	copy(sorted, courses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EnrollmentCount > sorted[j].EnrollmentCount
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]CourseSummary, len(sorted))
	for i, c := range sorted {
		out[i] = summarize(c)
	}
	return out
}

// Recommend suggests catalog courses the student is not enrolled in. A student
// who completed any course gets courses from categories they have not
// completed yet, even when the completed course has since left the catalog; a
// student with no completed course gets beginner-level courses. Catalog order
// is preserved.
func Recommend(catalog []CourseRow, enrollments []EnrollmentRow, limit int) []CourseSummary {
	category := make(map[string]string, len(catalog))
	for _, c := range catalog {
		category[c.ID] = c.Category
	}

	enrolled := make(map[string]struct{}, len(enrollments))
	completedCategories := make(map[string]struct{})
	completedAny := false
	for _, e := range enrollments {
		enrolled[e.CourseID] = struct{}{}
		if e.Completed {
			completedAny = true
			if cat, ok := category[e.CourseID]; ok {
				completedCategories[cat] = struct{}{}
			}
		}
	}

	var out []CourseSummary
	for _, c := range catalog {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, ok := enrolled[c.ID]; ok {
			continue
		}
		if !completedAny {
			if c.Level != LevelBeginner {
				continue
			}
		} else if _, done := completedCategories[c.Category]; done {
			continue
		}
		out = append(out, summarize(c))
	}
	return out
}

// percent returns part/whole*100, or 0 for an empty whole
func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
