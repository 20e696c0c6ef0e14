package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeSource is an in-memory Source that honors every filter field and
// counts calls per method
type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error

	users        []UserRow
	courses      []CourseRow
	lessons      []LessonRow
	enrollments  []EnrollmentRow
	progress     []ProgressRow
	payments     []PaymentRow
	reviews      []ReviewRow
	quizzes      []QuizAttemptRow
	certificates []CertificateRow
	achievements []AchievementRow
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (f *fakeSource) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeSource) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeSource) failWith(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, name)
		return
	}
	f.fail[name] = err
}

func inWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func (f *fakeSource) instructorOf(courseID string) string {
	for _, c := range f.courses {
		if c.ID == courseID {
			return c.InstructorID
		}
	}
	return ""
}

func (f *fakeSource) CountUsers(ctx context.Context, filter UserFilter) (int64, error) {
	users, err := f.ListUsers(ctx, filter)
	return int64(len(users)), err
}

func (f *fakeSource) CountActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	if err := f.call("CountActiveUsers"); err != nil {
		return 0, err
	}
	active := make(map[string]struct{})
	for _, p := range f.progress {
		if !p.LastAccessedAt.Before(since) {
			active[p.UserID] = struct{}{}
		}
	}
	return int64(len(active)), nil
}

func (f *fakeSource) CountCourses(ctx context.Context, filter CourseFilter) (int64, error) {
	courses, err := f.ListCourses(ctx, CourseFilter{InstructorID: filter.InstructorID, Published: filter.Published})
	return int64(len(courses)), err
}

func (f *fakeSource) CountEnrollments(ctx context.Context, filter EnrollmentFilter) (int64, error) {
	enrollments, err := f.ListEnrollments(ctx, filter)
	return int64(len(enrollments)), err
}

func (f *fakeSource) SumRevenue(ctx context.Context, filter PaymentFilter) (float64, error) {
	payments, err := f.ListPayments(ctx, filter)
	return TotalRevenue(payments), err
}

func (f *fakeSource) GetCourse(ctx context.Context, courseID string) (*CourseRow, error) {
	if err := f.call("GetCourse"); err != nil {
		return nil, err
	}
	for _, c := range f.courses {
		if c.ID == courseID {
			c := c
			return &c, nil
		}
	}
	return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
}

func (f *fakeSource) GetUser(ctx context.Context, userID string) (*UserRow, error) {
	if err := f.call("GetUser"); err != nil {
		return nil, err
	}
	for _, u := range f.users {
		if u.ID == userID {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
}

func (f *fakeSource) ListUsers(ctx context.Context, filter UserFilter) ([]UserRow, error) {
	if err := f.call("ListUsers"); err != nil {
		return nil, err
	}
	var out []UserRow
	for _, u := range f.users {
		if inWindow(u.CreatedAt, filter.CreatedFrom, filter.CreatedTo) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeSource) ListCourses(ctx context.Context, filter CourseFilter) ([]CourseRow, error) {
	if err := f.call("ListCourses"); err != nil {
		return nil, err
	}
	var out []CourseRow
	for _, c := range f.courses {
		if filter.InstructorID != "" && c.InstructorID != filter.InstructorID {
			continue
		}
		if filter.Published != nil && c.Published != *filter.Published {
			continue
		}
		c.EnrollmentCount = 0
		for _, e := range f.enrollments {
			if e.CourseID == c.ID {
				c.EnrollmentCount++
			}
		}
		out = append(out, c)
	}
	if filter.OrderByEnrollments {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].EnrollmentCount > out[j].EnrollmentCount
		})
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeSource) ListLessons(ctx context.Context, courseID string) ([]LessonRow, error) {
	if err := f.call("ListLessons"); err != nil {
		return nil, err
	}
	var out []LessonRow
	for _, l := range f.lessons {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeSource) ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]EnrollmentRow, error) {
	if err := f.call("ListEnrollments"); err != nil {
		return nil, err
	}
	var out []EnrollmentRow
	for _, e := range f.enrollments {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.InstructorID != "" && f.instructorOf(e.CourseID) != filter.InstructorID {
			continue
		}
		if filter.CompletedOnly && !e.Completed {
			continue
		}
		if !inWindow(e.EnrolledAt, filter.From, filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeSource) ListProgress(ctx context.Context, filter ProgressFilter) ([]ProgressRow, error) {
	if err := f.call("ListProgress"); err != nil {
		return nil, err
	}
	var out []ProgressRow
	for _, p := range f.progress {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.CourseID != "" && p.CourseID != filter.CourseID {
			continue
		}
		if filter.InstructorID != "" && f.instructorOf(p.CourseID) != filter.InstructorID {
			continue
		}
		if filter.CompletedOnly && !p.Completed {
			continue
		}
		if !filter.Since.IsZero() && p.LastAccessedAt.Before(filter.Since) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeSource) ListPayments(ctx context.Context, filter PaymentFilter) ([]PaymentRow, error) {
	if err := f.call("ListPayments"); err != nil {
		return nil, err
	}
	var out []PaymentRow
	for _, p := range f.payments {
		if p.Status != filter.EffectiveStatus() {
			continue
		}
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.CourseID != "" && p.CourseID != filter.CourseID {
			continue
		}
		if filter.InstructorID != "" && f.instructorOf(p.CourseID) != filter.InstructorID {
			continue
		}
		if !inWindow(p.CreatedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeSource) ListReviews(ctx context.Context, filter ReviewFilter) ([]ReviewRow, error) {
	if err := f.call("ListReviews"); err != nil {
		return nil, err
	}
	var out []ReviewRow
	for _, r := range f.reviews {
		if filter.CourseID != "" && r.CourseID != filter.CourseID {
			continue
		}
		if filter.InstructorID != "" && f.instructorOf(r.CourseID) != filter.InstructorID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) ListQuizAttempts(ctx context.Context, userID string) ([]QuizAttemptRow, error) {
	if err := f.call("ListQuizAttempts"); err != nil {
		return nil, err
	}
	var out []QuizAttemptRow
	for _, q := range f.quizzes {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeSource) ListCertificates(ctx context.Context, userID string) ([]CertificateRow, error) {
	if err := f.call("ListCertificates"); err != nil {
		return nil, err
	}
	var out []CertificateRow
	for _, c := range f.certificates {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) ListAchievements(ctx context.Context, userID string) ([]AchievementRow, error) {
	if err := f.call("ListAchievements"); err != nil {
		return nil, err
	}
	var out []AchievementRow
	for _, a := range f.achievements {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}
