package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/coursemetrics/pkg/cache"
)

// DefaultRangeDays is the trailing window used when no date range is given
const DefaultRangeDays = 30

// DateRange bounds a query, From inclusive and To exclusive
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate checks that the range does not end before it starts
func (r *DateRange) Validate() error {
	if r == nil {
		return nil
	}
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: both from and to are required", ErrInvalidRange)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: to %s is before from %s", ErrInvalidRange,
			r.To.Format(time.RFC3339), r.From.Format(time.RFC3339))
	}
	return nil
}

// resolve returns the explicit range, or the trailing DefaultRangeDays ending at now
func (r *DateRange) resolve(now time.Time) DateRange {
	if r != nil {
		return DateRange{From: r.From.UTC(), To: r.To.UTC()}
	}
	now = now.UTC()
	return DateRange{From: now.AddDate(0, 0, -DefaultRangeDays), To: now}
}

// cacheKey serializes the range for cache keys. A nil range is "default" so
// its key does not move with the clock.
func (r *DateRange) cacheKey() string {
	if r == nil {
		return "default"
	}
	return r.From.UTC().Format(time.RFC3339) + "|" + r.To.UTC().Format(time.RFC3339)
}

// ParseDateRange parses optional from/to query values as RFC 3339 timestamps
// or 2006-01-02 dates. Both empty yields a nil range; a date-only "to" covers
// the whole day.
func ParseDateRange(from, to string) (*DateRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: both from and to are required", ErrInvalidRange)
	}

	fromTime, _, err := parseBound(from)
	if err != nil {
		return nil, err
	}
	toTime, dateOnly, err := parseBound(to)
	if err != nil {
		return nil, err
	}
	if dateOnly {
		toTime = toTime.AddDate(0, 0, 1)
	}

	r := &DateRange{From: fromTime, To: toTime}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func parseBound(value string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: cannot parse %q", ErrInvalidRange, value)
}

// Cache key method names
const (
	methodPlatform   = "getPlatformMetrics"
	methodInstructor = "getInstructorMetrics"
	methodStudent    = "getStudentMetrics"
	methodCourse     = "getCourseMetrics"

	platformEntity = "platform"
)

// metricsKey builds "method:entityID:range" so distinct parameterizations never collide
func metricsKey(method, entityID string, r *DateRange) string {
	return method + ":" + entityID + ":" + r.cacheKey()
}

// LessonsKey is the lessons cache key of a course
func LessonsKey(courseID string) string {
	return cache.CourseLessonsKey(courseID)
}

// CertificatesKey is the certificates cache key of a user
func CertificatesKey(userID string) string {
	return "user:" + userID + ":certificates"
}
