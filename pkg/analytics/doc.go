// Package analytics computes the learning-analytics dashboards of the course
// platform.
//
// # Overview
//
// Four snapshots are served: platform-wide, per instructor, per student and
// per course. Each is computed from a read-only Source by fanning out the raw
// reads concurrently and folding the rows with the pure functions of this
// package, then memoized through pkg/cache.
//
// # Key Metrics
//
// Platform:
//   - Total, new-this-month and active (30d) users
//   - Enrollments, completed courses, revenue in range
//   - Average completion rate, daily signups, monthly revenue
//
// Course:
//   - Completion rate, average rating, revenue
//   - Drop-off points (top 5 lessons by drop-off rate)
//   - Per-lesson engagement and view-to-enrollment conversion
//
// # Usage Example
//
//	svc := analytics.NewService(source, cacheManager, analytics.WithLogger(log))
//	metrics, err := svc.GetCourseMetrics(ctx, "course-42", nil) // trailing 30 days
//	if errors.Is(err, analytics.ErrNotFound) {
//		// unknown course
//	}
//
// # Aggregation
//
// Time series are keyed by BucketKey (UTC day, ISO week or month) and emitted
// in first-encountered order. Rates exclude groups with an empty denominator
// instead of reporting them as 0%.
//
// # Related Packages
//
//   - pkg/cache: snapshot and entity caching
//   - pkg/storage/postgres: SQL Source implementation
package analytics
