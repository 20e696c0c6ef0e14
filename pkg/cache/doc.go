// Package cache provides the namespaced in-memory cache used by the analytics
// service.
//
// A Store holds one LRU partition per Namespace, each with its own capacity and
// default TTL. Expired entries are removed lazily on read, or eagerly by
// PurgeExpired. A Manager fronts the Store, optionally backed by a shared Redis
// tier, and knows which entries to drop when a course, user or lesson changes.
// CachedQuery memoizes an arbitrary computation through a Manager:
//
//	metrics, err := cache.CachedQuery(ctx, mgr, cache.NamespaceCourseMetrics, key,
//		func(ctx context.Context) (*CourseMetrics, error) {
//			return compute(ctx, courseID)
//		}, 0)
//
// Cache failures never reach the caller; they degrade to a miss.
package cache
