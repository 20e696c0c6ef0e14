package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// EntityType names a kind of entity whose writes invalidate cached lookups
type EntityType string

const (
	EntityCourse EntityType = "course"
	EntityUser   EntityType = "user"
	EntityLesson EntityType = "lesson"
)

// Manager is the mutation-aware front of the cache. It owns the in-memory
// Store, an optional Remote tier, and the cross-namespace invalidation rules.
//
// No Manager method returns a cache failure to the caller: remote errors are
// logged and treated as misses so callers fall back to recomputing.
type Manager struct {
	store        *Store
	remote       Remote
	log          logrus.FieldLogger
	singleFlight bool
	flight       singleflight.Group
	// flightTimeout bounds a shared compute, which runs detached from its callers
	flightTimeout time.Duration
}

// DefaultFlightTimeout bounds a single-flight compute
const DefaultFlightTimeout = time.Minute

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithRemote adds a shared tier behind the in-memory store
func WithRemote(remote Remote) ManagerOption {
	return func(m *Manager) {
		m.remote = remote
	}
}

// WithLogger sets the logger used for degraded cache operations
func WithLogger(log logrus.FieldLogger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSingleFlight makes concurrent misses on the same key share one computation
func WithSingleFlight(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.singleFlight = enabled
	}
}

// WithFlightTimeout bounds a single-flight compute. Values <= 0 keep the default.
func WithFlightTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.flightTimeout = d
		}
	}
}

// NewManager creates a cache manager over store
func NewManager(store *Store, opts ...ManagerOption) *Manager {
	if store == nil {
		store = NewStore(nil)
	}
	m := &Manager{
		store:         store,
		log:           logrus.New(),
		flightTimeout: DefaultFlightTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the in-memory store
func (m *Manager) Store() *Store {
	return m.store
}

// Get returns a value from the in-memory tier. Typed reads that should also
// consult the remote tier go through Lookup.
func (m *Manager) Get(ctx context.Context, ns Namespace, key string) (any, bool) {
	return m.store.Get(ns, key)
}

// Set stores value in every tier. A ttl <= 0 uses the namespace default.
func (m *Manager) Set(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.store.TTL(ns)
	}
	m.store.Set(ns, key, value, ttl)

	if m.remote == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"namespace": ns,
			"key":       key,
		}).Warn("Failed to encode cache entry for remote tier")
		return
	}
	if err := m.remote.Set(ctx, ns, key, data, ttl); err != nil {
		m.remoteFailed(ns, key, "set", err)
	}
}

// Delete removes key from every tier
func (m *Manager) Delete(ctx context.Context, ns Namespace, key string) {
	m.store.Delete(ns, key)

	if m.remote == nil {
		return
	}
	if err := m.remote.Delete(ctx, ns, key); err != nil {
		m.remoteFailed(ns, key, "delete", err)
	}
}

// Clear removes every entry of a namespace from every tier
func (m *Manager) Clear(ctx context.Context, ns Namespace) {
	m.store.Clear(ns)

	if m.remote == nil {
		return
	}
	if err := m.remote.Clear(ctx, ns); err != nil {
		m.remoteFailed(ns, "*", "clear", err)
	}
}

// InvalidateRelated removes entries that a write to the given entity may have
// made stale, and returns how many in-memory entries were removed.
//
//   - course: the course entry and every lesson key referencing the course
//   - user: the user entry only
//   - lesson: every lesson key referencing the lesson, plus the lesson lists
//     its LessonIndexKey entries point at. With no index entry left (a new
//     lesson, or an evicted index) every cached lesson list is dropped.
//
// Aggregates such as platform metrics are left to expire by TTL.
func (m *Manager) InvalidateRelated(ctx context.Context, entityType EntityType, entityID string) (int, error) {
	if entityID == "" {
		return 0, fmt.Errorf("entity id is required")
	}

	var removed int
	switch entityType {
	case EntityCourse:
		removed = m.deleteCounted(ctx, NamespaceCourses, entityID)
		removed += m.deleteReferencing(ctx, NamespaceLessons, entityID)
	case EntityUser:
		removed = m.deleteCounted(ctx, NamespaceUsers, entityID)
	case EntityLesson:
		removed = m.invalidateLesson(ctx, entityID)
	default:
		m.log.WithFields(logrus.Fields{
			"entity_type": entityType,
			"entity_id":   entityID,
		}).Warn("No invalidation rule for entity type")
		return 0, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}

	m.log.WithFields(logrus.Fields{
		"entity_type": entityType,
		"entity_id":   entityID,
		"removed":     removed,
	}).Debug("Invalidated related cache entries")

	return removed, nil
}

// Stats returns per-namespace counters of the in-memory tier
func (m *Manager) Stats() map[Namespace]NamespaceStats {
	return m.store.Stats()
}

func (m *Manager) deleteCounted(ctx context.Context, ns Namespace, key string) int {
	before := m.store.Len(ns)
	m.Delete(ctx, ns, key)
	return before - m.store.Len(ns)
}

// deleteReferencing removes every key of ns that has id as one of its
// colon-separated segments. This is a linear scan of the namespace.
func (m *Manager) deleteReferencing(ctx context.Context, ns Namespace, id string) int {
	return m.deleteMatching(ctx, ns, id, func(key string) bool {
		return keyReferences(key, id)
	})
}

func (m *Manager) deleteMatching(ctx context.Context, ns Namespace, label string, match func(key string) bool) int {
	removed := m.store.DeleteFunc(ns, match)

	if m.remote != nil {
		if _, err := m.remote.DeleteMatching(ctx, ns, match); err != nil {
			m.remoteFailed(ns, label, "delete_matching", err)
		}
	}
	return removed
}

func (m *Manager) invalidateLesson(ctx context.Context, lessonID string) int {
	lists := make(map[string]struct{})
	removed := m.deleteMatching(ctx, NamespaceLessons, lessonID, func(key string) bool {
		if !keyReferences(key, lessonID) {
			return false
		}
		if courseID, ok := indexedCourse(key, lessonID); ok {
			lists[CourseLessonsKey(courseID)] = struct{}{}
		}
		return true
	})

	if len(lists) == 0 {
		return removed + m.deleteMatching(ctx, NamespaceLessons, lessonID, isLessonList)
	}
	for key := range lists {
		removed += m.deleteCounted(ctx, NamespaceLessons, key)
	}
	return removed
}

func (m *Manager) remoteFailed(ns Namespace, key, operation string, err error) {
	m.store.metrics.recordRemoteError(ns, operation)
	m.log.WithError(err).WithFields(logrus.Fields{
		"namespace": ns,
		"key":       key,
		"operation": operation,
	}).Warn("Remote cache operation failed")
}

// keyReferences reports whether id is one of the colon-separated segments of key
func keyReferences(key, id string) bool {
	for _, segment := range strings.Split(key, ":") {
		if segment == id {
			return true
		}
	}
	return false
}
