package cache

import "time"

// Namespace is a named partition of the cache with its own capacity and TTL
type Namespace string

const (
	// Analytics snapshots
	NamespacePlatformMetrics   Namespace = "platform-metrics"
	NamespaceInstructorMetrics Namespace = "instructor-metrics"
	NamespaceStudentMetrics    Namespace = "student-metrics"
	NamespaceCourseMetrics     Namespace = "course-metrics"

	// Session and user lookups
	NamespaceSessions Namespace = "sessions"
	NamespaceUsers    Namespace = "users"

	// Generic entity lookups
	NamespaceCourses      Namespace = "courses"
	NamespaceLessons      Namespace = "lessons"
	NamespaceCertificates Namespace = "certificates"
)

// Namespaces lists every known namespace in a stable order
func Namespaces() []Namespace {
	return []Namespace{
		NamespacePlatformMetrics,
		NamespaceInstructorMetrics,
		NamespaceStudentMetrics,
		NamespaceCourseMetrics,
		NamespaceSessions,
		NamespaceUsers,
		NamespaceCourses,
		NamespaceLessons,
		NamespaceCertificates,
	}
}

// Valid reports whether ns is one of the known namespaces
func (ns Namespace) Valid() bool {
	for _, known := range Namespaces() {
		if ns == known {
			return true
		}
	}
	return false
}

func (ns Namespace) String() string {
	return string(ns)
}

// NamespaceConfig holds the capacity and default TTL of one namespace
type NamespaceConfig struct {
	Capacity int           // Max entries before LRU eviction
	TTL      time.Duration // Default TTL when Set is called without one
}

// FallbackNamespaceConfig applies to namespaces created lazily by Set
var FallbackNamespaceConfig = NamespaceConfig{
	Capacity: 100,
	TTL:      5 * time.Minute,
}

// DefaultNamespaces returns the default per-namespace configuration
func DefaultNamespaces() map[Namespace]NamespaceConfig {
	return map[Namespace]NamespaceConfig{
		NamespaceSessions:          {Capacity: 1000, TTL: 5 * time.Minute},
		NamespaceUsers:             {Capacity: 1000, TTL: 5 * time.Minute},
		NamespaceCourses:           {Capacity: 500, TTL: 10 * time.Minute},
		NamespaceLessons:           {Capacity: 2000, TTL: 10 * time.Minute},
		NamespaceCertificates:      {Capacity: 500, TTL: 1 * time.Hour},
		NamespacePlatformMetrics:   {Capacity: 16, TTL: 15 * time.Minute},
		NamespaceInstructorMetrics: {Capacity: 500, TTL: 15 * time.Minute},
		NamespaceStudentMetrics:    {Capacity: 500, TTL: 15 * time.Minute},
		NamespaceCourseMetrics:     {Capacity: 500, TTL: 15 * time.Minute},
	}
}
