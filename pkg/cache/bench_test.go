package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func benchManager() *Manager {
	return NewManager(NewStore(DefaultNamespaces()))
}

// BenchmarkCachedQuery_Hit measures a memoized read once the value is stored
func BenchmarkCachedQuery_Hit(b *testing.B) {
	m := benchManager()
	ctx := context.Background()
	compute := func(context.Context) (int, error) { return 42, nil }

	if _, err := CachedQuery(ctx, m, NamespaceCourseMetrics, "course:c1", compute, time.Minute); err != nil {
		b.Fatalf("warm up: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := CachedQuery(ctx, m, NamespaceCourseMetrics, "course:c1", compute, time.Minute); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCachedQuery_Miss measures compute plus store on distinct keys
func BenchmarkCachedQuery_Miss(b *testing.B) {
	m := benchManager()
	ctx := context.Background()
	compute := func(context.Context) (int, error) { return 42, nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("course:c%d", i)
		if _, err := CachedQuery(ctx, m, NamespaceCourseMetrics, key, compute, time.Minute); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStore_ParallelGet(b *testing.B) {
	s := NewStore(DefaultNamespaces())
	for i := 0; i < 100; i++ {
		s.Set(NamespaceCourses, fmt.Sprintf("c%d", i), i, time.Minute)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			s.Get(NamespaceCourses, fmt.Sprintf("c%d", i%100))
			i++
		}
	})
}
