package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Lookup returns the value cached under key as a T. The in-memory tier is
// consulted first, then the remote tier; a remote hit is decoded and promoted
// into memory with its remaining TTL. A nil manager always misses.
func Lookup[T any](ctx context.Context, m *Manager, ns Namespace, key string) (T, bool) {
	var zero T
	if m == nil {
		return zero, false
	}

	if v, ok := m.store.Get(ns, key); ok {
		if typed, ok := v.(T); ok {
			return typed, true
		}
		m.log.WithFields(logrus.Fields{
			"namespace": ns,
			"key":       key,
		}).Warn("Cached value has unexpected type, dropping it")
		m.store.Delete(ns, key)
	}

	if m.remote == nil {
		return zero, false
	}

	data, ttl, err := m.remote.Get(ctx, ns, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.remoteFailed(ns, key, "get", err)
		}
		return zero, false
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"namespace": ns,
			"key":       key,
		}).Warn("Failed to decode remote cache entry, dropping it")
		if err := m.remote.Delete(ctx, ns, key); err != nil {
			m.remoteFailed(ns, key, "delete", err)
		}
		return zero, false
	}

	m.store.metrics.recordRemoteHit(ns)
	m.store.Set(ns, key, value, ttl)
	return value, true
}

// CachedQuery returns the cached value for (ns, key) when present, otherwise it
// runs compute, caches a successful result with ttl, and returns it.
//
// Errors from compute are returned unchanged and never cached. With single-flight
// enabled on the manager, concurrent misses on the same key share one compute
// call and all receive its result. The shared call is not cancelled when one
// caller's context ends; that caller alone returns ctx.Err(). A nil manager
// runs compute uncached.
func CachedQuery[T any](ctx context.Context, m *Manager, ns Namespace, key string, compute func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if m == nil {
		return compute(ctx)
	}

	if v, ok := Lookup[T](ctx, m, ns, key); ok {
		return v, nil
	}

	if !m.singleFlight {
		return computeAndStore(ctx, m, ns, key, compute, ttl)
	}

	// The shared compute outlives any single caller; each caller only stops
	// waiting when its own context ends.
	ch := m.flight.DoChan(string(ns)+"\x00"+key, func() (any, error) {
		timeout := m.flightTimeout
		if timeout <= 0 {
			timeout = DefaultFlightTimeout
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		// A flight that finished between our miss and DoChan may have filled the entry
		if v, ok := m.store.peek(ns, key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		return computeAndStore(flightCtx, m, ns, key, compute, ttl)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	}
}

func computeAndStore[T any](ctx context.Context, m *Manager, ns Namespace, key string, compute func(context.Context) (T, error), ttl time.Duration) (T, error) {
	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	m.Set(ctx, ns, key, value, ttl)
	return value, nil
}
