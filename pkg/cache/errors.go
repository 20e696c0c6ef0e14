package cache

import "errors"

var (
	// ErrCacheMiss is returned by a Remote tier when a key is not found
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnknownEntity is returned when an invalidation names an entity type
	// with no invalidation rule
	ErrUnknownEntity = errors.New("unknown entity type")
)
