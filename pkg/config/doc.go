// Package config loads coursemetrics configuration from COURSEMETRICS_*
// environment variables.
//
// Per-namespace cache capacity and TTL can additionally be overridden by a
// YAML file named in COURSEMETRICS_CACHE_FILE:
//
//	single_flight: true
//	namespaces:
//	  courses:
//	    capacity: 2000
//	    ttl: 20m
//
// LoadConfig validates the result; a config that fails Validate is never
// returned.
package config
