// Package storage holds the connection settings shared by the analytics data
// source, the Redis cache tier and report export, plus the Redis client
// constructor. The SQL data source itself lives in storage/postgres.
package storage
