// Package api serves the analytics dashboards and the cache administration
// endpoints over HTTP.
//
// Routes:
//
//	GET    /api/v1/analytics/platform?from=&to=
//	GET    /api/v1/analytics/instructors/{id}?from=&to=
//	GET    /api/v1/analytics/students/{id}
//	GET    /api/v1/analytics/courses/{id}?from=&to=
//	POST   /api/v1/cache/invalidate       {"entity_type": "course", "entity_id": "c-1"}
//	DELETE /api/v1/cache/{namespace}
//	GET    /api/v1/cache/stats
//
// from and to are RFC 3339 timestamps or YYYY-MM-DD dates and must be given
// together; omitted, the dashboards cover the trailing 30 days.
//
// Errors map to status codes as follows: unknown course or user 404, invalid
// id, range or entity type 400, deadline 504, anything else 500 with the
// cause logged but not returned.
package api
