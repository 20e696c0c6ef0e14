// Package httputil provides the JSON response helpers, request parsing and
// request middleware shared by the coursemetrics HTTP handlers.
//
// Every error response has the same body:
//
//	{"error": "course c-42: not found", "request_id": "5f0c..."}
//
// Middleware order on the API router:
//
//	router.Use(httputil.RequestIDMiddleware)
//	router.Use(httputil.LoggingMiddleware(logger))
//	router.Use(observability.RecoveryMiddleware(logger))
package httputil
