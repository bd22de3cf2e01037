// Package middleware provides the gin middleware stack of the bundle host.
//
// Middleware stack includes:
//   - CORS: cross-origin access for the presentation container
//   - RateLimit: per-IP token buckets with idle client eviction
//   - RequestID: correlation ids on the context and the response
//   - AccessLog: one structured zap line per request
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.CORSFromOrigins(cfg.Server.CORSOrigins)))
package middleware
