// Package http provides the REST surface a presentation container uses to
// list, load and consent to bundles.
//
// Endpoints:
//   - GET  /v1/apps                       host-wide listing
//   - GET  /v1/apps/:appId                listing plus local version records
//   - POST /v1/apps/:appId/load           make the current version ready
//   - GET  /v1/apps/:appId/permissions    grants and pending consent
//   - PUT  /v1/apps/:appId/permissions    record consent decisions
//   - POST /v1/gc                         garbage collection
//   - GET  /healthz
//
// Errors are reported as {"error": {"kind", "message", "missing"}} with a
// status derived from the error kind.
package http
