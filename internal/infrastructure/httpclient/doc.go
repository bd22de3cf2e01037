// Package httpclient is the outbound HTTP layer shared by the platform
// client and the download pipeline.
//
// Requests pass a token-bucket limiter, then a retryablehttp client that
// retries HTTP 5xx with exponential backoff (0.5s, 1s, 2s, 4s over five
// attempts by default). Platform API calls additionally run through a
// circuit breaker whose open state is reported as an Offline error.
// Non-2xx statuses are mapped onto the typed error taxonomy in
// ClassifyStatus.
package httpclient
