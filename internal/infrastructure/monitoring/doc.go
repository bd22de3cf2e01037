/*
Package monitoring provides Prometheus metrics for the bundle core.

# Metrics

- HTTP request count and latency for the serving surface
- ensureReady outcomes, download duration, retries and bytes transferred
- cache verification hits, misses and hash mismatches
- permission reconciliation outcomes
- bridge requests by action and status, open websocket connections
- circuit breaker state

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

Every recording method is a no-op on a nil *Metrics.
*/
package monitoring
