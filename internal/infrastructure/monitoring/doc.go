/*
Package monitoring collects Prometheus metrics for the feed host and the
reference authority.

# Overview

Metrics cover the content window (live surfaces, role transitions, surface
faults), the bridge (messages in and out, drops), progress sync (flush
outcomes, queue depth), remote calls and served HTTP requests.

Every Metrics value owns a private registry, so nothing is registered on the
global default registry.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "progress_batch")
	// ... perform call ...
	timer.Stop("ok")
*/
package monitoring
