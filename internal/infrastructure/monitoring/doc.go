/*
Package monitoring provides Prometheus metrics for evaluators and the
reference sidecar.

# Overview

Metrics are registered on a caller-supplied prometheus.Registerer, never
on the global default registry, so that any number of evaluators can live
in one process and tests can use a private registry.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Time an evaluation
	timer := monitoring.NewTimer(metrics, "async")
	// ... evaluate ...
	timer.Stop(monitoring.OutcomeOK)

	// Add middleware to the sidecar's Gin router
	router.Use(monitoring.Middleware(metrics))

A nil *Metrics is valid and records nothing.

# Metrics Endpoint

The reference sidecar exposes its registry via promhttp:

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
