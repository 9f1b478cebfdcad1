// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminology_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "terminology_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminology_searches_total",
		Help: "Description searches by outcome.",
	}, []string{"outcome"})

	eclRealizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminology_ecl_realizations_total",
		Help: "ECL realizations by outcome.",
	}, []string{"outcome"})
)

// observeRequests records request counts and latency per route. The
// route template (not the raw path) keys the labels, so concept ids do
// not explode cardinality.
func observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
