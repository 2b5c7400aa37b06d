// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var objectives = map[float64]float64{
	0.5:  0.01,  // Median (50th percentile) with ±1% error
	0.9:  0.01,  // 90th percentile with ±1% error
	0.99: 0.001, // 99th percentile with ±0.1% error
}

// Prometheus is a middleware that collects metrics about the HTTP requests and responses.
// Unlike the promhttp.InstrumentHandler* chaining, this middleware creates only one delegator per request.
// It partitions the metrics by status code and HTTP method.
type Prometheus struct {
	requestsInFlight *prometheus.GaugeVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.SummaryVec
}

// NewPrometheus registers the middleware metrics with r. Many worker
// proxies share one registry, an already registered collector is
// reused so the metrics aggregate over all of them.
func NewPrometheus(r prometheus.Registerer, namespace string) *Prometheus {
	if r == nil {
		r = prometheus.NewRegistry() // This registry will be discarded.
	}

	labels := []string{"method"}
	labelsWithStatus := append([]string{"code"}, labels...)

	return &Prometheus{
		requestsInFlight: register(r, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being served.",
		}, labels)),

		requestsTotal: register(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, labelsWithStatus)),

		requestDuration: register(r, prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  namespace,
			Name:       "http_request_duration_seconds",
			Help:       "The HTTP request latencies in seconds.",
			Objectives: objectives,
		}, labelsWithStatus)),
	}
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	if err := r.Register(c); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			return are.ExistingCollector.(C)
		}
		panic(err)
	}
	return c
}

func (p *Prometheus) Wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.requestsInFlight.WithLabelValues(r.Method).Inc()

		d := newDelegator(w)

		start := time.Now()
		h.ServeHTTP(d, r)
		elapsed := time.Since(start).Seconds()

		statusLabel := strconv.Itoa(d.Status())
		p.requestsTotal.WithLabelValues(statusLabel, r.Method).Inc()
		p.requestDuration.WithLabelValues(statusLabel, r.Method).Observe(elapsed)

		p.requestsInFlight.WithLabelValues(r.Method).Dec()
	})
}

// ReadRequest and WroteResponse instrument proxied exchanges that are
// served from a raw connection instead of an http.Handler.

func (p *Prometheus) ReadRequest(req *http.Request) {
	p.requestsInFlight.WithLabelValues(req.Method).Inc()
}

func (p *Prometheus) WroteResponse(res *http.Response, elapsed time.Duration) {
	req := res.Request
	statusLabel := strconv.Itoa(res.StatusCode)

	p.requestsInFlight.WithLabelValues(req.Method).Dec()
	p.requestsTotal.WithLabelValues(statusLabel, req.Method).Inc()
	p.requestDuration.WithLabelValues(statusLabel, req.Method).Observe(elapsed.Seconds())
}
