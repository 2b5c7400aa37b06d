// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type proxyMetrics struct {
	errors        *prometheus.CounterVec
	tunnelsActive prometheus.Gauge
	tunnelsTotal  prometheus.Counter
	tunnelsIdle   prometheus.Counter
}

// newProxyMetrics registers the proxy metrics with r. The fleet runs
// many proxy servers against one registry and recovery registers again
// on every rebuild, an already registered collector is reused so the
// metrics aggregate over all workers.
func newProxyMetrics(r prometheus.Registerer, namespace string) *proxyMetrics {
	if r == nil {
		r = prometheus.NewRegistry() // This registry will be discarded.
	}

	return &proxyMetrics{
		errors: register(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "proxy_errors_total",
			Namespace: namespace,
			Help:      "Number of proxy errors",
		}, []string{"reason"})),
		tunnelsActive: register(r, prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "proxy_tunnels_active",
			Namespace: namespace,
			Help:      "Number of currently open CONNECT tunnels",
		})),
		tunnelsTotal: register(r, prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "proxy_tunnels_total",
			Namespace: namespace,
			Help:      "Number of established CONNECT tunnels",
		})),
		tunnelsIdle: register(r, prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "proxy_tunnels_idle_closed_total",
			Namespace: namespace,
			Help:      "Number of CONNECT tunnels closed due to inactivity",
		})),
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

func (m *proxyMetrics) error(reason string) {
	m.errors.WithLabelValues(reason).Inc()
}

func (m *proxyMetrics) tunnelOpened() {
	m.tunnelsTotal.Inc()
	m.tunnelsActive.Inc()
}

func (m *proxyMetrics) tunnelClosed(idle bool) {
	m.tunnelsActive.Dec()
	if idle {
		m.tunnelsIdle.Inc()
	}
}
