// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIUnixSocket is served in addition to the API server address when
// running in a container, so that sidecars can probe the fleet without
// network access.
const APIUnixSocket = "/var/run/fleetproxy.sock"

// APIEndpoint adds an extra handler to the API server.
type APIEndpoint struct {
	Path    string
	Handler http.Handler
}

// APIHandler serves the diagnostic API: Prometheus metrics, health and
// readiness probes and pprof debug endpoints, plus any extra endpoints
// registered by the caller.
// The index page at / lists all registered endpoints.
type APIHandler struct {
	mux   *http.ServeMux
	ready func() bool
	index []byte
}

// NewAPIHandler creates an APIHandler with the given extra endpoints.
// The ready function backs the /readyz probe, if nil the probe always
// succeeds.
func NewAPIHandler(title string, r prometheus.Gatherer, ready func() bool, endpoints ...APIEndpoint) *APIHandler {
	m := http.NewServeMux()
	a := &APIHandler{
		mux:   m,
		ready: ready,
	}

	m.Handle("/metrics", promhttp.HandlerFor(r, promhttp.HandlerOpts{}))
	m.HandleFunc("/healthz", a.healthz)
	m.HandleFunc("/readyz", a.readyz)

	m.HandleFunc("/debug/pprof/", pprof.Index)
	m.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	m.HandleFunc("/debug/pprof/profile", pprof.Profile)
	m.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	m.HandleFunc("/debug/pprof/trace", pprof.Trace)

	paths := []string{"/metrics", "/healthz", "/readyz", "/debug/pprof/"}
	for _, e := range endpoints {
		m.Handle(e.Path, e.Handler)
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>\n", title)
	fmt.Fprintf(&b, "<h1>%s</h1>\n", title)
	for _, p := range paths {
		fmt.Fprintf(&b, "<p><a href=%q>%s</a></p>\n", p, p)
	}
	b.WriteString("</body></html>\n")
	a.index = []byte(b.String())
	m.HandleFunc("/", a.root)

	return a
}

func (h *APIHandler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write(h.index)
}

func (h *APIHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func (h *APIHandler) readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if h.ready != nil && !h.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Service Unavailable"))
		return
	}
	w.Write([]byte("OK"))
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}
