// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/crawlforge/fleetproxy/utils/promutil"
)

func TestAPIHandlerEndpoints(t *testing.T) {
	promReg := prometheus.NewRegistry()
	promauto.With(promReg).NewCounter(prometheus.CounterOpts{
		Namespace: "test",
		Name:      "api_probe_total",
	}).Inc()

	var ready atomic.Bool
	h := NewAPIHandler("Fleetproxy test", promReg, ready.Load, APIEndpoint{
		Path: "/echo",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("echo"))
		}),
	})
	s := httptest.NewServer(h)
	defer s.Close()

	get := func(path string) (int, string) {
		t.Helper()
		res, err := http.Get(s.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatal(err)
		}
		return res.StatusCode, string(b)
	}

	if code, body := get("/healthz"); code != http.StatusOK || body != "OK" {
		t.Errorf("healthz: got %d %q", code, body)
	}

	if code, _ := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready: got %d, want 503", code)
	}
	ready.Store(true)
	if code, body := get("/readyz"); code != http.StatusOK || body != "OK" {
		t.Errorf("readyz after ready: got %d %q", code, body)
	}

	{
		code, body := get("/metrics")
		if code != http.StatusOK {
			t.Fatalf("metrics: got %d", code)
		}
		g, err := promutil.ParseMetricFamilies(strings.NewReader(body))
		if err != nil {
			t.Fatalf("parse metrics: %s", err)
		}
		mfs, err := g.Gather()
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, mf := range mfs {
			if mf.GetName() == "test_api_probe_total" {
				found = true
				if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 1 {
					t.Errorf("test_api_probe_total: got %v, want 1", v)
				}
			}
		}
		if !found {
			t.Errorf("metrics: test_api_probe_total not found in:\n%s", body)
		}
	}

	if code, body := get("/echo"); code != http.StatusOK || body != "echo" {
		t.Errorf("extra endpoint: got %d %q", code, body)
	}

	if code, body := get("/"); code != http.StatusOK || !strings.Contains(body, `<a href="/echo">`) {
		t.Errorf("index: got %d, missing endpoint link in %q", code, body)
	}

	if code, _ := get("/no-such-endpoint"); code != http.StatusNotFound {
		t.Errorf("unknown path: got %d, want 404", code)
	}
}

func TestAPIHandlerNilReadyAlwaysReady(t *testing.T) {
	h := NewAPIHandler("Fleetproxy test", prometheus.NewRegistry(), nil)
	s := httptest.NewServer(h)
	defer s.Close()

	res, err := http.Get(s.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("readyz: got %d, want 200", res.StatusCode)
	}
}
