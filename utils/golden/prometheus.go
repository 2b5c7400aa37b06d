// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package golden compares Prometheus metrics against golden files.
package golden

import (
	"bytes"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/crawlforge/fleetproxy/utils/promutil"
)

// WaitMetrics is the time to wait for the metrics to be updated.
// Somehow, the metrics are not updated immediately at all times.
var WaitMetrics = 10 * time.Millisecond

// DiffPrometheusMetrics compares metrics gathered from p with the golden
// file for the current test. On mismatch the golden file is overwritten
// with the gathered metrics so the diff can be reviewed with git.
func DiffPrometheusMetrics(t *testing.T, p prometheus.Gatherer, filter ...func(*dto.MetricFamily) bool) {
	t.Helper()

	time.Sleep(WaitMetrics)

	goldenFile := "testdata/" + strings.ReplaceAll(t.Name(), "/", "_") + ".golden.txt"
	golden, err := os.ReadFile(goldenFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if runtime.GOOS == "windows" {
		// Remove carriage returns from the file on Windows.
		golden = bytes.ReplaceAll(golden, []byte{'\r'}, nil)
	}

	got, err := promutil.DumpPrometheusMetrics(p, filter...)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(string(golden), got); diff != "" {
		t.Errorf("unexpected metrics (-want +got):\n%s", diff)
		if err := os.WriteFile(goldenFile, []byte(got), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}
