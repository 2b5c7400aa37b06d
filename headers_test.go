// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizeRequestHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   http.Header
	}{
		{
			name: "hop by hop headers",
			header: http.Header{
				"Connection":          []string{"keep-alive"},
				"Keep-Alive":          []string{"timeout=5"},
				"Proxy-Authenticate":  []string{"Basic"},
				"Proxy-Authorization": []string{"Basic Zm9vOmJhcg=="},
				"Te":                  []string{"trailers"},
				"Trailers":            []string{"X-Checksum"},
				"Transfer-Encoding":   []string{"chunked"},
				"Upgrade":             []string{"h2c"},
				"Accept":              []string{"*/*"},
			},
			want: http.Header{
				"Accept": []string{"*/*"},
			},
		},
		{
			name: "identity revealing headers",
			header: http.Header{
				"X-Forwarded-For":   []string{"10.0.0.1"},
				"X-Forwarded-Host":  []string{"internal.example.com"},
				"X-Forwarded-Proto": []string{"https"},
				"X-Real-Ip":         []string{"10.0.0.2"},
				"Via":               []string{"1.1 gw"},
				"Forwarded":         []string{"for=10.0.0.1"},
				"User-Agent":        []string{"scraper"},
			},
			want: http.Header{
				"User-Agent": []string{"scraper"},
			},
		},
		{
			name: "connection named headers",
			header: http.Header{
				"Connection":    []string{"X-Custom-Drop"},
				"X-Custom-Drop": []string{"1"},
				"X-Custom-Keep": []string{"1"},
			},
			want: http.Header{
				"X-Custom-Keep": []string{"1"},
			},
		},
		{
			// Origin credentials are end-to-end, only the proxy
			// credentials are connection scoped.
			name: "origin credentials pass through",
			header: http.Header{
				"Authorization":       []string{"Bearer origin-token"},
				"Proxy-Authorization": []string{"Basic Zm9vOmJhcg=="},
				"Cookie":              []string{"session=1"},
			},
			want: http.Header{
				"Authorization": []string{"Bearer origin-token"},
				"Cookie":        []string{"session=1"},
			},
		},
	}

	for i := range tests {
		tc := &tests[i]
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "http://origin.example.com:8080/path", http.NoBody)
			if err != nil {
				t.Fatal(err)
			}
			req.Host = "worker.local:8081"
			req.Header = tc.header

			sanitizeRequestHeaders(req)

			if diff := cmp.Diff(tc.want, req.Header); diff != "" {
				t.Errorf("headers mismatch (-want +got):\n%s", diff)
			}
			if got, want := req.Host, "origin.example.com:8080"; got != want {
				t.Errorf("Host: got %q, want %q", got, want)
			}
		})
	}
}

func TestSanitizeResponseHeaders(t *testing.T) {
	res := &http.Response{
		Header: http.Header{
			"Connection":   []string{"keep-alive"},
			"Keep-Alive":   []string{"timeout=5"},
			"Content-Type": []string{"text/html"},
			"Set-Cookie":   []string{"id=1"},
		},
	}

	sanitizeResponseHeaders(res)

	want := http.Header{
		"Content-Type": []string{"text/html"},
		"Set-Cookie":   []string{"id=1"},
	}
	if diff := cmp.Diff(want, res.Header); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
}

func TestUpgradeType(t *testing.T) {
	tests := []struct {
		name string
		h    http.Header
		want string
	}{
		{"websocket", http.Header{"Connection": {"Upgrade"}, "Upgrade": {"websocket"}}, "websocket"},
		{"multi token connection", http.Header{"Connection": {"keep-alive, Upgrade"}, "Upgrade": {"websocket"}}, "websocket"},
		{"no connection header", http.Header{"Upgrade": {"websocket"}}, ""},
		{"no upgrade", http.Header{"Connection": {"keep-alive"}}, ""},
	}

	for i := range tests {
		tc := &tests[i]
		t.Run(tc.name, func(t *testing.T) {
			if got := upgradeType(tc.h); got != tc.want {
				t.Errorf("upgradeType(): got %q, want %q", got, tc.want)
			}
		})
	}
}
