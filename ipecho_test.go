// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/crawlforge/fleetproxy/log"
)

func TestParseIPEchoResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		ip      string
		wantErr bool
	}{
		{name: "origin key", body: `{"origin": "203.0.113.10"}`, ip: "203.0.113.10"},
		{name: "ip key fallback", body: `{"ip": "203.0.113.11"}`, ip: "203.0.113.11"},
		{name: "origin preferred over ip", body: `{"origin": "203.0.113.10", "ip": "x"}`, ip: "203.0.113.10"},
		{name: "no address", body: `{"hostname": "example"}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ip, err := parseIPEchoResponse([]byte(tc.body))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseIPEchoResponse(%q) = %q, want error", tc.body, ip)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseIPEchoResponse(%q): %v", tc.body, err)
			}
			if ip != tc.ip {
				t.Errorf("parseIPEchoResponse(%q) = %q, want %q", tc.body, ip, tc.ip)
			}
		})
	}
}

func TestIPEchoClientDirectIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"origin": "198.51.100.7"}`))
	}))
	defer srv.Close()

	cfg := DefaultIPEchoConfig()
	cfg.URL = srv.URL
	c, err := NewIPEchoClient(cfg, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	ip, err := c.DirectIP(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ip != "198.51.100.7" {
		t.Errorf("DirectIP() = %q, want %q", ip, "198.51.100.7")
	}
}

func TestIPEchoClientProxiedIP(t *testing.T) {
	// A stand-in proxy that answers absolute-URI requests itself
	// instead of forwarding them. The echo host never resolves, so a
	// response proves the fetch went through the proxy.
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !r.URL.IsAbs() {
			http.Error(w, "expected absolute-form request target", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"origin": "192.0.2.99"}`))
	}))
	defer proxy.Close()

	cfg := DefaultIPEchoConfig()
	cfg.URL = "http://ipecho.fleetproxy.invalid/ip"
	c, err := NewIPEchoClient(cfg, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	proxyURL, err := url.Parse(proxy.URL)
	if err != nil {
		t.Fatal(err)
	}

	ip, err := c.ProxiedIP(context.Background(), proxyURL)
	if err != nil {
		t.Fatal(err)
	}
	if ip != "192.0.2.99" {
		t.Errorf("ProxiedIP() = %q, want %q", ip, "192.0.2.99")
	}

	if _, err := c.ProxiedIP(context.Background(), nil); err == nil {
		t.Error("ProxiedIP(nil) succeeded, want error")
	}
}

func TestIPEchoClientRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := DefaultIPEchoConfig()
	cfg.URL = srv.URL
	c, err := NewIPEchoClient(cfg, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}

	if ip, err := c.DirectIP(context.Background()); err == nil {
		t.Errorf("DirectIP() = %q, want error for status 429", ip)
	}
}
