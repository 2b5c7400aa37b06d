// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/crawlforge/fleetproxy/log"
)

type IPEchoConfig struct {
	// URL of an endpoint returning a JSON document with the caller's
	// address under the "origin" or "ip" key.
	URL string
	// Timeout bounds a single fetch.
	Timeout time.Duration
	// InsecureSkipVerify disables TLS verification of the echo endpoint.
	InsecureSkipVerify bool
}

func DefaultIPEchoConfig() *IPEchoConfig {
	return &IPEchoConfig{
		URL:     "https://httpbin.org/ip",
		Timeout: 30 * time.Second,
	}
}

func (c *IPEchoConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url: host is required")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// IPEchoClient learns the public IP an interface exits with by asking
// an external echo service.
type IPEchoClient struct {
	config IPEchoConfig
	log    log.Logger
}

func NewIPEchoClient(cfg *IPEchoConfig, log log.Logger) (*IPEchoClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &IPEchoClient{
		config: *cfg,
		log:    log,
	}, nil
}

// DirectIP fetches the public IP of the default route, bypassing any proxy.
func (c *IPEchoClient) DirectIP(ctx context.Context) (string, error) {
	return c.fetch(ctx, nil)
}

// ProxiedIP fetches the public IP as observed when routed through proxyURL.
func (c *IPEchoClient) ProxiedIP(ctx context.Context, proxyURL *url.URL) (string, error) {
	if proxyURL == nil {
		return "", errors.New("proxy URL is required")
	}
	return c.fetch(ctx, proxyURL)
}

func (c *IPEchoClient) fetch(ctx context.Context, proxyURL *url.URL) (string, error) {
	// A fresh transport per fetch, an identity probe must not reuse
	// connections that were opened for a different route.
	tc := DefaultHTTPTransportConfig()
	tc.TLSClientConfig.InsecureSkipVerify = c.config.InsecureSkipVerify
	tr, err := NewHTTPTransport(tc)
	if err != nil {
		return "", err
	}
	defer tr.CloseIdleConnections()
	if proxyURL != nil {
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, http.NoBody)
	if err != nil {
		return "", err
	}

	res, err := (&http.Client{Transport: tr}).Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", c.config.URL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", c.config.URL, res.Status)
	}

	b, err := io.ReadAll(io.LimitReader(res.Body, maxEchoBodySize))
	if err != nil {
		return "", fmt.Errorf("read echo response: %w", err)
	}

	ip, err := parseIPEchoResponse(b)
	if err != nil {
		return "", fmt.Errorf("parse echo response: %w", err)
	}

	c.log.Debugf("echo %s reported caller address %s proxied=%t", c.config.URL, ip, proxyURL != nil)

	return ip, nil
}

const maxEchoBodySize = 64 * 1024

// parseIPEchoResponse extracts the caller address from an echo service
// response. Both the httpbin document {"origin": "1.2.3.4"} and the
// ifconfig.co style document {"ip": "1.2.3.4"} are understood.
func parseIPEchoResponse(b []byte) (string, error) {
	var v struct {
		Origin string `json:"origin"`
		IP     string `json:"ip"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return "", err
	}

	ip := v.Origin
	if ip == "" {
		ip = v.IP
	}
	if ip == "" {
		return "", errors.New("no caller address in response")
	}
	return ip, nil
}
