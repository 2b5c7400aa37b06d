// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/crawlforge/fleetproxy/log"
)

// fakeDriver is a scriptable Driver.
type fakeDriver struct {
	mu        sync.Mutex
	url       string
	urlErr    error
	navErr    error
	quitErr   error
	navigated []string
	quits     int
}

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.urlErr != nil {
		return "", d.urlErr
	}
	return d.url, nil
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.navErr != nil {
		return d.navErr
	}
	d.navigated = append(d.navigated, url)
	d.url = url
	return nil
}

func (d *fakeDriver) Quit(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return d.quitErr
}

func (d *fakeDriver) setURLErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urlErr = err
}

func (d *fakeDriver) setQuitErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quitErr = err
}

func (d *fakeDriver) quitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quits
}

func (d *fakeDriver) navigatedTo() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigated...)
}

// fakeDriverFactory builds fakeDrivers and remembers them in creation
// order. Configured errors apply to drivers created after the change.
type fakeDriverFactory struct {
	mu      sync.Mutex
	newErr  error
	navErr  error
	created []*fakeDriver
	proxies []*url.URL
}

func (f *fakeDriverFactory) New(ctx context.Context, proxyURL *url.URL) (Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	d := &fakeDriver{navErr: f.navErr}
	f.created = append(f.created, d)
	f.proxies = append(f.proxies, proxyURL)
	return d, nil
}

func (f *fakeDriverFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeDriverFactory) driver(i int) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

// fakeEcho is a scriptable IPEcho.
type fakeEcho struct {
	mu         sync.Mutex
	direct     string
	directErr  error
	proxied    string
	proxiedErr error
}

func (e *fakeEcho) DirectIP(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.direct, e.directErr
}

func (e *fakeEcho) ProxiedIP(ctx context.Context, proxyURL *url.URL) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proxied, e.proxiedErr
}

func (e *fakeEcho) setProxied(ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proxied = ip
}

type alert struct {
	title   string
	details string
	context map[string]string
}

// fakeNotifier records alerts.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []alert
}

func (n *fakeNotifier) Notify(title, details string, context map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert{title: title, details: details, context: context})
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func (n *fakeNotifier) alert(i int) alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.alerts[i]
}

func (n *fakeNotifier) hasContext(key, value string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range n.alerts {
		if a.context[key] == value {
			return true
		}
	}
	return false
}

func mustParseURL(tb testing.TB, s string) *url.URL {
	tb.Helper()
	u, err := url.Parse(s)
	if err != nil {
		tb.Fatal(err)
	}
	return u
}

// testProxyConfig returns a worker proxy config bound to an ephemeral
// loopback port with an upstream that is never dialed.
func testProxyConfig(tb testing.TB) *ProxyConfig {
	cfg := DefaultProxyConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.UpstreamProxyURI = mustParseURL(tb, "http://203.0.113.100:3128")
	return cfg
}

// newTestInstance builds and starts a proxy instance for tests.
func newTestInstance(tb testing.TB) *ProxyInstance {
	tb.Helper()

	pi, err := NewProxyInstance(testProxyConfig(tb), log.NopLogger)
	if err != nil {
		tb.Fatal(err)
	}
	if err := pi.Start(); err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { pi.Stop() })
	return pi
}

// waitUntil polls cond until it holds or the timeout expires.
func waitUntil(tb testing.TB, timeout time.Duration, cond func() bool, msg string) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("condition not met within %s: %s", timeout, msg)
}
