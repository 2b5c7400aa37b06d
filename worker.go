// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/multierr"
)

// Driver is the browser automation handle a worker scrapes with.
// The scraping logic itself lives outside this module.
type Driver interface {
	// CurrentURL returns the URL of the active page. It doubles as the
	// responsiveness probe for health checks.
	CurrentURL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Quit(ctx context.Context) error
}

// DriverFactory builds a Driver configured to route all its traffic
// through the given local proxy.
type DriverFactory interface {
	New(ctx context.Context, proxyURL *url.URL) (Driver, error)
}

// WorkerSession pairs one browser driver with one proxy instance.
// Sessions are recreated wholesale on every recovery, their parts are
// never shared between workers. Driver is nil when the fleet runs in
// proxy-only mode.
type WorkerSession struct {
	ID     int
	Port   int
	Proxy  *ProxyInstance
	Driver Driver

	// Issues holds the outcome of the last health check, empty means
	// healthy.
	Issues []HealthIssue
}

// Close stops both session resources. The driver is always asked to
// quit first so it cannot keep connections into the proxy open, and a
// failure to stop one resource never prevents stopping the other.
func (s *WorkerSession) Close(timeout time.Duration) error {
	return closeWorkerResources(s.Driver, s.Proxy, timeout)
}

func closeWorkerResources(d Driver, p *ProxyInstance, timeout time.Duration) error {
	var merr error
	if d != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		merr = multierr.Append(merr, d.Quit(ctx))
		cancel()
	}
	if p != nil {
		merr = multierr.Append(merr, p.Stop())
	}
	return merr
}
