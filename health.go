// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/crawlforge/fleetproxy/log"
)

// Issue kinds reported by a worker health check.
const (
	IssueDriverUnresponsive = "driver_unresponsive"
	IssueProxyNotRunning    = "proxy_not_running"
	IssueIPLeakDetected     = "ip_leak_detected"
	IssueLeakTestError      = "leak_test_error"
)

// HealthIssue is one problem found by a worker health check.
type HealthIssue struct {
	Kind   string
	Detail string
}

func (i HealthIssue) String() string {
	return i.Kind + ": " + i.Detail
}

// IPEcho is the echo capability the leak test is built on.
type IPEcho interface {
	DirectIP(ctx context.Context) (string, error)
	ProxiedIP(ctx context.Context, proxyURL *url.URL) (string, error)
}

// ErrIPLeak reports that traffic routed through a worker proxy exits
// with the host's own public address.
var ErrIPLeak = errors.New("proxied traffic exits with the direct public IP")

// LeakTester verifies that a worker's proxied identity is distinct from
// the host's direct identity.
type LeakTester struct {
	Echo     IPEcho
	Registry *IdentityRegistry
	Log      log.Logger
}

// Test fetches the public IP directly and again through the worker
// proxy. It passes only when both fetches succeed and the two addresses
// differ, anything else fails the test. On a pass the proxied address
// is recorded in the registry, where a collision with another worker is
// warned about but does not fail the test. The returned error matches
// ErrIPLeak when the two addresses are equal.
func (t *LeakTester) Test(ctx context.Context, port int, proxyURL *url.URL) (string, error) {
	direct, err := t.Echo.DirectIP(ctx)
	if err != nil {
		return "", fmt.Errorf("direct IP fetch: %w", err)
	}

	proxied, err := t.Echo.ProxiedIP(ctx, proxyURL)
	if err != nil {
		return "", fmt.Errorf("proxied IP fetch: %w", err)
	}

	if direct == proxied {
		return "", fmt.Errorf("%w: %s", ErrIPLeak, direct)
	}

	t.Log.Infof("leak test passed port=%d direct=%s proxied=%s", port, direct, proxied)
	t.Registry.RecordAndCheck(port, proxied)

	return proxied, nil
}

// HealthMonitor runs on-demand worker health checks.
type HealthMonitor struct {
	LeakTester *LeakTester
	// DriverTimeout bounds the driver responsiveness probe, zero means
	// no bound.
	DriverTimeout time.Duration
	Log           log.Logger
}

// Check inspects one worker session and returns every problem it
// found, empty means healthy. The probes are independent, a failing
// resource cannot mask the state of the others. Check itself never
// fails, an unprobeable session is reported as an issue.
func (m *HealthMonitor) Check(ctx context.Context, s *WorkerSession, includeLeakTest bool) []HealthIssue {
	if s == nil {
		return []HealthIssue{{Kind: IssueProxyNotRunning, Detail: "no worker session"}}
	}

	var issues []HealthIssue

	if s.Driver != nil {
		dctx := ctx
		if m.DriverTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, m.DriverTimeout)
			defer cancel()
		}
		if u, err := s.Driver.CurrentURL(dctx); err != nil {
			issues = append(issues, HealthIssue{Kind: IssueDriverUnresponsive, Detail: err.Error()})
		} else {
			m.Log.Debugf("worker %d driver at %s", s.ID, u)
		}
	}

	if s.Proxy == nil || !s.Proxy.Running() {
		issues = append(issues, HealthIssue{
			Kind:   IssueProxyNotRunning,
			Detail: fmt.Sprintf("proxy on port %d is not serving", s.Port),
		})
	}

	if includeLeakTest {
		issues = append(issues, m.leakIssues(ctx, s)...)
	}

	if len(issues) > 0 {
		m.Log.Infof("worker %d health check found %d issue(s): %v", s.ID, len(issues), issues)
	}
	return issues
}

func (m *HealthMonitor) leakIssues(ctx context.Context, s *WorkerSession) []HealthIssue {
	if m.LeakTester == nil {
		return []HealthIssue{{Kind: IssueLeakTestError, Detail: "no leak tester configured"}}
	}
	if s.Proxy == nil {
		return []HealthIssue{{Kind: IssueLeakTestError, Detail: "no proxy instance to test"}}
	}

	if _, err := m.LeakTester.Test(ctx, s.Port, s.Proxy.URL()); err != nil {
		kind := IssueLeakTestError
		if errors.Is(err, ErrIPLeak) {
			kind = IssueIPLeakDetected
		}
		return []HealthIssue{{Kind: kind, Detail: err.Error()}}
	}
	return nil
}
