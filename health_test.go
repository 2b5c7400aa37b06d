// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/crawlforge/fleetproxy/log"
)

func issueKinds(issues []HealthIssue) []string {
	kinds := make([]string, 0, len(issues))
	for _, i := range issues {
		kinds = append(kinds, i.Kind)
	}
	return kinds
}

func hasIssue(issues []HealthIssue, kind string) bool {
	for _, i := range issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

func TestLeakTesterTest(t *testing.T) {
	ctx := context.Background()
	proxyURL := mustParseURL(t, "http://127.0.0.1:8081")

	t.Run("distinct addresses pass and are recorded", func(t *testing.T) {
		r := NewIdentityRegistry(log.NopLogger)
		lt := &LeakTester{
			Echo:     &fakeEcho{direct: "1.2.3.4", proxied: "5.6.7.8"},
			Registry: r,
			Log:      log.NopLogger,
		}

		ip, err := lt.Test(ctx, 8081, proxyURL)
		if err != nil {
			t.Fatalf("Test(): %v", err)
		}
		if ip != "5.6.7.8" {
			t.Errorf("Test() = %q, want %q", ip, "5.6.7.8")
		}

		s := r.Snapshot()
		if len(s) != 1 || s[0].Port != 8081 || s[0].IP != "5.6.7.8" {
			t.Errorf("registry snapshot = %v, want the proxied IP under port 8081", s)
		}
	})

	t.Run("equal addresses fail with ErrIPLeak", func(t *testing.T) {
		lt := &LeakTester{
			Echo:     &fakeEcho{direct: "1.2.3.4", proxied: "1.2.3.4"},
			Registry: NewIdentityRegistry(log.NopLogger),
			Log:      log.NopLogger,
		}

		if _, err := lt.Test(ctx, 8081, proxyURL); !errors.Is(err, ErrIPLeak) {
			t.Errorf("Test() error = %v, want ErrIPLeak", err)
		}
	})

	t.Run("fetch failures fail the test", func(t *testing.T) {
		r := NewIdentityRegistry(log.NopLogger)
		lt := &LeakTester{
			Echo:     &fakeEcho{directErr: errors.New("echo unreachable")},
			Registry: r,
			Log:      log.NopLogger,
		}
		if _, err := lt.Test(ctx, 8081, proxyURL); err == nil || errors.Is(err, ErrIPLeak) {
			t.Errorf("Test() error = %v, want a plain fetch error", err)
		}

		lt.Echo = &fakeEcho{direct: "1.2.3.4", proxiedErr: errors.New("proxy refused")}
		if _, err := lt.Test(ctx, 8081, proxyURL); err == nil || errors.Is(err, ErrIPLeak) {
			t.Errorf("Test() error = %v, want a plain fetch error", err)
		}

		if len(r.Snapshot()) != 0 {
			t.Error("failed tests must not record an identity")
		}
	})
}

func TestHealthMonitorCheck(t *testing.T) {
	ctx := context.Background()

	newMonitor := func(e IPEcho) *HealthMonitor {
		return &HealthMonitor{
			LeakTester: &LeakTester{
				Echo:     e,
				Registry: NewIdentityRegistry(log.NopLogger),
				Log:      log.NopLogger,
			},
			Log: log.NopLogger,
		}
	}

	t.Run("healthy session", func(t *testing.T) {
		m := newMonitor(&fakeEcho{direct: "1.2.3.4", proxied: "5.6.7.8"})
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: newTestInstance(t), Driver: &fakeDriver{url: "https://example.com"}}

		if issues := m.Check(ctx, s, false); len(issues) != 0 {
			t.Errorf("Check() = %v, want no issues", issues)
		}
	})

	t.Run("unresponsive driver", func(t *testing.T) {
		m := newMonitor(&fakeEcho{direct: "1.2.3.4", proxied: "5.6.7.8"})
		d := &fakeDriver{urlErr: errors.New("session deleted")}
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: newTestInstance(t), Driver: d}

		issues := m.Check(ctx, s, false)
		if !hasIssue(issues, IssueDriverUnresponsive) {
			t.Errorf("Check() = %v, want %s", issueKinds(issues), IssueDriverUnresponsive)
		}
	})

	t.Run("stopped proxy", func(t *testing.T) {
		m := newMonitor(&fakeEcho{direct: "1.2.3.4", proxied: "5.6.7.8"})
		pi := newTestInstance(t)
		pi.Stop()
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: pi, Driver: &fakeDriver{}}

		issues := m.Check(ctx, s, false)
		if !hasIssue(issues, IssueProxyNotRunning) {
			t.Errorf("Check() = %v, want %s", issueKinds(issues), IssueProxyNotRunning)
		}
	})

	t.Run("issues accumulate independently", func(t *testing.T) {
		m := newMonitor(&fakeEcho{direct: "1.2.3.4", proxied: "5.6.7.8"})
		pi := newTestInstance(t)
		pi.Stop()
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: pi, Driver: &fakeDriver{urlErr: errors.New("gone")}}

		issues := m.Check(ctx, s, false)
		if !hasIssue(issues, IssueDriverUnresponsive) || !hasIssue(issues, IssueProxyNotRunning) {
			t.Errorf("Check() = %v, want both driver and proxy issues", issueKinds(issues))
		}
	})

	t.Run("leak detected", func(t *testing.T) {
		m := newMonitor(&fakeEcho{direct: "1.2.3.4", proxied: "1.2.3.4"})
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: newTestInstance(t), Driver: &fakeDriver{}}

		issues := m.Check(ctx, s, true)
		if !hasIssue(issues, IssueIPLeakDetected) {
			t.Errorf("Check() = %v, want %s", issueKinds(issues), IssueIPLeakDetected)
		}
	})

	t.Run("leak test error", func(t *testing.T) {
		m := newMonitor(&fakeEcho{directErr: errors.New("echo down")})
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: newTestInstance(t), Driver: &fakeDriver{}}

		issues := m.Check(ctx, s, true)
		if !hasIssue(issues, IssueLeakTestError) {
			t.Errorf("Check() = %v, want %s", issueKinds(issues), IssueLeakTestError)
		}
		if hasIssue(issues, IssueIPLeakDetected) {
			t.Errorf("Check() = %v, an echo failure is not a detected leak", issueKinds(issues))
		}
	})

	t.Run("leak test skipped by default", func(t *testing.T) {
		m := newMonitor(&fakeEcho{directErr: errors.New("echo down")})
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: newTestInstance(t), Driver: &fakeDriver{}}

		if issues := m.Check(ctx, s, false); len(issues) != 0 {
			t.Errorf("Check() = %v, want no issues without the leak test", issues)
		}
	})

	t.Run("driverless session has no driver issue", func(t *testing.T) {
		m := newMonitor(&fakeEcho{direct: "1.2.3.4", proxied: "5.6.7.8"})
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: newTestInstance(t)}

		if issues := m.Check(ctx, s, false); len(issues) != 0 {
			t.Errorf("Check() = %v, want no issues for a proxy-only session", issues)
		}
	})

	t.Run("nil session is a single issue", func(t *testing.T) {
		m := newMonitor(&fakeEcho{})
		if issues := m.Check(ctx, nil, true); len(issues) != 1 {
			t.Errorf("Check(nil) = %v, want exactly one issue", issues)
		}
	})
}
