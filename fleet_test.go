// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/crawlforge/fleetproxy/log"
)

func newTestFleet(tb testing.TB, cfg *FleetConfig, e IPEcho, df DriverFactory, n Notifier) *Fleet {
	tb.Helper()

	lt := &LeakTester{
		Echo:     e,
		Registry: NewIdentityRegistry(log.NopLogger),
		Log:      log.NopLogger,
	}
	rc, err := NewRecoveryCoordinator(testRecoveryConfig(tb), df, n, lt, log.NopLogger)
	if err != nil {
		tb.Fatal(err)
	}
	hm := &HealthMonitor{LeakTester: lt, Log: log.NopLogger}

	fl, err := NewFleet(cfg, rc, hm, n, log.NopLogger)
	if err != nil {
		tb.Fatal(err)
	}
	return fl
}

func startTestFleet(tb testing.TB, fl *Fleet) (stop func() error) {
	tb.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fl.Run(ctx)
	}()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			tb.Fatal("fleet did not shut down")
			return nil
		}
	}
}

func TestFleetRun(t *testing.T) {
	t.Run("initializes workers and becomes ready", func(t *testing.T) {
		base, ls := listenPortRun(t, 2)
		for _, l := range ls {
			l.Close()
		}

		cfg := DefaultFleetConfig()
		cfg.Workers = 2
		cfg.BasePort = base
		cfg.HealthInterval = 25 * time.Millisecond
		cfg.LeakTestEvery = 0

		f := new(fakeDriverFactory)
		fl := newTestFleet(t, cfg, &fakeEcho{direct: "1.1.1.1", proxied: "2.2.2.2"}, f, new(fakeNotifier))

		stop := startTestFleet(t, fl)

		waitUntil(t, 5*time.Second, fl.Ready, "fleet ready")
		if f.count() != 2 {
			t.Errorf("driver factory built %d drivers, want 2", f.count())
		}

		if err := stop(); err != nil {
			t.Errorf("Run(): %v", err)
		}
		for i := 0; i < f.count(); i++ {
			if f.driver(i).quitCount() == 0 {
				t.Errorf("driver %d was not quit on shutdown", i)
			}
		}
	})

	t.Run("recovers an unhealthy worker", func(t *testing.T) {
		base, ls := listenPortRun(t, 1)
		ls[0].Close()

		cfg := DefaultFleetConfig()
		cfg.Workers = 1
		cfg.BasePort = base
		cfg.HealthInterval = 25 * time.Millisecond
		cfg.LeakTestEvery = 0

		f := new(fakeDriverFactory)
		fl := newTestFleet(t, cfg, &fakeEcho{direct: "1.1.1.1", proxied: "2.2.2.2"}, f, new(fakeNotifier))

		stop := startTestFleet(t, fl)

		waitUntil(t, 5*time.Second, fl.Ready, "fleet ready")

		f.driver(0).setURLErr(errors.New("driver hung"))
		waitUntil(t, 5*time.Second, func() bool { return f.count() >= 2 }, "replacement driver built")

		if err := stop(); err != nil {
			t.Errorf("Run(): %v", err)
		}
	})

	t.Run("leaking workers disable the fleet", func(t *testing.T) {
		base, ls := listenPortRun(t, 2)
		for _, l := range ls {
			l.Close()
		}

		cfg := DefaultFleetConfig()
		cfg.Workers = 2
		cfg.BasePort = base
		cfg.HealthInterval = 25 * time.Millisecond

		f := new(fakeDriverFactory)
		n := new(fakeNotifier)
		fl := newTestFleet(t, cfg, &fakeEcho{direct: "1.1.1.1", proxied: "1.1.1.1"}, f, n)

		err := fl.Run(context.Background())
		if err == nil || !strings.Contains(err.Error(), "disabled") {
			t.Errorf("Run() error = %v, want all workers disabled", err)
		}
		if fl.Ready() {
			t.Error("fleet with no verified worker reports ready")
		}
		if !n.hasContext("security_breach", "true") {
			t.Errorf("no security alert raised, alerts: %v", n.alerts)
		}
	})

	t.Run("reduces fleet to the free ports", func(t *testing.T) {
		base, ls := listenPortRun(t, 3)
		// Keep the first and third port occupied.
		ls[1].Close()

		cfg := DefaultFleetConfig()
		cfg.Workers = 3
		cfg.BasePort = base
		cfg.HealthInterval = time.Minute
		cfg.LeakTestEvery = 0

		f := new(fakeDriverFactory)
		fl := newTestFleet(t, cfg, &fakeEcho{direct: "1.1.1.1", proxied: "2.2.2.2"}, f, new(fakeNotifier))

		stop := startTestFleet(t, fl)

		waitUntil(t, 5*time.Second, fl.Ready, "fleet ready")
		if f.count() != 1 {
			t.Fatalf("driver factory built %d drivers, want 1", f.count())
		}
		wantPort := strconv.Itoa(base + 1)
		if got := f.proxies[0].Port(); got != wantPort {
			t.Errorf("worker proxy bound to port %s, want %s", got, wantPort)
		}

		if err := stop(); err != nil {
			t.Errorf("Run(): %v", err)
		}
	})
}
