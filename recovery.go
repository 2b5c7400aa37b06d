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
	"net"
	"strconv"
	"time"

	"github.com/crawlforge/fleetproxy/log"
)

type RecoveryConfig struct {
	// Proxy is the template for per-worker proxy servers, the listen
	// host is taken from its Addr and the port from the worker.
	Proxy *ProxyConfig

	// TargetURL is opened through the driver right after a worker
	// passes the leak test. A proxy the browser cannot reach the target
	// through is as bad as a failed worker. Empty disables the check.
	TargetURL string

	// ConnectivityCheckURL, when set, is probed through every freshly
	// started proxy before a driver is built on top of it.
	ConnectivityCheckURL string

	// SettleDelay is how long to wait after tearing a worker down
	// before rebinding its port.
	SettleDelay time.Duration

	// ShutdownTimeout bounds a driver quit during teardown.
	ShutdownTimeout time.Duration
}

func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		Proxy:           DefaultProxyConfig(),
		SettleDelay:     5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

func (c *RecoveryConfig) Validate() error {
	if c.Proxy == nil {
		return errors.New("proxy config is required")
	}
	if err := c.Proxy.Validate(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	if c.SettleDelay < 0 {
		return errors.New("settle_delay must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

// RecoveryCoordinator builds, verifies and rebuilds worker sessions.
// Initialization enforces the identity invariant: a worker whose
// proxied identity cannot be proven distinct from the host's never
// becomes usable.
type RecoveryCoordinator struct {
	config   RecoveryConfig
	drivers  DriverFactory
	notifier Notifier
	leak     *LeakTester
	log      log.Logger
}

// NewRecoveryCoordinator creates a coordinator with its collaborators.
// A nil drivers factory puts all workers in proxy-only mode, sessions
// then carry no browser but are leak tested all the same.
func NewRecoveryCoordinator(cfg *RecoveryConfig, drivers DriverFactory, notifier Notifier, leak *LeakTester, log log.Logger) (*RecoveryCoordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if leak == nil {
		return nil, errors.New("leak tester is required")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}

	return &RecoveryCoordinator{
		config:   *cfg,
		drivers:  drivers,
		notifier: notifier,
		leak:     leak,
		log:      log,
	}, nil
}

// InitializeWorker builds a verified worker session from scratch.
// The IP-leak test is mandatory, a worker that fails it is torn down,
// reported as a security incident and never returned to the caller.
// A navigation failure right after a passing test aborts the worker
// too, a proxy the target cannot be reached through is useless.
func (rc *RecoveryCoordinator) InitializeWorker(ctx context.Context, workerID, port int) (*WorkerSession, error) {
	rc.log.Infof("initializing worker %d on port %d", workerID, port)

	proxy, err := rc.startProxy(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("worker %d: start proxy on port %d: %w", workerID, port, err)
	}

	driver, err := rc.newDriver(ctx, proxy)
	if err != nil {
		rc.teardown(nil, proxy)
		return nil, fmt.Errorf("worker %d: start driver: %w", workerID, err)
	}

	if _, err := rc.leak.Test(ctx, port, proxy.URL()); err != nil {
		rc.teardown(driver, proxy)
		rc.notifier.Notify(
			"Worker aborted: IP leak verification failed",
			fmt.Sprintf("worker %d on port %d did not pass the IP leak test and was shut down before scraping: %v", workerID, port, err),
			map[string]string{
				"worker_id":                 strconv.Itoa(workerID),
				"proxy_port":                strconv.Itoa(port),
				notifyContextSecurityBreach: "true",
			})
		return nil, fmt.Errorf("worker %d: IP leak test: %w", workerID, err)
	}

	if driver != nil && rc.config.TargetURL != "" {
		if err := driver.Navigate(ctx, rc.config.TargetURL); err != nil {
			rc.teardown(driver, proxy)
			rc.notifier.Notify(
				"Worker aborted: navigation failed",
				fmt.Sprintf("worker %d could not open %s through its fresh proxy: %v", workerID, rc.config.TargetURL, err),
				map[string]string{
					"worker_id":  strconv.Itoa(workerID),
					"proxy_port": strconv.Itoa(port),
				})
			return nil, fmt.Errorf("worker %d: navigate to %s: %w", workerID, rc.config.TargetURL, err)
		}
	}

	rc.log.Infof("worker %d initialized on port %d", workerID, port)

	return &WorkerSession{ID: workerID, Port: port, Proxy: proxy, Driver: driver}, nil
}

// Recover tears the session down and builds a verified replacement on
// the same port. On failure the replacement resources are stopped and
// an error is returned, the old session is unusable either way.
func (rc *RecoveryCoordinator) Recover(ctx context.Context, s *WorkerSession) (*WorkerSession, error) {
	rc.log.Infof("recovering worker %d on port %d", s.ID, s.Port)

	rc.teardown(s.Driver, s.Proxy)

	// Give the OS a moment to fully release the listening port.
	select {
	case <-time.After(rc.config.SettleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	proxy, err := rc.startProxy(ctx, s.Port)
	if err != nil {
		return nil, fmt.Errorf("worker %d: restart proxy on port %d: %w", s.ID, s.Port, err)
	}

	driver, err := rc.newDriver(ctx, proxy)
	if err != nil {
		rc.teardown(nil, proxy)
		return nil, fmt.Errorf("worker %d: restart driver: %w", s.ID, err)
	}

	if _, err := rc.leak.Test(ctx, s.Port, proxy.URL()); err != nil {
		rc.teardown(driver, proxy)
		return nil, fmt.Errorf("worker %d: IP leak test after recovery: %w", s.ID, err)
	}

	rc.log.Infof("worker %d recovered", s.ID)

	return &WorkerSession{ID: s.ID, Port: s.Port, Proxy: proxy, Driver: driver}, nil
}

// startProxy builds and starts a fresh instance on the worker's port.
func (rc *RecoveryCoordinator) startProxy(ctx context.Context, port int) (*ProxyInstance, error) {
	cfg := *rc.config.Proxy
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil || host == "" {
		host = "127.0.0.1"
	}
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))

	pi, err := NewProxyInstance(&cfg, rc.log)
	if err != nil {
		return nil, err
	}
	if err := pi.Start(); err != nil {
		return nil, err
	}

	if u := rc.config.ConnectivityCheckURL; u != "" {
		if err := pi.CheckConnectivity(ctx, u); err != nil {
			rc.teardown(nil, pi)
			return nil, err
		}
	}

	return pi, nil
}

func (rc *RecoveryCoordinator) newDriver(ctx context.Context, proxy *ProxyInstance) (Driver, error) {
	if rc.drivers == nil {
		// Proxy-only mode, the identity invariant is enforced all the same.
		return nil, nil
	}
	return rc.drivers.New(ctx, proxy.URL())
}

// teardown stops a worker's resources best effort. A failure to stop
// one resource is logged and never prevents stopping the other.
func (rc *RecoveryCoordinator) teardown(d Driver, p *ProxyInstance) {
	if err := closeWorkerResources(d, p, rc.config.ShutdownTimeout); err != nil {
		rc.log.Errorf("worker teardown: %v", err)
	}
}
