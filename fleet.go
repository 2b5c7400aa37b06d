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
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crawlforge/fleetproxy/log"
)

type FleetConfig struct {
	// Workers is the number of scraping workers to run.
	Workers int
	// BasePort is the first local proxy port, workers use consecutive
	// ports counted up from it.
	BasePort int
	// HealthInterval is the time between two health checks of a worker.
	HealthInterval time.Duration
	// LeakTestEvery includes the IP-leak test in every n-th health
	// check. Zero restricts leak testing to worker initialization,
	// where it is always run.
	LeakTestEvery int
}

func DefaultFleetConfig() *FleetConfig {
	return &FleetConfig{
		Workers:        3,
		BasePort:       8081,
		HealthInterval: 1 * time.Minute,
		LeakTestEvery:  5,
	}
}

func (c *FleetConfig) Validate() error {
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.BasePort < 1 || c.BasePort+c.Workers-1 > 65535 {
		return fmt.Errorf("worker ports %d-%d out of range", c.BasePort, c.BasePort+c.Workers-1)
	}
	if c.HealthInterval <= 0 {
		return errors.New("health_interval must be positive")
	}
	if c.LeakTestEvery < 0 {
		return errors.New("leak_test_every must not be negative")
	}
	return nil
}

// Fleet supervises all scraping workers of a process. Every worker
// owns exactly one proxy instance and one driver, nothing but the
// identity registry is shared between them.
type Fleet struct {
	config      FleetConfig
	coordinator *RecoveryCoordinator
	monitor     *HealthMonitor
	allocator   *PortAllocator
	notifier    Notifier
	log         log.Logger

	total       atomic.Int32
	initialized atomic.Int32
	disabled    atomic.Int32
}

func NewFleet(cfg *FleetConfig, rc *RecoveryCoordinator, hm *HealthMonitor, notifier Notifier, log log.Logger) (*Fleet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, errors.New("recovery coordinator is required")
	}
	if hm == nil {
		return nil, errors.New("health monitor is required")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}

	a := DefaultPortAllocator()
	a.BasePort = cfg.BasePort
	a.Log = log

	return &Fleet{
		config:      *cfg,
		coordinator: rc,
		monitor:     hm,
		allocator:   a,
		notifier:    notifier,
		log:         log,
	}, nil
}

// Run verifies the port range, then initializes and supervises one
// goroutine per worker until ctx is canceled. A worker that cannot be
// verified or recovered is disabled without stopping the rest of the
// fleet, Run fails only when no worker is left.
func (f *Fleet) Run(ctx context.Context) error {
	ports := f.allocator.VerifyAvailable(ctx, f.config.Workers)
	if len(ports) == 0 {
		return fmt.Errorf("no free worker ports in range %d-%d", f.config.BasePort, f.config.BasePort+f.config.Workers-1)
	}
	if len(ports) < f.config.Workers {
		f.log.Infof("[WARN] only %d of %d requested worker ports are free, reducing fleet size", len(ports), f.config.Workers)
	}
	f.total.Store(int32(len(ports)))

	f.log.Infof("starting fleet of %d worker(s) on ports %v", len(ports), ports)

	g, ctx := errgroup.WithContext(ctx)
	for i, port := range ports {
		id, port := i+1, port
		g.Go(func() error {
			return f.runWorker(ctx, id, port)
		})
	}
	return g.Wait()
}

// Ready reports whether every worker has been initialized and passed
// its mandatory identity verification.
func (f *Fleet) Ready() bool {
	t := f.total.Load()
	return t > 0 && f.initialized.Load() == t
}

func (f *Fleet) runWorker(ctx context.Context, id, port int) error {
	s, err := f.coordinator.InitializeWorker(ctx, id, port)
	if err != nil {
		f.log.Errorf("worker %d failed to initialize: %v", id, err)
		return f.disable()
	}
	f.initialized.Add(1)

	defer func() {
		if s != nil {
			f.coordinator.teardown(s.Driver, s.Proxy)
		}
	}()

	t := time.NewTicker(f.config.HealthInterval)
	defer t.Stop()

	checks := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		checks++
		withLeak := f.config.LeakTestEvery > 0 && checks%f.config.LeakTestEvery == 0

		issues := f.monitor.Check(ctx, s, withLeak)
		s.Issues = issues
		if len(issues) == 0 {
			continue
		}

		f.log.Errorf("worker %d is unhealthy: %v", id, issues)

		ns, err := f.coordinator.Recover(ctx, s)
		if err != nil {
			// Recover already tore down whatever it built.
			s = nil
			if ctx.Err() != nil {
				return nil
			}
			f.log.Errorf("worker %d recovery failed: %v", id, err)
			f.notifier.Notify(
				"Worker disabled: recovery failed",
				fmt.Sprintf("worker %d on port %d could not be recovered and is disabled: %v", id, port, err),
				map[string]string{
					"worker_id":  strconv.Itoa(id),
					"proxy_port": strconv.Itoa(port),
				})
			return f.disable()
		}
		s = ns
	}
}

// disable marks one worker permanently failed. The fleet keeps running
// until its last worker is disabled.
func (f *Fleet) disable() error {
	if f.disabled.Add(1) == f.total.Load() {
		return errors.New("all workers are disabled")
	}
	return nil
}
