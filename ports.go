// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/crawlforge/fleetproxy/log"
)

// PortAllocator finds free local TCP ports for worker proxies before
// the workers are started.
type PortAllocator struct {
	// Host is the address the probes connect to.
	Host string
	// BasePort is the first candidate port, workers get consecutive
	// ports counted up from it.
	BasePort int
	// DialTimeout bounds a single port probe.
	DialTimeout time.Duration

	Log log.Logger
}

func DefaultPortAllocator() *PortAllocator {
	return &PortAllocator{
		Host:        "127.0.0.1",
		BasePort:    8081,
		DialTimeout: 1 * time.Second,
		Log:         log.NopLogger,
	}
}

// VerifyAvailable probes count consecutive ports starting at BasePort
// and returns the ones confirmed free, in ascending order.
// A port is free when the probe connect is refused. A port that accepts
// the connection is taken by another process and skipped with a warning,
// a port whose probe fails in any other way is skipped too.
// The result may be shorter than count, the caller must reduce its
// concurrency accordingly, this is not a fatal condition.
func (a *PortAllocator) VerifyAvailable(ctx context.Context, count int) []int {
	free := make([]int, 0, count)
	d := net.Dialer{Timeout: a.DialTimeout}

	for i := 0; i < count; i++ {
		port := a.BasePort + i
		addr := net.JoinHostPort(a.Host, strconv.Itoa(port))

		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			a.Log.Infof("port %d is taken by another process, skipping", port)
			continue
		}
		if ctx.Err() != nil {
			a.Log.Infof("port probing canceled after %d ports", i)
			break
		}
		if !errors.Is(err, syscall.ECONNREFUSED) {
			a.Log.Infof("cannot confirm port %d is free, skipping: %v", port, err)
			continue
		}

		free = append(free, port)
	}

	a.Log.Debugf("verified %d of %d requested ports starting at %d", len(free), count, a.BasePort)

	return free
}
