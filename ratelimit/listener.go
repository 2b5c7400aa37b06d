// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ratelimit caps the bandwidth of accepted connections.
package ratelimit

import (
	"net"

	"golang.org/x/time/rate"
)

const defaultMaxBurstSize = 4 * 1024 * 1024 // Must be bigger than the biggest request.

func newRateLimiter(bandwidth int64) *rate.Limiter {
	// Relate the burst size to the bandwidth limit, use the default up
	// to 2 Gbit/s then scale.
	maxBurstSize := bandwidth / 64
	if maxBurstSize < defaultMaxBurstSize {
		maxBurstSize = defaultMaxBurstSize
	}
	return rate.NewLimiter(rate.Limit(bandwidth), int(maxBurstSize))
}

// Listener wraps a net.Listener limiting the receive and transmit
// bandwidth of all accepted connections together.
type Listener struct {
	net.Listener
	rxLimiter *rate.Limiter
	txLimiter *rate.Limiter
}

func NewListener(l net.Listener, rxBandwidth, txBandwidth int64) *Listener {
	var rxLimiter, txLimiter *rate.Limiter
	if rxBandwidth > 0 {
		rxLimiter = newRateLimiter(rxBandwidth)
	}
	if txBandwidth > 0 {
		txLimiter = newRateLimiter(txBandwidth)
	}

	return &Listener{
		Listener:  l,
		rxLimiter: rxLimiter,
		txLimiter: txLimiter,
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	return &Conn{
		Conn:      c,
		rxLimiter: l.rxLimiter,
		txLimiter: l.txLimiter,
	}, nil
}
