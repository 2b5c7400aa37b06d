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
	"net/http"
	"net/url"
	"sync"

	"github.com/crawlforge/fleetproxy/log"
)

// ProxyInstance owns the lifecycle of one worker's proxy server.
// Instances are single use, recovery never restarts a stopped instance,
// it always builds a fresh one once the port is released.
type ProxyInstance struct {
	config ProxyConfig
	log    log.Logger

	mu      sync.Mutex
	server  *ProxyServer
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	started bool
	stopped bool
}

func NewProxyInstance(cfg *ProxyConfig, log log.Logger) (*ProxyInstance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ProxyInstance{
		config: *cfg,
		log:    log,
	}, nil
}

// Start binds the listener and runs the accept loop in a background
// goroutine. It fails when the configured port is already taken.
func (pi *ProxyInstance) Start() error {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if pi.started {
		return errors.New("proxy instance is single use and was already started")
	}

	ps, err := NewProxyServer(&pi.config, nil, pi.log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	pi.server = ps
	pi.cancel = cancel
	pi.done = done
	pi.started = true

	go func() {
		defer close(done)
		if err := ps.Run(ctx); err != nil {
			pi.runErr = err
			pi.log.Errorf("proxy server exited: %v", err)
		}
	}()

	return nil
}

// Stop closes the listener and all client connections and waits for the
// accept loop to exit. It is safe to call more than once.
func (pi *ProxyInstance) Stop() error {
	pi.mu.Lock()
	if !pi.started || pi.stopped {
		pi.mu.Unlock()
		return nil
	}
	pi.stopped = true
	cancel, done := pi.cancel, pi.done
	pi.mu.Unlock()

	cancel()
	<-done

	return pi.runErr
}

// Running reports whether the accept loop is still serving.
func (pi *ProxyInstance) Running() bool {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if !pi.started || pi.stopped {
		return false
	}
	select {
	case <-pi.done:
		// The run loop exited on its own.
		return false
	default:
		return true
	}
}

// URL returns the proxy URL local clients are configured with.
func (pi *ProxyInstance) URL() *url.URL {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if pi.server != nil {
		return pi.server.URL()
	}
	return &url.URL{Scheme: "http", Host: pi.config.Addr}
}

// CheckConnectivity issues a HEAD request for target through the
// instance. It catches a proxy that came up but cannot reach the
// outside world before a worker is built on top of it.
func (pi *ProxyInstance) CheckConnectivity(ctx context.Context, target string) error {
	tc := DefaultHTTPTransportConfig()
	tr, err := NewHTTPTransport(tc)
	if err != nil {
		return err
	}
	defer tr.CloseIdleConnections()
	tr.Proxy = http.ProxyURL(pi.URL())

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, http.NoBody)
	if err != nil {
		return err
	}

	res, err := (&http.Client{Transport: tr}).Do(req)
	if err != nil {
		return fmt.Errorf("connectivity check %s: %w", target, err)
	}
	res.Body.Close()

	// 4xx from the origin still proves the chain works, 5xx is either a
	// broken origin or this proxy reporting a transport failure.
	if res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("connectivity check %s: status %s", target, res.Status)
	}
	return nil
}
