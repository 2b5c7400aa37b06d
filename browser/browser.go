// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package browser starts headless Chrome instances for scraping
// workers via chromedp. Each worker gets its own Chrome process so
// that the proxy configuration is never shared between workers.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/crawlforge/fleetproxy"
	"github.com/crawlforge/fleetproxy/header"
	"github.com/crawlforge/fleetproxy/log"
)

type Config struct {
	// ExecPath is the Chrome binary to launch, empty means chromedp
	// looks it up in well known locations.
	ExecPath string

	// Headless runs Chrome without a display.
	Headless bool

	// UserAgent overrides the browser User-Agent when set.
	UserAgent string

	// NavigationTimeout bounds a single Navigate call including
	// waiting for the document body.
	NavigationTimeout time.Duration

	// ExtraHeaders are header rewrites applied in the browser to every
	// request it makes. Unlike the proxy rewrites they also reach HTTPS
	// targets, which the proxy only passes through in a tunnel.
	ExtraHeaders []header.Header
}

func DefaultConfig() *Config {
	return &Config{
		Headless:          true,
		NavigationTimeout: 45 * time.Second,
	}
}

// Factory starts one Chrome instance per worker.
type Factory struct {
	config Config
	log    log.Logger
}

var _ fleetproxy.DriverFactory = (*Factory)(nil)

func NewFactory(cfg *Config, log log.Logger) *Factory {
	return &Factory{
		config: *cfg,
		log:    log,
	}
}

// New starts a Chrome instance with all traffic routed through
// proxyURL. The returned driver lives until Quit, ctx only bounds the
// startup.
func (f *Factory) New(ctx context.Context, proxyURL *url.URL) (fleetproxy.Driver, error) {
	// The allocator derives from the background context, the browser
	// must outlive the startup call and is shut down with Quit.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), f.allocatorOptions(proxyURL)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &Driver{
		config:        f.config,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}

	// Start the browser eagerly so that launch errors surface here
	// instead of on the first navigation.
	if err := d.run(ctx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	if hdrs := extraHeaders(f.config.ExtraHeaders); len(hdrs) > 0 {
		if err := d.run(ctx, network.Enable(), network.SetExtraHTTPHeaders(hdrs)); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("set extra headers: %w", err)
		}
	}

	f.log.Debugf("chrome started proxy=%s", proxyURL)

	return d, nil
}

func (f *Factory) allocatorOptions(proxyURL *url.URL) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ProxyServer(proxyURL.String()),
		// Chrome bypasses the proxy for loopback targets unless told
		// otherwise, which would let a page probe local services
		// directly.
		chromedp.Flag("proxy-bypass-list", "<-loopback>"),
	)
	if f.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.config.ExecPath))
	}
	if !f.config.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if f.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.config.UserAgent))
	}
	return opts
}

// Driver drives one Chrome instance.
// It is not safe for concurrent use, a worker owns its driver.
type Driver struct {
	config        Config
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

var _ fleetproxy.Driver = (*Driver)(nil)

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (d *Driver) Navigate(ctx context.Context, u string) error {
	if d.config.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.NavigationTimeout)
		defer cancel()
	}
	return d.run(ctx, chromedp.Navigate(u), chromedp.WaitReady("body", chromedp.ByQuery))
}

// Quit closes the browser gracefully and waits for the process to
// exit. If ctx expires first the process is killed.
func (d *Driver) Quit(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(d.browserCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	d.browserCancel()
	d.allocCancel()

	return err
}

// extraHeaders flattens the header rewrites into the set Chrome
// attaches to every request.
func extraHeaders(rewrites []header.Header) network.Headers {
	if len(rewrites) == 0 {
		return nil
	}

	hh := make(http.Header)
	for i := range rewrites {
		rewrites[i].Apply(hh)
	}
	if len(hh) == 0 {
		return nil
	}

	res := make(network.Headers, len(hh))
	for k, vv := range hh {
		res[k] = strings.Join(vv, ", ")
	}
	return res
}

// run executes actions on the browser honoring the caller's deadline
// and cancellation without tearing the browser down.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}
