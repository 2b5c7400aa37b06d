// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crawlforge/fleetproxy/header"
	"github.com/crawlforge/fleetproxy/httplog"
	"github.com/crawlforge/fleetproxy/log"
	"github.com/crawlforge/fleetproxy/middleware"
)

type ProxyConfig struct {
	// Addr is the address the proxy listens on.
	// Worker proxies bind to a loopback port so that only the local
	// browser can reach them.
	Addr string

	// UpstreamProxyURI is the upstream proxy all traffic is forwarded
	// through. Supported schemes are http, https and socks5.
	// Credentials are taken from the URL userinfo and are presented to
	// the upstream proxy only, never to the origin server.
	UpstreamProxyURI *url.URL

	// DenyDomains rejects requests to matching hosts with 403 Forbidden.
	DenyDomains Matcher

	// RequestHeaders are operator configured rewrites applied to
	// forwarded requests after the built-in sanitization, e.g. to scrub
	// extra tracking headers or pin Accept-Language across the fleet.
	RequestHeaders header.Headers

	// Transport configures the outbound transport for plain HTTP
	// forwarding. If nil, defaults derived from ConnectTimeout and
	// RequestTimeout are used. Tunneled connections use the dialer and
	// are not affected.
	Transport *HTTPTransportConfig

	// RequestTimeout is the total time budget for a forwarded request,
	// from dialing the upstream proxy to receiving response headers.
	RequestTimeout time.Duration
	// ConnectTimeout bounds establishing a tunnel through the upstream proxy.
	ConnectTimeout time.Duration
	// TunnelIdleTimeout closes an established tunnel after no data has
	// been relayed in either direction for this long.
	TunnelIdleTimeout time.Duration
	// TunnelActivityInterval is how often a tunnel relay wakes up to
	// check for inactivity and proxy shutdown.
	TunnelActivityInterval time.Duration

	// IdleTimeout is the maximum time to wait for the next request on a
	// client connection.
	IdleTimeout time.Duration
	// ReadHeaderTimeout is the maximum time to read request headers.
	ReadHeaderTimeout time.Duration

	// ReadLimit and WriteLimit cap client connection bandwidth in bytes
	// per second, zero means no limit.
	ReadLimit  SizeSuffix
	WriteLimit SizeSuffix

	LogHTTPMode httplog.Mode

	PromNamespace string
	PromRegistry  prometheus.Registerer
}

func DefaultProxyConfig() *ProxyConfig {
	return &ProxyConfig{
		Addr:                   "127.0.0.1:8081",
		RequestTimeout:         60 * time.Second,
		ConnectTimeout:         10 * time.Second,
		TunnelIdleTimeout:      60 * time.Second,
		TunnelActivityInterval: 1 * time.Second,
		IdleTimeout:            1 * time.Hour,
		ReadHeaderTimeout:      1 * time.Minute,
		LogHTTPMode:            httplog.Errors,
	}
}

func (c *ProxyConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if err := validateProxyURL(c.UpstreamProxyURI); err != nil {
		return fmt.Errorf("upstream_proxy_uri: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.TunnelIdleTimeout <= 0 {
		return errors.New("tunnel_idle_timeout must be positive")
	}
	if c.TunnelActivityInterval <= 0 || c.TunnelActivityInterval > c.TunnelIdleTimeout {
		return errors.New("tunnel_activity_interval must be positive and not exceed tunnel_idle_timeout")
	}
	return nil
}

func validateProxyURL(u *url.URL) error {
	if u == nil {
		return errors.New("upstream proxy URL is required")
	}
	if _, err := ParseProxyURL(u.String()); err != nil {
		return err
	}
	return nil
}

// ProxyServer is a forward proxy for a single scraping worker.
// It forwards all traffic through the configured upstream proxy,
// strips identity revealing headers, and tunnels CONNECT requests.
type ProxyServer struct {
	config    ProxyConfig
	transport http.RoundTripper
	dialer    *Dialer
	proxyAuth string
	log       log.Logger
	metrics   *proxyMetrics
	prom      *middleware.Prometheus
	logHTTP   middleware.Logger

	listener *Listener

	conns     map[net.Conn]struct{}
	connsWG   sync.WaitGroup
	connsMu   sync.Mutex
	closing   chan struct{}
	closeOnce sync.Once
}

// NewProxyServer creates a new worker proxy listening on cfg.Addr.
// If rt is nil, a transport with default settings is used.
// It is the caller's responsibility to call Close on the returned server.
func NewProxyServer(cfg *ProxyConfig, rt http.RoundTripper, log log.Logger) (*ProxyServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dc := DefaultDialConfig()
	dc.DialTimeout = cfg.ConnectTimeout
	d := NewDialer(dc)

	if rt == nil {
		tc := cfg.Transport
		if tc == nil {
			tc = DefaultHTTPTransportConfig()
			tc.DialTimeout = cfg.ConnectTimeout
			tc.ResponseHeaderTimeout = cfg.RequestTimeout
		}
		tr, err := NewHTTPTransport(tc)
		if err != nil {
			return nil, err
		}
		rt = tr
	}
	configureTransportProxy(rt, cfg.UpstreamProxyURI)

	ps := &ProxyServer{
		config:    *cfg,
		transport: rt,
		dialer:    d,
		log:       log,
		metrics:   newProxyMetrics(cfg.PromRegistry, cfg.PromNamespace),
		conns:     make(map[net.Conn]struct{}),
		closing:   make(chan struct{}),
	}

	// For http and https upstreams the credentials travel in the
	// Proxy-Authorization header, for socks5 they are part of the
	// proxy handshake and stay in the URL.
	if u := cfg.UpstreamProxyURI.User; u != nil && cfg.UpstreamProxyURI.Scheme != "socks5" {
		if _, ok := u.Password(); ok {
			ps.proxyAuth = "Basic " + userinfoBase64(u)
		} else {
			ps.log.Infof("[WARN] upstream proxy username %q has no password, not sending credentials", u.Username())

			// Drop the unusable credentials so the CONNECT handshake
			// does not send them either.
			uu := new(url.URL)
			*uu = *cfg.UpstreamProxyURI
			uu.User = nil
			ps.config.UpstreamProxyURI = uu
		}
	}
	if cfg.PromRegistry != nil {
		ps.prom = middleware.NewPrometheus(cfg.PromRegistry, cfg.PromNamespace)
	}
	if cfg.LogHTTPMode != httplog.None {
		ps.logHTTP = httplog.NewLogger(log.Infof, cfg.LogHTTPMode).LogFunc()
	}

	l := &Listener{
		Address:    cfg.Addr,
		Log:        log,
		ReadLimit:  int64(cfg.ReadLimit),
		WriteLimit: int64(cfg.WriteLimit),
	}
	if err := l.Listen(); err != nil {
		return nil, err
	}
	ps.listener = l

	ps.log.Infof("PROXY server listen address=%s upstream=%s", l.Addr(), RedactURL(cfg.UpstreamProxyURI))

	return ps, nil
}

// configureTransportProxy routes all plain HTTP requests through the
// upstream proxy. For http and https upstreams the credentials are
// stripped from the transport URL, the Proxy-Authorization header is
// set per request instead.
func configureTransportProxy(rt http.RoundTripper, upstream *url.URL) {
	tr, ok := rt.(*http.Transport)
	if !ok {
		return
	}

	u := new(url.URL)
	*u = *upstream
	if u.Scheme != "socks5" {
		u.User = nil
	}
	tr.Proxy = http.ProxyURL(u)
}

// Addr returns the address the server is listening on.
func (ps *ProxyServer) Addr() string {
	return ps.listener.Addr().String()
}

// URL returns the proxy URL local clients should be configured with.
func (ps *ProxyServer) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: ps.Addr()}
}

func (ps *ProxyServer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		ps.Close()
	}()

	err := ps.serve()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	wg.Wait()
	return nil
}

func (ps *ProxyServer) serve() error {
	var delay time.Duration
	for {
		conn, err := ps.listener.Accept()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Temporary() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else {
					delay *= 2
				}
				if max := time.Second; delay > max {
					delay = max
				}
				ps.log.Debugf("temporary error on accept: %v", err)
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0

		if tconn, ok := conn.(*net.TCPConn); ok {
			tconn.SetKeepAlive(true)
			tconn.SetKeepAlivePeriod(3 * time.Minute)
		}

		go ps.handleLoop(conn)
	}
}

func (ps *ProxyServer) handleLoop(conn net.Conn) {
	ps.connsMu.Lock()
	ps.connsWG.Add(1)
	ps.conns[conn] = struct{}{}
	ps.connsMu.Unlock()
	defer func() {
		ps.connsMu.Lock()
		delete(ps.conns, conn)
		ps.connsMu.Unlock()
		ps.connsWG.Done()
	}()
	defer conn.Close()

	if ps.Closing() {
		return
	}

	brw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	const maxConsecutiveErrors = 5
	errorsN := 0
	for {
		if err := ps.handle(conn, brw); err != nil {
			if errors.Is(err, errClose) || isCloseable(err) {
				ps.log.Debugf("closing connection: %v", conn.RemoteAddr())
				return
			}

			errorsN++
			if errorsN >= maxConsecutiveErrors {
				ps.log.Errorf("closing connection after %d consecutive errors: %v", errorsN, err)
				return
			}
		} else {
			errorsN = 0
		}
	}
}

func (ps *ProxyServer) readRequest(conn net.Conn, brw *bufio.ReadWriter) (*http.Request, error) {
	var idleDeadline time.Time // or zero if none
	if d := ps.config.IdleTimeout; d > 0 {
		idleDeadline = time.Now().Add(d)
	}
	if err := conn.SetReadDeadline(idleDeadline); err != nil {
		ps.log.Errorf("can't set idle deadline: %v", err)
	}

	// Wait for the connection to become readable before starting the
	// header read timer, otherwise an idle keep-alive connection would
	// hit the header timeout.
	if _, err := brw.Peek(1); err != nil {
		return nil, err
	}

	var hdrDeadline time.Time // or zero if none
	if d := ps.config.ReadHeaderTimeout; d > 0 {
		hdrDeadline = time.Now().Add(d)
	}
	if err := conn.SetReadDeadline(hdrDeadline); err != nil {
		ps.log.Errorf("can't set read header deadline: %v", err)
	}

	req, err := http.ReadRequest(brw.Reader)
	if err != nil {
		return nil, err
	}

	// Reset the deadline, the request body is read during the round trip.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		ps.log.Errorf("can't clear read deadline: %v", err)
	}

	return req, nil
}

func (ps *ProxyServer) handle(conn net.Conn, brw *bufio.ReadWriter) error {
	req, err := ps.readRequest(conn, brw)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errClose
		}

		if isClosedConnError(err) {
			ps.log.Debugf("connection closed prematurely while reading request: %v", err)
		} else {
			ps.log.Errorf("got error while reading request: %v", err)
		}
		return errClose
	}
	defer req.Body.Close()

	if ps.Closing() {
		return errClose
	}

	req.RemoteAddr = conn.RemoteAddr().String()

	if req.Method == http.MethodConnect {
		return ps.handleConnect(req, conn, brw)
	}

	return ps.handleRequest(req, conn, brw)
}

// Closing returns whether the proxy is in the closing state.
func (ps *ProxyServer) Closing() bool {
	select {
	case <-ps.closing:
		return true
	default:
		return false
	}
}

// Close stops accepting new connections and closes all open client
// connections, including established tunnels.
func (ps *ProxyServer) Close() error {
	var err error
	ps.closeOnce.Do(func() {
		ps.log.Infof("closing down proxy")

		close(ps.closing)
		err = ps.listener.Close()

		ps.connsMu.Lock()
		for conn := range ps.conns {
			conn.Close()
		}
		ps.connsMu.Unlock()

		ps.connsWG.Wait()

		// Release idle connections to the upstream proxy as well, a
		// stopped worker proxy must not hold any sockets.
		if tr, ok := ps.transport.(*http.Transport); ok {
			tr.CloseIdleConnections()
		}

		ps.log.Debugf("all connections closed")
	})
	return err
}
