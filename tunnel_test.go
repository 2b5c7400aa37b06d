// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/crawlforge/fleetproxy/dialvia"
	"github.com/crawlforge/fleetproxy/log"
	"github.com/crawlforge/fleetproxy/utils/golden"
)

// tunnelUpstream is a raw TCP stand-in for an upstream proxy. It answers
// one CONNECT handshake per connection with the configured status and
// echoes the tunneled bytes back afterwards.
type tunnelUpstream struct {
	addr   string
	status int

	l         net.Listener
	closeOnce sync.Once
	closedCh  chan struct{}

	mu   sync.Mutex
	reqs []*http.Request
}

func startTunnelUpstream(tb testing.TB, status int) *tunnelUpstream {
	tb.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatal(err)
	}

	u := &tunnelUpstream{
		addr:     l.Addr().String(),
		status:   status,
		l:        l,
		closedCh: make(chan struct{}, 8),
	}
	go u.serve()
	tb.Cleanup(u.close)
	return u
}

func (u *tunnelUpstream) close() {
	u.closeOnce.Do(func() { u.l.Close() })
}

func (u *tunnelUpstream) serve() {
	for {
		conn, err := u.l.Accept()
		if err != nil {
			return
		}
		go u.handle(conn)
	}
}

func (u *tunnelUpstream) handle(conn net.Conn) {
	defer func() {
		conn.Close()
		u.closedCh <- struct{}{}
	}()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		return
	}
	u.mu.Lock()
	u.reqs = append(u.reqs, req)
	u.mu.Unlock()

	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n\r\n", u.status, http.StatusText(u.status))
	if u.status != http.StatusOK {
		// Keep the connection open so the test can observe the proxy
		// dropping it.
		io.Copy(io.Discard, br) //nolint:errcheck // Returns when the proxy closes the connection.
		return
	}

	io.Copy(conn, br) //nolint:errcheck // Echo until either side closes.
}

func (u *tunnelUpstream) connect(i int) *http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.reqs[i]
}

// waitClosed blocks until the upstream side of a tunnel has been closed.
func (u *tunnelUpstream) waitClosed(tb testing.TB) {
	tb.Helper()

	select {
	case <-u.closedCh:
	case <-time.After(5 * time.Second):
		tb.Fatal("upstream connection was not closed")
	}
}

// dialTunnel issues a CONNECT request for target through ps and returns
// the CONNECT response and the tunneled connection.
func dialTunnel(tb testing.TB, ps *ProxyServer, target string) (*http.Response, net.Conn) {
	tb.Helper()

	d := dialvia.HTTPProxy((&net.Dialer{Timeout: 5 * time.Second}).DialContext, ps.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, conn, err := d.DialContextR(ctx, "tcp", target)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		res.Body.Close()
		conn.Close()
	})
	return res, conn
}

func TestConnectTunnelRoundTrip(t *testing.T) {
	up := startTunnelUpstream(t, http.StatusOK)

	cfg := testProxyConfig(t)
	cfg.UpstreamProxyURI = mustParseURL(t, "http://user:pass@"+up.addr)
	ps := startProxyServer(t, cfg)

	res, conn := dialTunnel(t, ps, "origin.example.com:443")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("CONNECT status: got %d, want %d", res.StatusCode, http.StatusOK)
	}
	if got := res.Header.Get("Connection"); got != "keep-alive" {
		t.Errorf("Connection: got %q, want keep-alive", got)
	}

	creq := up.connect(0)
	if creq.Method != http.MethodConnect {
		t.Errorf("upstream request method: got %q, want CONNECT", creq.Method)
	}
	if got, want := creq.Host, "origin.example.com:443"; got != want {
		t.Errorf("CONNECT target: got %q, want %q", got, want)
	}
	if got, want := creq.Header.Get("Proxy-Authorization"), "Basic dXNlcjpwYXNz"; got != want {
		t.Errorf("Proxy-Authorization: got %q, want %q", got, want)
	}

	// Bytes travel both directions unchanged.
	msg := "GET / HTTP/1.1\r\nHost: origin.example.com\r\n\r\n"
	if _, err := io.WriteString(conn, msg); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != msg {
		t.Errorf("tunneled bytes mangled: got %q, want %q", buf, msg)
	}
}

func TestConnectTunnelBadTarget(t *testing.T) {
	ps := startProxyServer(t, testProxyConfig(t))

	res, _ := dialTunnel(t, ps, "no-port-target")
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("CONNECT status: got %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if got := res.Header.Get(ErrorHeader); !strings.Contains(got, "invalid CONNECT target") {
		t.Errorf("%s: got %q, want invalid target message", ErrorHeader, got)
	}
}

func TestConnectTunnelUpstreamRefusal(t *testing.T) {
	up := startTunnelUpstream(t, http.StatusProxyAuthRequired)

	cfg := testProxyConfig(t)
	cfg.UpstreamProxyURI = mustParseURL(t, "http://"+up.addr)
	ps := startProxyServer(t, cfg)

	res, _ := dialTunnel(t, ps, "origin.example.com:443")
	if res.StatusCode != http.StatusBadGateway {
		t.Errorf("CONNECT status: got %d, want %d", res.StatusCode, http.StatusBadGateway)
	}
	if got := res.Header.Get(ErrorHeader); !strings.Contains(got, "status 407") {
		t.Errorf("%s: got %q, want upstream refusal message", ErrorHeader, got)
	}

	// The upstream refusal is not relayed as-is and the upstream
	// connection is dropped.
	up.waitClosed(t)
}

func TestConnectTunnelUpstreamUnreachable(t *testing.T) {
	cfg := testProxyConfig(t)
	cfg.UpstreamProxyURI = mustParseURL(t, fmt.Sprintf("http://127.0.0.1:%d", deadPort(t)))
	ps := startProxyServer(t, cfg)

	res, _ := dialTunnel(t, ps, "origin.example.com:443")
	if res.StatusCode != http.StatusBadGateway {
		t.Errorf("CONNECT status: got %d, want %d", res.StatusCode, http.StatusBadGateway)
	}
	if got := res.Header.Get(ErrorHeader); !strings.Contains(got, "failed to establish tunnel") {
		t.Errorf("%s: got %q, want tunnel failure message", ErrorHeader, got)
	}
}

func TestConnectTunnelIdleTimeout(t *testing.T) {
	up := startTunnelUpstream(t, http.StatusOK)

	r := prometheus.NewRegistry()
	cfg := testProxyConfig(t)
	cfg.UpstreamProxyURI = mustParseURL(t, "http://"+up.addr)
	cfg.TunnelActivityInterval = 10 * time.Millisecond
	cfg.TunnelIdleTimeout = 50 * time.Millisecond
	cfg.PromNamespace = "test"
	cfg.PromRegistry = r
	ps := startProxyServer(t, cfg)

	res, conn := dialTunnel(t, ps, "origin.example.com:443")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("CONNECT status: got %d, want %d", res.StatusCode, http.StatusOK)
	}

	// Exchange one payload, then go quiet until the proxy reaps the
	// tunnel for inactivity.
	if _, err := io.WriteString(conn, "ping"); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(buf); err != io.EOF {
		t.Fatalf("read after idle timeout: got %v, want io.EOF", err)
	}
	up.waitClosed(t)

	golden.DiffPrometheusMetrics(t, r, func(mf *dto.MetricFamily) bool {
		return strings.HasPrefix(mf.GetName(), "test_proxy_")
	})
}

func TestConnectTunnelClosesBothSockets(t *testing.T) {
	defer goleak.VerifyNone(t)

	up := startTunnelUpstream(t, http.StatusOK)
	defer up.close()

	cfg := testProxyConfig(t)
	cfg.UpstreamProxyURI = mustParseURL(t, "http://"+up.addr)

	ps, err := NewProxyServer(cfg, nil, log.NopLogger)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ps.Run(ctx); err != nil {
			t.Errorf("proxy server exited: %v", err)
		}
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	d := dialvia.HTTPProxy((&net.Dialer{Timeout: 5 * time.Second}).DialContext, ps.URL())
	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()

	res, conn, err := d.DialContextR(dctx, "tcp", "origin.example.com:443")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("CONNECT status: got %d, want %d", res.StatusCode, http.StatusOK)
	}

	if _, err := io.WriteString(conn, "ping"); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}

	// Closing the client side must drop the upstream side as well.
	conn.Close()
	up.waitClosed(t)
}

func TestProxyServerCloseTerminatesTunnels(t *testing.T) {
	up := startTunnelUpstream(t, http.StatusOK)

	cfg := testProxyConfig(t)
	cfg.UpstreamProxyURI = mustParseURL(t, "http://"+up.addr)
	cfg.TunnelActivityInterval = 10 * time.Millisecond
	ps := startProxyServer(t, cfg)

	res, conn := dialTunnel(t, ps, "origin.example.com:443")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("CONNECT status: got %d, want %d", res.StatusCode, http.StatusOK)
	}
	if _, err := io.WriteString(conn, "ping"); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}

	if err := ps.Close(); err != nil {
		t.Errorf("Close(): %v", err)
	}

	up.waitClosed(t)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Error("client side of the tunnel still open after Close")
	}
}
