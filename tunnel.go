// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crawlforge/fleetproxy/dialvia"
	"github.com/crawlforge/fleetproxy/log"
)

func (ps *ProxyServer) handleConnect(req *http.Request, conn net.Conn, brw *bufio.ReadWriter) error {
	ps.log.Debugf("read CONNECT request host=%s", req.URL.Host)

	host, port, err := net.SplitHostPort(req.URL.Host)
	if err != nil || host == "" || port == "" {
		ps.metrics.error("connect_bad_target")
		res := badRequestResponse(req, fmt.Sprintf("invalid CONNECT target %q", req.URL.Host))
		return ps.writeResponse(res, brw)
	}

	if ps.config.DenyDomains != nil && ps.config.DenyDomains.Match(host) {
		return ps.writeResponse(ps.errorResponse(req, ErrProxyDenied), brw)
	}

	ctx, cancel := context.WithTimeout(req.Context(), ps.config.ConnectTimeout)
	defer cancel()

	res, upstream, cerr := ps.connect(ctx, req)
	if res != nil {
		defer res.Body.Close()
	}
	if cerr != nil {
		ps.log.Errorf("failed to establish tunnel host=%s: %v", req.URL.Host, cerr)
		ps.metrics.error("connect_upstream")
		msg := "failed to establish tunnel via upstream proxy"
		return ps.writeResponse(errorMessageResponse(req, http.StatusBadGateway, msg), brw)
	}

	if res.StatusCode != http.StatusOK {
		// The upstream proxy refused the tunnel, e.g. with 407 on bad
		// credentials. The refusal is not relayed, the client gets a 502
		// and the upstream connection is dropped.
		upstream.Close()
		ps.log.Errorf("upstream proxy refused CONNECT host=%s status=%d", req.URL.Host, res.StatusCode)
		ps.metrics.error("connect_refused")
		msg := fmt.Sprintf("upstream proxy refused CONNECT with status %d", res.StatusCode)
		return ps.writeResponse(errorMessageResponse(req, http.StatusBadGateway, msg), brw)
	}

	if err := writeTunnelEstablished(brw.Writer); err != nil {
		upstream.Close()
		ps.log.Errorf("got error while writing tunnel response: %v", err)
		return errClose
	}
	if err := drainBuffer(upstream, brw.Reader); err != nil {
		upstream.Close()
		ps.log.Errorf("got error while draining read buffer: %v", err)
		return errClose
	}

	ps.metrics.tunnelOpened()
	idle := ps.relay(conn, upstream)
	ps.metrics.tunnelClosed(idle)

	if idle {
		ps.log.Infof("closed idle tunnel host=%s", req.URL.Host)
	} else {
		ps.log.Debugf("closed tunnel host=%s", req.URL.Host)
	}

	return errClose
}

// connect establishes a raw connection to the CONNECT target through the
// upstream proxy. For http and https upstreams it returns the upstream
// CONNECT response, for socks5 a synthetic 200 response.
func (ps *ProxyServer) connect(ctx context.Context, req *http.Request) (*http.Response, net.Conn, error) {
	u := ps.config.UpstreamProxyURI

	switch u.Scheme {
	case "http":
		return dialvia.HTTPProxy(ps.dialer.DialContext, u).DialContextR(ctx, "tcp", req.URL.Host)
	case "https":
		return dialvia.HTTPSProxy(ps.dialer.DialContext, u, new(tls.Config)).DialContextR(ctx, "tcp", req.URL.Host)
	case "socks5":
		conn, err := dialvia.SOCKS5Proxy(ps.dialer.DialContext, u).DialContext(ctx, "tcp", req.URL.Host)
		if err != nil {
			return nil, nil, err
		}
		return newResponse(http.StatusOK, nil, req), conn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported upstream proxy scheme %q", u.Scheme)
	}
}

var tunnelEstablishedResponse = []byte("HTTP/1.1 200 Connection Established\r\nConnection: keep-alive\r\n\r\n")

func writeTunnelEstablished(w *bufio.Writer) error {
	if _, err := w.Write(tunnelEstablishedResponse); err != nil {
		return err
	}
	return w.Flush()
}

// relay copies bytes between the client and upstream connections until
// either side closes, no data has flown for TunnelIdleTimeout, or the
// proxy shuts down. Both connections are closed on return, on every
// exit path. It reports whether the tunnel was closed due to inactivity.
func (ps *ProxyServer) relay(client, upstream net.Conn) (idle bool) {
	var (
		activity   atomic.Int64
		idleClosed atomic.Bool
		closeOnce  sync.Once
		wg         sync.WaitGroup
	)
	activity.Store(time.Now().UnixNano())

	closeBoth := func() {
		client.Close()
		upstream.Close()
	}

	pump := func(dst, src net.Conn, name string) {
		defer wg.Done()
		// Closing both ends unblocks the opposite direction.
		defer closeOnce.Do(closeBoth)

		bufp := copyBufPool.Get().(*[]byte) //nolint:forcetypeassert // It's *[]byte.
		defer copyBufPool.Put(bufp)
		buf := *bufp

		for {
			if err := src.SetReadDeadline(time.Now().Add(ps.config.TunnelActivityInterval)); err != nil {
				return
			}

			n, err := src.Read(buf)
			if n > 0 {
				activity.Store(time.Now().UnixNano())
				if _, werr := dst.Write(buf[:n]); werr != nil {
					if !isClosedConnError(werr) {
						ps.log.Errorf("failed to copy %s tunnel: %v", name, werr)
					}
					return
				}
			}
			if err == nil {
				continue
			}

			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				if ps.Closing() {
					return
				}
				last := time.Unix(0, activity.Load())
				if time.Since(last) > ps.config.TunnelIdleTimeout {
					idleClosed.Store(true)
					return
				}
				continue
			}

			if !isClosedConnError(err) {
				ps.log.Errorf("failed to copy %s tunnel: %v", name, err)
			}
			return
		}
	}

	wg.Add(2)
	go pump(upstream, client, "upstream")
	go pump(client, upstream, "downstream")
	wg.Wait()

	return idleClosed.Load()
}

// copyDirection is one direction of a protocol upgrade relay.
type copyDirection struct {
	name string
	dst  io.Writer
	src  io.Reader
	log  log.Logger
}

// bicopy relays an upgraded connection, e.g. a WebSocket, in both
// directions until both directions have finished.
func bicopy(cc ...copyDirection) {
	donec := make(chan struct{}, len(cc))
	for i := range cc {
		go cc[i].copy(donec)
	}
	for range cc {
		<-donec
	}
}

func (c copyDirection) copy(donec chan<- struct{}) {
	bufp := copyBufPool.Get().(*[]byte) //nolint:forcetypeassert // It's *[]byte.
	defer copyBufPool.Put(bufp)

	if _, err := io.CopyBuffer(c.dst, c.src, *bufp); err != nil && !isClosedConnError(err) {
		c.log.Errorf("failed to copy %s tunnel: %v", c.name, err)
	}

	switch w := c.dst.(type) {
	case closeWriter:
		w.CloseWrite()
	case io.Closer:
		w.Close()
	}

	donec <- struct{}{}
}
