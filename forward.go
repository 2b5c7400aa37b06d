// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"bufio"
	"bytes"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/crawlforge/fleetproxy/middleware"
)

func (ps *ProxyServer) handleRequest(req *http.Request, conn net.Conn, brw *bufio.ReadWriter) error {
	start := time.Now()
	if ps.prom != nil {
		ps.prom.ReadRequest(req)
	}

	res := ps.roundTrip(req)
	defer res.Body.Close()

	if res.StatusCode == http.StatusSwitchingProtocols {
		return ps.handleUpgradeResponse(res, conn, brw)
	}

	err := ps.writeResponse(res, brw)

	elapsed := time.Since(start)
	if ps.prom != nil {
		ps.prom.WroteResponse(res, elapsed)
	}
	if ps.logHTTP != nil {
		ps.logHTTP(middleware.LogEntry{
			Request:  req,
			Response: res,
			Status:   res.StatusCode,
			Duration: elapsed,
		})
	}

	return err
}

// roundTrip forwards req through the upstream proxy and returns the
// response to relay to the client. Transport errors are converted to
// error responses, roundTrip never returns nil.
func (ps *ProxyServer) roundTrip(req *http.Request) *http.Response {
	if req.URL.Scheme == "" || req.URL.Host == "" {
		ps.log.Infof("rejecting non-absolute request target %q from %s", req.RequestURI, req.RemoteAddr)
		ps.metrics.error("non_absolute_uri")
		return badRequestResponse(req, "proxy requires absolute-form request target")
	}

	if ps.config.DenyDomains != nil && ps.config.DenyDomains.Match(req.URL.Hostname()) {
		return ps.errorResponse(req, ErrProxyDenied)
	}

	sanitizeRequestHeaders(req)
	ps.config.RequestHeaders.ModifyRequest(req)

	if ps.proxyAuth != "" {
		req.Header.Set("Proxy-Authorization", ps.proxyAuth)
	}
	if _, ok := req.Header["User-Agent"]; !ok {
		// If the client doesn't send a User-Agent header,
		// don't send the default Go HTTP client User-Agent either.
		req.Header.Set("User-Agent", "")
	}

	reqUpType := upgradeType(req.Header)
	if reqUpType != "" {
		// sanitizeRequestHeaders stripped the hop-by-hop headers,
		// add back the ones needed for protocol upgrades.
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", reqUpType)
	}

	res, err := ps.transport.RoundTrip(req)
	if err != nil {
		if isClosedConnError(err) {
			ps.log.Debugf("connection closed prematurely: %v", err)
		} else {
			ps.log.Errorf("failed to round trip host=%s method=%s path=%s: %v",
				req.Host, req.Method, req.URL.Path, err)
		}
		return ps.errorResponse(req, err)
	}

	// Set request to original request manually, res.Request may be
	// changed in transport.
	res.Request = req

	resUpType := upgradeType(res.Header)
	sanitizeResponseHeaders(res)
	if resUpType != "" {
		res.Header.Set("Connection", "Upgrade")
		res.Header.Set("Upgrade", resUpType)
	}

	return res
}

func (ps *ProxyServer) writeResponse(res *http.Response, brw *bufio.ReadWriter) error {
	req := res.Request

	if ps.Closing() || req.Close || res.Close || !req.ProtoAtLeast(1, 1) {
		res.Close = true
	}
	if res.Close {
		res.Header.Add("Connection", "close")
	}

	var err error
	switch {
	case req.Method == http.MethodHead:
		err = writeHeadResponse(brw, res)
	case isTextEventStream(res):
		// Relay server sent events as they arrive instead of waiting
		// for the write buffer to fill up.
		w := newPatternFlushWriter(brw.Writer, brw.Writer, sseFlushPattern)
		err = res.Write(w)
	case shouldChunk(res):
		w := newPatternFlushWriter(brw.Writer, brw.Writer, chunkFlushPattern)
		err = res.Write(w)
	default:
		err = res.Write(brw)
	}
	if err != nil {
		brw.Flush() // flush any remaining data
	} else {
		err = brw.Flush()
	}

	if err != nil {
		if isClosedConnError(err) {
			ps.log.Debugf("connection closed prematurely while writing response: %v", err)
		} else {
			ps.log.Errorf("got error while writing response: %v", err)
		}
		return errClose
	}

	if res.Close {
		ps.log.Debugf("closing connection")
		return errClose
	}

	return nil
}

// handleUpgradeResponse relays a 101 Switching Protocols exchange,
// e.g. a WebSocket handshake, as a raw byte stream.
func (ps *ProxyServer) handleUpgradeResponse(res *http.Response, conn net.Conn, brw *bufio.ReadWriter) error {
	uconn, ok := res.Body.(io.ReadWriteCloser)
	if !ok {
		ps.log.Errorf("internal error: switching protocols response with non-writable body")
		return errClose
	}
	defer uconn.Close()

	if err := writeHeadResponse(brw, res); err != nil {
		ps.log.Errorf("got error while writing upgrade response: %v", err)
		return errClose
	}
	if err := brw.Flush(); err != nil {
		ps.log.Errorf("got error while flushing upgrade response: %v", err)
		return errClose
	}
	if err := drainBuffer(uconn, brw.Reader); err != nil {
		ps.log.Errorf("got error while draining read buffer: %v", err)
		return errClose
	}

	bicopy(
		copyDirection{name: "upstream " + upgradeType(res.Header), dst: uconn, src: conn, log: ps.log},
		copyDirection{name: "downstream " + upgradeType(res.Header), dst: conn, src: uconn, log: ps.log},
	)

	return errClose
}

var (
	sseFlushPattern   = [2]byte{'\n', '\n'}
	chunkFlushPattern = [2]byte{'\r', '\n'}
)

func shouldChunk(res *http.Response) bool {
	if res.ProtoMajor != 1 || res.ProtoMinor != 1 {
		return false
	}
	if res.ContentLength != -1 {
		return false
	}
	if res.Request.Method == http.MethodHead {
		return false
	}
	// 204 and 304 responses must not contain a message body.
	if res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotModified {
		return false
	}
	if res.StatusCode < 200 {
		return false
	}

	return true
}

func isTextEventStream(res *http.Response) bool {
	// The MIME type is defined in https://www.w3.org/TR/eventsource/#text-event-stream
	resCT := res.Header.Get("Content-Type")
	baseCT, _, _ := mime.ParseMediaType(resCT)
	return baseCT == "text/event-stream"
}

type flusher interface {
	Flush() error
}

// patternFlushWriter is an io.Writer that flushes when a pattern is detected.
type patternFlushWriter struct {
	w       io.Writer
	f       flusher
	pattern [2]byte

	last byte
}

func newPatternFlushWriter(w io.Writer, f flusher, pattern [2]byte) *patternFlushWriter {
	return &patternFlushWriter{
		w:       w,
		f:       f,
		pattern: pattern,
	}
}

func (w *patternFlushWriter) Write(p []byte) (n int, err error) {
	n, err = w.w.Write(p)
	if err != nil {
		return
	}

	if (w.last == w.pattern[0] && n > 0 && p[0] == w.pattern[1]) || bytes.LastIndex(p, w.pattern[:]) != -1 {
		err = w.f.Flush()
	}

	if n > 0 {
		w.last = p[n-1]
	} else {
		w.last = 0
	}

	return
}
