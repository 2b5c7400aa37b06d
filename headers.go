// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"net/http"
	"net/textproto"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// hopByHopHeaders are connection-scoped headers that must not be forwarded
// to the next hop, see RFC 7230 section 6.1.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// identityHeaders reveal the client or intermediate proxies to the origin.
// Stripping them keeps workers indistinguishable from direct visitors.
var identityHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Real-Ip",
	"Via",
	"Forwarded",
}

// sanitizeRequestHeaders prepares a client request for forwarding upstream.
// It removes headers named in the Connection header, all hop-by-hop headers
// and all identity revealing headers, and resets the Host to the target host.
func sanitizeRequestHeaders(req *http.Request) {
	removeConnectionHeaders(req.Header)

	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}
	for _, h := range identityHeaders {
		req.Header.Del(h)
	}

	req.Host = req.URL.Host
}

// sanitizeResponseHeaders removes hop-by-hop headers from an upstream
// response before it is written back to the client.
func sanitizeResponseHeaders(res *http.Response) {
	removeConnectionHeaders(res.Header)

	for _, h := range hopByHopHeaders {
		res.Header.Del(h)
	}
}

// removeConnectionHeaders removes headers listed in the Connection header,
// see RFC 7230 section 6.1.
func removeConnectionHeaders(h http.Header) {
	for _, f := range h["Connection"] {
		for _, sf := range strings.Split(f, ",") {
			if sf = textproto.TrimString(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
}

// upgradeType returns the protocol the request wants to upgrade to,
// or an empty string if it is not an upgrade request.
func upgradeType(h http.Header) string {
	if !httpguts.HeaderValuesContainsToken(h["Connection"], "Upgrade") {
		return ""
	}
	return h.Get("Upgrade")
}
