// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package middleware

import (
	"bufio"
	"net"
	"net/http"
)

// delegator wraps http.ResponseWriter to capture the response status
// and the number of body bytes written.
type delegator struct {
	http.ResponseWriter

	status      int
	written     int64
	wroteHeader bool
}

func newDelegator(w http.ResponseWriter) *delegator {
	return &delegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (d *delegator) Status() int {
	return d.status
}

func (d *delegator) Written() int64 {
	return d.written
}

func (d *delegator) WriteHeader(code int) {
	if !d.wroteHeader {
		d.status = code
		d.wroteHeader = true
	}
	d.ResponseWriter.WriteHeader(code)
}

func (d *delegator) Write(b []byte) (int, error) {
	if !d.wroteHeader {
		d.WriteHeader(http.StatusOK)
	}
	n, err := d.ResponseWriter.Write(b)
	d.written += int64(n)
	return n, err
}

func (d *delegator) Flush() {
	if f, ok := d.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (d *delegator) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return d.ResponseWriter.(http.Hijacker).Hijack()
}
