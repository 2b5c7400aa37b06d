// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
)

// ErrorHeader is the header that is set on error responses with the error message.
const ErrorHeader = "X-Fleetproxy-Error"

type denyError struct {
	error
}

// ErrProxyDenied is returned for requests to hosts in the deny list.
var ErrProxyDenied = denyError{errors.New("proxying denied")}

func (ps *ProxyServer) errorResponse(req *http.Request, err error) *http.Response {
	handlers := []errorHandler{
		handleNetError,
		handleTLSRecordHeader,
		handleTLSCertificateError,
		handleDenyError,
		handleTimeout,
	}

	var (
		code       int
		msg, label string
	)
	for _, h := range handlers {
		code, msg, label = h(req, err)
		if code != 0 {
			break
		}
	}
	if code == 0 {
		code = http.StatusBadGateway
		msg = "Failed to reach remote host"
		label = "transport_error"
	}

	ps.metrics.error(label)

	var body bytes.Buffer
	body.WriteString(msg)
	body.WriteString("\n")
	body.WriteString(err.Error())
	body.WriteString("\n")

	res := newResponse(code, &body, req)
	res.Header.Set(ErrorHeader, err.Error())
	res.Header.Set("Content-Type", "text/plain; charset=utf-8")
	res.ContentLength = int64(body.Len())
	return res
}

type errorHandler func(*http.Request, error) (int, string, string)

func handleNetError(_ *http.Request, err error) (code int, msg, label string) {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			code = http.StatusGatewayTimeout
			msg = "Timed out connecting to remote host"
		} else {
			code = http.StatusBadGateway
			msg = "Failed to connect to remote host"
		}
		label = "net_" + netErr.Op
	}

	return
}

func handleTLSRecordHeader(_ *http.Request, err error) (code int, msg, label string) {
	var headerErr *tls.RecordHeaderError
	if errors.As(err, &headerErr) {
		code = http.StatusBadGateway
		msg = "TLS handshake failed"
		label = "tls_record_header"
	}

	return
}

func handleTLSCertificateError(_ *http.Request, err error) (code int, msg, label string) {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		code = http.StatusBadGateway
		msg = "TLS handshake failed"
		label = "tls_certificate"
	}

	return
}

func handleDenyError(req *http.Request, err error) (code int, msg, label string) {
	var denyErr denyError
	if errors.As(err, &denyErr) {
		code = http.StatusForbidden
		msg = fmt.Sprintf("proxying is denied to host %q", req.Host)
		label = "denied"
	}

	return
}

// handleTimeout catches request deadlines that are not surfaced as net.OpError,
// e.g. http.Transport timeouts awaiting response headers.
func handleTimeout(_ *http.Request, err error) (code int, msg, label string) {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		code = http.StatusGatewayTimeout
		msg = "Timed out waiting for remote host"
		label = "timeout"
	}

	return
}

// errorMessageResponse builds a response with the given status code and
// a plain text message body.
func errorMessageResponse(req *http.Request, code int, msg string) *http.Response {
	var body bytes.Buffer
	body.WriteString(msg)
	body.WriteString("\n")

	res := newResponse(code, &body, req)
	res.Header.Set(ErrorHeader, msg)
	res.Header.Set("Content-Type", "text/plain; charset=utf-8")
	res.ContentLength = int64(body.Len())
	return res
}

func badRequestResponse(req *http.Request, msg string) *http.Response {
	return errorMessageResponse(req, http.StatusBadRequest, msg)
}
