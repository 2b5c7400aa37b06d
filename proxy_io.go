// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// errClose signals the connection serve loop to stop reading requests
// and close the client connection.
var errClose = errors.New("closing connection")

// isClosedConnError reports whether err is an error from use of a closed
// network connection.
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	return strings.Contains(err.Error(), "use of closed network connection")
}

// isCloseable reports whether err is an error that indicates the client
// connection should be closed.
func isCloseable(err error) bool {
	if err == nil {
		return false
	}

	var neterr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		(errors.As(err, &neterr) && !neterr.Timeout()) ||
		strings.Contains(err.Error(), "tls:")
}

// newResponse builds a minimal HTTP/1.1 response with the given status code.
// If body is not nil, the response body is set to it without a known length.
func newResponse(code int, body io.Reader, req *http.Request) *http.Response {
	res := &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Request:    req,
	}

	if body != nil {
		res.Body = io.NopCloser(body)
		res.ContentLength = -1
	} else {
		res.Body = http.NoBody
		res.ContentLength = 0
	}

	return res
}

// writeHeadResponse writes the status line and header of res to w.
// The http package mangles HEAD responses with unknown content length,
// see https://github.com/golang/go/issues/62015, so they are written manually.
func writeHeadResponse(w io.Writer, res *http.Response) error {
	text := res.Status
	if text == "" {
		text = http.StatusText(res.StatusCode)
		if text == "" {
			text = "status code " + strconv.Itoa(res.StatusCode)
		}
	} else {
		text = strings.TrimPrefix(text, strconv.Itoa(res.StatusCode)+" ")
	}

	if _, err := fmt.Fprintf(w, "HTTP/%d.%d %03d %s\r\n", res.ProtoMajor, res.ProtoMinor, res.StatusCode, text); err != nil {
		return err
	}

	if err := res.Header.Write(w); err != nil {
		return err
	}

	_, err := io.WriteString(w, "\r\n")
	return err
}

// drainBuffer moves any bytes buffered by r to w. It is used before
// switching a connection to raw TCP relaying so that bytes the client
// sent after its request are not lost.
func drainBuffer(w io.Writer, r *bufio.Reader) error {
	if n := r.Buffered(); n > 0 {
		rbuf, err := r.Peek(n)
		if err != nil {
			return err
		}
		if _, err := w.Write(rbuf); err != nil {
			return err
		}
		if _, err := r.Discard(n); err != nil {
			return err
		}
	}
	return nil
}

var copyBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 32*1024)
		return &b
	},
}

type closeWriter interface {
	CloseWrite() error
}

var _ closeWriter = (*net.TCPConn)(nil)
