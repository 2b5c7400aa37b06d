// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package httplog

import (
	"bytes"
	"fmt"
	"net/http/httputil"

	"github.com/crawlforge/fleetproxy/middleware"
)

type logWriter struct {
	b bytes.Buffer
}

func (w *logWriter) String() string {
	return w.b.String()
}

func (w *logWriter) URLLine(e middleware.LogEntry) {
	fmt.Fprintf(&w.b, "%s %s status=%v duration=%s\n",
		e.Request.Method,
		e.Request.URL.Redacted(),
		e.Status,
		e.Duration,
	)
}

func (w *logWriter) ShortURLLine(e middleware.LogEntry) {
	u := e.Request.URL
	scheme, host, path := u.Scheme, u.Host, u.Path
	if scheme != "" {
		scheme += "://"
	}
	if path != "" && path[0] != '/' {
		path = "/" + path
	}

	fmt.Fprintf(&w.b, "%s %s status=%v duration=%s\n",
		e.Request.Method,
		scheme+host+path,
		e.Status,
		e.Duration,
	)
}

// Dump writes the request and response headers.
// Bodies are not dumped, they are spent by the time the entry is logged.
func (w *logWriter) Dump(e middleware.LogEntry) {
	if err := w.dump(e); err != nil {
		fmt.Fprintf(&w.b, "\nlogger error: %s\n", err)
	}
	fmt.Fprint(&w.b, "\n")
}

func (w *logWriter) dump(e middleware.LogEntry) error {
	b, err := httputil.DumpRequest(e.Request, false)
	if err != nil {
		return err
	}
	w.b.Write(b)

	if e.Response == nil {
		return nil
	}

	b, err = httputil.DumpResponse(e.Response, false)
	if err != nil {
		return err
	}
	w.b.Write(b)

	return nil
}
