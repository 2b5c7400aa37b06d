// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package httplog logs served HTTP exchanges in configurable detail.
package httplog

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/crawlforge/fleetproxy/middleware"
)

// Mode defines the logging verbosity.
type Mode string

const (
	None     Mode = "none"
	ShortURL Mode = "short-url"
	URL      Mode = "url"
	Headers  Mode = "headers"
	Errors   Mode = "errors"
)

func (m Mode) String() string {
	if m == "" {
		return DefaultMode.String()
	}
	return string(m)
}

// SplitNameMode parses a "name:mode" or "mode" value.
// The name allows configuring different modes per server.
func SplitNameMode(val string) (name string, mode Mode, err error) {
	n, m, ok := strings.Cut(val, ":")
	if ok {
		name = n
		mode = Mode(m)
	} else {
		name = ""
		mode = Mode(val)
	}

	switch mode {
	case None, ShortURL, URL, Headers, Errors:
	default:
		return "", "", fmt.Errorf("invalid mode %q", mode)
	}

	return
}

var DefaultMode = Errors

type Logger struct {
	log  func(format string, args ...any)
	mode Mode
}

// NewLogger returns a logger that logs HTTP requests and responses.
func NewLogger(logFunc func(format string, args ...any), mode Mode) *Logger {
	if mode == "" {
		mode = DefaultMode
	}
	return &Logger{
		log:  logFunc,
		mode: mode,
	}
}

func (l *Logger) LogFunc() middleware.Logger {
	switch l.mode {
	case None:
		return func(e middleware.LogEntry) {}
	case ShortURL:
		return func(e middleware.LogEntry) {
			var w logWriter
			w.ShortURLLine(e)
			l.log("%s", w.String())
		}
	case URL:
		return func(e middleware.LogEntry) {
			var w logWriter
			w.URLLine(e)
			l.log("%s", w.String())
		}
	case Headers:
		return func(e middleware.LogEntry) {
			var w logWriter
			w.ShortURLLine(e)
			w.Dump(e)
			l.log("%s", w.String())
		}
	case Errors:
		return func(e middleware.LogEntry) {
			if e.Status < http.StatusInternalServerError {
				return
			}

			var w logWriter
			w.ShortURLLine(e)
			w.Dump(e)
			l.log("%s", w.String())
		}
	default:
		panic(fmt.Sprintf("unknown log mode %s", l.mode))
	}
}
