// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package stdlog

import (
	"bytes"
	"strings"
	"testing"

	flog "github.com/crawlforge/fleetproxy/log"
)

func TestLoggerNamedPrefixes(t *testing.T) {
	l := New(flog.DefaultConfig()).Named("worker-1")

	var buf bytes.Buffer
	l.Unwrap().SetOutput(&buf)
	l.Unwrap().SetFlags(0)

	l.Infof("proxy started on port %d", 8081)
	if got := buf.String(); !strings.HasPrefix(got, "[worker-1] [INFO] ") {
		t.Fatalf("unexpected prefix: %q", got)
	}
}

func TestLoggerNamedAllowsToPassCustomLevel(t *testing.T) {
	l := New(flog.DefaultConfig())
	f := l.Named("foo", WithLevel(0))
	if f.level != flog.Level(0) {
		t.Fatalf("level=%v, want 0", f.level)
	}
}

func TestLoggerLevelFiltersDebug(t *testing.T) {
	cfg := flog.DefaultConfig()
	cfg.Level = flog.InfoLevel
	l := New(cfg).Named("")

	var buf bytes.Buffer
	l.Unwrap().SetOutput(&buf)
	l.Unwrap().SetFlags(0)

	l.Debugf("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("debug message not filtered: %q", buf.String())
	}
}

func TestLoggerOnError(t *testing.T) {
	var called string
	l := New(flog.DefaultConfig()).Named("tunnel", WithOnError(func(name string) {
		called = name
	}))

	var buf bytes.Buffer
	l.Unwrap().SetOutput(&buf)

	l.Errorf("relay failed")
	if called != "tunnel" {
		t.Fatalf("onError called with %q, want %q", called, "tunnel")
	}
}
