// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bind

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crawlforge/fleetproxy/httplog"
)

func TestHTTPLogUpdate(t *testing.T) {
	ptr := func(m httplog.Mode) *httplog.Mode {
		return &m
	}

	dst := []NamedParam[httplog.Mode]{
		{
			Name:  "api",
			Param: new(httplog.Mode),
		},
		{
			Name:  "proxy",
			Param: new(httplog.Mode),
		},
	}

	src := []NamedParam[httplog.Mode]{
		{
			Name:  "",
			Param: ptr(httplog.None),
		},
		{
			Name:  "api",
			Param: ptr(httplog.ShortURL),
		},
	}

	expected := []NamedParam[httplog.Mode]{
		{
			Name:  "api",
			Param: ptr(httplog.ShortURL),
		},
		{
			Name:  "proxy",
			Param: ptr(httplog.None),
		},
	}

	httplogUpdate(dst, src)

	if diff := cmp.Diff(expected, dst); diff != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", diff)
	}
}

func TestHTTPLogUpdateWithoutDefault(t *testing.T) {
	ptr := func(m httplog.Mode) *httplog.Mode {
		return &m
	}

	dst := []NamedParam[httplog.Mode]{
		{
			Name:  "api",
			Param: new(httplog.Mode),
		},
		{
			Name:  "proxy",
			Param: new(httplog.Mode),
		},
	}

	src := []NamedParam[httplog.Mode]{
		{
			Name:  "api",
			Param: ptr(httplog.ShortURL),
		},
	}

	expected := []NamedParam[httplog.Mode]{
		{
			Name:  "api",
			Param: ptr(httplog.ShortURL),
		},
		{
			Name:  "proxy",
			Param: ptr(""),
		},
	}

	httplogUpdate(dst, src)

	if diff := cmp.Diff(expected, dst); diff != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", diff)
	}
}
