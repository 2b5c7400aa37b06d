// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bind

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mmatczuk/anyflag"
	"github.com/spf13/pflag"

	"github.com/crawlforge/fleetproxy/httplog"
)

// HTTPLogConfig binds a single log-http flag that can set the HTTP
// logging mode for multiple servers at once. Values are
// "[<name>:]<mode>", a value without a name sets the default mode for
// all servers not named explicitly.
func HTTPLogConfig(fs *pflag.FlagSet, cfg []NamedParam[httplog.Mode]) {
	names := httplogExtractNames(cfg)

	var src []NamedParam[httplog.Mode]
	p := func(val string) (NamedParam[httplog.Mode], error) {
		name, mode, err := httplog.SplitNameMode(val)
		if err != nil {
			return NamedParam[httplog.Mode]{}, err
		}
		if name != "" && !slices.Contains(names, name) {
			return NamedParam[httplog.Mode]{}, fmt.Errorf("invalid name %q, available names: %s", name, strings.Join(names, ", "))
		}
		return NamedParam[httplog.Mode]{Name: name, Param: &mode}, nil
	}

	v := anyflag.NewSliceValue[NamedParam[httplog.Mode]](nil, &src, p)
	fs.Var(httplogFlag{v, func() { httplogUpdate(cfg, src) }},
		"log-http", "[<server>:]<none|short-url|url|headers|errors>,..."+
			"HTTP request and response logging mode. "+
			"Setting this to none disables logging. "+
			"The mode can be set for each server separately, e.g. --log-http=api:none,proxy:url. "+
			"Available servers: "+strings.Join(names, ", ")+". ")
}

type httplogFlag struct {
	*anyflag.SliceValue[NamedParam[httplog.Mode]]
	update func()
}

func (f httplogFlag) Set(val string) (err error) {
	err = f.SliceValue.Set(val)

	if err == nil {
		f.update()
	}

	return
}

func (f httplogFlag) Replace(vals []string) (err error) {
	err = f.SliceValue.Replace(vals)

	if err == nil {
		f.update()
	}

	return
}

func httplogUpdate(dst, src []NamedParam[httplog.Mode]) {
	changed := make([]bool, len(dst))

	// Update dst with src values.
	for i := range dst {
		for j := range src {
			if dst[i].Name == src[j].Name {
				*dst[i].Param = *src[j].Param
				changed[i] = true
				break
			}
		}
	}

	// Find default mode if set. The zero mode is mapped to the
	// httplog default downstream.
	var defaultMode httplog.Mode
	for i := range src {
		j := len(src) - i - 1
		if src[j].Name == "" {
			defaultMode = *src[j].Param
			break
		}
	}

	// Set default mode for unset values.
	for i := range dst {
		if !changed[i] {
			*dst[i].Param = defaultMode
		}
	}
}

func httplogExtractNames(cfg []NamedParam[httplog.Mode]) []string {
	names := make([]string, 0, len(cfg))
	for _, c := range cfg {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}
