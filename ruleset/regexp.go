// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ruleset implements regexp based matching of request targets,
// used for the proxy domain denylist.
package ruleset

import (
	"errors"
	"regexp"
	"strings"
)

type RegexpMatcher struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

var ErrNoIncludeRules = errors.New("no include rules specified")

// NewRegexpMatcher returns the RegexpMatcher with given include and
// exclude rules.
func NewRegexpMatcher(include, exclude []*regexp.Regexp) (*RegexpMatcher, error) {
	if len(include) == 0 {
		return nil, ErrNoIncludeRules
	}

	return &RegexpMatcher{
		include: join(include),
		exclude: join(exclude),
	}, nil
}

func join(rules []*regexp.Regexp) *regexp.Regexp {
	if len(rules) == 0 {
		return nil
	}

	var b strings.Builder
	for i := range rules {
		if i > 0 {
			b.WriteString("|")
		}
		b.WriteString(rules[i].String())
	}
	return regexp.MustCompile(b.String())
}

// Match returns true if the given string matches at least one of the
// include rules and does not match the exclude rules.
func (r *RegexpMatcher) Match(s string) bool {
	if r.exclude != nil && r.exclude.MatchString(s) {
		return false
	}
	return r.include.MatchString(s)
}

// RegexpListItem is a single entry of a regexp list flag.
// Entries prefixed with "-" are exclusions.
type RegexpListItem struct {
	*regexp.Regexp
	Exclude bool
}

func ParseRegexpListItem(val string) (RegexpListItem, error) {
	val, exclude := strings.CutPrefix(val, "-")
	r, err := regexp.Compile(val)
	if err != nil {
		return RegexpListItem{}, err
	}
	return RegexpListItem{r, exclude}, nil
}

func (r RegexpListItem) String() string {
	if r.Exclude {
		return "-" + r.Regexp.String()
	}
	return r.Regexp.String()
}

func NewRegexpMatcherFromList(l []RegexpListItem) (*RegexpMatcher, error) {
	var include, exclude []*regexp.Regexp
	for i := range l {
		if l[i].Exclude {
			exclude = append(exclude, l[i].Regexp)
		} else {
			include = append(include, l[i].Regexp)
		}
	}
	return NewRegexpMatcher(include, exclude)
}
