// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package templates

import (
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

type FlagGroup struct {
	Name   string
	Prefix []string
}

type FlagGroups []FlagGroup

type groupPrefix struct {
	prefix string
	group  int
}

// prefixesByLength returns all group prefixes sorted by length in descending
// order, so that the most specific prefix matches first.
func prefixesByLength(g FlagGroups) []groupPrefix {
	var result []groupPrefix
	for i := range g {
		for _, p := range g[i].Prefix {
			result = append(result, groupPrefix{prefix: p, group: i})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return len(result[i].prefix) > len(result[j].prefix)
	})

	return result
}

// SplitFlagSet splits a flag set into multiple flag sets based on the prefix of the flag names.
// If multiple groups match a flag, the longest matching prefix wins.
// The returned flag sets are ordered by the order of the groups.
func SplitFlagSet(g FlagGroups, f *pflag.FlagSet) []*pflag.FlagSet {
	result := make([]*pflag.FlagSet, len(g))
	for i := range g {
		result[i] = pflag.NewFlagSet(g[i].Name, pflag.ExitOnError)
	}

	prefixes := prefixesByLength(g)

	f.VisitAll(func(f *pflag.Flag) {
		for _, p := range prefixes {
			if strings.HasPrefix(f.Name, p.prefix) {
				result[p.group].AddFlag(f)
				break
			}
		}
	})
	return result
}
