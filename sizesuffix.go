// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"fmt"
	"strconv"
	"strings"
)

// SizeSuffix is a number of bytes with support for human readable
// suffixes. Bare numbers are bytes, the multipliers are binary,
// "10M" and "10MiB" both mean 10485760 bytes. It accepts the format
// the Go runtime uses for GOMEMLIMIT.
type SizeSuffix int64

const (
	sizeByte SizeSuffix = 1 << (10 * iota)
	sizeKi
	sizeMi
	sizeGi
	sizeTi
	sizePi
)

var sizeMultipliers = map[string]SizeSuffix{
	"":    sizeByte,
	"b":   sizeByte,
	"k":   sizeKi,
	"kb":  sizeKi,
	"kib": sizeKi,
	"m":   sizeMi,
	"mb":  sizeMi,
	"mib": sizeMi,
	"g":   sizeGi,
	"gb":  sizeGi,
	"gib": sizeGi,
	"t":   sizeTi,
	"tb":  sizeTi,
	"tib": sizeTi,
	"p":   sizePi,
	"pb":  sizePi,
	"pib": sizePi,
}

func (s SizeSuffix) String() string {
	switch {
	case s == 0:
		return "0"
	case s%sizePi == 0:
		return strconv.FormatInt(int64(s/sizePi), 10) + "Pi"
	case s%sizeTi == 0:
		return strconv.FormatInt(int64(s/sizeTi), 10) + "Ti"
	case s%sizeGi == 0:
		return strconv.FormatInt(int64(s/sizeGi), 10) + "Gi"
	case s%sizeMi == 0:
		return strconv.FormatInt(int64(s/sizeMi), 10) + "Mi"
	case s%sizeKi == 0:
		return strconv.FormatInt(int64(s/sizeKi), 10) + "Ki"
	default:
		return strconv.FormatInt(int64(s), 10)
	}
}

func (s *SizeSuffix) Set(v string) error {
	i := len(v)
	for i > 0 {
		if c := v[i-1]; c >= '0' && c <= '9' || c == '.' {
			break
		}
		i--
	}
	num, suffix := v[:i], strings.ToLower(strings.TrimSpace(v[i:]))

	mult, ok := sizeMultipliers[suffix]
	if !ok {
		return fmt.Errorf("invalid size suffix %q", v[i:])
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q", v)
	}
	if f < 0 {
		return fmt.Errorf("size must not be negative %q", v)
	}

	*s = SizeSuffix(f * float64(mult))
	return nil
}

func (s SizeSuffix) Type() string {
	return "size"
}
