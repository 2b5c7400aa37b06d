// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/crawlforge/fleetproxy/log"
)

// Notifier delivers operator alerts raised by the worker lifecycle.
// Implementations are fire-and-forget, Notify must not block the caller
// and must not panic back into it. Alert transport and formatting live
// outside this module.
type Notifier interface {
	Notify(title, details string, context map[string]string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(title, details string, context map[string]string) {}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log log.Logger
}

func (n LogNotifier) Notify(title, details string, context map[string]string) {
	n.Log.Errorf("ALERT %s: %s%s", title, details, formatNotifyContext(context))
}

func formatNotifyContext(context map[string]string) string {
	if len(context) == 0 {
		return ""
	}

	keys := maps.Keys(context)
	slices.Sort(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(context[k])
	}
	return sb.String()
}

// Context key marking an alert as a security incident, set when a
// worker fails its identity verification.
const notifyContextSecurityBreach = "security_breach"
