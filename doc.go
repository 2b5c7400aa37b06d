// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fleetproxy runs a fleet of isolated web scraping workers.
// Each worker owns a local forward proxy bound to a loopback port and a headless
// browser that uses this proxy exclusively, all worker traffic exits through an
// upstream proxy. A worker serves only after an IP leak test proved that its
// proxied identity differs from the host identity, and workers are health
// checked and rebuilt when their proxy or browser breaks.
package fleetproxy
