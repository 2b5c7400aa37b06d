// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/crawlforge/fleetproxy/log"
)

// IdentityRegistry tracks the last observed public IP behind each
// worker proxy port. It is shared by all workers of a process and
// detects accidental IP reuse across worker proxies.
//
// Entries are overwritten on re-check and never removed, a stale entry
// only ever causes a spurious collision warning.
type IdentityRegistry struct {
	mu  sync.Mutex
	ips map[int]string
	log log.Logger
}

func NewIdentityRegistry(log log.Logger) *IdentityRegistry {
	return &IdentityRegistry{
		ips: make(map[int]string),
		log: log,
	}
}

// RecordAndCheck stores ip as the identity observed behind the proxy on
// port and reports whether it is unique among all recorded workers.
// A collision degrades isolation but does not invalidate a single
// worker's run, so it is logged as a warning and the fleet keeps going.
func (r *IdentityRegistry) RecordAndCheck(port int, ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ips[port] = ip

	unique := true
	for p, other := range r.ips {
		if p != port && other == ip {
			r.log.Infof("[WARN] proxy on port %d shares IP %s with the proxy on port %d", port, ip, p)
			unique = false
		}
	}
	return unique
}

// PortIdentity is one registry entry.
type PortIdentity struct {
	Port int    `json:"port"`
	IP   string `json:"ip"`
}

// Snapshot returns all recorded identities ordered by port.
func (r *IdentityRegistry) Snapshot() []PortIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()

	ports := maps.Keys(r.ips)
	slices.Sort(ports)

	s := make([]PortIdentity, 0, len(ports))
	for _, p := range ports {
		s = append(s, PortIdentity{Port: p, IP: r.ips[p]})
	}
	return s
}
