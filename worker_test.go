// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"errors"
	"testing"
	"time"
)

func TestWorkerSessionClose(t *testing.T) {
	t.Run("stops both resources", func(t *testing.T) {
		d := &fakeDriver{}
		pi := newTestInstance(t)
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: pi, Driver: d}

		if err := s.Close(time.Second); err != nil {
			t.Errorf("Close(): %v", err)
		}
		if d.quitCount() != 1 {
			t.Errorf("driver quit %d times, want 1", d.quitCount())
		}
		if pi.Running() {
			t.Error("proxy is still running")
		}
	})

	t.Run("driver failure does not leave the proxy running", func(t *testing.T) {
		d := &fakeDriver{quitErr: errors.New("browser is gone")}
		pi := newTestInstance(t)
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: pi, Driver: d}

		if err := s.Close(time.Second); err == nil {
			t.Error("Close() = nil, want the driver error")
		}
		if pi.Running() {
			t.Error("proxy is still running")
		}
	})

	t.Run("driverless session", func(t *testing.T) {
		pi := newTestInstance(t)
		s := &WorkerSession{ID: 1, Port: 8081, Proxy: pi}

		if err := s.Close(time.Second); err != nil {
			t.Errorf("Close(): %v", err)
		}
		if pi.Running() {
			t.Error("proxy is still running")
		}
	})
}
