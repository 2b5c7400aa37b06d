// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ratelimit

import (
	"net"
	"testing"
)

func TestListenerAcceptWrapsConn(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	rl := NewListener(l, 1024*1024, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c, err := net.Dial("tcp", l.Addr().String())
		if err != nil {
			t.Error(err)
			return
		}
		c.Close()
	}()

	c, err := rl.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	<-done

	lc, ok := c.(*Conn)
	if !ok {
		t.Fatalf("got %T, want *Conn", c)
	}
	if lc.rxLimiter == nil {
		t.Error("rx limiter not set")
	}
	if lc.txLimiter != nil {
		t.Error("tx limiter should not be set")
	}
}
