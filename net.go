// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/crawlforge/fleetproxy/log"
	"github.com/crawlforge/fleetproxy/ratelimit"
	"go.uber.org/multierr"
)

type DialConfig struct {
	// DialTimeout is the maximum amount of time a dial will wait for
	// connect to complete.
	//
	// With or without a timeout, the operating system may impose
	// its own earlier timeout. For instance, TCP timeouts are
	// often around 3 minutes.
	DialTimeout time.Duration

	// KeepAlive enables TCP keep-alive probes for an active network connection.
	// The keep-alive probes are sent with OS specific intervals.
	KeepAlive bool
}

func DefaultDialConfig() *DialConfig {
	return &DialConfig{
		DialTimeout: 10 * time.Second,
		KeepAlive:   true,
	}
}

type Dialer struct {
	nd net.Dialer
}

func NewDialer(cfg *DialConfig) *Dialer {
	nd := net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: -1,
		Resolver: &net.Resolver{
			PreferGo: true,
		},
	}

	if cfg.KeepAlive {
		nd.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(enableTCPKeepAlive)
		}
	}

	return &Dialer{
		nd: nd,
	}
}

func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.nd.DialContext(ctx, network, address)
}

func defaultListenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		KeepAlive: -1,
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(enableTCPKeepAlive)
		},
	}
}

// Listen creates a listener for the provided network and address and configures OS-specific keep-alive parameters.
// See net.Listen for more information.
func Listen(network, address string) (net.Listener, error) {
	// The context cancellation does not close the listener.
	return defaultListenConfig().Listen(context.Background(), network, address)
}

type ListenerCallbacks interface {
	// OnAccept is called when a new connection is successfully accepted.
	OnAccept(net.Conn)

	// OnBindError is called when a listener fails to bind to an address.
	OnBindError(address string, err error)
}

// Listener is a single-address listener with rate limiting and callbacks.
// Accept unblocks with net.ErrClosed once Close is called.
type Listener struct {
	Address    string
	Log        log.Logger
	ReadLimit  int64
	WriteLimit int64
	Callbacks  ListenerCallbacks

	listener  net.Listener
	acceptCh  chan acceptResult
	wg        sync.WaitGroup
	closeCh   chan struct{}
	closeOnce sync.Once
}

type acceptResult struct {
	c   net.Conn
	err error
}

// Listen starts listening on the configured address.
// The method should be called only once.
func (l *Listener) Listen() error {
	l.acceptCh = make(chan acceptResult)
	l.closeCh = make(chan struct{})

	ll, err := Listen("tcp", l.Address)
	if err != nil {
		if l.Callbacks != nil {
			l.Callbacks.OnBindError(l.Address, err)
		}
		return err
	}

	if rl, wl := l.ReadLimit, l.WriteLimit; rl > 0 || wl > 0 {
		// ReadLimit is the read limit *from* the proxy and WriteLimit is the
		// write limit *to* the proxy, hence the ReadLimit is in fact
		// a txBandwidth and the WriteLimit is a rxBandwidth.
		ll = ratelimit.NewListener(ll, wl, rl)
	}

	l.listener = ll
	l.wg.Add(1)
	go l.acceptLoop(ll)

	return nil
}

func (l *Listener) acceptLoop(ll net.Listener) {
	defer l.wg.Done()
	for {
		c, err := ll.Accept()
		select {
		case l.acceptCh <- acceptResult{c, err}:
		case <-l.closeCh:
			if c != nil {
				if cerr := c.Close(); cerr != nil {
					l.Log.Errorf("failed to close connection: %v", cerr)
				}
			}
			return
		}
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	var (
		c   net.Conn
		err error
	)
	select {
	case <-l.closeCh:
		return nil, net.ErrClosed
	case res := <-l.acceptCh:
		c, err = res.c, res.err
	}
	if err != nil {
		return nil, err
	}

	if l.Callbacks != nil {
		l.Callbacks.OnAccept(c)
	}

	return c, nil
}

func (l *Listener) Addr() net.Addr {
	if l.listener == nil {
		return &net.IPAddr{}
	}

	return l.listener.Addr()
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.closeCh) })

	var merr error
	if l.listener != nil {
		if err := l.listener.Close(); err != nil {
			merr = multierr.Append(merr, err)
		}
	}

	l.wg.Wait()

	return merr
}
