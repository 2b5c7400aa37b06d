// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dialvia

import (
	"context"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

// SOCKS5ProxyDialer dials connections through a SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	dial     ContextDialerFunc
	proxyURL *url.URL
}

func SOCKS5Proxy(dial ContextDialerFunc, proxyURL *url.URL) *SOCKS5ProxyDialer {
	if dial == nil {
		panic("dial is required")
	}
	if proxyURL == nil {
		panic("proxy URL is required")
	}
	if proxyURL.Scheme != "socks5" {
		panic("proxy URL scheme must be socks5")
	}

	return &SOCKS5ProxyDialer{
		dial:     dial,
		proxyURL: proxyURL,
	}
}

func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var auth *proxy.Auth
	if u := d.proxyURL.User; u != nil {
		auth = new(proxy.Auth)
		auth.User = u.Username()
		if p, ok := u.Password(); ok {
			auth.Password = p
		}
	}

	proxyHost := d.proxyURL.Hostname()
	proxyPort := d.proxyURL.Port()
	if proxyPort == "" {
		proxyPort = "1080"
	}

	sd, err := proxy.SOCKS5("tcp", net.JoinHostPort(proxyHost, proxyPort), auth, d.dial)
	if err != nil {
		return nil, err
	}

	return sd.(proxy.ContextDialer).DialContext(ctx, network, addr)
}
