// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// ParseUserinfo parses a username:password string into url.Userinfo.
// Username and password are URL decoded, so special characters can be
// passed as %XX escapes. Password may be empty.
func ParseUserinfo(val string) (*url.Userinfo, error) {
	u, err := url.Parse("scheme://" + val + "@host")
	if err != nil {
		return nil, fmt.Errorf("invalid userinfo %q", val)
	}

	if u.User.Username() == "" {
		return nil, fmt.Errorf("invalid userinfo %q: username cannot be empty", val)
	}

	return u.User, nil
}

// ParseProxyURL parses an upstream proxy URL of the form
// [scheme://][user:pass@]host[:port]. Missing scheme defaults to http,
// missing port defaults to 1080.
func ParseProxyURL(val string) (*url.URL, error) {
	if !strings.Contains(val, "://") {
		val = "http://" + val
	}

	u, err := url.Parse(val)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q", val)
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("invalid proxy URL scheme %q, supported schemes are: http, https, socks5", u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid proxy URL %q: missing host", val)
	}
	if u.Port() == "" {
		u.Host = u.Host + ":1080"
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("invalid proxy URL %q: path, query and fragment are not allowed", val)
	}

	return u, nil
}

// userinfoBase64 encodes userinfo for use in a Basic Proxy-Authorization header.
// The credentials are encoded raw, not URL escaped.
func userinfoBase64(u *url.Userinfo) string {
	pass, _ := u.Password()
	return base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
}

// RedactURL returns the URL string with the password replaced by xxxxx.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
