// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
)

// BasicAuth guards an http.Handler with HTTP Basic Authentication.
type BasicAuth struct {
	realm string
}

func NewBasicAuth(realm string) *BasicAuth {
	return &BasicAuth{realm: realm}
}

// AuthenticatedRequest parses the request's Authorization header and
// returns true if the provided credentials match the expected username
// and password. Uses constant-time comparison in order to mitigate
// timing attacks.
func (ba *BasicAuth) AuthenticatedRequest(r *http.Request, expectedUser, expectedPass string) bool {
	user, pass, ok := parseBasicAuth(r.Header.Get("Authorization"))
	if !ok ||
		subtle.ConstantTimeCompare([]byte(user), []byte(expectedUser)) != 1 ||
		subtle.ConstantTimeCompare([]byte(pass), []byte(expectedPass)) != 1 {
		return false
	}

	return true
}

// parseBasicAuth parses an HTTP Basic Authentication string.
// "Basic QWxhZGRpbjpvcGVuIHNlc2FtZQ==" returns ("Aladdin", "open sesame", true).
func parseBasicAuth(auth string) (username, password string, ok bool) {
	const prefix = "Basic "
	// Case insensitive prefix match. See Issue 22736.
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	c, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	cs := string(c)
	username, password, ok = strings.Cut(cs, ":")
	if !ok {
		return "", "", false
	}
	return username, password, true
}

// Wrap wraps the provided http.Handler with basic authentication.
// Unauthenticated requests get a 401 Unauthorized response and the
// handler is not called.
func (ba *BasicAuth) Wrap(h http.Handler, expectedUser, expectedPass string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ba.AuthenticatedRequest(r, expectedUser, expectedPass) {
			w.Header().Set("WWW-Authenticate", "Basic realm="+strconv.Quote(ba.realm))
			w.Header().Set("Connection", "close")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		// Do not expose the credentials to the wrapped handler.
		r.Header.Del("Authorization")
		h.ServeHTTP(w, r)
	})
}
