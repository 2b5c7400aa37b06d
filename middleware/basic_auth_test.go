// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBasicAuthAuthenticatedRequest(t *testing.T) {
	ba := NewBasicAuth("test")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetBasicAuth("user", "pass")

	if !ba.AuthenticatedRequest(r, "user", "pass") {
		t.Errorf("AuthenticatedRequest failed")
	}
	if ba.AuthenticatedRequest(r, "user", "nope") {
		t.Errorf("AuthenticatedRequest passed with wrong password")
	}
}

func TestBasicAuthWrap(t *testing.T) {
	ba := NewBasicAuth("test")

	h := ba.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("auth header should not be forwarded")
		}
		w.WriteHeader(http.StatusOK)
	}), "user", "pass")

	t.Run("authenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetBasicAuth("user", "pass")

		h.ServeHTTP(w, r)
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("got %v", w.Result().StatusCode)
		}
	})

	t.Run("not authenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		h.ServeHTTP(w, r)
		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("got %v", w.Result().StatusCode)
		}
		if w.Result().Header.Get("WWW-Authenticate") == "" {
			t.Errorf("missing WWW-Authenticate header")
		}
	})
}
