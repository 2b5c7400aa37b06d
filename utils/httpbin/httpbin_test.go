// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package httpbin

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gavv/httpexpect/v2"
)

func newExpect(t *testing.T) *httpexpect.Expect {
	srv := httptest.NewServer(Handler())
	t.Cleanup(srv.Close)
	return httpexpect.Default(t, srv.URL)
}

func TestIP(t *testing.T) {
	e := newExpect(t)

	e.GET("/ip").Expect().
		Status(http.StatusOK).
		JSON().Object().Value("origin").String().IsEqual("127.0.0.1")

	e.GET("/ip").WithHeader("X-Forwarded-For", "203.0.113.7").Expect().
		Status(http.StatusOK).
		JSON().Object().Value("origin").String().IsEqual("203.0.113.7, 127.0.0.1")
}

func TestStatus(t *testing.T) {
	e := newExpect(t)

	for _, code := range []int{200, 301, 404, 500} {
		e.GET(fmt.Sprintf("/status/%d", code)).Expect().Status(code)
	}

	e.GET("/status/404").WithQuery("body", "true").Expect().
		Status(http.StatusNotFound).
		Body().IsEqual("Not Found")
}

func TestBasicAuth(t *testing.T) {
	e := newExpect(t)

	e.GET("/basic-auth/user/passwd").Expect().
		Status(http.StatusUnauthorized).
		Header("WWW-Authenticate").Contains("Basic")

	e.GET("/basic-auth/user/passwd").WithBasicAuth("user", "wrong").Expect().
		Status(http.StatusUnauthorized)

	e.GET("/basic-auth/user/passwd").WithBasicAuth("user", "passwd").Expect().
		Status(http.StatusOK)
}

func TestStreamBytes(t *testing.T) {
	e := newExpect(t)

	e.GET("/stream-bytes/100").Expect().
		Status(http.StatusOK).
		ContentType("application/octet-stream").
		Body().Length().IsEqual(100)

	e.GET("/stream-bytes/100").WithQuery("chunk_size", 7).Expect().
		Status(http.StatusOK).
		Body().Length().IsEqual(100)
}

func TestCountBytes(t *testing.T) {
	e := newExpect(t)

	e.POST("/count-bytes/").WithText("hello").Expect().
		Status(http.StatusOK).
		Header("Body-Size").IsEqual("5")
}

func TestHeadersEcho(t *testing.T) {
	e := newExpect(t)

	e.GET("/headers/").WithHeader("X-Test-Header", "test-value").Expect().
		Status(http.StatusOK).
		Header("X-Test-Header").IsEqual("test-value")
}

func TestWSEcho(t *testing.T) {
	e := newExpect(t)

	ws := e.GET("/ws/echo").WithWebsocketUpgrade().Expect().Websocket()
	defer ws.Disconnect()

	ws.WriteText("hello").Expect().TextMessage().Body().IsEqual("hello")
}
