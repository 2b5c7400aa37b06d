// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package httphandler provides small handlers for the API server
// endpoints.
package httphandler

import (
	"encoding/json"
	"net/http"
	"runtime"
)

func SendFile(contentType string, content []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(content)
	})
}

// SendJSON responds with the JSON encoding of v(), evaluated per
// request so that the handler always serves a fresh snapshot.
func SendJSON(v func() any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v()) //nolint // ignore error
	})
}

func Version(version, time, commit string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		v := struct {
			Version string `json:"version"`
			Time    string `json:"time"`
			Commit  string `json:"commit"`

			GoArch    string `json:"go_arch"`
			GOOS      string `json:"go_os"`
			GoVersion string `json:"go_version"`
		}{
			Version: version,
			Time:    time,
			Commit:  commit,

			GoArch:    runtime.GOARCH,
			GOOS:      runtime.GOOS,
			GoVersion: runtime.Version(),
		}
		json.NewEncoder(w).Encode(v) //nolint // ignore error
	})
}
