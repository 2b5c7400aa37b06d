// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crawlforge/fleetproxy/httplog"
	"github.com/crawlforge/fleetproxy/log"
	"github.com/crawlforge/fleetproxy/middleware"
	"github.com/crawlforge/fleetproxy/utils/certutil"
)

type Scheme string

const (
	HTTPScheme  Scheme = "http"
	HTTPSScheme Scheme = "https"
	HTTP2Scheme Scheme = "h2"
)

func (s Scheme) String() string {
	return string(s)
}

func (s Scheme) TLS() bool {
	return s == HTTPSScheme || s == HTTP2Scheme
}

type HTTPServerConfig struct {
	// Addr is the address the server listens on.
	// An empty address disables the server.
	Addr     string
	Protocol Scheme

	// CertFile and KeyFile configure the TLS certificate for https and
	// h2 servers. If both are empty a self-signed certificate is
	// generated on startup.
	CertFile string
	KeyFile  string

	ReadHeaderTimeout time.Duration

	// BasicAuth protects all endpoints with HTTP Basic Authentication.
	BasicAuth *url.Userinfo

	LogHTTPMode httplog.Mode

	PromNamespace string
	PromRegistry  prometheus.Registerer
}

func DefaultHTTPServerConfig() *HTTPServerConfig {
	return &HTTPServerConfig{
		Addr:              "localhost:10000",
		Protocol:          HTTPScheme,
		ReadHeaderTimeout: 1 * time.Minute,
		LogHTTPMode:       httplog.Errors,
	}
}

func (c *HTTPServerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	switch c.Protocol {
	case HTTPScheme, HTTPSScheme, HTTP2Scheme:
	default:
		return fmt.Errorf("unsupported protocol %q", c.Protocol)
	}
	return nil
}

// HTTPServer serves the diagnostic API.
// The zero value is not usable, use NewHTTPServer.
type HTTPServer struct {
	config   HTTPServerConfig
	log      log.Logger
	srv      *http.Server
	listener net.Listener
}

// NewHTTPServer opens the listener and wraps the handler with basic
// auth, metrics and logging middleware as configured.
// It is the caller's responsibility to call Close on the returned server.
func NewHTTPServer(cfg *HTTPServerConfig, h http.Handler, log log.Logger) (*HTTPServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hs := &HTTPServer{
		config: *cfg,
		log:    log,
		srv: &http.Server{
			Handler:           withMiddleware(cfg, log, h),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}

	if cfg.Protocol.TLS() {
		if err := hs.configureTLS(); err != nil {
			return nil, err
		}
	}

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on address %s: %w", cfg.Addr, err)
	}
	hs.listener = l

	hs.log.Infof("API server listen address=%s protocol=%s", l.Addr(), cfg.Protocol)

	return hs, nil
}

func withMiddleware(cfg *HTTPServerConfig, log log.Logger, h http.Handler) http.Handler {
	// The innermost wrap is applied last, basic auth guards everything
	// including metrics collection.
	if cfg.LogHTTPMode != httplog.None {
		h = httplog.NewLogger(log.Infof, cfg.LogHTTPMode).LogFunc().Wrap(h)
	}
	if cfg.PromRegistry != nil {
		h = middleware.NewPrometheus(cfg.PromRegistry, cfg.PromNamespace).Wrap(h)
	}
	if u := cfg.BasicAuth; u != nil {
		p, _ := u.Password()
		h = middleware.NewBasicAuth("API").Wrap(h, u.Username(), p)
	}
	return h
}

func (hs *HTTPServer) configureTLS() error {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if hs.config.Protocol == HTTP2Scheme {
		tlsCfg.NextProtos = []string{"h2", "http/1.1"}
	} else {
		// Disable the bundled HTTP/2 support for plain https.
		hs.srv.TLSNextProto = make(map[string]func(*http.Server, *tls.Conn, http.Handler))
	}

	if hs.config.CertFile == "" && hs.config.KeyFile == "" {
		hs.log.Infof("no TLS certificate provided, using a self-signed certificate")
		cert, err := certutil.ECDSASelfSignedCert().Gen()
		if err != nil {
			return fmt.Errorf("generate self-signed certificate: %w", err)
		}
		tlsCfg.Certificates = append(tlsCfg.Certificates, cert)
	} else {
		cert, err := tls.LoadX509KeyPair(hs.config.CertFile, hs.config.KeyFile)
		if err != nil {
			return fmt.Errorf("load certificate: %w", err)
		}
		tlsCfg.Certificates = append(tlsCfg.Certificates, cert)
	}

	hs.srv.TLSConfig = tlsCfg

	return nil
}

func (hs *HTTPServer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := hs.srv.Shutdown(context.Background()); err != nil {
			hs.log.Errorf("failed to shutdown server error=%s", err)
		}
	}()

	var err error
	if hs.config.Protocol.TLS() {
		err = hs.srv.ServeTLS(hs.listener, "", "")
	} else {
		err = hs.srv.Serve(hs.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}

	wg.Wait()
	return nil
}

// Addr returns the address the server is listening on.
func (hs *HTTPServer) Addr() string {
	return hs.listener.Addr().String()
}

func (hs *HTTPServer) Close() error {
	err := hs.srv.Close()
	if lerr := hs.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) && err == nil {
		err = lerr
	}
	return err
}
