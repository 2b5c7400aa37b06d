// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package httpbin

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/crawlforge/fleetproxy"
	"github.com/crawlforge/fleetproxy/bind"
	"github.com/crawlforge/fleetproxy/httplog"
	"github.com/crawlforge/fleetproxy/internal/version"
	"github.com/crawlforge/fleetproxy/log"
	"github.com/crawlforge/fleetproxy/log/stdlog"
	"github.com/crawlforge/fleetproxy/runctx"
	"github.com/crawlforge/fleetproxy/utils/cobrautil"
	"github.com/crawlforge/fleetproxy/utils/httpbin"
	"github.com/crawlforge/fleetproxy/utils/httpx"
)

type command struct {
	httpServerConfig *fleetproxy.HTTPServerConfig
	logConfig        *log.Config
}

func (c *command) runE(cmd *cobra.Command, _ []string) (cmdErr error) {
	if f := c.logConfig.File; f != nil {
		defer f.Close()
	}
	logger := stdlog.New(c.logConfig)

	defer func() {
		if cmdErr != nil {
			logger.Errorf("fatal error exiting: %s", cmdErr)
			cmd.SilenceErrors = true
		}
	}()

	{
		cfg, err := cobrautil.FlagsDescriber{
			Format:          cobrautil.Plain,
			ShowChangedOnly: true,
			ShowHidden:      true,
		}.DescribeFlags(cmd.Flags())
		if err != nil {
			return err
		}
		if len(cfg) > 0 {
			logger.Infof("configuration\n%s", cfg)
		} else {
			logger.Infof("using default configuration")
		}
	}

	g := runctx.NewGroup()

	s, err := fleetproxy.NewHTTPServer(c.httpServerConfig, httpbin.Handler(), logger.Named("server"))
	if err != nil {
		return err
	}
	defer s.Close()
	g.Add(s.Run)

	if os.Getenv("PLATFORM") == "container" {
		g.Add(func(ctx context.Context) error {
			logger.Named("api").Infof("HTTP server listen socket path=%s", fleetproxy.APIUnixSocket)
			r := prometheus.NewRegistry()
			h := fleetproxy.NewAPIHandler("HTTPBin "+version.Version, r, nil)
			return httpx.ServeUnixSocket(ctx, h, fleetproxy.APIUnixSocket)
		})
	}

	return g.Run()
}

func Command() *cobra.Command {
	c := command{
		httpServerConfig: fleetproxy.DefaultHTTPServerConfig(),
		logConfig:        log.DefaultConfig(),
	}

	cmd := &cobra.Command{
		Use:   "httpbin [--protocol <http|https|h2>] [--address <host:port>] [flags]",
		Short: "Start HTTP(S) server that serves httpbin.org API",
		RunE:  c.runE,
	}

	fs := cmd.Flags()
	bind.HTTPServerConfig(fs, c.httpServerConfig, "")
	bind.HTTPLogConfig(fs, []bind.NamedParam[httplog.Mode]{
		{Name: "server", Param: &c.httpServerConfig.LogHTTPMode},
	})
	bind.LogConfig(fs, c.logConfig)

	bind.AutoMarkFlagFilename(cmd)

	return cmd
}
