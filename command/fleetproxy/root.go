// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package fleetproxy

import (
	"github.com/spf13/cobra"

	"github.com/crawlforge/fleetproxy/bind"
	"github.com/crawlforge/fleetproxy/command/ready"
	"github.com/crawlforge/fleetproxy/command/run"
	"github.com/crawlforge/fleetproxy/command/test/httpbin"
	"github.com/crawlforge/fleetproxy/command/version"
	"github.com/crawlforge/fleetproxy/utils/cobrautil"
	"github.com/crawlforge/fleetproxy/utils/cobrautil/templates"
)

const (
	EnvPrefix          = "FLEETPROXY"
	ConfigFileFlagName = "config-file"
)

func CommandGroups() templates.CommandGroups {
	return templates.CommandGroups{
		{
			Message: "Commands:",
			Commands: []*cobra.Command{
				run.Command(),
				ready.Command(),
			},
		},
	}
}

func FlagGroups() templates.FlagGroups {
	return templates.FlagGroups{
		{
			Name: "Fleet options",
			Prefix: []string{
				"workers",
				"base-port",
				"health-interval",
				"leak-test-every",
				"",
			},
		},
		{
			Name: "Proxy options",
			Prefix: []string{
				"proxy",
				"deny-domains",
				"header",

				"request-timeout",
				"connect-timeout",
				"tunnel-idle-timeout",
				"read-limit",
				"write-limit",
			},
		},
		{
			Name: "Worker verification options",
			Prefix: []string{
				"echo",
				"target-url",
				"connectivity-check-url",
				"settle-delay",
				"shutdown-timeout",
			},
		},
		{
			Name: "Browser options",
			Prefix: []string{
				"chrome-path",
				"headless",
				"user-agent",
				"navigation-timeout",
				"browser-header",
				"no-browser",
			},
		},
		{
			Name: "HTTP client options",
			Prefix: []string{
				"http",
				"cacert-file",
				"insecure",
			},
		},
		{
			Name:   "API server options",
			Prefix: []string{"api"},
		},
		{
			Name: "Server options",
			Prefix: []string{
				"address",
				"protocol",
				"tls-cert-file",
				"tls-key-file",
				"read-header-timeout",
				"basic-auth",
			},
		},
		{
			Name:   "Logging options",
			Prefix: []string{"log"},
		},
		{
			Name:   "Options",
			Prefix: []string{"config-file"},
		},
	}
}

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleetproxy",
		Short: "Isolated proxy and browser fleet for web scraping workers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cobrautil.BindAll(cmd, EnvPrefix, ConfigFileFlagName)
		},
	}
	bind.ConfigFile(cmd.PersistentFlags(), new(string))

	cg := CommandGroups()
	cg.Add(cmd)

	templates.ActsAsRootCommand(cmd, nil, cg, FlagGroups(), EnvPrefix)

	// Add test commands.
	test := &cobra.Command{
		Use:   "test",
		Short: "Run test servers for development and verification",
	}
	test.AddCommand(
		httpbin.Command(),
	)
	cmd.AddCommand(test)

	// Add version command.
	cmd.AddCommand(version.Command())

	// Add config-file command to all commands.
	cobrautil.AddConfigFileForEachCommand(cmd, FlagGroups(), ConfigFileFlagName)

	return cmd
}
