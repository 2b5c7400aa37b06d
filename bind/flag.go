// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bind

import (
	"net/url"
	"os"
	"strings"

	"github.com/mmatczuk/anyflag"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/crawlforge/fleetproxy"
	"github.com/crawlforge/fleetproxy/browser"
	"github.com/crawlforge/fleetproxy/header"
	"github.com/crawlforge/fleetproxy/log"
	"github.com/crawlforge/fleetproxy/ruleset"
)

func ConfigFile(fs *pflag.FlagSet, configFile *string) {
	fs.StringVarP(configFile,
		"config-file", "c", *configFile, "<path>"+
			"Configuration file to load options from. "+
			"The supported formats are: JSON, YAML, TOML, HCL, and Java properties. "+
			"The file format is determined by the file extension, if not specified the default format is YAML. "+
			"The following precedence order of configuration sources is used: command flags, environment variables, config file, default values. ")
}

func FleetConfig(fs *pflag.FlagSet, cfg *fleetproxy.FleetConfig) {
	fs.IntVar(&cfg.Workers,
		"workers", cfg.Workers,
		"Number of scraping workers to run. "+
			"Each worker gets its own local proxy and its own browser, nothing but the identity registry is shared between workers. ")

	fs.IntVar(&cfg.BasePort,
		"base-port", cfg.BasePort,
		"First local proxy port. "+
			"Workers are assigned consecutive ports counted up from it, ports found taken at startup are skipped. ")

	fs.DurationVar(&cfg.HealthInterval,
		"health-interval", cfg.HealthInterval,
		"Time between two health checks of a worker. ")

	fs.IntVar(&cfg.LeakTestEvery,
		"leak-test-every", cfg.LeakTestEvery,
		"Include the IP leak test in every n-th health check. "+
			"The leak test is always run when a worker is initialized. "+
			"Set to 0 to restrict leak testing to worker initialization. ")
}

func ProxyConfig(fs *pflag.FlagSet, cfg *fleetproxy.ProxyConfig) {
	fs.VarP(anyflag.NewValueWithRedact[*url.URL](cfg.UpstreamProxyURI, &cfg.UpstreamProxyURI, fleetproxy.ParseProxyURL, RedactURL),
		"proxy", "x", "[protocol://]host[:port]"+
			"Upstream proxy that all worker traffic exits through. "+
			"The supported protocols are: http, https, socks5. "+
			"No protocol specified will be treated as HTTP proxy. "+
			"If the port number is not specified, it is assumed to be 1080. "+
			"The basic authentication username and password can be specified in the host string e.g. user:pass@host:port. "+
			"Alternatively, you can use the -s, --proxy-credentials flag to specify the credentials. ")

	fs.DurationVar(&cfg.RequestTimeout,
		"request-timeout", cfg.RequestTimeout,
		"Total time budget for a forwarded request, from dialing the upstream proxy to receiving response headers. ")

	fs.DurationVar(&cfg.ConnectTimeout,
		"connect-timeout", cfg.ConnectTimeout,
		"Maximum time for establishing a tunnel through the upstream proxy. ")

	fs.DurationVar(&cfg.TunnelIdleTimeout,
		"tunnel-idle-timeout", cfg.TunnelIdleTimeout,
		"Close an established tunnel after no data has been relayed in either direction for this long. ")

	fs.Var(&cfg.ReadLimit,
		"read-limit", "<bandwidth>"+
			"Per-connection read bandwidth limit in bytes per second, e.g. 1MiB. "+
			"0 means no limit. ")

	fs.Var(&cfg.WriteLimit,
		"write-limit", "<bandwidth>"+
			"Per-connection write bandwidth limit in bytes per second, e.g. 1MiB. "+
			"0 means no limit. ")
}

func Credentials(fs *pflag.FlagSet, credentials **url.Userinfo) {
	fs.VarP(anyflag.NewValueWithRedact[*url.Userinfo](*credentials, credentials, fleetproxy.ParseUserinfo, RedactUserinfo),
		"proxy-credentials", "s", "<username:password>"+
			"Upstream proxy basic authentication credentials. "+
			"Takes precedence over credentials embedded in the proxy URL. "+
			"Username and password are URL decoded. "+
			"This allows you to pass in special characters such as @ by using %%40 or pass in a colon with %%3a. ")
}

func DenyDomains(fs *pflag.FlagSet, denyDomains *[]ruleset.RegexpListItem) {
	fs.Var(anyflag.NewSliceValue[ruleset.RegexpListItem](*denyDomains, denyDomains, ruleset.ParseRegexpListItem),
		"deny-domains", "[-]<regexp>,..."+
			"Deny requests to the matching domains with 403 Forbidden, e.g. tracker and telemetry domains. "+
			"Prefix domains with '-' to exclude requests to certain domains from being denied. ")
}

func RequestHeaders(fs *pflag.FlagSet, headers *[]header.Header) {
	fs.VarP(anyflag.NewSliceValueWithRedact[header.Header](*headers, headers, header.ParseHeader, RedactHeader),
		"header", "H", "<header>"+
			"Add or remove HTTP request headers on top of the built-in sanitization. "+
			"Use the format \"name: value\" to add a header, "+
			"\"name;\" to set the header to empty value, "+
			"\"-name\" to remove the header, "+
			"\"-name*\" to remove headers by prefix. "+
			"The header name will be normalized to canonical form. "+
			"The header value should not contain any newlines or carriage returns. "+
			"The flag can be specified multiple times. "+
			"Example: -H \"Accept-Language: en-US\" -H \"-X-Tracking-*\". ")
}

func IPEchoConfig(fs *pflag.FlagSet, cfg *fleetproxy.IPEchoConfig) {
	fs.StringVar(&cfg.URL,
		"echo-url", cfg.URL, "<url>"+
			"IP echo endpoint used for leak testing. "+
			"It must return a JSON document with the caller's address under the \"origin\" or \"ip\" key. "+
			"You can self-host it with the \"test httpbin\" command. ")

	fs.DurationVar(&cfg.Timeout,
		"echo-timeout", cfg.Timeout,
		"Timeout for a single IP echo request. ")
}

func RecoveryConfig(fs *pflag.FlagSet, cfg *fleetproxy.RecoveryConfig) {
	fs.StringVar(&cfg.TargetURL,
		"target-url", cfg.TargetURL, "<url>"+
			"URL opened through the browser right after a worker passes the leak test. "+
			"If empty, no navigation is performed. ")

	fs.StringVar(&cfg.ConnectivityCheckURL,
		"connectivity-check-url", cfg.ConnectivityCheckURL, "<url>"+
			"URL probed through every freshly started proxy before a browser is attached to it. "+
			"If empty, the probe is skipped. ")

	fs.DurationVar(&cfg.SettleDelay,
		"settle-delay", cfg.SettleDelay,
		"Time to wait after tearing a worker down before rebinding its port. ")

	fs.DurationVar(&cfg.ShutdownTimeout,
		"shutdown-timeout", cfg.ShutdownTimeout,
		"Maximum time for a browser quit during worker teardown. ")
}

func BrowserConfig(fs *pflag.FlagSet, cfg *browser.Config) {
	fs.StringVar(&cfg.ExecPath,
		"chrome-path", cfg.ExecPath, "<path>"+
			"Chrome binary to launch. "+
			"If empty, Chrome is looked up in well known locations. ")

	fs.BoolVar(&cfg.Headless,
		"headless", cfg.Headless,
		"Run Chrome without a display. "+
			"Set to false to watch the workers browse, e.g. when debugging locally. ")

	fs.StringVar(&cfg.UserAgent,
		"user-agent", cfg.UserAgent,
		"Override the browser User-Agent. ")

	fs.DurationVar(&cfg.NavigationTimeout,
		"navigation-timeout", cfg.NavigationTimeout,
		"Maximum time for a single page navigation including waiting for the document body. ")

	fs.Var(anyflag.NewSliceValue[header.Header](cfg.ExtraHeaders, &cfg.ExtraHeaders, header.ParseHeader),
		"browser-header", "<header>"+
			"Add or remove HTTP headers in the browser itself, they are attached to every request the browser makes. "+
			"Unlike --header rewrites they also reach HTTPS targets, which the proxy only passes through in a tunnel. "+
			"The format is the same as for the --header flag. "+
			"The flag can be specified multiple times. ")
}

func HTTPTransportConfig(fs *pflag.FlagSet, cfg *fleetproxy.HTTPTransportConfig) {
	fs.DurationVar(&cfg.DialTimeout,
		"http-dial-timeout", cfg.DialTimeout,
		"The maximum amount of time a dial will wait for a connect to complete. "+
			"With or without a timeout, the operating system may impose its own earlier timeout. For instance, TCP timeouts are often around 3 minutes. ")

	fs.DurationVar(&cfg.HandshakeTimeout,
		"http-tls-handshake-timeout", cfg.HandshakeTimeout,
		"The maximum amount of time waiting to wait for a TLS handshake. Zero means no limit. ")

	fs.DurationVar(&cfg.IdleConnTimeout,
		"http-idle-conn-timeout", cfg.IdleConnTimeout,
		"The maximum amount of time an idle (keep-alive) connection will remain idle before closing itself. "+
			"Zero means no limit. ")

	fs.DurationVar(&cfg.ResponseHeaderTimeout,
		"http-response-header-timeout", cfg.ResponseHeaderTimeout,
		"The amount of time to wait for a server's response headers after fully writing the request (including its body, if any). "+
			"This time does not include the time to read the response body. "+
			"Zero means no limit. ")

	fs.BoolVar(&cfg.InsecureSkipVerify, "insecure", cfg.InsecureSkipVerify,
		"Don't verify the server's certificate chain and host name. "+
			"Enable to work with self-signed certificates. ")

	fs.StringSliceVar(&cfg.CACertFiles,
		"cacert-file", cfg.CACertFiles, "<path>,..."+
			"Add your own CA certificates to verify against. "+
			"The system root certificates will be used in addition to any certificates in this list. ")
}

func HTTPServerConfig(fs *pflag.FlagSet, cfg *fleetproxy.HTTPServerConfig, prefix string, schemes ...fleetproxy.Scheme) {
	namePrefix := prefix
	if namePrefix != "" {
		namePrefix += "-"
	}

	fs.StringVar(&cfg.Addr,
		namePrefix+"address", cfg.Addr, "<host:port>"+
			"The server address to listen on. "+
			"If the host is empty, the server will listen on all available interfaces. "+
			"If the address is empty, the server is disabled. ")

	if schemes == nil {
		schemes = []fleetproxy.Scheme{
			fleetproxy.HTTPScheme,
			fleetproxy.HTTPSScheme,
			fleetproxy.HTTP2Scheme,
		}
	}

	if len(schemes) > 1 {
		supportedSchemesStr := func(delim string) string {
			var sb strings.Builder
			for _, s := range schemes {
				if sb.Len() > 0 {
					sb.WriteString(delim)
				}
				sb.WriteString(string(s))
			}
			return sb.String()
		}

		fs.Var(anyflag.NewValue[fleetproxy.Scheme](cfg.Protocol, &cfg.Protocol,
			anyflag.EnumParser[fleetproxy.Scheme](schemes...)),
			namePrefix+"protocol", "<"+supportedSchemesStr("|")+">"+
				"The server protocol. "+
				"For https and h2 protocols, if TLS certificate is not specified, "+
				"the server will use a self-signed certificate. ")

		fs.StringVar(&cfg.CertFile,
			namePrefix+"tls-cert-file", cfg.CertFile, "<path>"+
				"TLS certificate to use if the server protocol is https or h2. ")

		fs.StringVar(&cfg.KeyFile,
			namePrefix+"tls-key-file", cfg.KeyFile, "<path>"+
				"TLS private key to use if the server protocol is https or h2. ")
	}

	fs.DurationVar(&cfg.ReadHeaderTimeout,
		namePrefix+"read-header-timeout", cfg.ReadHeaderTimeout,
		"The amount of time allowed to read request headers. ")

	fs.Var(anyflag.NewValueWithRedact[*url.Userinfo](cfg.BasicAuth, &cfg.BasicAuth, fleetproxy.ParseUserinfo, RedactUserinfo),
		namePrefix+"basic-auth", "<username:password>"+
			"Basic authentication credentials to protect the server. "+
			"Username and password are URL decoded. "+
			"This allows you to pass in special characters such as @ by using %%40 or pass in a colon with %%3a. ")
}

func LogConfig(fs *pflag.FlagSet, cfg *log.Config) {
	fs.VarP(NewFileFlag(&cfg.File,
		OpenFileParser(os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600, 0o700)),
		"log-file", "", "<path>"+
			"Path to the log file, if empty, logs to stdout. "+
			"The directory is created if it does not exist. ")

	logLevel := []log.Level{
		log.ErrorLevel,
		log.InfoLevel,
		log.DebugLevel,
	}
	fs.Var(anyflag.NewValue[log.Level](cfg.Level, &cfg.Level, anyflag.EnumParser[log.Level](logLevel...)),
		"log-level", "<error|info|debug>"+
			"Log level. ")
}

func MarkFlagHidden(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.Flags().MarkHidden(name); err != nil {
			panic(err)
		}
	}
}

func MarkFlagRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func AutoMarkFlagFilename(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if strings.HasPrefix(f.Usage, "<path") ||
			strings.HasSuffix(f.Name, "-file") ||
			strings.HasSuffix(f.Name, "-dir") {
			MarkFlagFilename(cmd, f.Name)
		}
	})
}

func MarkFlagFilename(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagFilename(name); err != nil {
			panic(err)
		}
	}
}
