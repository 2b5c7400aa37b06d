// Copyright 2024-2026 CrawlForge Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"log"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/crawlforge/fleetproxy/command/fleetproxy"
	"github.com/crawlforge/fleetproxy/command/run"
	"github.com/crawlforge/fleetproxy/utils/docsgen"
)

var (
	docsDir = flag.String("docs-dir", "", "path to the docs directory")

	cliDir, cfgDir, promDir string
)

func main() {
	flag.Parse()

	cliDir = path.Join(*docsDir, "content", "cli")
	cfgDir = path.Join(*docsDir, "content", "config")
	promDir = path.Join(*docsDir, "content", "prom")

	for _, dir := range []string{cliDir, cfgDir, promDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Fatal(err)
		}
	}

	cg := fleetproxy.CommandGroups()
	cg.Add(&cobra.Command{
		Use: "fleetproxy",
	})
	if err := docsgen.WriteCommandIndex(cg, cliDir, "Fleetproxy"); err != nil {
		log.Fatal(err)
	}

	if err := docsgen.WriteCommandDoc(fleetproxy.Command(), cliDir); err != nil {
		log.Fatal(err)
	}

	if err := docsgen.WriteDefaultConfig(fleetproxy.Command(), cfgDir); err != nil {
		log.Fatal(err)
	}

	r, err := run.Metrics()
	if err != nil {
		log.Fatal(err)
	}
	if err := docsgen.WriteCommandProm("fleetproxy run", r, promDir); err != nil {
		log.Fatal(err)
	}
}
