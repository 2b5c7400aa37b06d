/*
Copyright 2016 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package templates

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/crawlforge/fleetproxy/utils/cobrautil/term"
)

const (
	wrapLimit    = 80
	helpFlagName = "help"
)

// ActsAsRootCommand overrides the usage and help functions of the given
// command and all its subcommands. Subcommands named in filters are hidden
// from the root help. FlagGroups split the options section into named groups,
// a group with an empty prefix collects the flags no other group matched.
func ActsAsRootCommand(cmd *cobra.Command, filters []string, groups CommandGroups, flagGroups FlagGroups, envPrefix string) {
	if cmd == nil {
		panic("nil root command")
	}

	t := &templater{
		RootCmd:       cmd,
		UsageTemplate: MainUsageTemplate(),
		HelpTemplate:  MainHelpTemplate(),
		CommandGroups: groups,
		FlagGroups:    flagGroups,
		EnvPrefix:     envPrefix,
		Filtered:      filters,
	}
	cmd.SetUsageFunc(t.UsageFunc())
	cmd.SetHelpFunc(t.HelpFunc())
}

// MainHelpTemplate is the template for 'help' used by most commands.
func MainHelpTemplate() string {
	return `{{with or .Long .Short}}{{. | trim}}{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}`
}

// MainUsageTemplate is the template for 'usage' used by most commands.
func MainUsageTemplate() string {
	sections := []string{
		"\n\n",
		SectionAliases,
		SectionExamples,
		SectionSubcommands,
		SectionFlags,
		SectionUsage,
		SectionTipsHelp,
	}
	return strings.TrimRightFunc(strings.Join(sections, ""), unicode.IsSpace) + "\n"
}

const (
	// SectionAliases is the help template section that displays command aliases.
	SectionAliases = `{{if gt .Aliases 0}}Aliases:
{{.NameAndAliases}}

{{end}}`

	// SectionExamples is the help template section that displays command examples.
	SectionExamples = `{{if .HasExample}}Examples:
{{trimRight .Example}}

{{end}}`

	// SectionSubcommands is the help template section that displays the command's subcommands.
	SectionSubcommands = `{{if .HasAvailableSubCommands}}{{cmdGroupsString .}}

{{end}}`

	// SectionFlags is the help template section that displays the command's flags.
	SectionFlags = `{{if .HasAvailableLocalFlags}}{{trimRight (flagsUsages .LocalFlags)}}

{{end}}`

	// SectionUsage is the help template section that displays the command's usage.
	SectionUsage = `{{if and .Runnable (ne .UseLine "")}}Usage:
  {{.UseLine}}

{{end}}`

	// SectionTipsHelp is the help template section that displays the '--help' hint.
	SectionTipsHelp = `{{if .HasAvailableSubCommands}}Use "{{rootCmdName .}} <command> --help" for more information about a given command.
{{end}}`
)

type templater struct {
	UsageTemplate string
	HelpTemplate  string
	RootCmd       *cobra.Command
	CommandGroups
	FlagGroups
	EnvPrefix string
	Filtered  []string
}

func (t *templater) UsageFunc() func(*cobra.Command) error {
	return func(c *cobra.Command) error {
		tt := template.New("usage")
		tt.Funcs(t.templateFuncs())
		template.Must(tt.Parse(t.UsageTemplate))

		// The word wrap writer wraps each write separately,
		// it needs the whole template output at once.
		buf := new(bytes.Buffer)
		if err := tt.Execute(buf, c); err != nil {
			return err
		}
		_, err := term.NewWordWrapWriter(c.OutOrStderr(), wrapLimit).Write(buf.Bytes())
		return err
	}
}

func (t *templater) HelpFunc() func(*cobra.Command, []string) {
	return func(c *cobra.Command, _ []string) {
		tt := template.New("help")
		tt.Funcs(t.templateFuncs())
		template.Must(tt.Parse(t.HelpTemplate))

		buf := new(bytes.Buffer)
		if err := tt.Execute(buf, c); err != nil {
			c.PrintErrln(err)
			return
		}
		if _, err := term.NewWordWrapWriter(c.OutOrStdout(), wrapLimit).Write(buf.Bytes()); err != nil {
			c.PrintErrln(err)
		}
	}
}

func (t *templater) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"trim":            strings.TrimSpace,
		"trimRight":       trimRightSpace,
		"gt":              cobra.Gt,
		"flagsUsages":     t.flagsUsages,
		"cmdGroupsString": t.cmdGroupsString,
		"rootCmdName":     t.rootCmdName,
	}
}

// flagsUsages prints non-hidden flags grouped by the templater flag groups.
// Commands with no flag groups get a single "Options" group.
func (t *templater) flagsUsages(f *flag.FlagSet) (string, error) {
	visible := flag.NewFlagSet("visible", flag.ContinueOnError)
	f.VisitAll(func(f *flag.Flag) {
		if f.Hidden || f.Name == helpFlagName {
			return
		}
		visible.AddFlag(f)
	})

	groups := t.FlagGroups
	if len(groups) == 0 {
		groups = FlagGroups{{Name: "Options", Prefix: []string{""}}}
	}

	buf := new(bytes.Buffer)
	p := NewHelpFlagPrinter(buf, t.EnvPrefix, wrapLimit)

	for i, gfs := range SplitFlagSet(groups, visible) {
		if !gfs.HasFlags() {
			continue
		}

		fmt.Fprintf(buf, "%s:\n", groups[i].Name)

		gfs.VisitAll(func(f *flag.Flag) {
			p.PrintHelpFlag(f)
		})
	}

	return buf.String(), nil
}

func (t *templater) cmdGroups(c *cobra.Command, all []*cobra.Command) CommandGroups {
	if len(t.CommandGroups) > 0 && c == t.RootCmd {
		all = filter(all, t.Filtered...)
		return AddAdditionalCommands(t.CommandGroups, "Other Commands:", all)
	}

	all = filter(all, "options")
	return CommandGroups{
		{
			Message:  "Available Commands:",
			Commands: all,
		},
	}
}

func (t *templater) cmdGroupsString(c *cobra.Command) string {
	groups := []string{}
	for _, cmdGroup := range t.cmdGroups(c, c.Commands()) {
		cmds := []string{cmdGroup.Message}
		for _, cmd := range cmdGroup.Commands {
			if cmd.IsAvailableCommand() {
				cmds = append(cmds, "  "+rpad(cmd.Name(), cmd.NamePadding())+" "+cmd.Short)
			}
		}
		groups = append(groups, strings.Join(cmds, "\n"))
	}
	return strings.Join(groups, "\n\n")
}

func (t *templater) rootCmdName(c *cobra.Command) string {
	return rootCmd(c).CommandPath()
}

func rootCmd(c *cobra.Command) *cobra.Command {
	if c != nil && c.HasParent() {
		return rootCmd(c.Parent())
	}
	return c
}

func rpad(s string, padding int) string {
	format := fmt.Sprintf("%%-%ds", padding)
	return fmt.Sprintf(format, s)
}

func trimRightSpace(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

func filter(cmds []*cobra.Command, names ...string) []*cobra.Command {
	out := []*cobra.Command{}
	for _, c := range cmds {
		if c.Hidden {
			continue
		}

		skip := false
		for _, name := range names {
			if name == c.Name() {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		out = append(out, c)
	}
	return out
}

// getFlagFormat is the Fprintf format consumed by writeFlag, the verbs are
// shorthand, name, value name, default, env and on the second line usage
// and deprecation notice.
func getFlagFormat(f *flag.Flag) string {
	if f.Shorthand != "" {
		return "    -%s, --%s%s%s%s\n%s%s"
	}
	return "    %s--%s%s%s%s\n%s%s"
}
