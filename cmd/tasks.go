package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitesmith/internal/tasks"
)

// keepGoing lets a strict command apply the configured error policy.
var keepGoing bool

// taskCommands exposes each named task as a subcommand. Strict commands fail
// on every error unless --keep-going is passed.
var taskCommands = []struct {
	name    string
	aliases []string
	short   string
	strict  bool
}{
	{tasks.NameClean, nil, "Remove the output root", false},
	{tasks.NameStyles, nil, "Compile the stylesheet entry", false},
	{tasks.NameVendorCSS, []string{"vendor-css"}, "Concatenate vendor stylesheets", false},
	{tasks.NameScripts, nil, "Bundle the script entry", false},
	{tasks.NameTemplates, nil, "Render page templates", false},
	{tasks.NameImages, nil, "Copy images", false},
	{tasks.NameFonts, nil, "Copy fonts", false},
	{tasks.NameWatch, nil, "Rerun tasks when their sources change", false},
	{tasks.NameServer, []string{"serve"}, "Serve the output root with live reload", false},
	{tasks.NameBuild, []string{"b"}, "Clean, then build every asset once", true},
}

func init() {
	for _, tc := range taskCommands {
		name, strict := tc.name, tc.strict
		c := &cobra.Command{
			Use:     name,
			Aliases: tc.aliases,
			Short:   tc.short,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTask(cmd, name, strict && !keepGoing)
			},
		}
		if strict {
			c.Long = tc.short + `.

Every failure fails the command, compile errors included, so a broken
stylesheet, script or template stops a CI build. Pass --keep-going to report
errors of the kinds listed in errors.recoverable and finish the build anyway.`
			c.Flags().BoolVar(&keepGoing, "keep-going", false, "apply errors.recoverable instead of failing on every error")
		}
		rootCmd.AddCommand(c)
	}
}
