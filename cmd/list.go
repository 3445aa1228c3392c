package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitesmith/internal/pipeline"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List every task and where it writes",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tALIASES\tOUTPUTS\tDESCRIPTION")
	for _, t := range a.registry.Tasks() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.Name,
			orDash(strings.Join(a.registry.Aliases(t.Name), ", ")),
			orDash(outputs(t)),
			t.Description,
		)
	}
	return w.Flush()
}

func outputs(t *pipeline.Task) string {
	var parts []string
	for _, o := range t.Outputs() {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
