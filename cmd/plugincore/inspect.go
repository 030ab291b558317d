package main

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Summarize a directory of plugins",
		Long: `Inspect registers a directory of manifests and prints each plugin with
its dependents, followed by counts per status and per category.
Manifests that cannot be registered are listed but do not fail the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, failures, err := loadManifests(args[0])
			if err != nil {
				return err
			}
			core, err := opts.newCore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer core.Close()

			failures = append(failures, registerAll(cmd.Context(), core, files)...)
			reg := core.Registry()
			out := cmd.OutOrStdout()

			t := newTable(out, "PLUGIN", "VERSION", "STATUS", "CATEGORY", "DEPENDENTS")
			for _, e := range reg.List() {
				t.AppendRow([]any{
					e.Manifest.Name,
					e.Manifest.Version,
					e.Status,
					e.Manifest.Metadata.Category,
					len(reg.GetDependents(e.Manifest.Name)),
				})
			}
			t.Render()

			stats := reg.Stats()
			st := newTable(out, "STATUS", "COUNT")
			for _, s := range slices.Sorted(maps.Keys(stats.ByStatus)) {
				st.AppendRow([]any{s, stats.ByStatus[s]})
			}
			st.Render()

			ct := newTable(out, "CATEGORY", "COUNT")
			categories := slices.SortedFunc(maps.Keys(stats.ByCategory), func(a, b string) int {
				return cmp.Or(cmp.Compare(stats.ByCategory[b], stats.ByCategory[a]), cmp.Compare(a, b))
			})
			for _, c := range categories {
				ct.AppendRow([]any{c, stats.ByCategory[c]})
			}
			ct.AppendFooter([]any{"TOTAL", stats.Total})
			ct.Render()

			if len(failures) > 0 {
				fmt.Fprintln(out, text.FgYellow.Sprintf("%d manifest(s) skipped", len(failures)))
				renderFailures(out, failures)
			}
			return nil
		},
	}
}
