package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <dir>",
		Short: "Register a directory of manifests and print the load order",
		Long: `Resolve decodes every .json, .yaml and .yml manifest in a directory,
registers them with their dependencies first and prints the resulting
load order. Manifests that cannot be registered are listed afterwards and
make the command fail.`,
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
			order, err := reg.ResolveDependencies(nil)
			if err != nil {
				return fmt.Errorf("resolve load order: %w", err)
			}

			out := cmd.OutOrStdout()
			t := newTable(out, "#", "PLUGIN", "VERSION", "DEPENDS ON")
			for i, name := range order {
				e, _ := reg.Get(name)
				deps := make([]string, 0, len(e.Dependencies))
				for _, d := range e.Dependencies {
					dep := d.Name
					if d.Version != "" {
						dep += "@" + d.Version
					}
					if d.Optional {
						dep += " (optional)"
					}
					deps = append(deps, dep)
				}
				t.AppendRow([]any{i + 1, text.FgHiGreen.Sprint(name), e.Manifest.Version, strings.Join(deps, ", ")})
			}
			t.Render()

			if len(failures) > 0 {
				renderFailures(out, failures)
				return fmt.Errorf("%d manifest(s) could not be registered", len(failures))
			}
			return nil
		},
	}
}
