package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/plugincore/pkg/plugincore/plugin"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var pluginsDir string

	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check a plugin manifest",
		Long: `Validate decodes a manifest and reports what registration would reject
as errors, plus softer issues as warnings.

Dependencies are checked against the other manifests in the same directory,
or in the directory given by --plugins.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			m, err := plugin.Decode(path, data)
			if err != nil {
				return err
			}

			core, err := opts.newCore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer core.Close()

			dir := pluginsDir
			if dir == "" {
				dir = filepath.Dir(path)
			}
			siblings, _, err := loadManifests(dir, path)
			if err != nil {
				return err
			}
			registerAll(cmd.Context(), core, siblings)

			res := core.Registry().Validate(plugin.Describe(m), m)
			out := cmd.OutOrStdout()
			for _, e := range res.Errors {
				fmt.Fprintln(out, text.FgRed.Sprint("✗ "+e))
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(out, text.FgYellow.Sprint("! "+w))
			}
			if !res.Valid {
				return fmt.Errorf("%s: %d error(s)", m.Name, len(res.Errors))
			}
			fmt.Fprintln(out, text.FgGreen.Sprintf("✓ %s@%s is valid", m.Name, m.Version))
			return nil
		},
	}

	cmd.Flags().StringVar(&pluginsDir, "plugins", "", "directory of installed plugin manifests (default: the manifest's directory)")
	return cmd
}
