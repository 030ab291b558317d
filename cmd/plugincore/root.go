package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/plugincore/pkg/plugincore"
	"github.com/randalmurphal/plugincore/pkg/plugincore/config"
)

// cliLogLevel keeps registration chatter out of command output unless a
// level is asked for.
const cliLogLevel = "error"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "plugincore",
		Short: "Validate plugin manifests and resolve load order",
		Long: `plugincore checks plugin manifests the way the plugin registry does.

  plugincore validate ./plugins/auth.yaml   # check one manifest
  plugincore resolve ./plugins              # print the load order
  plugincore inspect ./plugins              # summarize a plugin directory`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.noColor {
				text.DisableColors()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (.yaml, .yml or .json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))
	return cmd
}

// newCore builds a Core without an event store; commands only need the
// registry.
func (o *rootOptions) newCore(stderr io.Writer) (*plugincore.Core, error) {
	cfg := config.Default()
	cfg.Logging.Level = cliLogLevel
	if o.configPath != "" {
		loaded, err := config.FromFile(o.configPath)
		if err != nil {
			return nil, err
		}
		if err := loaded.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", o.configPath, err)
		}
		cfg = loaded
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	cfg.Store.Backend = config.BackendNone

	return plugincore.New(cfg, plugincore.WithLogger(cfg.Logger(stderr)))
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	row := make(table.Row, len(header))
	for i, h := range header {
		row[i] = text.FgHiCyan.Sprint(h)
	}
	t.AppendHeader(row)
	return t
}
