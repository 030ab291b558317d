/*
Package config loads the runtime configuration of a plugin core.

# Overview

A Config is read from YAML or JSON and overlaid on Default, so a file only
needs the keys it changes:

	cfg, err := config.FromFile("plugincore.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
	    log.Fatal(err)
	}
	logger := cfg.Logger(os.Stderr)

# Lenient Values

Lookups go through Values, which tolerates missing keys and mismatched
types by returning the default. Durations accept "30s" style strings or
plain numbers of seconds:

	v := config.NewValues(map[string]any{
	    "events": map[string]any{"handler_timeout": 5},
	})
	v.Duration("events.handler_timeout", time.Minute) // 5s

Validate is where bad values are reported.
*/
package config
