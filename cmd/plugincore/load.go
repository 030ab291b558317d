package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/randalmurphal/plugincore/pkg/plugincore"
	"github.com/randalmurphal/plugincore/pkg/plugincore/plugin"
)

// manifestFile is a decoded manifest and where it came from.
type manifestFile struct {
	Path     string
	Manifest *plugin.Manifest
}

// loadFailure is a manifest that could not be decoded or registered.
type loadFailure struct {
	Path   string
	Plugin string
	Err    error
}

func isManifest(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// loadManifests decodes every manifest file directly inside dir, in file
// name order. Files listed in skip are ignored.
func loadManifests(dir string, skip ...string) ([]manifestFile, []loadFailure, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read plugin directory: %w", err)
	}

	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		if abs, err := filepath.Abs(s); err == nil {
			skipped[abs] = true
		}
	}

	var (
		files    []manifestFile
		failures []loadFailure
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || !isManifest(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if abs, err := filepath.Abs(path); err == nil && skipped[abs] {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, loadFailure{Path: path, Err: err})
			continue
		}
		m, err := plugin.Decode(path, data)
		if err != nil {
			failures = append(failures, loadFailure{Path: path, Err: err})
			continue
		}
		files = append(files, manifestFile{Path: path, Manifest: m})
	}
	return files, failures, nil
}

// registerAll registers manifests in passes until a pass makes no progress,
// so files may appear in any order relative to their dependencies.
// Manifests still missing a dependency at the end are reported with the
// last error they produced.
func registerAll(ctx context.Context, core *plugincore.Core, files []manifestFile) []loadFailure {
	var failures []loadFailure
	pending := files
	lastErr := make(map[string]error)

	for len(pending) > 0 {
		progress := false
		var next []manifestFile
		for _, f := range pending {
			err := core.Register(ctx, plugin.Describe(f.Manifest), f.Manifest)
			switch {
			case err == nil:
				progress = true
			case plugin.KindOf(err) == plugin.KindMissingDependency:
				lastErr[f.Path] = err
				next = append(next, f)
			default:
				failures = append(failures, loadFailure{Path: f.Path, Plugin: f.Manifest.Name, Err: err})
			}
		}
		pending = next
		if !progress {
			break
		}
	}

	for _, f := range pending {
		failures = append(failures, loadFailure{Path: f.Path, Plugin: f.Manifest.Name, Err: lastErr[f.Path]})
	}
	return failures
}

func renderFailures(w io.Writer, failures []loadFailure) {
	if len(failures) == 0 {
		return
	}
	t := newTable(w, "FILE", "PLUGIN", "ERROR")
	for _, f := range failures {
		t.AppendRow([]any{filepath.Base(f.Path), f.Plugin, text.FgRed.Sprint(f.Err)})
	}
	t.Render()
}
