// Package batch discovers project units and drives them through the
// sequential state machine with per-unit fault isolation.
package batch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// Discover finds project units as subdirectories of baseDir and applies the
// inclusion policy: the single value "all" selects everything, otherwise the
// named units must all exist. An absent base directory or an empty selection
// is a configuration error that aborts before any unit runs.
func Discover(baseDir string, include []string, inputSubdir, outputSubdir string) ([]model.ProjectUnit, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: base directory %s", baseDir)
	}

	found := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		found[e.Name()] = true
		names = append(names, e.Name())
	}
	sort.Strings(names)

	all := len(include) == 1 && include[0] == "all"
	if !all {
		names = names[:0]
		for _, want := range include {
			if !found[want] {
				return nil, eris.Errorf("batch: selected project %q not found under %s", want, baseDir)
			}
			names = append(names, want)
		}
	}

	if len(names) == 0 {
		return nil, eris.Errorf("batch: no project units selected under %s", baseDir)
	}

	units := make([]model.ProjectUnit, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(baseDir, name)
		units = append(units, model.ProjectUnit{
			Name:      name,
			Dir:       dir,
			InputDir:  filepath.Join(dir, inputSubdir),
			OutputDir: filepath.Join(dir, outputSubdir),
			Status:    model.UnitDiscovered,
		})
	}

	zap.L().Info("batch: project units discovered",
		zap.String("base_dir", baseDir),
		zap.Int("count", len(units)),
	)
	return units, nil
}
