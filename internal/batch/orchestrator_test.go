package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aoyama-lab/proximity-cli/internal/model"
	"github.com/aoyama-lab/proximity-cli/internal/store"
)

// fakePipeline records invocations and fails or panics on selected units.
type fakePipeline struct {
	ran     []string
	failOn  map[string]error
	panicOn map[string]bool
}

func (f *fakePipeline) Run(_ context.Context, unit model.ProjectUnit) error {
	f.ran = append(f.ran, unit.Name)
	if f.panicOn[unit.Name] {
		panic("stage blew up")
	}
	if err, ok := f.failOn[unit.Name]; ok {
		return err
	}
	return nil
}

// makeUnits lays out unit directories under a temp base. Units listed in
// withoutInputs get no input subdirectory.
func makeUnits(t *testing.T, names []string, withoutInputs ...string) []model.ProjectUnit {
	t.Helper()
	base := t.TempDir()

	skip := map[string]bool{}
	for _, n := range withoutInputs {
		skip[n] = true
	}

	units := make([]model.ProjectUnit, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(base, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		if !skip[name] {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "inputs"), 0o755))
		}
		units = append(units, model.ProjectUnit{
			Name:      name,
			Dir:       dir,
			InputDir:  filepath.Join(dir, "inputs"),
			OutputDir: filepath.Join(dir, "output"),
			Status:    model.UnitDiscovered,
		})
	}
	return units
}

func TestRunFaultIsolation(t *testing.T) {
	units := makeUnits(t, []string{"tokyo", "osaka", "nagoya", "sapporo"})
	pipe := &fakePipeline{
		failOn:  map[string]error{"osaka": errors.New("schema: no column matching")},
		panicOn: map[string]bool{"nagoya": true},
	}

	res, err := NewOrchestrator(pipe, nil).Run(context.Background(), units, "density", "/base")
	require.NoError(t, err)

	// Every unit is attempted regardless of earlier failures.
	assert.Equal(t, []string{"tokyo", "osaka", "nagoya", "sapporo"}, pipe.ran)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, 2, res.Failed)
	assert.True(t, res.AnyFailed())

	byName := map[string]model.ProjectUnit{}
	for _, u := range res.Units {
		byName[u.Name] = u
	}
	assert.Equal(t, model.UnitCompleted, byName["tokyo"].Status)
	assert.Equal(t, model.UnitFailed, byName["osaka"].Status)
	assert.Contains(t, byName["osaka"].Error, "no column matching")
	assert.Equal(t, model.UnitFailed, byName["nagoya"].Status)
	assert.Contains(t, byName["nagoya"].Error, "panic")
	assert.Equal(t, model.UnitCompleted, byName["sapporo"].Status)
}

func TestRunSkipsUnitsWithoutInputs(t *testing.T) {
	units := makeUnits(t, []string{"tokyo", "empty"}, "empty")
	pipe := &fakePipeline{}

	res, err := NewOrchestrator(pipe, nil).Run(context.Background(), units, "density", "/base")
	require.NoError(t, err)

	// The skipped unit triggers zero pipeline stage calls.
	assert.Equal(t, []string{"tokyo"}, pipe.ran)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, res.AnyFailed())
}

func TestRunCreatesOutputWorkspace(t *testing.T) {
	units := makeUnits(t, []string{"tokyo"})

	_, err := NewOrchestrator(&fakePipeline{}, nil).Run(context.Background(), units, "density", "/base")
	require.NoError(t, err)

	info, err := os.Stat(units[0].OutputDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRunRecordsHistory(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	units := makeUnits(t, []string{"tokyo", "osaka", "empty"}, "empty")
	pipe := &fakePipeline{failOn: map[string]error{"osaka": errors.New("boom")}}

	res, err := NewOrchestrator(pipe, st).Run(context.Background(), units, "density", "/base")
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, 1, run.Completed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.Failed)

	recorded, err := st.ListUnits(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, recorded, 3)
}

func TestDiscoverSelectsAll(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"osaka", "tokyo", ".hidden"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(base, "stray.txt"), nil, 0o644))

	units, err := Discover(base, []string{"all"}, "inputs", "output")
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "osaka", units[0].Name)
	assert.Equal(t, "tokyo", units[1].Name)
	assert.Equal(t, filepath.Join(base, "tokyo", "inputs"), units[1].InputDir)
	assert.Equal(t, model.UnitDiscovered, units[0].Status)
}

func TestDiscoverExplicitSelection(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"osaka", "tokyo", "nagoya"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, name), 0o755))
	}

	units, err := Discover(base, []string{"tokyo", "osaka"}, "inputs", "output")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "tokyo", units[0].Name)
	assert.Equal(t, "osaka", units[1].Name)
}

func TestDiscoverMissingSelectionIsFatal(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "tokyo"), 0o755))

	_, err := Discover(base, []string{"tokyo", "kyoto"}, "inputs", "output")
	assert.Error(t, err)
}

func TestDiscoverAbsentBaseIsFatal(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), []string{"all"}, "inputs", "output")
	assert.Error(t, err)
}

func TestDiscoverEmptyBaseIsFatal(t *testing.T) {
	_, err := Discover(t.TempDir(), []string{"all"}, "inputs", "output")
	assert.Error(t, err)
}
