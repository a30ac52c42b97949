package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aoyama-lab/proximity-cli/internal/config"
	"github.com/aoyama-lab/proximity-cli/internal/geoengine"
	"github.com/aoyama-lab/proximity-cli/internal/model"
	"github.com/aoyama-lab/proximity-cli/internal/stats"
)

func testConfig() *config.Config {
	return &config.Config{
		Inputs: config.InputsConfig{
			BoundaryFile:   "MunicipalBoundaries.shp",
			AttributesFile: "PopulationData.csv",
			PointsFile:     "PointLocations.shp",
			JoinKey:        "ADM2_EN",
		},
		Schema: config.SchemaConfig{
			NumeratorSubstring: "Pop",
			ExcludeSubstrings:  []string{"ADM2_EN", "area_km2"},
		},
		Analysis: config.AnalysisConfig{
			Mode:              "density",
			CapPercentile:     99,
			EpsilonFloor:      1e-9,
			HotspotBandMeters: 1500,
			Metric:            "planar",
			RandomSeed:        42,
		},
	}
}

// writeProjectInputs lays out one unit's inputs: four adjacent 1km squares,
// a population CSV keyed by ward name, and observed points concentrated in
// the first square.
func writeProjectInputs(t *testing.T, inputDir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(inputDir, 0o755))

	wards := []string{"Chiyoda", "Chuo", "Minato", "Shinjuku"}

	w, err := shp.Create(filepath.Join(inputDir, "MunicipalBoundaries.shp"), shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("ADM2_EN", 25)}))
	for i, name := range wards {
		x := float64(i) * 1000
		ring := []shp.Point{
			{X: x, Y: 0}, {X: x + 1000, Y: 0}, {X: x + 1000, Y: 1000}, {X: x, Y: 1000}, {X: x, Y: 0},
		}
		w.Write((*shp.Polygon)(shp.NewPolyLine([][]shp.Point{ring})))
		require.NoError(t, w.WriteAttribute(i, 0, name))
	}
	w.Close()

	var csv strings.Builder
	csv.WriteString("ADM2_EN,TotalPop\n")
	for i, name := range wards {
		fmt.Fprintf(&csv, "%s,%d\n", name, (i+1)*400)
	}
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "PopulationData.csv"),
		[]byte(csv.String()), 0o644))

	pw, err := shp.Create(filepath.Join(inputDir, "PointLocations.shp"), shp.POINT)
	require.NoError(t, err)
	require.NoError(t, pw.SetFields([]shp.Field{shp.StringField("NAME", 10)}))
	coords := [][2]float64{{200, 200}, {400, 600}, {700, 300}, {1500, 500}}
	for i, c := range coords {
		pw.Write(&shp.Point{X: c[0], Y: c[1]})
		require.NoError(t, pw.WriteAttribute(i, 0, "shop"))
	}
	pw.Close()
}

func TestAnalysisPipelineEndToEnd(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	unit := model.ProjectUnit{
		Name:      "tokyo",
		Dir:       dir,
		InputDir:  filepath.Join(dir, "inputs"),
		OutputDir: filepath.Join(dir, "output"),
		Status:    model.UnitDiscovered,
	}
	writeProjectInputs(t, unit.InputDir)

	engine, err := geoengine.NewPlanarEngine(geoengine.MetricPlanar, cfg.Analysis.RandomSeed)
	require.NoError(t, err)

	pipe := NewAnalysisPipeline(cfg, engine, stats.WelchTTester{})
	res, err := NewOrchestrator(pipe, nil).Run(context.Background(), []model.ProjectUnit{unit}, "density", dir)
	require.NoError(t, err)
	require.Equal(t, 1, res.Completed, "unit error: %s", res.Units[0].Error)

	surfaceOut, err := os.ReadFile(filepath.Join(unit.OutputDir, "density_surface.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(surfaceOut)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "key,area_km2,rate", lines[0])
	// Chiyoda: 400 people over 1 km2.
	assert.Contains(t, lines[1], "Chiyoda,1,400")

	comparisonOut, err := os.ReadFile(filepath.Join(unit.OutputDir, "proximity_comparison.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(comparisonOut), "tokyo")
	assert.Contains(t, string(comparisonOut), "planar")

	clusterOut, err := os.ReadFile(filepath.Join(unit.OutputDir, "cluster_analysis.csv"))
	require.NoError(t, err)
	clusterLines := strings.Split(strings.TrimSpace(string(clusterOut)), "\n")
	require.Len(t, clusterLines, 5)
	assert.Equal(t,
		"key,rate,point_count,local_moran_i,local_moran_z,lisa_category,gi_star_z,gi_star_category",
		clusterLines[0])
	// Three observed points fall in Chiyoda, one in Chuo.
	assert.Contains(t, clusterLines[1], "Chiyoda")
	assert.Contains(t, clusterLines[1], ",3,")
	assert.Contains(t, clusterLines[2], ",1,")
}

func TestAnalysisPipelineMissingBoundaryFails(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	unit := model.ProjectUnit{
		Name:      "tokyo",
		Dir:       dir,
		InputDir:  filepath.Join(dir, "inputs"),
		OutputDir: filepath.Join(dir, "output"),
	}
	require.NoError(t, os.MkdirAll(unit.InputDir, 0o755))

	engine, err := geoengine.NewPlanarEngine(geoengine.MetricPlanar, 1)
	require.NoError(t, err)

	pipe := NewAnalysisPipeline(cfg, engine, nil)
	res, err := NewOrchestrator(pipe, nil).Run(context.Background(), []model.ProjectUnit{unit}, "density", dir)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Units[0].Error, "MunicipalBoundaries.shp")
}

func TestAnalysisPipelineUnresolvableSchemaFails(t *testing.T) {
	cfg := testConfig()
	cfg.Schema.NumeratorSubstring = "Elderly"

	dir := t.TempDir()
	unit := model.ProjectUnit{
		Name:      "tokyo",
		Dir:       dir,
		InputDir:  filepath.Join(dir, "inputs"),
		OutputDir: filepath.Join(dir, "output"),
	}
	writeProjectInputs(t, unit.InputDir)

	engine, err := geoengine.NewPlanarEngine(geoengine.MetricPlanar, 1)
	require.NoError(t, err)

	pipe := NewAnalysisPipeline(cfg, engine, nil)
	res, err := NewOrchestrator(pipe, nil).Run(context.Background(), []model.ProjectUnit{unit}, "density", dir)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	// The failure message carries the dataset's columns for diagnosis.
	assert.Contains(t, res.Units[0].Error, "TotalPop")
}
