package batch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/compare"
	"github.com/aoyama-lab/proximity-cli/internal/config"
	"github.com/aoyama-lab/proximity-cli/internal/geoengine"
	"github.com/aoyama-lab/proximity-cli/internal/loader"
	"github.com/aoyama-lab/proximity-cli/internal/model"
	"github.com/aoyama-lab/proximity-cli/internal/schema"
	"github.com/aoyama-lab/proximity-cli/internal/stats"
	"github.com/aoyama-lab/proximity-cli/internal/surface"
)

// Pipeline runs the full analysis for one validated project unit.
type Pipeline interface {
	Run(ctx context.Context, unit model.ProjectUnit) error
}

// AnalysisPipeline is the production pipeline: surface build, point-process
// comparison, and the clustering stage, with per-project output files.
type AnalysisPipeline struct {
	cfg    *config.Config
	engine geoengine.Engine
	tester stats.TTester
}

// NewAnalysisPipeline assembles the pipeline. A nil tester degrades the
// comparison stage to descriptive-only output.
func NewAnalysisPipeline(cfg *config.Config, engine geoengine.Engine, tester stats.TTester) *AnalysisPipeline {
	return &AnalysisPipeline{cfg: cfg, engine: engine, tester: tester}
}

const (
	surfaceFile    = "density_surface.csv"
	comparisonFile = "proximity_comparison.csv"
	clusterFile    = "cluster_analysis.csv"
)

// Run executes the stage sequence for one unit. Any stage error aborts this
// unit only; the orchestrator owns the failure boundary.
func (p *AnalysisPipeline) Run(ctx context.Context, unit model.ProjectUnit) error {
	log := zap.L().With(zap.String("project", unit.Name))

	// Stage 1: boundary polygons.
	regions, _, err := loader.LoadRegions(
		filepath.Join(unit.InputDir, p.cfg.Inputs.BoundaryFile), p.cfg.Inputs.JoinKey)
	if err != nil {
		return err
	}
	log.Info("batch: boundaries loaded", zap.Int("regions", len(regions)))

	// Stage 2: attribute table.
	table, err := loader.ReadTable(
		filepath.Join(unit.InputDir, p.cfg.Inputs.AttributesFile),
		loader.TableOptions{ShiftJIS: p.cfg.Inputs.ShiftJIS, SheetName: p.cfg.Inputs.XLSXSheet})
	if err != nil {
		return err
	}

	// Stage 3: bind roles to the joined table's columns, once per dataset.
	binding, err := schema.Resolve(table.Columns(), p.fieldSpecs())
	if err != nil {
		return err
	}
	log.Info("batch: schema resolved", zap.Any("binding", binding))

	// Stage 4: rate surface.
	surf, err := surface.Build(regions, table, p.cfg.Inputs.JoinKey, binding, surface.Params{
		Mode:            surface.Mode(p.cfg.Analysis.Mode),
		NumeratorRole:   "numerator",
		DenominatorRole: "denominator",
		CapPercentile:   p.cfg.Analysis.CapPercentile,
		EpsilonFloor:    p.cfg.Analysis.EpsilonFloor,
	})
	if err != nil {
		return err
	}
	if err := surface.WriteCSV(filepath.Join(unit.OutputDir, surfaceFile), surf); err != nil {
		return err
	}

	// Stage 5: observed points. An empty set after load is a data defect,
	// not an empty result.
	points, err := loader.LoadPoints(filepath.Join(unit.InputDir, p.cfg.Inputs.PointsFile))
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return eris.Wrap(&model.DataQualityError{
			Stage:  "batch",
			Reason: "observed point set is empty after load",
		}, "batch: "+unit.Name)
	}

	// Stage 6: reference set is the cleaned regions' interior centroids.
	centroids, err := p.engine.Centroids(ctx, surf.Regions)
	if err != nil {
		return err
	}

	// Stage 7: point-process comparison.
	comparator := compare.NewComparator(p.engine, p.tester)
	result, err := comparator.Compare(ctx, points, surf.Regions, centroids,
		p.cfg.Analysis.Metric, unit.Name)
	if err != nil {
		return err
	}
	if err := compare.WriteResult(filepath.Join(unit.OutputDir, comparisonFile), result); err != nil {
		return err
	}

	// Stage 8: clustering over the capped rates and the observed counts.
	if err := p.clusterStage(ctx, unit, surf, points); err != nil {
		return err
	}

	log.Info("batch: unit pipeline complete")
	return nil
}

// fieldSpecs builds the resolver input from the configured search fragments.
func (p *AnalysisPipeline) fieldSpecs() []schema.FieldSpec {
	specs := []schema.FieldSpec{{
		Role:      "numerator",
		Substring: p.cfg.Schema.NumeratorSubstring,
		Exclude:   p.cfg.Schema.ExcludeSubstrings,
	}}
	if surface.Mode(p.cfg.Analysis.Mode) == surface.ModePercentage {
		specs[0].Exclude = append(specs[0].Exclude, p.cfg.Schema.DenominatorSubstring)
		specs = append(specs, schema.FieldSpec{
			Role:      "denominator",
			Substring: p.cfg.Schema.DenominatorSubstring,
			Exclude:   p.cfg.Schema.ExcludeSubstrings,
		})
	}
	return specs
}

type clusterRecord struct {
	Key           string  `csv:"key"`
	Rate          float64 `csv:"rate"`
	PointCount    int     `csv:"point_count"`
	MoranI        float64 `csv:"local_moran_i"`
	MoranZ        float64 `csv:"local_moran_z"`
	MoranCategory string  `csv:"lisa_category"`
	GiZ           float64 `csv:"gi_star_z"`
	GiCategory    string  `csv:"gi_star_category"`
}

// clusterStage runs CountWithin, local Moran's I over the capped rates, and
// Gi* over the counts, then writes the combined per-region cluster table.
func (p *AnalysisPipeline) clusterStage(ctx context.Context, unit model.ProjectUnit, surf *surface.Result, points []model.Point) error {
	counts, err := p.engine.CountWithin(ctx, surf.Regions, points)
	if err != nil {
		return err
	}

	rates := make(map[string]float64, len(surf.Regions))
	for _, r := range surf.Regions {
		rates[r.ID] = r.Rate
	}

	band := p.cfg.Analysis.HotspotBandMeters
	morans, err := p.engine.LocalMorans(ctx, surf.Regions, rates, band)
	if err != nil {
		return err
	}
	hotspots, err := p.engine.HotSpots(ctx, surf.Regions, counts, band)
	if err != nil {
		return err
	}

	moranByID := make(map[string]geoengine.MoranScore, len(morans))
	for _, m := range morans {
		moranByID[m.RegionID] = m
	}
	hotByID := make(map[string]geoengine.HotSpotScore, len(hotspots))
	for _, h := range hotspots {
		hotByID[h.RegionID] = h
	}

	records := make([]clusterRecord, 0, len(surf.Regions))
	for _, r := range surf.Regions {
		m := moranByID[r.ID]
		h := hotByID[r.ID]
		records = append(records, clusterRecord{
			Key:           r.Key,
			Rate:          r.Rate,
			PointCount:    counts[r.ID],
			MoranI:        m.I,
			MoranZ:        m.Z,
			MoranCategory: string(m.Category),
			GiZ:           h.Z,
			GiCategory:    h.Category,
		})
	}

	data, err := csvutil.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "batch: marshal cluster table")
	}
	path := filepath.Join(unit.OutputDir, clusterFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "batch: write %s", path)
	}
	return nil
}
