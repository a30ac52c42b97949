package surface

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aoyama-lab/proximity-cli/internal/loader"
	"github.com/aoyama-lab/proximity-cli/internal/model"
)

func region(key string, areaKm2 float64) model.Region {
	return model.Region{ID: key, Key: key, AreaKm2: areaKm2, Attrs: map[string]float64{}}
}

func table(rows ...map[string]string) *loader.Table {
	return &loader.Table{Header: []string{"ADM2_EN", "anime_pop", "total_pop"}, Rows: rows}
}

var binding = model.FieldBinding{
	"numerator":   "anime_pop",
	"denominator": "total_pop",
}

func TestBuildDensityRates(t *testing.T) {
	regions := []model.Region{region("Chiyoda", 1.5), region("Shinjuku", 2)}
	tbl := table(
		map[string]string{"ADM2_EN": "Chiyoda", "anime_pop": "450"},
		map[string]string{"ADM2_EN": "Shinjuku", "anime_pop": "10000"},
	)

	res, err := Build(regions, tbl, "ADM2_EN", binding, Params{
		Mode:          ModeDensity,
		NumeratorRole: "numerator",
		Cap:           4000,
	})
	require.NoError(t, err)
	require.Len(t, res.Regions, 2)

	// 450 / 1.5 = 300 passes the cap untouched; 10000 / 2 = 5000 clamps
	// to exactly 4000, the region itself is kept.
	assert.InDelta(t, 300, res.Regions[0].Rate, 1e-9)
	assert.InDelta(t, 4000, res.Regions[1].Rate, 1e-9)
	assert.Equal(t, 0, res.Dropped)
	assert.InDelta(t, 4000, res.Cap, 1e-9)
}

func TestBuildComputesPercentileCap(t *testing.T) {
	regions := make([]model.Region, 0, 5)
	rows := make([]map[string]string, 0, 5)
	for i, key := range []string{"a", "b", "c", "d", "e"} {
		regions = append(regions, region(key, 1))
		rows = append(rows, map[string]string{
			"ADM2_EN":   key,
			"anime_pop": []string{"10", "20", "30", "40", "50"}[i],
		})
	}

	res, err := Build(regions, &loader.Table{Header: []string{"ADM2_EN", "anime_pop"}, Rows: rows},
		"ADM2_EN", binding, Params{Mode: ModeDensity, NumeratorRole: "numerator"})
	require.NoError(t, err)

	// p99 of {10,20,30,40,50} interpolates to 49.6; only the top value
	// clamps.
	assert.InDelta(t, 49.6, res.Cap, 1e-9)
	assert.InDelta(t, 49.6, res.Regions[4].Rate, 1e-9)
	assert.InDelta(t, 40, res.Regions[3].Rate, 1e-9)
}

func TestBuildPercentageMode(t *testing.T) {
	regions := []model.Region{region("Chiyoda", 1)}
	tbl := table(map[string]string{"ADM2_EN": "Chiyoda", "anime_pop": "30", "total_pop": "120"})

	res, err := Build(regions, tbl, "ADM2_EN", binding, Params{
		Mode:            ModePercentage,
		NumeratorRole:   "numerator",
		DenominatorRole: "denominator",
	})
	require.NoError(t, err)
	require.Len(t, res.Regions, 1)
	assert.InDelta(t, 25, res.Regions[0].Rate, 1e-9)
}

func TestBuildUnmatchedAndDropped(t *testing.T) {
	regions := []model.Region{
		region("matched", 2),
		region("orphan", 2),
		region("zero-pop", 2),
		region("zero-area", 0),
		region("non-numeric", 2),
	}
	tbl := table(
		map[string]string{"ADM2_EN": "matched", "anime_pop": "100"},
		map[string]string{"ADM2_EN": "zero-pop", "anime_pop": "0"},
		map[string]string{"ADM2_EN": "zero-area", "anime_pop": "100"},
		map[string]string{"ADM2_EN": "non-numeric", "anime_pop": "n/a"},
	)

	res, err := Build(regions, tbl, "ADM2_EN", binding, Params{
		Mode:          ModeDensity,
		NumeratorRole: "numerator",
	})
	require.NoError(t, err)

	require.Len(t, res.Regions, 1)
	assert.Equal(t, "matched", res.Regions[0].ID)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, 3, res.Dropped)
}

func TestBuildNeverMutatesInput(t *testing.T) {
	regions := []model.Region{region("Chiyoda", 1.5)}
	tbl := table(map[string]string{"ADM2_EN": "Chiyoda", "anime_pop": "450"})

	_, err := Build(regions, tbl, "ADM2_EN", binding, Params{
		Mode:          ModeDensity,
		NumeratorRole: "numerator",
	})
	require.NoError(t, err)

	assert.Zero(t, regions[0].Rate)
	assert.Empty(t, regions[0].Attrs)
}

func TestBuildZeroSurvivorsIsDataQualityError(t *testing.T) {
	regions := []model.Region{region("orphan", 2)}
	tbl := table(map[string]string{"ADM2_EN": "elsewhere", "anime_pop": "100"})

	_, err := Build(regions, tbl, "ADM2_EN", binding, Params{
		Mode:          ModeDensity,
		NumeratorRole: "numerator",
	})
	require.Error(t, err)

	var dq *model.DataQualityError
	assert.True(t, errors.As(err, &dq))
}

func TestBuildRejectsBadParams(t *testing.T) {
	regions := []model.Region{region("Chiyoda", 1)}
	tbl := table(map[string]string{"ADM2_EN": "Chiyoda", "anime_pop": "1"})

	_, err := Build(regions, tbl, "ADM2_EN", binding, Params{Mode: "ratio", NumeratorRole: "numerator"})
	assert.Error(t, err)

	_, err = Build(regions, tbl, "ADM2_EN", model.FieldBinding{}, Params{Mode: ModeDensity, NumeratorRole: "numerator"})
	assert.Error(t, err)

	_, err = Build(regions, tbl, "ADM2_EN", model.FieldBinding{"numerator": "anime_pop"}, Params{
		Mode: ModePercentage, NumeratorRole: "numerator", DenominatorRole: "denominator",
	})
	assert.Error(t, err)
}
