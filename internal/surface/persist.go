package surface

import (
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

type surfaceRecord struct {
	Key     string  `csv:"key"`
	AreaKm2 float64 `csv:"area_km2"`
	Rate    float64 `csv:"rate"`
}

// WriteCSV persists the derived surface, one row per surviving region.
// Reruns overwrite.
func WriteCSV(path string, res *Result) error {
	records := make([]surfaceRecord, 0, len(res.Regions))
	for _, r := range res.Regions {
		records = append(records, surfaceRecord{Key: r.Key, AreaKm2: r.AreaKm2, Rate: r.Rate})
	}

	data, err := csvutil.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "surface: marshal csv")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "surface: write %s", path)
	}
	return nil
}
