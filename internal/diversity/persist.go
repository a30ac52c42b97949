package diversity

import (
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

type diversityRecord struct {
	Key               string  `csv:"key"`
	Diversity         float64 `csv:"div_index"`
	SecondaryFraction float64 `csv:"secondary_fraction"`
	Sanitized         bool    `csv:"sanitized"`
}

// WriteCSV persists one row per scored region. Reruns overwrite.
func WriteCSV(path string, scores []model.DiversityScore) error {
	records := make([]diversityRecord, 0, len(scores))
	for _, s := range scores {
		records = append(records, diversityRecord{
			Key:               s.Key,
			Diversity:         s.Diversity,
			SecondaryFraction: s.SecondaryFraction,
			Sanitized:         s.Sanitized,
		})
	}

	data, err := csvutil.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "diversity: marshal csv")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "diversity: write %s", path)
	}
	return nil
}
