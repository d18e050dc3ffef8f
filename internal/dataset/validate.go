package dataset

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// WarnCeiling is the value above which a score is suspicious. Scores
// are conventionally 0-100; upstream glitches can exceed that without
// being fatal, so values up to the ceiling only warn.
const WarnCeiling = 1000

// Validate checks the dataset before any destructive write. Checks run
// in order and short-circuit on the first failure: non-empty, dated
// rows, non-negative values. Values above WarnCeiling log a warning but
// do not reject.
func Validate(ds Dataset) error {
	if ds.Empty() {
		return eris.New("dataset: empty")
	}

	for _, row := range ds.Rows {
		if row.Date.IsZero() {
			return eris.New("dataset: row with zero date")
		}
		for col, v := range row.Values {
			if v < 0 {
				return eris.Errorf("dataset: negative value %g for %s on %s",
					v, col, row.Date.Format(DateLayout))
			}
			if v > WarnCeiling {
				zap.L().Warn("value above expected range",
					zap.String("column", col),
					zap.String("date", row.Date.Format(DateLayout)),
					zap.Float64("value", v),
				)
			}
		}
	}
	return nil
}
