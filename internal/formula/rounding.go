package formula

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"estimator/internal/storage"
)

const maxPrecision = 12

// Round applies a formula's rounding policy. The value is taken at its shortest
// decimal representation first, so CEIL of 1.1 at precision 2 stays 1.1.
func Round(x float64, method storage.RoundingMethod, precision int) (float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, newError(ErrDomain, -1, "value is not finite")
	}
	if precision < -maxPrecision || precision > maxPrecision {
		return 0, newError(ErrDomain, -1, "precision %d out of range", precision)
	}

	p := int32(precision)
	switch method {
	case "", storage.RoundNone:
		return x, nil
	case storage.RoundRound:
		return decimal.NewFromFloat(x).Round(p).InexactFloat64(), nil
	case storage.RoundCeil:
		return decimal.NewFromFloat(x).RoundCeil(p).InexactFloat64(), nil
	case storage.RoundFloor:
		return decimal.NewFromFloat(x).RoundFloor(p).InexactFloat64(), nil
	}

	return 0, fmt.Errorf("unknown rounding method %q", method)
}
