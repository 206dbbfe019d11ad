package formula

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

type builtin struct {
	name    string
	minArgs int
	maxArgs int // -1 is variadic
	call    func(pos int, args []float64) (float64, error)
}

func (b *builtin) arity() string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", b.minArgs)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("%d argument(s)", b.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", b.minArgs, b.maxArgs)
	}
}

// The function set is closed on purpose.
var builtins = map[string]*builtin{
	"ceil": {name: "ceil", minArgs: 1, maxArgs: 1, call: func(_ int, a []float64) (float64, error) {
		return math.Ceil(a[0]), nil
	}},
	"floor": {name: "floor", minArgs: 1, maxArgs: 1, call: func(_ int, a []float64) (float64, error) {
		return math.Floor(a[0]), nil
	}},
	"round": {name: "round", minArgs: 1, maxArgs: 2, call: callRound},
	"abs": {name: "abs", minArgs: 1, maxArgs: 1, call: func(_ int, a []float64) (float64, error) {
		return math.Abs(a[0]), nil
	}},
	"sqrt": {name: "sqrt", minArgs: 1, maxArgs: 1, call: func(pos int, a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, newError(ErrDomain, pos, "sqrt of negative number %v", a[0])
		}
		return math.Sqrt(a[0]), nil
	}},
	"pow": {name: "pow", minArgs: 2, maxArgs: 2, call: func(pos int, a []float64) (float64, error) {
		if a[0] == 0 && a[1] < 0 {
			return 0, newError(ErrDivisionByZero, pos, "pow(0, %v)", a[1])
		}
		r := math.Pow(a[0], a[1])
		if math.IsNaN(r) {
			return 0, newError(ErrDomain, pos, "pow(%v, %v) is not a real number", a[0], a[1])
		}
		return r, nil
	}},
	"max": {name: "max", minArgs: 1, maxArgs: -1, call: func(_ int, a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
	"min": {name: "min", minArgs: 1, maxArgs: -1, call: func(_ int, a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
}

func callRound(pos int, a []float64) (float64, error) {
	places := 0.0
	if len(a) == 2 {
		places = a[1]
	}
	if places != math.Trunc(places) || places < -maxPrecision || places > maxPrecision {
		return 0, newError(ErrDomain, pos, "round places must be an integer in [%d, %d], got %v", -maxPrecision, maxPrecision, places)
	}
	return decimal.NewFromFloat(a[0]).Round(int32(places)).InexactFloat64(), nil
}
