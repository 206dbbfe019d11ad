package formula

import (
	"fmt"
	"sort"
	"strings"

	"estimator/internal/storage"
)

// Computed is one formula result in the order it was bound.
type Computed struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Raw     float64 `json:"raw"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
	Skipped bool    `json:"skipped"`
}

type Result struct {
	Env      Env
	Formulas []Computed
}

type compiled struct {
	def   storage.Formula
	expr  *Expr
	guard *Expr
}

func compileFormulas(formulas []storage.TemplateFormula) ([]compiled, error) {
	active := make([]storage.TemplateFormula, 0, len(formulas))
	for _, tf := range formulas {
		if tf.Formula.IsActive {
			active = append(active, tf)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].ExecutionOrder < active[j].ExecutionOrder
	})

	out := make([]compiled, 0, len(active))
	seen := make(map[string]bool, len(active))
	for _, tf := range active {
		f := tf.Formula
		if seen[f.Code] {
			return nil, &Error{Kind: ErrDuplicateDefinition, Formula: f.Code, Pos: -1, Msg: "formula defined twice"}
		}
		seen[f.Code] = true

		expr, err := Compile(f.Expression)
		if err != nil {
			return nil, withFormula(err, f.Code)
		}

		c := compiled{def: f, expr: expr}
		if strings.TrimSpace(f.Conditions) != "" {
			if c.guard, err = Compile(f.Conditions); err != nil {
				return nil, withFormula(err, f.Code)
			}
		}
		out = append(out, c)
	}

	return out, nil
}

// Run evaluates the active formulas of a template against env.
//
// Formulas are taken in ExecutionOrder (stable). A formula whose guard or
// expression reads a formula that is still pending is deferred to the next
// pass; a pass without progress is a cycle. A false guard binds zero and the
// expression is never evaluated. Rounded values are what dependents see.
func Run(formulas []storage.TemplateFormula, env Env) (*Result, error) {
	list, err := compileFormulas(formulas)
	if err != nil {
		return nil, err
	}

	work := env.Clone()
	pending := make(map[string]bool, len(list))
	for _, c := range list {
		if _, clash := work[c.def.Code]; clash {
			return nil, &Error{Kind: ErrDuplicateDefinition, Formula: c.def.Code, Pos: -1, Msg: "formula code shadows a parameter"}
		}
		pending[c.def.Code] = true
	}

	res := &Result{Formulas: make([]Computed, 0, len(list))}

	blocked := func(e *Expr) bool {
		for _, ref := range e.refs {
			if pending[ref] {
				return true
			}
		}
		return false
	}

	queue := list
	for len(queue) > 0 {
		var deferred []compiled

		for _, c := range queue {
			code := c.def.Code

			if c.guard != nil {
				if blocked(c.guard) {
					deferred = append(deferred, c)
					continue
				}
				ok, err := c.guard.EvalBool(work)
				if err != nil {
					return nil, withFormula(err, code)
				}
				if !ok {
					work[code] = Number(0)
					delete(pending, code)
					res.Formulas = append(res.Formulas, Computed{
						Code: code, Name: c.def.Name, Unit: c.def.OutputUnit, Skipped: true,
					})
					continue
				}
			}

			if blocked(c.expr) {
				deferred = append(deferred, c)
				continue
			}

			raw, err := c.expr.EvalNumber(work)
			if err != nil {
				return nil, withFormula(err, code)
			}
			val, err := Round(raw, c.def.RoundingMethod, c.def.Precision)
			if err != nil {
				return nil, withFormula(err, code)
			}

			work[code] = Number(val)
			delete(pending, code)
			res.Formulas = append(res.Formulas, Computed{
				Code: code, Name: c.def.Name, Raw: raw, Value: val, Unit: c.def.OutputUnit,
			})
		}

		if len(deferred) == len(queue) {
			codes := make([]string, len(deferred))
			for i, c := range deferred {
				codes[i] = c.def.Code
			}
			return nil, &Error{
				Kind: ErrCyclicFormulaDependency,
				Pos:  -1,
				Msg:  fmt.Sprintf("no progress resolving %s", strings.Join(codes, ", ")),
			}
		}
		queue = deferred
	}

	res.Env = work
	return res, nil
}

// CheckGraph statically validates a formula set: every expression and guard
// compiles, every identifier names a known parameter or one of the formulas,
// and formula-to-formula references are acyclic. A guarded formula may read
// unknown identifiers in its expression, since the guard can skip it; only
// its guard has to resolve. GuardedUnknowns reports those identifiers.
func CheckGraph(formulas []storage.TemplateFormula, params []string) error {
	list, err := compileFormulas(formulas)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p] = true
	}

	deps := make(map[string][]string, len(list))
	for _, c := range list {
		if known[c.def.Code] {
			return &Error{Kind: ErrDuplicateDefinition, Formula: c.def.Code, Pos: -1, Msg: "formula code shadows a parameter"}
		}
		deps[c.def.Code] = nil
	}

	link := func(code, ref string, strict bool) error {
		if _, isFormula := deps[ref]; isFormula {
			deps[code] = append(deps[code], ref)
			return nil
		}
		if known[ref] || !strict {
			return nil
		}
		return &Error{Kind: ErrUndefinedReference, Formula: code, Pos: -1,
			Msg: fmt.Sprintf("%q is neither a parameter nor a formula", ref)}
	}

	for _, c := range list {
		guarded := c.guard != nil
		if guarded {
			for _, ref := range c.guard.refs {
				if err := link(c.def.Code, ref, true); err != nil {
					return err
				}
			}
		}
		for _, ref := range c.expr.refs {
			if err := link(c.def.Code, ref, !guarded); err != nil {
				return err
			}
		}
	}

	// Kahn: repeatedly drop formulas whose formula dependencies are all resolved.
	resolved := make(map[string]bool, len(list))
	for progress := true; progress; {
		progress = false
		for _, c := range list {
			code := c.def.Code
			if resolved[code] {
				continue
			}
			ready := true
			for _, d := range deps[code] {
				if !resolved[d] {
					ready = false
					break
				}
			}
			if ready {
				resolved[code] = true
				progress = true
			}
		}
	}

	if len(resolved) != len(list) {
		var codes []string
		for _, c := range list {
			if !resolved[c.def.Code] {
				codes = append(codes, c.def.Code)
			}
		}
		return &Error{Kind: ErrCyclicFormulaDependency, Pos: -1, Msg: strings.Join(codes, ", ")}
	}

	return nil
}

// GuardedUnknowns returns, per guarded formula code, the identifiers its
// expression reads that are neither parameters nor formulas of the set.
func GuardedUnknowns(formulas []storage.TemplateFormula, params []string) (map[string][]string, error) {
	list, err := compileFormulas(formulas)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(params)+len(list))
	for _, p := range params {
		known[p] = true
	}
	for _, c := range list {
		known[c.def.Code] = true
	}

	out := make(map[string][]string)
	for _, c := range list {
		if c.guard == nil {
			continue
		}
		for _, ref := range c.expr.refs {
			if !known[ref] && !contains(out[c.def.Code], ref) {
				out[c.def.Code] = append(out[c.def.Code], ref)
			}
		}
	}
	return out, nil
}

// InferInputs returns the identifiers an expression and its guard read.
func InferInputs(expression, conditions string) ([]string, error) {
	e, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	refs := append([]string{}, e.refs...)
	if strings.TrimSpace(conditions) != "" {
		g, err := Compile(conditions)
		if err != nil {
			return nil, err
		}
		for _, r := range g.refs {
			if !contains(refs, r) {
				refs = append(refs, r)
			}
		}
	}
	return refs, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
