package formula

import (
	"math"

	"estimator/internal/storage"
)

// Value is a runtime value: a number, or text usable only in == and != comparisons.
// Booleans are numbers (1 and 0).
type Value struct {
	Num    float64
	Str    string
	IsText bool
}

func Number(f float64) Value { return Value{Num: f} }
func Text(s string) Value    { return Value{Str: s, IsText: true} }

func Bool(b bool) Value {
	if b {
		return Number(1)
	}
	return Number(0)
}

// Env maps parameter and formula codes to values.
type Env map[string]Value

func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// EnvFromValues binds validated parameter values.
func EnvFromValues(values map[string]storage.Value) Env {
	env := make(Env, len(values))
	for code, v := range values {
		switch v.Kind {
		case storage.ValueNumber:
			env[code] = Number(v.Num)
		case storage.ValueBool:
			env[code] = Bool(v.Bool)
		case storage.ValueText:
			env[code] = Text(v.Text)
		}
	}
	return env
}

// Expr is a compiled expression. It is immutable and safe for concurrent use.
type Expr struct {
	src  string
	root node
	refs []string
}

func Compile(src string) (*Expr, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}

	var refs []string
	seen := map[string]bool{}
	walk(root, func(n node) {
		if id, ok := n.(*ident); ok && !seen[id.name] {
			seen[id.name] = true
			refs = append(refs, id.name)
		}
	})

	return &Expr{src: src, root: root, refs: refs}, nil
}

func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string { return e.src }

// Refs returns the identifiers the expression reads, in order of first appearance.
func (e *Expr) Refs() []string { return e.refs }

// Ident returns the name when the whole expression is a single identifier.
func (e *Expr) Ident() (string, bool) {
	id, ok := e.root.(*ident)
	if !ok {
		return "", false
	}
	return id.name, true
}

func (e *Expr) Eval(env Env) (Value, error) {
	return eval(e.root, env)
}

func (e *Expr) EvalNumber(env Env) (float64, error) {
	v, err := eval(e.root, env)
	if err != nil {
		return 0, err
	}
	if v.IsText {
		return 0, newError(ErrType, e.root.position(), "expression yields text %q, expected a number", v.Str)
	}
	return v.Num, nil
}

func (e *Expr) EvalBool(env Env) (bool, error) {
	v, err := eval(e.root, env)
	if err != nil {
		return false, err
	}
	return truth(v, e.root.position())
}

// Evaluate compiles and evaluates src to a number.
func Evaluate(src string, env Env) (float64, error) {
	e, err := Compile(src)
	if err != nil {
		return 0, err
	}
	return e.EvalNumber(env)
}

func truth(v Value, pos int) (bool, error) {
	if v.IsText {
		return false, newError(ErrType, pos, "text %q used as a condition", v.Str)
	}
	return v.Num != 0, nil
}

func number(v Value, pos int) (float64, error) {
	if v.IsText {
		return 0, newError(ErrType, pos, "text %q used in arithmetic", v.Str)
	}
	return v.Num, nil
}

func finite(f float64, pos int) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, newError(ErrDomain, pos, "result is not a finite number")
	}
	return Number(f), nil
}

func eval(n node, env Env) (Value, error) {
	switch x := n.(type) {
	case *numberLit:
		return Number(x.value), nil

	case *stringLit:
		return Text(x.value), nil

	case *boolLit:
		return Bool(x.value), nil

	case *ident:
		v, ok := env[x.name]
		if !ok {
			return Value{}, newError(ErrUndefinedReference, x.pos, "%q is neither a parameter nor a computed formula", x.name)
		}
		return v, nil

	case *unaryExpr:
		v, err := eval(x.x, env)
		if err != nil {
			return Value{}, err
		}
		if x.op == tokNot {
			b, err := truth(v, x.pos)
			if err != nil {
				return Value{}, err
			}
			return Bool(!b), nil
		}
		f, err := number(v, x.pos)
		if err != nil {
			return Value{}, err
		}
		return Number(-f), nil

	case *binaryExpr:
		return evalBinary(x, env)

	case *callExpr:
		args := make([]float64, len(x.args))
		for i, a := range x.args {
			v, err := eval(a, env)
			if err != nil {
				return Value{}, err
			}
			if args[i], err = number(v, a.position()); err != nil {
				return Value{}, err
			}
		}
		f, err := x.fn.call(x.pos, args)
		if err != nil {
			return Value{}, err
		}
		return finite(f, x.pos)
	}

	return Value{}, newError(ErrSyntax, n.position(), "unsupported expression")
}

func evalBinary(x *binaryExpr, env Env) (Value, error) {
	left, err := eval(x.left, env)
	if err != nil {
		return Value{}, err
	}

	// && and || short-circuit: the right side is not evaluated when the left decides.
	if x.op == tokAnd || x.op == tokOr {
		l, err := truth(left, x.left.position())
		if err != nil {
			return Value{}, err
		}
		if x.op == tokAnd && !l {
			return Bool(false), nil
		}
		if x.op == tokOr && l {
			return Bool(true), nil
		}
		right, err := eval(x.right, env)
		if err != nil {
			return Value{}, err
		}
		r, err := truth(right, x.right.position())
		if err != nil {
			return Value{}, err
		}
		return Bool(r), nil
	}

	right, err := eval(x.right, env)
	if err != nil {
		return Value{}, err
	}

	if x.op == tokEq || x.op == tokNe {
		if left.IsText != right.IsText {
			return Value{}, newError(ErrType, x.pos, "cannot compare text with a number")
		}
		eq := left.Num == right.Num
		if left.IsText {
			eq = left.Str == right.Str
		}
		return Bool(eq == (x.op == tokEq)), nil
	}

	l, err := number(left, x.left.position())
	if err != nil {
		return Value{}, err
	}
	r, err := number(right, x.right.position())
	if err != nil {
		return Value{}, err
	}

	switch x.op {
	case tokPlus:
		return finite(l+r, x.pos)
	case tokMinus:
		return finite(l-r, x.pos)
	case tokStar:
		return finite(l*r, x.pos)
	case tokSlash:
		if r == 0 {
			return Value{}, newError(ErrDivisionByZero, x.pos, "%v / 0", l)
		}
		return finite(l/r, x.pos)
	case tokLt:
		return Bool(l < r), nil
	case tokLe:
		return Bool(l <= r), nil
	case tokGt:
		return Bool(l > r), nil
	case tokGe:
		return Bool(l >= r), nil
	}

	return Value{}, newError(ErrSyntax, x.pos, "unsupported operator %s", x.op)
}
