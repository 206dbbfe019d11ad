package formula

type node interface {
	position() int
}

type numberLit struct {
	pos   int
	value float64
}

type stringLit struct {
	pos   int
	value string
}

type boolLit struct {
	pos   int
	value bool
}

type ident struct {
	pos  int
	name string
}

type unaryExpr struct {
	pos int
	op  tokenKind
	x   node
}

type binaryExpr struct {
	pos         int
	op          tokenKind
	left, right node
}

type callExpr struct {
	pos  int
	name string
	fn   *builtin
	args []node
}

func (n *numberLit) position() int  { return n.pos }
func (n *stringLit) position() int  { return n.pos }
func (n *boolLit) position() int    { return n.pos }
func (n *ident) position() int      { return n.pos }
func (n *unaryExpr) position() int  { return n.pos }
func (n *binaryExpr) position() int { return n.pos }
func (n *callExpr) position() int   { return n.pos }

// walk visits every node depth-first, left to right.
func walk(n node, visit func(node)) {
	visit(n)
	switch x := n.(type) {
	case *unaryExpr:
		walk(x.x, visit)
	case *binaryExpr:
		walk(x.left, visit)
		walk(x.right, visit)
	case *callExpr:
		for _, a := range x.args {
			walk(a, visit)
		}
	}
}
