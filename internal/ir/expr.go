package ir

// Expr is implemented by every expression node. Expressions are immutable
// once built; constant folding produces new nodes rather than mutating.
type Expr interface {
	isExpr()
}

// Literal is a constant bit-vector value.
type Literal struct {
	Value BitVector
}

func (*Literal) isExpr() {}

// SignalRef reads a declared signal.
type SignalRef struct {
	Name string
}

func (*SignalRef) isExpr() {}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota // bitwise complement
	OpNeg                // two's-complement negation
)

// Unary applies a unary operator.
type Unary struct {
	Op UnaryOp
	X  Expr
}

func (*Unary) isExpr() {}

// BinaryOp enumerates binary operators. Comparisons produce 1-bit results;
// everything else is evaluated at the wider operand width and truncated to
// the assignment target's width on assignment.
type BinaryOp int

const (
	OpAnd BinaryOp = iota
	OpOr
	OpXor
	OpAdd
	OpSub
	OpMul
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
)

// Binary applies a binary operator.
type Binary struct {
	Op   BinaryOp
	X, Y Expr
}

func (*Binary) isExpr() {}

// Concat joins parts with the first part in the high bits.
type Concat struct {
	Parts []Expr
}

func (*Concat) isExpr() {}

// Slice extracts bits High..Low inclusive.
type Slice struct {
	X         Expr
	High, Low int
}

func (*Slice) isExpr() {}

// Select is the ternary cond ? then : else.
type Select struct {
	Cond, Then, Else Expr
}

func (*Select) isExpr() {}

// InstanceOutput reads an output port of a submodule instance directly.
type InstanceOutput struct {
	Instance string
	Port     string
}

func (*InstanceOutput) isExpr() {}

// WalkRefs calls fn for every signal read by e.
func WalkRefs(e Expr, fn func(name string)) {
	switch x := e.(type) {
	case nil:
	case *Literal:
	case *SignalRef:
		fn(x.Name)
	case *Unary:
		WalkRefs(x.X, fn)
	case *Binary:
		WalkRefs(x.X, fn)
		WalkRefs(x.Y, fn)
	case *Concat:
		for _, p := range x.Parts {
			WalkRefs(p, fn)
		}
	case *Slice:
		WalkRefs(x.X, fn)
	case *Select:
		WalkRefs(x.Cond, fn)
		WalkRefs(x.Then, fn)
		WalkRefs(x.Else, fn)
	case *InstanceOutput:
	}
}

// WalkInstanceRefs calls fn for every instance output read by e.
func WalkInstanceRefs(e Expr, fn func(instance, port string)) {
	switch x := e.(type) {
	case nil:
	case *Unary:
		WalkInstanceRefs(x.X, fn)
	case *Binary:
		WalkInstanceRefs(x.X, fn)
		WalkInstanceRefs(x.Y, fn)
	case *Concat:
		for _, p := range x.Parts {
			WalkInstanceRefs(p, fn)
		}
	case *Slice:
		WalkInstanceRefs(x.X, fn)
	case *Select:
		WalkInstanceRefs(x.Cond, fn)
		WalkInstanceRefs(x.Then, fn)
		WalkInstanceRefs(x.Else, fn)
	case *InstanceOutput:
		fn(x.Instance, x.Port)
	}
}

// RewriteExpr rebuilds e bottom-up through fn. fn receives each node after
// its children were rewritten and returns the replacement (often the node
// itself). The input expression is never mutated.
func RewriteExpr(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	switch x := e.(type) {
	case *Literal, *SignalRef, *InstanceOutput:
		return fn(e)
	case *Unary:
		return fn(&Unary{Op: x.Op, X: RewriteExpr(x.X, fn)})
	case *Binary:
		return fn(&Binary{Op: x.Op, X: RewriteExpr(x.X, fn), Y: RewriteExpr(x.Y, fn)})
	case *Concat:
		parts := make([]Expr, len(x.Parts))
		for i, p := range x.Parts {
			parts[i] = RewriteExpr(p, fn)
		}
		return fn(&Concat{Parts: parts})
	case *Slice:
		return fn(&Slice{X: RewriteExpr(x.X, fn), High: x.High, Low: x.Low})
	case *Select:
		return fn(&Select{
			Cond: RewriteExpr(x.Cond, fn),
			Then: RewriteExpr(x.Then, fn),
			Else: RewriteExpr(x.Else, fn),
		})
	default:
		return fn(e)
	}
}

// Stmt is implemented by every process-block statement node.
type Stmt interface {
	isStmt()
}

// AssignKind separates blocking from non-blocking process assignments.
type AssignKind int

const (
	Blocking AssignKind = iota
	NonBlocking
)

// Assign writes an expression into a signal inside a process block.
type Assign struct {
	Target string
	Source Expr
	Kind   AssignKind
}

func (*Assign) isStmt() {}

// If branches on a 1-bit condition. Else may be nil.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (*If) isStmt() {}

// Case selects the first arm whose (pattern, mask) matches the selector.
// Default may be nil.
type Case struct {
	Selector Expr
	Arms     []CaseArm
	Default  []Stmt
}

func (*Case) isStmt() {}

// CaseArm pairs a don't-care-masked pattern with its branch. A set mask bit
// means the position participates in matching.
type CaseArm struct {
	Pattern BitVector
	Mask    BitVector
	Body    []Stmt
}

// Loop repeats its body a compile-time-constant number of times.
type Loop struct {
	Count int
	Body  []Stmt
}

func (*Loop) isStmt() {}

// WalkStmtRefs calls fn for every signal read anywhere in the statement,
// including branch predicates and case selectors.
func WalkStmtRefs(s Stmt, fn func(name string)) {
	switch x := s.(type) {
	case *Assign:
		WalkRefs(x.Source, fn)
	case *If:
		WalkRefs(x.Cond, fn)
		for _, b := range x.Then {
			WalkStmtRefs(b, fn)
		}
		for _, b := range x.Else {
			WalkStmtRefs(b, fn)
		}
	case *Case:
		WalkRefs(x.Selector, fn)
		for _, arm := range x.Arms {
			for _, b := range arm.Body {
				WalkStmtRefs(b, fn)
			}
		}
		for _, b := range x.Default {
			WalkStmtRefs(b, fn)
		}
	case *Loop:
		for _, b := range x.Body {
			WalkStmtRefs(b, fn)
		}
	}
}

// WalkStmtTargets calls fn for every signal assigned anywhere in the
// statement.
func WalkStmtTargets(s Stmt, fn func(name string)) {
	switch x := s.(type) {
	case *Assign:
		fn(x.Target)
	case *If:
		for _, b := range x.Then {
			WalkStmtTargets(b, fn)
		}
		for _, b := range x.Else {
			WalkStmtTargets(b, fn)
		}
	case *Case:
		for _, arm := range x.Arms {
			for _, b := range arm.Body {
				WalkStmtTargets(b, fn)
			}
		}
		for _, b := range x.Default {
			WalkStmtTargets(b, fn)
		}
	case *Loop:
		for _, b := range x.Body {
			WalkStmtTargets(b, fn)
		}
	}
}

// RewriteStmt rebuilds a statement with every contained expression passed
// through fn (see RewriteExpr).
func RewriteStmt(s Stmt, fn func(Expr) Expr) Stmt {
	switch x := s.(type) {
	case *Assign:
		return &Assign{Target: x.Target, Source: RewriteExpr(x.Source, fn), Kind: x.Kind}
	case *If:
		return &If{
			Cond: RewriteExpr(x.Cond, fn),
			Then: RewriteStmts(x.Then, fn),
			Else: RewriteStmts(x.Else, fn),
		}
	case *Case:
		arms := make([]CaseArm, len(x.Arms))
		for i, arm := range x.Arms {
			arms[i] = CaseArm{Pattern: arm.Pattern, Mask: arm.Mask, Body: RewriteStmts(arm.Body, fn)}
		}
		return &Case{Selector: RewriteExpr(x.Selector, fn), Arms: arms, Default: RewriteStmts(x.Default, fn)}
	case *Loop:
		return &Loop{Count: x.Count, Body: RewriteStmts(x.Body, fn)}
	default:
		return s
	}
}

// RewriteStmts maps RewriteStmt over a statement list, preserving nil.
func RewriteStmts(stmts []Stmt, fn func(Expr) Expr) []Stmt {
	if stmts == nil {
		return nil
	}
	out := make([]Stmt, len(stmts))
	for i, s := range stmts {
		out[i] = RewriteStmt(s, fn)
	}
	return out
}
