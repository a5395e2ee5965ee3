package passes

import (
	"rtlopt/internal/ir"
)

// fold rewrites an expression bottom-up under the evaluator's known
// constants, applying both full literal evaluation and the algebraic
// identities that let tied-off gates collapse.
func (ev *evaluator) fold(e ir.Expr) ir.Expr {
	return ir.RewriteExpr(e, ev.foldNode)
}

func (ev *evaluator) foldNode(e ir.Expr) ir.Expr {
	switch x := e.(type) {
	case *ir.SignalRef:
		if v, ok := ev.known[x.Name]; ok {
			return &ir.Literal{Value: v}
		}
	case *ir.InstanceOutput:
		if outs, ok := ev.instOuts[x.Instance]; ok {
			if v, ok := outs[x.Port]; ok {
				return &ir.Literal{Value: v}
			}
		}
	case *ir.Unary:
		if v, ok := asLiteral(x.X); ok {
			switch x.Op {
			case ir.OpNot:
				return &ir.Literal{Value: v.Not()}
			case ir.OpNeg:
				return &ir.Literal{Value: ir.NewBitVector(v.Width(), 0).Sub(v).Trunc(v.Width())}
			}
		}
	case *ir.Binary:
		return ev.foldBinary(x)
	case *ir.Concat:
		out := ir.NewBitVector(0, 0)
		for _, p := range x.Parts {
			v, ok := asLiteral(p)
			if !ok {
				return e
			}
			out = out.Concat(v)
		}
		return &ir.Literal{Value: out}
	case *ir.Slice:
		if v, ok := asLiteral(x.X); ok {
			return &ir.Literal{Value: v.Slice(x.High, x.Low)}
		}
	case *ir.Select:
		if v, ok := asLiteral(x.Cond); ok {
			// The value is the taken branch regardless of what the untaken
			// branch contains.
			if v.IsZero() {
				return x.Else
			}
			return x.Then
		}
	}
	return e
}

func (ev *evaluator) foldBinary(x *ir.Binary) ir.Expr {
	lv, lok := asLiteral(x.X)
	rv, rok := asLiteral(x.Y)
	if lok && rok {
		return &ir.Literal{Value: evalBinary(x.Op, lv, rv)}
	}
	if !lok && !rok {
		return x
	}
	// One constant operand: apply width-safe identities.
	lit, other := lv, x.Y
	if rok {
		lit, other = rv, x.X
	}
	otherWidth := ev.exprWidth(other)
	resultWidth := otherWidth
	if lit.Width() > resultWidth {
		resultWidth = lit.Width()
	}
	switch x.Op {
	case ir.OpAnd:
		if lit.IsZero() {
			return &ir.Literal{Value: ir.NewBitVector(resultWidth, 0)}
		}
		if lit.AllOnes() && lit.Width() >= otherWidth {
			return other
		}
	case ir.OpOr:
		if lit.IsZero() {
			return other
		}
		if lit.AllOnes() && lit.Width() >= otherWidth {
			return &ir.Literal{Value: ir.NewBitVector(resultWidth, 0).Not()}
		}
	case ir.OpXor:
		if lit.IsZero() {
			return other
		}
	case ir.OpAdd:
		if lit.IsZero() {
			return other
		}
	case ir.OpSub:
		if rok && lit.IsZero() {
			return other
		}
	case ir.OpMul:
		if lit.IsZero() {
			return &ir.Literal{Value: ir.NewBitVector(resultWidth, 0)}
		}
		if lit.SameBits(ir.NewBitVector(lit.Width(), 1)) {
			return other
		}
	case ir.OpShl, ir.OpShr:
		if rok && lit.IsZero() {
			return other
		}
	}
	return x
}

func evalBinary(op ir.BinaryOp, a, b ir.BitVector) ir.BitVector {
	switch op {
	case ir.OpAnd:
		return a.And(b)
	case ir.OpOr:
		return a.Or(b)
	case ir.OpXor:
		return a.Xor(b)
	case ir.OpAdd:
		return a.Add(b)
	case ir.OpSub:
		return a.Sub(b)
	case ir.OpMul:
		return a.Mul(b)
	case ir.OpShl:
		return a.Shl(b)
	case ir.OpShr:
		return a.Shr(b)
	case ir.OpEq:
		return ir.Bool(a.SameBits(b))
	case ir.OpNe:
		return ir.Bool(!a.SameBits(b))
	case ir.OpLt:
		return ir.Bool(a.Lt(b))
	case ir.OpLe:
		return ir.Bool(a.SameBits(b) || a.Lt(b))
	default:
		return a
	}
}

func asLiteral(e ir.Expr) (ir.BitVector, bool) {
	if lit, ok := e.(*ir.Literal); ok {
		return lit.Value, true
	}
	return ir.BitVector{}, false
}

// exprWidth computes the static width of an expression under the operator
// width rules: comparisons are 1 bit, shifts follow their left operand,
// everything else the wider operand.
func (ev *evaluator) exprWidth(e ir.Expr) int {
	switch x := e.(type) {
	case *ir.Literal:
		return x.Value.Width()
	case *ir.SignalRef:
		if sig := ev.module.Signal(x.Name); sig != nil {
			return sig.Width
		}
		return 1
	case *ir.Unary:
		return ev.exprWidth(x.X)
	case *ir.Binary:
		switch x.Op {
		case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe:
			return 1
		case ir.OpShl, ir.OpShr:
			return ev.exprWidth(x.X)
		default:
			w := ev.exprWidth(x.X)
			if yw := ev.exprWidth(x.Y); yw > w {
				w = yw
			}
			return w
		}
	case *ir.Concat:
		w := 0
		for _, p := range x.Parts {
			w += ev.exprWidth(p)
		}
		return w
	case *ir.Slice:
		return x.High - x.Low + 1
	case *ir.Select:
		w := ev.exprWidth(x.Then)
		if ew := ev.exprWidth(x.Else); ew > w {
			w = ew
		}
		return w
	case *ir.InstanceOutput:
		if inst := ev.module.Instance(x.Instance); inst != nil {
			if sub := ev.design.Module(inst.ModuleName); sub != nil {
				if p := sub.Port(x.Port); p != nil {
					return p.Width
				}
			}
		}
		return 1
	default:
		return 1
	}
}

// constState tracks what a statement sequence leaves in one target signal.
type constStateKind int

const (
	stNone  constStateKind = iota // target untouched, previous value held
	stConst                       // target provably one literal
	stVar                         // target written with a non-constant value
)

type constState struct {
	kind  constStateKind
	value ir.BitVector
}

func (s constState) equal(o constState) bool {
	if s.kind != o.kind {
		return false
	}
	return s.kind != stConst || s.value.Equal(o.value)
}

func mergeConstState(a, b constState) constState {
	if a.kind == stNone && b.kind == stNone {
		return a
	}
	if a.kind == stConst && b.kind == stConst && a.value.Equal(b.value) {
		return a
	}
	return constState{kind: stVar}
}

// applyStmts runs the abstract single-target interpretation of a statement
// list: every assignment that can reach the target must fold to the same
// literal, on every path, for the target to be constant.
func (ev *evaluator) applyStmts(cur constState, stmts []ir.Stmt, target string) constState {
	for _, s := range stmts {
		cur = ev.applyStmt(cur, s, target)
	}
	return cur
}

func (ev *evaluator) applyStmt(cur constState, s ir.Stmt, target string) constState {
	switch x := s.(type) {
	case *ir.Assign:
		if x.Target != target {
			return cur
		}
		if v, ok := asLiteral(ev.fold(x.Source)); ok {
			return constState{kind: stConst, value: v}
		}
		return constState{kind: stVar}
	case *ir.If:
		if v, ok := asLiteral(ev.fold(x.Cond)); ok {
			if v.IsZero() {
				return ev.applyStmts(cur, x.Else, target)
			}
			return ev.applyStmts(cur, x.Then, target)
		}
		return mergeConstState(
			ev.applyStmts(cur, x.Then, target),
			ev.applyStmts(cur, x.Else, target),
		)
	case *ir.Case:
		if v, ok := asLiteral(ev.fold(x.Selector)); ok {
			for _, arm := range x.Arms {
				if ir.MatchesPattern(v, arm.Pattern, arm.Mask) {
					return ev.applyStmts(cur, arm.Body, target)
				}
			}
			if x.Default != nil {
				return ev.applyStmts(cur, x.Default, target)
			}
			return cur // no match, previous value held
		}
		merged := constState{}
		first := true
		for _, arm := range x.Arms {
			st := ev.applyStmts(cur, arm.Body, target)
			if first {
				merged, first = st, false
			} else {
				merged = mergeConstState(merged, st)
			}
		}
		if x.Default != nil {
			st := ev.applyStmts(cur, x.Default, target)
			if first {
				merged, first = st, false
			} else {
				merged = mergeConstState(merged, st)
			}
		} else {
			// Uncovered selector values keep the previous value.
			if first {
				merged = cur
			} else {
				merged = mergeConstState(merged, cur)
			}
		}
		return merged
	case *ir.Loop:
		if x.Count <= 0 {
			return cur
		}
		once := ev.applyStmts(cur, x.Body, target)
		twice := ev.applyStmts(once, x.Body, target)
		if once.equal(twice) {
			return once
		}
		return constState{kind: stVar}
	default:
		return cur
	}
}
