package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a simple human-readable representation of the design.
func Dump(design *Design, w io.Writer) {
	if design == nil {
		fmt.Fprintln(w, "<nil design>")
		return
	}
	for _, module := range design.Modules {
		fmt.Fprintf(w, "module %s\n", module.Name)
		dumpPorts(module, w)
		dumpSignals(module, w)
		dumpAssigns(module, w)
		dumpProcesses(module, w)
		dumpInstances(module, w)
		fmt.Fprintln(w)
	}
}

func dumpPorts(module *Module, w io.Writer) {
	if len(module.Ports) == 0 {
		return
	}
	fmt.Fprintln(w, "  ports:")
	for _, port := range module.Ports {
		fmt.Fprintf(w, "    %s %s %db\n", portDirection(port.Direction), port.Name, port.Width)
	}
}

func dumpSignals(module *Module, w io.Writer) {
	if len(module.Signals) == 0 {
		return
	}
	fmt.Fprintln(w, "  signals:")
	for _, sig := range module.Signals {
		fmt.Fprintf(w, "    %-8s %-8s %db\n", sig.Name, signalKind(sig.Kind), sig.Width)
	}
}

func dumpAssigns(module *Module, w io.Writer) {
	if len(module.Assigns) == 0 {
		return
	}
	fmt.Fprintln(w, "  assigns:")
	for _, a := range module.Assigns {
		fmt.Fprintf(w, "    %s = %s\n", a.Target, ExprString(a.Source))
	}
}

func dumpProcesses(module *Module, w io.Writer) {
	for _, proc := range module.Processes {
		fmt.Fprintf(w, "  process %s (%s, %s)\n", proc.Name, domainName(proc.Domain()), SensitivityString(proc.Sensitivity))
		dumpStmts(proc.Body, w, "    ")
	}
}

func dumpStmts(stmts []Stmt, w io.Writer, indent string) {
	for _, s := range stmts {
		switch x := s.(type) {
		case *Assign:
			fmt.Fprintf(w, "%s%s %s %s\n", indent, x.Target, assignSymbol(x.Kind), ExprString(x.Source))
		case *If:
			fmt.Fprintf(w, "%sif %s\n", indent, ExprString(x.Cond))
			dumpStmts(x.Then, w, indent+"  ")
			if len(x.Else) > 0 {
				fmt.Fprintf(w, "%selse\n", indent)
				dumpStmts(x.Else, w, indent+"  ")
			}
		case *Case:
			fmt.Fprintf(w, "%scase %s\n", indent, ExprString(x.Selector))
			for _, arm := range x.Arms {
				fmt.Fprintf(w, "%s  %s mask %s:\n", indent, arm.Pattern, arm.Mask)
				dumpStmts(arm.Body, w, indent+"    ")
			}
			if x.Default != nil {
				fmt.Fprintf(w, "%s  default:\n", indent)
				dumpStmts(x.Default, w, indent+"    ")
			}
		case *Loop:
			fmt.Fprintf(w, "%srepeat %d\n", indent, x.Count)
			dumpStmts(x.Body, w, indent+"  ")
		}
	}
}

func dumpInstances(module *Module, w io.Writer) {
	for _, inst := range module.Instances {
		var parts []string
		for _, in := range inst.Inputs {
			parts = append(parts, fmt.Sprintf(".%s(%s)", in.Port, ExprString(in.Source)))
		}
		for _, out := range inst.Outputs {
			parts = append(parts, fmt.Sprintf(".%s->%s", out.Port, out.Signal))
		}
		fmt.Fprintf(w, "  instance %s %s(%s)\n", inst.ModuleName, inst.Name, strings.Join(parts, ", "))
	}
}

// ExprString renders an expression in a compact infix form. The rendering is
// deterministic; the emitter and the analyzers both rely on it.
func ExprString(e Expr) string {
	switch x := e.(type) {
	case nil:
		return "<nil>"
	case *Literal:
		return x.Value.String()
	case *SignalRef:
		return x.Name
	case *Unary:
		return unaryOpSymbol(x.Op) + exprOperand(x.X)
	case *Binary:
		return fmt.Sprintf("%s %s %s", exprOperand(x.X), binaryOpSymbol(x.Op), exprOperand(x.Y))
	case *Concat:
		parts := make([]string, len(x.Parts))
		for i, p := range x.Parts {
			parts[i] = ExprString(p)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Slice:
		if x.High == x.Low {
			return fmt.Sprintf("%s[%d]", exprOperand(x.X), x.Low)
		}
		return fmt.Sprintf("%s[%d:%d]", exprOperand(x.X), x.High, x.Low)
	case *Select:
		return fmt.Sprintf("%s ? %s : %s", exprOperand(x.Cond), exprOperand(x.Then), exprOperand(x.Else))
	case *InstanceOutput:
		return x.Instance + "." + x.Port
	default:
		return fmt.Sprintf("<unknown expr %T>", e)
	}
}

func exprOperand(e Expr) string {
	switch e.(type) {
	case *Binary, *Select:
		return "(" + ExprString(e) + ")"
	default:
		return ExprString(e)
	}
}

// SensitivityString renders a sensitivity description.
func SensitivityString(s Sensitivity) string {
	if s.All {
		return "*"
	}
	parts := make([]string, len(s.Edges))
	for i, e := range s.Edges {
		edge := "posedge"
		if e.Polarity == Falling {
			edge = "negedge"
		}
		parts[i] = edge + " " + e.Signal
	}
	return strings.Join(parts, ", ")
}

func assignSymbol(k AssignKind) string {
	if k == NonBlocking {
		return "<="
	}
	return "="
}

func unaryOpSymbol(op UnaryOp) string {
	if op == OpNeg {
		return "-"
	}
	return "~"
}

func binaryOpSymbol(op BinaryOp) string {
	switch op {
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpXor:
		return "^"
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	default:
		return "?"
	}
}

func portDirection(dir PortDirection) string {
	switch dir {
	case Input:
		return "in "
	case Output:
		return "out"
	case InOut:
		return "io "
	default:
		return "?"
	}
}

func domainName(d Domain) string {
	if d == Sequential {
		return "sequential"
	}
	return "combinational"
}

func signalKind(k SignalKind) string {
	if k == Variable {
		return "variable"
	}
	return "wire"
}
