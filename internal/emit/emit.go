package emit

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"rtlopt/internal/ir"
)

// Emit writes the netlist representation of the design to outputPath. When
// outputPath is empty or "-", the result is written to stdout.
func Emit(design *ir.Design, outputPath string) error {
	if outputPath == "" || outputPath == "-" {
		return Write(design, os.Stdout)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	err = Write(design, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Write renders the design to w. The output depends only on the design's
// contents and the first-definition ordinals, never on pass scheduling, so
// semantically identical designs produce byte-identical netlists.
func Write(design *ir.Design, w io.Writer) error {
	pr := &printer{w: w}
	for i, module := range orderedModules(design) {
		if i > 0 {
			pr.println("")
		}
		pr.emitModule(module)
	}
	return pr.err
}

// orderedModules puts the top module first and the rest in name order.
func orderedModules(design *ir.Design) []*ir.Module {
	rest := make([]*ir.Module, 0, len(design.Modules))
	for _, m := range design.Modules {
		if m != design.Top {
			rest = append(rest, m)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })
	if design.Top == nil {
		return rest
	}
	return append([]*ir.Module{design.Top}, rest...)
}

type printer struct {
	w      io.Writer
	indent int
	err    error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, strings.Repeat("  ", p.indent)+format+"\n", args...)
}

func (p *printer) println(line string) {
	if p.err != nil {
		return
	}
	if line == "" {
		_, p.err = fmt.Fprintln(p.w)
		return
	}
	_, p.err = fmt.Fprintln(p.w, strings.Repeat("  ", p.indent)+line)
}

func (p *printer) emitModule(m *ir.Module) {
	ports := make([]string, len(m.Ports))
	for i, port := range m.Ports {
		ports[i] = fmt.Sprintf("%s %s:%d", directionKeyword(port.Direction), port.Name, port.Width)
	}
	p.printf("module %s(%s) {", m.Name, strings.Join(ports, ", "))
	p.indent++

	portNames := make(map[string]bool, len(m.Ports))
	for _, port := range m.Ports {
		portNames[port.Name] = true
	}
	signals := append([]*ir.Signal(nil), m.Signals...)
	sort.Slice(signals, func(i, j int) bool { return signals[i].Ordinal < signals[j].Ordinal })
	for _, sig := range signals {
		if portNames[sig.Name] {
			continue
		}
		p.printf("%s %s:%d", kindKeyword(sig.Kind), sig.Name, sig.Width)
	}

	for _, item := range orderedItems(m) {
		switch x := item.(type) {
		case *ir.ContAssign:
			p.printf("assign %s = %s", x.Target, ir.ExprString(x.Source))
		case *ir.ProcessBlock:
			p.emitProcess(x)
		case *ir.Instance:
			p.emitInstance(x)
		}
	}

	p.indent--
	p.println("}")
}

// orderedItems interleaves assigns, processes and instances by ordinal.
func orderedItems(m *ir.Module) []any {
	items := make([]any, 0, len(m.Assigns)+len(m.Processes)+len(m.Instances))
	for _, a := range m.Assigns {
		items = append(items, a)
	}
	for _, proc := range m.Processes {
		items = append(items, proc)
	}
	for _, inst := range m.Instances {
		items = append(items, inst)
	}
	sort.Slice(items, func(i, j int) bool { return itemOrdinal(items[i]) < itemOrdinal(items[j]) })
	return items
}

func itemOrdinal(item any) int {
	switch x := item.(type) {
	case *ir.ContAssign:
		return x.Ordinal
	case *ir.ProcessBlock:
		return x.Ordinal
	case *ir.Instance:
		return x.Ordinal
	}
	return 0
}

func (p *printer) emitProcess(proc *ir.ProcessBlock) {
	p.printf("process %s @(%s) {", proc.Name, ir.SensitivityString(proc.Sensitivity))
	p.indent++
	p.emitStmts(proc.Body)
	p.indent--
	p.println("}")
}

func (p *printer) emitStmts(stmts []ir.Stmt) {
	for _, s := range stmts {
		switch x := s.(type) {
		case *ir.Assign:
			op := "="
			if x.Kind == ir.NonBlocking {
				op = "<="
			}
			p.printf("%s %s %s", x.Target, op, ir.ExprString(x.Source))
		case *ir.If:
			p.printf("if %s {", ir.ExprString(x.Cond))
			p.indent++
			p.emitStmts(x.Then)
			p.indent--
			if len(x.Else) > 0 {
				p.println("} else {")
				p.indent++
				p.emitStmts(x.Else)
				p.indent--
			}
			p.println("}")
		case *ir.Case:
			p.printf("case %s {", ir.ExprString(x.Selector))
			p.indent++
			for _, arm := range x.Arms {
				p.printf("%s / %s: {", arm.Pattern, arm.Mask)
				p.indent++
				p.emitStmts(arm.Body)
				p.indent--
				p.println("}")
			}
			if x.Default != nil {
				p.println("default: {")
				p.indent++
				p.emitStmts(x.Default)
				p.indent--
				p.println("}")
			}
			p.indent--
			p.println("}")
		case *ir.Loop:
			p.printf("repeat %d {", x.Count)
			p.indent++
			p.emitStmts(x.Body)
			p.indent--
			p.println("}")
		}
	}
}

func (p *printer) emitInstance(inst *ir.Instance) {
	p.printf("instance %s of %s {", inst.Name, inst.ModuleName)
	p.indent++
	for _, in := range inst.Inputs {
		p.printf(".%s <- %s", in.Port, ir.ExprString(in.Source))
	}
	for _, out := range inst.Outputs {
		p.printf(".%s -> %s", out.Port, out.Signal)
	}
	p.indent--
	p.println("}")
}

func directionKeyword(d ir.PortDirection) string {
	switch d {
	case ir.Input:
		return "input"
	case ir.Output:
		return "output"
	case ir.InOut:
		return "inout"
	default:
		return "?"
	}
}

func kindKeyword(k ir.SignalKind) string {
	if k == ir.Variable {
		return "var"
	}
	return "wire"
}
