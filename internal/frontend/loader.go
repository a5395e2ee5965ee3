package frontend

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"rtlopt/internal/diag"
	"rtlopt/internal/ir"
)

// Load reads a design description from a JSON file and links it. When path
// is "-" the description is read from stdin.
func Load(path string, reporter *diag.Reporter) (*ir.Design, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open design %s", path)
		}
		defer f.Close()
		r = f
	}
	return Read(r, reporter)
}

// Read decodes a design description from r and links it.
func Read(r io.Reader, reporter *diag.Reporter) (*ir.Design, error) {
	var doc designJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode design")
	}
	modules := make([]*ir.Module, 0, len(doc.Modules))
	for _, mj := range doc.Modules {
		m, err := decodeModule(mj)
		if err != nil {
			return nil, errors.Wrapf(err, "module %q", mj.Name)
		}
		modules = append(modules, m)
	}
	return ir.BuildDesign(modules, doc.Top, reporter)
}

type designJSON struct {
	Top     string       `json:"top"`
	Modules []moduleJSON `json:"modules"`
}

type moduleJSON struct {
	Name      string         `json:"name"`
	Ports     []portJSON     `json:"ports"`
	Signals   []signalJSON   `json:"signals,omitempty"`
	Assigns   []assignJSON   `json:"assigns,omitempty"`
	Processes []processJSON  `json:"processes,omitempty"`
	Instances []instanceJSON `json:"instances,omitempty"`
}

type portJSON struct {
	Name  string `json:"name"`
	Dir   string `json:"dir"`
	Width int    `json:"width"`
}

type signalJSON struct {
	Name  string `json:"name"`
	Width int    `json:"width"`
	Kind  string `json:"kind,omitempty"`
}

type assignJSON struct {
	Target string          `json:"target"`
	Source json.RawMessage `json:"source"`
}

type processJSON struct {
	Name        string            `json:"name"`
	Sensitivity sensitivityJSON   `json:"sensitivity"`
	Body        []json.RawMessage `json:"body"`
}

type sensitivityJSON struct {
	All   bool       `json:"all,omitempty"`
	Edges []edgeJSON `json:"edges,omitempty"`
}

type edgeJSON struct {
	Signal string `json:"signal"`
	Edge   string `json:"edge"`
}

type instanceJSON struct {
	Name    string            `json:"name"`
	Module  string            `json:"module"`
	Inputs  []portBindJSON   `json:"inputs,omitempty"`
	Outputs []outputBindJSON `json:"outputs,omitempty"`
}

type portBindJSON struct {
	Port   string          `json:"port"`
	Source json.RawMessage `json:"source"`
}

type outputBindJSON struct {
	Port   string `json:"port"`
	Signal string `json:"signal"`
}

func decodeModule(mj moduleJSON) (*ir.Module, error) {
	m := &ir.Module{Name: mj.Name}
	for _, pj := range mj.Ports {
		dir, err := decodeDirection(pj.Dir)
		if err != nil {
			return nil, errors.Wrapf(err, "port %q", pj.Name)
		}
		m.Ports = append(m.Ports, ir.Port{Name: pj.Name, Direction: dir, Width: pj.Width})
	}
	for _, sj := range mj.Signals {
		kind := ir.Wire
		switch sj.Kind {
		case "", "wire":
		case "var", "variable":
			kind = ir.Variable
		default:
			return nil, errors.Errorf("signal %q: unknown kind %q", sj.Name, sj.Kind)
		}
		m.Signals = append(m.Signals, &ir.Signal{Name: sj.Name, Width: sj.Width, Kind: kind})
	}
	for i, aj := range mj.Assigns {
		src, err := decodeExpr(aj.Source)
		if err != nil {
			return nil, errors.Wrapf(err, "assign %d to %q", i, aj.Target)
		}
		m.Assigns = append(m.Assigns, &ir.ContAssign{Target: aj.Target, Source: src})
	}
	for _, pj := range mj.Processes {
		p, err := decodeProcess(pj)
		if err != nil {
			return nil, errors.Wrapf(err, "process %q", pj.Name)
		}
		m.Processes = append(m.Processes, p)
	}
	for _, ij := range mj.Instances {
		inst := &ir.Instance{Name: ij.Name, ModuleName: ij.Module}
		for _, in := range ij.Inputs {
			src, err := decodeExpr(in.Source)
			if err != nil {
				return nil, errors.Wrapf(err, "instance %q input %q", ij.Name, in.Port)
			}
			inst.Inputs = append(inst.Inputs, ir.PortBinding{Port: in.Port, Source: src})
		}
		for _, out := range ij.Outputs {
			inst.Outputs = append(inst.Outputs, ir.OutputBinding{Port: out.Port, Signal: out.Signal})
		}
		m.Instances = append(m.Instances, inst)
	}
	return m, nil
}

func decodeDirection(s string) (ir.PortDirection, error) {
	switch s {
	case "input", "in":
		return ir.Input, nil
	case "output", "out":
		return ir.Output, nil
	case "inout":
		return ir.InOut, nil
	}
	return 0, errors.Errorf("unknown direction %q", s)
}

func decodeProcess(pj processJSON) (*ir.ProcessBlock, error) {
	p := &ir.ProcessBlock{Name: pj.Name}
	p.Sensitivity.All = pj.Sensitivity.All
	if pj.Sensitivity.All && len(pj.Sensitivity.Edges) > 0 {
		return nil, errors.New("sensitivity cannot be both * and an edge list")
	}
	for _, ej := range pj.Sensitivity.Edges {
		var pol ir.EdgePolarity
		switch ej.Edge {
		case "rise", "posedge":
			pol = ir.Rising
		case "fall", "negedge":
			pol = ir.Falling
		default:
			return nil, errors.Errorf("unknown edge %q on %q", ej.Edge, ej.Signal)
		}
		p.Sensitivity.Edges = append(p.Sensitivity.Edges, ir.Edge{Signal: ej.Signal, Polarity: pol})
	}
	body, err := decodeStmts(pj.Body)
	if err != nil {
		return nil, err
	}
	p.Body = body
	return p, nil
}

// Expressions are tagged single-key objects: {"lit": ...}, {"ref": ...},
// {"unary": ...}, {"binary": ...}, {"concat": ...}, {"slice": ...},
// {"select": ...}, {"instout": ...}.
func decodeExpr(raw json.RawMessage) (ir.Expr, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing expression")
	}
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, errors.Wrap(err, "decode expression")
	}
	if len(node) != 1 {
		return nil, errors.Errorf("expression must have exactly one tag, got %d", len(node))
	}
	for tag, body := range node {
		switch tag {
		case "lit":
			var lj litJSON
			if err := json.Unmarshal(body, &lj); err != nil {
				return nil, errors.Wrap(err, "lit")
			}
			bv, err := lj.bitVector()
			if err != nil {
				return nil, err
			}
			return &ir.Literal{Value: bv}, nil
		case "ref":
			var name string
			if err := json.Unmarshal(body, &name); err != nil {
				return nil, errors.Wrap(err, "ref")
			}
			return &ir.SignalRef{Name: name}, nil
		case "unary":
			var uj struct {
				Op string          `json:"op"`
				X  json.RawMessage `json:"x"`
			}
			if err := json.Unmarshal(body, &uj); err != nil {
				return nil, errors.Wrap(err, "unary")
			}
			op, err := decodeUnaryOp(uj.Op)
			if err != nil {
				return nil, err
			}
			x, err := decodeExpr(uj.X)
			if err != nil {
				return nil, err
			}
			return &ir.Unary{Op: op, X: x}, nil
		case "binary":
			var bj struct {
				Op string          `json:"op"`
				X  json.RawMessage `json:"x"`
				Y  json.RawMessage `json:"y"`
			}
			if err := json.Unmarshal(body, &bj); err != nil {
				return nil, errors.Wrap(err, "binary")
			}
			op, err := decodeBinaryOp(bj.Op)
			if err != nil {
				return nil, err
			}
			x, err := decodeExpr(bj.X)
			if err != nil {
				return nil, err
			}
			y, err := decodeExpr(bj.Y)
			if err != nil {
				return nil, err
			}
			return &ir.Binary{Op: op, X: x, Y: y}, nil
		case "concat":
			var parts []json.RawMessage
			if err := json.Unmarshal(body, &parts); err != nil {
				return nil, errors.Wrap(err, "concat")
			}
			c := &ir.Concat{Parts: make([]ir.Expr, len(parts))}
			for i, part := range parts {
				e, err := decodeExpr(part)
				if err != nil {
					return nil, err
				}
				c.Parts[i] = e
			}
			return c, nil
		case "slice":
			var sj struct {
				X    json.RawMessage `json:"x"`
				High int             `json:"high"`
				Low  int             `json:"low"`
			}
			if err := json.Unmarshal(body, &sj); err != nil {
				return nil, errors.Wrap(err, "slice")
			}
			x, err := decodeExpr(sj.X)
			if err != nil {
				return nil, err
			}
			return &ir.Slice{X: x, High: sj.High, Low: sj.Low}, nil
		case "select":
			var sj struct {
				Cond json.RawMessage `json:"cond"`
				Then json.RawMessage `json:"then"`
				Else json.RawMessage `json:"else"`
			}
			if err := json.Unmarshal(body, &sj); err != nil {
				return nil, errors.Wrap(err, "select")
			}
			cond, err := decodeExpr(sj.Cond)
			if err != nil {
				return nil, err
			}
			then, err := decodeExpr(sj.Then)
			if err != nil {
				return nil, err
			}
			els, err := decodeExpr(sj.Else)
			if err != nil {
				return nil, err
			}
			return &ir.Select{Cond: cond, Then: then, Else: els}, nil
		case "instout":
			var oj struct {
				Instance string `json:"instance"`
				Port     string `json:"port"`
			}
			if err := json.Unmarshal(body, &oj); err != nil {
				return nil, errors.Wrap(err, "instout")
			}
			return &ir.InstanceOutput{Instance: oj.Instance, Port: oj.Port}, nil
		default:
			return nil, errors.Errorf("unknown expression tag %q", tag)
		}
	}
	return nil, errors.New("empty expression")
}

type litJSON struct {
	Width int             `json:"width"`
	Value json.RawMessage `json:"value"`
}

func (lj litJSON) bitVector() (ir.BitVector, error) {
	s := strings.TrimSpace(string(lj.Value))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(lj.Value, &str); err != nil {
			return ir.BitVector{}, errors.Wrap(err, "lit value")
		}
		return ir.ParseBitVector(lj.Width, str)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return ir.BitVector{}, errors.Wrapf(err, "lit value %s", s)
	}
	return ir.NewBitVector(lj.Width, v), nil
}

func decodeUnaryOp(s string) (ir.UnaryOp, error) {
	switch s {
	case "not":
		return ir.OpNot, nil
	case "neg":
		return ir.OpNeg, nil
	}
	return 0, errors.Errorf("unknown unary op %q", s)
}

func decodeBinaryOp(s string) (ir.BinaryOp, error) {
	switch s {
	case "and":
		return ir.OpAnd, nil
	case "or":
		return ir.OpOr, nil
	case "xor":
		return ir.OpXor, nil
	case "add":
		return ir.OpAdd, nil
	case "sub":
		return ir.OpSub, nil
	case "mul":
		return ir.OpMul, nil
	case "shl":
		return ir.OpShl, nil
	case "shr":
		return ir.OpShr, nil
	case "eq":
		return ir.OpEq, nil
	case "ne":
		return ir.OpNe, nil
	case "lt":
		return ir.OpLt, nil
	case "le":
		return ir.OpLe, nil
	}
	return 0, errors.Errorf("unknown binary op %q", s)
}

// Statements are tagged the same way: {"assign": ...}, {"if": ...},
// {"case": ...}, {"loop": ...}.
func decodeStmts(raws []json.RawMessage) ([]ir.Stmt, error) {
	var out []ir.Stmt
	for i, raw := range raws {
		s, err := decodeStmt(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "statement %d", i)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeStmt(raw json.RawMessage) (ir.Stmt, error) {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, errors.Wrap(err, "decode statement")
	}
	if len(node) != 1 {
		return nil, errors.Errorf("statement must have exactly one tag, got %d", len(node))
	}
	for tag, body := range node {
		switch tag {
		case "assign":
			var aj struct {
				Target string          `json:"target"`
				Source json.RawMessage `json:"source"`
				Kind   string          `json:"kind,omitempty"`
			}
			if err := json.Unmarshal(body, &aj); err != nil {
				return nil, errors.Wrap(err, "assign")
			}
			kind := ir.Blocking
			switch aj.Kind {
			case "", "blocking":
			case "nonblocking":
				kind = ir.NonBlocking
			default:
				return nil, errors.Errorf("unknown assign kind %q", aj.Kind)
			}
			src, err := decodeExpr(aj.Source)
			if err != nil {
				return nil, err
			}
			return &ir.Assign{Target: aj.Target, Source: src, Kind: kind}, nil
		case "if":
			var ij struct {
				Cond json.RawMessage   `json:"cond"`
				Then []json.RawMessage `json:"then"`
				Else []json.RawMessage `json:"else,omitempty"`
			}
			if err := json.Unmarshal(body, &ij); err != nil {
				return nil, errors.Wrap(err, "if")
			}
			cond, err := decodeExpr(ij.Cond)
			if err != nil {
				return nil, err
			}
			then, err := decodeStmts(ij.Then)
			if err != nil {
				return nil, err
			}
			els, err := decodeStmts(ij.Else)
			if err != nil {
				return nil, err
			}
			return &ir.If{Cond: cond, Then: then, Else: els}, nil
		case "case":
			var cj struct {
				Selector json.RawMessage `json:"selector"`
				Arms     []struct {
					Pattern litJSON           `json:"pattern"`
					Mask    *litJSON          `json:"mask,omitempty"`
					Body    []json.RawMessage `json:"body"`
				} `json:"arms"`
				Default []json.RawMessage `json:"default,omitempty"`
			}
			if err := json.Unmarshal(body, &cj); err != nil {
				return nil, errors.Wrap(err, "case")
			}
			sel, err := decodeExpr(cj.Selector)
			if err != nil {
				return nil, err
			}
			c := &ir.Case{Selector: sel}
			for i, arm := range cj.Arms {
				pattern, err := arm.Pattern.bitVector()
				if err != nil {
					return nil, errors.Wrapf(err, "arm %d pattern", i)
				}
				mask := ir.NewBitVector(pattern.Width(), 0).Not()
				if arm.Mask != nil {
					mask, err = arm.Mask.bitVector()
					if err != nil {
						return nil, errors.Wrapf(err, "arm %d mask", i)
					}
				}
				bodyStmts, err := decodeStmts(arm.Body)
				if err != nil {
					return nil, errors.Wrapf(err, "arm %d", i)
				}
				c.Arms = append(c.Arms, ir.CaseArm{Pattern: pattern, Mask: mask, Body: bodyStmts})
			}
			if cj.Default != nil {
				def, err := decodeStmts(cj.Default)
				if err != nil {
					return nil, errors.Wrap(err, "default")
				}
				if def == nil {
					def = []ir.Stmt{}
				}
				c.Default = def
			}
			return c, nil
		case "loop":
			var lj struct {
				Count int               `json:"count"`
				Body  []json.RawMessage `json:"body"`
			}
			if err := json.Unmarshal(body, &lj); err != nil {
				return nil, errors.Wrap(err, "loop")
			}
			bodyStmts, err := decodeStmts(lj.Body)
			if err != nil {
				return nil, err
			}
			return &ir.Loop{Count: lj.Count, Body: bodyStmts}, nil
		default:
			return nil, errors.Errorf("unknown statement tag %q", tag)
		}
	}
	return nil, errors.New("empty statement")
}
