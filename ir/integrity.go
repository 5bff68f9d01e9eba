package ir

import "github.com/pkg/errors"

// CheckIntegrity validates the structural invariants that must hold after
// every completed command:
//
//  1. edge duality with multiplicity: a variable appears N times among an
//     operation's inputs iff the operation has N entries among the variable's
//     consumers;
//  2. a variable's producer lists it exactly once among its outputs;
//  3. registry keys equal the names of their values;
//  4. every graph input/output table entry resolves to a live registry entry.
//
// It returns the first violation found, or nil.
func (g *Graph) CheckIntegrity() error {
	for name, op := range g.Operations {
		if op.Name != name {
			return errors.Errorf("operation registered under %q has name %q", name, op.Name)
		}
		seen := make(map[*Variable]bool)
		for _, in := range op.Inputs {
			if g.Variables[in.Name] != in {
				return errors.Errorf("input %q of operation %q is not registered in the graph", in.Name, name)
			}
			if seen[in] {
				continue
			}
			seen[in] = true
			slots := countVar(op.Inputs, in)
			entries := countOp(in.Dests, op)
			if slots != entries {
				return errors.Errorf("operation %q consumes %q in %d slots but the variable lists it %d times",
					name, in.Name, slots, entries)
			}
		}
		for _, out := range op.Outputs {
			if g.Variables[out.Name] != out {
				return errors.Errorf("output %q of operation %q is not registered in the graph", out.Name, name)
			}
			if out.Source != op {
				return errors.Errorf("output %q of operation %q does not point back to it as producer", out.Name, name)
			}
			if countVar(op.Outputs, out) != 1 {
				return errors.Errorf("variable %q appears more than once among outputs of %q", out.Name, name)
			}
		}
		for _, param := range op.Parameters {
			if indexOfVar(op.Inputs, param) < 0 {
				return errors.Errorf("parameter %q of operation %q is not one of its inputs", param.Name, name)
			}
		}
	}
	for name, v := range g.Variables {
		if v.Name != name {
			return errors.Errorf("variable registered under %q has name %q", name, v.Name)
		}
		if v.Source != nil {
			if g.Operations[v.Source.Name] != v.Source {
				return errors.Errorf("variable %q has unregistered producer %q", name, v.Source.Name)
			}
			if countVar(v.Source.Outputs, v) != 1 {
				return errors.Errorf("producer %q of variable %q does not list it exactly once", v.Source.Name, name)
			}
		}
		for _, dest := range v.Dests {
			if g.Operations[dest.Name] != dest {
				return errors.Errorf("variable %q has unregistered consumer %q", name, dest.Name)
			}
			if indexOfVar(dest.Inputs, v) < 0 {
				return errors.Errorf("consumer %q of variable %q does not list it as input", dest.Name, name)
			}
		}
	}
	for name, v := range g.Inputs {
		if g.Variables[name] != v {
			return errors.Errorf("graph input %q does not resolve to a registered variable", name)
		}
	}
	for name, v := range g.Outputs {
		if g.Variables[name] != v {
			return errors.Errorf("graph output %q does not resolve to a registered variable", name)
		}
	}
	return nil
}
