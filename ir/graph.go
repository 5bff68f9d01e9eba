// Package ir defines the intermediate representation mutated by the rewrite
// passes: a Graph of Operations connected by named Variables.
//
//   - Graph: registries of operations and variables by name, the graph-level
//     input/output tables, and the structural mutation primitives.
//   - Operation: a node with ordered inputs/outputs, attributes, a parameter
//     prefix and an execution-domain tag.
//   - Variable: a data edge with at most one producer and a multiset of
//     consumers.
//
// The Graph exclusively owns every Operation and Variable; nodes and edges
// hold only non-owning references to each other, and every primitive here
// maintains the bidirectional edge bookkeeping explicitly.
package ir

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Graph is the IR container.
//
// A Graph must not be mutated by more than one command concurrently; callers
// serialize access externally. Independent graphs share no state.
type Graph struct {
	Name string

	Operations map[string]*Operation
	Variables  map[string]*Variable

	// Inputs and Outputs are the graph-level boundary tables. Every entry
	// must resolve to a live registry variable.
	Inputs  map[string]*Variable
	Outputs map[string]*Variable

	boundariesInserted bool
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		Name:       name,
		Operations: make(map[string]*Operation),
		Variables:  make(map[string]*Variable),
		Inputs:     make(map[string]*Variable),
		Outputs:    make(map[string]*Variable),
	}
}

// AppendOperation registers op. The name must be unique within the graph.
func (g *Graph) AppendOperation(op *Operation) error {
	if op == nil || op.Name == "" {
		return errors.New("cannot append a nil or unnamed operation")
	}
	if _, found := g.Operations[op.Name]; found {
		return errors.Errorf("operation %q already exists in graph %q", op.Name, g.Name)
	}
	g.Operations[op.Name] = op
	return nil
}

// AppendVariable registers v. The name must be unique within the graph.
func (g *Graph) AppendVariable(v *Variable) error {
	if v == nil || v.Name == "" {
		return errors.New("cannot append a nil or unnamed variable")
	}
	if _, found := g.Variables[v.Name]; found {
		return errors.Errorf("variable %q already exists in graph %q", v.Name, g.Name)
	}
	g.Variables[v.Name] = v
	return nil
}

// OperationByName resolves name, failing with ErrNotFound.
func (g *Graph) OperationByName(name string) (*Operation, error) {
	op, found := g.Operations[name]
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "operation %q", name)
	}
	return op, nil
}

// VariableByName resolves name, failing with ErrNotFound.
func (g *Graph) VariableByName(name string) (*Variable, error) {
	v, found := g.Variables[name]
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "variable %q", name)
	}
	return v, nil
}

// DownstreamOperations returns the operations consuming any output of op,
// deduplicated, in first-seen order.
func (g *Graph) DownstreamOperations(op *Operation) []*Operation {
	var downstream []*Operation
	seen := make(map[*Operation]bool)
	for _, v := range op.Outputs {
		for _, dest := range v.Dests {
			if !seen[dest] {
				seen[dest] = true
				downstream = append(downstream, dest)
			}
		}
	}
	return downstream
}

// DeleteOperation unregisters the named operation and unlinks it from its
// input variables. Unless force is set, it fails while any output variable
// still has consumers. Output variables that survive in the registry lose
// their producer reference.
func (g *Graph) DeleteOperation(name string, force bool) error {
	op, found := g.Operations[name]
	if !found {
		return errors.Wrapf(ErrNotFound, "operation %q", name)
	}
	if !force {
		for _, out := range op.Outputs {
			if len(out.Dests) > 0 {
				return errors.Errorf("cannot delete operation %q: output %q still has %d consumers",
					name, out.Name, len(out.Dests))
			}
		}
	}
	for _, in := range op.Inputs {
		in.RemoveDest(op)
	}
	op.Inputs = nil
	op.Parameters = nil
	for _, out := range op.Outputs {
		if out.Source == op {
			out.Source = nil
		}
	}
	op.Outputs = nil
	delete(g.Operations, name)
	return nil
}

// DeleteVariable unregisters the named variable and unlinks it from its
// producer. Unless force is set, it fails while consumers remain; with force,
// remaining consumer input slots are unlinked as well.
func (g *Graph) DeleteVariable(name string, force bool) error {
	v, found := g.Variables[name]
	if !found {
		return errors.Wrapf(ErrNotFound, "variable %q", name)
	}
	if !force && len(v.Dests) > 0 {
		return errors.Errorf("cannot delete variable %q: %d consumers remain", name, len(v.Dests))
	}
	if v.Source != nil {
		v.Source.RemoveOutput(v)
		v.Source = nil
	}
	for _, dest := range v.Dests {
		if idx := indexOfVar(dest.Inputs, v); idx >= 0 {
			dest.Inputs = append(dest.Inputs[:idx], dest.Inputs[idx+1:]...)
		}
		if pIdx := indexOfVar(dest.Parameters, v); pIdx >= 0 {
			dest.Parameters = append(dest.Parameters[:pIdx], dest.Parameters[pIdx+1:]...)
		}
	}
	v.Dests = nil
	delete(g.Variables, name)
	delete(g.Inputs, name)
	delete(g.Outputs, name)
	return nil
}

// InsertOperationOnVar splices op onto the named variable, before its
// fan-out: the variable becomes op's single input, and a fresh variable
// carrying all former consumers becomes op's single output. If the variable
// was a graph output, the fresh variable takes its place in the table.
func (g *Graph) InsertOperationOnVar(op *Operation, varName string) error {
	v, found := g.Variables[varName]
	if !found {
		return errors.Wrapf(ErrNotFound, "variable %q", varName)
	}
	if len(op.Inputs) != 0 || len(op.Outputs) != 0 {
		exceptions.Panicf("ir: inserting operation %q that already has edges", op.Name)
	}
	if err := g.AppendOperation(op); err != nil {
		return err
	}
	out := NewVariable(op.Name+"_out", nil, false)
	if err := g.AppendVariable(out); err != nil {
		delete(g.Operations, op.Name)
		return err
	}
	out.Source = op
	out.Dests = v.Dests
	for _, dest := range out.Dests {
		dest.ReplaceInput(v, out)
	}
	v.Dests = []*Operation{op}
	op.Inputs = []*Variable{v}
	op.Outputs = []*Variable{out}
	if _, isOutput := g.Outputs[varName]; isOutput {
		delete(g.Outputs, varName)
		g.Outputs[out.Name] = out
	}
	return nil
}

// InsertOperationBetween splices op into the single edge connecting up to
// down: the linking variable feeds op, and a fresh variable produced by op
// replaces it in down's matching input slot. It is a contract violation for
// up and down to be connected by more than one link.
func (g *Graph) InsertOperationBetween(op, up, down *Operation) error {
	var link *Variable
	links := 0
	for _, v := range up.Outputs {
		n := countOp(v.Dests, down)
		links += n
		if link == nil && n > 0 {
			link = v
		}
	}
	if link == nil {
		return errors.Errorf("operations %q and %q are not connected", up.Name, down.Name)
	}
	if links != 1 {
		exceptions.Panicf("ir: operations %q and %q are connected by %d links, cannot insert %q between them",
			up.Name, down.Name, links, op.Name)
	}
	if len(op.Inputs) != 0 || len(op.Outputs) != 0 {
		exceptions.Panicf("ir: inserting operation %q that already has edges", op.Name)
	}
	if err := g.AppendOperation(op); err != nil {
		return err
	}
	out := NewVariable(op.Name+"_out", nil, false, down)
	if err := g.AppendVariable(out); err != nil {
		delete(g.Operations, op.Name)
		return err
	}
	out.Source = op
	link.ReplaceDest(down, op)
	down.ReplaceInput(link, out)
	op.Inputs = []*Variable{link}
	op.Outputs = []*Variable{out}
	return nil
}

// RemoveOperation splices a single-input single-output operation out of the
// graph: its input variable takes over the consumers of its output variable
// at the same fan-out position, and the output variable is destroyed. This is
// the exact inverse of InsertOperationOnVar / InsertOperationBetween when no
// other mutation happened in between.
func (g *Graph) RemoveOperation(name string) error {
	op, found := g.Operations[name]
	if !found {
		return errors.Wrapf(ErrNotFound, "operation %q", name)
	}
	if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
		exceptions.Panicf("ir: RemoveOperation requires exactly 1 input and 1 output, operation %q has %d inputs and %d outputs",
			name, len(op.Inputs), len(op.Outputs))
	}
	in, out := op.Inputs[0], op.Outputs[0]
	idx := indexOfOp(in.Dests, op)
	if idx < 0 {
		exceptions.Panicf("ir: operation %q is not a consumer of its own input %q", name, in.Name)
	}
	in.Dests = slices.Delete(in.Dests, idx, idx+1)
	in.Dests = slices.Insert(in.Dests, idx, out.Dests...)
	for _, dest := range out.Dests {
		dest.ReplaceInput(out, in)
	}
	if _, isOutput := g.Outputs[out.Name]; isOutput {
		delete(g.Outputs, out.Name)
		g.Outputs[in.Name] = in
	}
	out.Dests = nil
	out.Source = nil
	delete(g.Variables, out.Name)
	op.Inputs = nil
	op.Outputs = nil
	delete(g.Operations, name)
	return nil
}

// BoundariesInserted reports whether device-boundary operations are currently
// inserted (the device switcher's insertion pass is not reentrant).
func (g *Graph) BoundariesInserted() bool { return g.boundariesInserted }

// SetBoundariesInserted records the boundary-insertion state.
func (g *Graph) SetBoundariesInserted(inserted bool) { g.boundariesInserted = inserted }
