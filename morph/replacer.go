package morph

import (
	"github.com/pkg/errors"

	"github.com/gomorph/gomorph/ir"
)

// Replacer implements atomic substitution of one operation or one variable
// by another, preserving all edges.
type Replacer struct {
	g *ir.Graph
}

// NewReplacer creates a Replacer operating on g.
func NewReplacer(g *ir.Graph) *Replacer {
	return &Replacer{g: g}
}

// AcceptedCommands implements Processor.
func (r *Replacer) AcceptedCommands() []CommandType {
	return []CommandType{CommandReplaceOp, CommandReplaceVar}
}

// Process implements Processor.
func (r *Replacer) Process(cmd Command) error {
	switch c := cmd.(type) {
	case ReplaceOperationCommand:
		return r.ReplaceOperation(c.OpName, c.ReplaceTo)
	case ReplaceVariableCommand:
		return r.ReplaceVariable(c.VarName, c.ReplaceTo)
	}
	if cmd.Type() == CommandReplaceOp || cmd.Type() == CommandReplaceVar {
		return errors.Errorf("command %s requires a Replace*Command payload, got %T", cmd.Type(), cmd)
	}
	return errors.Wrapf(ErrUnsupportedCommand, "Replacer cannot process %s", cmd.Type())
}

// ReplaceOperation substitutes the operation registered under name by
// replaceTo: the original's input, output and parameter lists move onto
// replaceTo, every touched variable is repointed, and the registry entry is
// swapped. The original is left detached but not destroyed.
//
// Replacements conventionally reuse the original's name so the registry key
// keeps matching the value.
func (r *Replacer) ReplaceOperation(name string, replaceTo *ir.Operation) error {
	op, found := r.g.Operations[name]
	if !found {
		return errors.Wrapf(ir.ErrNotFound, "operation %q", name)
	}
	if replaceTo == nil {
		return errors.Errorf("cannot replace operation %q with nil", name)
	}

	replaceTo.Inputs = append(replaceTo.Inputs[:0], op.Inputs...)
	for _, in := range op.Inputs {
		in.ReplaceDest(op, replaceTo)
	}
	replaceTo.Outputs = append(replaceTo.Outputs[:0], op.Outputs...)
	for _, out := range op.Outputs {
		out.Source = replaceTo
	}
	replaceTo.Parameters = append(replaceTo.Parameters[:0], op.Parameters...)

	r.g.Operations[name] = replaceTo
	return nil
}

// ReplaceVariable substitutes the variable registered under name by
// replaceTo: the consumer list moves over, each consumer's matching input
// slot is repointed, the producer (if any) repoints its output slot, and the
// graph input/output tables are updated under the same external name.
func (r *Replacer) ReplaceVariable(name string, replaceTo *ir.Variable) error {
	v, found := r.g.Variables[name]
	if !found {
		return errors.Wrapf(ir.ErrNotFound, "variable %q", name)
	}
	if replaceTo == nil {
		return errors.Errorf("cannot replace variable %q with nil", name)
	}

	replaceTo.Dests = append(replaceTo.Dests[:0], v.Dests...)
	for _, dest := range replaceTo.Dests {
		dest.ReplaceInput(v, replaceTo)
	}
	replaceTo.Source = v.Source
	if v.Source != nil {
		v.Source.ReplaceOutput(v, replaceTo)
	}

	r.g.Variables[name] = replaceTo
	if _, isInput := r.g.Inputs[name]; isInput {
		r.g.Inputs[name] = replaceTo
	}
	if _, isOutput := r.g.Outputs[name]; isOutput {
		r.g.Outputs[name] = replaceTo
	}
	return nil
}
