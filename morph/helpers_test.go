package morph

import (
	"maps"
	"slices"
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/must"

	"github.com/gomorph/gomorph/ir"
)

// buildVar registers a fresh variable on g.
func buildVar(t *testing.T, g *ir.Graph, name string, value *tensors.Tensor, isParameter bool) *ir.Variable {
	t.Helper()
	v := ir.NewVariable(name, value, isParameter)
	must.M(g.AppendVariable(v))
	return v
}

// buildOp registers an operation wired to the given inputs and outputs.
// Inputs flagged as parameters join the operation's parameter list.
func buildOp(t *testing.T, g *ir.Graph, name string, opType ir.OpType, attrs ir.Attributes,
	inputs, outputs []*ir.Variable) *ir.Operation {
	t.Helper()
	op := ir.NewOperation(name, opType, attrs)
	for _, in := range inputs {
		op.Inputs = append(op.Inputs, in)
		in.Dests = append(in.Dests, op)
		if in.IsParameter {
			op.Parameters = append(op.Parameters, in)
		}
	}
	for _, out := range outputs {
		op.Outputs = append(op.Outputs, out)
		out.Source = op
	}
	must.M(g.AppendOperation(op))
	return op
}

// buildConstant registers a Constant operation producing a fresh variable,
// with the value stored in attributes the way the parser emits constants.
func buildConstant(t *testing.T, g *ir.Graph, name string, value *tensors.Tensor) (*ir.Operation, *ir.Variable) {
	t.Helper()
	out := buildVar(t, g, name+"_out", nil, false)
	op := buildOp(t, g, name, ir.OpConstant, ir.Attributes{ir.AttrValue: value}, nil, []*ir.Variable{out})
	return op, out
}

func sortedOpNames(g *ir.Graph) []string {
	return slices.Sorted(maps.Keys(g.Operations))
}

func checkIntegrity(t *testing.T, g *ir.Graph) {
	t.Helper()
	if err := g.CheckIntegrity(); err != nil {
		t.Fatalf("graph integrity violated: %+v", err)
	}
}
