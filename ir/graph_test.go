package ir

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVar(t *testing.T, g *Graph, name string) *Variable {
	t.Helper()
	v := NewVariable(name, nil, false)
	must.M(g.AppendVariable(v))
	return v
}

func newOp(t *testing.T, g *Graph, name string, opType OpType, inputs, outputs []*Variable) *Operation {
	t.Helper()
	op := NewOperation(name, opType, nil)
	for _, in := range inputs {
		op.Inputs = append(op.Inputs, in)
		in.Dests = append(in.Dests, op)
	}
	for _, out := range outputs {
		op.Outputs = append(op.Outputs, out)
		out.Source = op
	}
	must.M(g.AppendOperation(op))
	return op
}

func requireIntegrity(t *testing.T, g *Graph) {
	t.Helper()
	require.NoError(t, g.CheckIntegrity())
}

func TestAppendRejectsDuplicates(t *testing.T) {
	g := New("dup")
	newVar(t, g, "v")
	require.Error(t, g.AppendVariable(NewVariable("v", nil, false)))
	newOp(t, g, "op", OpAdd, nil, nil)
	require.Error(t, g.AppendOperation(NewOperation("op", OpAdd, nil)))
}

func TestByNameNotFound(t *testing.T) {
	g := New("lookup")
	_, err := g.OperationByName("ghost")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = g.VariableByName("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOperationChecksConsumers(t *testing.T) {
	g := New("delete-op")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	mid := newVar(t, g, "mid")
	y := newVar(t, g, "y")
	g.Outputs["y"] = y
	producer := newOp(t, g, "producer", OpRelu, []*Variable{x}, []*Variable{mid})
	newOp(t, g, "consumer", OpRelu, []*Variable{mid}, []*Variable{y})

	require.Error(t, g.DeleteOperation("producer", false), "output still consumed")
	assert.Contains(t, g.Operations, "producer")

	require.NoError(t, g.DeleteOperation("producer", true))
	assert.NotContains(t, g.Operations, "producer")
	assert.Empty(t, x.Dests)
	assert.Nil(t, mid.Source)
	assert.Empty(t, producer.Inputs)
	assert.Empty(t, producer.Outputs)
	requireIntegrity(t, g)
}

func TestDeleteVariableUnlinksEdges(t *testing.T) {
	g := New("delete-var")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	mid := newVar(t, g, "mid")
	y := newVar(t, g, "y")
	g.Outputs["y"] = y
	producer := newOp(t, g, "producer", OpRelu, []*Variable{x}, []*Variable{mid})
	consumer := newOp(t, g, "consumer", OpRelu, []*Variable{mid}, []*Variable{y})

	require.Error(t, g.DeleteVariable("mid", false), "consumers remain")

	require.NoError(t, g.DeleteVariable("mid", true))
	assert.NotContains(t, g.Variables, "mid")
	assert.Empty(t, producer.Outputs)
	assert.Empty(t, consumer.Inputs)
	requireIntegrity(t, g)
}

func TestInsertOperationOnVar(t *testing.T) {
	g := New("insert-on-var")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	mid := newVar(t, g, "mid")
	y1 := newVar(t, g, "y1")
	y2 := newVar(t, g, "y2")
	g.Outputs["y1"], g.Outputs["y2"] = y1, y2
	newOp(t, g, "producer", OpRelu, []*Variable{x}, []*Variable{mid})
	a := newOp(t, g, "a", OpRelu, []*Variable{mid}, []*Variable{y1})
	b := newOp(t, g, "b", OpRelu, []*Variable{mid}, []*Variable{y2})

	inserted := NewOperation("cast", OpCast, nil)
	require.NoError(t, g.InsertOperationOnVar(inserted, "mid"))

	assert.Equal(t, []*Variable{mid}, inserted.Inputs)
	assert.Equal(t, []*Operation{inserted}, mid.Dests)
	out := g.Variables["cast_out"]
	require.NotNil(t, out)
	assert.Equal(t, []*Operation{a, b}, out.Dests)
	assert.Same(t, out, a.Inputs[0])
	assert.Same(t, out, b.Inputs[0])
	requireIntegrity(t, g)
}

func TestInsertOperationOnVarMovesOutputTable(t *testing.T) {
	g := New("insert-on-output")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	y := newVar(t, g, "y")
	g.Outputs["y"] = y
	newOp(t, g, "producer", OpRelu, []*Variable{x}, []*Variable{y})

	require.NoError(t, g.InsertOperationOnVar(NewOperation("cast", OpCast, nil), "y"))
	assert.NotContains(t, g.Outputs, "y")
	assert.Same(t, g.Variables["cast_out"], g.Outputs["cast_out"])
	requireIntegrity(t, g)
}

func TestInsertOperationBetween(t *testing.T) {
	g := New("insert-between")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	mid := newVar(t, g, "mid")
	y1 := newVar(t, g, "y1")
	y2 := newVar(t, g, "y2")
	g.Outputs["y1"], g.Outputs["y2"] = y1, y2
	up := newOp(t, g, "up", OpRelu, []*Variable{x}, []*Variable{mid})
	a := newOp(t, g, "a", OpRelu, []*Variable{mid}, []*Variable{y1})
	b := newOp(t, g, "b", OpRelu, []*Variable{mid}, []*Variable{y2})

	inserted := NewOperation("cast", OpCast, nil)
	require.NoError(t, g.InsertOperationBetween(inserted, up, b))

	// Only the up->b edge is rewired, a keeps consuming mid directly.
	assert.Same(t, mid, a.Inputs[0])
	out := g.Variables["cast_out"]
	require.NotNil(t, out)
	assert.Same(t, out, b.Inputs[0])
	assert.Equal(t, []*Operation{a, inserted}, mid.Dests)
	requireIntegrity(t, g)
}

func TestInsertOperationBetweenUnconnected(t *testing.T) {
	g := New("insert-unconnected")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	y := newVar(t, g, "y")
	g.Outputs["y"] = y
	up := newOp(t, g, "up", OpRelu, []*Variable{x}, nil)
	down := newOp(t, g, "down", OpRelu, nil, []*Variable{y})

	err := g.InsertOperationBetween(NewOperation("cast", OpCast, nil), up, down)
	require.Error(t, err)
}

func TestRemoveOperationIsExactInverse(t *testing.T) {
	g := New("remove")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	mid := newVar(t, g, "mid")
	y1 := newVar(t, g, "y1")
	y2 := newVar(t, g, "y2")
	g.Outputs["y1"], g.Outputs["y2"] = y1, y2
	newOp(t, g, "producer", OpRelu, []*Variable{x}, []*Variable{mid})
	newOp(t, g, "a", OpRelu, []*Variable{mid}, []*Variable{y1})
	newOp(t, g, "b", OpRelu, []*Variable{mid}, []*Variable{y2})

	before := g.String()
	require.NoError(t, g.InsertOperationOnVar(NewOperation("cast", OpCast, nil), "mid"))
	require.NoError(t, g.RemoveOperation("cast"))
	assert.Equal(t, before, g.String())
	requireIntegrity(t, g)
}

func TestRemoveOperationRestoresOutputTable(t *testing.T) {
	g := New("remove-output")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	y := newVar(t, g, "y")
	g.Outputs["y"] = y
	newOp(t, g, "producer", OpRelu, []*Variable{x}, []*Variable{y})

	require.NoError(t, g.InsertOperationOnVar(NewOperation("cast", OpCast, nil), "y"))
	require.NoError(t, g.RemoveOperation("cast"))
	assert.Same(t, y, g.Outputs["y"])
	assert.NotContains(t, g.Variables, "cast_out")
	requireIntegrity(t, g)
}

func TestDownstreamOperationsDeduplicates(t *testing.T) {
	g := New("downstream")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	mid := newVar(t, g, "mid")
	y := newVar(t, g, "y")
	g.Outputs["y"] = y
	producer := newOp(t, g, "producer", OpRelu, []*Variable{x}, []*Variable{mid})
	// consumer uses the same variable in two input slots
	consumer := newOp(t, g, "consumer", OpAdd, []*Variable{mid, mid}, []*Variable{y})

	downstream := g.DownstreamOperations(producer)
	assert.Equal(t, []*Operation{consumer}, downstream)
	requireIntegrity(t, g)
}

func TestCheckIntegrityDetectsBrokenEdge(t *testing.T) {
	g := New("broken")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	y := newVar(t, g, "y")
	g.Outputs["y"] = y
	op := newOp(t, g, "op", OpRelu, []*Variable{x}, []*Variable{y})
	requireIntegrity(t, g)

	// Duplicate the consumer entry without a matching input slot.
	x.Dests = append(x.Dests, op)
	require.Error(t, g.CheckIntegrity())
}
