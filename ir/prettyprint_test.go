package ir

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func TestGraphString(t *testing.T) {
	g := New("demo")
	x := newVar(t, g, "x")
	g.Inputs["x"] = x
	w := NewVariable("w", nil, true)
	assert.NoError(t, g.AppendVariable(w))
	y := newVar(t, g, "y")
	z := newVar(t, g, "z")
	g.Outputs["z"] = z

	conv := newOp(t, g, "conv", OpConv, []*Variable{x, w}, []*Variable{y})
	conv.Attributes[AttrMode] = "constant"
	conv.Attributes[AttrPads] = []int{1, 1}
	conv.Platform = PlatformFP32
	conv.Parameters = []*Variable{w}
	newOp(t, g, "relu", OpRelu, []*Variable{y}, []*Variable{z})
	requireIntegrity(t, g)

	gold := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	gold.Assert(t, "graph_string", []byte(g.String()))
}

func TestGraphStringIsDeterministic(t *testing.T) {
	g := New("stable")
	for _, name := range []string{"b", "a", "c"} {
		newVar(t, g, name)
	}
	first := g.String()
	for range 10 {
		assert.Equal(t, first, g.String())
	}
}
