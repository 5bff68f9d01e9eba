package ir

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/types/tensors"
)

// String implements fmt.Stringer, pretty printing the whole graph in a
// deterministic order (names sorted lexicographically).
func (g *Graph) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Graph %q:\n", g.Name)
	w("\tInputs:\t[%s]\n", strings.Join(slices.Sorted(maps.Keys(g.Inputs)), ", "))
	w("\tOutputs:\t[%s]\n", strings.Join(slices.Sorted(maps.Keys(g.Outputs)), ", "))
	w("\t# operations:\t%d\n", len(g.Operations))
	for _, name := range slices.Sorted(maps.Keys(g.Operations)) {
		op := g.Operations[name]
		w("\t\t%s [%s@%s]: (%s) -> (%s)%s\n", op.Name, op.Type, op.Platform,
			joinVarNames(op.Inputs), joinVarNames(op.Outputs), attrsToString(op.Attributes))
	}
	w("\t# variables:\t%d\n", len(g.Variables))
	for _, name := range slices.Sorted(maps.Keys(g.Variables)) {
		v := g.Variables[name]
		source := "none"
		if v.Source != nil {
			source = v.Source.Name
		}
		var flags string
		if v.IsParameter {
			flags += " [parameter]"
		}
		if v.Value != nil {
			flags += fmt.Sprintf(" value=%s", valueToString(v.Value))
		}
		w("\t\t%s: %s -> [%s]%s\n", v.Name, source, joinOpNames(v.Dests), flags)
	}
	return buf.String()
}

func joinVarNames(vars []*Variable) string {
	names := make([]string, len(vars))
	for idx, v := range vars {
		names[idx] = v.Name
	}
	return strings.Join(names, ", ")
}

func joinOpNames(ops []*Operation) string {
	names := make([]string, len(ops))
	for idx, op := range ops {
		names[idx] = op.Name
	}
	return strings.Join(names, ", ")
}

func attrsToString(attrs Attributes) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, attrValueToString(attrs[key])))
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

func attrValueToString(value any) string {
	if t, ok := value.(*tensors.Tensor); ok {
		return valueToString(t)
	}
	return fmt.Sprintf("%v", value)
}

// valueToString prints a tensor as dtype and dimensions only: stored values
// can be large and their textual form is not stable across dtypes.
func valueToString(t *tensors.Tensor) string {
	return fmt.Sprintf("%s%v", t.Shape().DType, t.Shape().Dimensions)
}
