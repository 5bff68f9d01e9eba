package ir

// Operation is a graph node: a computational operator with typed attributes
// and ordered data edges.
//
// Inputs is ordered and may reference the same Variable more than once;
// position is meaningful. Parameters is the subset of Inputs holding
// compile-time constants (weights, biases). The Graph owns all operations;
// an Operation only holds non-owning references to its variables.
type Operation struct {
	Name string
	Type OpType

	// Platform is assigned by the external scheduler before any
	// device-switching pass runs.
	Platform Platform

	Attributes Attributes

	Inputs     []*Variable
	Outputs    []*Variable
	Parameters []*Variable
}

// NewOperation creates a detached operation. Wire it with AppendOperation and
// by linking variables explicitly.
func NewOperation(name string, opType OpType, attrs Attributes) *Operation {
	if attrs == nil {
		attrs = Attributes{}
	}
	return &Operation{Name: name, Type: opType, Attributes: attrs}
}

// ReplaceInput repoints the first input slot referencing old to new, fixing
// the matching Parameters entry if old was marked as a parameter.
// It reports whether a slot was found.
func (op *Operation) ReplaceInput(old, new *Variable) bool {
	idx := indexOfVar(op.Inputs, old)
	if idx < 0 {
		return false
	}
	op.Inputs[idx] = new
	if pIdx := indexOfVar(op.Parameters, old); pIdx >= 0 {
		op.Parameters[pIdx] = new
	}
	return true
}

// ReplaceOutput repoints the output slot referencing old to new.
// It reports whether a slot was found.
func (op *Operation) ReplaceOutput(old, new *Variable) bool {
	idx := indexOfVar(op.Outputs, old)
	if idx < 0 {
		return false
	}
	op.Outputs[idx] = new
	return true
}

// RemoveOutput drops v from the output list, reporting whether it was found.
func (op *Operation) RemoveOutput(v *Variable) bool {
	idx := indexOfVar(op.Outputs, v)
	if idx < 0 {
		return false
	}
	op.Outputs = append(op.Outputs[:idx], op.Outputs[idx+1:]...)
	return true
}

func indexOfVar(vars []*Variable, v *Variable) int {
	for idx, candidate := range vars {
		if candidate == v {
			return idx
		}
	}
	return -1
}

func countVar(vars []*Variable, v *Variable) int {
	count := 0
	for _, candidate := range vars {
		if candidate == v {
			count++
		}
	}
	return count
}
