package ir

import (
	"github.com/gomlx/gomlx/types/tensors"
)

// Variable is a named data edge: at most one producer and any number of
// consumers.
//
// Dests is a multiset with one entry per consuming input slot: an operation
// that consumes the same variable twice appears twice. Source is nil for
// graph inputs and for parameter variables.
type Variable struct {
	Name   string
	Source *Operation
	Dests  []*Operation

	// IsParameter marks compile-time-constant values (e.g. weights), as
	// opposed to runtime-computed activations.
	IsParameter bool

	// Value holds the stored constant, present when IsParameter is set or
	// the variable is produced by a constant-defining operation.
	Value *tensors.Tensor
}

// NewVariable creates a detached variable consumed by dests. The caller is
// responsible for registering it with AppendVariable and for adding the
// matching input slots on the consumers.
func NewVariable(name string, value *tensors.Tensor, isParameter bool, dests ...*Operation) *Variable {
	return &Variable{Name: name, Value: value, IsParameter: isParameter, Dests: dests}
}

// RemoveDest drops the first consumer entry referencing op, reporting whether
// one was found.
func (v *Variable) RemoveDest(op *Operation) bool {
	idx := indexOfOp(v.Dests, op)
	if idx < 0 {
		return false
	}
	v.Dests = append(v.Dests[:idx], v.Dests[idx+1:]...)
	return true
}

// ReplaceDest repoints the first consumer entry referencing old to new,
// reporting whether one was found.
func (v *Variable) ReplaceDest(old, new *Operation) bool {
	idx := indexOfOp(v.Dests, old)
	if idx < 0 {
		return false
	}
	v.Dests[idx] = new
	return true
}

func indexOfOp(ops []*Operation, op *Operation) int {
	for idx, candidate := range ops {
		if candidate == op {
			return idx
		}
	}
	return -1
}

func countOp(ops []*Operation, op *Operation) int {
	count := 0
	for _, candidate := range ops {
		if candidate == op {
			count++
		}
	}
	return count
}
