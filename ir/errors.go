package ir

import "github.com/pkg/errors"

var (
	// ErrNotFound indicates a command referenced an operation or variable
	// name absent from the graph registries. It is always surfaced to the
	// caller, wrapped with context.
	ErrNotFound = errors.New("not found in graph")

	// ErrInvalidOperand indicates an operator with an unexpected structure:
	// wrong input count, a missing required attribute, or a non-constant
	// producer where a constant is required. A pass hitting it aborts rather
	// than silently skipping the operator.
	ErrInvalidOperand = errors.New("invalid operand")
)
