// Package morph implements the command-driven rewrite passes that normalize,
// fold, fuse and re-partition an ir.Graph prior to quantized-inference
// deployment.
//
// Four processors share one contract: each declares the command kinds it
// accepts and executes them directly against the shared graph.
//
//   - Replacer: atomic substitution of one operation or variable by another.
//   - Formatter: operator-format canonicalization, constant folding, dead
//     node pruning, parameter deduplication and the Sub-to-Add rewrite.
//   - Merger: operator fusion (Conv + BatchNormalization).
//   - DeviceSwitcher: insertion/removal of execution-domain boundaries.
//
// An external orchestrator issues commands through a Chain, typically in the
// order: format passes, then fusion, then device-boundary insertion.
package morph

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/gomorph/gomorph/ir"
)

// CommandType enumerates the command kinds understood by the processors.
type CommandType int

const (
	CommandInvalid CommandType = iota
	CommandReplaceOp
	CommandReplaceVar
	CommandFormatClip
	CommandFormatPad
	CommandFormatGather
	CommandFormatCast
	CommandFormatInt64Constant
	CommandFormatConstantInput
	CommandDeleteIsolated
	CommandFormatParameters
	CommandReplaceSub
	CommandFuseConvBN
	CommandInsertSwitcher
	CommandRemoveSwitcher
)

var commandTypeNames = [...]string{
	CommandInvalid:             "Invalid",
	CommandReplaceOp:           "ReplaceOp",
	CommandReplaceVar:          "ReplaceVar",
	CommandFormatClip:          "FormatClip",
	CommandFormatPad:           "FormatPad",
	CommandFormatGather:        "FormatGather",
	CommandFormatCast:          "FormatCast",
	CommandFormatInt64Constant: "FormatInt64Constant",
	CommandFormatConstantInput: "FormatConstantInput",
	CommandDeleteIsolated:      "DeleteIsolated",
	CommandFormatParameters:    "FormatParameters",
	CommandReplaceSub:          "ReplaceSub",
	CommandFuseConvBN:          "FuseConvBN",
	CommandInsertSwitcher:      "InsertSwitcher",
	CommandRemoveSwitcher:      "RemoveSwitcher",
}

// String implements fmt.Stringer.
func (t CommandType) String() string {
	if t < 0 || int(t) >= len(commandTypeNames) {
		return "Invalid"
	}
	return commandTypeNames[t]
}

// ErrUnsupportedCommand is returned when a processor receives a command kind
// outside its declared whitelist. Callers should check AcceptedCommands (or
// route through a Chain) before dispatching.
var ErrUnsupportedCommand = errors.New("unsupported command")

// Command is a typed request issued by the orchestrator against a processor.
type Command interface {
	Type() CommandType
}

// GraphCommand is a payload-free command, covering every kind except the
// replacements.
type GraphCommand struct {
	Kind CommandType
}

// Type implements Command.
func (c GraphCommand) Type() CommandType { return c.Kind }

// ReplaceOperationCommand substitutes the named operation by ReplaceTo,
// preserving all edges.
type ReplaceOperationCommand struct {
	OpName    string
	ReplaceTo *ir.Operation
}

// Type implements Command.
func (c ReplaceOperationCommand) Type() CommandType { return CommandReplaceOp }

// ReplaceVariableCommand substitutes the named variable by ReplaceTo,
// preserving all edges.
type ReplaceVariableCommand struct {
	VarName   string
	ReplaceTo *ir.Variable
}

// Type implements Command.
func (c ReplaceVariableCommand) Type() CommandType { return CommandReplaceVar }

// Processor executes commands against a shared graph. Implementations accept
// a fixed whitelist of command kinds and fail with ErrUnsupportedCommand on
// anything else.
type Processor interface {
	AcceptedCommands() []CommandType
	Process(cmd Command) error
}

func accepts(p Processor, kind CommandType) bool {
	return slices.Contains(p.AcceptedCommands(), kind)
}
