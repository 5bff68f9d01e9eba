package morph

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomorph/gomorph/internal/tensorutil"
	"github.com/gomorph/gomorph/ir"
)

// Default Clip bounds planted when a single-input Clip carries no min/max
// attributes, guaranteeing both are set after canonicalization.
const (
	clipDefaultMin = float64(-(2 << 30))
	clipDefaultMax = float64(2 << 30)
)

// Formatter implements the canonicalization passes: each pass scans the
// graph once for operations of one type and rewrites every match into the
// single internal convention. All passes are idempotent once run to
// completion.
type Formatter struct {
	g *ir.Graph
}

// NewFormatter creates a Formatter operating on g.
func NewFormatter(g *ir.Graph) *Formatter {
	return &Formatter{g: g}
}

// AcceptedCommands implements Processor.
func (f *Formatter) AcceptedCommands() []CommandType {
	return []CommandType{
		CommandFormatClip,
		CommandFormatPad,
		CommandFormatGather,
		CommandFormatCast,
		CommandFormatInt64Constant,
		CommandFormatConstantInput,
		CommandDeleteIsolated,
		CommandFormatParameters,
		CommandReplaceSub,
	}
}

// Process implements Processor.
func (f *Formatter) Process(cmd Command) error {
	switch cmd.Type() {
	case CommandFormatClip:
		return f.FormatClip()
	case CommandFormatPad:
		return f.FormatPad()
	case CommandFormatGather:
		return f.FormatGather()
	case CommandFormatCast:
		return f.FormatCast()
	case CommandFormatInt64Constant:
		return f.FormatInt64Constant()
	case CommandFormatConstantInput:
		return f.FormatConstantInput()
	case CommandDeleteIsolated:
		return f.DeleteIsolated()
	case CommandFormatParameters:
		return f.FormatParameterVariables()
	case CommandReplaceSub:
		return f.ReplaceSubtraction()
	}
	return errors.Wrapf(ErrUnsupportedCommand, "Formatter cannot process %s", cmd.Type())
}

// operationsOfType collects operations of the given type in name order, so
// passes rewrite deterministically and can mutate the registry while
// iterating.
func (f *Formatter) operationsOfType(opType ir.OpType) []*ir.Operation {
	var ops []*ir.Operation
	for _, name := range slices.Sorted(maps.Keys(f.g.Operations)) {
		if op := f.g.Operations[name]; op.Type == opType {
			ops = append(ops, op)
		}
	}
	return ops
}

// FormatPad unifies the Pad encodings: the paddings (and, in constant mode,
// the padding value) end up in attributes, their constant-producing inputs
// consumed and deleted. Models encode Pad either with the paddings in an
// attribute already, or as extra constant inputs.
func (f *Formatter) FormatPad() error {
	for _, op := range f.operationsOfType(ir.OpPad) {
		mode := op.Attributes.StrOr(ir.AttrMode, "constant")
		padsValue := op.Attributes.FloatOr(ir.AttrPadsValue, 0)
		hasValueInput := mode == "constant" && len(op.Inputs) == 3
		hasPadsInput := len(op.Inputs) > 1

		// Read and validate every folded input before mutating anything, so
		// an error leaves the operator untouched.
		if hasValueInput {
			valueT, err := f.constantInputTensor(op, 2)
			if err != nil {
				return errors.WithMessagef(err, "FormatPad: operation %q", op.Name)
			}
			if padsValue, err = tensorutil.Scalar(valueT); err != nil {
				return errors.WithMessagef(err, "FormatPad: padding value of %q", op.Name)
			}
		}
		var pads []int
		if hasPadsInput {
			padsT, err := f.constantInputTensor(op, 1)
			if err != nil {
				return errors.WithMessagef(err, "FormatPad: operation %q", op.Name)
			}
			if pads, err = tensorutil.Ints(padsT); err != nil {
				return errors.WithMessagef(err, "FormatPad: paddings of %q", op.Name)
			}
		}

		// Delete the higher slot first so the lower index stays valid.
		if hasValueInput {
			if err := f.deleteConstantInput(op, 2); err != nil {
				return err
			}
		}
		if hasPadsInput {
			if err := f.deleteConstantInput(op, 1); err != nil {
				return err
			}
			op.Attributes[ir.AttrPads] = pads
		}
		if mode == "constant" {
			op.Attributes[ir.AttrPadsValue] = padsValue
		}
	}
	return nil
}

// FormatClip unifies the Clip encodings: min and max always end up in
// attributes. A 3-input Clip has them folded from its constant producers; a
// 1-input Clip falls back to (-(2<<30), 2<<30) when the attributes are
// absent. Any other input count fails with ErrInvalidOperand.
func (f *Formatter) FormatClip() error {
	for _, op := range f.operationsOfType(ir.OpClip) {
		var minValue, maxValue float64
		switch len(op.Inputs) {
		case 3:
			minT, err := f.constantInputTensor(op, 1)
			if err != nil {
				return errors.WithMessagef(err, "FormatClip: operation %q", op.Name)
			}
			maxT, err := f.constantInputTensor(op, 2)
			if err != nil {
				return errors.WithMessagef(err, "FormatClip: operation %q", op.Name)
			}
			if minValue, err = tensorutil.Scalar(minT); err != nil {
				return errors.WithMessagef(err, "FormatClip: min of %q", op.Name)
			}
			if maxValue, err = tensorutil.Scalar(maxT); err != nil {
				return errors.WithMessagef(err, "FormatClip: max of %q", op.Name)
			}
			// Delete the higher slot first so the lower index stays valid.
			if err = f.deleteConstantInput(op, 2); err != nil {
				return err
			}
			if err = f.deleteConstantInput(op, 1); err != nil {
				return err
			}
		case 1:
			minValue = op.Attributes.FloatOr(ir.AttrMin, clipDefaultMin)
			maxValue = op.Attributes.FloatOr(ir.AttrMax, clipDefaultMax)
		default:
			return errors.Wrapf(ir.ErrInvalidOperand,
				"FormatClip: expected Clip %q to have 1 or 3 inputs, got %d", op.Name, len(op.Inputs))
		}
		op.Attributes[ir.AttrMin] = minValue
		op.Attributes[ir.AttrMax] = maxValue
	}
	return nil
}

// FormatGather moves a compile-time-constant gather index from the second
// input into the gather_index attribute (the index must not be quantized,
// and backends want it as a native value). A runtime-computed index is left
// as an input. The axis attribute defaults to 0 and the legacy "indices"
// attribute is renamed.
func (f *Formatter) FormatGather() error {
	for _, op := range f.operationsOfType(ir.OpGather) {
		if len(op.Inputs) == 2 {
			src := op.Inputs[1].Source
			if src != nil && src.Type == ir.OpConstant {
				indexT := src.Attributes.Tensor(ir.AttrValue)
				if indexT == nil {
					return errors.Wrapf(ir.ErrInvalidOperand,
						"FormatGather: Constant %q feeding %q has no tensor value", src.Name, op.Name)
				}
				index, err := tensorutil.Primary(indexT)
				if err != nil {
					return errors.WithMessagef(err, "FormatGather: index of %q", op.Name)
				}
				if err := f.deleteConstantInput(op, 1); err != nil {
					return err
				}
				op.Attributes[ir.AttrGatherIndex] = index
			}
		}
		if !op.Attributes.Has(ir.AttrAxis) {
			op.Attributes[ir.AttrAxis] = 0
		}
		if legacy, found := op.Attributes[ir.AttrIndices]; found {
			op.Attributes[ir.AttrGatherIndex] = legacy
			delete(op.Attributes, ir.AttrIndices)
		}
	}
	return nil
}

// FormatCast converts the numeric type code carried in the "to" attribute to
// the canonical dtype enumeration. A Cast without the attribute fails with
// ErrInvalidOperand.
func (f *Formatter) FormatCast() error {
	for _, op := range f.operationsOfType(ir.OpCast) {
		raw, found := op.Attributes[ir.AttrTo]
		if !found {
			return errors.Wrapf(ir.ErrInvalidOperand, "FormatCast: Cast %q has no %q attribute", op.Name, ir.AttrTo)
		}
		var code int
		switch v := raw.(type) {
		case dtypes.DType:
			continue // already canonical
		case int:
			code = v
		case int64:
			code = int(v)
		case int32:
			code = int(v)
		default:
			return errors.Wrapf(ir.ErrInvalidOperand,
				"FormatCast: Cast %q carries %q of unexpected type %T", op.Name, ir.AttrTo, raw)
		}
		dtype, err := tensorutil.DTypeForCode(code)
		if err != nil {
			return errors.WithMessagef(err, "FormatCast: operation %q", op.Name)
		}
		op.Attributes[ir.AttrTo] = dtype
	}
	return nil
}

// FormatInt64Constant narrows 64-bit integer constants to 32 bits when every
// element fits the signed 32-bit range, writing the narrowed tensor back to
// the stored value.
func (f *Formatter) FormatInt64Constant() error {
	narrowed := 0
	for _, op := range f.operationsOfType(ir.OpConstant) {
		value := op.Attributes.Tensor(ir.AttrValue)
		if value == nil {
			exceptions.Panicf("morph: Constant operation %q has no tensor value", op.Name)
		}
		if value.Shape().DType != dtypes.Int64 {
			continue
		}
		var data []int64
		tensors.ConstFlatData(value, func(flat []int64) { data = slices.Clone(flat) })
		fits := true
		for _, v := range data {
			if v > math.MaxInt32 || v < math.MinInt32 {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}
		values32 := make([]int32, len(data))
		for idx, v := range data {
			values32[idx] = int32(v)
		}
		op.Attributes[ir.AttrValue] = tensors.FromFlatDataAndDimensions(values32, value.Shape().Dimensions...)
		narrowed++
	}
	if narrowed > 0 {
		klog.V(2).Infof("FormatInt64Constant: narrowed %d constants to int32 in graph %q", narrowed, f.g.Name)
	}
	return nil
}

// FormatConstantInput eliminates constant-defining operations for backends
// that do not support them: each Constant's stored value moves onto its
// output variable, which becomes a parameter, and the operation is deleted.
func (f *Formatter) FormatConstantInput() error {
	for _, op := range f.operationsOfType(ir.OpConstant) {
		if len(op.Outputs) != 1 {
			exceptions.Panicf("morph: Constant operation %q has %d outputs, is there a network parsing error?",
				op.Name, len(op.Outputs))
		}
		value := op.Attributes.Tensor(ir.AttrValue)
		if value == nil {
			exceptions.Panicf("morph: Constant operation %q has no tensor value", op.Name)
		}
		out := op.Outputs[0]
		out.Value = value
		out.IsParameter = true
		op.Outputs = nil
		out.Source = nil
		if err := f.g.DeleteOperation(op.Name, false); err != nil {
			return err
		}
	}
	return nil
}

// DeleteIsolated deletes, to a fixed point, every operation with no
// downstream consumers whose outputs are not graph-level outputs, together
// with those output variables. Iteration is required because removing an
// operation may isolate its upstream producer.
func (f *Formatter) DeleteIsolated() error {
	for {
		var blacklist []*ir.Operation
		for _, name := range slices.Sorted(maps.Keys(f.g.Operations)) {
			op := f.g.Operations[name]
			if len(f.g.DownstreamOperations(op)) > 0 {
				continue
			}
			visible := false
			for _, out := range op.Outputs {
				if _, found := f.g.Outputs[out.Name]; found {
					visible = true
					break
				}
			}
			if !visible {
				blacklist = append(blacklist, op)
			}
		}
		if len(blacklist) == 0 {
			return nil
		}
		for _, op := range blacklist {
			for _, out := range slices.Clone(op.Outputs) {
				if err := f.g.DeleteVariable(out.Name, true); err != nil {
					return err
				}
			}
			if err := f.g.DeleteOperation(op.Name, true); err != nil {
				return err
			}
		}
		klog.V(2).Infof("DeleteIsolated: removed %d isolated operations from graph %q", len(blacklist), f.g.Name)
	}
}

// FormatParameterVariables splits every parameter variable shared by N>1
// consumers into N private copies, one per consumer, each carrying a copy of
// the stored value. Copy names derive from the original name and the
// consumer index.
func (f *Formatter) FormatParameterVariables() error {
	var shared []*ir.Variable
	for _, name := range slices.Sorted(maps.Keys(f.g.Variables)) {
		if v := f.g.Variables[name]; v.IsParameter && len(v.Dests) > 1 {
			shared = append(shared, v)
		}
	}
	for _, v := range shared {
		for idx, dest := range slices.Clone(v.Dests) {
			sub := ir.NewVariable(fmt.Sprintf("%s_%d", v.Name, idx), tensorutil.Clone(v.Value), true, dest)
			if err := f.g.AppendVariable(sub); err != nil {
				return err
			}
			dest.ReplaceInput(v, sub)
			v.RemoveDest(dest)
		}
		if err := f.g.DeleteVariable(v.Name, false); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceSubtraction rewrites every Sub into an Add consuming a negated
// second operand: a new Neg operation takes the original second operand, and
// its output feeds the retagged Add in the operand's former slot. Attributes
// are left untouched.
func (f *Formatter) ReplaceSubtraction() error {
	for _, op := range f.operationsOfType(ir.OpSub) {
		if len(op.Inputs) < 2 {
			return errors.Wrapf(ir.ErrInvalidOperand,
				"ReplaceSubtraction: Sub %q has %d inputs, expected 2", op.Name, len(op.Inputs))
		}
		slot := len(op.Inputs) - 1
		operand := op.Inputs[slot]

		negOp := ir.NewOperation(op.Name+"_neg", ir.OpNeg, nil)
		negOp.Platform = op.Platform
		if err := f.g.AppendOperation(negOp); err != nil {
			return err
		}
		negVar := ir.NewVariable(negOp.Name+"_out", nil, false, op)
		negVar.Source = negOp
		if err := f.g.AppendVariable(negVar); err != nil {
			return err
		}

		negOp.Inputs = append(negOp.Inputs, operand)
		negOp.Outputs = append(negOp.Outputs, negVar)
		operand.ReplaceDest(op, negOp)
		op.Inputs[slot] = negVar

		op.Type = ir.OpAdd
	}
	return nil
}

// constantInputTensor returns the stored value of the Constant producing
// input slot idx of op, failing with ErrInvalidOperand when the producer is
// not a constant-defining operation.
func (f *Formatter) constantInputTensor(op *ir.Operation, idx int) (*tensors.Tensor, error) {
	src := op.Inputs[idx].Source
	if src == nil || src.Type != ir.OpConstant {
		return nil, errors.Wrapf(ir.ErrInvalidOperand,
			"input %d of operation %q is not produced by a Constant", idx, op.Name)
	}
	value := src.Attributes.Tensor(ir.AttrValue)
	if value == nil {
		return nil, errors.Wrapf(ir.ErrInvalidOperand, "Constant %q has no tensor value", src.Name)
	}
	return value, nil
}

// deleteConstantInput removes input slot idx of op, requiring its producer
// to be a constant-defining operation. When the edge variable loses its last
// consumer, the variable and its producer cascade-delete.
func (f *Formatter) deleteConstantInput(op *ir.Operation, idx int) error {
	if _, found := f.g.Operations[op.Name]; !found {
		return errors.Wrapf(ir.ErrNotFound, "operation %q", op.Name)
	}
	if idx < 0 || idx >= len(op.Inputs) {
		exceptions.Panicf("morph: deleting out-of-range input %d of operation %q, has the graph been manually changed?",
			idx, op.Name)
	}
	in := op.Inputs[idx]
	src := in.Source
	if src == nil || src.Type != ir.OpConstant {
		return errors.Wrapf(ir.ErrInvalidOperand,
			"input %d of operation %q is not produced by a Constant", idx, op.Name)
	}
	in.RemoveDest(op)
	op.Inputs = slices.Delete(op.Inputs, idx, idx+1)
	if len(in.Dests) == 0 {
		if err := f.g.DeleteVariable(in.Name, false); err != nil {
			return err
		}
		if err := f.g.DeleteOperation(src.Name, false); err != nil {
			return err
		}
	}
	return nil
}
