package morph

import (
	"maps"
	"slices"

	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomorph/gomorph/internal/tensorutil"
	"github.com/gomorph/gomorph/ir"
)

// Merger implements the graph-fusion passes: matched multi-operator
// subgraphs are replaced by a single algebraically equivalent operator.
type Merger struct {
	g *ir.Graph
}

// NewMerger creates a Merger operating on g.
func NewMerger(g *ir.Graph) *Merger {
	return &Merger{g: g}
}

// AcceptedCommands implements Processor.
func (m *Merger) AcceptedCommands() []CommandType {
	return []CommandType{CommandFuseConvBN}
}

// Process implements Processor.
func (m *Merger) Process(cmd Command) error {
	if cmd.Type() == CommandFuseConvBN {
		return m.FuseConvBN()
	}
	return errors.Wrapf(ErrUnsupportedCommand, "Merger cannot process %s", cmd.Type())
}

// FuseConvBN folds every BatchNormalization that is the sole downstream
// consumer of a Convolution into the convolution's parameters.
//
// With alpha, beta, mean, variance the four batch-norm parameters, eps its
// epsilon attribute, and W, b the convolution weight and bias:
//
//	scale      = alpha / sqrt(variance + eps)
//	new_weight = W * scale        (broadcast along the output-channel axis)
//	new_bias   = scale*(b - mean) + beta
//
// A convolution without a bias gets a zero vector sized to the
// output-channel count.
func (m *Merger) FuseConvBN() error {
	type convBNPair struct {
		conv, bn *ir.Operation
	}
	var pairs []convBNPair
	for _, name := range slices.Sorted(maps.Keys(m.g.Operations)) {
		op := m.g.Operations[name]
		if op.Type != ir.OpConv {
			continue
		}
		downstream := m.g.DownstreamOperations(op)
		if len(downstream) == 1 && downstream[0].Type == ir.OpBatchNormalization {
			pairs = append(pairs, convBNPair{conv: op, bn: downstream[0]})
		}
	}
	for _, pair := range pairs {
		if err := m.fuse(pair.conv, pair.bn); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger) fuse(conv, bn *ir.Operation) error {
	if len(conv.Inputs) == 0 || len(conv.Parameters) == 0 {
		return errors.Wrapf(ir.ErrInvalidOperand, "convolution %q has no parameters to fold", conv.Name)
	}
	weightT := conv.Parameters[0].Value
	weight, err := tensorutil.Float32s(weightT)
	if err != nil {
		return errors.WithMessagef(err, "FuseConvBN: weight of %q", conv.Name)
	}
	weightDims := weightT.Shape().Dimensions
	if len(weightDims) == 0 || weightDims[0] <= 0 {
		return errors.Wrapf(ir.ErrInvalidOperand, "convolution %q has a weight without output channels", conv.Name)
	}
	outChannels := weightDims[0]

	var bias []float32
	if len(conv.Parameters) >= 2 {
		bias, err = tensorutil.Float32s(conv.Parameters[1].Value)
		if err != nil {
			return errors.WithMessagef(err, "FuseConvBN: bias of %q", conv.Name)
		}
		if len(bias) != outChannels {
			return errors.Wrapf(ir.ErrInvalidOperand,
				"FuseConvBN: bias of %q has %d elements, expected %d output channels", conv.Name, len(bias), outChannels)
		}
	} else {
		bias = make([]float32, outChannels)
	}

	if len(bn.Parameters) != 4 {
		exceptions.Panicf("morph: BatchNormalization %q should have 4 parameters (scale, shift, mean, variance), got %d",
			bn.Name, len(bn.Parameters))
	}
	if len(bn.Outputs) == 0 {
		exceptions.Panicf("morph: BatchNormalization %q has no outputs", bn.Name)
	}
	alpha, err := tensorutil.Float32s(bn.Parameters[0].Value)
	if err != nil {
		return errors.WithMessagef(err, "FuseConvBN: scale of %q", bn.Name)
	}
	beta, err := tensorutil.Float32s(bn.Parameters[1].Value)
	if err != nil {
		return errors.WithMessagef(err, "FuseConvBN: shift of %q", bn.Name)
	}
	mean, err := tensorutil.Float32s(bn.Parameters[2].Value)
	if err != nil {
		return errors.WithMessagef(err, "FuseConvBN: mean of %q", bn.Name)
	}
	variance, err := tensorutil.Float32s(bn.Parameters[3].Value)
	if err != nil {
		return errors.WithMessagef(err, "FuseConvBN: variance of %q", bn.Name)
	}
	if len(alpha) != outChannels || len(beta) != outChannels || len(mean) != outChannels || len(variance) != outChannels {
		return errors.Wrapf(ir.ErrInvalidOperand,
			"FuseConvBN: parameters of %q do not match the %d output channels of %q", bn.Name, outChannels, conv.Name)
	}
	eps := float32(bn.Attributes.FloatOr(ir.AttrEpsilon, 1e-5))

	scale := make([]float32, outChannels)
	for i := range scale {
		scale[i] = alpha[i] / math32.Sqrt(variance[i]+eps)
	}
	newWeight := make([]float32, len(weight))
	block := len(weight) / outChannels
	for o := 0; o < outChannels; o++ {
		for j := 0; j < block; j++ {
			newWeight[o*block+j] = weight[o*block+j] * scale[o]
		}
	}
	newBias := make([]float32, outChannels)
	for i := range newBias {
		newBias[i] = scale[i]*(bias[i]-mean[i]) + beta[i]
	}

	fused := ir.NewOperation(conv.Name, ir.OpConv, conv.Attributes.Clone())
	fused.Platform = conv.Platform
	weightVar := ir.NewVariable(conv.Name+"_weight_",
		tensors.FromFlatDataAndDimensions(newWeight, weightDims...), true, fused)
	biasVar := ir.NewVariable(conv.Name+"_bias_",
		tensors.FromFlatDataAndDimensions(newBias, outChannels), true, fused)

	data := conv.Inputs[0]
	fused.Inputs = []*ir.Variable{data, weightVar, biasVar}
	fused.Parameters = []*ir.Variable{weightVar, biasVar}
	data.ReplaceDest(conv, fused)

	out := bn.Outputs[0]
	fused.Outputs = []*ir.Variable{out}
	out.Source = fused

	// Unlink the old pair, pruning variables that lose their last consumer.
	for _, v := range conv.Inputs[1:] {
		m.pruneEdge(v, conv)
	}
	for _, v := range bn.Inputs {
		m.pruneEdge(v, bn)
	}
	for _, extra := range slices.Clone(bn.Outputs[1:]) {
		if err := m.g.DeleteVariable(extra.Name, true); err != nil {
			return err
		}
	}

	delete(m.g.Operations, conv.Name)
	delete(m.g.Operations, bn.Name)
	if err := m.g.AppendVariable(weightVar); err != nil {
		return err
	}
	if err := m.g.AppendVariable(biasVar); err != nil {
		return err
	}
	if err := m.g.AppendOperation(fused); err != nil {
		return err
	}
	klog.V(2).Infof("FuseConvBN: folded %s into %s", bn.Name, fused.Name)
	return nil
}

// pruneEdge drops op from v's consumers and deletes v when nothing else in
// the graph references it.
func (m *Merger) pruneEdge(v *ir.Variable, op *ir.Operation) {
	v.RemoveDest(op)
	if len(v.Dests) > 0 {
		return
	}
	if _, found := m.g.Inputs[v.Name]; found {
		return
	}
	if _, found := m.g.Outputs[v.Name]; found {
		return
	}
	if v.Source != nil {
		v.Source.RemoveOutput(v)
		v.Source = nil
	}
	delete(m.g.Variables, v.Name)
}
