package ir

// OpType identifies the operator kind of an Operation.
//
// It is a closed enumeration: rewrite passes that retag an operation (e.g.
// Sub to Add after negating the second operand) do so by assigning a new
// OpType, and every dispatch site switches exhaustively on it.
type OpType int

const (
	OpInvalid OpType = iota
	OpAdd
	OpSub
	OpMul
	OpNeg
	OpConv
	OpBatchNormalization
	OpClip
	OpPad
	OpGather
	OpCast
	OpConstant
	OpShape
	OpReshape
	OpSlice
	OpConcat
	OpMatMul
	OpRelu
	OpTopK
	OpNonMaxSuppression

	// OpDeviceSwitch is the reserved boundary-operation tag inserted by the
	// device switcher to mark an execution-domain transition.
	OpDeviceSwitch
)

var opTypeNames = [...]string{
	OpInvalid:            "Invalid",
	OpAdd:                "Add",
	OpSub:                "Sub",
	OpMul:                "Mul",
	OpNeg:                "Neg",
	OpConv:               "Conv",
	OpBatchNormalization: "BatchNormalization",
	OpClip:               "Clip",
	OpPad:                "Pad",
	OpGather:             "Gather",
	OpCast:               "Cast",
	OpConstant:           "Constant",
	OpShape:              "Shape",
	OpReshape:            "Reshape",
	OpSlice:              "Slice",
	OpConcat:             "Concat",
	OpMatMul:             "MatMul",
	OpRelu:               "Relu",
	OpTopK:               "TopK",
	OpNonMaxSuppression:  "NonMaxSuppression",
	OpDeviceSwitch:       "DeviceSwitch",
}

// String implements fmt.Stringer.
func (t OpType) String() string {
	if t < 0 || int(t) >= len(opTypeNames) {
		return "Invalid"
	}
	return opTypeNames[t]
}

// IsShapeSource reports whether operators of this type produce shape-or-index
// data natively, so that no boundary operation is needed between them and a
// shape/index-domain consumer.
func (t OpType) IsShapeSource() bool {
	switch t {
	case OpShape, OpTopK, OpNonMaxSuppression:
		return true
	}
	return false
}
