package ir

// Platform is the execution domain assigned to an Operation by the external
// scheduler/dispatcher before any device-switching pass runs.
type Platform int

const (
	// PlatformUnassigned marks operations the dispatcher has not tagged yet.
	PlatformUnassigned Platform = iota

	// PlatformFP32 is the main numeric compute domain.
	PlatformFP32

	// PlatformShapeOrIndex is the lightweight domain for shape and index
	// metadata (e.g. integer tensors feeding Reshape or Gather).
	PlatformShapeOrIndex
)

// String implements fmt.Stringer.
func (p Platform) String() string {
	switch p {
	case PlatformFP32:
		return "FP32"
	case PlatformShapeOrIndex:
		return "ShapeOrIndex"
	default:
		return "Unassigned"
	}
}
