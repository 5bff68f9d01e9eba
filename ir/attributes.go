package ir

import (
	"maps"

	"github.com/gomlx/gomlx/types/tensors"
)

// Well-known attribute keys used by the canonicalization passes.
const (
	AttrValue       = "value"
	AttrPads        = "pads"
	AttrPadsValue   = "pads_value"
	AttrMode        = "mode"
	AttrMin         = "min"
	AttrMax         = "max"
	AttrAxis        = "axis"
	AttrGatherIndex = "gather_index"
	AttrIndices     = "indices"
	AttrTo          = "to"
	AttrEpsilon     = "epsilon"
)

// Attributes maps attribute names to typed values: numbers, strings, int
// slices, canonical dtypes or *tensors.Tensor constants.
type Attributes map[string]any

// Clone returns a shallow copy: tensor values are shared, the map is not.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	return maps.Clone(a)
}

// Has reports whether key is set.
func (a Attributes) Has(key string) bool {
	_, found := a[key]
	return found
}

// FloatOr returns the attribute as float64, or def if absent or not numeric.
func (a Attributes) FloatOr(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// IntOr returns the attribute as int, or def if absent or not an integer.
func (a Attributes) IntOr(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	}
	return def
}

// StrOr returns the attribute as string, or def if absent or not a string.
func (a Attributes) StrOr(key string, def string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return def
}

// Tensor returns the attribute as a tensor, or nil if absent or not a tensor.
func (a Attributes) Tensor(key string) *tensors.Tensor {
	t, _ := a[key].(*tensors.Tensor)
	return t
}
