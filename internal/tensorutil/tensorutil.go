// Package tensorutil contains small helpers to read, convert and copy the
// flat data of the tensors stored as constant and parameter values in the IR.
package tensorutil

import (
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Scalar returns the single element of t as float64.
func Scalar(t *tensors.Tensor) (float64, error) {
	if t == nil {
		return 0, errors.New("nil tensor")
	}
	if t.Shape().Size() != 1 {
		return 0, errors.Errorf("expected a single-element tensor, got shape %s", t.Shape())
	}
	var value float64
	switch t.Shape().DType {
	case dtypes.Float32:
		tensors.ConstFlatData(t, func(flat []float32) { value = float64(flat[0]) })
	case dtypes.Float64:
		tensors.ConstFlatData(t, func(flat []float64) { value = flat[0] })
	case dtypes.Int32:
		tensors.ConstFlatData(t, func(flat []int32) { value = float64(flat[0]) })
	case dtypes.Int64:
		tensors.ConstFlatData(t, func(flat []int64) { value = float64(flat[0]) })
	default:
		return 0, errors.Errorf("unsupported dtype %s for scalar conversion", t.Shape().DType)
	}
	return value, nil
}

// Ints returns the elements of an integer tensor as a flat []int.
func Ints(t *tensors.Tensor) ([]int, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	out := make([]int, t.Shape().Size())
	switch t.Shape().DType {
	case dtypes.Int32:
		tensors.ConstFlatData(t, func(flat []int32) {
			for idx, v := range flat {
				out[idx] = int(v)
			}
		})
	case dtypes.Int64:
		tensors.ConstFlatData(t, func(flat []int64) {
			for idx, v := range flat {
				out[idx] = int(v)
			}
		})
	default:
		return nil, errors.Errorf("expected an integer tensor, got dtype %s", t.Shape().DType)
	}
	return out, nil
}

// Float32s returns the elements of a Float32 tensor as a flat copy.
func Float32s(t *tensors.Tensor) ([]float32, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	if t.Shape().DType != dtypes.Float32 {
		return nil, errors.Errorf("expected a Float32 tensor, got dtype %s", t.Shape().DType)
	}
	out := make([]float32, t.Shape().Size())
	tensors.ConstFlatData(t, func(flat []float32) { copy(out, flat) })
	return out, nil
}

// Primary converts t to a native Go value: an int or float64 for
// single-element tensors, []int or []float64 otherwise.
func Primary(t *tensors.Tensor) (any, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	switch t.Shape().DType {
	case dtypes.Int32, dtypes.Int64:
		values, err := Ints(t)
		if err != nil {
			return nil, err
		}
		if len(values) == 1 {
			return values[0], nil
		}
		return values, nil
	case dtypes.Float32, dtypes.Float64:
		if t.Shape().Size() == 1 {
			return Scalar(t)
		}
		out := make([]float64, t.Shape().Size())
		if t.Shape().DType == dtypes.Float32 {
			tensors.ConstFlatData(t, func(flat []float32) {
				for idx, v := range flat {
					out[idx] = float64(v)
				}
			})
		} else {
			tensors.ConstFlatData(t, func(flat []float64) { copy(out, flat) })
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported dtype %s for primary-value conversion", t.Shape().DType)
	}
}

// Clone returns an independent copy of t sharing no storage.
func Clone(t *tensors.Tensor) *tensors.Tensor {
	if t == nil {
		return nil
	}
	clone := tensors.FromShape(t.Shape())
	t.ConstBytes(func(src []byte) {
		clone.MutableBytes(func(dst []byte) { copy(dst, src) })
	})
	return clone
}
