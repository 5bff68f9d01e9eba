package tensorutil

import (
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalar(t *testing.T) {
	for _, test := range []struct {
		name   string
		tensor *tensors.Tensor
		want   float64
	}{
		{"float32", tensors.FromAnyValue(float32(1.5)), 1.5},
		{"float64", tensors.FromAnyValue(2.5), 2.5},
		{"int32", tensors.FromAnyValue(int32(-3)), -3},
		{"int64", tensors.FromAnyValue(int64(7)), 7},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Scalar(test.tensor)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}

	_, err := Scalar(tensors.FromAnyValue([]float32{1, 2}))
	require.Error(t, err, "multi-element tensor")
	_, err = Scalar(nil)
	require.Error(t, err)
}

func TestInts(t *testing.T) {
	got, err := Ints(tensors.FromAnyValue([]int64{1, -2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, -2, 3}, got)

	got, err = Ints(tensors.FromAnyValue([]int32{4, 5}))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, got)

	_, err = Ints(tensors.FromAnyValue([]float32{1}))
	require.Error(t, err, "not an integer tensor")
}

func TestPrimary(t *testing.T) {
	got, err := Primary(tensors.FromAnyValue(int64(3)))
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = Primary(tensors.FromAnyValue([]int32{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	got, err = Primary(tensors.FromAnyValue(float32(0.5)))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)

	got, err = Primary(tensors.FromAnyValue([]float32{0.5, 1.5}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, got)
}

func TestClone(t *testing.T) {
	original := tensors.FromAnyValue([]float32{1, 2, 3})
	clone := Clone(original)
	require.NotNil(t, clone)
	assert.NotSame(t, original, clone)
	assert.True(t, original.Shape().Equal(clone.Shape()))

	// Mutating the clone must not leak into the original.
	tensors.MutableFlatData(clone, func(flat []float32) { flat[0] = 99 })
	values, err := Float32s(original)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, values)

	assert.Nil(t, Clone(nil))
}

func TestDTypeForCode(t *testing.T) {
	dtype, err := DTypeForCode(1)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dtype)

	dtype, err = DTypeForCode(7)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Int64, dtype)

	_, err = DTypeForCode(99)
	require.Error(t, err)
}
