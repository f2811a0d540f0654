package ir

import (
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorResolution(t *testing.T) {
	var unknown *Tensor
	assert.False(t, unknown.Resolved())
	assert.Nil(t, unknown.ShapeDims())

	partial := &Tensor{DType: dtypes.Float32}
	assert.False(t, partial.Resolved())

	shaped := &Tensor{Dims: []int{2, 3}, DType: dtypes.Float32}
	assert.True(t, shaped.Resolved())
	shape, ok := shaped.Shape()
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, shape.Dimensions)

	// A scalar has empty (non-nil) dims, distinct from unknown.
	scalar := NewTensor(tensors.FromScalar(float32(1)))
	assert.True(t, scalar.Resolved())
	assert.NotNil(t, scalar.ShapeDims())
	assert.Len(t, scalar.ShapeDims(), 0)
}

func TestTensorValueDerivesShape(t *testing.T) {
	tt := &Tensor{Dims: []int{99}, DType: dtypes.Int32}
	tt.SetValue(tensors.FromValue([]float32{1, 2, 3}))
	assert.Equal(t, []int{3}, tt.Dims)
	assert.Equal(t, dtypes.Float32, tt.DType)
}

func TestTensorClone(t *testing.T) {
	orig := NewConstTensor(tensors.FromValue([]float32{1, 2}))
	orig.MinMax = []float32{1, 2}
	clone := orig.Clone()
	clone.Dims[0] = 77
	clone.MinMax[0] = -5
	assert.Equal(t, []int{2}, orig.Dims)
	assert.Equal(t, float32(1), orig.MinMax[0])
	// The concrete value is shared, not copied.
	assert.Same(t, orig.Value, clone.Value)
}

func TestComputeMinMax(t *testing.T) {
	tt := NewTensor(tensors.FromValue([]float32{3, -1, 7, 0}))
	tt.ComputeMinMax()
	assert.Equal(t, []float32{-1, 7}, tt.MinMax)

	// No-op for non-float32 values.
	ti := NewTensor(tensors.FromValue([]int64{1, 2}))
	ti.ComputeMinMax()
	assert.Nil(t, ti.MinMax)
}

func TestTensorString(t *testing.T) {
	assert.Equal(t, "(nil)", (*Tensor)(nil).String())
	tt := &Tensor{Dims: []int{1, 4}, DType: dtypes.Float32, IsConst: true}
	assert.Equal(t, "(Float32)[1 4] const", tt.String())
}

func TestDTypeFromString(t *testing.T) {
	dt, err := DTypeFromString("float32")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dt)

	// Aliases as loaders emit them.
	dt, err = DTypeFromString("Float")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dt)
	dt, err = DTypeFromString("double")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float64, dt)

	_, err = DTypeFromString("complex12")
	require.Error(t, err)
}
