package ir

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAxis(t *testing.T) {
	axis, err := NormalizeAxis(-1, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, axis)

	axis, err = NormalizeAxis(2, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, axis)

	_, err = NormalizeAxis(4, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttribute))
	_, err = NormalizeAxis(-5, 4)
	require.Error(t, err)

	axes, err := NormalizeAxes([]int{0, -1, -2}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, axes)
}

func TestPermutations(t *testing.T) {
	assert.Equal(t, []int{0, 3, 1, 2}, PermNHWCToNCHW())
	assert.Equal(t, []int{0, 2, 3, 1}, InversePermutation(PermNHWCToNCHW()))

	nchw := []int{1, 3, 224, 224}
	nhwc := PermuteDims(nchw, PermNCHWToNHWC())
	assert.Equal(t, []int{1, 224, 224, 3}, nhwc)
	assert.Equal(t, nchw, PermuteDims(nhwc, PermNHWCToNCHW()))
}

func TestBroadcastShape(t *testing.T) {
	dims, err := BroadcastShape([]int{2, 3, 4}, []int{3, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, dims)

	dims, err = BroadcastShape([]int{1}, []int{5, 7})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 7}, dims)

	dims, err = BroadcastShape(nil, []int{2})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, dims)

	_, err = BroadcastShape([]int{2, 3}, []int{4, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInference))
}

func TestCalcPads(t *testing.T) {
	// SAME_UPPER on 5→5 with stride 1 and kernel 3: pad 2, excess at tail.
	pads := CalcPads([]int{5}, []int{5}, []int{1}, []int{3}, AutoPadSameUpper, nil, false)
	assert.Equal(t, []int{1, 1}, pads)

	pads = CalcPads([]int{5}, []int{5}, []int{1}, []int{4}, AutoPadSameUpper, nil, false)
	assert.Equal(t, []int{1, 2}, pads)
	pads = CalcPads([]int{5}, []int{5}, []int{1}, []int{4}, AutoPadSameLower, nil, false)
	assert.Equal(t, []int{2, 1}, pads)

	// Negative pads clamp to zero under zeroMinimum.
	pads = CalcPads([]int{8}, []int{3}, []int{2}, []int{1}, AutoPadNotSet, nil, true)
	assert.Equal(t, []int{0, 0}, pads)
}

func TestCalcConvOutShape(t *testing.T) {
	// NOTSET with explicit pads: floor((5+1+1-3)/1)+1 = 5.
	out := CalcConvOutShape([]int{5, 5}, []int{1, 1, 1, 1}, []int{1, 1}, []int{3, 3}, AutoPadNotSet, nil)
	assert.Equal(t, []int{5, 5}, out)

	// VALID: floor((5-3)/2)+1 = 2.
	out = CalcConvOutShape([]int{5, 5}, nil, []int{2, 2}, []int{3, 3}, AutoPadValid, nil)
	assert.Equal(t, []int{2, 2}, out)

	// SAME_*: ceil(in/stride).
	out = CalcConvOutShape([]int{7}, nil, []int{2}, []int{3}, AutoPadSameUpper, nil)
	assert.Equal(t, []int{4}, out)

	// Dilations widen the effective kernel.
	out = CalcConvOutShape([]int{9}, nil, []int{1}, []int{3}, AutoPadValid, []int{2})
	assert.Equal(t, []int{5}, out)
}
