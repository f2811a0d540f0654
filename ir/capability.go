package ir

// Capability-keyed generic algorithms. These are the computations shared by
// every kind exhibiting a given capability (axis-bearing, padding/stride
// bearing, ...), dispatched by capability membership rather than by a type
// hierarchy.

// NormalizeAxis resolves a possibly-negative axis against a rank.
// Returns ErrAttribute when the axis is out of range.
func NormalizeAxis(axis, rank int) (int, error) {
	normalized := axis
	if normalized < 0 {
		normalized += rank
	}
	if normalized < 0 || normalized >= rank {
		return 0, attributeErrorf("axis %d out of range for rank %d", axis, rank)
	}
	return normalized, nil
}

// NormalizeAxes resolves each possibly-negative axis against a rank.
func NormalizeAxes(axes []int, rank int) ([]int, error) {
	out := make([]int, len(axes))
	for i, axis := range axes {
		normalized, err := NormalizeAxis(axis, rank)
		if err != nil {
			return nil, err
		}
		out[i] = normalized
	}
	return out, nil
}

// InversePermutation returns the permutation that undoes perm.
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// PermNCHWToNHWC returns the permutation converting NCHW to NHWC layout.
func PermNCHWToNHWC() []int { return []int{0, 2, 3, 1} }

// PermNHWCToNCHW returns the permutation converting NHWC to NCHW layout.
func PermNHWCToNCHW() []int { return InversePermutation(PermNCHWToNHWC()) }

// PermuteDims applies a permutation to a shape.
func PermuteDims(dims, perm []int) []int {
	out := make([]int, len(perm))
	for i, p := range perm {
		out[i] = dims[p]
	}
	return out
}

// BroadcastShape computes the multidirectional (numpy-style) broadcast of
// two shapes: dimensions align from the right, and each pair must be equal
// or contain a 1. Returns ErrInference on incompatible dimensions.
func BroadcastShape(a, b []int) ([]int, error) {
	rank := max(len(a), len(b))
	out := make([]int, rank)
	for i := 1; i <= rank; i++ {
		da, db := 1, 1
		if i <= len(a) {
			da = a[len(a)-i]
		}
		if i <= len(b) {
			db = b[len(b)-i]
		}
		switch {
		case da == db, db == 1:
			out[rank-i] = da
		case da == 1:
			out[rank-i] = db
		default:
			return nil, inferenceErrorf("cannot broadcast shapes %v and %v (dim %d vs %d)", a, b, da, db)
		}
	}
	return out, nil
}

// Auto-pad policies, following the ONNX nomenclature the original formats
// are normalized to.
const (
	AutoPadNotSet    = "NOTSET"
	AutoPadSameUpper = "SAME_UPPER"
	AutoPadSameLower = "SAME_LOWER"
	AutoPadValid     = "VALID"
)

// CalcPads computes per-spatial-dimension padding from input/output spatial
// shapes, strides, kernel shape and dilations. The result is in ONNX layout:
// all leading pads followed by all trailing pads. SAME_UPPER puts the excess
// at the tail, SAME_LOWER at the head. zeroMinimum clamps negative pads to 0.
func CalcPads(inShape, outShape, strides, kernelShape []int, autoPad string, dilations []int, zeroMinimum bool) []int {
	n := len(inShape)
	if dilations == nil {
		dilations = make([]int, n)
		for i := range dilations {
			dilations[i] = 1
		}
	}
	head := make([]int, n)
	tail := make([]int, n)
	for i := 0; i < n; i++ {
		pad := (outShape[i]-1)*strides[i] + (kernelShape[i]-1)*dilations[i] + 1 - inShape[i]
		if zeroMinimum && pad < 0 {
			pad = 0
		}
		half := (abs(pad) / 2) * sign(pad)
		if autoPad == AutoPadSameUpper {
			head[i] = half
			tail[i] = pad - half
		} else {
			tail[i] = half
			head[i] = pad - half
		}
	}
	return append(head, tail...)
}

// CalcConvOutShape computes the spatial output shape of a convolution-like
// kind from the spatial input shape and the padding/stride attributes.
// pads is in ONNX layout (heads then tails) and is only consulted for
// AutoPadNotSet.
func CalcConvOutShape(inShape, pads, strides, kernelShape []int, autoPad string, dilations []int) []int {
	n := len(inShape)
	if dilations == nil {
		dilations = make([]int, n)
		for i := range dilations {
			dilations[i] = 1
		}
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		switch autoPad {
		case AutoPadSameUpper, AutoPadSameLower:
			out[i] = ceilDiv(inShape[i], strides[i])
		default:
			padded := inShape[i]
			if autoPad == AutoPadNotSet && len(pads) == 2*n {
				padded += pads[i] + pads[n+i]
			}
			out[i] = (padded-dilations[i]*(kernelShape[i]-1)-1)/strides[i] + 1
		}
	}
	return out
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
