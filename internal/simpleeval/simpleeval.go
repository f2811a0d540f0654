// Package simpleeval is a plain in-process evaluator for the built-in kind
// catalog, covering the kinds constant folding meets in practice. It backs
// the inference tests and serves as the fallback when no accelerated
// evaluator is plugged in.
package simpleeval

import (
	"slices"

	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphir/ir"
	"github.com/pkg/errors"
)

// New returns the evaluator.
func New() ir.Evaluator {
	return ir.EvaluatorFunc(eval)
}

func eval(kind string, attrs map[string]any, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	switch kind {
	case "Add", "Sub", "Mul":
		if len(inputs) != 2 {
			return nil, errors.Errorf("%s: want 2 inputs, got %d", kind, len(inputs))
		}
		out, err := binary(kind, inputs[0], inputs[1])
		if err != nil {
			return nil, err
		}
		return []*tensors.Tensor{out}, nil
	case "Identity":
		if len(inputs) != 1 {
			return nil, errors.Errorf("Identity: want 1 input, got %d", len(inputs))
		}
		return []*tensors.Tensor{inputs[0].LocalClone()}, nil
	case "Cast":
		to, ok := attrs["to"].(string)
		if !ok || len(inputs) != 1 {
			return nil, errors.Errorf("Cast: want 1 input and a 'to' attribute")
		}
		target, err := ir.DTypeFromString(to)
		if err != nil {
			return nil, err
		}
		out, err := cast(inputs[0], target)
		if err != nil {
			return nil, err
		}
		return []*tensors.Tensor{out}, nil
	case "Reshape":
		dims, ok := attrs["shape"].([]int)
		if !ok || len(inputs) != 1 {
			return nil, errors.Errorf("Reshape: want 1 input and a resolved 'shape' attribute")
		}
		return []*tensors.Tensor{reshape(inputs[0], dims)}, nil
	case "Transpose":
		perm, ok := attrs["perm"].([]int)
		if !ok || len(inputs) != 1 {
			return nil, errors.Errorf("Transpose: want 1 input and a 'perm' attribute")
		}
		return []*tensors.Tensor{transpose(inputs[0], perm)}, nil
	case "Concat":
		axis, ok := attrs["axis"].(int)
		if !ok || len(inputs) == 0 {
			return nil, errors.Errorf("Concat: want inputs and an 'axis' attribute")
		}
		return []*tensors.Tensor{concat(inputs, axis)}, nil
	}
	return nil, errors.Errorf("kind %q not supported by simpleeval", kind)
}

func binary(kind string, a, b *tensors.Tensor) (*tensors.Tensor, error) {
	dtype := a.Shape().DType
	if b.Shape().DType != dtype {
		return nil, errors.Errorf("%s: dtype mismatch %s vs %s", kind, dtype, b.Shape().DType)
	}
	switch dtype {
	case dtypes.Float32:
		return binaryTyped[float32](kind, a, b)
	case dtypes.Float64:
		return binaryTyped[float64](kind, a, b)
	case dtypes.Int32:
		return binaryTyped[int32](kind, a, b)
	case dtypes.Int64:
		return binaryTyped[int64](kind, a, b)
	}
	return nil, errors.Errorf("%s: dtype %s not supported by simpleeval", kind, dtype)
}

func binaryTyped[T float32 | float64 | int32 | int64](kind string, a, b *tensors.Tensor) (*tensors.Tensor, error) {
	var av, bv []T
	tensors.ConstFlatData(a, func(flat []T) { av = slices.Clone(flat) })
	tensors.ConstFlatData(b, func(flat []T) { bv = slices.Clone(flat) })

	// Only same-shape and scalar broadcasting; full multidirectional
	// broadcasting stays with the accelerated evaluators.
	dims := a.Shape().Dimensions
	if len(bv) > len(av) {
		dims = b.Shape().Dimensions
	}
	n := max(len(av), len(bv))
	if len(av) != len(bv) && len(av) != 1 && len(bv) != 1 {
		return nil, errors.Errorf("%s: incompatible sizes %d and %d", kind, len(av), len(bv))
	}
	pick := func(v []T, i int) T {
		if len(v) == 1 {
			return v[0]
		}
		return v[i]
	}
	out := make([]T, n)
	for i := range out {
		x, y := pick(av, i), pick(bv, i)
		switch kind {
		case "Add":
			out[i] = x + y
		case "Sub":
			out[i] = x - y
		case "Mul":
			out[i] = x * y
		}
	}
	return tensors.FromFlatDataAndDimensions(out, dims...), nil
}

// cast converts through float64, which is exact for every supported dtype
// except int64 values above 2^53.
func cast(t *tensors.Tensor, target dtypes.DType) (*tensors.Tensor, error) {
	wide, err := toFloat64s(t)
	if err != nil {
		return nil, err
	}
	dims := t.Shape().Dimensions
	switch target {
	case dtypes.Float32:
		return fromWide[float32](wide, dims), nil
	case dtypes.Float64:
		return fromWide[float64](wide, dims), nil
	case dtypes.Int32:
		return fromWide[int32](wide, dims), nil
	case dtypes.Int64:
		return fromWide[int64](wide, dims), nil
	}
	return nil, errors.Errorf("Cast: target dtype %s not supported by simpleeval", target)
}

func toFloat64s(t *tensors.Tensor) ([]float64, error) {
	var out []float64
	switch t.Shape().DType {
	case dtypes.Float32:
		tensors.ConstFlatData(t, func(flat []float32) { out = widen(flat) })
	case dtypes.Float64:
		tensors.ConstFlatData(t, func(flat []float64) { out = slices.Clone(flat) })
	case dtypes.Int32:
		tensors.ConstFlatData(t, func(flat []int32) { out = widen(flat) })
	case dtypes.Int64:
		tensors.ConstFlatData(t, func(flat []int64) { out = widen(flat) })
	default:
		return nil, errors.Errorf("dtype %s not supported by simpleeval", t.Shape().DType)
	}
	return out, nil
}

func widen[T float32 | int32 | int64](flat []T) []float64 {
	out := make([]float64, len(flat))
	for i, v := range flat {
		out[i] = float64(v)
	}
	return out
}

func fromWide[T float32 | float64 | int32 | int64](wide []float64, dims []int) *tensors.Tensor {
	out := make([]T, len(wide))
	for i, v := range wide {
		out[i] = T(v)
	}
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

// reshape copies the raw bytes into a tensor of the new dimensions.
func reshape(t *tensors.Tensor, dims []int) *tensors.Tensor {
	out := tensors.FromShape(shapes.Make(t.Shape().DType, dims...))
	out.MutableBytes(func(dst []byte) {
		t.ConstBytes(func(src []byte) {
			copy(dst, src)
		})
	})
	return out
}

// transpose moves elements byte-wise, so it works for any dtype.
func transpose(t *tensors.Tensor, perm []int) *tensors.Tensor {
	inDims := t.Shape().Dimensions
	outDims := make([]int, len(perm))
	for i, p := range perm {
		outDims[i] = inDims[p]
	}
	out := tensors.FromShape(shapes.Make(t.Shape().DType, outDims...))
	elem := int(t.Shape().DType.Memory())
	inStrides := rowMajorStrides(inDims)

	out.MutableBytes(func(dst []byte) {
		t.ConstBytes(func(src []byte) {
			idx := make([]int, len(outDims))
			for outOffset := 0; outOffset < t.Shape().Size(); outOffset++ {
				inOffset := 0
				for axis, i := range idx {
					inOffset += i * inStrides[perm[axis]]
				}
				copy(dst[outOffset*elem:(outOffset+1)*elem], src[inOffset*elem:(inOffset+1)*elem])
				for axis := len(idx) - 1; axis >= 0; axis-- {
					idx[axis]++
					if idx[axis] < outDims[axis] {
						break
					}
					idx[axis] = 0
				}
			}
		})
	})
	return out
}

func rowMajorStrides(dims []int) []int {
	strides := make([]int, len(dims))
	stride := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= dims[i]
	}
	return strides
}

// concat joins the inputs along axis byte-wise. Inputs must agree on every
// other dimension; the caller (shape inference) has already checked that.
func concat(inputs []*tensors.Tensor, axis int) *tensors.Tensor {
	first := inputs[0].Shape()
	dims := slices.Clone(first.Dimensions)
	dims[axis] = 0
	for _, in := range inputs {
		dims[axis] += in.Shape().Dimensions[axis]
	}
	out := tensors.FromShape(shapes.Make(first.DType, dims...))
	elem := int(first.DType.Memory())

	outer := 1
	for _, d := range dims[:axis] {
		outer *= d
	}
	inner := elem
	for _, d := range dims[axis+1:] {
		inner *= d
	}

	out.MutableBytes(func(dst []byte) {
		offset := 0
		for o := 0; o < outer; o++ {
			for _, in := range inputs {
				block := in.Shape().Dimensions[axis] * inner
				in.ConstBytes(func(src []byte) {
					copy(dst[offset:offset+block], src[o*block:(o+1)*block])
				})
				offset += block
			}
		}
	})
	return out
}
