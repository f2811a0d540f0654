package ir

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Tensor is the metadata attached to an edge: the value flowing from the
// source node's output port to the destination node's input port.
//
// A Tensor may be partially specified: the shape and dtype can be known while
// the concrete value is not (the usual case for non-constant activations), or
// everything can be unknown mid-construction. Shape inference (see Infer)
// fills in whatever it can derive.
type Tensor struct {
	// Value is the concrete value, if known. Nil for runtime-dependent data.
	Value *tensors.Tensor

	// Dims is the shape, if known. Nil means unknown; an empty non-nil slice
	// is a scalar. When Value is set, Dims mirrors its dimensions.
	Dims []int

	// DType of the tensor. dtypes.InvalidDType when unknown.
	DType dtypes.DType

	// IsConst marks values produced exclusively from constants, making the
	// producing node eligible for folding.
	IsConst bool

	// MinMax optionally carries a [min, max] value range (e.g. quantization
	// calibration data). Empty when absent.
	MinMax []float32
}

// NewTensor creates edge metadata from a concrete value, deriving shape and
// dtype from it.
func NewTensor(value *tensors.Tensor) *Tensor {
	t := &Tensor{Value: value}
	if value != nil {
		shape := value.Shape()
		t.Dims = append([]int{}, shape.Dimensions...)
		t.DType = shape.DType
	}
	return t
}

// NewConstTensor is like NewTensor but marks the result as constant.
func NewConstTensor(value *tensors.Tensor) *Tensor {
	t := NewTensor(value)
	t.IsConst = true
	return t
}

// SetValue sets the concrete value and re-derives shape and dtype from it.
func (t *Tensor) SetValue(value *tensors.Tensor) {
	t.Value = value
	if value != nil {
		shape := value.Shape()
		t.Dims = append([]int{}, shape.Dimensions...)
		t.DType = shape.DType
	}
}

// ShapeDims returns the best known shape: the value's dimensions when a value
// is present, the declared Dims otherwise. Nil when unknown.
func (t *Tensor) ShapeDims() []int {
	if t == nil {
		return nil
	}
	if t.Value != nil {
		return t.Value.Shape().Dimensions
	}
	return t.Dims
}

// Shape assembles a shapes.Shape from the known dtype and dims.
// Returns ok=false if either is still unknown.
func (t *Tensor) Shape() (shape shapes.Shape, ok bool) {
	if t == nil || t.DType == dtypes.InvalidDType {
		return
	}
	dims := t.ShapeDims()
	if dims == nil {
		return
	}
	return shapes.Make(t.DType, dims...), true
}

// Resolved reports whether shape and dtype are both known, the precondition
// for dependents to run their own shape inference.
func (t *Tensor) Resolved() bool {
	if t == nil {
		return false
	}
	return t.DType != dtypes.InvalidDType && t.ShapeDims() != nil
}

// Clone returns a deep copy of the metadata. The value is shared: concrete
// tensors are immutable from the IR's point of view.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	c := &Tensor{
		Value:   t.Value,
		DType:   t.DType,
		IsConst: t.IsConst,
	}
	if t.Dims != nil {
		c.Dims = append([]int{}, t.Dims...)
	}
	if t.MinMax != nil {
		c.MinMax = append([]float32{}, t.MinMax...)
	}
	return c
}

// ComputeMinMax scans a float32 value and records its [min, max] range.
// It is a no-op for other dtypes or when no value is present.
func (t *Tensor) ComputeMinMax() {
	if t.Value == nil || t.Value.Shape().DType != dtypes.Float32 || t.Value.Shape().Size() == 0 {
		return
	}
	minV, maxV := math32.Inf(1), math32.Inf(-1)
	tensors.ConstFlatData(t.Value, func(data []float32) {
		for _, v := range data {
			minV = math32.Min(minV, v)
			maxV = math32.Max(maxV, v)
		}
	})
	t.MinMax = []float32{minV, maxV}
}

// String returns a compact description, e.g. "(Float32)[1 4] const".
func (t *Tensor) String() string {
	if t == nil {
		return "(nil)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%s)", t.DType)
	if dims := t.ShapeDims(); dims != nil {
		fmt.Fprintf(&sb, "%v", dims)
	} else {
		sb.WriteString("[?]")
	}
	if t.IsConst {
		sb.WriteString(" const")
	}
	return sb.String()
}

// DTypeFromString maps a dtype name (as used in attribute values, e.g. the
// target of a Cast) to the corresponding gopjrt dtype.
func DTypeFromString(name string) (dtypes.DType, error) {
	switch strings.ToLower(name) {
	case "float32", "float":
		return dtypes.Float32, nil
	case "float64", "double":
		return dtypes.Float64, nil
	case "float16":
		return dtypes.Float16, nil
	case "bfloat16":
		return dtypes.BFloat16, nil
	case "int8":
		return dtypes.Int8, nil
	case "int16":
		return dtypes.Int16, nil
	case "int32":
		return dtypes.Int32, nil
	case "int64", "int":
		return dtypes.Int64, nil
	case "uint8":
		return dtypes.Uint8, nil
	case "uint16":
		return dtypes.Uint16, nil
	case "uint32":
		return dtypes.Uint32, nil
	case "uint64":
		return dtypes.Uint64, nil
	case "bool":
		return dtypes.Bool, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported/unknown dtype name %q", name)
	}
}
