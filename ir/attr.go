package ir

import (
	"github.com/gomlx/gomlx/types/tensors"
)

// AttrType is the semantic type of an operation attribute.
type AttrType int

const (
	AttrUndefined AttrType = iota
	AttrString
	AttrInt
	AttrInts
	AttrFloat
	AttrFloats
	AttrStrings
	AttrTensor
	AttrTensors
)

// String returns a human-readable name for the attribute type.
func (t AttrType) String() string {
	switch t {
	case AttrString:
		return "string"
	case AttrInt:
		return "int"
	case AttrInts:
		return "ints"
	case AttrFloat:
		return "float"
	case AttrFloats:
		return "floats"
	case AttrStrings:
		return "strings"
	case AttrTensor:
		return "tensor"
	case AttrTensors:
		return "tensors"
	default:
		return "undefined"
	}
}

// Attribute is one named, typed attribute of an Op: its schema declaration
// (type, default, required flag, allowed options) together with the current
// value. Values are always stored in canonical Go form for their type --
// see coerceAttrValue.
type Attribute struct {
	Name     string
	Type     AttrType
	Default  any
	Required bool

	// Options restricts the value to a declared set (scalar types only).
	Options []any

	value    any
	hasValue bool
}

// HasValue reports whether a value was set (defaults don't count).
func (a *Attribute) HasValue() bool {
	return a.hasValue
}

// Value returns the current value, falling back to the declared default.
// Returns nil when neither is present.
func (a *Attribute) Value() any {
	if a.hasValue {
		return a.value
	}
	return a.Default
}

// Set coerces v to the attribute's declared type and stores it.
// Returns ErrAttribute if v cannot be coerced or violates Options.
func (a *Attribute) Set(v any) error {
	coerced, err := coerceAttrValue(v, a.Type)
	if err != nil {
		return attributeErrorf("attribute %q: %v", a.Name, err)
	}
	if err := a.checkOptions(coerced); err != nil {
		return err
	}
	a.value = coerced
	a.hasValue = true
	return nil
}

// checkOptions validates a candidate value against the declared options.
// List and tensor typed attributes are not subject to options.
func (a *Attribute) checkOptions(v any) error {
	if len(a.Options) == 0 {
		return nil
	}
	switch a.Type {
	case AttrString, AttrInt, AttrFloat:
		for _, opt := range a.Options {
			coercedOpt, err := coerceAttrValue(opt, a.Type)
			if err != nil {
				continue
			}
			if coercedOpt == v {
				return nil
			}
		}
		return attributeErrorf("value %v not in options %v of attribute %q", v, a.Options, a.Name)
	default:
		return nil
	}
}

// clone returns an independent copy; scalar and slice values are copied,
// tensor values are shared (immutable from the IR's point of view).
func (a *Attribute) clone() *Attribute {
	c := &Attribute{
		Name:     a.Name,
		Type:     a.Type,
		Default:  a.Default,
		Required: a.Required,
		Options:  a.Options,
		hasValue: a.hasValue,
	}
	c.value = copyAttrValue(a.value)
	return c
}

func copyAttrValue(v any) any {
	switch tv := v.(type) {
	case []int:
		return append([]int{}, tv...)
	case []float64:
		return append([]float64{}, tv...)
	case []string:
		return append([]string{}, tv...)
	case []*tensors.Tensor:
		return append([]*tensors.Tensor{}, tv...)
	default:
		return v
	}
}

// coerceAttrValue converts v into the canonical Go representation of the
// given attribute type: string, int, []int, float64, []float64, []string,
// *tensors.Tensor or []*tensors.Tensor. Scalars are promoted to one-element
// lists for list types, mirroring how loaders hand over singular values.
func coerceAttrValue(v any, t AttrType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case AttrString:
		s, ok := v.(string)
		if !ok {
			return nil, errTypeMismatch(v, t)
		}
		return s, nil
	case AttrInt:
		return coerceInt(v)
	case AttrFloat:
		return coerceFloat(v)
	case AttrInts:
		switch tv := v.(type) {
		case []int:
			return append([]int{}, tv...), nil
		case []int64:
			out := make([]int, len(tv))
			for i, x := range tv {
				out[i] = int(x)
			}
			return out, nil
		case []any:
			out := make([]int, len(tv))
			for i, x := range tv {
				xi, err := coerceInt(x)
				if err != nil {
					return nil, err
				}
				out[i] = xi
			}
			return out, nil
		default:
			xi, err := coerceInt(v)
			if err != nil {
				return nil, err
			}
			return []int{xi}, nil
		}
	case AttrFloats:
		switch tv := v.(type) {
		case []float64:
			return append([]float64{}, tv...), nil
		case []float32:
			out := make([]float64, len(tv))
			for i, x := range tv {
				out[i] = float64(x)
			}
			return out, nil
		case []any:
			out := make([]float64, len(tv))
			for i, x := range tv {
				xf, err := coerceFloat(x)
				if err != nil {
					return nil, err
				}
				out[i] = xf
			}
			return out, nil
		default:
			xf, err := coerceFloat(v)
			if err != nil {
				return nil, err
			}
			return []float64{xf}, nil
		}
	case AttrStrings:
		switch tv := v.(type) {
		case []string:
			return append([]string{}, tv...), nil
		case string:
			return []string{tv}, nil
		default:
			return nil, errTypeMismatch(v, t)
		}
	case AttrTensor:
		tsr, ok := v.(*tensors.Tensor)
		if !ok {
			return nil, errTypeMismatch(v, t)
		}
		return tsr, nil
	case AttrTensors:
		switch tv := v.(type) {
		case []*tensors.Tensor:
			return append([]*tensors.Tensor{}, tv...), nil
		case *tensors.Tensor:
			return []*tensors.Tensor{tv}, nil
		default:
			return nil, errTypeMismatch(v, t)
		}
	default: // AttrUndefined carries the value as-is.
		return v, nil
	}
}

func coerceInt(v any) (int, error) {
	switch tv := v.(type) {
	case int:
		return tv, nil
	case int32:
		return int(tv), nil
	case int64:
		return int(tv), nil
	case uint:
		return int(tv), nil
	case bool:
		if tv {
			return 1, nil
		}
		return 0, nil
	case float32:
		return int(tv), nil
	case float64:
		return int(tv), nil
	default:
		return 0, errTypeMismatch(v, AttrInt)
	}
}

func coerceFloat(v any) (float64, error) {
	switch tv := v.(type) {
	case float64:
		return tv, nil
	case float32:
		return float64(tv), nil
	case int:
		return float64(tv), nil
	case int32:
		return float64(tv), nil
	case int64:
		return float64(tv), nil
	default:
		return 0, errTypeMismatch(v, AttrFloat)
	}
}

func errTypeMismatch(v any, t AttrType) error {
	return attributeErrorf("cannot coerce %T value to %s", v, t)
}
