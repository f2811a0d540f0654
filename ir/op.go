package ir

import (
	"sort"

	"github.com/gomlx/gomlx/types/tensors"
)

// OutputArity classifies how many logical output ports a kind exposes.
type OutputArity int

const (
	// SingleOutput kinds produce exactly one output on port 0.
	SingleOutput OutputArity = iota
	// MultipleOutputs kinds produce a fixed number of outputs > 1.
	MultipleOutputs
	// VariableOutputs kinds produce a data-dependent number of outputs.
	VariableOutputs
)

// Capabilities is the declared capability set of an operation kind. Generic
// algorithms are keyed by capability membership instead of a type hierarchy:
// any kind exhibiting a capability can reuse the algorithms for it.
type Capabilities struct {
	// HasAxis: the kind carries axis/axes/keepdims attributes subject to
	// negative-axis normalization.
	HasAxis bool
	// HasWeights / HasBiases: the kind carries tensor-typed "weights" /
	// "biases" attributes.
	HasWeights bool
	HasBiases  bool
	// HasPaddingStrides: the kind carries auto_pad/pads/strides/dilations/
	// kernel_shape attributes subject to pad computation.
	HasPaddingStrides bool
	// HasMethod: the kind selects a behavior with a "method" attribute
	// (e.g. MAX vs AVG pooling).
	HasMethod bool

	OutputArity OutputArity

	// VariableInputs: the kind accepts any number of inputs, and duplicate
	// dst_in_port values are legal on its in-edges.
	VariableInputs bool

	// ConstLike: the output is always a literal with no runtime inputs.
	ConstLike bool
	// InputLike: the node represents a graph input; its output tensor comes
	// from the graph's input bindings rather than from inference.
	InputLike bool
}

// Op is the polymorphic kind-plus-attributes value attached to a node,
// describing its computation. An Op is constructed against a schema resolved
// from the (kind, version) registry; its attributes are validated and
// coerced on every update.
type Op struct {
	schema   *Schema
	attrs    map[string]*Attribute
	userData map[string]any
}

// NewOp constructs an Op of the given kind, resolving the schema with the
// highest supported version ≤ version (version <= 0 selects the latest).
// Schema defaults are merged with the provided attribute values, with
// per-attribute type coercion. Unknown attributes are rejected or kept as
// user-defined data, depending on the kind's declared policy.
func NewOp(kind string, version int, attrValues map[string]any) (*Op, error) {
	schema, err := ResolveSchema(kind, version)
	if err != nil {
		return nil, err
	}
	op := &Op{
		schema: schema,
		attrs:  make(map[string]*Attribute, len(schema.Attrs)),
	}
	for name, spec := range schema.Attrs {
		op.attrs[name] = &Attribute{
			Name:     name,
			Type:     spec.Type,
			Default:  spec.Default,
			Required: spec.Required,
			Options:  spec.Options,
		}
	}
	if err := op.UpdateAttributes(attrValues); err != nil {
		return nil, err
	}
	return op, nil
}

// MustNewOp is NewOp for construction sites that cannot fail (tests,
// hard-coded rewrite helpers). It panics on error.
func MustNewOp(kind string, version int, attrValues map[string]any) *Op {
	op, err := NewOp(kind, version, attrValues)
	if err != nil {
		panic(err)
	}
	return op
}

// Kind returns the operation kind tag.
func (op *Op) Kind() string { return op.schema.Kind }

// Version returns the resolved schema version.
func (op *Op) Version() int { return op.schema.Version }

// Caps returns the declared capability set.
func (op *Op) Caps() Capabilities { return op.schema.Caps }

// Schema returns the resolved schema.
func (op *Op) Schema() *Schema { return op.schema }

// UpdateAttributes merges the given values into the attribute set, with
// per-attribute coercion and options validation. Unknown names follow the
// schema's AllowUnknownAttrs policy.
func (op *Op) UpdateAttributes(attrValues map[string]any) error {
	for name, v := range attrValues {
		attr, known := op.attrs[name]
		if !known {
			if !op.schema.AllowUnknownAttrs {
				return attributeErrorf("kind %q (version %d) does not declare attribute %q",
					op.Kind(), op.Version(), name)
			}
			if op.userData == nil {
				op.userData = make(map[string]any)
			}
			op.userData[name] = v
			continue
		}
		if err := attr.Set(v); err != nil {
			return err
		}
	}
	return nil
}

// CheckRequired reports nil iff every required attribute has a value and
// every present value satisfies its options constraint. It is the
// post-construction and post-mutation invariant check.
func (op *Op) CheckRequired() error {
	names := make([]string, 0, len(op.attrs))
	for name := range op.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attr := op.attrs[name]
		if attr.Required && attr.Value() == nil {
			return attributeErrorf("kind %q: required attribute %q has no value", op.Kind(), name)
		}
		if v := attr.Value(); v != nil {
			if err := attr.checkOptions(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Attr returns the current value (or default) of an attribute and whether
// the attribute is declared by the schema. A declared attribute with neither
// value nor default yields (nil, true) -- the well-defined "absent" result.
func (op *Op) Attr(name string) (any, bool) {
	attr, ok := op.attrs[name]
	if !ok {
		return nil, false
	}
	return attr.Value(), true
}

// SetAttr sets one declared attribute, with coercion and options validation.
func (op *Op) SetAttr(name string, v any) error {
	attr, ok := op.attrs[name]
	if !ok {
		return attributeErrorf("kind %q does not declare attribute %q", op.Kind(), name)
	}
	return attr.Set(v)
}

// AttrIntOr returns an int attribute, or def when absent.
func (op *Op) AttrIntOr(name string, def int) int {
	if v, ok := op.Attr(name); ok && v != nil {
		if i, err := coerceInt(v); err == nil {
			return i
		}
	}
	return def
}

// AttrFloatOr returns a float attribute, or def when absent.
func (op *Op) AttrFloatOr(name string, def float64) float64 {
	if v, ok := op.Attr(name); ok && v != nil {
		if f, err := coerceFloat(v); err == nil {
			return f
		}
	}
	return def
}

// AttrStringOr returns a string attribute, or def when absent.
func (op *Op) AttrStringOr(name, def string) string {
	if v, ok := op.Attr(name); ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// AttrInts returns an ints attribute, or nil when absent.
func (op *Op) AttrInts(name string) []int {
	if v, ok := op.Attr(name); ok && v != nil {
		if ints, ok := v.([]int); ok {
			return ints
		}
	}
	return nil
}

// AttrTensor returns a tensor attribute, or nil when absent.
func (op *Op) AttrTensor(name string) *tensors.Tensor {
	if v, ok := op.Attr(name); ok && v != nil {
		if t, ok := v.(*tensors.Tensor); ok {
			return t
		}
	}
	return nil
}

// Weights returns the weights tensor of a weight-bearing kind, nil otherwise.
func (op *Op) Weights() *tensors.Tensor {
	if !op.schema.Caps.HasWeights {
		return nil
	}
	return op.AttrTensor("weights")
}

// Biases returns the biases tensor of a bias-bearing kind, nil otherwise.
func (op *Op) Biases() *tensors.Tensor {
	if !op.schema.Caps.HasBiases {
		return nil
	}
	return op.AttrTensor("biases")
}

// CopiedAttrs returns an independent snapshot of all attribute values that
// are currently present (set or defaulted), plus user-defined data. Rewrite
// passes use it to carry attributes over a ReplaceOp.
func (op *Op) CopiedAttrs() map[string]any {
	out := make(map[string]any, len(op.attrs)+len(op.userData))
	for name, attr := range op.attrs {
		if v := attr.Value(); v != nil {
			out[name] = copyAttrValue(v)
		}
	}
	for name, v := range op.userData {
		out[name] = v
	}
	return out
}

// UserData returns attributes attached outside the schema (only possible for
// kinds with AllowUnknownAttrs). May be nil.
func (op *Op) UserData() map[string]any { return op.userData }

// clone returns a deep copy of the Op sharing the (immutable) schema.
func (op *Op) clone() *Op {
	c := &Op{
		schema: op.schema,
		attrs:  make(map[string]*Attribute, len(op.attrs)),
	}
	for name, attr := range op.attrs {
		c.attrs[name] = attr.clone()
	}
	if op.userData != nil {
		c.userData = make(map[string]any, len(op.userData))
		for k, v := range op.userData {
			c.userData[k] = v
		}
	}
	return c
}
