package ir

import (
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Built-in kind catalog. Loaders normalize every source format to these
// kinds (plus whatever they register themselves through RegisterSchema).
// Each schema couples the attribute declarations with the capability set and
// the kind's shape inference.

func init() {
	registerBuiltinSchemas()
}

func registerBuiltinSchemas() {
	// Graph plumbing kinds.
	RegisterSchema(&Schema{
		Kind: "Input", Version: 1,
		Attrs: map[string]AttrSpec{},
		Caps:  Capabilities{InputLike: true, OutputArity: SingleOutput},
	})
	RegisterSchema(&Schema{
		Kind: "Constant", Version: 1,
		Attrs: map[string]AttrSpec{
			"value": {Type: AttrTensor, Required: true},
		},
		Caps:  Capabilities{ConstLike: true, OutputArity: SingleOutput},
		Infer: inferConstant,
	})
	RegisterSchema(&Schema{
		Kind: "Out", Version: 1,
		Attrs: map[string]AttrSpec{},
		Caps:  Capabilities{OutputArity: SingleOutput},
		Infer: func(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
			// Anonymous sink: consumes one value, produces nothing.
			return nil, nil
		},
	})
	RegisterSchema(&Schema{
		Kind: "Identity", Version: 1,
		Attrs: map[string]AttrSpec{},
		Caps:  Capabilities{OutputArity: SingleOutput},
		Infer: inferPassthrough,
	})

	// Elementwise binary math.
	for _, kind := range []string{"Add", "Sub", "Mul"} {
		RegisterSchema(&Schema{
			Kind: kind, Version: 1,
			Attrs: map[string]AttrSpec{},
			Caps:  Capabilities{OutputArity: SingleOutput},
			Infer: inferElementwiseBinary,
		})
	}

	// Layout / dtype plumbing.
	RegisterSchema(&Schema{
		Kind: "Cast", Version: 1,
		Attrs: map[string]AttrSpec{
			"to": {Type: AttrString, Required: true},
		},
		Caps:  Capabilities{OutputArity: SingleOutput},
		Infer: inferCast,
	})
	RegisterSchema(&Schema{
		Kind: "Reshape", Version: 5,
		Attrs: map[string]AttrSpec{
			"allowzero": {Type: AttrInt, Default: 0},
		},
		Caps:  Capabilities{OutputArity: SingleOutput},
		Infer: inferReshape,
	})
	RegisterSchema(&Schema{
		Kind: "Transpose", Version: 1,
		Attrs: map[string]AttrSpec{
			"perm": {Type: AttrInts},
		},
		Caps:  Capabilities{OutputArity: SingleOutput},
		Infer: inferTranspose,
	})
	RegisterSchema(&Schema{
		Kind: "Concat", Version: 4,
		Attrs: map[string]AttrSpec{
			"axis": {Type: AttrInt, Required: true},
		},
		Caps:  Capabilities{HasAxis: true, VariableInputs: true, OutputArity: SingleOutput},
		Infer: inferConcat,
	})

	// Axis-bearing kinds. Softmax changed its default axis across versions,
	// which is what the version-resolution machinery exists for.
	RegisterSchema(&Schema{
		Kind: "Softmax", Version: 1,
		Attrs: map[string]AttrSpec{
			"axis": {Type: AttrInt, Default: 1},
		},
		Caps:  Capabilities{HasAxis: true, OutputArity: SingleOutput},
		Infer: inferPassthrough,
	})
	RegisterSchema(&Schema{
		Kind: "Softmax", Version: 11,
		Attrs: map[string]AttrSpec{
			"axis": {Type: AttrInt, Default: 1},
		},
		Caps:  Capabilities{HasAxis: true, OutputArity: SingleOutput},
		Infer: inferPassthrough,
	})
	RegisterSchema(&Schema{
		Kind: "Softmax", Version: 13,
		Attrs: map[string]AttrSpec{
			"axis": {Type: AttrInt, Default: -1},
		},
		Caps:  Capabilities{HasAxis: true, OutputArity: SingleOutput},
		Infer: inferPassthrough,
	})
	RegisterSchema(&Schema{
		Kind: "ReduceMean", Version: 1,
		Attrs: map[string]AttrSpec{
			"axes":     {Type: AttrInts},
			"keepdims": {Type: AttrInt, Default: 1},
		},
		Caps:  Capabilities{HasAxis: true, OutputArity: SingleOutput},
		Infer: inferReduce,
	})
	RegisterSchema(&Schema{
		Kind: "Split", Version: 2,
		Attrs: map[string]AttrSpec{
			"axis":        {Type: AttrInt, Default: 0},
			"split":       {Type: AttrInts},
			"num_outputs": {Type: AttrInt, Default: 2},
		},
		Caps:  Capabilities{HasAxis: true, OutputArity: MultipleOutputs},
		Infer: inferSplit,
	})

	// Weight-bearing kinds.
	RegisterSchema(&Schema{
		Kind: "FullyConnected", Version: 1,
		Attrs: map[string]AttrSpec{
			"weights":    {Type: AttrTensor, Required: true},
			"biases":     {Type: AttrTensor},
			"num_output": {Type: AttrInt},
		},
		Caps:  Capabilities{HasWeights: true, HasBiases: true, OutputArity: SingleOutput},
		Infer: inferFullyConnected,
	})
	convAttrs := func() map[string]AttrSpec {
		return map[string]AttrSpec{
			"auto_pad": {Type: AttrString, Default: AutoPadNotSet,
				Options: []any{AutoPadNotSet, AutoPadSameUpper, AutoPadSameLower, AutoPadValid}},
			"dilations":    {Type: AttrInts},
			"kernel_shape": {Type: AttrInts},
			"pads":         {Type: AttrInts},
			"strides":      {Type: AttrInts},
			"group":        {Type: AttrInt, Default: 1},
			"data_format": {Type: AttrString, Default: "NCHW",
				Options: []any{"NCHW", "NHWC"}},
			"weights":    {Type: AttrTensor},
			"biases":     {Type: AttrTensor},
			"num_output": {Type: AttrInt},
		}
	}
	// Conv v1 predates the ceil-mode era attributes; v11 is current.
	RegisterSchema(&Schema{
		Kind: "Conv", Version: 1,
		Attrs: convAttrs(),
		Caps: Capabilities{HasWeights: true, HasBiases: true, HasPaddingStrides: true,
			OutputArity: SingleOutput},
		Infer: inferConv,
	})
	RegisterSchema(&Schema{
		Kind: "Conv", Version: 11,
		Attrs: convAttrs(),
		Caps: Capabilities{HasWeights: true, HasBiases: true, HasPaddingStrides: true,
			OutputArity: SingleOutput},
		Infer: inferConv,
	})
	RegisterSchema(&Schema{
		Kind: "Pool", Version: 1,
		Attrs: map[string]AttrSpec{
			"method": {Type: AttrString, Required: true, Options: []any{"MAX", "AVG"}},
			"auto_pad": {Type: AttrString, Default: AutoPadNotSet,
				Options: []any{AutoPadNotSet, AutoPadSameUpper, AutoPadSameLower, AutoPadValid}},
			"dilations":    {Type: AttrInts},
			"kernel_shape": {Type: AttrInts, Required: true},
			"pads":         {Type: AttrInts},
			"strides":      {Type: AttrInts},
			"data_format": {Type: AttrString, Default: "NCHW",
				Options: []any{"NCHW", "NHWC"}},
		},
		Caps: Capabilities{HasMethod: true, HasPaddingStrides: true,
			OutputArity: SingleOutput},
		Infer: inferPool,
	})
}

// --- Inference implementations ---

func inferConstant(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	value := op.AttrTensor("value")
	if value == nil {
		return nil, inferenceErrorf("Constant without a value attribute")
	}
	return []*Tensor{NewConstTensor(value)}, nil
}

func inferPassthrough(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, inferenceErrorf("%s requires one input", op.Kind())
	}
	out := inputs[0].Clone()
	// Shape-preserving kinds that don't change values keep the value and its
	// range; Softmax and friends produce different values, so only Identity
	// carries them through.
	if op.Kind() != "Identity" {
		out.Value = nil
		out.MinMax = nil
	}
	return []*Tensor{out}, nil
}

func inferElementwiseBinary(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) != 2 || inputs[0] == nil || inputs[1] == nil {
		return nil, inferenceErrorf("%s requires exactly 2 inputs, got %d", op.Kind(), len(inputs))
	}
	a, b := inputs[0], inputs[1]
	if a.DType != b.DType {
		return nil, inferenceErrorf("%s: dtype mismatch %s vs %s", op.Kind(), a.DType, b.DType)
	}
	dims, err := BroadcastShape(a.ShapeDims(), b.ShapeDims())
	if err != nil {
		return nil, err
	}
	out := &Tensor{Dims: dims, DType: a.DType}
	if err := maybeFold(op, []*Tensor{a, b}, ev, nil, out); err != nil {
		return nil, err
	}
	return []*Tensor{out}, nil
}

func inferCast(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, inferenceErrorf("Cast requires exactly 1 input")
	}
	target, err := DTypeFromString(op.AttrStringOr("to", ""))
	if err != nil {
		return nil, attributeErrorf("Cast: %v", err)
	}
	in := inputs[0]
	out := &Tensor{Dims: append([]int{}, in.ShapeDims()...), DType: target}
	if err := maybeFold(op, []*Tensor{in}, ev, nil, out); err != nil {
		return nil, err
	}
	return []*Tensor{out}, nil
}

func inferReshape(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) != 2 || inputs[0] == nil || inputs[1] == nil {
		return nil, inferenceErrorf("Reshape requires data and shape inputs")
	}
	data, shapeIn := inputs[0], inputs[1]
	if shapeIn.Value == nil {
		return nil, inferenceErrorf("Reshape: shape input is not a constant value")
	}
	target, err := intsFromTensor(shapeIn.Value)
	if err != nil {
		return nil, inferenceErrorf("Reshape: %v", err)
	}
	dims, err := resolveReshapeDims(data.ShapeDims(), target, op.AttrIntOr("allowzero", 0) != 0)
	if err != nil {
		return nil, err
	}
	out := &Tensor{Dims: dims, DType: data.DType, MinMax: append([]float32{}, data.MinMax...)}
	extra := map[string]any{"shape": dims}
	if err := maybeFold(op, []*Tensor{data}, ev, extra, out); err != nil {
		return nil, err
	}
	return []*Tensor{out}, nil
}

// resolveReshapeDims resolves 0 (copy from input, unless allowZero) and a
// single -1 (inferred) in a reshape target.
func resolveReshapeDims(inDims, target []int, allowZero bool) ([]int, error) {
	inSize := 1
	for _, d := range inDims {
		inSize *= d
	}
	dims := make([]int, len(target))
	inferred := -1
	known := 1
	for i, d := range target {
		switch {
		case d == 0 && !allowZero:
			if i >= len(inDims) {
				return nil, inferenceErrorf("Reshape: dimension 0 at axis %d has no input counterpart", i)
			}
			dims[i] = inDims[i]
			known *= dims[i]
		case d == -1:
			if inferred >= 0 {
				return nil, inferenceErrorf("Reshape: more than one -1 in target shape %v", target)
			}
			inferred = i
		default:
			dims[i] = d
			known *= d
		}
	}
	if inferred >= 0 {
		if known == 0 || inSize%known != 0 {
			return nil, inferenceErrorf("Reshape: cannot infer -1 for input size %d and target %v", inSize, target)
		}
		dims[inferred] = inSize / known
	}
	return dims, nil
}

func inferTranspose(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, inferenceErrorf("Transpose requires exactly 1 input")
	}
	in := inputs[0]
	dims := in.ShapeDims()
	perm := op.AttrInts("perm")
	if perm == nil {
		// Default: reverse all axes.
		perm = make([]int, len(dims))
		for i := range perm {
			perm[i] = len(dims) - 1 - i
		}
	}
	if len(perm) != len(dims) {
		return nil, inferenceErrorf("Transpose: perm %v does not match input rank %d", perm, len(dims))
	}
	out := &Tensor{Dims: PermuteDims(dims, perm), DType: in.DType, MinMax: append([]float32{}, in.MinMax...)}
	extra := map[string]any{"perm": perm}
	if err := maybeFold(op, []*Tensor{in}, ev, extra, out); err != nil {
		return nil, err
	}
	return []*Tensor{out}, nil
}

func inferConcat(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) == 0 {
		return nil, inferenceErrorf("Concat requires at least 1 input")
	}
	first := inputs[0]
	rank := len(first.ShapeDims())
	axis, err := NormalizeAxis(op.AttrIntOr("axis", 0), rank)
	if err != nil {
		return nil, err
	}
	dims := append([]int{}, first.ShapeDims()...)
	for i, in := range inputs[1:] {
		inDims := in.ShapeDims()
		if len(inDims) != rank {
			return nil, inferenceErrorf("Concat: input %d rank %d != rank %d", i+1, len(inDims), rank)
		}
		for a := 0; a < rank; a++ {
			if a == axis {
				dims[a] += inDims[a]
			} else if inDims[a] != dims[a] {
				return nil, inferenceErrorf("Concat: input %d dim %d is %d, want %d", i+1, a, inDims[a], dims[a])
			}
		}
	}
	out := &Tensor{Dims: dims, DType: first.DType}
	extra := map[string]any{"axis": axis}
	if err := maybeFold(op, inputs, ev, extra, out); err != nil {
		return nil, err
	}
	return []*Tensor{out}, nil
}

func inferReduce(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, inferenceErrorf("%s requires one input", op.Kind())
	}
	in := inputs[0]
	inDims := in.ShapeDims()
	axes := op.AttrInts("axes")
	if axes == nil {
		axes = make([]int, len(inDims))
		for i := range axes {
			axes[i] = i
		}
	}
	axes, err := NormalizeAxes(axes, len(inDims))
	if err != nil {
		return nil, err
	}
	keepDims := op.AttrIntOr("keepdims", 1) != 0
	reduced := make(map[int]bool, len(axes))
	for _, a := range axes {
		reduced[a] = true
	}
	var dims []int
	for i, d := range inDims {
		switch {
		case !reduced[i]:
			dims = append(dims, d)
		case keepDims:
			dims = append(dims, 1)
		}
	}
	if dims == nil {
		dims = []int{}
	}
	return []*Tensor{{Dims: dims, DType: in.DType}}, nil
}

func inferSplit(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, inferenceErrorf("Split requires exactly 1 input")
	}
	in := inputs[0]
	inDims := in.ShapeDims()
	axis, err := NormalizeAxis(op.AttrIntOr("axis", 0), len(inDims))
	if err != nil {
		return nil, err
	}
	split := op.AttrInts("split")
	if split == nil {
		n := op.AttrIntOr("num_outputs", 2)
		if n <= 0 || inDims[axis]%n != 0 {
			return nil, inferenceErrorf("Split: cannot split dim %d into %d equal parts", inDims[axis], n)
		}
		split = make([]int, n)
		for i := range split {
			split[i] = inDims[axis] / n
		}
	}
	total := 0
	for _, s := range split {
		total += s
	}
	if total != inDims[axis] {
		return nil, inferenceErrorf("Split: sizes %v don't sum to dim %d", split, inDims[axis])
	}
	outs := make([]*Tensor, len(split))
	for i, s := range split {
		dims := append([]int{}, inDims...)
		dims[axis] = s
		outs[i] = &Tensor{Dims: dims, DType: in.DType}
	}
	return outs, nil
}

func inferFullyConnected(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, inferenceErrorf("FullyConnected requires one input")
	}
	in := inputs[0]
	numOutput := op.AttrIntOr("num_output", 0)
	if numOutput == 0 {
		if w := op.Weights(); w != nil {
			numOutput = w.Shape().Dimensions[0]
		} else if b := op.Biases(); b != nil {
			numOutput = b.Shape().Dimensions[0]
		} else {
			return nil, inferenceErrorf("FullyConnected: num_output unknown and no weights/biases to derive it from")
		}
	}
	inDims := in.ShapeDims()
	if len(inDims) < 1 {
		return nil, inferenceErrorf("FullyConnected: scalar input")
	}
	return []*Tensor{{Dims: []int{inDims[0], numOutput}, DType: in.DType}}, nil
}

func inferConv(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	return inferSpatial(op, inputs, true)
}

func inferPool(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error) {
	return inferSpatial(op, inputs, false)
}

// inferSpatial handles the shared geometry of padding/stride-bearing kinds.
// Convolutions replace the channel dimension with num_output; pooling keeps
// the input channels.
func inferSpatial(op *Op, inputs []*Tensor, isConv bool) ([]*Tensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, inferenceErrorf("%s requires one input", op.Kind())
	}
	in := inputs[0]
	inDims := in.ShapeDims()
	if len(inDims) < 3 {
		return nil, inferenceErrorf("%s: input rank %d too small for a spatial kind", op.Kind(), len(inDims))
	}
	nhwc := op.AttrStringOr("data_format", "NCHW") == "NHWC"
	var spatial []int
	if nhwc {
		spatial = inDims[1 : len(inDims)-1]
	} else {
		spatial = inDims[2:]
	}

	kernel := op.AttrInts("kernel_shape")
	if kernel == nil && isConv {
		if w := op.Weights(); w != nil && len(w.Shape().Dimensions) == len(inDims) {
			kernel = w.Shape().Dimensions[2:]
		}
	}
	if len(kernel) != len(spatial) {
		return nil, attributeErrorf("%s: kernel_shape %v does not cover %d spatial dims", op.Kind(), kernel, len(spatial))
	}
	strides := op.AttrInts("strides")
	if strides == nil {
		strides = make([]int, len(spatial))
		for i := range strides {
			strides[i] = 1
		}
	}
	dilations := op.AttrInts("dilations")
	autoPad := op.AttrStringOr("auto_pad", AutoPadNotSet)
	pads := op.AttrInts("pads")

	outSpatial := CalcConvOutShape(spatial, pads, strides, kernel, autoPad, dilations)

	channels := 0
	if isConv {
		numOutput := op.AttrIntOr("num_output", 0)
		if numOutput == 0 {
			if w := op.Weights(); w != nil {
				numOutput = w.Shape().Dimensions[0]
			} else {
				return nil, inferenceErrorf("Conv: num_output unknown and no weights to derive it from")
			}
		}
		channels = numOutput
	} else if nhwc {
		channels = inDims[len(inDims)-1]
	} else {
		channels = inDims[1]
	}

	dims := make([]int, 0, len(inDims))
	dims = append(dims, inDims[0])
	if nhwc {
		dims = append(dims, outSpatial...)
		dims = append(dims, channels)
	} else {
		dims = append(dims, channels)
		dims = append(dims, outSpatial...)
	}
	return []*Tensor{{Dims: dims, DType: in.DType}}, nil
}

// maybeFold evaluates the op on its concrete inputs when they are all
// materialized and an evaluator is available, writing the value into out.
// extra overlays resolved attribute values (e.g. a reshape's target) on the
// fingerprinted attribute snapshot.
func maybeFold(op *Op, inputs []*Tensor, ev Evaluator, extra map[string]any, out *Tensor) error {
	if ev == nil {
		return nil
	}
	values := make([]*tensors.Tensor, len(inputs))
	for i, in := range inputs {
		if in.Value == nil {
			return nil
		}
		values[i] = in.Value
	}
	attrs := op.CopiedAttrs()
	for k, v := range extra {
		attrs[k] = v
	}
	results, err := ev.Eval(op.Kind(), attrs, values)
	if err != nil {
		return inferenceErrorf("evaluator failed for kind %q: %v", op.Kind(), err)
	}
	if len(results) != 1 {
		return inferenceErrorf("evaluator for kind %q returned %d outputs, want 1", op.Kind(), len(results))
	}
	out.SetValue(results[0])
	return nil
}

// intsFromTensor reads an integer-typed tensor as a []int (e.g. a reshape
// target or axes list materialized on an edge).
func intsFromTensor(t *tensors.Tensor) ([]int, error) {
	shape := t.Shape()
	if len(shape.Dimensions) > 1 {
		return nil, inferenceErrorf("expected a scalar or vector of ints, got shape %s", shape)
	}
	var out []int
	switch shape.DType {
	case dtypes.Int64:
		tensors.ConstFlatData(t, func(data []int64) {
			out = make([]int, len(data))
			for i, v := range data {
				out[i] = int(v)
			}
		})
	case dtypes.Int32:
		tensors.ConstFlatData(t, func(data []int32) {
			out = make([]int, len(data))
			for i, v := range data {
				out[i] = int(v)
			}
		})
	default:
		return nil, inferenceErrorf("expected an integer tensor, got dtype %s", shape.DType)
	}
	return out, nil
}
