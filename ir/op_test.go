package ir

import (
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSchemaVersions(t *testing.T) {
	// Softmax is registered at versions 1, 11 and 13; the axis default flipped
	// at 13.
	op := MustNewOp("Softmax", 12, nil)
	assert.Equal(t, 11, op.Version())
	assert.Equal(t, 1, op.AttrIntOr("axis", 99))

	op = MustNewOp("Softmax", 5, nil)
	assert.Equal(t, 1, op.Version())

	op = MustNewOp("Softmax", 13, nil)
	assert.Equal(t, 13, op.Version())
	assert.Equal(t, -1, op.AttrIntOr("axis", 99))

	// version <= 0 selects the latest.
	op = MustNewOp("Softmax", 0, nil)
	assert.Equal(t, 13, op.Version())

	// Requesting a version older than the earliest registered one fails.
	_, err := NewOp("Reshape", 3, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersion))

	// Unregistered kind fails the same way.
	_, err = NewOp("NoSuchKind", 0, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersion))
}

func TestAttrCoercion(t *testing.T) {
	// Loaders hand over whatever scalar width the source format used; the
	// canonical forms are int, []int, float64, ...
	op := MustNewOp("Transpose", 0, map[string]any{"perm": []int64{1, 0}})
	assert.Equal(t, []int{1, 0}, op.AttrInts("perm"))

	op = MustNewOp("Softmax", 0, map[string]any{"axis": int64(2)})
	assert.Equal(t, 2, op.AttrIntOr("axis", 99))

	// A scalar promotes to a one-element list for list-typed attributes.
	op = MustNewOp("ReduceMean", 0, map[string]any{"axes": 1})
	assert.Equal(t, []int{1}, op.AttrInts("axes"))

	// Unsalvageable values are attribute errors.
	_, err := NewOp("Softmax", 0, map[string]any{"axis": "not-a-number"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttribute))
}

func TestAttrOptions(t *testing.T) {
	_, err := NewOp("Pool", 0, map[string]any{"method": "MEDIAN", "kernel_shape": []int{2, 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttribute))

	op, err := NewOp("Pool", 0, map[string]any{"method": "MAX", "kernel_shape": []int{2, 2}})
	require.NoError(t, err)
	assert.Equal(t, "MAX", op.AttrStringOr("method", ""))
	require.NoError(t, op.CheckRequired())
}

func TestCheckRequired(t *testing.T) {
	// Constant requires "value"; construction is allowed without it (loaders
	// fill attributes incrementally) but validation catches the gap.
	op := MustNewOp("Constant", 0, nil)
	err := op.CheckRequired()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttribute))

	require.NoError(t, op.SetAttr("value", tensors.FromValue([]float32{1, 2})))
	require.NoError(t, op.CheckRequired())
}

func TestUnknownAttributePolicy(t *testing.T) {
	// Default policy rejects undeclared attributes.
	_, err := NewOp("Add", 0, map[string]any{"fused_activation": "relu"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttribute))

	// A kind can opt into keeping them as user data.
	RegisterSchema(&Schema{
		Kind: "CustomLayer", Version: 1,
		Attrs:             map[string]AttrSpec{"alpha": {Type: AttrFloat, Default: 1.0}},
		Caps:              Capabilities{OutputArity: SingleOutput},
		AllowUnknownAttrs: true,
	})
	op, err := NewOp("CustomLayer", 0, map[string]any{"alpha": 0.5, "vendor_hint": "fast"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, op.AttrFloatOr("alpha", 0))
	assert.Equal(t, "fast", op.UserData()["vendor_hint"])
}

func TestCopiedAttrsIsIndependent(t *testing.T) {
	op := MustNewOp("Transpose", 0, map[string]any{"perm": []int{0, 2, 1}})
	snapshot := op.CopiedAttrs()
	perm := snapshot["perm"].([]int)
	perm[0] = 99
	assert.Equal(t, []int{0, 2, 1}, op.AttrInts("perm"))
}

func TestWeightsBiasesCapabilityGate(t *testing.T) {
	w := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	op := MustNewOp("FullyConnected", 0, map[string]any{"weights": w})
	assert.Same(t, w, op.Weights())
	assert.Nil(t, op.Biases())

	// Kinds without the capability answer nil even if an attribute of that
	// name were to exist.
	plain := MustNewOp("Add", 0, nil)
	assert.Nil(t, plain.Weights())
}

func TestAttrDefaultDoesNotCountAsValue(t *testing.T) {
	op := MustNewOp("Softmax", 0, nil)
	v, declared := op.Attr("axis")
	assert.True(t, declared)
	assert.Equal(t, -1, v)

	_, declared = op.Attr("undeclared")
	assert.False(t, declared)
}
