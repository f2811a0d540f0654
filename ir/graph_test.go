package ir

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodeAndEdgeKeys(t *testing.T) {
	g := NewGraph(FrameworkONNX)
	require.NoError(t, g.AddNode("a", nil))
	require.NoError(t, g.AddNode("b", nil))

	// Duplicate node name:
	err := g.AddNode("a", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))

	// Parallel edges get distinct auto-allocated keys.
	k0, err := g.AddEdge("a", "b", nil)
	require.NoError(t, err)
	k1, err := g.AddEdge("a", "b", &EdgeAttr{DstInPort: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, k0)
	assert.Equal(t, 1, k1)
	assert.Equal(t, 2, g.NumEdges())

	// Explicit keys must not collide.
	err = g.AddEdgeWithKey("a", "b", 1, &EdgeAttr{DstInPort: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
	require.NoError(t, g.AddEdgeWithKey("a", "b", 7, &EdgeAttr{DstInPort: 2}))
	assert.Equal(t, 3, len(g.EdgesBetween("a", "b")))

	// Absent endpoints are auto-created with no Op.
	_, err = g.AddEdge("a", "ghost", &EdgeAttr{DstInPort: 3})
	require.NoError(t, err)
	assert.True(t, g.HasNode("ghost"))
	assert.Nil(t, g.NodeOp("ghost"))
}

func TestSortedEdgesAndPorts(t *testing.T) {
	g := NewGraph(FrameworkNone)
	for _, name := range []string{"w", "x", "y", "z"} {
		require.NoError(t, g.AddNode(name, nil))
	}
	// Insert out of port order on purpose.
	require.NoError(t, g.AddEdgeWithKey("y", "z", 0, &EdgeAttr{DstInPort: 2}))
	require.NoError(t, g.AddEdgeWithKey("x", "z", 0, &EdgeAttr{DstInPort: 0}))
	require.NoError(t, g.AddEdgeWithKey("w", "z", 0, &EdgeAttr{DstInPort: 1}))
	require.NoError(t, g.AddEdgeWithKey("w", "z", 3, &EdgeAttr{DstInPort: 1}))

	edges, err := g.SortedInEdges("z")
	require.NoError(t, err)
	require.Len(t, edges, 4)
	assert.Equal(t, "x", edges[0].Src)
	assert.Equal(t, "w", edges[1].Src)
	assert.Equal(t, 0, edges[1].Key)
	assert.Equal(t, "w", edges[2].Src)
	assert.Equal(t, 3, edges[2].Key)
	assert.Equal(t, "y", edges[3].Src)

	ports, err := g.InPorts("z")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, ports)

	// Out-edge ordering follows (src_out_port, key) the same way.
	require.NoError(t, g.AddEdgeWithKey("z", "w", 5, &EdgeAttr{SrcOutPort: 1}))
	require.NoError(t, g.AddEdgeWithKey("z", "w", 2, &EdgeAttr{SrcOutPort: 0}))
	outEdges, err := g.SortedOutEdges("z")
	require.NoError(t, err)
	require.Len(t, outEdges, 2)
	assert.Equal(t, 2, outEdges[0].Key)
	assert.Equal(t, 5, outEdges[1].Key)

	// Not-found is an error, not a silent empty result.
	_, err = g.SortedInEdges("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
	_, err = g.SortedOutEdges("nope")
	require.Error(t, err)
}

func TestPortArityChecks(t *testing.T) {
	g := NewGraph(FrameworkONNX)
	require.NoError(t, g.AddNode("a", MustNewOp("Identity", 0, nil)))
	require.NoError(t, g.AddNode("b", MustNewOp("Add", 0, nil)))
	require.NoError(t, g.AddNode("c", MustNewOp("Concat", 0, map[string]any{"axis": 0})))

	// Single-output src only exposes port 0.
	_, err := g.AddEdge("a", "b", &EdgeAttr{SrcOutPort: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))

	// Fixed-arity dst rejects a second edge on an occupied input port.
	_, err = g.AddEdge("a", "b", &EdgeAttr{DstInPort: 0})
	require.NoError(t, err)
	_, err = g.AddEdge("a", "b", &EdgeAttr{DstInPort: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))

	// Variable-input kinds accept duplicate input ports.
	_, err = g.AddEdge("a", "c", &EdgeAttr{DstInPort: 0})
	require.NoError(t, err)
	_, err = g.AddEdge("b", "c", &EdgeAttr{DstInPort: 0})
	require.NoError(t, err)
}

func TestRemoveEdgeIsTolerant(t *testing.T) {
	g := NewGraph(FrameworkNone)
	require.NoError(t, g.AddNode("a", nil))
	require.NoError(t, g.AddNode("b", nil))
	key, err := g.AddEdge("a", "b", nil)
	require.NoError(t, err)
	g.Outputs = []string{"b"}

	// Removing the only in-edge of an output-listed node leaves Outputs alone.
	g.RemoveEdge("a", "b", key)
	assert.False(t, g.HasEdge("a", "b"))
	assert.Equal(t, []string{"b"}, g.Outputs)
	// Re-running the same removal (or removing never-existing edges) is fine.
	g.RemoveEdge("a", "b", key)
	g.RemoveEdge("no", "such", 42)

	err = g.RemoveNode("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
}

func TestRemoveNodeKeepsOutputs(t *testing.T) {
	g := NewGraph(FrameworkNone)
	require.NoError(t, g.AddNode("a", nil))
	require.NoError(t, g.AddNode("b", nil))
	_, err := g.AddEdge("a", "b", nil)
	require.NoError(t, err)
	g.Outputs = []string{"b"}

	require.NoError(t, g.RemoveNode("b"))
	assert.False(t, g.HasNode("b"))
	assert.Equal(t, 0, g.NumEdges())
	// Output bookkeeping belongs to the caller.
	assert.Equal(t, []string{"b"}, g.Outputs)
}

func TestHasPath(t *testing.T) {
	g := NewGraph(FrameworkNone)
	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}, {"a", "d"}} {
		_, err := g.AddEdge(pair[0], pair[1], nil)
		require.NoError(t, err)
	}
	assert.True(t, g.HasPath("a", "c"))
	assert.True(t, g.HasPath("a", "a"))
	assert.False(t, g.HasPath("c", "a"))
	assert.False(t, g.HasPath("d", "c"))
	assert.False(t, g.HasPath("a", "missing"))
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	g := NewGraph(FrameworkNone)
	// Two independent chains; ties must break on node name.
	for _, pair := range [][2]string{{"b1", "b2"}, {"a1", "a2"}, {"a2", "z"}, {"b2", "z"}} {
		_, err := g.AddEdge(pair[0], pair[1], nil)
		require.NoError(t, err)
	}
	order, err := g.TopologicalOrder(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "z"}, order)
}

func TestTopologicalOrderControlEdges(t *testing.T) {
	g := NewGraph(FrameworkNone)
	_, err := g.AddEdge("a", "b", nil)
	require.NoError(t, err)
	// A back-edge marked as control dependency must not read as a cycle.
	_, err = g.AddEdge("b", "a", &EdgeAttr{ControlDependency: true})
	require.NoError(t, err)

	order, err := g.TopologicalOrder(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)

	_, err = g.TopologicalOrder(false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
	assert.Contains(t, err.Error(), "cycle")
}

func TestClearRedundantNodes(t *testing.T) {
	g := NewGraph(FrameworkNone)
	for _, pair := range [][2]string{{"in", "mid"}, {"mid", "out"}, {"in", "dead1"}, {"dead1", "dead2"}} {
		_, err := g.AddEdge(pair[0], pair[1], nil)
		require.NoError(t, err)
	}

	// Without declared outputs the sweep is a no-op.
	assert.Nil(t, g.ClearRedundantNodes())
	assert.Equal(t, 5, g.NumNodes())

	g.Outputs = []string{"out"}
	removed := g.ClearRedundantNodes()
	assert.Equal(t, []string{"dead1", "dead2"}, removed)
	assert.Equal(t, []string{"in", "mid", "out"}, g.NodeNames())
	assert.Equal(t, []string{"out"}, g.Outputs)
}

func TestValidNodeName(t *testing.T) {
	g := NewGraph(FrameworkNone)
	assert.Equal(t, "conv", g.ValidNodeName("conv"))
	require.NoError(t, g.AddNode("conv", nil))
	require.NoError(t, g.AddNode("conv_1", nil))
	assert.Equal(t, "conv_2", g.ValidNodeName("conv"))
}

func TestRenameNode(t *testing.T) {
	g := NewGraph(FrameworkONNX)
	require.NoError(t, g.AddNode("old", MustNewOp("Identity", 0, nil)))
	require.NoError(t, g.AddNode("up", nil))
	require.NoError(t, g.AddNode("down", nil))
	_, err := g.AddEdge("up", "old", nil)
	require.NoError(t, err)
	_, err = g.AddEdge("old", "down", nil)
	require.NoError(t, err)
	g.Outputs = []string{"old"}
	g.DuplicateNames["old"] = "old:0"
	g.InputBindings["old"] = &Tensor{Dims: []int{1}, DType: dtypes.Float32}

	require.NoError(t, g.RenameNode("old", "new"))
	assert.False(t, g.HasNode("old"))
	assert.Equal(t, "Identity", g.NodeOp("new").Kind())
	assert.True(t, g.HasEdge("up", "new"))
	assert.True(t, g.HasEdge("new", "down"))
	assert.Equal(t, []string{"new"}, g.Outputs)
	assert.Equal(t, "old:0", g.DuplicateNames["new"])
	assert.NotNil(t, g.InputBindings["new"])

	// Renaming onto an existing name is rejected.
	err = g.RenameNode("new", "up")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
}

func TestReplaceOpValidates(t *testing.T) {
	g := NewGraph(FrameworkNone)
	require.NoError(t, g.AddNode("n", MustNewOp("Identity", 0, nil)))
	require.NoError(t, g.AddNode("up", nil))
	require.NoError(t, g.AddNode("down", nil))
	_, err := g.AddEdge("up", "n", nil)
	require.NoError(t, err)
	_, err = g.AddEdge("n", "down", nil)
	require.NoError(t, err)
	inBefore, err := g.SortedInEdges("n")
	require.NoError(t, err)
	outBefore, err := g.SortedOutEdges("n")
	require.NoError(t, err)

	// Constant without its required value attribute fails validation.
	err = g.ReplaceOp("n", MustNewOp("Constant", 0, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttribute))

	require.NoError(t, g.ReplaceOp("n", MustNewOp("Softmax", 0, nil)))
	assert.Equal(t, "Softmax", g.NodeOp("n").Kind())

	// Replacing the Op preserves the node's exact edge set.
	inAfter, err := g.SortedInEdges("n")
	require.NoError(t, err)
	outAfter, err := g.SortedOutEdges("n")
	require.NoError(t, err)
	assert.Equal(t, inBefore, inAfter)
	assert.Equal(t, outBefore, outAfter)
}
