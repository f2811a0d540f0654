package ir

import (
	"github.com/gomlx/gomlx/types/tensors"
)

// Graph mutation helpers: the splice/insert/remove operations rewrite passes
// are built from. They all allocate collision-free node names through
// ValidNodeName and return the name actually used.

// InsertConstant adds a Constant node holding value and connects it to dst at
// the given input port. name is a base name, uniquified if taken.
func InsertConstant(g *Graph, name string, value *tensors.Tensor, dst string, inPort int) (string, error) {
	if !g.HasNode(dst) {
		return "", structuralErrorf("node %q not found", dst)
	}
	op, err := NewOp("Constant", 0, map[string]any{"value": value})
	if err != nil {
		return "", err
	}
	constName := g.ValidNodeName(name)
	if err := g.AddNode(constName, op); err != nil {
		return "", err
	}
	attr := &EdgeAttr{DstInPort: inPort, Tensor: NewConstTensor(value)}
	if _, err := g.AddEdge(constName, dst, attr); err != nil {
		_ = g.RemoveNode(constName)
		return "", err
	}
	return constName, nil
}

// InsertReshape splices a Reshape node into the edge (src, dst, key),
// reshaping to dims. The original edge's ports are preserved on the outer
// ends; a shape constant is attached as the reshape's second input.
func InsertReshape(g *Graph, src, dst string, key int, dims []int) (string, error) {
	return spliceUnary(g, src, dst, key, src+"_post_reshape", func(g *Graph, name string) error {
		return connectReshapeShape(g, name, dims)
	}, func() (*Op, error) {
		return NewOp("Reshape", 0, nil)
	})
}

// InsertReshapeAfter reroutes every consumer of node's given output port
// through a new Reshape node, reshaping to dims. Useful when a rewrite
// changes a node's output layout and all consumers must see the old one.
func InsertReshapeAfter(g *Graph, node string, outPort int, dims []int) (string, error) {
	if !g.HasNode(node) {
		return "", structuralErrorf("node %q not found", node)
	}
	op, err := NewOp("Reshape", 0, nil)
	if err != nil {
		return "", err
	}
	name := g.ValidNodeName(node + "_post_reshape")
	if err := g.AddNode(name, op); err != nil {
		return "", err
	}

	outEdges, err := g.SortedOutEdges(node)
	if err != nil {
		return "", err
	}
	for _, e := range outEdges {
		if e.Attr.ControlDependency || e.Attr.SrcOutPort != outPort {
			continue
		}
		g.RemoveEdge(e.Src, e.Dst, e.Key)
		if _, err := g.AddEdge(name, e.Dst, &EdgeAttr{DstInPort: e.Attr.DstInPort}); err != nil {
			return "", err
		}
	}
	if _, err := g.AddEdge(node, name, &EdgeAttr{SrcOutPort: outPort}); err != nil {
		return "", err
	}
	if err := connectReshapeShape(g, name, dims); err != nil {
		return "", err
	}
	return name, nil
}

// InsertTranspose splices a Transpose node with the given permutation into
// the edge (src, dst, key).
func InsertTranspose(g *Graph, src, dst string, key int, perm []int) (string, error) {
	return spliceUnary(g, src, dst, key, src+"_post_transpose", nil, func() (*Op, error) {
		return NewOp("Transpose", 0, map[string]any{"perm": perm})
	})
}

// InsertCast splices a Cast node to the given dtype into the edge
// (src, dst, key).
func InsertCast(g *Graph, src, dst string, key int, to string) (string, error) {
	if _, err := DTypeFromString(to); err != nil {
		return "", attributeErrorf("InsertCast: %v", err)
	}
	return spliceUnary(g, src, dst, key, src+"_post_cast", nil, func() (*Op, error) {
		return NewOp("Cast", 0, map[string]any{"to": to})
	})
}

// spliceUnary replaces the edge (src, dst, key) with src→mid→dst, where mid
// is a new node built by newOp. The original src_out_port survives on the
// src→mid edge and the original dst_in_port on the mid→dst edge. extraInputs,
// when set, wires any additional inputs of mid after the splice.
func spliceUnary(g *Graph, src, dst string, key int, baseName string,
	extraInputs func(*Graph, string) error, newOp func() (*Op, error)) (string, error) {
	edge, ok := g.out[src][dst][key]
	if !ok {
		return "", structuralErrorf("edge %s→%s key %d not found", src, dst, key)
	}
	op, err := newOp()
	if err != nil {
		return "", err
	}
	name := g.ValidNodeName(baseName)
	if err := g.AddNode(name, op); err != nil {
		return "", err
	}
	// A failed splice must leave the graph as it found it: drop the mid node
	// (and any partial wiring) and restore the original edge.
	undo := func() {
		_ = g.RemoveNode(name)
		g.insertEdge(src, dst, key, edge)
	}

	g.RemoveEdge(src, dst, key)
	if _, err := g.AddEdge(src, name, &EdgeAttr{SrcOutPort: edge.SrcOutPort, Tensor: edge.Tensor}); err != nil {
		undo()
		return "", err
	}
	if _, err := g.AddEdge(name, dst, &EdgeAttr{DstInPort: edge.DstInPort}); err != nil {
		undo()
		return "", err
	}
	if extraInputs != nil {
		if err := extraInputs(g, name); err != nil {
			undo()
			return "", err
		}
	}
	return name, nil
}

// connectReshapeShape attaches the target dims as an int64 shape constant on
// the reshape's second input port.
func connectReshapeShape(g *Graph, reshape string, dims []int) error {
	flat := make([]int64, len(dims))
	for i, d := range dims {
		flat[i] = int64(d)
	}
	shape := tensors.FromFlatDataAndDimensions(flat, len(flat))
	_, err := InsertConstant(g, reshape+"_shape", shape, reshape, 1)
	return err
}

// RemoveNodeSafely removes a node that has exactly one data in-edge,
// reconnecting its consumers to its producer. Output ports on the rerouted
// edges carry over from the removed node's in-edge source port; input ports
// on the consumer side are preserved. Control-dependency edges adjacent to
// the node are dropped.
//
// Removing a node with zero or multiple data in-edges is a structural error:
// there is no unambiguous reconnection.
func RemoveNodeSafely(g *Graph, name string) error {
	inEdges, err := g.SortedInEdges(name)
	if err != nil {
		return err
	}
	var dataIn []Edge
	for _, e := range inEdges {
		if !e.Attr.ControlDependency {
			dataIn = append(dataIn, e)
		}
	}
	if len(dataIn) != 1 {
		return structuralErrorf("cannot safely remove node %q with %d data input(s)", name, len(dataIn))
	}
	producer := dataIn[0]

	outEdges, err := g.SortedOutEdges(name)
	if err != nil {
		return err
	}
	for _, e := range outEdges {
		if e.Attr.ControlDependency {
			continue
		}
		// Detach before reattaching: the consumer's input port must be free
		// for the fixed-arity check on the new edge.
		g.RemoveEdge(e.Src, e.Dst, e.Key)
		attr := &EdgeAttr{
			SrcOutPort: producer.Attr.SrcOutPort,
			DstInPort:  e.Attr.DstInPort,
			Tensor:     producer.Attr.Tensor,
		}
		if _, err := g.AddEdge(producer.Src, e.Dst, attr); err != nil {
			return err
		}
	}
	return g.RemoveNode(name)
}
