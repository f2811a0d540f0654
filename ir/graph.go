package ir

import (
	"sort"
)

// Graph is the IR store: a directed multigraph of named nodes whose parallel
// edges are disambiguated by an integer key, plus the graph-level bookkeeping
// that loaders, passes and the serializer share.
//
// The bookkeeping fields are deliberately plain exported fields with a
// documented read/write contract: loaders write Framework, InputBindings and
// Outputs; passes may append to Outputs and DuplicateNames; the serializer
// only reads. The store itself never edits Outputs on a caller's behalf --
// removing a node or its edges does not remove its name from Outputs.
type Graph struct {
	// Framework records the source format identity.
	Framework Framework

	// Outputs is the ordered list of declared output node names.
	Outputs []string

	// DuplicateNames remaps graph node names to the de-duplicated names the
	// serializer must emit.
	DuplicateNames map[string]string

	// InputBindings maps input node names to their bound tensors. Infer uses
	// them to seed input-like nodes.
	InputBindings map[string]*Tensor

	nodes map[string]*Op
	// out[src][dst][key] and in[dst][src][key] hold the same *EdgeAttr.
	out map[string]map[string]map[int]*EdgeAttr
	in  map[string]map[string]map[int]*EdgeAttr
}

// EdgeAttr carries the attributes of one edge: the source output port, the
// destination input port, and optionally the tensor flowing over the edge.
type EdgeAttr struct {
	SrcOutPort int
	DstInPort  int
	Tensor     *Tensor

	// ControlDependency marks edges that implement an already-resolved
	// control-flow construct; they are excluded from topological ordering
	// and from inference input gathering.
	ControlDependency bool
}

// Edge identifies one edge of the multigraph: (Src, Dst, Key) plus its
// attributes. Key disambiguates parallel edges between the same node pair.
type Edge struct {
	Src, Dst string
	Key      int
	Attr     *EdgeAttr
}

// NewGraph creates an empty graph for the given source framework.
func NewGraph(fw Framework) *Graph {
	return &Graph{
		Framework:      fw,
		DuplicateNames: make(map[string]string),
		InputBindings:  make(map[string]*Tensor),
		nodes:          make(map[string]*Op),
		out:            make(map[string]map[string]map[int]*EdgeAttr),
		in:             make(map[string]map[string]map[int]*EdgeAttr),
	}
}

// HasNode reports whether a node with the given name exists.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// AddNode creates a node. The op may be nil and set later with ReplaceOp;
// nodes auto-created by AddEdge start out that way. Adding an existing name
// is a structural error.
func (g *Graph) AddNode(name string, op *Op) error {
	if g.HasNode(name) {
		return structuralErrorf("node %q already exists", name)
	}
	g.nodes[name] = op
	return nil
}

// ensureNode creates the node if absent (nil op). Used by AddEdge endpoint
// auto-creation, the one intentional exception to the not-found rule.
func (g *Graph) ensureNode(name string) {
	if !g.HasNode(name) {
		g.nodes[name] = nil
	}
}

// NodeOp returns the node's Op, or nil when the node is absent or has no Op
// assigned yet.
func (g *Graph) NodeOp(name string) *Op {
	return g.nodes[name]
}

// ReplaceOp swaps the node's Op for a new one while keeping the node's
// identity and all adjacent edges untouched. It re-validates the new Op's
// required attributes. This is the sole way a pass changes what a node
// computes.
func (g *Graph) ReplaceOp(name string, op *Op) error {
	if !g.HasNode(name) {
		return structuralErrorf("node %q not found", name)
	}
	if op != nil {
		if err := op.CheckRequired(); err != nil {
			return err
		}
	}
	g.nodes[name] = op
	return nil
}

// NodeNames returns all node names in sorted order.
func (g *Graph) NodeNames() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the edge count, parallel edges included.
func (g *Graph) NumEdges() (n int) {
	for _, dsts := range g.out {
		for _, keyed := range dsts {
			n += len(keyed)
		}
	}
	return
}

// AddEdge creates an edge src→dst and returns its key. Absent endpoints are
// auto-created (with nil Ops). The next unused key for (src, dst) is
// allocated automatically. A nil attr means ports (0, 0) and no tensor.
//
// If the dst node's op declares fixed input arity, a second edge landing on
// an occupied dst_in_port is a structural error; kinds with variable inputs
// are exempt. Similarly a src op with single output arity only accepts
// src_out_port 0.
func (g *Graph) AddEdge(src, dst string, attr *EdgeAttr) (int, error) {
	if attr == nil {
		attr = &EdgeAttr{}
	}
	key := 0
	for k := range g.out[src][dst] {
		if k >= key {
			key = k + 1
		}
	}
	if err := g.addEdgeWithKey(src, dst, key, attr); err != nil {
		return 0, err
	}
	return key, nil
}

// AddEdgeWithKey is AddEdge with an explicit key; a colliding key is a
// structural (duplicate edge) error.
func (g *Graph) AddEdgeWithKey(src, dst string, key int, attr *EdgeAttr) error {
	if attr == nil {
		attr = &EdgeAttr{}
	}
	if _, exists := g.out[src][dst][key]; exists {
		return structuralErrorf("duplicate edge %s→%s key %d", src, dst, key)
	}
	return g.addEdgeWithKey(src, dst, key, attr)
}

func (g *Graph) addEdgeWithKey(src, dst string, key int, attr *EdgeAttr) error {
	if err := g.checkPorts(src, dst, attr); err != nil {
		return err
	}
	g.insertEdge(src, dst, key, attr)
	return nil
}

// insertEdge writes the edge into both adjacency maps without port checks.
// Besides addEdgeWithKey it serves rollback paths re-inserting an edge that
// was already part of the graph.
func (g *Graph) insertEdge(src, dst string, key int, attr *EdgeAttr) {
	g.ensureNode(src)
	g.ensureNode(dst)
	if g.out[src] == nil {
		g.out[src] = make(map[string]map[int]*EdgeAttr)
	}
	if g.out[src][dst] == nil {
		g.out[src][dst] = make(map[int]*EdgeAttr)
	}
	if g.in[dst] == nil {
		g.in[dst] = make(map[string]map[int]*EdgeAttr)
	}
	if g.in[dst][src] == nil {
		g.in[dst][src] = make(map[int]*EdgeAttr)
	}
	g.out[src][dst][key] = attr
	g.in[dst][src][key] = attr
}

// checkPorts enforces the port invariants that can be checked against the
// endpoint Ops known at edge-creation time.
func (g *Graph) checkPorts(src, dst string, attr *EdgeAttr) error {
	if attr.SrcOutPort < 0 || attr.DstInPort < 0 {
		return structuralErrorf("edge %s→%s: negative port (%d, %d)", src, dst, attr.SrcOutPort, attr.DstInPort)
	}
	if srcOp := g.nodes[src]; srcOp != nil {
		if srcOp.Caps().OutputArity == SingleOutput && attr.SrcOutPort != 0 {
			return structuralErrorf("edge %s→%s: src kind %q has a single output port, got src_out_port %d",
				src, dst, srcOp.Kind(), attr.SrcOutPort)
		}
	}
	if dstOp := g.nodes[dst]; dstOp != nil && !dstOp.Caps().VariableInputs && !attr.ControlDependency {
		for _, keyed := range g.in[dst] {
			for _, existing := range keyed {
				if !existing.ControlDependency && existing.DstInPort == attr.DstInPort {
					return structuralErrorf("edge %s→%s: dst_in_port %d already connected and kind %q has fixed input arity",
						src, dst, attr.DstInPort, dstOp.Kind())
				}
			}
		}
	}
	return nil
}

// HasEdge reports whether any edge src→dst exists.
func (g *Graph) HasEdge(src, dst string) bool {
	return len(g.out[src][dst]) > 0
}

// RemoveEdge removes the edge (src, dst, key). Removing an absent edge is
// not an error: rewrite passes routinely re-run on already-rewritten graphs.
func (g *Graph) RemoveEdge(src, dst string, key int) {
	if keyed, ok := g.out[src][dst]; ok {
		delete(keyed, key)
		if len(keyed) == 0 {
			delete(g.out[src], dst)
		}
	}
	if keyed, ok := g.in[dst][src]; ok {
		delete(keyed, key)
		if len(keyed) == 0 {
			delete(g.in[dst], src)
		}
	}
}

// RemoveEdgesFrom removes each of the given edges; absent edges are skipped.
func (g *Graph) RemoveEdgesFrom(edges []Edge) {
	for _, e := range edges {
		g.RemoveEdge(e.Src, e.Dst, e.Key)
	}
}

// RemoveNode deletes the node and all adjacent edges. The node's name is NOT
// removed from Outputs -- output bookkeeping belongs to the caller.
func (g *Graph) RemoveNode(name string) error {
	if !g.HasNode(name) {
		return structuralErrorf("node %q not found", name)
	}
	for dst := range g.out[name] {
		delete(g.in[dst], name)
	}
	for src := range g.in[name] {
		delete(g.out[src], name)
	}
	delete(g.out, name)
	delete(g.in, name)
	delete(g.nodes, name)
	return nil
}

// SortedInEdges returns the in-edges of dst ordered ascending by
// (dst_in_port, key). The order is a contract: downstream logic treats input
// order as positional semantics (e.g. "the second input is the bias").
func (g *Graph) SortedInEdges(dst string) ([]Edge, error) {
	if !g.HasNode(dst) {
		return nil, structuralErrorf("node %q not found", dst)
	}
	var edges []Edge
	for src, keyed := range g.in[dst] {
		for key, attr := range keyed {
			edges = append(edges, Edge{Src: src, Dst: dst, Key: key, Attr: attr})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Attr.DstInPort != edges[j].Attr.DstInPort {
			return edges[i].Attr.DstInPort < edges[j].Attr.DstInPort
		}
		if edges[i].Key != edges[j].Key {
			return edges[i].Key < edges[j].Key
		}
		return edges[i].Src < edges[j].Src
	})
	return edges, nil
}

// SortedOutEdges returns the out-edges of src ordered ascending by
// (src_out_port, key).
func (g *Graph) SortedOutEdges(src string) ([]Edge, error) {
	if !g.HasNode(src) {
		return nil, structuralErrorf("node %q not found", src)
	}
	var edges []Edge
	for dst, keyed := range g.out[src] {
		for key, attr := range keyed {
			edges = append(edges, Edge{Src: src, Dst: dst, Key: key, Attr: attr})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Attr.SrcOutPort != edges[j].Attr.SrcOutPort {
			return edges[i].Attr.SrcOutPort < edges[j].Attr.SrcOutPort
		}
		if edges[i].Key != edges[j].Key {
			return edges[i].Key < edges[j].Key
		}
		return edges[i].Dst < edges[j].Dst
	})
	return edges, nil
}

// EdgesBetween returns the parallel edges src→dst sorted by key.
func (g *Graph) EdgesBetween(src, dst string) []Edge {
	keyed := g.out[src][dst]
	edges := make([]Edge, 0, len(keyed))
	for key, attr := range keyed {
		edges = append(edges, Edge{Src: src, Dst: dst, Key: key, Attr: attr})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key < edges[j].Key })
	return edges
}

// InPorts returns the sorted distinct dst_in_port values of the node's
// in-edges (control-dependency edges excluded).
func (g *Graph) InPorts(name string) ([]int, error) {
	edges, err := g.SortedInEdges(name)
	if err != nil {
		return nil, err
	}
	return distinctPorts(edges, func(e Edge) int { return e.Attr.DstInPort }), nil
}

// OutPorts returns the sorted distinct src_out_port values of the node's
// out-edges.
func (g *Graph) OutPorts(name string) ([]int, error) {
	edges, err := g.SortedOutEdges(name)
	if err != nil {
		return nil, err
	}
	return distinctPorts(edges, func(e Edge) int { return e.Attr.SrcOutPort }), nil
}

func distinctPorts(edges []Edge, port func(Edge) int) []int {
	seen := make(map[int]bool)
	var ports []int
	for _, e := range edges {
		if e.Attr.ControlDependency {
			continue
		}
		p := port(e)
		if !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	sort.Ints(ports)
	return ports
}

// InputTensors returns one tensor per in-edge of the node in sorted
// (dst_in_port, key) order, control-dependency edges excluded. Entries are
// nil where no tensor is attached.
func (g *Graph) InputTensors(name string) ([]*Tensor, error) {
	edges, err := g.SortedInEdges(name)
	if err != nil {
		return nil, err
	}
	var ts []*Tensor
	for _, e := range edges {
		if e.Attr.ControlDependency {
			continue
		}
		ts = append(ts, e.Attr.Tensor)
	}
	return ts, nil
}
