package ir

import (
	"fmt"
	"sort"

	"github.com/gomlx/gomlx/types"
	"k8s.io/klog/v2"
)

// HasPath reports whether dst is reachable from src over directed edges.
// Used to distinguish legitimate control-flow shortcuts from erroneous
// cycles introduced by a rewrite. Absent endpoints yield false.
func (g *Graph) HasPath(src, dst string) bool {
	if !g.HasNode(src) || !g.HasNode(dst) {
		return false
	}
	if src == dst {
		return true
	}
	visited := types.SetWith(src)
	frontier := []string{src}
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		for next := range g.out[name] {
			if next == dst {
				return true
			}
			if visited.Has(next) {
				continue
			}
			visited.Insert(next)
			frontier = append(frontier, next)
		}
	}
	return false
}

// TopologicalOrder returns the node names in an order where every node
// appears after all of its predecessors. With excludeControl set, edges
// marked as control dependencies do not constrain the order (they implement
// already-resolved control-flow constructs and would otherwise read as
// cycles). The order is deterministic: ties break on node name.
//
// A residual cycle over data edges is a structural error naming the involved
// nodes.
func (g *Graph) TopologicalOrder(excludeControl bool) ([]string, error) {
	countsEdge := func(attr *EdgeAttr) bool {
		return !excludeControl || !attr.ControlDependency
	}

	inDegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		inDegree[name] = 0
	}
	for dst, srcs := range g.in {
		for _, keyed := range srcs {
			for _, attr := range keyed {
				if countsEdge(attr) {
					inDegree[dst]++
				}
			}
		}
	}

	ready := make([]string, 0, len(g.nodes))
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unblocked []string
		for dst, keyed := range g.out[name] {
			for _, attr := range keyed {
				if !countsEdge(attr) {
					continue
				}
				inDegree[dst]--
				if inDegree[dst] == 0 {
					unblocked = append(unblocked, dst)
				}
			}
		}
		if len(unblocked) > 0 {
			sort.Strings(unblocked)
			ready = mergeSorted(ready, unblocked)
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for name, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, structuralErrorf("graph has a cycle over data edges involving %d node(s): %v",
			len(stuck), stuck)
	}
	return order, nil
}

// mergeSorted merges two ascending string slices.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// ClearRedundantNodes removes every node unreachable (over reversed edges)
// from the declared outputs and returns the removed names, sorted. The
// Outputs list itself is never modified.
//
// Graphs without declared outputs are left untouched: a sweep there would
// delete everything.
func (g *Graph) ClearRedundantNodes() []string {
	if len(g.Outputs) == 0 {
		return nil
	}
	keep := types.MakeSet[string]()
	var frontier []string
	for _, name := range g.Outputs {
		if g.HasNode(name) && !keep.Has(name) {
			keep.Insert(name)
			frontier = append(frontier, name)
		}
	}
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		for src := range g.in[name] {
			if !keep.Has(src) {
				keep.Insert(src)
				frontier = append(frontier, src)
			}
		}
	}

	var removed []string
	for _, name := range g.NodeNames() {
		if !keep.Has(name) {
			_ = g.RemoveNode(name)
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		klog.V(2).Infof("cleared %d redundant node(s) unreachable from outputs", len(removed))
	}
	return removed
}

// ValidNodeName returns base if unused, otherwise base with the first free
// numeric suffix appended. Mutation helpers use it to name inserted nodes.
func (g *Graph) ValidNodeName(base string) string {
	if !g.HasNode(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !g.HasNode(candidate) {
			return candidate
		}
	}
}

// RenameNode renames a node, carrying over its Op, all adjacent edges, and
// occurrences in Outputs, DuplicateNames and InputBindings. Renaming to an
// existing name is a structural error.
func (g *Graph) RenameNode(oldName, newName string) error {
	if !g.HasNode(oldName) {
		return structuralErrorf("node %q not found", oldName)
	}
	if oldName == newName {
		return nil
	}
	if g.HasNode(newName) {
		return structuralErrorf("node %q already exists", newName)
	}
	g.nodes[newName] = g.nodes[oldName]
	delete(g.nodes, oldName)

	if dsts, ok := g.out[oldName]; ok {
		g.out[newName] = dsts
		delete(g.out, oldName)
		for dst := range dsts {
			g.in[dst][newName] = g.in[dst][oldName]
			delete(g.in[dst], oldName)
		}
	}
	if srcs, ok := g.in[oldName]; ok {
		g.in[newName] = srcs
		delete(g.in, oldName)
		for src := range srcs {
			g.out[src][newName] = g.out[src][oldName]
			delete(g.out[src], oldName)
		}
	}

	for i, name := range g.Outputs {
		if name == oldName {
			g.Outputs[i] = newName
		}
	}
	if mapped, ok := g.DuplicateNames[oldName]; ok {
		delete(g.DuplicateNames, oldName)
		g.DuplicateNames[newName] = mapped
	}
	if t, ok := g.InputBindings[oldName]; ok {
		delete(g.InputBindings, oldName)
		g.InputBindings[newName] = t
	}
	return nil
}
