package ir

import (
	"reflect"
	"sort"
)

// Subgraph pattern matching. A pattern is a small graph of symbolic nodes
// (each constrained by kind set and attribute values) connected by edges that
// may pin source/destination ports. MatchedPatterns finds every occurrence in
// a concrete graph and returns symbol→node bindings.
//
// By default two symbols may bind the same concrete node: diamond-shaped
// rewrites (e.g. a Mul whose two inputs are the same tensor) are legitimate
// matches. Distinct() opts a pattern out of aliasing.
//
// The usual idiom is collect-then-mutate: gather all bindings first, then
// apply the rewrite per binding, revalidating each binding's nodes still
// exist (an earlier rewrite of the same pass may have consumed them).

// Binding maps pattern symbols to the concrete node names they matched.
type Binding map[string]string

type nodePattern struct {
	sym   string
	kinds []string
	attrs map[string]any
}

type edgePattern struct {
	src, dst   string
	srcOutPort int
	dstInPort  int
	hasSrcPort bool
	hasDstPort bool
}

// Pattern is a compiled subgraph pattern. Build one with NewPattern; a
// Pattern is immutable and safe to reuse across graphs.
type Pattern struct {
	nodes    map[string]*nodePattern
	order    []string // declaration order, for deterministic traversal
	edges    []edgePattern
	distinct bool
}

// NodeOption constrains one symbolic node of a pattern.
type NodeOption func(*nodePattern)

// WithKinds restricts the symbol to concrete nodes of one of the given kinds.
// Without it the symbol matches any node carrying an op.
func WithKinds(kinds ...string) NodeOption {
	return func(np *nodePattern) { np.kinds = append(np.kinds, kinds...) }
}

// WithAttr requires the matched node's attribute to equal the given value.
func WithAttr(name string, value any) NodeOption {
	return func(np *nodePattern) { np.attrs[name] = value }
}

// EdgeOption constrains one edge of a pattern.
type EdgeOption func(*edgePattern)

// SrcOutPort pins the edge's source output port.
func SrcOutPort(p int) EdgeOption {
	return func(ep *edgePattern) { ep.srcOutPort, ep.hasSrcPort = p, true }
}

// DstInPort pins the edge's destination input port.
func DstInPort(p int) EdgeOption {
	return func(ep *edgePattern) { ep.dstInPort, ep.hasDstPort = p, true }
}

// PatternBuilder accumulates a pattern definition. Errors (duplicate symbol,
// undeclared endpoint, ...) are collected and reported by Build, so call
// chains stay uncluttered.
type PatternBuilder struct {
	pattern Pattern
	errs    []error
}

// NewPattern starts a pattern definition.
func NewPattern() *PatternBuilder {
	return &PatternBuilder{pattern: Pattern{nodes: make(map[string]*nodePattern)}}
}

// Node declares a symbolic node.
func (b *PatternBuilder) Node(sym string, opts ...NodeOption) *PatternBuilder {
	if sym == "" {
		b.errs = append(b.errs, matchErrorf("empty node symbol"))
		return b
	}
	if _, dup := b.pattern.nodes[sym]; dup {
		b.errs = append(b.errs, matchErrorf("duplicate node symbol %q", sym))
		return b
	}
	np := &nodePattern{sym: sym, attrs: make(map[string]any)}
	for _, opt := range opts {
		opt(np)
	}
	b.pattern.nodes[sym] = np
	b.pattern.order = append(b.pattern.order, sym)
	return b
}

// Edge declares a directed edge between two previously declared symbols.
func (b *PatternBuilder) Edge(src, dst string, opts ...EdgeOption) *PatternBuilder {
	if _, ok := b.pattern.nodes[src]; !ok {
		b.errs = append(b.errs, matchErrorf("edge references undeclared symbol %q", src))
		return b
	}
	if _, ok := b.pattern.nodes[dst]; !ok {
		b.errs = append(b.errs, matchErrorf("edge references undeclared symbol %q", dst))
		return b
	}
	if src == dst {
		b.errs = append(b.errs, matchErrorf("self-edge on symbol %q", src))
		return b
	}
	ep := edgePattern{src: src, dst: dst}
	for _, opt := range opts {
		opt(&ep)
	}
	if (ep.hasSrcPort && ep.srcOutPort < 0) || (ep.hasDstPort && ep.dstInPort < 0) {
		b.errs = append(b.errs, matchErrorf("negative port on edge %s→%s", src, dst))
		return b
	}
	b.pattern.edges = append(b.pattern.edges, ep)
	return b
}

// Distinct requires every symbol to bind a different concrete node.
func (b *PatternBuilder) Distinct() *PatternBuilder {
	b.pattern.distinct = true
	return b
}

// Build compiles the pattern. Any malformation recorded during construction
// surfaces here as an ErrMatch.
func (b *PatternBuilder) Build() (*Pattern, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.pattern.order) == 0 {
		return nil, matchErrorf("pattern has no nodes")
	}
	p := b.pattern
	return &p, nil
}

// MatchedPatterns returns every binding of the pattern in the graph, in a
// deterministic order. An empty result means no occurrence.
func MatchedPatterns(g *Graph, p *Pattern) []Binding {
	// Candidate nodes per symbol, sorted for determinism. An empty candidate
	// set anywhere short-circuits the whole search.
	candidates := make(map[string][]string, len(p.nodes))
	for sym, np := range p.nodes {
		var names []string
		for _, name := range g.NodeNames() {
			if nodeMatches(g.NodeOp(name), np) {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return nil
		}
		candidates[sym] = names
	}

	// Anchor on the most selective symbol, then visit symbols connected to
	// the already-bound set before disconnected ones.
	anchor := p.order[0]
	for _, sym := range p.order {
		if len(candidates[sym]) < len(candidates[anchor]) {
			anchor = sym
		}
	}
	syms := p.traversalOrder(anchor)

	var results []Binding
	binding := make(Binding, len(syms))
	matchNext(g, p, syms, 0, candidates, binding, &results)
	return results
}

// traversalOrder orders the symbols starting at anchor, preferring symbols
// with a pattern edge into the already-placed prefix.
func (p *Pattern) traversalOrder(anchor string) []string {
	placed := map[string]bool{anchor: true}
	order := []string{anchor}
	for len(order) < len(p.order) {
		next := ""
		for _, e := range p.edges {
			switch {
			case placed[e.src] && !placed[e.dst]:
				next = e.dst
			case placed[e.dst] && !placed[e.src]:
				next = e.src
			}
			if next != "" {
				break
			}
		}
		if next == "" {
			// Disconnected component: fall back to declaration order.
			for _, sym := range p.order {
				if !placed[sym] {
					next = sym
					break
				}
			}
		}
		placed[next] = true
		order = append(order, next)
	}
	return order
}

func matchNext(g *Graph, p *Pattern, syms []string, idx int, candidates map[string][]string, binding Binding, results *[]Binding) {
	if idx == len(syms) {
		found := make(Binding, len(binding))
		for sym, name := range binding {
			found[sym] = name
		}
		*results = append(*results, found)
		return
	}
	sym := syms[idx]
	for _, name := range candidates[sym] {
		if p.distinct && boundTo(binding, name) {
			continue
		}
		binding[sym] = name
		if edgesSatisfied(g, p, binding, sym) {
			matchNext(g, p, syms, idx+1, candidates, binding, results)
		}
		delete(binding, sym)
	}
}

func boundTo(binding Binding, name string) bool {
	for _, bound := range binding {
		if bound == name {
			return true
		}
	}
	return false
}

// edgesSatisfied checks every pattern edge whose endpoints are both bound and
// involve the just-bound symbol.
func edgesSatisfied(g *Graph, p *Pattern, binding Binding, justBound string) bool {
	for _, e := range p.edges {
		if e.src != justBound && e.dst != justBound {
			continue
		}
		src, srcOK := binding[e.src]
		dst, dstOK := binding[e.dst]
		if !srcOK || !dstOK {
			continue
		}
		if !edgeExists(g, src, dst, e) {
			return false
		}
	}
	return true
}

func edgeExists(g *Graph, src, dst string, e edgePattern) bool {
	for _, concrete := range g.EdgesBetween(src, dst) {
		if e.hasSrcPort && concrete.Attr.SrcOutPort != e.srcOutPort {
			continue
		}
		if e.hasDstPort && concrete.Attr.DstInPort != e.dstInPort {
			continue
		}
		return true
	}
	return false
}

func nodeMatches(op *Op, np *nodePattern) bool {
	if op == nil {
		return false
	}
	if len(np.kinds) > 0 {
		found := false
		for _, kind := range np.kinds {
			if op.Kind() == kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for name, want := range np.attrs {
		got, ok := op.Attr(name)
		if !ok {
			return false
		}
		// The stored value is in canonical form; bring the caller's
		// constraint to the same form so e.g. []int64 pins match []int.
		if spec, declared := op.Schema().Attrs[name]; declared {
			if coerced, err := coerceAttrValue(want, spec.Type); err == nil {
				want = coerced
			}
		}
		if !attrValueEqual(got, want) {
			return false
		}
	}
	return true
}

// attrValueEqual compares an op's canonical attribute value against the
// caller-supplied constraint, tolerating the numeric type spread callers
// naturally write (3 vs int64(3), 0.5 vs float32(0.5)).
func attrValueEqual(got, want any) bool {
	if gi, err := coerceInt(got); err == nil {
		if wi, err := coerceInt(want); err == nil {
			return gi == wi
		}
	}
	if gf, err := coerceFloat(got); err == nil {
		if wf, err := coerceFloat(want); err == nil {
			return gf == wf
		}
	}
	return reflect.DeepEqual(got, want)
}

// SingleNodeMatcher returns the sorted names of all nodes whose kind is one
// of the given kinds. The degenerate but most common pattern.
func SingleNodeMatcher(g *Graph, kinds ...string) []string {
	var names []string
	for _, name := range g.NodeNames() {
		op := g.NodeOp(name)
		if op == nil {
			continue
		}
		for _, kind := range kinds {
			if op.Kind() == kind {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// TwoNodesMatcher matches every kindA node directly feeding a kindB node,
// binding them as "begin" and "end".
func TwoNodesMatcher(g *Graph, kindA, kindB string) []Binding {
	pattern, err := NewPattern().
		Node("begin", WithKinds(kindA)).
		Node("end", WithKinds(kindB)).
		Edge("begin", "end").
		Build()
	if err != nil {
		panic(err) // static pattern, cannot fail
	}
	return MatchedPatterns(g, pattern)
}
