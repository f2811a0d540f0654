package ir

import (
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InferOption configures an Infer run.
type InferOption func(*inferConfig)

type inferConfig struct {
	partial   bool
	evaluator Evaluator
}

// Partial makes Infer skip nodes whose inputs are not fully resolved instead
// of recording a diagnostic. Used mid-conversion, when parts of the graph are
// still being rewritten.
func Partial() InferOption {
	return func(c *inferConfig) { c.partial = true }
}

// WithEvaluator supplies the evaluator used to materialize constant values
// during inference. Without one, only shapes and dtypes propagate.
func WithEvaluator(ev Evaluator) InferOption {
	return func(c *inferConfig) { c.evaluator = ev }
}

// Diagnostic records one node-level inference failure.
type Diagnostic struct {
	Node string
	Err  error
}

// InferReport summarizes an Infer run: the per-node failures and, in partial
// mode, the nodes skipped for unresolved inputs.
type InferReport struct {
	Diagnostics []Diagnostic
	Skipped     []string
}

// OK reports whether the run completed without diagnostics.
func (r *InferReport) OK() bool { return len(r.Diagnostics) == 0 }

// Infer propagates shapes, dtypes, const-ness and (with an evaluator)
// constant values over the graph in topological order, writing the results
// onto the out-edges of each node. Input-like nodes are seeded from
// Graph.InputBindings.
//
// A node failure never aborts the run: it is recorded as a diagnostic (or, in
// partial mode when caused by unresolved inputs, as a skip) and unaffected
// graph regions keep processing. Only a cyclic graph fails outright.
//
// Produced output ports with no consumer get an anonymous sink node attached,
// so every produced tensor is observable on some edge.
func Infer(g *Graph, opts ...InferOption) (*InferReport, error) {
	var cfg inferConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	ev := cfg.evaluator
	if ev != nil {
		ev = MemoizedEvaluator(ev)
	}

	order, err := g.TopologicalOrder(true)
	if err != nil {
		return nil, err
	}

	report := &InferReport{}
	for _, name := range order {
		skipped, nodeErr := inferNode(g, name, ev)
		switch {
		case nodeErr != nil && cfg.partial && skipped:
			report.Skipped = append(report.Skipped, name)
		case nodeErr != nil:
			klog.Warningf("inference diagnostic at node %q: %v", name, nodeErr)
			report.Diagnostics = append(report.Diagnostics, Diagnostic{Node: name, Err: nodeErr})
		}
	}
	return report, nil
}

// inferNode processes one node. The skipped result distinguishes
// unresolved-input failures (skippable in partial mode) from real errors.
func inferNode(g *Graph, name string, ev Evaluator) (skipped bool, err error) {
	defer func() {
		if err != nil {
			err = errors.WithMessagef(err, "while inferring node %q", name)
		}
	}()

	op := g.NodeOp(name)
	if op == nil {
		return true, structuralErrorf("node has no op assigned")
	}

	if op.Caps().InputLike {
		bound, ok := g.InputBindings[name]
		if !ok || !bound.Resolved() {
			return true, inferenceErrorf("input node has no resolved binding")
		}
		return false, setOutTensors(g, name, op, []*Tensor{bound.Clone()}, bound.IsConst)
	}

	inputs, err := g.InputTensors(name)
	if err != nil {
		return false, err
	}
	for i, in := range inputs {
		if in == nil || !in.Resolved() {
			if !op.Caps().ConstLike {
				return true, inferenceErrorf("input %d unresolved", i)
			}
		}
	}

	infer := op.Schema().Infer
	if infer == nil {
		return true, inferenceErrorf("kind %q has no shape inference", op.Kind())
	}

	var outs []*Tensor
	panicErr := exceptions.TryCatch[error](func() {
		outs, err = infer(op, inputs, ev)
	})
	if panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return false, err
	}

	isConst := op.Caps().ConstLike
	if !isConst && len(inputs) > 0 {
		isConst = true
		for _, in := range inputs {
			if in == nil || !in.IsConst {
				isConst = false
				break
			}
		}
	}
	return false, setOutTensors(g, name, op, outs, isConst)
}

// setOutTensors distributes the inferred per-port tensors onto the node's
// out-edges, stamping const-ness explicitly so re-running inference after a
// rewrite overwrites stale results. Ports without a consumer get an anonymous
// sink attached.
func setOutTensors(g *Graph, name string, op *Op, outs []*Tensor, isConst bool) error {
	for _, out := range outs {
		out.IsConst = isConst
	}

	outEdges, err := g.SortedOutEdges(name)
	if err != nil {
		return err
	}
	consumed := make(map[int]bool, len(outs))
	for _, e := range outEdges {
		if e.Attr.ControlDependency {
			continue
		}
		port := e.Attr.SrcOutPort
		if port >= len(outs) {
			return inferenceErrorf("edge to %q consumes output port %d but kind %q produced %d output(s)",
				e.Dst, port, op.Kind(), len(outs))
		}
		e.Attr.Tensor = outs[port]
		consumed[port] = true
	}

	for port, out := range outs {
		if consumed[port] {
			continue
		}
		sink := g.ValidNodeName(sinkName(name, port))
		if err := g.AddNode(sink, MustNewOp("Out", 0, nil)); err != nil {
			return err
		}
		if err := g.AddEdgeWithKey(name, sink, 0, &EdgeAttr{SrcOutPort: port, Tensor: out}); err != nil {
			return err
		}
		klog.V(2).Infof("attached sink %q for unconsumed output port %d of %q", sink, port, name)
	}
	return nil
}

func sinkName(node string, port int) string {
	return node + "_out_port_" + strconv.Itoa(port)
}
