// Package ir implements the unified graph intermediate representation that
// neural-network model converters lower their source formats into, and the
// core machinery every conversion pass depends on:
//
//   - the Graph store: a directed multigraph of named nodes and keyed
//     parallel edges carrying per-edge tensor metadata (see Graph, Tensor);
//   - the Op attribute model: each node holds exactly one polymorphic,
//     schema-validated, capability-polymorphic Op value (see Op, Schema,
//     Capabilities);
//   - the declarative subgraph pattern matcher used to locate rewrite sites
//     (see NewPattern, MatchedPatterns);
//   - the shape/tensor propagation scheduler that re-establishes tensor
//     metadata after every batch of rewrites (see Infer).
//
// Format loaders populate a Graph, rewrite passes alternate between querying
// the matcher and mutating the store (AddEdge, ReplaceOp and the Insert*
// helpers), Infer re-derives shapes/dtypes/const-ness, and a serializer reads
// the final store through the sorted-edge traversal API. Loaders, passes and
// serializers are client code and live outside this package.
//
// Execution is single-threaded and synchronous: graph mutation and inference
// never interleave on the same Graph. The idiom for passes is "collect all
// matches, then mutate" -- the matcher returns complete result sets so the
// same rewrite can be applied to every occurrence without iterator
// invalidation.
package ir

// Framework identifies the source format a graph was loaded from.
type Framework int

const (
	FrameworkNone Framework = iota
	FrameworkONNX
	FrameworkTFLite
	FrameworkTensorFlow
	FrameworkCaffe
	FrameworkTorch
)

// String returns the framework name.
func (f Framework) String() string {
	switch f {
	case FrameworkONNX:
		return "onnx"
	case FrameworkTFLite:
		return "tflite"
	case FrameworkTensorFlow:
		return "tensorflow"
	case FrameworkCaffe:
		return "caffe"
	case FrameworkTorch:
		return "torch"
	default:
		return "none"
	}
}
