package ir

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/gomlx/gomlx/types/tensors"
)

// Evaluator is the pluggable capability that executes an operation on
// concrete input tensors, used by shape/constant inference to materialize
// values. The core defines only this call contract; implementations live
// outside (see internal/simpleeval for the reference one used in tests).
//
// Eval receives the op kind, a snapshot of its attribute values, and one
// concrete tensor per input port. It returns one tensor per output port.
type Evaluator interface {
	Eval(kind string, attrs map[string]any, inputs []*tensors.Tensor) ([]*tensors.Tensor, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(kind string, attrs map[string]any, inputs []*tensors.Tensor) ([]*tensors.Tensor, error)

// Eval implements Evaluator.
func (f EvaluatorFunc) Eval(kind string, attrs map[string]any, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	return f(kind, attrs, inputs)
}

// MemoizedEvaluator wraps an evaluator with a cache keyed on a fingerprint
// of (kind, attributes, concrete constant inputs). Evaluator invocation is
// the only operation expected to dominate inference wall-clock time, and
// constant folding re-evaluates identical subexpressions across passes.
//
// The cache is not safe for concurrent use; graph mutation and inference are
// single-threaded by design.
func MemoizedEvaluator(ev Evaluator) Evaluator {
	return &memoEvaluator{wrapped: ev, cache: make(map[string][]*tensors.Tensor)}
}

type memoEvaluator struct {
	wrapped Evaluator
	cache   map[string][]*tensors.Tensor
}

func (m *memoEvaluator) Eval(kind string, attrs map[string]any, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	key := evalFingerprint(kind, attrs, inputs)
	if cached, ok := m.cache[key]; ok {
		return cached, nil
	}
	outs, err := m.wrapped.Eval(kind, attrs, inputs)
	if err != nil {
		return nil, err
	}
	m.cache[key] = outs
	return outs, nil
}

// evalFingerprint builds the memoization key: the kind, the attribute values
// (sorted by name), and per input its shape plus an FNV-1a digest of its raw
// bytes.
func evalFingerprint(kind string, attrs map[string]any, inputs []*tensors.Tensor) string {
	var sb strings.Builder
	sb.WriteString(kind)
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, ";%s=%v", name, attrs[name])
	}
	for _, t := range inputs {
		if t == nil {
			sb.WriteString("|nil")
			continue
		}
		h := fnv.New64a()
		t.ConstBytes(func(data []byte) {
			_, _ = h.Write(data)
		})
		fmt.Fprintf(&sb, "|%s:%x", t.Shape(), h.Sum64())
	}
	return sb.String()
}
