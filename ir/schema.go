package ir

import (
	"sort"
	"sync"
)

// AttrSpec declares one attribute in a schema: its type, default value,
// whether it is required and, optionally, the set of allowed values.
type AttrSpec struct {
	Type     AttrType
	Default  any
	Required bool
	Options  []any
}

// InferShapeFn is the per-kind shape/type inference. It receives the node's
// Op, one input Tensor per input port in ascending port order, and the
// evaluator capability (possibly nil) for numeric execution on concrete
// constant inputs. It returns one output Tensor per logical output port.
//
// Implementations may panic (exceptions.Panicf); the scheduler converts
// panics into inference diagnostics.
type InferShapeFn func(op *Op, inputs []*Tensor, ev Evaluator) ([]*Tensor, error)

// Schema describes one version of an operation kind: its attribute
// declarations, the capability set and the shape inference function.
type Schema struct {
	Kind    string
	Version int
	Attrs   map[string]AttrSpec
	Caps    Capabilities

	// AllowUnknownAttrs selects the policy for attributes absent from the
	// schema: attach them as user-defined data (true) or reject construction
	// with ErrAttribute (false, the default).
	AllowUnknownAttrs bool

	Infer InferShapeFn
}

var (
	schemaMu       sync.RWMutex
	schemaRegistry = map[string][]*Schema{} // kind -> schemas sorted by ascending version
)

// RegisterSchema adds a schema to the global registry. Registering the same
// (kind, version) twice replaces the earlier entry. Loaders and passes may
// register additional kinds beyond the built-in catalog.
func RegisterSchema(s *Schema) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	list := schemaRegistry[s.Kind]
	for i, existing := range list {
		if existing.Version == s.Version {
			list[i] = s
			return
		}
	}
	list = append(list, s)
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	schemaRegistry[s.Kind] = list
}

// ResolveSchema returns the schema for kind with the highest registered
// version ≤ the requested one. version <= 0 requests the latest.
// Returns ErrVersion when no registered version qualifies, and also for
// kinds that were never registered.
func ResolveSchema(kind string, version int) (*Schema, error) {
	schemaMu.RLock()
	defer schemaMu.RUnlock()
	list := schemaRegistry[kind]
	if len(list) == 0 {
		return nil, versionErrorf("no schema registered for kind %q", kind)
	}
	if version <= 0 {
		return list[len(list)-1], nil
	}
	var best *Schema
	for _, s := range list {
		if s.Version <= version {
			best = s
		}
	}
	if best == nil {
		return nil, versionErrorf("kind %q: no schema version <= %d (earliest is %d)",
			kind, version, list[0].Version)
	}
	return best, nil
}

// KnownKinds returns the sorted list of registered kinds.
func KnownKinds() []string {
	schemaMu.RLock()
	defer schemaMu.RUnlock()
	kinds := make([]string, 0, len(schemaRegistry))
	for k := range schemaRegistry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
