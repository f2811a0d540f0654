package ir

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/types"
)

// String implements fmt.Stringer, and pretty prints graph information.
func (g *Graph) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Graph:\n")
	w("\tFramework:\t%s\n", g.Framework)
	w("\t# nodes:\t%d\n", g.NumNodes())
	w("\t# edges:\t%d\n", g.NumEdges())

	kindsSet := types.MakeSet[string]()
	for _, name := range g.NodeNames() {
		if op := g.NodeOp(name); op != nil {
			kindsSet.Insert(op.Kind())
		}
	}
	w("\tKinds:\t%#v\n", slices.Sorted(maps.Keys(kindsSet)))

	if len(g.InputBindings) > 0 {
		w("\tInputs: [")
		for ii, name := range slices.Sorted(maps.Keys(g.InputBindings)) {
			if ii > 0 {
				w(", ")
			}
			if t := g.InputBindings[name]; t != nil {
				w("%s=%s", name, t)
			} else {
				w("%s", name)
			}
		}
		w("]\n")
	}
	if len(g.Outputs) > 0 {
		w("\tOutputs:\t%v\n", g.Outputs)
	}
	if len(g.DuplicateNames) > 0 {
		w("\t# renamed for serialization:\t%d\n", len(g.DuplicateNames))
	}
	return buf.String()
}
