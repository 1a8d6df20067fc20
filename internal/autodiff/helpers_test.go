package autodiff_test

import (
	"fmt"
	"strings"

	"github.com/born-ml/graphgrad/internal/graph"
)

func op(kind string, inputs, outputs []string, opts ...graph.OpOption) *graph.OpDef {
	return graph.NewOp(kind, inputs, outputs, opts...)
}

func names(n ...string) []string { return n }

// render formats ops as "Kind(a,b)->(c,d)" without names or args.
func render(def *graph.Def) []string {
	lines := make([]string, 0, def.Len())
	for _, o := range def.Ops {
		lines = append(lines, fmt.Sprintf("%s(%s)->(%s)",
			o.Kind(), strings.Join(o.Inputs(), ","), strings.Join(o.Outputs(), ",")))
	}
	return lines
}

func countKind(def *graph.Def, kind string) int {
	n := 0
	for _, o := range def.Ops {
		if o.Kind() == kind {
			n++
		}
	}
	return n
}

// writers returns how many ops of def write each tensor.
func writers(def *graph.Def) map[string]int {
	w := make(map[string]int)
	for _, o := range def.Ops {
		for _, out := range o.Outputs() {
			if out != "" {
				w[out]++
			}
		}
	}
	return w
}
