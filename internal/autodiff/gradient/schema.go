package gradient

import (
	"strconv"

	"github.com/born-ml/graphgrad/internal/graph"
)

// Unbounded marks an open upper bound in a Schema.
const Unbounded = -1

// Schema is the arity contract of an operator kind: how many inputs and
// outputs it takes and which input/output slot pairs may be computed in place.
type Schema struct {
	MinInputs  int
	MaxInputs  int // Unbounded for variadic kinds
	MinOutputs int
	MaxOutputs int // Unbounded for variadic kinds
	Inplace    []graph.Alias
}

// Arity returns a schema with exactly in inputs and out outputs.
func Arity(in, out int) Schema {
	return Schema{MinInputs: in, MaxInputs: in, MinOutputs: out, MaxOutputs: out}
}

// Range returns a schema accepting [minIn, maxIn] inputs and [minOut, maxOut] outputs.
func Range(minIn, maxIn, minOut, maxOut int) Schema {
	return Schema{MinInputs: minIn, MaxInputs: maxIn, MinOutputs: minOut, MaxOutputs: maxOut}
}

// AllowInplace returns a copy of s that additionally permits the given in-place pairs.
func (s Schema) AllowInplace(pairs ...graph.Alias) Schema {
	s.Inplace = append(append([]graph.Alias(nil), s.Inplace...), pairs...)
	return s
}

// Check validates op against the schema: slot counts, and that every declared
// alias is permitted and names the same tensor on both sides.
func (s Schema) Check(op *graph.OpDef) error {
	if n := op.NumInputs(); n < s.MinInputs || (s.MaxInputs != Unbounded && n > s.MaxInputs) {
		return graph.NewError(graph.ErrArityMismatch, op, "",
			"got %d inputs, want %s", n, bounds(s.MinInputs, s.MaxInputs))
	}
	if n := op.NumOutputs(); n < s.MinOutputs || (s.MaxOutputs != Unbounded && n > s.MaxOutputs) {
		return graph.NewError(graph.ErrArityMismatch, op, "",
			"got %d outputs, want %s", n, bounds(s.MinOutputs, s.MaxOutputs))
	}
	for _, a := range op.Aliases() {
		if a.Input < 0 || a.Input >= op.NumInputs() || a.Output < 0 || a.Output >= op.NumOutputs() {
			return graph.NewError(graph.ErrArityMismatch, op, "",
				"alias (%d, %d) is out of range", a.Input, a.Output)
		}
		if !s.allows(a) {
			return graph.NewError(graph.ErrArityMismatch, op, op.Input(a.Input),
				"in-place pair (%d, %d) is not supported by this kind", a.Input, a.Output)
		}
		if op.Input(a.Input) != op.Output(a.Output) {
			return graph.NewError(graph.ErrArityMismatch, op, op.Input(a.Input),
				"in-place pair (%d, %d) names different tensors %q and %q",
				a.Input, a.Output, op.Input(a.Input), op.Output(a.Output))
		}
	}
	return nil
}

func (s Schema) allows(a graph.Alias) bool {
	for _, p := range s.Inplace {
		if p == a {
			return true
		}
	}
	return false
}

func bounds(lo, hi int) string {
	switch {
	case hi == Unbounded:
		return strconv.Itoa(lo) + " or more"
	case lo == hi:
		return strconv.Itoa(lo)
	default:
		return strconv.Itoa(lo) + ".." + strconv.Itoa(hi)
	}
}
