package gradient

import "github.com/born-ml/graphgrad/internal/graph"

// Kinds emitted by the backward graph builder itself.
const (
	// AccumulateKind sums two gradient contributions: (acc, next) -> sum.
	AccumulateKind = "GradientAdd"
	// SeedKind fills a tensor shaped like its input with ones.
	SeedKind = "OnesLike"
)

// GradKind returns the conventional backward kind of a forward kind.
func GradKind(kind string) string { return kind + "Gradient" }

// Simple builds a maker whose backward op reads only the output gradients:
//
//	GradKind(GO(0), ..., GO(m)) -> (GI(0), ..., GI(n))
//
// Suitable for linear operators whose gradient does not depend on values
// (Identity, Reshape, ReduceSum, ...).
func Simple(gradKind string) Maker {
	return func(c *Context) (*Result, error) {
		if !c.WantsAny() {
			return c.Emit(), nil
		}
		if c.AllOutputGradsZero() {
			return c.ZeroResult(), nil
		}
		return c.Emit(c.Def(gradKind, c.AllGO(), c.AllGI())), nil
	}
}

// Inplace builds a maker for unary operators whose gradient can be expressed
// in terms of the forward output:
//
//	GradKind(O(0), GO(0)) -> GI(0)
//
// Because it never reads X, the forward op may overwrite X in place.
func Inplace(gradKind string) Maker {
	return func(c *Context) (*Result, error) {
		if !c.Wants(0) {
			return c.Emit(), nil
		}
		if c.AllOutputGradsZero() {
			return c.ZeroResult(), nil
		}
		return c.Emit(c.Def(gradKind, []string{c.O(0), c.GOName(0)}, []string{c.GI(0)})), nil
	}
}

// Unary builds a maker for unary operators whose gradient reads the input:
//
//	GradKind(I(0), GO(0)) -> GI(0)
func Unary(gradKind string) Maker {
	return func(c *Context) (*Result, error) {
		if !c.Wants(0) {
			return c.Emit(), nil
		}
		if c.AllOutputGradsZero() {
			return c.ZeroResult(), nil
		}
		return c.Emit(c.Def(gradKind, []string{c.I(0), c.GOName(0)}, []string{c.GI(0)})), nil
	}
}

// Generic builds a maker whose backward op reads every forward input and
// every output gradient:
//
//	GradKind(I(0), ..., I(n), GO(0), ..., GO(m)) -> (GI(0), ..., GI(n))
func Generic(gradKind string) Maker {
	return func(c *Context) (*Result, error) {
		if !c.WantsAny() {
			return c.Emit(), nil
		}
		if c.AllOutputGradsZero() {
			return c.ZeroResult(), nil
		}
		inputs := append(c.AllI(), c.AllGO()...)
		return c.Emit(c.Def(gradKind, inputs, c.AllGI())), nil
	}
}

// NoGradient returns a rule for a kind that stops gradient flow.
func NoGradient(kind string, s Schema) Rule {
	return Rule{Kind: kind, Schema: s, NoGradient: true}
}

// Alias is shorthand for graph.Alias{Input: in, Output: out}.
func Alias(in, out int) graph.Alias { return graph.Alias{Input: in, Output: out} }
