// Package ops registers the gradient rules of the built-in operator kinds.
//
// Each forward kind maps to a gradient.Rule. Most rules emit a single
// "<Kind>Gradient" descriptor whose inputs are some combination of the forward
// inputs, forward outputs and output gradients:
//   - Add, Sub: d(a±b)/da = 1, d(a±b)/db = ±1, reduced over broadcast axes
//   - Mul: d(a*b)/da = b, d(a*b)/db = a
//   - MatMul: dA = G @ B^T, dB = A^T @ G
//   - Relu, Sigmoid, Tanh, Softmax: expressed in terms of the output, so the
//     forward op may run in place
//
// Kinds that stop gradient flow (Shape, Argmax, StopGradient, ...) are
// registered with NoGradient.
package ops

import (
	"sync"

	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
)

// NewRegistry creates a sealed registry with all supported operator kinds.
func NewRegistry() *gradient.Registry {
	r := gradient.NewRegistry()

	r.MustRegisterSchema(gradient.AccumulateKind, gradient.Arity(2, 1).AllowInplace(gradient.Alias(0, 0)))

	registerArithmetic(r)
	registerActivations(r)
	registerArrayOps(r)
	registerReductions(r)
	registerLosses(r)
	registerVision(r)

	r.Seal()
	return r
}

// Default returns the process-wide registry. It is built on first use and
// never modified afterwards.
var Default = sync.OnceValue(NewRegistry)

// partial is gradient.Generic with some inputs marked non-differentiable
// (indices, labels, running statistics).
func partial(gradKind string, nondiff ...int) gradient.Maker {
	generic := gradient.Generic(gradKind)
	return func(c *gradient.Context) (*gradient.Result, error) {
		c.NoGrad(nondiff...)
		return generic(c)
	}
}

// withOutput emits GradKind(I(0..n), O(0), GO(0)) -> GI(0..n), for kinds whose
// gradient is cheaper to compute from the forward result (Pow, MaxPool2d).
func withOutput(gradKind string) gradient.Maker {
	return func(c *gradient.Context) (*gradient.Result, error) {
		if !c.WantsAny() {
			return c.Emit(), nil
		}
		if c.AllOutputGradsZero() {
			return c.ZeroResult(), nil
		}
		inputs := append(c.AllI(), c.O(0), c.GOName(0))
		return c.Emit(c.Def(gradKind, inputs, c.AllGI())), nil
	}
}
