package gradient

import (
	"github.com/born-ml/graphgrad/internal/graph"
)

// Context is what a gradient Maker sees of one forward operator: the forward
// descriptor, the gradients bound to its outputs and the names the builder has
// reserved for the gradients of its inputs.
//
// Naming helpers follow the usual shorthand:
//
//	I(i)  - forward input i
//	O(i)  - forward output i
//	GO(i) - gradient of forward output i
//	GI(i) - name to write the gradient of forward input i to ("" when not wanted)
type Context struct {
	op       *graph.OpDef
	outGrads []graph.GradRef
	inGrads  []string
	noGrad   []bool
}

// NewContext creates a Context. inGrads[i] is the name reserved for the
// gradient of input i, or "" when that gradient is not wanted.
func NewContext(op *graph.OpDef, outGrads []graph.GradRef, inGrads []string) *Context {
	return &Context{
		op:       op,
		outGrads: append([]graph.GradRef(nil), outGrads...),
		inGrads:  append([]string(nil), inGrads...),
		noGrad:   make([]bool, op.NumInputs()),
	}
}

// Op returns the forward descriptor.
func (c *Context) Op() *graph.OpDef { return c.op }

// I returns the name of forward input i.
func (c *Context) I(i int) string { return c.op.Input(i) }

// O returns the name of forward output i.
func (c *Context) O(i int) string { return c.op.Output(i) }

// GO returns the gradient bound to forward output i.
func (c *Context) GO(i int) graph.GradRef { return c.outGrads[i] }

// GOName returns the tensor holding the gradient of output i, or "" when that
// gradient is absent or zero. Backward kernels treat an empty input as zeros.
func (c *Context) GOName(i int) string {
	name, _ := c.outGrads[i].Name()
	return name
}

// GI returns the name reserved for the gradient of forward input i, or "" when
// the gradient is not wanted or the input was marked with NoGrad.
func (c *Context) GI(i int) string {
	if c.noGrad[i] {
		return ""
	}
	return c.inGrads[i]
}

// Wants reports whether the gradient of input i should be produced.
func (c *Context) Wants(i int) bool { return c.GI(i) != "" }

// WantsAny reports whether any input gradient should be produced.
func (c *Context) WantsAny() bool {
	for i := range c.inGrads {
		if c.Wants(i) {
			return true
		}
	}
	return false
}

// NoGrad marks inputs as structurally non-differentiable (indices, labels,
// shapes). Their GI becomes "" and Emit reports None for them.
func (c *Context) NoGrad(inputs ...int) {
	for _, i := range inputs {
		if i < len(c.noGrad) {
			c.noGrad[i] = true
		}
	}
}

// Alias returns the input slot that shares storage with output out.
func (c *Context) Alias(out int) (int, bool) { return c.op.AliasOf(out) }

// AllOutputGradsZero reports whether every output gradient is Zero or None.
func (c *Context) AllOutputGradsZero() bool {
	for _, g := range c.outGrads {
		if g.IsSome() {
			return false
		}
	}
	return true
}

// Def builds a backward descriptor. The forward arguments are copied onto it
// so kernels see the same static parameters.
func (c *Context) Def(kind string, inputs, outputs []string, opts ...graph.OpOption) *graph.OpDef {
	all := make([]graph.OpOption, 0, len(opts)+1)
	all = append(all, graph.WithArgs(c.op.Args()))
	all = append(all, opts...)
	return graph.NewOp(kind, inputs, outputs, all...)
}

// Emit returns a Result holding defs where every wanted input gradient is
// reported as Some(GI(i)) and every other one as None.
func (c *Context) Emit(defs ...*graph.OpDef) *Result {
	grads := make([]graph.GradRef, c.op.NumInputs())
	for i := range grads {
		grads[i] = graph.Some(c.GI(i))
	}
	return &Result{Defs: defs, InputGrads: grads}
}

// ZeroResult reports a defined-zero gradient for every wanted input and emits nothing.
func (c *Context) ZeroResult() *Result {
	grads := make([]graph.GradRef, c.op.NumInputs())
	for i := range grads {
		if c.Wants(i) {
			grads[i] = graph.Zero()
		}
	}
	return &Result{InputGrads: grads}
}

// AllGI returns GI(i) for every input.
func (c *Context) AllGI() []string {
	names := make([]string, c.op.NumInputs())
	for i := range names {
		names[i] = c.GI(i)
	}
	return names
}

// AllGO returns GOName(i) for every output.
func (c *Context) AllGO() []string {
	names := make([]string, len(c.outGrads))
	for i := range names {
		names[i] = c.GOName(i)
	}
	return names
}

// AllI returns every forward input name.
func (c *Context) AllI() []string { return c.op.Inputs() }
