package ops

import (
	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
)

func registerActivations(r *gradient.Registry) {
	unary := gradient.Arity(1, 1)
	unaryInplace := unary.AllowInplace(gradient.Alias(0, 0))

	r.MustRegister(
		// Gradients expressed in terms of the output y:
		//   relu:    dx = dy * (y > 0)
		//   sigmoid: dx = dy * y * (1 - y)
		//   tanh:    dx = dy * (1 - y^2)
		//   elu:     dx = dy * (y > 0 ? 1 : y + alpha)
		//   softmax: dx = y * (dy - sum(dy * y, axis))
		gradient.Rule{Kind: "Relu", Schema: unaryInplace, Maker: gradient.Inplace("ReluGradient")},
		gradient.Rule{Kind: "Sigmoid", Schema: unaryInplace, Maker: gradient.Inplace("SigmoidGradient")},
		gradient.Rule{Kind: "Tanh", Schema: unaryInplace, Maker: gradient.Inplace("TanhGradient")},
		gradient.Rule{Kind: "Elu", Schema: unaryInplace, Maker: gradient.Inplace("EluGradient")},
		gradient.Rule{Kind: "Softmax", Schema: unaryInplace, Maker: gradient.Inplace("SoftmaxGradient")},
		gradient.Rule{Kind: "LogSoftmax", Schema: unaryInplace, Maker: gradient.Inplace("LogSoftmaxGradient")},

		// SiLU and GELU need x itself.
		gradient.Rule{Kind: "Silu", Schema: unary, Maker: gradient.Unary("SiluGradient")},
		gradient.Rule{Kind: "Gelu", Schema: unary, Maker: gradient.Unary("GeluGradient")},

		// PRelu(x, w): both x and the slope w receive gradients.
		gradient.Rule{Kind: "PRelu", Schema: gradient.Arity(2, 1), Maker: gradient.Generic("PReluGradient")},

		// Dropout(x) -> (y, mask). The mask never carries a gradient, so the
		// gradient of y is required whenever the op is differentiated.
		gradient.Rule{
			Kind:      "Dropout",
			Schema:    gradient.Range(1, 1, 1, 2).AllowInplace(gradient.Alias(0, 0)),
			Maker:     masked("DropoutGradient"),
			Mandatory: []int{0},
		},
		gradient.Rule{
			Kind:      "DropPath",
			Schema:    gradient.Range(1, 1, 1, 2).AllowInplace(gradient.Alias(0, 0)),
			Maker:     masked("DropPathGradient"),
			Mandatory: []int{0},
		},
	)

	for _, kind := range []string{"ReluGradient", "SigmoidGradient", "TanhGradient", "EluGradient",
		"SoftmaxGradient", "LogSoftmaxGradient", "SiluGradient", "GeluGradient"} {
		r.MustRegisterSchema(kind, gradient.Arity(2, 1))
	}
	r.MustRegisterSchema("PReluGradient", gradient.Arity(3, 2))
	r.MustRegisterSchema("DropoutGradient", gradient.Range(1, 2, 1, 1))
	r.MustRegisterSchema("DropPathGradient", gradient.Range(1, 2, 1, 1))
}

// masked emits GradKind(GO(0), O(1)) -> GI(0) for ops that record a mask as a
// second output. Without a mask output the kernel regenerates it from the
// seed argument, and the descriptor reads GO(0) only.
func masked(gradKind string) gradient.Maker {
	return func(c *gradient.Context) (*gradient.Result, error) {
		if !c.Wants(0) {
			return c.Emit(), nil
		}
		if !c.GO(0).IsSome() {
			return c.ZeroResult(), nil
		}
		inputs := []string{c.GOName(0)}
		if c.Op().NumOutputs() > 1 {
			inputs = append(inputs, c.O(1))
		}
		return c.Emit(c.Def(gradKind, inputs, []string{c.GI(0)})), nil
	}
}
