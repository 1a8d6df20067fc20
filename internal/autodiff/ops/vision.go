package ops

import (
	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
)

func registerVision(r *gradient.Registry) {
	r.MustRegister(
		// Conv2d(x, w[, b]) -> y. The gradient kernel reads x and w and
		// produces dx, dw and, when present, db.
		gradient.Rule{Kind: "Conv2d", Schema: gradient.Range(2, 3, 1, 1), Maker: gradient.Generic("Conv2dGradient")},
		gradient.Rule{Kind: "ConvTranspose2d", Schema: gradient.Range(2, 3, 1, 1), Maker: gradient.Generic("ConvTranspose2dGradient")},

		// MaxPool2d(x) -> (y[, mask]). Routing the gradient needs either the
		// recorded argmax mask or y itself; the mask never carries a gradient.
		gradient.Rule{
			Kind:      "MaxPool2d",
			Schema:    gradient.Range(1, 1, 1, 2),
			Maker:     maxPool("MaxPool2dGradient"),
			Mandatory: []int{0},
		},
		gradient.Rule{Kind: "AvgPool2d", Schema: gradient.Arity(1, 1), Maker: gradient.Unary("AvgPool2dGradient")},

		// BatchNorm(x, gamma, beta, running_mean, running_var) -> y.
		// Running statistics are state, not parameters.
		gradient.Rule{Kind: "BatchNorm", Schema: gradient.Arity(5, 1), Maker: partial("BatchNormGradient", 3, 4)},
		gradient.Rule{Kind: "LayerNorm", Schema: gradient.Arity(3, 1), Maker: gradient.Generic("LayerNormGradient")},
		gradient.Rule{Kind: "GroupNorm", Schema: gradient.Arity(3, 1), Maker: gradient.Generic("GroupNormGradient")},

		// RoiAlign(x, rois) -> y; NNResize(x[, sizes]) -> y.
		gradient.Rule{Kind: "RoiAlign", Schema: gradient.Arity(2, 1), Maker: partial("RoiAlignGradient", 1)},
		gradient.Rule{Kind: "NNResize", Schema: gradient.Range(1, 2, 1, 1), Maker: partial("NNResizeGradient", 1)},
		gradient.Rule{Kind: "LinearResize", Schema: gradient.Range(1, 2, 1, 1), Maker: partial("LinearResizeGradient", 1)},
	)

	r.MustRegisterSchema("Conv2dGradient", gradient.Range(3, 4, 2, 3))
	r.MustRegisterSchema("ConvTranspose2dGradient", gradient.Range(3, 4, 2, 3))
	r.MustRegisterSchema("MaxPool2dGradient", gradient.Arity(3, 1))
	r.MustRegisterSchema("AvgPool2dGradient", gradient.Arity(2, 1))
	r.MustRegisterSchema("BatchNormGradient", gradient.Arity(6, 5))
	r.MustRegisterSchema("LayerNormGradient", gradient.Arity(4, 3))
	r.MustRegisterSchema("GroupNormGradient", gradient.Arity(4, 3))
	r.MustRegisterSchema("RoiAlignGradient", gradient.Arity(3, 2))
	r.MustRegisterSchema("NNResizeGradient", gradient.Range(2, 3, 1, 2))
	r.MustRegisterSchema("LinearResizeGradient", gradient.Range(2, 3, 1, 2))
}

// maxPool emits GradKind(x, y|mask, GO(0)) -> GI(0).
func maxPool(gradKind string) gradient.Maker {
	return func(c *gradient.Context) (*gradient.Result, error) {
		if !c.Wants(0) {
			return c.Emit(), nil
		}
		if !c.GO(0).IsSome() {
			return c.ZeroResult(), nil
		}
		route := c.O(0)
		if c.Op().NumOutputs() > 1 {
			route = c.O(1)
		}
		return c.Emit(c.Def(gradKind, []string{c.I(0), route, c.GOName(0)}, []string{c.GI(0)})), nil
	}
}
