package ops

import (
	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
)

// Classification losses take (logits, labels) and differentiate the logits
// only. Regression losses differentiate both operands.
func registerLosses(r *gradient.Registry) {
	withLabels := gradient.Arity(2, 1)

	r.MustRegister(
		gradient.Rule{Kind: "SoftmaxCrossEntropy", Schema: withLabels, Maker: partial("SoftmaxCrossEntropyGradient", 1)},
		gradient.Rule{Kind: "SparseSoftmaxCrossEntropy", Schema: withLabels, Maker: partial("SparseSoftmaxCrossEntropyGradient", 1)},
		gradient.Rule{Kind: "SigmoidCrossEntropy", Schema: withLabels, Maker: partial("SigmoidCrossEntropyGradient", 1)},
		gradient.Rule{Kind: "SigmoidFocalLoss", Schema: withLabels, Maker: partial("SigmoidFocalLossGradient", 1)},
		gradient.Rule{Kind: "NLLLoss", Schema: withLabels, Maker: partial("NLLLossGradient", 1)},

		// L2Loss(x[, y]) = sum((x - y)^2) / 2.
		gradient.Rule{Kind: "L2Loss", Schema: gradient.Range(1, 2, 1, 1), Maker: gradient.Generic("L2LossGradient")},
		gradient.Rule{Kind: "SmoothL1Loss", Schema: gradient.Arity(2, 1), Maker: gradient.Generic("SmoothL1LossGradient")},
	)

	for _, kind := range []string{"SoftmaxCrossEntropyGradient", "SparseSoftmaxCrossEntropyGradient",
		"SigmoidCrossEntropyGradient", "SigmoidFocalLossGradient", "NLLLossGradient", "SmoothL1LossGradient"} {
		r.MustRegisterSchema(kind, gradient.Arity(3, 2))
	}
	r.MustRegisterSchema("L2LossGradient", gradient.Range(2, 3, 1, 2))
}
