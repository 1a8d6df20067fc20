package ops

import (
	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
)

func registerArithmetic(r *gradient.Registry) {
	unary := gradient.Arity(1, 1)
	unaryInplace := unary.AllowInplace(gradient.Alias(0, 0))
	binary := gradient.Arity(2, 1)
	binaryInplace := binary.AllowInplace(gradient.Alias(0, 0), gradient.Alias(1, 0))

	r.MustRegister(
		// Inputs are read for their shapes only (broadcast reduction), so
		// in-place execution is safe.
		gradient.Rule{Kind: "Add", Schema: binaryInplace, Maker: gradient.Generic("AddGradient")},
		gradient.Rule{Kind: "Sub", Schema: binaryInplace, Maker: gradient.Generic("SubGradient")},

		gradient.Rule{Kind: "Mul", Schema: binary, Maker: gradient.Generic("MulGradient")},
		gradient.Rule{Kind: "Div", Schema: binary, Maker: gradient.Generic("DivGradient")},
		gradient.Rule{Kind: "Maximum", Schema: binary, Maker: gradient.Generic("MaximumGradient")},
		gradient.Rule{Kind: "Minimum", Schema: binary, Maker: gradient.Generic("MinimumGradient")},
		gradient.Rule{Kind: "Pow", Schema: binary, Maker: withOutput("PowGradient")},

		// MatMul carries transA/transB, which the gradient kernel reads from
		// the copied arguments.
		gradient.Rule{Kind: "MatMul", Schema: binary, Maker: gradient.Generic("MatMulGradient")},

		// Sum adds any number of inputs; each input gradient equals GO(0).
		gradient.Rule{Kind: "Sum", Schema: gradient.Range(1, gradient.Unbounded, 1, 1), Maker: gradient.Simple("SumGradient")},

		gradient.Rule{Kind: "Square", Schema: unary, Maker: gradient.Unary("SquareGradient")},
		gradient.Rule{Kind: "Log", Schema: unary, Maker: gradient.Unary("LogGradient")},
		gradient.Rule{Kind: "Sin", Schema: unary, Maker: gradient.Unary("SinGradient")},
		gradient.Rule{Kind: "Cos", Schema: unary, Maker: gradient.Unary("CosGradient")},
		gradient.Rule{Kind: "Abs", Schema: unary, Maker: gradient.Unary("AbsGradient")},

		// d(sqrt x) = 0.5 / y, d(rsqrt x) = -0.5 * y^3, d(exp x) = y.
		gradient.Rule{Kind: "Sqrt", Schema: unaryInplace, Maker: gradient.Inplace("SqrtGradient")},
		gradient.Rule{Kind: "Rsqrt", Schema: unaryInplace, Maker: gradient.Inplace("RsqrtGradient")},
		gradient.Rule{Kind: "Exp", Schema: unaryInplace, Maker: gradient.Inplace("ExpGradient")},

		gradient.Rule{Kind: "Neg", Schema: unaryInplace, Maker: gradient.Simple("NegGradient")},
	)

	for _, kind := range []string{"AddGradient", "SubGradient", "MulGradient", "DivGradient",
		"MaximumGradient", "MinimumGradient", "MatMulGradient"} {
		r.MustRegisterSchema(kind, gradient.Arity(3, 2))
	}
	r.MustRegisterSchema("PowGradient", gradient.Arity(4, 2))
	r.MustRegisterSchema("SumGradient", gradient.Range(1, 1, 1, gradient.Unbounded))
	for _, kind := range []string{"SquareGradient", "LogGradient", "SinGradient", "CosGradient", "AbsGradient"} {
		r.MustRegisterSchema(kind, gradient.Arity(2, 1))
	}
	for _, kind := range []string{"SqrtGradient", "RsqrtGradient", "ExpGradient"} {
		r.MustRegisterSchema(kind, gradient.Arity(2, 1).AllowInplace(gradient.Alias(1, 0)))
	}
	r.MustRegisterSchema("NegGradient", gradient.Arity(1, 1).AllowInplace(gradient.Alias(0, 0)))
}
