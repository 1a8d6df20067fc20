package ops

import (
	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
)

func registerArrayOps(r *gradient.Registry) {
	unary := gradient.Arity(1, 1)

	r.MustRegister(
		gradient.Rule{Kind: "Identity", Schema: unary.AllowInplace(gradient.Alias(0, 0)), Maker: gradient.Simple("IdentityGradient")},
		gradient.Rule{Kind: "Cast", Schema: unary, Maker: gradient.Unary("CastGradient")},

		// Shape-changing views: the gradient is GO(0) reshaped back to the
		// shape of I(0), so the descriptor reads I(0) for its shape.
		gradient.Rule{Kind: "Reshape", Schema: gradient.Range(1, 2, 1, 1), Maker: partial("ReshapeGradient", 1)},
		gradient.Rule{Kind: "Flatten", Schema: unary, Maker: gradient.Unary("FlattenGradient")},
		gradient.Rule{Kind: "Squeeze", Schema: unary, Maker: gradient.Unary("SqueezeGradient")},
		gradient.Rule{Kind: "ExpandDims", Schema: unary, Maker: gradient.Unary("ExpandDimsGradient")},
		gradient.Rule{Kind: "Tile", Schema: unary, Maker: gradient.Unary("TileGradient")},
		gradient.Rule{Kind: "Repeat", Schema: unary, Maker: gradient.Unary("RepeatGradient")},

		// Transpose inverts its perm argument; no input values are needed.
		gradient.Rule{Kind: "Transpose", Schema: unary, Maker: gradient.Simple("TransposeGradient")},

		// Concat(x0, ..., xn) -> y. Each xi receives its slice of GO(0).
		gradient.Rule{Kind: "Concat", Schema: gradient.Range(1, gradient.Unbounded, 1, 1), Maker: gradient.Generic("ConcatGradient")},

		// Split and Chunk have one input and many outputs. Outputs without a
		// gradient are passed as "" and read as zeros by the kernel.
		gradient.Rule{Kind: "Split", Schema: gradient.Range(1, 1, 1, gradient.Unbounded), Maker: gradient.Generic("SplitGradient")},
		gradient.Rule{Kind: "Chunk", Schema: gradient.Range(1, 1, 1, gradient.Unbounded), Maker: gradient.Generic("ChunkGradient")},

		// Index-driven selection: indices never receive gradients.
		gradient.Rule{Kind: "Gather", Schema: gradient.Arity(2, 1), Maker: partial("GatherGradient", 1)},
		gradient.Rule{Kind: "Embedding", Schema: gradient.Arity(2, 1), Maker: partial("EmbeddingGradient", 1)},
		gradient.Rule{Kind: "Where", Schema: gradient.Arity(3, 1), Maker: partial("WhereGradient", 0)},

		gradient.NoGradient("StopGradient", unary.AllowInplace(gradient.Alias(0, 0))),
		gradient.NoGradient("Shape", unary),
		gradient.NoGradient("Argmax", unary),
		gradient.NoGradient("Argmin", unary),
		gradient.NoGradient("OneHot", unary),
		gradient.NoGradient("Fill", gradient.Range(0, 1, 1, 1)),
		gradient.NoGradient(gradient.SeedKind, unary),
		gradient.NoGradient("ZerosLike", unary),
		gradient.NoGradient("Arange", gradient.Range(0, 3, 1, 1)),
		gradient.NoGradient("Multinomial", unary),
		gradient.NoGradient("NonZero", unary),
	)

	r.MustRegisterSchema("IdentityGradient", gradient.Arity(1, 1))
	r.MustRegisterSchema("TransposeGradient", gradient.Arity(1, 1))
	for _, kind := range []string{"CastGradient", "FlattenGradient", "SqueezeGradient",
		"ExpandDimsGradient", "TileGradient", "RepeatGradient"} {
		r.MustRegisterSchema(kind, gradient.Arity(2, 1))
	}
	r.MustRegisterSchema("ReshapeGradient", gradient.Range(2, 3, 1, 2))
	r.MustRegisterSchema("ConcatGradient", gradient.Range(2, gradient.Unbounded, 1, gradient.Unbounded))
	r.MustRegisterSchema("SplitGradient", gradient.Range(2, gradient.Unbounded, 1, 1))
	r.MustRegisterSchema("ChunkGradient", gradient.Range(2, gradient.Unbounded, 1, 1))
	r.MustRegisterSchema("GatherGradient", gradient.Arity(3, 2))
	r.MustRegisterSchema("EmbeddingGradient", gradient.Arity(3, 2))
	r.MustRegisterSchema("WhereGradient", gradient.Arity(4, 3))
}

func registerReductions(r *gradient.Registry) {
	r.MustRegister(
		// The gradient broadcasts GO(0) back to the shape of I(0); ReduceMean
		// additionally scales by 1/N.
		gradient.Rule{Kind: "ReduceSum", Schema: gradient.Arity(1, 1), Maker: gradient.Unary("ReduceSumGradient")},
		gradient.Rule{Kind: "ReduceMean", Schema: gradient.Arity(1, 1), Maker: gradient.Unary("ReduceMeanGradient")},
		gradient.Rule{Kind: "ReduceMax", Schema: gradient.Arity(1, 1), Maker: withOutput("ReduceMaxGradient")},

		// Moments(x) -> (mean, var). Either output may be unused.
		gradient.Rule{Kind: "Moments", Schema: gradient.Arity(1, 2), Maker: gradient.Generic("MomentsGradient")},
	)

	r.MustRegisterSchema("ReduceSumGradient", gradient.Arity(2, 1))
	r.MustRegisterSchema("ReduceMeanGradient", gradient.Arity(2, 1))
	r.MustRegisterSchema("ReduceMaxGradient", gradient.Arity(3, 1))
	r.MustRegisterSchema("MomentsGradient", gradient.Arity(3, 1))
}
