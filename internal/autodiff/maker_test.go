package autodiff_test

import (
	"testing"

	"github.com/born-ml/graphgrad/internal/autodiff"
	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/born-ml/graphgrad/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMake_SharedInputAccumulates covers a tensor consumed twice.
func TestMake_SharedInputAccumulates(t *testing.T) {
	forward := []*graph.OpDef{
		op("Square", names("X"), names("Y1")),
		op("Square", names("X"), names("Y2")),
		op("Add", names("Y1", "Y2"), names("Z")),
	}
	m := autodiff.NewGraphGradientMaker(nil)

	def, err := m.Make(forward, names("Z"), names("dZ"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"AddGradient(Y1,Y2,dZ)->(Y1_grad,Y2_grad)",
		"SquareGradient(X,Y2_grad)->(X_grad/split:0)",
		"SquareGradient(X,Y1_grad)->(X_grad/split:1)",
		"GradientAdd(X_grad/split:0,X_grad/split:1)->(X_grad)",
	}, render(def))
	assert.Equal(t, 1, countKind(def, gradient.AccumulateKind))

	for i, o := range def.Ops {
		assert.Equal(t, autodiff.DefaultOpPrefix+[]string{"0", "1", "2", "3"}[i], o.Name())
	}

	stats := m.LastStats()
	assert.Equal(t, 3, stats.Forward)
	assert.Equal(t, 4, stats.Emitted)
	assert.Equal(t, 1, stats.Accumulations)
	assert.Zero(t, stats.Pruned)
}

// TestMake_UnreachableTarget checks that a target no op writes yields nothing.
func TestMake_UnreachableTarget(t *testing.T) {
	forward := []*graph.OpDef{op("Relu", names("X"), names("Y"))}

	for _, seeds := range [][]string{nil, names("dX")} {
		m := autodiff.NewGraphGradientMaker(nil)
		def, err := m.Make(forward, names("X"), seeds)
		require.NoError(t, err)
		assert.Empty(t, def.Ops)
		assert.Equal(t, 1, m.LastStats().Pruned)
	}
}

func TestMake_SingleConsumer(t *testing.T) {
	forward := []*graph.OpDef{op("Relu", names("X"), names("Y"))}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ReluGradient(Y,dY)->(X_grad)"}, render(def))
	assert.Zero(t, countKind(def, gradient.AccumulateKind))
}

// TestMake_AccumulationCount checks that k contributions take k-1 additions,
// summed in the order they arrive.
func TestMake_AccumulationCount(t *testing.T) {
	forward := []*graph.OpDef{
		op("Sin", names("X"), names("A")),
		op("Cos", names("X"), names("B")),
		op("Log", names("X"), names("C")),
		op("Sum", names("A", "B", "C"), names("S")),
	}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("S"), names("dS"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SumGradient(dS)->(A_grad,B_grad,C_grad)",
		"LogGradient(X,C_grad)->(X_grad/split:0)",
		"CosGradient(X,B_grad)->(X_grad/split:1)",
		"GradientAdd(X_grad/split:0,X_grad/split:1)->(X_grad/sum:0)",
		"SinGradient(X,A_grad)->(X_grad/split:2)",
		"GradientAdd(X_grad/sum:0,X_grad/split:2)->(X_grad)",
	}, render(def))
	assert.Equal(t, 2, countKind(def, gradient.AccumulateKind))
}

func TestMake_DuplicateInputs(t *testing.T) {
	forward := []*graph.OpDef{op("Mul", names("X", "X"), names("Y"))}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"MulGradient(X,X,dY)->(X_grad/split:0,X_grad/split:1)",
		"GradientAdd(X_grad/split:0,X_grad/split:1)->(X_grad)",
	}, render(def))
}

func TestMake_MultipleTargets(t *testing.T) {
	forward := []*graph.OpDef{
		op("Exp", names("X"), names("Y")),
		op("Sin", names("X"), names("Z")),
	}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("Y", "Z"), names("dY", "dZ"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SinGradient(X,dZ)->(X_grad/split:0)",
		"ExpGradient(Y,dY)->(X_grad/split:1)",
		"GradientAdd(X_grad/split:0,X_grad/split:1)->(X_grad)",
	}, render(def))
}

func TestMake_Deterministic(t *testing.T) {
	forward := []*graph.OpDef{
		op("MatMul", names("X", "W"), names("H")),
		op("Add", names("H", "B"), names("H2")),
		op("Relu", names("H2"), names("A")),
		op("Mul", names("A", "X"), names("P")),
		op("ReduceSum", names("P"), names("L")),
	}

	first, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("L"), nil)
	require.NoError(t, err)
	for n := 0; n < 5; n++ {
		again, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("L"), nil)
		require.NoError(t, err)
		assert.Equal(t, first.String(), again.String())
	}
}

// TestMake_SingleWriter checks that every name in a backward graph has one writer.
func TestMake_SingleWriter(t *testing.T) {
	forward := []*graph.OpDef{
		op("MatMul", names("X", "W"), names("H")),
		op("Sigmoid", names("H"), names("S")),
		op("Mul", names("S", "H"), names("G")),
		op("Add", names("G", "X"), names("Y")),
		op("Mul", names("Y", "Y"), names("L")),
	}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("L"), names("dL"))
	require.NoError(t, err)

	for name, n := range writers(def) {
		assert.Equal(t, 1, n, "tensor %q has %d writers", name, n)
	}
	w := writers(def)
	for _, x := range []string{"X", "W", "H", "S", "G", "Y"} {
		assert.Contains(t, w, graph.GradName(x))
	}
}

func TestMake_Prunes(t *testing.T) {
	forward := []*graph.OpDef{
		op("Relu", names("X"), names("A")),
		op("Exp", names("W"), names("B")),
	}
	m := autodiff.NewGraphGradientMaker(nil)

	def, err := m.Make(forward, names("A"), names("dA"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ReluGradient(A,dA)->(X_grad)"}, render(def))
	assert.Equal(t, 1, m.LastStats().Pruned)
}

// TestMake_PrunedOpNeedsNoRule checks that rules are only looked up for live ops.
func TestMake_PrunedOpNeedsNoRule(t *testing.T) {
	forward := []*graph.OpDef{
		op("Frobnicate", names("W"), names("B")),
		op("Relu", names("X"), names("A")),
	}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("A"), names("dA"))
	require.NoError(t, err)
	assert.Len(t, def.Ops, 1)
}

func TestMake_Blacklist(t *testing.T) {
	forward := []*graph.OpDef{op("Mul", names("X", "W"), names("Y"))}
	m := autodiff.NewGraphGradientMaker(nil)
	m.AddBlacklist("W")

	def, err := m.Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)

	require.Len(t, def.Ops, 1)
	assert.Equal(t, "X_grad", def.Ops[0].Output(0))
	assert.Equal(t, "", def.Ops[0].Output(1))
	assert.NotContains(t, writers(def), "W_grad")
}

func TestMake_BlacklistedTarget(t *testing.T) {
	forward := []*graph.OpDef{op("Relu", names("X"), names("Y"))}
	m := autodiff.NewGraphGradientMaker(nil)
	m.AddBlacklist("Y")

	def, err := m.Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)
	assert.Empty(t, def.Ops)
}

func TestMake_NoGradientKind(t *testing.T) {
	forward := []*graph.OpDef{
		op("Shape", names("X"), names("S")),
		op("Mul", names("X", "S"), names("Y")),
	}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)

	assert.Equal(t, []string{"MulGradient(X,S,dY)->(X_grad,)"}, render(def))
}

func TestMake_NonDifferentiableInput(t *testing.T) {
	forward := []*graph.OpDef{op("Gather", names("E", "idx"), names("Y"), graph.WithArg("axis", graph.IntArg(0)))}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)

	require.Equal(t, []string{"GatherGradient(E,idx,dY)->(E_grad,)"}, render(def))
	assert.Equal(t, int64(0), def.Ops[0].ArgInt("axis", -1))
}

// TestMake_EmptyGrad covers tensors whose gradient is declared zero.
func TestMake_EmptyGrad(t *testing.T) {
	t.Run("target", func(t *testing.T) {
		m := autodiff.NewGraphGradientMaker(nil)
		m.AddEmptyGrad("Y")

		def, err := m.Make([]*graph.OpDef{op("Relu", names("X"), names("Y"))}, names("Y"), names("dY"))
		require.NoError(t, err)
		assert.Empty(t, def.Ops)
	})

	t.Run("intermediate", func(t *testing.T) {
		forward := []*graph.OpDef{
			op("Relu", names("X"), names("Y")),
			op("Exp", names("Y"), names("Z")),
		}
		m := autodiff.NewGraphGradientMaker(nil)
		m.AddEmptyGrad("Y")

		def, err := m.Make(forward, names("Z"), names("dZ"))
		require.NoError(t, err)
		assert.Empty(t, def.Ops)
	})

	t.Run("one of two inputs", func(t *testing.T) {
		m := autodiff.NewGraphGradientMaker(nil)
		m.AddEmptyGrad("B")

		def, err := m.Make([]*graph.OpDef{op("Add", names("A", "B"), names("C"))}, names("C"), names("dC"))
		require.NoError(t, err)
		assert.Equal(t, []string{"AddGradient(A,B,dC)->(A_grad,)"}, render(def))
	})
}

// TestMake_Inplace covers a tensor overwritten by an in-place op.
func TestMake_Inplace(t *testing.T) {
	forward := []*graph.OpDef{
		op("Relu", names("X"), names("X"), graph.WithAlias(0, 0)),
		op("Sigmoid", names("X"), names("Y")),
	}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SigmoidGradient(Y,dY)->(X_grad/split:0)",
		"ReluGradient(X,X_grad/split:0)->(X_grad)",
	}, render(def))
	assert.Zero(t, countKind(def, gradient.AccumulateKind))
}

func TestMake_GeneratedSeed(t *testing.T) {
	forward := []*graph.OpDef{op("Exp", names("X"), names("Y"))}
	m := autodiff.NewGraphGradientMaker(nil)

	def, err := m.Make(forward, names("Y"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"OnesLike(Y)->(Y_grad)",
		"ExpGradient(Y,Y_grad)->(X_grad)",
	}, render(def))
	assert.Equal(t, 1, m.LastStats().Seeds)
}

func TestMake_OpPrefix(t *testing.T) {
	m := autodiff.NewGraphGradientMaker(nil)
	m.SetOpPrefix("bwd/")

	def, err := m.Make([]*graph.OpDef{op("Mul", names("X", "X"), names("Y"))}, names("Y"), names("dY"))
	require.NoError(t, err)

	require.Len(t, def.Ops, 2)
	assert.Equal(t, "bwd/0", def.Ops[0].Name())
	assert.Equal(t, "bwd/1", def.Ops[1].Name())
}

func TestMake_GradientTypes(t *testing.T) {
	m := autodiff.NewGraphGradientMaker(nil)
	m.SetTypes(map[string]tensor.DataType{"X": tensor.Float64, "Y": tensor.Float64})

	def, err := m.Make([]*graph.OpDef{op("Exp", names("X"), names("Y"))}, names("Y"), names("dY"))
	require.NoError(t, err)

	assert.Equal(t, tensor.Float64, def.TypeOf("X_grad"))
	assert.Equal(t, tensor.Float64, def.TypeOf("dY"))
}

func TestMake_Errors(t *testing.T) {
	tests := []struct {
		name    string
		forward []*graph.OpDef
		targets []string
		seeds   []string
		want    error
	}{
		{
			name:    "seed count",
			forward: []*graph.OpDef{op("Relu", names("X"), names("Y"))},
			targets: names("Y", "X"),
			seeds:   names("dY"),
			want:    graph.ErrSeedCount,
		},
		{
			name:    "unregistered kind",
			forward: []*graph.OpDef{op("Frobnicate", names("X"), names("Y"))},
			targets: names("Y"),
			seeds:   names("dY"),
			want:    graph.ErrUnregisteredKind,
		},
		{
			name:    "arity",
			forward: []*graph.OpDef{op("Add", names("X"), names("Y"))},
			targets: names("Y"),
			seeds:   names("dY"),
			want:    graph.ErrArityMismatch,
		},
		{
			name:    "unsupported in-place pair",
			forward: []*graph.OpDef{op("Mul", names("X", "W"), names("X"), graph.WithAlias(0, 0))},
			targets: names("X"),
			seeds:   names("dX"),
			want:    graph.ErrArityMismatch,
		},
		{
			name:    "in-place pair naming different tensors",
			forward: []*graph.OpDef{op("Relu", names("X"), names("Y"), graph.WithAlias(0, 0))},
			targets: names("Y"),
			seeds:   names("dY"),
			want:    graph.ErrArityMismatch,
		},
		{
			name:    "missing mandatory gradient",
			forward: []*graph.OpDef{op("Dropout", names("X"), names("Y", "M"))},
			targets: names("M"),
			seeds:   names("dM"),
			want:    graph.ErrMissingGrad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := autodiff.NewGraphGradientMaker(nil).Make(tt.forward, tt.targets, tt.seeds)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, def)
		})
	}
}

func TestMake_MandatoryGradientPresent(t *testing.T) {
	forward := []*graph.OpDef{op("Dropout", names("X"), names("Y", "M"))}

	def, err := autodiff.NewGraphGradientMaker(nil).Make(forward, names("Y"), names("dY"))
	require.NoError(t, err)
	assert.Equal(t, []string{"DropoutGradient(dY,M)->(X_grad)"}, render(def))
}

func TestCheckGrad(t *testing.T) {
	o := op("MaxPool2d", names("X"), names("Y", "I"))
	rule := &gradient.Rule{Kind: "MaxPool2d", Mandatory: []int{0}}

	assert.NoError(t, autodiff.CheckGrad(o, rule, []graph.GradRef{graph.Some("dY"), graph.None()}))
	assert.NoError(t, autodiff.CheckGrad(o, rule, []graph.GradRef{graph.Zero(), graph.None()}))

	err := autodiff.CheckGrad(o, rule, []graph.GradRef{graph.None(), graph.Some("dI")})
	require.ErrorIs(t, err, graph.ErrMissingGrad)

	var gerr *graph.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "Y", gerr.Tensor)
}

// customRegistry registers "Foo" (one input, one output) with maker.
func customRegistry(t *testing.T, maker gradient.Maker) *gradient.Registry {
	t.Helper()
	r := gradient.NewRegistry()
	require.NoError(t, r.Register(gradient.Rule{Kind: "Foo", Schema: gradient.Arity(1, 1), Maker: maker}))
	require.NoError(t, r.RegisterSchema("FooGradient", gradient.Arity(2, 1)))
	r.Seal()
	return r
}

// TestMake_RuleContract checks that misbehaving rules are rejected.
func TestMake_RuleContract(t *testing.T) {
	tests := []struct {
		name  string
		maker gradient.Maker
		want  error
	}{
		{
			name: "wrong number of input gradients",
			maker: func(c *gradient.Context) (*gradient.Result, error) {
				return &gradient.Result{}, nil
			},
			want: graph.ErrArityMismatch,
		},
		{
			name: "unreserved gradient name",
			maker: func(c *gradient.Context) (*gradient.Result, error) {
				d := c.Def("FooGradient", []string{c.I(0), c.GOName(0)}, []string{"elsewhere"})
				return &gradient.Result{Defs: []*graph.OpDef{d}, InputGrads: []graph.GradRef{graph.Some("elsewhere")}}, nil
			},
			want: graph.ErrInvalidRule,
		},
		{
			name: "gradient never produced",
			maker: func(c *gradient.Context) (*gradient.Result, error) {
				return &gradient.Result{InputGrads: []graph.GradRef{graph.Some(c.GI(0))}}, nil
			},
			want: graph.ErrInvalidRule,
		},
		{
			name: "reads unbound tensor",
			maker: func(c *gradient.Context) (*gradient.Result, error) {
				return c.Emit(c.Def("FooGradient", []string{"ghost", c.GOName(0)}, []string{c.GI(0)})), nil
			},
			want: graph.ErrUnboundInput,
		},
		{
			name: "overwrites forward tensor",
			maker: func(c *gradient.Context) (*gradient.Result, error) {
				return c.Emit(
					c.Def("FooGradient", []string{c.I(0), c.GOName(0)}, []string{c.I(0)}),
					c.Def("FooGradient", []string{c.I(0), c.GOName(0)}, []string{c.GI(0)}),
				), nil
			},
			want: graph.ErrInvalidRule,
		},
		{
			name: "backward arity",
			maker: func(c *gradient.Context) (*gradient.Result, error) {
				return c.Emit(c.Def("FooGradient", []string{c.GOName(0)}, []string{c.GI(0)})), nil
			},
			want: graph.ErrArityMismatch,
		},
	}

	forward := []*graph.OpDef{op("Foo", names("X"), names("Y"))}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := autodiff.NewGraphGradientMaker(customRegistry(t, tt.maker))
			_, err := m.Make(forward, names("Y"), names("dY"))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMake_RuleReadsOwnOutput(t *testing.T) {
	maker := func(c *gradient.Context) (*gradient.Result, error) {
		tmp := c.GI(0) + "/tmp"
		return c.Emit(
			graph.NewOp("Scale", []string{c.GOName(0)}, []string{tmp}),
			c.Def("FooGradient", []string{c.I(0), tmp}, []string{c.GI(0)}),
		), nil
	}
	m := autodiff.NewGraphGradientMaker(customRegistry(t, maker))

	def, err := m.Make([]*graph.OpDef{op("Foo", names("X"), names("Y"))}, names("Y"), names("dY"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Scale(dY)->(X_grad/split:0/tmp)",
		"FooGradient(X,X_grad/split:0/tmp)->(X_grad)",
	}, render(def))
}
