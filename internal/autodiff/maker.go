package autodiff

import (
	"sort"
	"strconv"

	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
	"github.com/born-ml/graphgrad/internal/autodiff/ops"
	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/born-ml/graphgrad/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultOpPrefix names backward ops when SetOpPrefix was not called.
const DefaultOpPrefix = "GradientOp"

// GraphGradientMaker synthesizes backward graphs from recorded forward graphs
// and rewrites them to share gradient buffers.
//
// The configuration methods (AddEmptyGrad, AddRetainedGrad, AddBlacklist,
// SetOpPrefix, SetTypes) are applied before Make. Make itself keeps no state
// between calls apart from LastStats, so a maker may be reused; it must not be
// used from several goroutines at once.
type GraphGradientMaker struct {
	registry  *gradient.Registry
	empty     map[string]struct{}
	retained  map[string]struct{}
	blacklist map[string]struct{}
	types     map[string]tensor.DataType
	opPrefix  string
	stats     MakeStats
}

// MakeStats summarizes one Make call.
type MakeStats struct {
	Forward       int // Forward ops walked
	Pruned        int // Forward ops that contributed no gradient
	Emitted       int // Backward ops emitted, accumulations and seeds included
	Accumulations int // GradientAdd ops emitted
	Seeds         int // OnesLike seeds generated for targets without a seed
}

// NewGraphGradientMaker creates a maker that looks rules up in registry.
// A nil registry selects ops.Default().
func NewGraphGradientMaker(registry *gradient.Registry) *GraphGradientMaker {
	if registry == nil {
		registry = ops.Default()
	}
	return &GraphGradientMaker{
		registry:  registry,
		empty:     make(map[string]struct{}),
		retained:  make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
		types:     make(map[string]tensor.DataType),
		opPrefix:  DefaultOpPrefix,
	}
}

// AddEmptyGrad declares that the gradient of name is a defined zero: it is
// never accumulated and its producer sees a Zero output gradient.
func (m *GraphGradientMaker) AddEmptyGrad(name string) { m.empty[name] = struct{}{} }

// AddRetainedGrad exempts the gradient of name from buffer sharing.
// Either the tensor name or its gradient name may be given.
func (m *GraphGradientMaker) AddRetainedGrad(name string) { m.retained[name] = struct{}{} }

// AddBlacklist excludes name from receiving a gradient.
func (m *GraphGradientMaker) AddBlacklist(name string) { m.blacklist[name] = struct{}{} }

// SetOpPrefix sets the prefix of backward op names.
func (m *GraphGradientMaker) SetOpPrefix(prefix string) { m.opPrefix = prefix }

// SetTypes records the element types of forward tensors. Gradients inherit them.
func (m *GraphGradientMaker) SetTypes(types map[string]tensor.DataType) {
	for k, v := range types {
		m.types[k] = v
	}
}

// Registry returns the rule registry in use.
func (m *GraphGradientMaker) Registry() *gradient.Registry { return m.registry }

// LastStats returns the statistics of the most recent Make call.
func (m *GraphGradientMaker) LastStats() MakeStats { return m.stats }

// Make builds the backward graph of forward for targets.
//
// seeds is either empty or holds one gradient name per target. A non-empty
// seed is bound as the target's gradient as is; an empty one makes Make emit a
// OnesLike seed for that target when its producer is reached.
//
// Algorithm:
//  1. Bind the seeds.
//  2. Walk forward in reverse. Ops none of whose outputs carry a gradient are pruned.
//  3. For every other op, look up its rule, check arity and mandatory output
//     gradients, and append the descriptors the rule returns.
//  4. Bind the input gradients the rule reports. A second contribution to an
//     already bound tensor emits a GradientAdd into a fresh accumulator.
//  5. Rename the final gradient of every tensor to graph.GradName(tensor).
//
// On error no partial graph is returned.
func (m *GraphGradientMaker) Make(forward []*graph.OpDef, targets, seeds []string) (*graph.Def, error) {
	if len(seeds) != 0 && len(seeds) != len(targets) {
		return nil, errors.Wrapf(graph.ErrSeedCount, "%d targets, %d seeds", len(targets), len(seeds))
	}

	b := newBuild(m, forward)
	b.markNonDifferentiable()
	for i, target := range targets {
		seed := ""
		if len(seeds) != 0 {
			seed = seeds[i]
		}
		b.seed(target, seed)
	}

	for i := len(forward) - 1; i >= 0; i-- {
		if err := b.visit(forward[i]); err != nil {
			return nil, err
		}
	}

	def := b.finish()
	m.stats = b.stats
	klog.V(2).InfoS("Built backward graph",
		"forward", b.stats.Forward,
		"backward", b.stats.Emitted,
		"pruned", b.stats.Pruned,
		"accumulations", b.stats.Accumulations)
	return def, nil
}

// CheckGrad verifies that every output gradient the rule declares mandatory is
// bound. A missing one means the graph is disconnected where the rule needs
// it, which is reported rather than defaulted to zero.
func CheckGrad(op *graph.OpDef, rule *gradient.Rule, outGrads []graph.GradRef) error {
	for _, slot := range rule.Mandatory {
		if slot >= len(outGrads) {
			continue
		}
		if !outGrads[slot].Defined() {
			return graph.NewError(graph.ErrMissingGrad, op, op.Output(slot),
				"output %d has no gradient but %s requires it", slot, rule.Kind)
		}
	}
	return nil
}

// build holds the state of one Make call.
type build struct {
	m         *GraphGradientMaker
	forward   []*graph.OpDef
	bindings  map[string]graph.GradRef // forward tensor -> current gradient
	blacklist map[string]struct{}
	defined   map[string]struct{} // names readable at the current point of the backward sequence
	splits    map[string]int      // next contribution number per tensor
	sums      map[string]int      // next accumulator number per tensor
	pending   map[string]struct{} // targets waiting for a generated seed
	finals    []finalGrad         // gradients in the order they became final
	types     map[string]tensor.DataType
	ops       []*graph.OpDef
	stats     MakeStats
}

type finalGrad struct {
	tensor string
	grad   string
}

func newBuild(m *GraphGradientMaker, forward []*graph.OpDef) *build {
	b := &build{
		m:         m,
		forward:   forward,
		bindings:  make(map[string]graph.GradRef),
		blacklist: make(map[string]struct{}, len(m.blacklist)),
		defined:   make(map[string]struct{}),
		splits:    make(map[string]int),
		sums:      make(map[string]int),
		pending:   make(map[string]struct{}),
		types:     make(map[string]tensor.DataType, len(m.types)),
	}
	for k := range m.blacklist {
		b.blacklist[k] = struct{}{}
	}
	for k, v := range m.types {
		b.types[k] = v
	}
	for _, op := range forward {
		for i := 0; i < op.NumInputs(); i++ {
			b.defined[op.Input(i)] = struct{}{}
		}
		for i := 0; i < op.NumOutputs(); i++ {
			b.defined[op.Output(i)] = struct{}{}
		}
	}
	delete(b.defined, "")
	b.stats.Forward = len(forward)
	return b
}

// markNonDifferentiable blacklists the outputs of kinds that stop gradient
// flow, so consumers seen earlier in the reverse walk do not request them.
func (b *build) markNonDifferentiable() {
	for _, op := range b.forward {
		rule, err := b.m.registry.Lookup(op.Kind())
		if err != nil || !rule.NoGradient {
			continue
		}
		for i := 0; i < op.NumOutputs(); i++ {
			b.blacklist[op.Output(i)] = struct{}{}
		}
	}
}

func (b *build) isBlacklisted(name string) bool {
	_, ok := b.blacklist[name]
	return ok
}

func (b *build) isEmpty(name string) bool {
	_, ok := b.m.empty[name]
	return ok
}

func (b *build) wants(name string) bool {
	return name != "" && !b.isBlacklisted(name) && !b.isEmpty(name)
}

func (b *build) seed(target, seed string) {
	switch {
	case b.isBlacklisted(target):
		return
	case b.isEmpty(target):
		b.bindings[target] = graph.Zero()
	case seed != "":
		b.defined[seed] = struct{}{}
		b.types[seed] = b.typeOf(target)
		b.contribute(target, graph.Some(seed))
	default:
		b.pending[target] = struct{}{}
	}
}

// generateSeeds emits a OnesLike seed for every output of op that is a target
// without a caller-provided seed. Seeds are generated when the producer is
// reached, so a target no forward op writes gets none.
func (b *build) generateSeeds(op *graph.OpDef) {
	for i := 0; i < op.NumOutputs(); i++ {
		target := op.Output(i)
		if _, ok := b.pending[target]; !ok {
			continue
		}
		delete(b.pending, target)
		name := b.reserve(target)
		b.emit(graph.NewOp(gradient.SeedKind, []string{target}, []string{name}))
		b.stats.Seeds++
		b.contribute(target, graph.Some(name))
	}
}

func (b *build) typeOf(name string) tensor.DataType {
	if dt, ok := b.types[name]; ok {
		return dt
	}
	return tensor.Float32
}

// reserve returns a fresh contribution name for the gradient of x.
func (b *build) reserve(x string) string {
	n := b.splits[x]
	b.splits[x] = n + 1
	return graph.SplitName(x, n)
}

func (b *build) emit(op *graph.OpDef) {
	name := b.m.opPrefix + strconv.Itoa(len(b.ops))
	b.ops = append(b.ops, op.WithName(name))
	for i := 0; i < op.NumOutputs(); i++ {
		if out := op.Output(i); out != "" {
			b.defined[out] = struct{}{}
		}
	}
	b.stats.Emitted++
}

// contribute adds ref to the gradient bound to x. The first contribution is
// bound directly; later ones are summed into a new accumulator in arrival order.
func (b *build) contribute(x string, ref graph.GradRef) {
	existing, ok := b.bindings[x]
	switch {
	case ref.IsNone():
		return
	case !ok || existing.IsNone():
		b.bindings[x] = ref
		return
	case ref.IsZero():
		return
	case existing.IsZero():
		b.bindings[x] = ref
		return
	}

	acc, _ := existing.Name()
	next, _ := ref.Name()
	n := b.sums[x]
	b.sums[x] = n + 1
	sum := graph.SumName(x, n)
	b.emit(graph.NewOp(gradient.AccumulateKind, []string{acc, next}, []string{sum}))
	b.stats.Accumulations++
	b.bindings[x] = graph.Some(sum)
}

func (b *build) visit(op *graph.OpDef) error {
	b.generateSeeds(op)

	outGrads := make([]graph.GradRef, op.NumOutputs())
	live := false
	for i := range outGrads {
		out := op.Output(i)
		if b.isBlacklisted(out) {
			continue
		}
		if ref, ok := b.bindings[out]; ok {
			outGrads[i] = ref
			live = live || ref.Defined()
		}
	}
	if !live {
		b.stats.Pruned++
		klog.V(4).InfoS("Pruned op", "op", op)
		return nil
	}

	rule, err := b.m.registry.Lookup(op.Kind())
	if err != nil {
		return errors.Wrapf(err, "differentiate %s", op)
	}
	if rule.NoGradient {
		b.consume(op)
		return nil
	}
	if err := rule.Schema.Check(op); err != nil {
		return err
	}
	if err := CheckGrad(op, rule, outGrads); err != nil {
		return err
	}

	inGrads := make([]string, op.NumInputs())
	for i := range inGrads {
		if in := op.Input(i); b.wants(in) {
			inGrads[i] = b.reserve(in)
		}
	}

	klog.V(4).InfoS("Differentiating op", "op", op, "outputGrads", outGrads)
	res, err := rule.Maker(gradient.NewContext(op, outGrads, inGrads))
	if err != nil {
		return errors.Wrapf(err, "gradient rule for %s", op)
	}
	if err := b.validate(op, res, inGrads); err != nil {
		return err
	}
	for _, def := range res.Defs {
		b.emit(def)
	}

	b.consume(op)
	for i, ref := range res.InputGrads {
		in := op.Input(i)
		switch {
		case b.isBlacklisted(in):
		case b.isEmpty(in):
			b.bindings[in] = graph.Zero()
		default:
			b.contribute(in, ref)
		}
	}
	return nil
}

// consume finalizes the gradients of op's outputs. After this point they are
// read by nobody, and an in-place input may bind the same name afresh.
func (b *build) consume(op *graph.OpDef) {
	for i := 0; i < op.NumOutputs(); i++ {
		out := op.Output(i)
		ref, ok := b.bindings[out]
		if !ok {
			continue
		}
		if name, some := ref.Name(); some {
			b.finals = append(b.finals, finalGrad{tensor: out, grad: name})
		}
		delete(b.bindings, out)
	}
}

// validate enforces the rule contract on res before anything is emitted.
func (b *build) validate(op *graph.OpDef, res *gradient.Result, inGrads []string) error {
	if res == nil || len(res.InputGrads) != op.NumInputs() {
		got := 0
		if res != nil {
			got = len(res.InputGrads)
		}
		return graph.NewError(graph.ErrArityMismatch, op, "",
			"rule returned %d input gradients for %d inputs", got, op.NumInputs())
	}

	produced := make(map[string]struct{})
	for _, def := range res.Defs {
		if s, ok := b.m.registry.Schema(def.Kind()); ok {
			if err := s.Check(def); err != nil {
				return errors.Wrapf(err, "backward of %s", op)
			}
		}
		for i := 0; i < def.NumInputs(); i++ {
			in := def.Input(i)
			if in == "" {
				continue
			}
			_, d := b.defined[in]
			_, p := produced[in]
			if !d && !p {
				return graph.NewError(graph.ErrUnboundInput, def, in,
					"emitted by the rule of %s", op)
			}
		}
		for i := 0; i < def.NumOutputs(); i++ {
			out := def.Output(i)
			if out == "" {
				continue
			}
			if _, clash := b.defined[out]; clash {
				return graph.NewError(graph.ErrInvalidRule, def, out,
					"rule of %s overwrites an existing tensor", op)
			}
			produced[out] = struct{}{}
		}
	}

	for i, ref := range res.InputGrads {
		name, ok := ref.Name()
		if !ok {
			continue
		}
		if name != inGrads[i] {
			return graph.NewError(graph.ErrInvalidRule, op, op.Input(i),
				"input %d gradient %q is not the reserved name %q", i, name, inGrads[i])
		}
		if _, ok := produced[name]; !ok {
			return graph.NewError(graph.ErrInvalidRule, op, op.Input(i),
				"input %d gradient %q is not produced by any returned op", i, name)
		}
	}
	return nil
}

// finish renames final gradients and assembles the result.
func (b *build) finish() *graph.Def {
	remaining := make([]string, 0, len(b.bindings))
	for name := range b.bindings {
		remaining = append(remaining, name)
	}
	sort.Strings(remaining)
	for _, name := range remaining {
		if grad, ok := b.bindings[name].Name(); ok {
			b.finals = append(b.finals, finalGrad{tensor: name, grad: grad})
		}
	}

	// When a tensor has several versions (in-place writes), the version
	// finalized last is the oldest one and takes the conventional name.
	latest := make(map[string]string)
	for _, f := range b.finals {
		if src, ok := graph.SourceOf(f.grad); ok && src == f.tensor {
			latest[f.tensor] = f.grad
		}
	}
	rename := make(map[string]string, len(latest))
	for x, grad := range latest {
		target := graph.GradName(x)
		if _, taken := b.defined[target]; taken && target != grad {
			continue
		}
		rename[grad] = target
	}

	def := graph.NewDef()
	for k, v := range b.types {
		def.SetType(k, v)
	}
	for _, op := range b.ops {
		def.Ops = append(def.Ops, op.Rename(rename))
	}
	return def
}
