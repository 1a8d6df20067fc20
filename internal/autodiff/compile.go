package autodiff

import (
	"context"
	"runtime"

	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
	"github.com/born-ml/graphgrad/internal/graph"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const tracerName = "github.com/born-ml/graphgrad/autodiff"

// Request describes one graph to compile.
type Request struct {
	Name    string     // Used in logs, spans and errors
	Forward *graph.Def // Recorded forward ops and their tensor types
	Targets []string
	Seeds   []string // Empty, or one per target ("" generates a ones seed)

	EmptyGrads    []string
	RetainedGrads []string
	Blacklist     []string
	OpPrefix      string // DefaultOpPrefix when empty

	// Share rewrites the combined forward+backward graph to reuse gradient buffers.
	Share bool

	// Registry defaults to ops.Default().
	Registry *gradient.Registry
}

// Result is the outcome of compiling one Request.
type Result struct {
	Backward *graph.Def // Backward ops as built, before sharing
	Graph    *graph.Def // Forward followed by backward, shared if requested
	Stats    MakeStats
	Slots    int // Physical gradient buffers after sharing; 0 when Share is off
}

func (req *Request) maker() *GraphGradientMaker {
	m := NewGraphGradientMaker(req.Registry)
	for _, name := range req.EmptyGrads {
		m.AddEmptyGrad(name)
	}
	for _, name := range req.RetainedGrads {
		m.AddRetainedGrad(name)
	}
	for _, name := range req.Blacklist {
		m.AddBlacklist(name)
	}
	if req.OpPrefix != "" {
		m.SetOpPrefix(req.OpPrefix)
	}
	m.SetTypes(req.Forward.Types)
	return m
}

// Compile builds the backward graph of req and optionally shares its buffers.
func Compile(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "autodiff.Compile",
		trace.WithAttributes(
			attribute.String("graph.name", req.Name),
			attribute.Int("graph.forward_ops", req.Forward.Len()),
			attribute.Int("graph.targets", len(req.Targets)),
		))
	defer span.End()
	log := klog.FromContext(ctx).WithValues("graph", req.Name)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := req.maker()
	backward, err := m.Make(req.Forward.Ops, req.Targets, req.Seeds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "make backward graph")
		return nil, errors.Wrapf(err, "compile %q", req.Name)
	}

	res := &Result{
		Backward: backward,
		Graph:    req.Forward.Append(backward),
		Stats:    m.LastStats(),
	}
	if req.Share {
		shared, plan := m.share(res.Graph)
		if plan != nil {
			res.Slots = plan.PeakSlots()
		}
		res.Graph = shared
	}

	span.SetAttributes(
		attribute.Int("graph.backward_ops", backward.Len()),
		attribute.Int("graph.accumulations", res.Stats.Accumulations),
		attribute.Int("graph.shared_slots", res.Slots),
	)
	log.V(2).Info("Compiled graph",
		"backward", backward.Len(), "pruned", res.Stats.Pruned, "slots", res.Slots)
	return res, nil
}

// CompileAll compiles independent graphs concurrently, at most workers at a
// time (runtime.NumCPU() when workers <= 0). The first error cancels the
// remaining compilations and is returned.
func CompileAll(ctx context.Context, reqs []*Request, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make([]*Result, len(reqs))
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := Compile(ctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
