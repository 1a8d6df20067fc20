// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff compiles forward operator graphs into backward graphs.
//
// The compiler is symbolic: it reads operator descriptors recorded during a
// forward pass and emits the descriptors that compute gradients, without
// touching tensor values. An executor runs both sequences.
//
// Example:
//
//	import (
//	    "github.com/born-ml/graphgrad/autodiff"
//	    "github.com/born-ml/graphgrad/graph"
//	)
//
//	func main() {
//	    tape := autodiff.NewTape()
//	    tape.StartRecording()
//	    tape.Record(graph.NewOp("MatMul", []string{"x", "w"}, []string{"y"}))
//	    tape.Record(graph.NewOp("Relu", []string{"y"}, []string{"a"}))
//
//	    res, err := autodiff.Compile(ctx, &autodiff.Request{
//	        Forward: tape.Def(),
//	        Targets: []string{"a"},
//	        Share:   true,
//	    })
//	    // res.Graph holds the forward ops followed by the backward ops,
//	    // with w_grad and x_grad under their conventional names.
//	}
package autodiff

import (
	"context"

	"github.com/born-ml/graphgrad/internal/autodiff"
	"github.com/born-ml/graphgrad/internal/autodiff/gradient"
	"github.com/born-ml/graphgrad/internal/autodiff/ops"
	"github.com/born-ml/graphgrad/internal/graph"
)

// GraphGradientMaker builds backward graphs and shares gradient buffers.
type GraphGradientMaker = autodiff.GraphGradientMaker

// MakeStats summarizes one Make call.
type MakeStats = autodiff.MakeStats

// NewGraphGradientMaker creates a maker over registry (the built-in rules when nil).
func NewGraphGradientMaker(registry *Registry) *GraphGradientMaker {
	return autodiff.NewGraphGradientMaker(registry)
}

// Tape records forward operator descriptors.
type Tape = autodiff.Tape

// NewTape creates a new tape.
func NewTape() *Tape {
	return autodiff.NewTape()
}

// Request describes one graph to compile.
type Request = autodiff.Request

// Result is the outcome of compiling one Request.
type Result = autodiff.Result

// Compile builds the backward graph of req and optionally shares its buffers.
func Compile(ctx context.Context, req *Request) (*Result, error) {
	return autodiff.Compile(ctx, req)
}

// CompileAll compiles independent graphs concurrently.
func CompileAll(ctx context.Context, reqs []*Request, workers int) ([]*Result, error) {
	return autodiff.CompileAll(ctx, reqs, workers)
}

// Backward builds the backward graph of forward for targets seeded with ones.
func Backward(forward *graph.Def, targets ...string) (*graph.Def, error) {
	return autodiff.Backward(forward, targets...)
}

// Registry maps operator kinds to gradient rules.
type Registry = gradient.Registry

// Rule is the registry entry of one operator kind.
type Rule = gradient.Rule

// DefaultRegistry returns the sealed registry of built-in operator kinds.
func DefaultRegistry() *Registry {
	return ops.Default()
}

// NewRegistry creates an empty registry for custom operator kinds.
func NewRegistry() *Registry {
	return gradient.NewRegistry()
}

// Context is what a gradient Maker sees of one forward operator.
type Context = gradient.Context

// Maker builds the backward descriptors of one forward operator.
type Maker = gradient.Maker

// RuleResult is what a Maker returns.
type RuleResult = gradient.Result

// Schema is the arity contract of an operator kind.
type Schema = gradient.Schema

// Arity returns a schema with exactly in inputs and out outputs.
func Arity(in, out int) Schema {
	return gradient.Arity(in, out)
}
