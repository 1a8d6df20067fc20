// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph defines operator descriptors and gradient references.
//
// An OpDef names the tensors an operator reads and writes. A Def is a linear
// sequence of OpDefs, the unit the autodiff compiler consumes and produces.
//
// Example:
//
//	op := graph.NewOp("MatMul", []string{"x", "w"}, []string{"y"},
//	    graph.WithArg("transB", graph.BoolArg(true)))
//	def := graph.NewDef(op)
package graph

import "github.com/born-ml/graphgrad/internal/graph"

// OpDef describes one operator application.
type OpDef = graph.OpDef

// OpOption configures an OpDef under construction.
type OpOption = graph.OpOption

// Arg is a static operator argument.
type Arg = graph.Arg

// Alias declares an in-place input/output slot pair.
type Alias = graph.Alias

// Def is a linear operator sequence with tensor element types.
type Def = graph.Def

// GradRef refers to the gradient of one tensor slot: Some(name), None or Zero.
type GradRef = graph.GradRef

// Error carries the operator and tensor a compilation error was detected on.
type Error = graph.Error

// Compilation errors, for use with errors.Is.
var (
	ErrUnregisteredKind = graph.ErrUnregisteredKind
	ErrMissingGrad      = graph.ErrMissingGrad
	ErrArityMismatch    = graph.ErrArityMismatch
	ErrUnboundInput     = graph.ErrUnboundInput
	ErrInvalidRule      = graph.ErrInvalidRule
	ErrSeedCount        = graph.ErrSeedCount
	ErrLifetime         = graph.ErrLifetime
)

// NewOp creates an operator descriptor.
func NewOp(kind string, inputs, outputs []string, opts ...OpOption) *OpDef {
	return graph.NewOp(kind, inputs, outputs, opts...)
}

// NewDef creates a Def over ops.
func NewDef(ops ...*OpDef) *Def {
	return graph.NewDef(ops...)
}

// WithName sets the operator name.
func WithName(name string) OpOption { return graph.WithName(name) }

// WithArg sets a named argument.
func WithArg(key string, v Arg) OpOption { return graph.WithArg(key, v) }

// WithAlias declares input slot in and output slot out as in-place aliased.
func WithAlias(in, out int) OpOption { return graph.WithAlias(in, out) }

// Argument constructors.
var (
	IntArg    = graph.IntArg
	FloatArg  = graph.FloatArg
	StringArg = graph.StringArg
	BoolArg   = graph.BoolArg
	IntsArg   = graph.IntsArg
	FloatsArg = graph.FloatsArg
)

// Some, None and Zero construct gradient references.
var (
	Some = graph.Some
	None = graph.None
	Zero = graph.Zero
)

// GradName returns the final gradient name of tensor x.
func GradName(x string) string { return graph.GradName(x) }
